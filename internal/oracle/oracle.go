/*

This file contains the oracle read abstraction. An oracle source publishes
rounds; the Oracle wrapper enforces the per-feed staleness threshold and
exposes the price/convert surface consumed by the price registry and the
rebalance planner.

*/

package oracle

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/origami-labs/lovm/internal/types"
)

var (
	ErrStalePrice   = errors.New("oracle price round is stale")
	ErrNoRound      = errors.New("oracle has no round for the requested price type")
	ErrInvalidRound = errors.New("oracle round has a non-positive price")
)

// Round is one published oracle observation.
type Round struct {
	Price     sdkmath.LegacyDec
	UpdatedAt time.Time
}

// Source is the raw feed: it knows nothing about staleness policy.
type Source interface {
	Description() string
	LatestRound(priceType types.PriceType) (Round, error)
}

// Oracle wraps a Source with a staleness threshold and an injected clock.
type Oracle struct {
	source    Source
	staleness time.Duration
	now       func() time.Time
}

// New builds an Oracle over source. A nil clock defaults to time.Now.
func New(source Source, staleness time.Duration, clock func() time.Time) *Oracle {
	if clock == nil {
		clock = time.Now
	}
	return &Oracle{source: source, staleness: staleness, now: clock}
}

func (o *Oracle) Description() string {
	return o.source.Description()
}

// LatestPrice returns the latest round's price, failing if the round is
// older than the staleness threshold. Rounding only matters for derived
// conversions; a direct feed read returns the round price as published.
func (o *Oracle) LatestPrice(priceType types.PriceType, _ types.RoundingMode) (sdkmath.LegacyDec, error) {
	round, err := o.source.LatestRound(priceType)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	if round.Price.IsNil() || !round.Price.IsPositive() {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %s", ErrInvalidRound, o.source.Description())
	}
	if age := o.now().Sub(round.UpdatedAt); age > o.staleness {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %s: age %s exceeds threshold %s",
			ErrStalePrice, o.source.Description(), age, o.staleness)
	}
	return round.Price, nil
}

// ConvertAmount converts amount of the base token into quote token terms at
// the latest price. RoundUp ceils at 18 decimal places, which callers use
// when overstating liabilities is the safe direction.
func (o *Oracle) ConvertAmount(amount sdkmath.LegacyDec, priceType types.PriceType, rounding types.RoundingMode) (sdkmath.LegacyDec, error) {
	price, err := o.LatestPrice(priceType, rounding)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	if rounding == types.RoundUp {
		return amount.MulRoundUp(price), nil
	}
	return amount.MulTruncate(price), nil
}
