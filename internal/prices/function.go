/*

This file contains the composable price function variants. A price function
is pure data: evaluating one against live oracle/contract state is the
registry's job. The set of variants is closed so the evaluator can match
exhaustively.

*/

package prices

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/origami-labs/lovm/internal/types"
)

// PriceFunction is the closed union of price-evaluation variants.
type PriceFunction interface {
	priceFunction()
}

// Scalar is a fixed price, e.g. 1.0 for a USD stablecoin priced at par.
type Scalar struct {
	Value sdkmath.LegacyDec
}

// OracleLookup reads a named oracle's latest round, rejecting rounds older
// than the staleness threshold. Invert serves the reciprocal, for oracles
// quoted in the opposite direction to the registered token.
type OracleLookup struct {
	OracleID  string
	PriceType types.PriceType
	Rounding  types.RoundingMode
	Staleness time.Duration
	Invert    bool
}

// Mul multiplies two evaluated prices, left then right, in 18-decimal fixed
// point, rounding down. Used to compose cross rates, e.g.
// ezETH/USD = ezETH/ETH x ETH/USD.
type Mul struct {
	A PriceFunction
	B PriceFunction
}

// Alias delegates to the price function currently registered for another
// token. Alias chains resolve transitively; cycles fail at evaluation time.
type Alias struct {
	Token types.TokenAddress
}

// Erc4626Share prices one share of an ERC-4626 vault: assets-per-share
// composed with the underlying asset's own registered price.
type Erc4626Share struct {
	Vault types.TokenAddress
}

// StakedTokenRatio reads a wrapped/staked token's exchange-rate accessor
// (e.g. stETH per wstETH) and yields the ratio as a price multiplier.
type StakedTokenRatio struct {
	Token types.TokenAddress
}

func (Scalar) priceFunction()           {}
func (OracleLookup) priceFunction()     {}
func (Mul) priceFunction()              {}
func (Alias) priceFunction()            {}
func (Erc4626Share) priceFunction()     {}
func (StakedTokenRatio) priceFunction() {}

// Erc4626Reader exposes the two reads the evaluator needs from an ERC-4626
// vault: the assets one share currently converts to, scaled to 18 decimals,
// and the underlying asset token.
type Erc4626Reader interface {
	ConvertToAssets(shares sdkmath.LegacyDec) (sdkmath.LegacyDec, error)
	Asset() types.TokenAddress
}

// StakedTokenReader exposes a wrapped/staked token's exchange rate, e.g.
// stEthPerToken on wstETH.
type StakedTokenReader interface {
	ExchangeRate() (sdkmath.LegacyDec, error)
}
