/*

This file contains the dynamic fee model for invest and exit. The exact
curve is a pluggable strategy; the contract every curve must honor is
monotonicity: the fee never decreases as the projected post-trade A/L
moves toward the rebalance floor.

*/

package fees

import (
	sdkmath "cosmossdk.io/math"

	"github.com/origami-labs/lovm/internal/types"
	"github.com/origami-labs/lovm/internal/utils"
)

// Curve maps a projected post-trade A/L to a dynamic fee in bps.
type Curve interface {
	// DynamicFeeBps must be non-increasing in projectedAL over
	// [rebalanceRange.Floor, rebalanceRange.Ceiling] for a fixed factor.
	DynamicFeeBps(projectedAL sdkmath.LegacyDec, rebalanceRange types.ALRange, feeLeverageFactorBps uint64) uint64
}

// LeverageProximityCurve scales the fee leverage factor linearly by how far
// the projected A/L sits from the rebalance ceiling: zero fee at or above
// the ceiling, the full factor at or below the floor.
type LeverageProximityCurve struct{}

func (LeverageProximityCurve) DynamicFeeBps(projectedAL sdkmath.LegacyDec, rebalanceRange types.ALRange, feeLeverageFactorBps uint64) uint64 {
	if projectedAL.IsNil() || feeLeverageFactorBps == 0 {
		return 0
	}
	if projectedAL.GTE(rebalanceRange.Ceiling) {
		return 0
	}
	if projectedAL.LTE(rebalanceRange.Floor) {
		return feeLeverageFactorBps
	}
	width := rebalanceRange.Ceiling.Sub(rebalanceRange.Floor)
	if !width.IsPositive() {
		return feeLeverageFactorBps
	}
	proximity := rebalanceRange.Ceiling.Sub(projectedAL).Quo(width)
	fee := proximity.MulInt64(int64(feeLeverageFactorBps)).TruncateInt64()
	if fee < 0 {
		return 0
	}
	return uint64(fee)
}

// Applied returns the fee actually charged: max(min fee, dynamic fee),
// capped at 100%.
func Applied(minFeeBps, dynamicFeeBps uint64) uint64 {
	fee := minFeeBps
	if dynamicFeeBps > fee {
		fee = dynamicFeeBps
	}
	if fee > utils.MaxBps {
		fee = utils.MaxBps
	}
	return fee
}
