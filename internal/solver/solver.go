/*

This file contains the closed-form A/L rebalancing solver. Given a position's
current assets and liabilities (both in reserve token terms at oracle spot),
a target A/L, the DEX execution price, the oracle reference price and a
slippage tolerance, it returns the exact collateral amount to supply
(rebalance down, more leverage) or withdraw (rebalance up, less leverage).

The solver is advisory: the executor re-checks the realized A/L after the
trade and reverts the whole operation if it lands outside its bounds.

*/

package solver

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/origami-labs/lovm/internal/utils"
)

var (
	ErrInvalidRebalanceDownParam = errors.New("invalid rebalance down parameter")
	ErrInvalidRebalanceUpParam   = errors.New("invalid rebalance up parameter")
)

// Inputs carries the observed state the solver works from. Prices are
// debt token per reserve token: DexPrice is the actually quoted swap price,
// OraclePrice the protocol's trusted reference.
type Inputs struct {
	Assets      sdkmath.LegacyDec // position collateral, reserve terms
	Liabilities sdkmath.LegacyDec // position debt, reserve terms
	DexPrice    sdkmath.LegacyDec
	OraclePrice sdkmath.LegacyDec
	SlippageBps uint64
}

func (in Inputs) validate() error {
	switch {
	case in.Assets.IsNil() || in.Assets.IsNegative():
		return fmt.Errorf("assets must be non-negative")
	case in.Liabilities.IsNil() || in.Liabilities.IsNegative():
		return fmt.Errorf("liabilities must be non-negative")
	case in.DexPrice.IsNil() || !in.DexPrice.IsPositive():
		return fmt.Errorf("dex price must be positive")
	case in.OraclePrice.IsNil() || !in.OraclePrice.IsPositive():
		return fmt.Errorf("oracle price must be positive")
	case in.SlippageBps >= utils.MaxBps:
		return fmt.Errorf("slippage must be below %d bps", utils.MaxBps)
	}
	return nil
}

// SolveRebalanceDown returns the reserve token amount to supply so the
// position's A/L drops from currentAL to targetAL.
//
// The supplied collateral is bought with borrowed debt token at the DEX
// price, so the liability leg grows by supplyAmount scaled by
// dexPrice/oraclePrice, inflated once more by the slippage tolerance:
//
//	targetAL == (assets + X) / (liabilities + X*dexPrice/oraclePrice/(1-slippage))
//	X == (assets - targetAL*liabilities) / (targetAL*dexPrice/oraclePrice/(1-slippage) - 1)
func SolveRebalanceDown(targetAL, currentAL sdkmath.LegacyDec, in Inputs) (sdkmath.LegacyDec, error) {
	one := sdkmath.LegacyOneDec()
	if targetAL.IsNil() || !targetAL.GT(one) {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: targetAL %s must exceed 1.0", ErrInvalidRebalanceDownParam, targetAL)
	}
	if currentAL.IsNil() || targetAL.GTE(currentAL) {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: targetAL %s must be below currentAL %s", ErrInvalidRebalanceDownParam, targetAL, currentAL)
	}
	if err := in.validate(); err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %s", ErrInvalidRebalanceDownParam, err)
	}

	netAssets := in.Assets.Sub(targetAL.Mul(in.Liabilities))
	priceScaledTargetAL, err := utils.InverseSubtractBps(
		targetAL.Mul(in.DexPrice).Quo(in.OraclePrice),
		in.SlippageBps,
	)
	if err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %s", ErrInvalidRebalanceDownParam, err)
	}
	denominator := priceScaledTargetAL.Sub(one)
	if !denominator.IsPositive() {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: price-scaled targetAL %s must exceed 1.0", ErrInvalidRebalanceDownParam, priceScaledTargetAL)
	}
	return netAssets.Quo(denominator), nil
}

// BorrowAmountForSupply converts a rebalance-down supply amount into the
// debt token amount to borrow, at the DEX price, inflated by the slippage
// tolerance so the swap still covers supplyAmount after adverse execution.
func BorrowAmountForSupply(supplyAmount sdkmath.LegacyDec, in Inputs) (sdkmath.LegacyDec, error) {
	return utils.InverseSubtractBps(supplyAmount.Mul(in.DexPrice), in.SlippageBps)
}

// SolveRebalanceUp returns the reserve token amount to withdraw so the
// position's A/L rises from currentAL to targetAL. The withdrawn collateral
// is sold for debt token at the DEX price to repay debt, with the repaid leg
// deflated by the slippage tolerance:
//
//	targetAL == (assets - X) / (liabilities - X*dexPrice/oraclePrice*(1-slippage))
//	X == (targetAL*liabilities - assets) / (targetAL*dexPrice/oraclePrice*(1-slippage) - 1)
func SolveRebalanceUp(targetAL, currentAL sdkmath.LegacyDec, in Inputs) (sdkmath.LegacyDec, error) {
	one := sdkmath.LegacyOneDec()
	if targetAL.IsNil() || !targetAL.GT(one) {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: targetAL %s must exceed 1.0", ErrInvalidRebalanceUpParam, targetAL)
	}
	if currentAL.IsNil() || targetAL.LTE(currentAL) {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: targetAL %s must exceed currentAL %s", ErrInvalidRebalanceUpParam, targetAL, currentAL)
	}
	if err := in.validate(); err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %s", ErrInvalidRebalanceUpParam, err)
	}

	netLiabilities := targetAL.Mul(in.Liabilities).Sub(in.Assets)
	priceScaledTargetAL, err := utils.SubtractBps(
		targetAL.Mul(in.DexPrice).Quo(in.OraclePrice),
		in.SlippageBps,
	)
	if err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %s", ErrInvalidRebalanceUpParam, err)
	}
	denominator := priceScaledTargetAL.Sub(one)
	if !denominator.IsPositive() {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: price-scaled targetAL %s must exceed 1.0", ErrInvalidRebalanceUpParam, priceScaledTargetAL)
	}
	return netLiabilities.Quo(denominator), nil
}

// RepayAmountForWithdrawal converts a rebalance-up withdrawal amount into
// the debt token amount that swapping it is expected to repay, at the DEX
// price, deflated by the slippage tolerance.
func RepayAmountForWithdrawal(withdrawAmount sdkmath.LegacyDec, in Inputs) (sdkmath.LegacyDec, error) {
	return utils.SubtractBps(withdrawAmount.Mul(in.DexPrice), in.SlippageBps)
}
