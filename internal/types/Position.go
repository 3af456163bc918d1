/*

This file contains the types for the leveraged position and the A/L safety
ranges that bound it. The position's balances are mutated only by the
rebalance executor and by user invest/exit; the A/L ratio itself is always
computed, never stored.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

// Position holds the vault's supplied collateral and borrowed debt, each in
// the native terms of its own token.
type Position struct {
	SuppliedAmount sdkmath.LegacyDec `json:"supplied_amount"` // reserve token units
	BorrowedAmount sdkmath.LegacyDec `json:"borrowed_amount"` // debt token units
	ReserveToken   Token             `json:"reserve_token"`
	DebtToken      Token             `json:"debt_token"`
}

// AssetToLiabilityRatio computes A/L with both legs valued in reserve token
// terms. debtToReservePrice converts one debt token into reserve tokens.
// A position with no debt has no meaningful ratio and reports ok=false;
// callers treat that as +infinity (maximally safe).
func (p Position) AssetToLiabilityRatio(debtToReservePrice sdkmath.LegacyDec) (ratio sdkmath.LegacyDec, ok bool) {
	if p.BorrowedAmount.IsNil() || p.BorrowedAmount.IsZero() {
		return sdkmath.LegacyDec{}, false
	}
	liabilities := p.BorrowedAmount.Mul(debtToReservePrice)
	if liabilities.IsZero() {
		return sdkmath.LegacyDec{}, false
	}
	return p.SuppliedAmount.Quo(liabilities), true
}

// ALRange is an inclusive [floor, ceiling] band on the asset/liability ratio.
// Two instances exist per vault: a wider user range enforced on invest/exit
// and a narrower rebalance range targeted by the automated rebalancer.
type ALRange struct {
	Floor   sdkmath.LegacyDec `json:"floor"`
	Ceiling sdkmath.LegacyDec `json:"ceiling"`
}

// Validate checks 1.0 < floor <= ceiling.
func (r ALRange) Validate() error {
	if r.Floor.IsNil() || r.Ceiling.IsNil() {
		return ErrInvalidALRange
	}
	if !r.Floor.GT(sdkmath.LegacyOneDec()) {
		return ErrInvalidALRange
	}
	if r.Floor.GT(r.Ceiling) {
		return ErrInvalidALRange
	}
	return nil
}

// Contains reports whether al sits inside the range, inclusive on both ends.
func (r ALRange) Contains(al sdkmath.LegacyDec) bool {
	return al.GTE(r.Floor) && al.LTE(r.Ceiling)
}

// Mid returns the midpoint of the range, the default rebalance target.
func (r ALRange) Mid() sdkmath.LegacyDec {
	return r.Floor.Add(r.Ceiling).QuoInt64(2)
}

// ContainsRange reports whether inner sits fully inside r. The rebalance
// range must sit inside the user range.
func (r ALRange) ContainsRange(inner ALRange) bool {
	return inner.Floor.GTE(r.Floor) && inner.Ceiling.LTE(r.Ceiling)
}

// RebalanceDownParams drives one leverage-increase: borrow debt (optionally
// flash-loan funded), swap it to collateral, supply. The executor reverts the
// whole sequence unless the post-trade A/L lands within [MinNewAL, MaxNewAL].
type RebalanceDownParams struct {
	SupplyAmount sdkmath.LegacyDec `json:"supply_amount"` // reserve token units
	BorrowAmount sdkmath.LegacyDec `json:"borrow_amount"` // debt token units
	SwapData     []byte            `json:"swap_data"`     // opaque router calldata
	RouterID     string            `json:"router_id"`
	MinNewAL     sdkmath.LegacyDec `json:"min_new_al"`
	MaxNewAL     sdkmath.LegacyDec `json:"max_new_al"`

	// When the swap buys more than SupplyAmount by over this threshold,
	// only the planned amount is supplied and the whole surplus stays in
	// the vault; smaller surpluses are supplied along with the plan.
	SupplyCollateralSurplusThreshold sdkmath.LegacyDec `json:"supply_collateral_surplus_threshold"`
}

// RebalanceUpParams drives one deleverage: flash loan debt token, repay,
// withdraw collateral, swap back to debt token, settle the flash loan.
type RebalanceUpParams struct {
	FlashLoanAmount  sdkmath.LegacyDec `json:"flash_loan_amount"` // debt token units
	WithdrawalAmount sdkmath.LegacyDec `json:"withdrawal_amount"` // reserve token units
	SwapData         []byte            `json:"swap_data"`
	RouterID         string            `json:"router_id"`
	MinNewAL         sdkmath.LegacyDec `json:"min_new_al"`
	MaxNewAL         sdkmath.LegacyDec `json:"max_new_al"`

	// Debt token received above the flash loan repayment plus this threshold
	// is used to repay extra debt rather than being left idle.
	RepaySurplusThreshold sdkmath.LegacyDec `json:"repay_surplus_threshold"`
}

// RebalanceResult reports the outcome of one executed rebalance.
type RebalanceResult struct {
	ALBefore      sdkmath.LegacyDec `json:"al_before"`
	ALAfter       sdkmath.LegacyDec `json:"al_after"`
	SuppliedDelta sdkmath.LegacyDec `json:"supplied_delta"` // reserve token units, signed
	BorrowedDelta sdkmath.LegacyDec `json:"borrowed_delta"` // debt token units, signed
}
