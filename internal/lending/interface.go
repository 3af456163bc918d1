/*

This file defines the lending market surface the executor depends on. The
real collaterals live in Morpho/Aave/Spark/ZeroLend style markets; the core
only ever sees these interfaces.

*/

package lending

import (
	"errors"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrInsufficientLiquidity  = errors.New("market has insufficient liquidity")
	ErrInsufficientCollateral = errors.New("insufficient supplied collateral")
	ErrFlashLoanNotRepaid     = errors.New("flash loan was not repaid in full")
	ErrInvalidAmount          = errors.New("amount must be positive")
)

// Adapter abstracts one borrow/lend market for a single collateral/debt
// token pair.
type Adapter interface {
	// Supply adds collateral to the market.
	Supply(amount sdkmath.LegacyDec) error

	// Withdraw removes collateral from the market.
	Withdraw(amount sdkmath.LegacyDec) error

	// Borrow draws debt token from the market.
	Borrow(amount sdkmath.LegacyDec) error

	// Repay pays down debt, returning the amount actually applied (repaying
	// more than the outstanding debt is capped, not an error).
	Repay(amount sdkmath.LegacyDec) (sdkmath.LegacyDec, error)

	// SuppliedBalance returns the current supplied collateral.
	SuppliedBalance() (sdkmath.LegacyDec, error)

	// DebtBalance returns the current outstanding debt.
	DebtBalance() (sdkmath.LegacyDec, error)

	// MarketDescription identifies the market for logging.
	MarketDescription() string
}

// FlashLoanProvider lends debt token for the duration of one callback. The
// callback returns the repayment it hands back; anything short of the loan
// plus fee fails the whole loan.
type FlashLoanProvider interface {
	FlashLoan(amount sdkmath.LegacyDec, callback func(loan sdkmath.LegacyDec) (repayment sdkmath.LegacyDec, err error)) error
}
