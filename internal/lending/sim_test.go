package lending

import (
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"
)

func dec(s string) sdkmath.LegacyDec {
	return sdkmath.LegacyMustNewDecFromStr(s)
}

func TestSimulatedMarketSupplyWithdraw(t *testing.T) {
	require := require.New(t)

	m := NewSimulatedMarket("test market", dec("1000"))

	require.NoError(m.Supply(dec("100")))
	supplied, err := m.SuppliedBalance()
	require.NoError(err)
	require.Equal(dec("100"), supplied)

	require.NoError(m.Withdraw(dec("40")))
	supplied, err = m.SuppliedBalance()
	require.NoError(err)
	require.Equal(dec("60"), supplied)

	// Withdrawing more than supplied fails and leaves balances untouched.
	err = m.Withdraw(dec("61"))
	require.ErrorIs(err, ErrInsufficientCollateral)
	supplied, err = m.SuppliedBalance()
	require.NoError(err)
	require.Equal(dec("60"), supplied)
}

func TestSimulatedMarketBorrowRepay(t *testing.T) {
	require := require.New(t)

	m := NewSimulatedMarket("test market", dec("100"))

	require.NoError(m.Borrow(dec("75")))
	debt, err := m.DebtBalance()
	require.NoError(err)
	require.Equal(dec("75"), debt)

	// Liquidity is consumed by the borrow.
	err = m.Borrow(dec("26"))
	require.ErrorIs(err, ErrInsufficientLiquidity)

	// Over-repaying caps at the outstanding debt.
	applied, err := m.Repay(dec("100"))
	require.NoError(err)
	require.Equal(dec("75"), applied)
	debt, err = m.DebtBalance()
	require.NoError(err)
	require.True(debt.IsZero())

	// Repayment restored liquidity.
	require.NoError(m.Borrow(dec("100")))
}

func TestSimulatedMarketRejectsNonPositive(t *testing.T) {
	require := require.New(t)

	m := NewSimulatedMarket("test market", dec("1000"))

	require.ErrorIs(m.Supply(dec("0")), ErrInvalidAmount)
	require.ErrorIs(m.Supply(sdkmath.LegacyDec{}), ErrInvalidAmount)
	require.ErrorIs(m.Withdraw(dec("-1")), ErrInvalidAmount)
	require.ErrorIs(m.Borrow(dec("0")), ErrInvalidAmount)
	_, err := m.Repay(dec("0"))
	require.ErrorIs(err, ErrInvalidAmount)
}

func TestSimulatedFlashLenderHappyPath(t *testing.T) {
	require := require.New(t)

	l := NewSimulatedFlashLender(dec("1000"), 9)

	var seen sdkmath.LegacyDec
	err := l.FlashLoan(dec("100"), func(loan sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
		seen = loan
		// 9 bps fee on 100 = 0.09.
		return dec("100.09"), nil
	})
	require.NoError(err)
	require.Equal(dec("100"), seen)
}

func TestSimulatedFlashLenderShortRepayment(t *testing.T) {
	require := require.New(t)

	l := NewSimulatedFlashLender(dec("1000"), 9)

	err := l.FlashLoan(dec("100"), func(loan sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
		return dec("100.08"), nil
	})
	require.ErrorIs(err, ErrFlashLoanNotRepaid)

	// Pool is restored; a full-size loan still fits.
	err = l.FlashLoan(dec("1000"), func(loan sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
		return dec("1000.9"), nil
	})
	require.NoError(err)
}

func TestSimulatedFlashLenderCallbackError(t *testing.T) {
	require := require.New(t)

	l := NewSimulatedFlashLender(dec("500"), 0)
	boom := errors.New("swap reverted")

	err := l.FlashLoan(dec("500"), func(loan sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
		return sdkmath.LegacyDec{}, boom
	})
	require.ErrorIs(err, boom)

	// Failed callback returned the liquidity.
	err = l.FlashLoan(dec("500"), func(loan sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
		return dec("500"), nil
	})
	require.NoError(err)
}

func TestSimulatedFlashLenderLiquidityCap(t *testing.T) {
	require := require.New(t)

	l := NewSimulatedFlashLender(dec("100"), 0)

	err := l.FlashLoan(dec("101"), func(loan sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
		return loan, nil
	})
	require.ErrorIs(err, ErrInsufficientLiquidity)
}
