/*

This file contains in-memory implementations of the lending interfaces,
used by the simulation mode and the test suite. They model balances and
liquidity only; interest accrual and liquidation are the live market's
concern.

*/

package lending

import (
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
)

// SimulatedMarket is an in-memory borrow/lend market for one position.
type SimulatedMarket struct {
	mu          sync.Mutex
	description string
	supplied    sdkmath.LegacyDec
	debt        sdkmath.LegacyDec
	// liquidity caps how much debt token can be drawn in total.
	liquidity sdkmath.LegacyDec
}

func NewSimulatedMarket(description string, liquidity sdkmath.LegacyDec) *SimulatedMarket {
	return &SimulatedMarket{
		description: description,
		supplied:    sdkmath.LegacyZeroDec(),
		debt:        sdkmath.LegacyZeroDec(),
		liquidity:   liquidity,
	}
}

func (m *SimulatedMarket) MarketDescription() string {
	return m.description
}

func (m *SimulatedMarket) Supply(amount sdkmath.LegacyDec) error {
	if amount.IsNil() || !amount.IsPositive() {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.supplied = m.supplied.Add(amount)
	return nil
}

func (m *SimulatedMarket) Withdraw(amount sdkmath.LegacyDec) error {
	if amount.IsNil() || !amount.IsPositive() {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if amount.GT(m.supplied) {
		return fmt.Errorf("%w: have %s, want %s", ErrInsufficientCollateral, m.supplied, amount)
	}
	m.supplied = m.supplied.Sub(amount)
	return nil
}

func (m *SimulatedMarket) Borrow(amount sdkmath.LegacyDec) error {
	if amount.IsNil() || !amount.IsPositive() {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if amount.GT(m.liquidity) {
		return fmt.Errorf("%w: %s available, %s requested", ErrInsufficientLiquidity, m.liquidity, amount)
	}
	m.liquidity = m.liquidity.Sub(amount)
	m.debt = m.debt.Add(amount)
	return nil
}

func (m *SimulatedMarket) Repay(amount sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.LegacyDec{}, ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	applied := amount
	if applied.GT(m.debt) {
		applied = m.debt
	}
	m.debt = m.debt.Sub(applied)
	m.liquidity = m.liquidity.Add(applied)
	return applied, nil
}

func (m *SimulatedMarket) SuppliedBalance() (sdkmath.LegacyDec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.supplied, nil
}

func (m *SimulatedMarket) DebtBalance() (sdkmath.LegacyDec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debt, nil
}

// SetBalances overwrites the market state, for test setup.
func (m *SimulatedMarket) SetBalances(supplied, debt sdkmath.LegacyDec) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.supplied = supplied
	m.debt = debt
}

// SimulatedFlashLender lends from a fixed pool at a configurable fee.
type SimulatedFlashLender struct {
	mu        sync.Mutex
	liquidity sdkmath.LegacyDec
	feeBps    uint64
}

func NewSimulatedFlashLender(liquidity sdkmath.LegacyDec, feeBps uint64) *SimulatedFlashLender {
	return &SimulatedFlashLender{liquidity: liquidity, feeBps: feeBps}
}

func (l *SimulatedFlashLender) FlashLoan(amount sdkmath.LegacyDec, callback func(loan sdkmath.LegacyDec) (sdkmath.LegacyDec, error)) error {
	if amount.IsNil() || !amount.IsPositive() {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	if amount.GT(l.liquidity) {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s available, %s requested", ErrInsufficientLiquidity, l.liquidity, amount)
	}
	l.liquidity = l.liquidity.Sub(amount)
	l.mu.Unlock()

	owed := amount.MulInt64(int64(10_000 + l.feeBps)).QuoInt64(10_000)
	repayment, err := callback(amount)
	if err != nil {
		// Loan never happened: the callback failed atomically.
		l.mu.Lock()
		l.liquidity = l.liquidity.Add(amount)
		l.mu.Unlock()
		return err
	}
	if repayment.IsNil() || repayment.LT(owed) {
		l.mu.Lock()
		l.liquidity = l.liquidity.Add(amount)
		l.mu.Unlock()
		return fmt.Errorf("%w: owed %s, repaid %s", ErrFlashLoanNotRepaid, owed, repayment)
	}
	l.mu.Lock()
	l.liquidity = l.liquidity.Add(repayment)
	l.mu.Unlock()
	return nil
}
