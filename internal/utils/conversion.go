/*
This file contains common utility functions for fixed-point conversions:
scaling raw token amounts across native decimals, and basis point math
shared by the solver, quote engine and executor.
*/

package utils

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"

	"github.com/origami-labs/lovm/internal/types"
)

// MaxBps is the basis point denominator: 10000 bps == 100%.
const MaxBps = 10_000

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidDecimals = errors.New("token decimals are invalid")
	ErrAmountNil       = errors.New("amount is nil")
	ErrAmountNegative  = errors.New("amount is negative")
	ErrInvalidBps      = errors.New("basis points out of range")
)

// RawToDec converts a raw token amount (native decimals) into an 18-decimal
// fixed point value. This is the explicit decimal-scaling step required
// before any cross-token arithmetic.
func RawToDec(amount sdkmath.Int, decimals int) (sdkmath.LegacyDec, error) {
	if decimals < 0 || decimals > 18 {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidDecimals, decimals)
	}
	if amount.IsNil() {
		return sdkmath.LegacyDec{}, ErrAmountNil
	}
	if amount.IsNegative() {
		return sdkmath.LegacyDec{}, ErrAmountNegative
	}

	factor := sdkmath.LegacyNewDec(10).Power(uint64(decimals))
	return sdkmath.LegacyNewDecFromInt(amount).Quo(factor), nil
}

// DecToRaw converts an 18-decimal fixed point value back into a raw token
// amount at the token's native decimals, truncating or ceiling per the
// rounding mode.
func DecToRaw(amount sdkmath.LegacyDec, decimals int, rounding types.RoundingMode) (sdkmath.Int, error) {
	if decimals < 0 || decimals > 18 {
		return sdkmath.Int{}, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidDecimals, decimals)
	}
	if amount.IsNil() {
		return sdkmath.Int{}, ErrAmountNil
	}
	if amount.IsNegative() {
		return sdkmath.Int{}, ErrAmountNegative
	}

	factor := sdkmath.LegacyNewDec(10).Power(uint64(decimals))
	scaled := amount.Mul(factor)
	if rounding == types.RoundUp {
		return scaled.Ceil().TruncateInt(), nil
	}
	return scaled.TruncateInt(), nil
}

// SubtractBps reduces amount by bps: amount * (10000 - bps) / 10000.
func SubtractBps(amount sdkmath.LegacyDec, bps uint64) (sdkmath.LegacyDec, error) {
	if bps > MaxBps {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %d", ErrInvalidBps, bps)
	}
	return amount.MulInt64(MaxBps - int64(bps)).QuoInt64(MaxBps), nil
}

// AddBps increases amount by bps: amount * (10000 + bps) / 10000.
func AddBps(amount sdkmath.LegacyDec, bps uint64) (sdkmath.LegacyDec, error) {
	if bps > MaxBps {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %d", ErrInvalidBps, bps)
	}
	return amount.MulInt64(MaxBps + int64(bps)).QuoInt64(MaxBps), nil
}

// InverseSubtractBps answers: what amount, after subtracting bps, leaves
// remainder? remainder * 10000 / (10000 - bps). Used to inflate a borrow so
// the post-slippage swap output still covers the required collateral.
func InverseSubtractBps(remainder sdkmath.LegacyDec, bps uint64) (sdkmath.LegacyDec, error) {
	if bps >= MaxBps {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %d", ErrInvalidBps, bps)
	}
	return remainder.MulInt64(MaxBps).QuoInt64(MaxBps - int64(bps)), nil
}
