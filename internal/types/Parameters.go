/*

This file contains the tunable vault parameters for a single lovToken
instance: fee configuration, A/L safety ranges and execution tolerances.
Different sets exist for different vaults and risk profiles.

*/

package types

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// VaultParameters holds all per-vault configuration used by the quote
// engine, rebalance executor and overlord loop.
type VaultParameters struct {
	TokenSymbol string `json:"token_symbol"` // e.g., "lov-wstETH-a"
	TokenName   string `json:"token_name"`

	// --- Fees ---
	// Applied fee is always max(min fee, dynamic fee from the fee curve).
	MinDepositFeeBps uint64 `json:"min_deposit_fee_bps"`
	MinExitFeeBps    uint64 `json:"min_exit_fee_bps"`
	// Peak dynamic fee in bps, charged when a trade would park the A/L at
	// the rebalance floor.
	FeeLeverageFactorBps uint64 `json:"fee_leverage_factor_bps"`
	PerformanceFeeBps    uint64 `json:"performance_fee_bps"`

	// --- A/L safety ranges ---
	// UserALRange is enforced on invest/exit. RebalanceALRange is the band
	// the overlord steers toward and must sit inside the user range.
	UserALRange      ALRange `json:"user_al_range"`
	RebalanceALRange ALRange `json:"rebalance_al_range"`

	// --- Execution tolerances ---
	// Swap slippage tolerance applied when building rebalance params.
	RebalanceSlippageBps uint64 `json:"rebalance_slippage_bps"`
	// Half-width of the [minNewAL, maxNewAL] acceptance band around the
	// rebalance target, in bps of the target.
	ALTargetToleranceBps uint64 `json:"al_target_tolerance_bps"`
	// How long a quote stays replayable.
	QuoteTTLSeconds uint64 `json:"quote_ttl_seconds"`

	// Deposits are refused once total shares would exceed this cap.
	// Zero means the vault is not accepting deposits.
	MaxTotalSupply sdkmath.LegacyDec `json:"max_total_supply"`
}

// Validate checks internal consistency of the parameter set.
func (p VaultParameters) Validate() error {
	if p.TokenSymbol == "" {
		return fmt.Errorf("token symbol cannot be empty")
	}
	if err := p.UserALRange.Validate(); err != nil {
		return fmt.Errorf("user A/L range: %w", err)
	}
	if err := p.RebalanceALRange.Validate(); err != nil {
		return fmt.Errorf("rebalance A/L range: %w", err)
	}
	if !p.UserALRange.ContainsRange(p.RebalanceALRange) {
		return fmt.Errorf("rebalance A/L range must sit inside the user A/L range")
	}
	if p.RebalanceSlippageBps >= 10_000 {
		return fmt.Errorf("rebalance slippage must be below 10000 bps")
	}
	if p.QuoteTTLSeconds == 0 {
		return fmt.Errorf("quote TTL cannot be zero")
	}
	return nil
}
