/*

This file contains the default parameters for a wstETH/wETH leveraged vault.

These parameters are calibrated for production capital. Each value balances
keeping effective exposure high against the cost of forced rebalancing.

*/

package config

import (
	sdkmath "cosmossdk.io/math"

	"github.com/origami-labs/lovm/internal/types"
)

// DefaultVaultParameters provides a baseline parameter set for the vault.
// These values are used if no active parameters are found in the database
// during initialization.
var DefaultVaultParameters = types.VaultParameters{
	TokenSymbol: "lov-wstETH-a",
	TokenName:   "Origami lov-wstETH-a",

	// --- Fees ---
	MinDepositFeeBps: 10, // At least 0.10% on every deposit.
	// Rationale: deposits are cheap for the vault; the floor only needs to
	// deter deposit/withdraw churn around oracle updates.

	MinExitFeeBps: 150, // At least 1.50% on every exit.
	// Rationale: exits force the vault to unwind leverage at market. The
	// higher floor makes round-tripping the share price unprofitable.

	FeeLeverageFactorBps: 400,
	// Peak dynamic fee, charged when a trade would park the A/L at the
	// rebalance floor. 4% prices in the roughly 7x effective exposure the
	// position carries down there.

	PerformanceFeeBps: 500, // 5% of accrued yield.

	// --- A/L safety ranges ---
	// The effective exposure at A/L ratio r is r/(r-1): the user range below
	// spans roughly 3.3x to 6.5x.
	UserALRange: types.ALRange{
		Floor:   sdkmath.LegacyMustNewDecFromStr("1.1835"),
		Ceiling: sdkmath.LegacyMustNewDecFromStr("1.4286"),
	},
	// The rebalance range sits strictly inside the user range so the
	// overlord acts before user flows are ever blocked.
	RebalanceALRange: types.ALRange{
		Floor:   sdkmath.LegacyMustNewDecFromStr("1.1905"),
		Ceiling: sdkmath.LegacyMustNewDecFromStr("1.3334"),
	},

	// --- Execution tolerances ---
	RebalanceSlippageBps: 20, // Allow up to 0.20% swap slippage.
	// Rationale: wstETH/wETH is a deep, tightly correlated pair. A trade
	// that cannot fill within 20 bps should wait for the next cycle rather
	// than pay up.

	ALTargetToleranceBps: 100, // Accept landing within 1% of the target A/L.

	QuoteTTLSeconds: 600, // Quotes stay replayable for 10 minutes.

	MaxTotalSupply: sdkmath.LegacyNewDec(2_000_000),
	// Rationale: caps vault growth to what the underlying lending market
	// can absorb without moving borrow rates against existing holders.
}
