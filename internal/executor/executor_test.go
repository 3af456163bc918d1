package executor

import (
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/origami-labs/lovm/internal/lending"
	"github.com/origami-labs/lovm/internal/oracle"
	"github.com/origami-labs/lovm/internal/swap"
	"github.com/origami-labs/lovm/internal/types"
	"github.com/origami-labs/lovm/internal/vault"
)

const (
	swapAdmin    = "swap-admin"
	overlordKey  = "overlord-key"
	downRouterID = "sim-weth-wsteth"
	upRouterID   = "sim-wsteth-weth"
)

var (
	reserveWSTETH = types.Token{
		Symbol:   "wstETH",
		Address:  types.TokenAddress("0x7f39C581F595B53c5cb19bD0b3f8dA6c935E2Ca0"),
		Decimals: 18,
	}
	debtWETH = types.Token{
		Symbol:   "wETH",
		Address:  types.TokenAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"),
		Decimals: 18,
	}
)

func dec(s string) sdkmath.LegacyDec {
	return sdkmath.LegacyMustNewDecFromStr(s)
}

func testParams() types.VaultParameters {
	return types.VaultParameters{
		TokenSymbol:          "lov-wstETH-a",
		MinDepositFeeBps:     10,
		MinExitFeeBps:        150,
		FeeLeverageFactorBps: 400,
		UserALRange: types.ALRange{
			Floor:   dec("1.1835"),
			Ceiling: dec("1.4286"),
		},
		RebalanceALRange: types.ALRange{
			Floor:   dec("1.1905"),
			Ceiling: dec("1.3334"),
		},
		RebalanceSlippageBps: 20,
		ALTargetToleranceBps: 100,
		QuoteTTLSeconds:      600,
		MaxTotalSupply:       sdkmath.LegacyNewDec(2_000_000),
	}
}

type fixture struct {
	market     *lending.SimulatedMarket
	vault      *vault.LovVault
	routers    *swap.Whitelist
	downRouter *swap.SimulatedRouter
	upRouter   *swap.SimulatedRouter
	executor   *Executor
}

// newFixture wires an executor over a simulated market. The oracle prices
// 1 wETH at 0.8 wstETH; the routers fill at exactly the oracle cross rates
// (0.8 wstETH per wETH down, 1.25 wETH per wstETH up). The flash lender
// charges no fee, keeping the arithmetic exact.
func newFixture(t *testing.T) *fixture {
	source := oracle.NewStaticSource("wsteth/weth")
	source.SetSpotAndHistoric(dec("0.8"), dec("0.8"), time.Now())
	debtOracle := oracle.New(source, time.Hour, nil)

	market := lending.NewSimulatedMarket("sim market", dec("1000000"))

	v, err := vault.NewVault(vault.Config{
		Params:       testParams(),
		ReserveToken: reserveWSTETH,
		DebtToken:    debtWETH,
		Adapter:      market,
		DebtOracle:   debtOracle,
		AdminKey:     "vault-admin",
	})
	require.NoError(t, err)

	routers, err := swap.NewWhitelist(swapAdmin)
	require.NoError(t, err)
	downRouter := swap.NewSimulatedRouter(downRouterID, debtWETH.Address, reserveWSTETH.Address, dec("0.8"))
	upRouter := swap.NewSimulatedRouter(upRouterID, reserveWSTETH.Address, debtWETH.Address, dec("1.25"))
	require.NoError(t, routers.Register(swapAdmin, downRouter))
	require.NoError(t, routers.Register(swapAdmin, upRouter))
	require.NoError(t, routers.WhitelistRouter(swapAdmin, downRouterID, true))
	require.NoError(t, routers.WhitelistRouter(swapAdmin, upRouterID, true))

	ex, err := NewExecutor(Config{
		Vault:           v,
		Adapter:         market,
		FlashLender:     lending.NewSimulatedFlashLender(dec("1000000"), 0),
		FlashLoanFeeBps: 0,
		Routers:         routers,
		OverlordKey:     overlordKey,
	})
	require.NoError(t, err)

	return &fixture{market: market, vault: v, routers: routers, downRouter: downRouter, upRouter: upRouter, executor: ex}
}

func (f *fixture) downParams(t *testing.T, borrow, supply string) types.RebalanceDownParams {
	_, data, err := f.downRouter.Quote(dec(borrow))
	require.NoError(t, err)
	return types.RebalanceDownParams{
		SupplyAmount:                     dec(supply),
		BorrowAmount:                     dec(borrow),
		SwapData:                         data,
		RouterID:                         downRouterID,
		MinNewAL:                         dec("1.19"),
		MaxNewAL:                         dec("1.22"),
		SupplyCollateralSurplusThreshold: dec("0.1"),
	}
}

func (f *fixture) upParams(t *testing.T, flashLoan, withdrawal string) types.RebalanceUpParams {
	_, data, err := f.upRouter.Quote(dec(withdrawal))
	require.NoError(t, err)
	return types.RebalanceUpParams{
		FlashLoanAmount:       dec(flashLoan),
		WithdrawalAmount:      dec(withdrawal),
		SwapData:              data,
		RouterID:              upRouterID,
		MinNewAL:              dec("1.19"),
		MaxNewAL:              dec("1.25"),
		RepaySurplusThreshold: dec("1"),
	}
}

func (f *fixture) position(t *testing.T) types.Position {
	pos, err := f.vault.Position()
	require.NoError(t, err)
	return pos
}

func TestRebalanceDownHappyPath(t *testing.T) {
	require := require.New(t)

	f := newFixture(t)
	// A/L 1.25: 500 supplied against 500 wETH (400 wstETH) of debt.
	f.market.SetBalances(dec("500"), dec("500"))

	// Borrow 100 wETH, swap at 0.8 and supply the 80 wstETH bought:
	// (500+80) / (0.8 * 600) = 1.2083, inside [1.19, 1.22].
	result, err := f.executor.RebalanceDown(overlordKey, f.downParams(t, "100", "80"))
	require.NoError(err)

	require.Equal(dec("1.25"), result.ALBefore)
	require.Equal(dec("580").Quo(dec("480")), result.ALAfter)
	require.Equal(dec("80"), result.SuppliedDelta)
	require.Equal(dec("100"), result.BorrowedDelta)

	pos := f.position(t)
	require.Equal(dec("580"), pos.SuppliedAmount)
	require.Equal(dec("600"), pos.BorrowedAmount)
}

func TestRebalanceDownFirstLeverage(t *testing.T) {
	require := require.New(t)

	f := newFixture(t)
	// Debt-free vault straight after bootstrap deposits.
	f.market.SetBalances(dec("100"), sdkmath.LegacyZeroDec())

	// Borrow 400 wETH, supply the 320 wstETH bought:
	// 420 / (0.8 * 400) = 1.3125.
	params := f.downParams(t, "400", "320")
	params.MinNewAL = dec("1.30")
	params.MaxNewAL = dec("1.32")

	result, err := f.executor.RebalanceDown(overlordKey, params)
	require.NoError(err)
	require.True(result.ALBefore.IsZero())
	require.Equal(dec("420").Quo(dec("320")), result.ALAfter)
}

func TestRebalanceDownUnauthorized(t *testing.T) {
	require := require.New(t)

	f := newFixture(t)
	f.market.SetBalances(dec("500"), dec("500"))

	_, err := f.executor.RebalanceDown("intruder", f.downParams(t, "100", "80"))
	require.ErrorIs(err, types.ErrUnauthorized)
	require.Equal(dec("500"), f.position(t).SuppliedAmount)
}

func TestRebalanceDownUnverifiedRouter(t *testing.T) {
	require := require.New(t)

	f := newFixture(t)
	f.market.SetBalances(dec("500"), dec("500"))

	params := f.downParams(t, "100", "80")
	params.RouterID = "not-on-the-list"
	_, err := f.executor.RebalanceDown(overlordKey, params)
	require.ErrorIs(err, swap.ErrUnverifiedRouter)
}

func TestRebalanceDownInvalidParams(t *testing.T) {
	require := require.New(t)

	f := newFixture(t)
	f.market.SetBalances(dec("500"), dec("500"))

	params := f.downParams(t, "100", "80")
	params.MinNewAL = dec("0.9")
	_, err := f.executor.RebalanceDown(overlordKey, params)
	require.ErrorIs(err, ErrInvalidRebalance)

	params = f.downParams(t, "100", "80")
	params.MaxNewAL = dec("1.19")
	params.MinNewAL = dec("1.22")
	_, err = f.executor.RebalanceDown(overlordKey, params)
	require.ErrorIs(err, ErrInvalidRebalance)

	params = f.downParams(t, "100", "80")
	params.BorrowAmount = sdkmath.LegacyZeroDec()
	_, err = f.executor.RebalanceDown(overlordKey, params)
	require.ErrorIs(err, ErrInvalidRebalance)
}

func TestRebalanceDownBandViolationLeavesPositionUntouched(t *testing.T) {
	require := require.New(t)

	f := newFixture(t)
	f.market.SetBalances(dec("500"), dec("500"))

	// Borrowing 300 projects (500+240) / (0.8*800) = 1.15625, below the
	// band floor. The refusal must happen before any market mutation.
	_, err := f.executor.RebalanceDown(overlordKey, f.downParams(t, "300", "240"))
	require.ErrorIs(err, types.ErrALOutOfBounds)

	pos := f.position(t)
	require.Equal(dec("500"), pos.SuppliedAmount)
	require.Equal(dec("500"), pos.BorrowedAmount)
}

func TestRebalanceDownSwapShortfall(t *testing.T) {
	require := require.New(t)

	f := newFixture(t)
	f.market.SetBalances(dec("500"), dec("500"))

	// 100 wETH only buys 80 wstETH; a plan needing 85 cannot be funded.
	_, err := f.executor.RebalanceDown(overlordKey, f.downParams(t, "100", "85"))
	require.ErrorIs(err, ErrSwapShortfall)
	require.Equal(dec("500"), f.position(t).SuppliedAmount)
}

func TestRebalanceDownSurplusCapsAtPlan(t *testing.T) {
	require := require.New(t)

	f := newFixture(t)
	f.market.SetBalances(dec("500"), dec("500"))

	// The router fills at 0.9 instead of 0.8: 90 bought against a plan of
	// 80. The surplus exceeds the threshold, so only the planned 80 is
	// supplied and the position lands where the plan aimed.
	f.downRouter.SetPrice(dec("0.9"))
	result, err := f.executor.RebalanceDown(overlordKey, f.downParams(t, "100", "80"))
	require.NoError(err)
	require.Equal(dec("80"), result.SuppliedDelta)
	require.Equal(dec("580"), f.position(t).SuppliedAmount)
}

func TestRebalanceDownMustAddLeverage(t *testing.T) {
	require := require.New(t)

	f := newFixture(t)
	f.market.SetBalances(dec("500"), dec("500"))

	// An absurdly good fill (1.2 wstETH per wETH) would raise the A/L
	// instead of lowering it. Widen the band so only the direction check
	// can catch it.
	f.downRouter.SetPrice(dec("1.2"))
	params := f.downParams(t, "100", "80")
	params.SupplyCollateralSurplusThreshold = dec("1000")
	params.MaxNewAL = dec("1.30")
	_, err := f.executor.RebalanceDown(overlordKey, params)
	require.ErrorIs(err, types.ErrALOutOfBounds)
	require.Equal(dec("500"), f.position(t).SuppliedAmount)
}

func TestRebalanceUpHappyPath(t *testing.T) {
	require := require.New(t)

	f := newFixture(t)
	// A/L 1.1: 440 supplied against 500 wETH (400 wstETH) of debt.
	f.market.SetBalances(dec("440"), dec("500"))

	// Flash loan 150 wETH, withdraw 200 wstETH, swap at 1.25 for 250 wETH:
	// 150 repays the loan leg, the 100 surplus repays extra debt.
	// (440-200) / (0.8 * (500-250)) = 1.2.
	result, err := f.executor.RebalanceUp(overlordKey, f.upParams(t, "150", "200"))
	require.NoError(err)

	require.Equal(dec("1.1"), result.ALBefore)
	require.Equal(dec("1.2"), result.ALAfter)
	require.Equal(dec("-200"), result.SuppliedDelta)
	require.Equal(dec("-250"), result.BorrowedDelta)

	pos := f.position(t)
	require.Equal(dec("240"), pos.SuppliedAmount)
	require.Equal(dec("250"), pos.BorrowedAmount)
}

func TestRebalanceUpRequiresDebt(t *testing.T) {
	require := require.New(t)

	f := newFixture(t)
	f.market.SetBalances(dec("440"), sdkmath.LegacyZeroDec())

	_, err := f.executor.RebalanceUp(overlordKey, f.upParams(t, "150", "200"))
	require.ErrorIs(err, ErrNoDebtToUnwind)
}

func TestRebalanceUpUnauthorized(t *testing.T) {
	require := require.New(t)

	f := newFixture(t)
	f.market.SetBalances(dec("440"), dec("500"))

	_, err := f.executor.RebalanceUp("intruder", f.upParams(t, "150", "200"))
	require.ErrorIs(err, types.ErrUnauthorized)
}

func TestRebalanceUpSwapShortfall(t *testing.T) {
	require := require.New(t)

	f := newFixture(t)
	f.market.SetBalances(dec("440"), dec("500"))

	// Withdrawing 200 yields 250 wETH, short of a 300 wETH flash loan.
	_, err := f.executor.RebalanceUp(overlordKey, f.upParams(t, "300", "200"))
	require.ErrorIs(err, ErrSwapShortfall)

	pos := f.position(t)
	require.Equal(dec("440"), pos.SuppliedAmount)
	require.Equal(dec("500"), pos.BorrowedAmount)
}

func TestRebalanceUpBandViolationLeavesPositionUntouched(t *testing.T) {
	require := require.New(t)

	f := newFixture(t)
	f.market.SetBalances(dec("440"), dec("500"))

	// Withdrawing only 100 projects (440-100) / (0.8 * (500-125)) = 1.1333,
	// still below the band floor.
	_, err := f.executor.RebalanceUp(overlordKey, f.upParams(t, "100", "100"))
	require.ErrorIs(err, types.ErrALOutOfBounds)

	pos := f.position(t)
	require.Equal(dec("440"), pos.SuppliedAmount)
	require.Equal(dec("500"), pos.BorrowedAmount)
}

func TestRebalanceUpFlashFeeMismatchRollsBack(t *testing.T) {
	require := require.New(t)

	f := newFixture(t)
	f.market.SetBalances(dec("440"), dec("500"))

	// The lender actually charges 50 bps while the executor is configured
	// for a free loan. The swap's 250 wETH covers the executor's view of
	// the repayment, so every leg commits; the lender then rejects the
	// settlement (250 returned against 251.25 owed) and the committed legs
	// must unwind.
	ex, err := NewExecutor(Config{
		Vault:           f.vault,
		Adapter:         f.market,
		FlashLender:     lending.NewSimulatedFlashLender(dec("1000000"), 50),
		FlashLoanFeeBps: 0,
		Routers:         f.routers,
		OverlordKey:     overlordKey,
	})
	require.NoError(err)

	_, err = ex.RebalanceUp(overlordKey, f.upParams(t, "250", "200"))
	require.ErrorIs(err, lending.ErrFlashLoanNotRepaid)

	pos := f.position(t)
	require.Equal(dec("440"), pos.SuppliedAmount)
	require.Equal(dec("500"), pos.BorrowedAmount)
}

// failingMarket wraps the simulated market and fails Withdraw on demand, to
// force a mid-commit failure inside the flash loan callback.
type failingMarket struct {
	*lending.SimulatedMarket
	failWithdraw bool
}

var errWithdrawUnavailable = errors.New("withdraw unavailable")

func (m *failingMarket) Withdraw(amount sdkmath.LegacyDec) error {
	if m.failWithdraw {
		return errWithdrawUnavailable
	}
	return m.SimulatedMarket.Withdraw(amount)
}

func TestRebalanceUpFlashLoanAtomicRollback(t *testing.T) {
	require := require.New(t)

	source := oracle.NewStaticSource("wsteth/weth")
	source.SetSpotAndHistoric(dec("0.8"), dec("0.8"), time.Now())
	debtOracle := oracle.New(source, time.Hour, nil)

	market := &failingMarket{SimulatedMarket: lending.NewSimulatedMarket("sim market", dec("1000000"))}
	market.SetBalances(dec("440"), dec("500"))

	v, err := vault.NewVault(vault.Config{
		Params:       testParams(),
		ReserveToken: reserveWSTETH,
		DebtToken:    debtWETH,
		Adapter:      market,
		DebtOracle:   debtOracle,
		AdminKey:     "vault-admin",
	})
	require.NoError(err)

	routers, err := swap.NewWhitelist(swapAdmin)
	require.NoError(err)
	upRouter := swap.NewSimulatedRouter(upRouterID, reserveWSTETH.Address, debtWETH.Address, dec("1.25"))
	require.NoError(routers.Register(swapAdmin, upRouter))
	require.NoError(routers.WhitelistRouter(swapAdmin, upRouterID, true))

	ex, err := NewExecutor(Config{
		Vault:       v,
		Adapter:     market,
		FlashLender: lending.NewSimulatedFlashLender(dec("1000000"), 0),
		Routers:     routers,
		OverlordKey: overlordKey,
	})
	require.NoError(err)

	_, data, err := upRouter.Quote(dec("200"))
	require.NoError(err)
	market.failWithdraw = true

	_, err = ex.RebalanceUp(overlordKey, types.RebalanceUpParams{
		FlashLoanAmount:       dec("150"),
		WithdrawalAmount:      dec("200"),
		SwapData:              data,
		RouterID:              upRouterID,
		MinNewAL:              dec("1.19"),
		MaxNewAL:              dec("1.25"),
		RepaySurplusThreshold: dec("1"),
	})
	require.ErrorIs(err, errWithdrawUnavailable)

	// The repaid leg was re-borrowed and the loan failed atomically: the
	// position is exactly where it started.
	supplied, err := market.SuppliedBalance()
	require.NoError(err)
	debt, err := market.DebtBalance()
	require.NoError(err)
	require.Equal(dec("440"), supplied)
	require.Equal(dec("500"), debt)
}
