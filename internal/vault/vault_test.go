package vault

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/origami-labs/lovm/internal/fees"
	"github.com/origami-labs/lovm/internal/lending"
	"github.com/origami-labs/lovm/internal/oracle"
	"github.com/origami-labs/lovm/internal/prices"
	"github.com/origami-labs/lovm/internal/quote"
	"github.com/origami-labs/lovm/internal/types"
)

const vaultAdmin = "vault-admin"

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

// testClock is a settable clock shared by the vault, oracle and engine.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

type fixture struct {
	clock  *testClock
	market *lending.SimulatedMarket
	source *oracle.StaticSource
	vault  *LovVault
	engine *quote.Engine
}

// newFixture builds a vault over a simulated market. The debt oracle prices
// wETH in wstETH terms at 0.8, so 1 wETH of debt weighs 0.8 wstETH.
func newFixture(t *testing.T, params types.VaultParameters) *fixture {
	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}

	source := oracle.NewStaticSource("wsteth/weth")
	source.SetSpotAndHistoric(dec("0.8"), dec("0.8"), clock.now)
	debtOracle := oracle.New(source, 15*time.Minute, clock.Now)

	market := lending.NewSimulatedMarket("sim market", dec("1000000"))

	v, err := NewVault(Config{
		Params:       params,
		ReserveToken: reserveWSTETH,
		DebtToken:    debtWETH,
		Adapter:      market,
		DebtOracle:   debtOracle,
		AdminKey:     vaultAdmin,
		Clock:        clock.Now,
	})
	require.NoError(t, err)

	engine, err := quote.NewEngine(quote.Config{
		Vault: v,
		Curve: fees.LeverageProximityCurve{},
		Clock: clock.Now,
	})
	require.NoError(t, err)

	return &fixture{clock: clock, market: market, source: source, vault: v, engine: engine}
}

func (f *fixture) invest(t *testing.T, amount string, slippageBps uint64) sdkmath.LegacyDec {
	q, err := f.engine.InvestQuote(dec(amount), reserveWSTETH.Address, slippageBps, time.Time{})
	require.NoError(t, err)
	shares, err := f.vault.InvestWithToken(q.EncodedQuoteData)
	require.NoError(t, err)
	return shares
}

func TestSharePriceAtGenesis(t *testing.T) {
	require := require.New(t)

	f := newFixture(t, testParams())
	price, err := f.vault.SharePrice()
	require.NoError(err)
	require.Equal(sdkmath.LegacyOneDec(), price)

	assets, err := f.vault.ConvertToAssets(dec("5"))
	require.NoError(err)
	require.Equal(dec("5"), assets)
	require.Equal(reserveWSTETH.Address, f.vault.Asset())
}

func TestInvestBootstrapsDebtFreeVault(t *testing.T) {
	require := require.New(t)

	f := newFixture(t, testParams())
	shares := f.invest(t, "100", 0)

	// 10 bps deposit fee at share price 1: 99.9 shares for 100 wstETH.
	require.Equal(dec("99.9"), shares)
	require.Equal(dec("99.9"), f.vault.TotalSupply())

	// The full deposit went in as collateral; the fee accrues to holders
	// through a share price above one.
	pos, err := f.vault.Position()
	require.NoError(err)
	require.Equal(dec("100"), pos.SuppliedAmount)

	price, err := f.vault.SharePrice()
	require.NoError(err)
	require.True(price.GT(sdkmath.LegacyOneDec()))
}

func TestInvestRefusedOverUserCeiling(t *testing.T) {
	require := require.New(t)

	f := newFixture(t, testParams())
	f.invest(t, "100", 0)

	// Leveraged position at A/L 1.4: 560 supplied, 500 wETH debt = 400
	// wstETH of liabilities.
	f.market.SetBalances(dec("560"), dec("500"))
	supplyBefore := f.vault.TotalSupply()

	q, err := f.engine.InvestQuote(dec("100"), reserveWSTETH.Address, 0, time.Time{})
	require.NoError(err)
	_, err = f.vault.InvestWithToken(q.EncodedQuoteData)
	require.ErrorIs(err, types.ErrALOutOfBounds)

	// The refused deposit was unwound.
	pos, err := f.vault.Position()
	require.NoError(err)
	require.Equal(dec("560"), pos.SuppliedAmount)
	require.Equal(supplyBefore, f.vault.TotalSupply())
}

func TestMaxInvestRespectsUserCeiling(t *testing.T) {
	require := require.New(t)

	f := newFixture(t, testParams())
	f.invest(t, "100", 0)
	f.market.SetBalances(dec("560"), dec("500"))

	maxInvest, err := f.vault.MaxInvest()
	require.NoError(err)

	// Collateral addable before A/L reaches 1.4286: 1.4286*400 - 560.
	require.Equal(dec("11.44"), maxInvest)
}

func TestMaxInvestSupplyCapBound(t *testing.T) {
	require := require.New(t)

	params := testParams()
	params.MaxTotalSupply = sdkmath.LegacyNewDec(100)
	f := newFixture(t, params)
	f.invest(t, "60", 0)

	// Debt free, so only the cap binds: headroom in shares times the share
	// price.
	maxInvest, err := f.vault.MaxInvest()
	require.NoError(err)
	sharePrice, err := f.vault.SharePrice()
	require.NoError(err)
	headroom := sdkmath.LegacyNewDec(100).Sub(f.vault.TotalSupply())
	require.Equal(headroom.MulTruncate(sharePrice), maxInvest)
}

func TestInvestRefusedOverSupplyCap(t *testing.T) {
	require := require.New(t)

	params := testParams()
	params.MaxTotalSupply = sdkmath.LegacyNewDec(100)
	f := newFixture(t, params)

	q, err := f.engine.InvestQuote(dec("150"), reserveWSTETH.Address, 0, time.Time{})
	require.NoError(err)
	_, err = f.vault.InvestWithToken(q.EncodedQuoteData)
	require.ErrorIs(err, ErrSupplyCapExceeded)

	// Refused before touching the market.
	pos, err := f.vault.Position()
	require.NoError(err)
	require.True(pos.SuppliedAmount.IsZero())
}

func TestInvestReplayFailsSlippage(t *testing.T) {
	require := require.New(t)

	f := newFixture(t, testParams())

	q, err := f.engine.InvestQuote(dec("100"), reserveWSTETH.Address, 0, time.Time{})
	require.NoError(err)

	// First execution fills at exactly the quoted terms.
	_, err = f.vault.InvestWithToken(q.EncodedQuoteData)
	require.NoError(err)

	// The share price is now above one, so replaying the same payload mints
	// fewer shares than the embedded minimum.
	_, err = f.vault.InvestWithToken(q.EncodedQuoteData)
	require.ErrorIs(err, ErrSlippageExceeded)
}

func TestInvestExpiredQuote(t *testing.T) {
	require := require.New(t)

	f := newFixture(t, testParams())

	q, err := f.engine.InvestQuote(dec("100"), reserveWSTETH.Address, 0, time.Time{})
	require.NoError(err)

	f.clock.now = f.clock.now.Add(11 * time.Minute)
	_, err = f.vault.InvestWithToken(q.EncodedQuoteData)
	require.ErrorIs(err, quote.ErrQuoteExpired)
}

func TestExitHappyPath(t *testing.T) {
	require := require.New(t)

	f := newFixture(t, testParams())
	shares := f.invest(t, "100", 0)

	q, err := f.engine.ExitQuote(dec("50"), reserveWSTETH.Address, 0, time.Time{})
	require.NoError(err)
	amountOut, err := f.vault.ExitToToken(q.EncodedQuoteData)
	require.NoError(err)
	require.Equal(q.ExpectedToTokenAmount, amountOut)

	require.Equal(shares.Sub(dec("50")), f.vault.TotalSupply())

	// Only the post-fee amount left the position.
	pos, err := f.vault.Position()
	require.NoError(err)
	require.Equal(dec("100").Sub(amountOut), pos.SuppliedAmount)
}

func TestExitRefusedBelowUserFloor(t *testing.T) {
	require := require.New(t)

	f := newFixture(t, testParams())
	f.invest(t, "100", 0)

	// A/L 1.25: 500 supplied, 400 wstETH of liabilities.
	f.market.SetBalances(dec("500"), dec("500"))
	supplyBefore := f.vault.TotalSupply()

	// A 60 share exit withdraws enough collateral to push A/L below 1.1835.
	q, err := f.engine.ExitQuote(dec("60"), reserveWSTETH.Address, 0, time.Time{})
	require.NoError(err)
	_, err = f.vault.ExitToToken(q.EncodedQuoteData)
	require.ErrorIs(err, types.ErrALOutOfBounds)

	// The refused withdrawal was unwound.
	pos, err := f.vault.Position()
	require.NoError(err)
	require.Equal(dec("500"), pos.SuppliedAmount)
	require.Equal(supplyBefore, f.vault.TotalSupply())
}

func TestExitMoreThanSupply(t *testing.T) {
	require := require.New(t)

	f := newFixture(t, testParams())
	f.invest(t, "100", 0)

	q, err := f.engine.ExitQuote(dec("200"), reserveWSTETH.Address, 0, time.Time{})
	require.NoError(err)
	_, err = f.vault.ExitToToken(q.EncodedQuoteData)
	require.ErrorIs(err, ErrInsufficientShares)
}

func TestMaxExit(t *testing.T) {
	require := require.New(t)

	f := newFixture(t, testParams())
	f.invest(t, "100", 0)

	// Debt free: everything is redeemable.
	maxExit, err := f.vault.MaxExit()
	require.NoError(err)
	require.Equal(f.vault.TotalSupply(), maxExit)

	// A/L 1.25: only the collateral above floor*liabilities may leave.
	f.market.SetBalances(dec("500"), dec("500"))
	maxExit, err = f.vault.MaxExit()
	require.NoError(err)

	sharePrice, err := f.vault.SharePrice()
	require.NoError(err)
	removable := dec("500").Sub(dec("1.1835").Mul(dec("400")))
	require.Equal(removable.Quo(sharePrice), maxExit)
	require.True(maxExit.LT(f.vault.TotalSupply()))
}

func TestAssetToLiabilityRatio(t *testing.T) {
	require := require.New(t)

	f := newFixture(t, testParams())

	// No debt: the ratio is meaningless.
	f.market.SetBalances(dec("100"), sdkmath.LegacyZeroDec())
	_, hasDebt, err := f.vault.AssetToLiabilityRatio(types.SpotPrice)
	require.NoError(err)
	require.False(hasDebt)

	// 500 wETH of debt at 0.8 = 400 wstETH of liabilities.
	f.market.SetBalances(dec("500"), dec("500"))
	al, hasDebt, err := f.vault.AssetToLiabilityRatio(types.SpotPrice)
	require.NoError(err)
	require.True(hasDebt)
	require.Equal(dec("1.25"), al)
}

func TestProjectedALAfter(t *testing.T) {
	require := require.New(t)

	f := newFixture(t, testParams())
	f.market.SetBalances(dec("500"), dec("500"))

	// Supplying 60 more against 50 more wETH of debt: 560 / 440.
	al, hasDebt, err := f.vault.ProjectedALAfter(dec("60"), dec("50"), types.SpotPrice)
	require.NoError(err)
	require.True(hasDebt)
	require.Equal(dec("560").Quo(dec("440")), al)

	// Unwinding all debt leaves no ratio.
	_, hasDebt, err = f.vault.ProjectedALAfter(sdkmath.LegacyZeroDec(), dec("-500"), types.SpotPrice)
	require.NoError(err)
	require.False(hasDebt)
}

func TestSharePriceInsolvent(t *testing.T) {
	require := require.New(t)

	f := newFixture(t, testParams())
	f.invest(t, "100", 0)

	// 200 wETH of debt = 160 wstETH of liabilities against 100 supplied.
	f.market.SetBalances(dec("100"), dec("200"))
	_, err := f.vault.SharePrice()
	require.ErrorIs(err, ErrVaultInsolvent)
}

func TestSetTokenPrices(t *testing.T) {
	require := require.New(t)

	f := newFixture(t, testParams())

	v1, err := prices.NewRegistry(prices.Config{Version: 1, AdminKey: "registry-admin"})
	require.NoError(err)
	v2, err := prices.NewRegistry(prices.Config{Version: 2, AdminKey: "registry-admin"})
	require.NoError(err)

	require.NoError(f.vault.SetTokenPrices(vaultAdmin, v1))
	require.Equal(1, f.vault.TokenPrices().Version())

	require.ErrorIs(f.vault.SetTokenPrices("intruder", v2), types.ErrUnauthorized)
	require.Equal(1, f.vault.TokenPrices().Version())

	require.NoError(f.vault.SetTokenPrices(vaultAdmin, v2))
	require.Equal(2, f.vault.TokenPrices().Version())

	require.Error(f.vault.SetTokenPrices(vaultAdmin, nil))
}

func TestOracleOutageBlocksValuation(t *testing.T) {
	require := require.New(t)

	f := newFixture(t, testParams())
	f.invest(t, "100", 0)
	f.market.SetBalances(dec("500"), dec("500"))

	// Let the round go stale.
	f.clock.now = f.clock.now.Add(20 * time.Minute)

	_, _, err := f.vault.AssetsAndLiabilities(types.SpotPrice)
	require.ErrorIs(err, oracle.ErrStalePrice)
	_, err = f.vault.SharePrice()
	require.ErrorIs(err, oracle.ErrStalePrice)
}
