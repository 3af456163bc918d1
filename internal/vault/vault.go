/*

This file contains the lovToken vault: the single owner of the leveraged
position and the share supply. All reads value the position through the
debt oracle and all user flows (invest, exit) replay quote payloads built
by the quote engine, re-checking deadline, minimums and the user A/L range
at execution time.

*/

package vault

import (
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/origami-labs/lovm/internal/lending"
	"github.com/origami-labs/lovm/internal/logger"
	"github.com/origami-labs/lovm/internal/oracle"
	"github.com/origami-labs/lovm/internal/prices"
	"github.com/origami-labs/lovm/internal/quote"
	"github.com/origami-labs/lovm/internal/types"
	"github.com/origami-labs/lovm/internal/utils"
)

var (
	ErrSupplyCapExceeded  = errors.New("deposit would exceed the max total supply")
	ErrSlippageExceeded   = errors.New("execution fell below the quoted minimum")
	ErrInsufficientShares = errors.New("exit exceeds the outstanding share supply")
	ErrVaultInsolvent     = errors.New("vault liabilities exceed assets")
)

// Config holds the dependencies for creating a LovVault.
type Config struct {
	Params       types.VaultParameters
	ReserveToken types.Token
	DebtToken    types.Token

	// Adapter is the borrow/lend market holding the position. Its balances
	// are the source of truth; the vault never caches them.
	Adapter lending.Adapter

	// DebtOracle prices one debt token in reserve token terms.
	DebtOracle *oracle.Oracle

	// Registry is the composable price registry the vault reports its share
	// price into. Swappable at runtime via SetTokenPrices.
	Registry *prices.Registry

	AdminKey string
	Clock    func() time.Time
}

// LovVault owns one leveraged position and its lovToken share supply.
type LovVault struct {
	mu          sync.Mutex
	params      types.VaultParameters
	reserve     types.Token
	debt        types.Token
	adapter     lending.Adapter
	debtOracle  *oracle.Oracle
	registry    *prices.Registry
	totalSupply sdkmath.LegacyDec
	admin       string
	now         func() time.Time
	logger      zerolog.Logger
}

func NewVault(cfg Config) (*LovVault, error) {
	if err := cfg.Params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid vault parameters: %w", err)
	}
	if cfg.Adapter == nil {
		return nil, fmt.Errorf("lending adapter cannot be nil")
	}
	if cfg.DebtOracle == nil {
		return nil, fmt.Errorf("debt oracle cannot be nil")
	}
	if cfg.AdminKey == "" {
		return nil, fmt.Errorf("admin key cannot be empty")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &LovVault{
		params:      cfg.Params,
		reserve:     cfg.ReserveToken,
		debt:        cfg.DebtToken,
		adapter:     cfg.Adapter,
		debtOracle:  cfg.DebtOracle,
		registry:    cfg.Registry,
		totalSupply: sdkmath.LegacyZeroDec(),
		admin:       cfg.AdminKey,
		now:         clock,
		logger:      logger.GetForComponent("vault"),
	}, nil
}

func (v *LovVault) Params() types.VaultParameters {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.params
}

func (v *LovVault) ReserveToken() types.Token {
	return v.reserve
}

func (v *LovVault) DebtToken() types.Token {
	return v.debt
}

func (v *LovVault) TotalSupply() sdkmath.LegacyDec {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalSupply
}

// Position reads the current supplied and borrowed balances from the
// lending market.
func (v *LovVault) Position() (types.Position, error) {
	supplied, err := v.adapter.SuppliedBalance()
	if err != nil {
		return types.Position{}, err
	}
	borrowed, err := v.adapter.DebtBalance()
	if err != nil {
		return types.Position{}, err
	}
	return types.Position{
		SuppliedAmount: supplied,
		BorrowedAmount: borrowed,
		ReserveToken:   v.reserve,
		DebtToken:      v.debt,
	}, nil
}

// AssetsAndLiabilities values both legs in reserve token terms. Liabilities
// round up so A/L never flatters the position.
func (v *LovVault) AssetsAndLiabilities(priceType types.PriceType) (assets, liabilities sdkmath.LegacyDec, err error) {
	pos, err := v.Position()
	if err != nil {
		return sdkmath.LegacyDec{}, sdkmath.LegacyDec{}, err
	}
	liabilities, err = v.debtOracle.ConvertAmount(pos.BorrowedAmount, priceType, types.RoundUp)
	if err != nil {
		return sdkmath.LegacyDec{}, sdkmath.LegacyDec{}, err
	}
	return pos.SuppliedAmount, liabilities, nil
}

// AssetToLiabilityRatio returns the current A/L. hasDebt is false when the
// position carries no debt, in which case the ratio is meaningless and
// callers should treat the position as maximally safe.
func (v *LovVault) AssetToLiabilityRatio(priceType types.PriceType) (al sdkmath.LegacyDec, hasDebt bool, err error) {
	pos, err := v.Position()
	if err != nil {
		return sdkmath.LegacyDec{}, false, err
	}
	price, err := v.debtOracle.LatestPrice(priceType, types.RoundUp)
	if err != nil {
		return sdkmath.LegacyDec{}, false, err
	}
	ratio, ok := pos.AssetToLiabilityRatio(price)
	return ratio, ok, nil
}

// SharePrice is reserve tokens per lovToken share at spot, i.e. net assets
// over supply. A vault with no shares prices at exactly one.
func (v *LovVault) SharePrice() (sdkmath.LegacyDec, error) {
	v.mu.Lock()
	supply := v.totalSupply
	v.mu.Unlock()
	return v.sharePriceForSupply(supply)
}

func (v *LovVault) sharePriceForSupply(supply sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	if supply.IsZero() {
		return sdkmath.LegacyOneDec(), nil
	}
	assets, liabilities, err := v.AssetsAndLiabilities(types.SpotPrice)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	net := assets.Sub(liabilities)
	if !net.IsPositive() {
		return sdkmath.LegacyDec{}, ErrVaultInsolvent
	}
	return net.Quo(supply), nil
}

// ProjectedALAfter computes the A/L the position would have after applying
// suppliedDelta (reserve units) and borrowedDelta (debt units), both signed.
func (v *LovVault) ProjectedALAfter(suppliedDelta, borrowedDelta sdkmath.LegacyDec, priceType types.PriceType) (al sdkmath.LegacyDec, hasDebt bool, err error) {
	pos, err := v.Position()
	if err != nil {
		return sdkmath.LegacyDec{}, false, err
	}
	projected := types.Position{
		SuppliedAmount: pos.SuppliedAmount.Add(suppliedDelta),
		BorrowedAmount: pos.BorrowedAmount.Add(borrowedDelta),
		ReserveToken:   v.reserve,
		DebtToken:      v.debt,
	}
	price, err := v.debtOracle.LatestPrice(priceType, types.RoundUp)
	if err != nil {
		return sdkmath.LegacyDec{}, false, err
	}
	ratio, ok := projected.AssetToLiabilityRatio(price)
	return ratio, ok, nil
}

// SetTokenPrices swaps the vault's price registry for a new one. The old
// registry keeps serving concurrent readers until their calls return.
func (v *LovVault) SetTokenPrices(caller string, registry *prices.Registry) error {
	if caller != v.admin {
		return types.ErrUnauthorized
	}
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	v.mu.Lock()
	old := v.registry
	v.registry = registry
	v.mu.Unlock()

	oldVersion := 0
	if old != nil {
		oldVersion = old.Version()
	}
	v.logger.Info().
		Int("oldVersion", oldVersion).
		Int("newVersion", registry.Version()).
		Msg("Price registry swapped")
	return nil
}

// TokenPrices returns the registry currently serving this vault.
func (v *LovVault) TokenPrices() *prices.Registry {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.registry
}

// InvestWithToken executes a previously quoted deposit. The encoded quote
// data carries the amount, fee and minimum shares fixed at quote time; the
// share price is re-read here so stale quotes cannot mint cheap shares.
func (v *LovVault) InvestWithToken(encodedQuoteData []byte) (sharesMinted sdkmath.LegacyDec, err error) {
	order, err := quote.DecodeInvestPayload(encodedQuoteData, v.now())
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	if order.FromToken != v.reserve.Address {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %s", quote.ErrUnsupportedToken, order.FromToken)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	sharePrice, err := v.sharePriceForSupply(v.totalSupply)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	netAmount, err := utils.SubtractBps(order.FromTokenAmount, order.FeeBps)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	shares := netAmount.Quo(sharePrice)
	if shares.LT(order.MinSharesOut) {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %s shares < min %s",
			ErrSlippageExceeded, shares.String(), order.MinSharesOut.String())
	}
	newSupply := v.totalSupply.Add(shares)
	if newSupply.GT(v.params.MaxTotalSupply) {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %s > cap %s",
			ErrSupplyCapExceeded, newSupply.String(), v.params.MaxTotalSupply.String())
	}

	// The full deposit goes in as collateral; the fee accrues to existing
	// holders by minting fewer shares, not by skimming tokens.
	if err := v.adapter.Supply(order.FromTokenAmount); err != nil {
		return sdkmath.LegacyDec{}, err
	}
	if err := v.checkUserALAfterInvest(); err != nil {
		// Unwind the supply so a refused deposit leaves no trace.
		if werr := v.adapter.Withdraw(order.FromTokenAmount); werr != nil {
			return sdkmath.LegacyDec{}, fmt.Errorf("%w (unwind failed: %v)", err, werr)
		}
		return sdkmath.LegacyDec{}, err
	}
	v.totalSupply = newSupply

	v.logger.Info().
		Str("quoteID", order.QuoteID).
		Str("amount", order.FromTokenAmount.String()).
		Str("shares", shares.String()).
		Uint64("feeBps", order.FeeBps).
		Msg("Invest executed")
	return shares, nil
}

// ExitToToken executes a previously quoted redemption.
func (v *LovVault) ExitToToken(encodedQuoteData []byte) (amountOut sdkmath.LegacyDec, err error) {
	order, err := quote.DecodeExitPayload(encodedQuoteData, v.now())
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	if order.ToToken != v.reserve.Address {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %s", quote.ErrUnsupportedToken, order.ToToken)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if order.InvestmentAmount.GT(v.totalSupply) {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %s > supply %s",
			ErrInsufficientShares, order.InvestmentAmount.String(), v.totalSupply.String())
	}
	sharePrice, err := v.sharePriceForSupply(v.totalSupply)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	grossAmount := order.InvestmentAmount.MulTruncate(sharePrice)
	amountOut, err = utils.SubtractBps(grossAmount, order.FeeBps)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	if amountOut.LT(order.MinAmountOut) {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %s < min %s",
			ErrSlippageExceeded, amountOut.String(), order.MinAmountOut.String())
	}

	// Only the post-fee amount leaves the position. The fee stays supplied
	// and accrues to the remaining holders.
	if err := v.adapter.Withdraw(amountOut); err != nil {
		return sdkmath.LegacyDec{}, err
	}
	if err := v.checkUserALAfterExit(); err != nil {
		if serr := v.adapter.Supply(amountOut); serr != nil {
			return sdkmath.LegacyDec{}, fmt.Errorf("%w (unwind failed: %v)", err, serr)
		}
		return sdkmath.LegacyDec{}, err
	}
	v.totalSupply = v.totalSupply.Sub(order.InvestmentAmount)

	v.logger.Info().
		Str("quoteID", order.QuoteID).
		Str("shares", order.InvestmentAmount.String()).
		Str("amountOut", amountOut.String()).
		Uint64("feeBps", order.FeeBps).
		Msg("Exit executed")
	return amountOut, nil
}

// MaxExit returns the largest share amount redeemable right now without
// dragging the A/L below the user floor.
func (v *LovVault) MaxExit() (sdkmath.LegacyDec, error) {
	v.mu.Lock()
	supply := v.totalSupply
	v.mu.Unlock()
	if supply.IsZero() {
		return sdkmath.LegacyZeroDec(), nil
	}

	assets, liabilities, err := v.AssetsAndLiabilities(types.SpotPrice)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	if liabilities.IsZero() {
		return supply, nil
	}

	// Assets removable before A/L hits the user floor: A' = floor * L.
	removable := assets.Sub(v.params.UserALRange.Floor.Mul(liabilities))
	if !removable.IsPositive() {
		return sdkmath.LegacyZeroDec(), nil
	}
	sharePrice, err := v.sharePriceForSupply(supply)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	maxShares := removable.Quo(sharePrice)
	if maxShares.GT(supply) {
		return supply, nil
	}
	return maxShares, nil
}

// MaxInvest returns the largest reserve token deposit acceptable right now:
// the tighter of the supply cap headroom and the collateral that lifts the
// A/L exactly to the user ceiling.
func (v *LovVault) MaxInvest() (sdkmath.LegacyDec, error) {
	v.mu.Lock()
	supply := v.totalSupply
	supplyCap := v.params.MaxTotalSupply
	v.mu.Unlock()

	headroom := supplyCap.Sub(supply)
	if !headroom.IsPositive() {
		return sdkmath.LegacyZeroDec(), nil
	}
	sharePrice, err := v.sharePriceForSupply(supply)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	capBound := headroom.MulTruncate(sharePrice)

	assets, liabilities, err := v.AssetsAndLiabilities(types.SpotPrice)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	if liabilities.IsZero() {
		return capBound, nil
	}
	// Collateral addable before A/L hits the user ceiling: A' = ceiling * L.
	alBound := v.params.UserALRange.Ceiling.Mul(liabilities).Sub(assets)
	if !alBound.IsPositive() {
		return sdkmath.LegacyZeroDec(), nil
	}
	if alBound.LT(capBound) {
		return alBound, nil
	}
	return capBound, nil
}

// checkUserALAfterInvest refuses deposits that push the A/L above the user
// ceiling: a deposit adds pure collateral, so too large a deposit dilutes
// leverage past the band existing holders signed up for. A debt-free vault
// has no meaningful ratio and accepts any deposit: this is how the vault
// bootstraps before the first rebalance adds leverage.
func (v *LovVault) checkUserALAfterInvest() error {
	al, hasDebt, err := v.AssetToLiabilityRatio(types.SpotPrice)
	if err != nil {
		return err
	}
	if !hasDebt {
		return nil
	}
	if al.GT(v.params.UserALRange.Ceiling) {
		return fmt.Errorf("%w: post-invest A/L %s above user ceiling %s",
			types.ErrALOutOfBounds, al.String(), v.params.UserALRange.Ceiling.String())
	}
	return nil
}

// checkUserALAfterExit refuses withdrawals that drag the A/L below the user
// floor.
func (v *LovVault) checkUserALAfterExit() error {
	al, hasDebt, err := v.AssetToLiabilityRatio(types.SpotPrice)
	if err != nil {
		return err
	}
	if !hasDebt {
		return nil
	}
	if al.LT(v.params.UserALRange.Floor) {
		return fmt.Errorf("%w: post-exit A/L %s below user floor %s",
			types.ErrALOutOfBounds, al.String(), v.params.UserALRange.Floor.String())
	}
	return nil
}

// ConvertToAssets prices lovToken shares in reserve tokens, satisfying the
// ERC-4626 read the price registry evaluates Erc4626Share functions with.
func (v *LovVault) ConvertToAssets(shares sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
	sharePrice, err := v.SharePrice()
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	return shares.MulTruncate(sharePrice), nil
}

// Asset returns the vault's underlying (reserve) token address.
func (v *LovVault) Asset() types.TokenAddress {
	return v.reserve.Address
}
