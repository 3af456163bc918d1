/*

This file contains the invest/exit quote engine. A quote turns a requested
amount into bounded, fee-adjusted expected and minimum amounts plus an
opaque encoded payload. The payload is replayed verbatim by the vault's
invest/exit entry points and expires at the quote deadline.

*/

package quote

import (
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/origami-labs/lovm/internal/fees"
	"github.com/origami-labs/lovm/internal/logger"
	"github.com/origami-labs/lovm/internal/types"
	"github.com/origami-labs/lovm/internal/utils"
)

var (
	ErrQuoteExpired     = errors.New("quote deadline has passed")
	ErrUnsupportedToken = errors.New("token is not supported by this vault")
	ErrZeroAmount       = errors.New("quote amount must be positive")
	ErrBadQuoteData     = errors.New("encoded quote data is malformed")
)

// VaultReader is the read-only vault surface the engine quotes against.
type VaultReader interface {
	Params() types.VaultParameters
	ReserveToken() types.Token
	TotalSupply() sdkmath.LegacyDec
	// SharePrice is reserve tokens per lovToken share at spot.
	SharePrice() (sdkmath.LegacyDec, error)
	// AssetsAndLiabilities values both position legs in reserve token terms.
	AssetsAndLiabilities(priceType types.PriceType) (assets, liabilities sdkmath.LegacyDec, err error)
}

// Engine builds invest and exit quotes for one vault.
type Engine struct {
	vault  VaultReader
	curve  fees.Curve
	now    func() time.Time
	logger zerolog.Logger
}

// Config holds the dependencies for creating an Engine.
type Config struct {
	Vault VaultReader
	Curve fees.Curve
	Clock func() time.Time
}

func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Vault == nil {
		return nil, fmt.Errorf("vault reader cannot be nil")
	}
	if cfg.Curve == nil {
		return nil, fmt.Errorf("fee curve cannot be nil")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Engine{
		vault:  cfg.Vault,
		curve:  cfg.Curve,
		now:    clock,
		logger: logger.GetForComponent("quote_engine"),
	}, nil
}

// InvestQuote quotes a deposit of amount reserve tokens. A zero deadline
// defaults to now plus the vault's quote TTL.
func (e *Engine) InvestQuote(amount sdkmath.LegacyDec, fromToken types.TokenAddress, slippageBps uint64, deadline time.Time) (*types.InvestQuote, error) {
	if amount.IsNil() || !amount.IsPositive() {
		return nil, ErrZeroAmount
	}
	params := e.vault.Params()
	reserve := e.vault.ReserveToken()
	if fromToken != reserve.Address {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedToken, fromToken)
	}
	if deadline.IsZero() {
		deadline = e.now().Add(time.Duration(params.QuoteTTLSeconds) * time.Second)
	}

	sharePrice, err := e.vault.SharePrice()
	if err != nil {
		return nil, err
	}
	assets, liabilities, err := e.vault.AssetsAndLiabilities(types.SpotPrice)
	if err != nil {
		return nil, err
	}

	feeBps := e.investFeeBps(params, assets.Add(amount), liabilities)
	netAmount, err := utils.SubtractBps(amount, feeBps)
	if err != nil {
		return nil, err
	}
	expectedShares := netAmount.Quo(sharePrice)
	minShares, err := utils.SubtractBps(expectedShares, slippageBps)
	if err != nil {
		return nil, err
	}

	quoteID := uuid.New().String()
	encoded, err := encodeInvestPayload(investPayload{
		QuoteID:         quoteID,
		FromToken:       fromToken,
		FromTokenAmount: amount.String(),
		FeeBps:          feeBps,
		SharePrice:      sharePrice.String(),
		MinSharesOut:    minShares.String(),
		DeadlineUnixMs:  deadline.UnixMilli(),
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug().
		Str("quoteID", quoteID).
		Str("amount", amount.String()).
		Uint64("feeBps", feeBps).
		Str("expectedShares", expectedShares.String()).
		Msg("Invest quote built")

	return &types.InvestQuote{
		QuoteID:                  quoteID,
		FromToken:                fromToken,
		FromTokenAmount:          amount,
		ExpectedInvestmentAmount: expectedShares,
		MinInvestmentAmount:      minShares,
		SlippageBps:              slippageBps,
		FeeBps:                   []uint64{feeBps},
		Deadline:                 deadline,
		EncodedQuoteData:         encoded,
	}, nil
}

// ExitQuote quotes a redemption of shares lovToken shares to toToken.
func (e *Engine) ExitQuote(shares sdkmath.LegacyDec, toToken types.TokenAddress, slippageBps uint64, deadline time.Time) (*types.ExitQuote, error) {
	if shares.IsNil() || !shares.IsPositive() {
		return nil, ErrZeroAmount
	}
	params := e.vault.Params()
	reserve := e.vault.ReserveToken()
	if toToken != reserve.Address {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedToken, toToken)
	}
	if deadline.IsZero() {
		deadline = e.now().Add(time.Duration(params.QuoteTTLSeconds) * time.Second)
	}

	sharePrice, err := e.vault.SharePrice()
	if err != nil {
		return nil, err
	}
	assets, liabilities, err := e.vault.AssetsAndLiabilities(types.SpotPrice)
	if err != nil {
		return nil, err
	}

	grossAmount := shares.MulTruncate(sharePrice)
	feeBps := e.exitFeeBps(params, assets.Sub(grossAmount), liabilities)
	expectedAmount, err := utils.SubtractBps(grossAmount, feeBps)
	if err != nil {
		return nil, err
	}
	minAmount, err := utils.SubtractBps(expectedAmount, slippageBps)
	if err != nil {
		return nil, err
	}

	quoteID := uuid.New().String()
	encoded, err := encodeExitPayload(exitPayload{
		QuoteID:          quoteID,
		ToToken:          toToken,
		InvestmentAmount: shares.String(),
		FeeBps:           feeBps,
		SharePrice:       sharePrice.String(),
		MinAmountOut:     minAmount.String(),
		DeadlineUnixMs:   deadline.UnixMilli(),
	})
	if err != nil {
		return nil, err
	}

	e.logger.Debug().
		Str("quoteID", quoteID).
		Str("shares", shares.String()).
		Uint64("feeBps", feeBps).
		Str("expectedAmount", expectedAmount.String()).
		Msg("Exit quote built")

	return &types.ExitQuote{
		QuoteID:               quoteID,
		ToToken:               toToken,
		InvestmentAmount:      shares,
		ExpectedToTokenAmount: expectedAmount,
		MinToTokenAmount:      minAmount,
		SlippageBps:           slippageBps,
		FeeBps:                []uint64{feeBps},
		Deadline:              deadline,
		EncodedQuoteData:      encoded,
	}, nil
}

// investFeeBps computes the deposit fee from the projected post-trade A/L.
// Deposits raise the A/L (pure collateral add), so the dynamic fee falls
// toward zero as deposits deleverage the vault.
func (e *Engine) investFeeBps(params types.VaultParameters, projectedAssets, liabilities sdkmath.LegacyDec) uint64 {
	dynamic := uint64(0)
	if liabilities.IsPositive() {
		projectedAL := projectedAssets.Quo(liabilities)
		dynamic = e.curve.DynamicFeeBps(projectedAL, params.RebalanceALRange, params.FeeLeverageFactorBps)
	}
	return fees.Applied(params.MinDepositFeeBps, dynamic)
}

// exitFeeBps computes the exit fee from the projected post-trade A/L.
// Withdrawals pull the A/L toward the floor, so the dynamic fee grows as
// the exit pushes leverage up.
func (e *Engine) exitFeeBps(params types.VaultParameters, projectedAssets, liabilities sdkmath.LegacyDec) uint64 {
	dynamic := uint64(0)
	if liabilities.IsPositive() {
		projectedAL := projectedAssets.Quo(liabilities)
		if projectedAL.IsNegative() {
			projectedAL = sdkmath.LegacyZeroDec()
		}
		dynamic = e.curve.DynamicFeeBps(projectedAL, params.RebalanceALRange, params.FeeLeverageFactorBps)
	}
	return fees.Applied(params.MinExitFeeBps, dynamic)
}
