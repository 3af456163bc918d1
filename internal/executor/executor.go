/*

This file contains the rebalance executor. It is the only component allowed
to move the vault's position, gated by the overlord key. Every rebalance runs
the same shape: dry-run the swap against the verified router, project the
post-trade A/L, refuse anything that would land outside [MinNewAL, MaxNewAL],
and only then commit against the lending market, rolling back compensating
legs if a later step fails.

*/

package executor

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/origami-labs/lovm/internal/lending"
	"github.com/origami-labs/lovm/internal/logger"
	"github.com/origami-labs/lovm/internal/swap"
	"github.com/origami-labs/lovm/internal/types"
	"github.com/origami-labs/lovm/internal/utils"
	"github.com/origami-labs/lovm/internal/vault"
)

var (
	ErrSwapShortfall    = errors.New("swap output cannot fund the planned amount")
	ErrNoDebtToUnwind   = errors.New("position carries no debt to rebalance up from")
	ErrInvalidRebalance = errors.New("invalid rebalance parameters")
)

// Config holds the dependencies for creating an Executor.
type Config struct {
	Vault       *vault.LovVault
	Adapter     lending.Adapter
	FlashLender lending.FlashLoanProvider
	// Fee the flash lender charges, used to size the repayment.
	FlashLoanFeeBps uint64
	Routers         *swap.Whitelist
	OverlordKey     string
}

// Executor applies rebalance decisions to the vault's position.
type Executor struct {
	vault       *vault.LovVault
	adapter     lending.Adapter
	flashLender lending.FlashLoanProvider
	flashFeeBps uint64
	routers     *swap.Whitelist
	overlord    string
	logger      zerolog.Logger
}

func NewExecutor(cfg Config) (*Executor, error) {
	if cfg.Vault == nil {
		return nil, fmt.Errorf("vault cannot be nil")
	}
	if cfg.Adapter == nil {
		return nil, fmt.Errorf("lending adapter cannot be nil")
	}
	if cfg.FlashLender == nil {
		return nil, fmt.Errorf("flash lender cannot be nil")
	}
	if cfg.Routers == nil {
		return nil, fmt.Errorf("router whitelist cannot be nil")
	}
	if cfg.OverlordKey == "" {
		return nil, fmt.Errorf("overlord key cannot be empty")
	}
	return &Executor{
		vault:       cfg.Vault,
		adapter:     cfg.Adapter,
		flashLender: cfg.FlashLender,
		flashFeeBps: cfg.FlashLoanFeeBps,
		routers:     cfg.Routers,
		overlord:    cfg.OverlordKey,
		logger:      logger.GetForComponent("executor"),
	}, nil
}

func (e *Executor) authorize(caller string) error {
	if caller != e.overlord {
		return types.ErrUnauthorized
	}
	return nil
}

// RebalanceDown adds leverage: borrow debt token, swap it to collateral,
// supply the collateral. Aborts before touching the position if the
// projected A/L falls outside the acceptance band.
func (e *Executor) RebalanceDown(caller string, params types.RebalanceDownParams) (types.RebalanceResult, error) {
	if err := e.authorize(caller); err != nil {
		return types.RebalanceResult{}, err
	}
	if err := validateBand(params.MinNewAL, params.MaxNewAL); err != nil {
		return types.RebalanceResult{}, err
	}
	if !isPositive(params.BorrowAmount) || !isPositive(params.SupplyAmount) {
		return types.RebalanceResult{}, fmt.Errorf("%w: amounts must be positive", ErrInvalidRebalance)
	}
	router, err := e.routers.Verified(params.RouterID)
	if err != nil {
		return types.RebalanceResult{}, err
	}

	alBefore, hadDebt, err := e.vault.AssetToLiabilityRatio(types.SpotPrice)
	if err != nil {
		return types.RebalanceResult{}, err
	}
	if !hadDebt {
		// First leverage add on a debt-free vault: no prior ratio exists.
		alBefore = sdkmath.LegacyZeroDec()
	}
	e.logger.Info().
		Str("stage", "Quoted").
		Str("borrowAmount", params.BorrowAmount.String()).
		Str("supplyAmount", params.SupplyAmount.String()).
		Msg("Rebalance down staged")

	// Stage: dry-run the swap and project the landing A/L. The simulated
	// router's fill is deterministic, so the projection is exact.
	bought, err := router.Execute(params.SwapData, params.BorrowAmount)
	if err != nil {
		return types.RebalanceResult{}, err
	}
	if bought.LT(params.SupplyAmount) {
		return types.RebalanceResult{}, fmt.Errorf("%w: swap buys %s, plan needs %s",
			ErrSwapShortfall, bought.String(), params.SupplyAmount.String())
	}
	supplied := bought
	surplus := bought.Sub(params.SupplyAmount)
	if surplus.GT(params.SupplyCollateralSurplusThreshold) {
		// Unexpectedly good fill: supply only the planned amount so the
		// position lands where the solver aimed, leave the rest idle.
		supplied = params.SupplyAmount
	}

	projected, _, err := e.vault.ProjectedALAfter(supplied, params.BorrowAmount, types.SpotPrice)
	if err != nil {
		return types.RebalanceResult{}, err
	}
	if err := checkBand(projected, params.MinNewAL, params.MaxNewAL); err != nil {
		return types.RebalanceResult{}, err
	}
	if hadDebt && projected.GTE(alBefore) {
		return types.RebalanceResult{}, fmt.Errorf("%w: projected A/L %s does not add leverage from %s",
			types.ErrALOutOfBounds, projected.String(), alBefore.String())
	}

	// Commit.
	if err := e.adapter.Borrow(params.BorrowAmount); err != nil {
		return types.RebalanceResult{}, err
	}
	e.logger.Info().Str("stage", "Swapped").Str("bought", bought.String()).Msg("Debt swapped to collateral")
	if err := e.adapter.Supply(supplied); err != nil {
		if _, rerr := e.adapter.Repay(params.BorrowAmount); rerr != nil {
			return types.RebalanceResult{}, fmt.Errorf("%w (rollback failed: %v)", err, rerr)
		}
		return types.RebalanceResult{}, err
	}
	e.logger.Info().Str("stage", "PositionUpdated").Str("supplied", supplied.String()).Msg("Collateral supplied")

	alAfter, _, err := e.vault.AssetToLiabilityRatio(types.SpotPrice)
	if err != nil {
		return types.RebalanceResult{}, err
	}
	if err := checkBand(alAfter, params.MinNewAL, params.MaxNewAL); err != nil {
		// Realized A/L drifted outside the band between stage and commit.
		// Put both legs back and surface the failure.
		if rerr := e.rollbackDown(supplied, params.BorrowAmount); rerr != nil {
			return types.RebalanceResult{}, fmt.Errorf("%w (rollback failed: %v)", err, rerr)
		}
		return types.RebalanceResult{}, err
	}
	e.logger.Info().
		Str("stage", "Verified").
		Str("alBefore", alBefore.String()).
		Str("alAfter", alAfter.String()).
		Msg("Rebalance down verified")

	return types.RebalanceResult{
		ALBefore:      alBefore,
		ALAfter:       alAfter,
		SuppliedDelta: supplied,
		BorrowedDelta: params.BorrowAmount,
	}, nil
}

// RebalanceUp removes leverage: flash loan debt token, repay debt, withdraw
// freed collateral, swap it back to debt token and settle the loan. The
// whole sequence commits inside the flash loan callback; any failed leg
// unwinds the ones before it and fails the loan atomically.
func (e *Executor) RebalanceUp(caller string, params types.RebalanceUpParams) (types.RebalanceResult, error) {
	if err := e.authorize(caller); err != nil {
		return types.RebalanceResult{}, err
	}
	if err := validateBand(params.MinNewAL, params.MaxNewAL); err != nil {
		return types.RebalanceResult{}, err
	}
	if !isPositive(params.FlashLoanAmount) || !isPositive(params.WithdrawalAmount) {
		return types.RebalanceResult{}, fmt.Errorf("%w: amounts must be positive", ErrInvalidRebalance)
	}
	router, err := e.routers.Verified(params.RouterID)
	if err != nil {
		return types.RebalanceResult{}, err
	}

	alBefore, hadDebt, err := e.vault.AssetToLiabilityRatio(types.SpotPrice)
	if err != nil {
		return types.RebalanceResult{}, err
	}
	if !hadDebt {
		return types.RebalanceResult{}, ErrNoDebtToUnwind
	}
	e.logger.Info().
		Str("stage", "Quoted").
		Str("flashLoanAmount", params.FlashLoanAmount.String()).
		Str("withdrawalAmount", params.WithdrawalAmount.String()).
		Msg("Rebalance up staged")

	// Stage: dry-run the swap and check it covers the flash loan repayment,
	// then project the landing A/L.
	proceeds, err := router.Execute(params.SwapData, params.WithdrawalAmount)
	if err != nil {
		return types.RebalanceResult{}, err
	}
	owed, err := utils.AddBps(params.FlashLoanAmount, e.flashFeeBps)
	if err != nil {
		return types.RebalanceResult{}, err
	}
	if proceeds.LT(owed) {
		return types.RebalanceResult{}, fmt.Errorf("%w: swap yields %s, flash loan repayment needs %s",
			ErrSwapShortfall, proceeds.String(), owed.String())
	}

	debtBefore, err := e.adapter.DebtBalance()
	if err != nil {
		return types.RebalanceResult{}, err
	}
	plannedRepay := params.FlashLoanAmount
	if plannedRepay.GT(debtBefore) {
		plannedRepay = debtBefore
	}
	surplus := proceeds.Sub(owed)
	extraRepay := sdkmath.LegacyZeroDec()
	if surplus.GT(params.RepaySurplusThreshold) {
		extraRepay = surplus
		if remaining := debtBefore.Sub(plannedRepay); extraRepay.GT(remaining) {
			extraRepay = remaining
		}
	}

	projected, _, err := e.vault.ProjectedALAfter(
		params.WithdrawalAmount.Neg(), plannedRepay.Add(extraRepay).Neg(), types.SpotPrice)
	if err != nil {
		return types.RebalanceResult{}, err
	}
	if err := checkBand(projected, params.MinNewAL, params.MaxNewAL); err != nil {
		return types.RebalanceResult{}, err
	}
	if projected.LTE(alBefore) {
		return types.RebalanceResult{}, fmt.Errorf("%w: projected A/L %s does not reduce leverage from %s",
			types.ErrALOutOfBounds, projected.String(), alBefore.String())
	}

	// Commit inside the flash loan.
	repaidTotal := sdkmath.LegacyZeroDec()
	committed := false
	err = e.flashLender.FlashLoan(params.FlashLoanAmount, func(loan sdkmath.LegacyDec) (sdkmath.LegacyDec, error) {
		e.logger.Info().Str("stage", "FlashLoanRequested").Str("loan", loan.String()).Msg("Flash loan received")

		applied, err := e.adapter.Repay(loan)
		if err != nil {
			return sdkmath.LegacyDec{}, err
		}
		repaidTotal = applied

		if err := e.adapter.Withdraw(params.WithdrawalAmount); err != nil {
			if berr := e.adapter.Borrow(applied); berr != nil {
				return sdkmath.LegacyDec{}, fmt.Errorf("%w (rollback failed: %v)", err, berr)
			}
			return sdkmath.LegacyDec{}, err
		}

		swapped, err := router.Execute(params.SwapData, params.WithdrawalAmount)
		if err != nil {
			if rerr := e.rollbackUp(applied, params.WithdrawalAmount); rerr != nil {
				return sdkmath.LegacyDec{}, fmt.Errorf("%w (rollback failed: %v)", err, rerr)
			}
			return sdkmath.LegacyDec{}, err
		}
		e.logger.Info().Str("stage", "Swapped").Str("proceeds", swapped.String()).Msg("Collateral swapped to debt token")

		if extraRepay.IsPositive() {
			extra, err := e.adapter.Repay(extraRepay)
			if err != nil {
				return sdkmath.LegacyDec{}, err
			}
			repaidTotal = repaidTotal.Add(extra)
		}
		e.logger.Info().Str("stage", "PositionUpdated").Str("repaid", repaidTotal.String()).Msg("Debt repaid")
		committed = true
		return owed, nil
	})
	if err != nil {
		if committed {
			// The lender refused the settlement after every leg committed,
			// e.g. its fee exceeds the configured FlashLoanFeeBps. Put the
			// position back before surfacing the failure.
			if rerr := e.rollbackUp(repaidTotal, params.WithdrawalAmount); rerr != nil {
				return types.RebalanceResult{}, fmt.Errorf("%w (rollback failed: %v)", err, rerr)
			}
		}
		return types.RebalanceResult{}, err
	}

	alAfter, _, err := e.vault.AssetToLiabilityRatio(types.SpotPrice)
	if err != nil {
		return types.RebalanceResult{}, err
	}
	if err := checkBand(alAfter, params.MinNewAL, params.MaxNewAL); err != nil {
		if rerr := e.rollbackUp(repaidTotal, params.WithdrawalAmount); rerr != nil {
			return types.RebalanceResult{}, fmt.Errorf("%w (rollback failed: %v)", err, rerr)
		}
		return types.RebalanceResult{}, err
	}
	e.logger.Info().
		Str("stage", "Verified").
		Str("alBefore", alBefore.String()).
		Str("alAfter", alAfter.String()).
		Msg("Rebalance up verified")

	return types.RebalanceResult{
		ALBefore:      alBefore,
		ALAfter:       alAfter,
		SuppliedDelta: params.WithdrawalAmount.Neg(),
		BorrowedDelta: repaidTotal.Neg(),
	}, nil
}

// rollbackDown reverses a committed leverage add.
func (e *Executor) rollbackDown(supplied, borrowed sdkmath.LegacyDec) error {
	if err := e.adapter.Withdraw(supplied); err != nil {
		return err
	}
	_, err := e.adapter.Repay(borrowed)
	return err
}

// rollbackUp reverses a committed deleverage.
func (e *Executor) rollbackUp(repaid, withdrawn sdkmath.LegacyDec) error {
	if err := e.adapter.Supply(withdrawn); err != nil {
		return err
	}
	if repaid.IsPositive() {
		return e.adapter.Borrow(repaid)
	}
	return nil
}

func validateBand(minNewAL, maxNewAL sdkmath.LegacyDec) error {
	if minNewAL.IsNil() || maxNewAL.IsNil() {
		return fmt.Errorf("%w: A/L band cannot be nil", ErrInvalidRebalance)
	}
	if minNewAL.LTE(sdkmath.LegacyOneDec()) || maxNewAL.LT(minNewAL) {
		return fmt.Errorf("%w: band [%s, %s]", ErrInvalidRebalance, minNewAL.String(), maxNewAL.String())
	}
	return nil
}

func checkBand(al, minNewAL, maxNewAL sdkmath.LegacyDec) error {
	if al.LT(minNewAL) || al.GT(maxNewAL) {
		return fmt.Errorf("%w: A/L %s outside [%s, %s]",
			types.ErrALOutOfBounds, al.String(), minNewAL.String(), maxNewAL.String())
	}
	return nil
}

func isPositive(d sdkmath.LegacyDec) bool {
	return !d.IsNil() && d.IsPositive()
}
