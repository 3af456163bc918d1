/*

This file contains the overlord: the autonomous loop that watches the
vault's A/L ratio and steers it back to the middle of the rebalance range
whenever it drifts outside. Each cycle observes, decides a direction,
solves for exact amounts, executes through the rebalance executor and
persists a snapshot of the whole cycle.

*/

package overlord

import (
	"context"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/origami-labs/lovm/internal/executor"
	"github.com/origami-labs/lovm/internal/logger"
	"github.com/origami-labs/lovm/internal/oracle"
	"github.com/origami-labs/lovm/internal/solver"
	"github.com/origami-labs/lovm/internal/types"
	"github.com/origami-labs/lovm/internal/utils"
	"github.com/origami-labs/lovm/internal/vault"
)

// SwapQuoter quotes a fill for a fixed token pair and returns the calldata
// that replays it.
type SwapQuoter interface {
	ID() string
	Quote(sellAmount sdkmath.LegacyDec) (sdkmath.LegacyDec, []byte, error)
}

// DexPriceSource reports the live swap execution price, quoted as debt
// token per reserve token.
type DexPriceSource interface {
	LatestDexPrice() (sdkmath.LegacyDec, error)
}

// SnapshotStore persists cycle snapshots and the global cycle counter.
type SnapshotStore interface {
	SaveCycleSnapshot(snapshot types.CycleSnapshot) (int64, error)
	IncrementCycleNumber() (int, error)
}

// Overlord watches one vault and rebalances it.
type Overlord struct {
	logger     zerolog.Logger
	vault      *vault.LovVault
	executor   *executor.Executor
	debtOracle *oracle.Oracle
	dexPrice   DexPriceSource

	// downQuoter sells debt token for collateral (rebalance down),
	// upQuoter sells collateral for debt token (rebalance up).
	downQuoter SwapQuoter
	upQuoter   SwapQuoter

	store       SnapshotStore
	overlordKey string

	cycleCount int
}

// Config holds the dependencies for creating an Overlord.
type Config struct {
	Vault       *vault.LovVault
	Executor    *executor.Executor
	DebtOracle  *oracle.Oracle
	DexPrice    DexPriceSource
	DownQuoter  SwapQuoter
	UpQuoter    SwapQuoter
	Store       SnapshotStore
	OverlordKey string
}

func NewOverlord(cfg Config) (*Overlord, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("overlord configuration validation failed: %w", err)
	}
	o := &Overlord{
		logger:      logger.GetForComponent("overlord"),
		vault:       cfg.Vault,
		executor:    cfg.Executor,
		debtOracle:  cfg.DebtOracle,
		dexPrice:    cfg.DexPrice,
		downQuoter:  cfg.DownQuoter,
		upQuoter:    cfg.UpQuoter,
		store:       cfg.Store,
		overlordKey: cfg.OverlordKey,
	}
	o.logger.Info().
		Str("vault", cfg.Vault.Params().TokenSymbol).
		Msg("Overlord instance created")
	return o, nil
}

func validateConfig(cfg Config) error {
	if cfg.Vault == nil {
		return fmt.Errorf("vault cannot be nil")
	}
	if cfg.Executor == nil {
		return fmt.Errorf("executor cannot be nil")
	}
	if cfg.DebtOracle == nil {
		return fmt.Errorf("debt oracle cannot be nil")
	}
	if cfg.DexPrice == nil {
		return fmt.Errorf("dex price source cannot be nil")
	}
	if cfg.DownQuoter == nil || cfg.UpQuoter == nil {
		return fmt.Errorf("swap quoters cannot be nil")
	}
	if cfg.OverlordKey == "" {
		return fmt.Errorf("overlord key cannot be empty")
	}
	return nil
}

// RunLoop starts the main overlord loop with the specified interval.
func (o *Overlord) RunLoop(ctx context.Context, interval time.Duration) {
	o.logger.Info().
		Dur("interval", interval).
		Msg("Starting overlord main loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run first cycle immediately
	o.cycleCount++
	o.logger.Info().Int("cycle", o.cycleCount).Msg("Initiating overlord cycle")
	o.RunCycle(ctx)
	o.logger.Info().Int("cycle", o.cycleCount).Msg("Overlord cycle completed")

	for {
		select {
		case <-ctx.Done():
			o.logger.Info().Msg("Overlord loop stopped due to context cancellation")
			return
		case <-ticker.C:
			o.cycleCount++
			o.logger.Info().Int("cycle", o.cycleCount).Msg("Initiating overlord cycle")
			o.RunCycle(ctx)
			o.logger.Info().Int("cycle", o.cycleCount).Msg("Overlord cycle completed")
		}
	}
}

// RunCycle executes one complete observe/decide/solve/execute cycle.
func (o *Overlord) RunCycle(ctx context.Context) {
	cycleStartTime := time.Now()

	// Unique cycle ID for tracing logs across the entire cycle
	cycleID := uuid.New().String()
	cycleLogger := o.logger.With().Str("cycle_id", cycleID).Logger()

	cycleLogger.Info().Msg("--- Starting Overlord Cycle ---")

	params := o.vault.Params()
	snapshot := types.CycleSnapshot{
		CycleNumber: o.getCycleNumber(),
		CycleID:     cycleID,
		Timestamp:   cycleStartTime,
		VaultSymbol: params.TokenSymbol,
		Direction:   types.RebalanceDirectionNone,
	}

	// --- Step 1: Observe ---
	cycleLogger.Info().Msg("Step 1: Observing position and prices...")
	pos, err := o.vault.Position()
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: Failed to read position.")
		return
	}
	oraclePrice, err := o.solverOraclePrice()
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: Failed to read oracle price.")
		return
	}
	dexPrice, err := o.dexPrice.LatestDexPrice()
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: Failed to read dex price.")
		return
	}
	al, hasDebt, err := o.vault.AssetToLiabilityRatio(types.SpotPrice)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: Failed to compute A/L ratio.")
		return
	}

	snapshot.OraclePrice = oraclePrice.String()
	snapshot.DexPrice = dexPrice.String()
	snapshot.SuppliedBefore = pos.SuppliedAmount.String()
	snapshot.BorrowedBefore = pos.BorrowedAmount.String()
	if hasDebt {
		snapshot.ALBefore = al.String()
	}
	cycleLogger.Info().
		Str("supplied", pos.SuppliedAmount.String()).
		Str("borrowed", pos.BorrowedAmount.String()).
		Str("oraclePrice", oraclePrice.String()).
		Str("dexPrice", dexPrice.String()).
		Msg("Step 1: Observation complete.")

	// --- Step 2: Decide ---
	cycleLogger.Info().Msg("Step 2: Checking A/L against rebalance range...")
	rng := params.RebalanceALRange
	if !hasDebt {
		cycleLogger.Info().Msg("Position carries no debt. No rebalancing possible.")
		o.finishCycle(&snapshot, cycleStartTime, cycleLogger)
		return
	}
	if rng.Contains(al) {
		cycleLogger.Info().
			Str("al", al.String()).
			Str("floor", rng.Floor.String()).
			Str("ceiling", rng.Ceiling.String()).
			Msg("A/L within rebalance range. No action needed.")
		o.finishCycle(&snapshot, cycleStartTime, cycleLogger)
		return
	}

	targetAL := rng.Mid()
	snapshot.TargetAL = targetAL.String()
	if al.LT(rng.Floor) {
		snapshot.Direction = types.RebalanceDirectionUp
	} else {
		snapshot.Direction = types.RebalanceDirectionDown
	}
	cycleLogger.Info().
		Str("al", al.String()).
		Str("targetAL", targetAL.String()).
		Str("direction", string(snapshot.Direction)).
		Msg("Step 2: Rebalance decision made.")

	// --- Step 3 & 4: Solve and Execute ---
	assets, liabilities, err := o.vault.AssetsAndLiabilities(types.SpotPrice)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: Failed to value position.")
		return
	}
	in := solver.Inputs{
		Assets:      assets,
		Liabilities: liabilities,
		DexPrice:    dexPrice,
		OraclePrice: oraclePrice,
		SlippageBps: params.RebalanceSlippageBps,
	}

	var result types.RebalanceResult
	switch snapshot.Direction {
	case types.RebalanceDirectionDown:
		result, err = o.rebalanceDown(targetAL, al, in, params, &snapshot, cycleLogger)
	case types.RebalanceDirectionUp:
		result, err = o.rebalanceUp(targetAL, al, in, params, &snapshot, cycleLogger)
	}
	snapshot.Executed = true
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Rebalance execution failed.")
		snapshot.Success = false
		snapshot.ErrorMessage = err.Error()
		o.finishCycle(&snapshot, cycleStartTime, cycleLogger)
		return
	}
	snapshot.Success = true
	snapshot.ALAfter = result.ALAfter.String()

	// --- Step 5: Capture final state ---
	finalPos, err := o.vault.Position()
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to read final position.")
	} else {
		snapshot.SuppliedAfter = finalPos.SuppliedAmount.String()
		snapshot.BorrowedAfter = finalPos.BorrowedAmount.String()
	}
	cycleLogger.Info().
		Str("alBefore", result.ALBefore.String()).
		Str("alAfter", result.ALAfter.String()).
		Msg("Rebalance executed successfully.")

	o.finishCycle(&snapshot, cycleStartTime, cycleLogger)
}

// rebalanceDown solves and executes a leverage add.
func (o *Overlord) rebalanceDown(targetAL, currentAL sdkmath.LegacyDec, in solver.Inputs, params types.VaultParameters, snapshot *types.CycleSnapshot, cycleLogger zerolog.Logger) (types.RebalanceResult, error) {
	supplyAmount, err := solver.SolveRebalanceDown(targetAL, currentAL, in)
	if err != nil {
		return types.RebalanceResult{}, err
	}
	borrowAmount, err := solver.BorrowAmountForSupply(supplyAmount, in)
	if err != nil {
		return types.RebalanceResult{}, err
	}
	snapshot.SupplyAmount = supplyAmount.String()
	snapshot.BorrowAmount = borrowAmount.String()
	cycleLogger.Info().
		Str("supplyAmount", supplyAmount.String()).
		Str("borrowAmount", borrowAmount.String()).
		Msg("Step 3: Rebalance down solved.")

	_, swapData, err := o.downQuoter.Quote(borrowAmount)
	if err != nil {
		return types.RebalanceResult{}, err
	}
	minNewAL, maxNewAL, err := acceptanceBand(targetAL, params.ALTargetToleranceBps)
	if err != nil {
		return types.RebalanceResult{}, err
	}

	cycleLogger.Info().Msg("Step 4: Executing rebalance down...")
	return o.executor.RebalanceDown(o.overlordKey, types.RebalanceDownParams{
		SupplyAmount:                     supplyAmount,
		BorrowAmount:                     borrowAmount,
		SwapData:                         swapData,
		RouterID:                         o.downQuoter.ID(),
		MinNewAL:                         minNewAL,
		MaxNewAL:                         maxNewAL,
		SupplyCollateralSurplusThreshold: defaultSurplusThreshold(supplyAmount),
	})
}

// rebalanceUp solves and executes a deleverage.
func (o *Overlord) rebalanceUp(targetAL, currentAL sdkmath.LegacyDec, in solver.Inputs, params types.VaultParameters, snapshot *types.CycleSnapshot, cycleLogger zerolog.Logger) (types.RebalanceResult, error) {
	withdrawalAmount, err := solver.SolveRebalanceUp(targetAL, currentAL, in)
	if err != nil {
		return types.RebalanceResult{}, err
	}
	flashLoanAmount, err := solver.RepayAmountForWithdrawal(withdrawalAmount, in)
	if err != nil {
		return types.RebalanceResult{}, err
	}
	snapshot.SupplyAmount = withdrawalAmount.Neg().String()
	snapshot.BorrowAmount = flashLoanAmount.Neg().String()
	cycleLogger.Info().
		Str("withdrawalAmount", withdrawalAmount.String()).
		Str("flashLoanAmount", flashLoanAmount.String()).
		Msg("Step 3: Rebalance up solved.")

	_, swapData, err := o.upQuoter.Quote(withdrawalAmount)
	if err != nil {
		return types.RebalanceResult{}, err
	}
	minNewAL, maxNewAL, err := acceptanceBand(targetAL, params.ALTargetToleranceBps)
	if err != nil {
		return types.RebalanceResult{}, err
	}

	cycleLogger.Info().Msg("Step 4: Executing rebalance up...")
	return o.executor.RebalanceUp(o.overlordKey, types.RebalanceUpParams{
		FlashLoanAmount:       flashLoanAmount,
		WithdrawalAmount:      withdrawalAmount,
		SwapData:              swapData,
		RouterID:              o.upQuoter.ID(),
		MinNewAL:              minNewAL,
		MaxNewAL:              maxNewAL,
		RepaySurplusThreshold: defaultSurplusThreshold(flashLoanAmount),
	})
}

// solverOraclePrice inverts the debt oracle's reserve-per-debt price into
// the debt-per-reserve orientation the solver works in.
func (o *Overlord) solverOraclePrice() (sdkmath.LegacyDec, error) {
	price, err := o.debtOracle.LatestPrice(types.SpotPrice, types.RoundDown)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	if !price.IsPositive() {
		return sdkmath.LegacyDec{}, fmt.Errorf("oracle price must be positive, got %s", price.String())
	}
	return sdkmath.LegacyOneDec().Quo(price), nil
}

// acceptanceBand builds [minNewAL, maxNewAL] around the target.
func acceptanceBand(targetAL sdkmath.LegacyDec, toleranceBps uint64) (minNewAL, maxNewAL sdkmath.LegacyDec, err error) {
	minNewAL, err = utils.SubtractBps(targetAL, toleranceBps)
	if err != nil {
		return sdkmath.LegacyDec{}, sdkmath.LegacyDec{}, err
	}
	maxNewAL, err = utils.AddBps(targetAL, toleranceBps)
	if err != nil {
		return sdkmath.LegacyDec{}, sdkmath.LegacyDec{}, err
	}
	return minNewAL, maxNewAL, nil
}

// defaultSurplusThreshold tolerates fills up to 10 bps better than planned
// before the surplus is held back.
func defaultSurplusThreshold(amount sdkmath.LegacyDec) sdkmath.LegacyDec {
	return amount.MulInt64(10).QuoInt64(int64(utils.MaxBps))
}

// getCycleNumber increments and returns the persistent cycle counter.
func (o *Overlord) getCycleNumber() int {
	if o.store == nil {
		return o.cycleCount
	}
	cycleNumber, err := o.store.IncrementCycleNumber()
	if err != nil {
		o.logger.Error().Err(err).Msg("Failed to increment cycle number, using fallback")
		// Fallback to a simple counter if database fails
		return int(time.Now().Unix() % 1000000)
	}
	return cycleNumber
}

// finishCycle persists the snapshot and logs the cycle duration.
func (o *Overlord) finishCycle(snapshot *types.CycleSnapshot, cycleStartTime time.Time, cycleLogger zerolog.Logger) {
	snapshot.DurationMs = time.Since(cycleStartTime).Milliseconds()
	o.saveCycleSnapshot(*snapshot)
	cycleLogger.Info().
		Str("cycleDuration", time.Since(cycleStartTime).String()).
		Msg("--- Overlord Cycle Completed ---")
}

// saveCycleSnapshot saves the cycle snapshot to the database.
func (o *Overlord) saveCycleSnapshot(snapshot types.CycleSnapshot) {
	if o.store == nil {
		o.logger.Warn().Msg("No snapshot store configured, skipping persistence")
		return
	}
	snapshotID, err := o.store.SaveCycleSnapshot(snapshot)
	if err != nil {
		o.logger.Error().Err(err).Msg("Failed to save cycle snapshot to database")
		return
	}
	o.logger.Info().Int64("snapshot_id", snapshotID).Msg("Cycle snapshot saved successfully")
}
