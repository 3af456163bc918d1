// ./internal/state/snapshot_store.go
package state

import (
	"database/sql"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/origami-labs/lovm/internal/types"
)

// SaveCycleSnapshot saves a complete cycle snapshot to the database.
func SaveCycleSnapshot(snapshot types.CycleSnapshot) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO cycle_snapshots (
			cycle_number, cycle_id, snapshot_timestamp, vault_symbol, direction,
			al_before, oracle_price, dex_price, supplied_before, borrowed_before,
			target_al, supply_amount, borrow_amount,
			executed, success, error_message,
			al_after, supplied_after, borrowed_after,
			duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING snapshot_id;
	`

	var snapshotID int64
	err := DB.QueryRow(
		query,
		snapshot.CycleNumber, snapshot.CycleID, snapshot.Timestamp, snapshot.VaultSymbol, string(snapshot.Direction),
		nullableDec(snapshot.ALBefore), nullableDec(snapshot.OraclePrice), nullableDec(snapshot.DexPrice),
		nullableDec(snapshot.SuppliedBefore), nullableDec(snapshot.BorrowedBefore),
		nullableDec(snapshot.TargetAL), nullableDec(snapshot.SupplyAmount), nullableDec(snapshot.BorrowAmount),
		snapshot.Executed, snapshot.Success, snapshot.ErrorMessage,
		nullableDec(snapshot.ALAfter), nullableDec(snapshot.SuppliedAfter), nullableDec(snapshot.BorrowedAfter),
		snapshot.DurationMs,
	).Scan(&snapshotID)

	if err != nil {
		return 0, fmt.Errorf("failed to save cycle snapshot: %w", err)
	}

	log.Info().
		Int64("snapshot_id", snapshotID).
		Int("cycle_number", snapshot.CycleNumber).
		Str("direction", string(snapshot.Direction)).
		Msg("Cycle snapshot saved to database")

	return snapshotID, nil
}

// GetRecentCycleSnapshots returns the latest limit snapshots for one vault,
// newest first.
func GetRecentCycleSnapshots(vaultSymbol string, limit int) ([]types.CycleSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT snapshot_id, cycle_number, cycle_id, snapshot_timestamp, vault_symbol, direction,
			al_before, oracle_price, dex_price, supplied_before, borrowed_before,
			target_al, supply_amount, borrow_amount,
			executed, success, error_message,
			al_after, supplied_after, borrowed_after,
			duration_ms
		FROM cycle_snapshots
		WHERE vault_symbol = $1
		ORDER BY snapshot_timestamp DESC
		LIMIT $2;
	`

	rows, err := DB.Query(query, vaultSymbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query cycle snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []types.CycleSnapshot
	for rows.Next() {
		var s types.CycleSnapshot
		var direction string
		var alBefore, oraclePrice, dexPrice, suppliedBefore, borrowedBefore sql.NullString
		var targetAL, supplyAmount, borrowAmount sql.NullString
		var errorMessage sql.NullString
		var alAfter, suppliedAfter, borrowedAfter sql.NullString

		err := rows.Scan(
			&s.SnapshotID, &s.CycleNumber, &s.CycleID, &s.Timestamp, &s.VaultSymbol, &direction,
			&alBefore, &oraclePrice, &dexPrice, &suppliedBefore, &borrowedBefore,
			&targetAL, &supplyAmount, &borrowAmount,
			&s.Executed, &s.Success, &errorMessage,
			&alAfter, &suppliedAfter, &borrowedAfter,
			&s.DurationMs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cycle snapshot: %w", err)
		}

		s.Direction = types.RebalanceDirection(direction)
		s.ALBefore = alBefore.String
		s.OraclePrice = oraclePrice.String
		s.DexPrice = dexPrice.String
		s.SuppliedBefore = suppliedBefore.String
		s.BorrowedBefore = borrowedBefore.String
		s.TargetAL = targetAL.String
		s.SupplyAmount = supplyAmount.String
		s.BorrowAmount = borrowAmount.String
		s.ErrorMessage = errorMessage.String
		s.ALAfter = alAfter.String
		s.SuppliedAfter = suppliedAfter.String
		s.BorrowedAfter = borrowedAfter.String

		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cycle snapshots: %w", err)
	}

	return snapshots, nil
}

// nullableDec maps an empty decimal-string field to SQL NULL.
func nullableDec(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Store adapts the package-level persistence functions to the interfaces
// consumed by other components.
type Store struct{}

func (Store) SaveCycleSnapshot(snapshot types.CycleSnapshot) (int64, error) {
	return SaveCycleSnapshot(snapshot)
}

func (Store) IncrementCycleNumber() (int, error) {
	return IncrementCycleNumber()
}
