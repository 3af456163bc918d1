/*

This file contains the snapshot types persisted per overlord cycle, used for
the dashboard and post-hoc performance analysis.

*/

package types

import "time"

// RebalanceDirection labels which way a cycle moved leverage.
type RebalanceDirection string

const (
	RebalanceDirectionDown RebalanceDirection = "DOWN" // lower A/L, more leverage
	RebalanceDirectionUp   RebalanceDirection = "UP"   // raise A/L, less leverage
	RebalanceDirectionNone RebalanceDirection = "NONE" // A/L already in range
)

// CycleSnapshot captures one full overlord cycle: the observed state, the
// decision, and the outcome. Fixed-point values are stored as their decimal
// string form so the snapshot round-trips through JSON and postgres without
// precision loss.
type CycleSnapshot struct {
	SnapshotID  int64              `json:"snapshot_id,omitempty"` // assigned by DB
	CycleNumber int                `json:"cycle_number"`
	CycleID     string             `json:"cycle_id"`
	Timestamp   time.Time          `json:"timestamp"`
	VaultSymbol string             `json:"vault_symbol"`
	Direction   RebalanceDirection `json:"direction"`

	// Observed state
	ALBefore       string `json:"al_before"`
	OraclePrice    string `json:"oracle_price"`
	DexPrice       string `json:"dex_price"`
	SuppliedBefore string `json:"supplied_before"`
	BorrowedBefore string `json:"borrowed_before"`

	// Decision
	TargetAL     string `json:"target_al"`
	SupplyAmount string `json:"supply_amount,omitempty"`
	BorrowAmount string `json:"borrow_amount,omitempty"`

	// Outcome
	Executed      bool   `json:"executed"`
	Success       bool   `json:"success"`
	ErrorMessage  string `json:"error_message,omitempty"`
	ALAfter       string `json:"al_after,omitempty"`
	SuppliedAfter string `json:"supplied_after,omitempty"`
	BorrowedAfter string `json:"borrowed_after,omitempty"`

	DurationMs int64 `json:"duration_ms"`
}
