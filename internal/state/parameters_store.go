// ./internal/state/parameters_store.go
package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/origami-labs/lovm/internal/types"
)

// SaveVaultParameters stores a parameter set as a new version for the vault
// and optionally activates it, deactivating all prior versions.
func SaveVaultParameters(params types.VaultParameters, activate bool) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}
	if err := params.Validate(); err != nil {
		return 0, fmt.Errorf("refusing to persist invalid parameters: %w", err)
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal vault parameters: %w", err)
	}

	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var nextVersion int
	err = tx.QueryRow(
		`SELECT COALESCE(MAX(version), 0) + 1 FROM vault_parameters WHERE token_symbol = $1;`,
		params.TokenSymbol,
	).Scan(&nextVersion)
	if err != nil {
		return 0, fmt.Errorf("failed to determine next parameters version: %w", err)
	}

	if activate {
		_, err = tx.Exec(
			`UPDATE vault_parameters SET is_active = FALSE WHERE token_symbol = $1;`,
			params.TokenSymbol,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate previous parameters: %w", err)
		}
	}

	var paramsID int64
	err = tx.QueryRow(
		`INSERT INTO vault_parameters (version, token_symbol, is_active, parameters)
		 VALUES ($1, $2, $3, $4)
		 RETURNING params_id;`,
		nextVersion, params.TokenSymbol, activate, paramsJSON,
	).Scan(&paramsID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert vault parameters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit parameters transaction: %w", err)
	}

	log.Info().
		Int64("params_id", paramsID).
		Int("version", nextVersion).
		Str("token_symbol", params.TokenSymbol).
		Bool("active", activate).
		Msg("Vault parameters saved")

	return paramsID, nil
}

// GetActiveVaultParameters loads the currently active parameter set for one
// vault. Returns sql.ErrNoRows wrapped when none is active.
func GetActiveVaultParameters(tokenSymbol string) (types.VaultParameters, error) {
	if DB == nil {
		return types.VaultParameters{}, fmt.Errorf("database not initialized")
	}

	var paramsJSON []byte
	err := DB.QueryRow(
		`SELECT parameters FROM vault_parameters
		 WHERE token_symbol = $1 AND is_active = TRUE
		 ORDER BY activated_at DESC
		 LIMIT 1;`,
		tokenSymbol,
	).Scan(&paramsJSON)
	if err != nil {
		if err == sql.ErrNoRows {
			return types.VaultParameters{}, fmt.Errorf("no active parameters for vault %s: %w", tokenSymbol, err)
		}
		return types.VaultParameters{}, fmt.Errorf("failed to load vault parameters: %w", err)
	}

	var params types.VaultParameters
	if err := json.Unmarshal(paramsJSON, &params); err != nil {
		return types.VaultParameters{}, fmt.Errorf("failed to unmarshal vault parameters: %w", err)
	}
	return params, nil
}
