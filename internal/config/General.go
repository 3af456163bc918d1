package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// VaultSymbol is the lovToken symbol this instance manages.
	VaultSymbol string

	// AdminKey authorizes administrative operations (price registry swaps,
	// router whitelisting).
	AdminKey string
	// OverlordKey authorizes rebalance execution.
	OverlordKey string

	// CycleIntervalSeconds is how often the overlord runs a cycle.
	CycleIntervalSeconds uint64

	// RebalanceFlashFeeBps is the fee the flash lender charges, in bps.
	RebalanceFlashFeeBps uint64

	// WebServerPort is the port for the HTTP API.
	WebServerPort string

	// Database connection settings.
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required and must be set.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	VaultSymbol, err = getEnv("LOVM_VAULT_SYMBOL")
	if err != nil {
		return err
	}

	AdminKey, err = getEnv("LOVM_ADMIN_KEY")
	if err != nil {
		return err
	}

	OverlordKey, err = getEnv("LOVM_OVERLORD_KEY")
	if err != nil {
		return err
	}

	CycleIntervalSeconds, err = getEnvAsUint64("LOVM_CYCLE_INTERVAL_SECONDS")
	if err != nil {
		return err
	}

	RebalanceFlashFeeBps, err = getEnvAsUint64("LOVM_FLASH_FEE_BPS")
	if err != nil {
		return err
	}

	WebServerPort, err = getEnv("LOVM_WEB_PORT")
	if err != nil {
		return err
	}

	DBHost, err = getEnv("DB_HOST")
	if err != nil {
		return err
	}

	DBPort, err = getEnvAsInt("DB_PORT")
	if err != nil {
		return err
	}

	DBUser, err = getEnv("DB_USER")
	if err != nil {
		return err
	}

	DBPassword, err = getEnv("DB_PASSWORD")
	if err != nil {
		return err
	}

	DBName, err = getEnv("DB_NAME")
	if err != nil {
		return err
	}

	DBSSLMode, err = getEnv("DB_SSLMODE")
	if err != nil {
		return err
	}

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("VaultSymbol", VaultSymbol).
		Uint64("CycleIntervalSeconds", CycleIntervalSeconds).
		Str("WebServerPort", WebServerPort).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsUint64 retrieves an environment variable as a uint64. Returns error if not set or invalid.
func getEnvAsUint64(key string) (uint64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseUint(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid uint64, got: " + valueStr)
	}
	return value, nil
}

// getEnvAsInt retrieves an environment variable as an int. Returns error if not set or invalid.
func getEnvAsInt(key string) (int, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int, got: " + valueStr)
	}
	return value, nil
}
