package main

import (
	"context"
	"os"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/origami-labs/lovm/internal/config"
	"github.com/origami-labs/lovm/internal/datafeed"
	"github.com/origami-labs/lovm/internal/executor"
	"github.com/origami-labs/lovm/internal/fees"
	"github.com/origami-labs/lovm/internal/lending"
	"github.com/origami-labs/lovm/internal/logger"
	"github.com/origami-labs/lovm/internal/oracle"
	"github.com/origami-labs/lovm/internal/overlord"
	"github.com/origami-labs/lovm/internal/prices"
	"github.com/origami-labs/lovm/internal/quote"
	"github.com/origami-labs/lovm/internal/state"
	"github.com/origami-labs/lovm/internal/swap"
	"github.com/origami-labs/lovm/internal/types"
	"github.com/origami-labs/lovm/internal/vault"
	"github.com/origami-labs/lovm/internal/web"
)

const (
	ORACLE_ID        = "WSTETH_WETH_CHAINLINK"
	ORACLE_STALENESS = 15 * time.Minute
	DOWN_ROUTER_ID   = "sim-weth-wsteth"
	UP_ROUTER_ID     = "sim-wsteth-weth"
)

// main is the entry point for the lovToken vault manager.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	// Load configuration from environment variables
	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("lovToken vault manager starting...")

	// Initialize Database Connection
	dbCfg := state.DBConfig{
		Host: config.DBHost, Port: config.DBPort,
		User: config.DBUser, Password: config.DBPassword,
		DBName: config.DBName, SSLMode: config.DBSSLMode,
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// Load Vault Parameters
	params, err := state.GetActiveVaultParameters(config.VaultSymbol)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load active vault parameters, using defaults and saving.")
		params = config.DefaultVaultParameters
		if _, err := state.SaveVaultParameters(params, true); err != nil {
			log.Fatal().Err(err).Msg("Failed to save initial default vault parameters.")
		}
	}
	log.Info().Str("symbol", params.TokenSymbol).Msg("Vault parameters loaded successfully.")

	reserveToken := config.TokenWSTETH
	debtToken := config.TokenWETH

	// --- 2. Market Wiring (with Safety Switch) ---
	// The oracle prices one wETH in wstETH terms (reserve per debt).
	oracleSource := oracle.NewStaticSource("Chainlink wstETH/wETH mirror")
	wstPerWeth := sdkmath.LegacyMustNewDecFromStr("0.8621")
	oracleSource.SetSpotAndHistoric(wstPerWeth, wstPerWeth, time.Now())
	debtOracle := oracle.New(oracleSource, ORACLE_STALENESS, time.Now)

	var adapter lending.Adapter
	var flashLender lending.FlashLoanProvider
	var downRouter, upRouter *swap.SimulatedRouter
	var dexPrice overlord.DexPriceSource

	mode := os.Getenv("LOVM_MODE")
	if mode == "sim" {
		log.Info().Msg("Initializing in SIM mode. Markets are simulated in-process.")

		market := lending.NewSimulatedMarket("Spark wstETH/wETH mirror", sdkmath.LegacyNewDec(1_000_000))
		adapter = market
		flashLender = lending.NewSimulatedFlashLender(sdkmath.LegacyNewDec(1_000_000), config.RebalanceFlashFeeBps)

		// Swap prices are quoted buy-per-sell for each direction.
		downRouter = swap.NewSimulatedRouter(DOWN_ROUTER_ID, debtToken.Address, reserveToken.Address,
			sdkmath.LegacyMustNewDecFromStr("0.8618"))
		upRouter = swap.NewSimulatedRouter(UP_ROUTER_ID, reserveToken.Address, debtToken.Address,
			sdkmath.LegacyMustNewDecFromStr("1.1601"))

		feed, err := datafeed.NewFeed(context.Background(),
			datafeed.DefaultConfig(config.DexFeedEndpoint, config.DexFeedPair))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to start dex price feed")
		}
		defer feed.Close()
		dexPrice = feed
	} else {
		log.Fatal().Msg("LOVM_MODE is not set to 'sim'. Halting to prevent accidental execution against live markets. Set LOVM_MODE=sim to run.")
	}

	routers, err := swap.NewWhitelist(config.AdminKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create router whitelist")
	}
	for _, r := range []*swap.SimulatedRouter{downRouter, upRouter} {
		if err := routers.Register(config.AdminKey, r); err != nil {
			log.Fatal().Err(err).Str("router", r.ID()).Msg("Failed to register router")
		}
		if err := routers.WhitelistRouter(config.AdminKey, r.ID(), true); err != nil {
			log.Fatal().Err(err).Str("router", r.ID()).Msg("Failed to whitelist router")
		}
	}

	// --- 3. Price Registry ---
	registry, err := prices.NewRegistry(prices.Config{Version: 1, AdminKey: config.AdminKey})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create price registry")
	}
	if err := registry.RegisterOracleSource(config.AdminKey, ORACLE_ID, oracleSource); err != nil {
		log.Fatal().Err(err).Msg("Failed to register oracle source")
	}
	mustSetPrice(registry, debtToken.Address, prices.Scalar{Value: sdkmath.LegacyOneDec()})
	mustSetPrice(registry, reserveToken.Address, prices.Mul{
		// wstETH/wETH = 1 / (wstETH per wETH); the oracle lookup composes
		// with the debt token's own price so re-basing wETH re-bases wstETH.
		A: prices.OracleLookup{
			OracleID:  ORACLE_ID,
			PriceType: types.SpotPrice,
			Rounding:  types.RoundDown,
			Staleness: ORACLE_STALENESS,
			Invert:    true,
		},
		B: prices.Alias{Token: debtToken.Address},
	})

	// --- 4. Vault, Executor, Quote Engine ---
	lovVault, err := vault.NewVault(vault.Config{
		Params:       params,
		ReserveToken: reserveToken,
		DebtToken:    debtToken,
		Adapter:      adapter,
		DebtOracle:   debtOracle,
		Registry:     registry,
		AdminKey:     config.AdminKey,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create vault")
	}

	// The lovToken itself prices through the registry as an ERC-4626 share.
	lovTokenAddress := types.TokenAddress(params.TokenSymbol)
	if err := registry.RegisterErc4626(config.AdminKey, lovTokenAddress, lovVault); err != nil {
		log.Fatal().Err(err).Msg("Failed to register vault as ERC-4626 reader")
	}
	mustSetPrice(registry, lovTokenAddress, prices.Erc4626Share{Vault: lovTokenAddress})

	exec, err := executor.NewExecutor(executor.Config{
		Vault:           lovVault,
		Adapter:         adapter,
		FlashLender:     flashLender,
		FlashLoanFeeBps: config.RebalanceFlashFeeBps,
		Routers:         routers,
		OverlordKey:     config.OverlordKey,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create executor")
	}

	engine, err := quote.NewEngine(quote.Config{
		Vault: lovVault,
		Curve: fees.LeverageProximityCurve{},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create quote engine")
	}

	// --- 5. Web Server ---
	webServer := web.NewWebServer(config.WebServerPort, lovVault, engine)
	go func() {
		log.Info().Str("port", config.WebServerPort).Msg("Starting vault web API")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 6. Overlord Main Loop ---
	overlordInstance, err := overlord.NewOverlord(overlord.Config{
		Vault:       lovVault,
		Executor:    exec,
		DebtOracle:  debtOracle,
		DexPrice:    dexPrice,
		DownQuoter:  downRouter,
		UpQuoter:    upRouter,
		Store:       state.Store{},
		OverlordKey: config.OverlordKey,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create overlord instance")
	}

	interval := time.Duration(config.CycleIntervalSeconds) * time.Second
	log.Info().Str("interval", interval.String()).Msg("Starting overlord main loop")

	ctx := context.Background()
	overlordInstance.RunLoop(ctx, interval)
}

func mustSetPrice(registry *prices.Registry, token types.TokenAddress, fn prices.PriceFunction) {
	if err := registry.Set(config.AdminKey, token, fn); err != nil {
		log.Fatal().Err(err).Str("token", string(token)).Msg("Failed to set price function")
	}
}
