package config

import (
	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// DexFeedEndpoint is the websocket URL of the DEX price stream.
	DexFeedEndpoint string
	// DexFeedPair is the market the feed subscribes to, e.g. "WSTETH/WETH".
	DexFeedPair string
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var err error

	DexFeedEndpoint, err = getEnv("DEX_FEED_ENDPOINT")
	if err != nil {
		return err
	}

	DexFeedPair, err = getEnv("DEX_FEED_PAIR")
	if err != nil {
		return err
	}

	log.Debug().
		Str("DexFeedEndpoint", DexFeedEndpoint).
		Str("DexFeedPair", DexFeedPair).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
