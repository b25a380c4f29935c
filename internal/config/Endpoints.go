package config

import (
	"github.com/rs/zerolog/log"
)

// Endpoint configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// ChainRPC is the JSON-RPC endpoint for the EVM node.
	ChainRPC string
	// AggregatorAPI is the base URL of the swap aggregator quoting API.
	AggregatorAPI string
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	log.Info().Msg("Loading endpoint configuration from environment variables...")

	var err error

	ChainRPC, err = getEnv("CHAIN_RPC")
	if err != nil {
		return err
	}

	AggregatorAPI, err = getEnv("AGGREGATOR_API")
	if err != nil {
		return err
	}

	log.Debug().
		Str("ChainRPC", ChainRPC).
		Str("AggregatorAPI", AggregatorAPI).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}
