package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// ChainID is the EVM chain ID of the target network.
	ChainID uint64

	// ManagerAddress is the leverage manager contract (V1 preview reads).
	ManagerAddress common.Address
	// RouterV1Address is the V1 leverage router (on-chain swap context path).
	RouterV1Address common.Address
	// RouterV2Address is the V2 leverage router. Leaving it unset selects the
	// V1 execution path.
	RouterV2Address common.Address
	// WrappedNativeAddress is the chain's wrapped native token (e.g. WETH).
	WrappedNativeAddress common.Address

	// DefaultSlippageBps is the slippage floor applied to plans when the
	// caller does not supply one, in basis points.
	DefaultSlippageBps uint32
	// QuoteMaxRefineIterations bounds the exact-in refinement loop when a
	// quote source cannot answer exact-out requests directly.
	QuoteMaxRefineIterations int

	// ExecutorKeyHex is the hex-encoded private key used for simulate-then-send
	// execution. Optional: when empty the service runs in plan-only mode.
	ExecutorKeyHex string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required unless noted otherwise.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	ChainID, err = getEnvAsUint64("CHAIN_ID")
	if err != nil {
		return err
	}

	ManagerAddress, err = getEnvAsAddress("MANAGER_ADDRESS")
	if err != nil {
		return err
	}

	RouterV1Address, err = getEnvAsAddress("ROUTER_V1_ADDRESS")
	if err != nil {
		return err
	}

	// ROUTER_V2_ADDRESS is optional; absence selects the V1 path.
	if raw, exists := os.LookupEnv("ROUTER_V2_ADDRESS"); exists && raw != "" {
		if !common.IsHexAddress(raw) {
			return errors.New("environment variable ROUTER_V2_ADDRESS must be a valid hex address, got: " + raw)
		}
		RouterV2Address = common.HexToAddress(raw)
	}

	WrappedNativeAddress, err = getEnvAsAddress("WRAPPED_NATIVE_ADDRESS")
	if err != nil {
		return err
	}

	slippage, err := getEnvAsUint64("DEFAULT_SLIPPAGE_BPS")
	if err != nil {
		return err
	}
	if slippage > 10000 {
		return errors.New("environment variable DEFAULT_SLIPPAGE_BPS must be within [0, 10000]")
	}
	DefaultSlippageBps = uint32(slippage)

	refine, err := getEnvAsUint64("QUOTE_MAX_REFINE_ITERATIONS")
	if err != nil {
		return err
	}
	if refine == 0 || refine > 16 {
		return errors.New("environment variable QUOTE_MAX_REFINE_ITERATIONS must be within [1, 16]")
	}
	QuoteMaxRefineIterations = int(refine)

	// Optional signing key; plan-only deployments leave it unset.
	ExecutorKeyHex = os.Getenv("EXECUTOR_PRIVATE_KEY")

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	log.Debug().
		Uint64("ChainID", ChainID).
		Str("Manager", ManagerAddress.Hex()).
		Str("RouterV1", RouterV1Address.Hex()).
		Str("RouterV2", RouterV2Address.Hex()).
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

// getEnvAsAddress retrieves an environment variable as an EVM address. Returns error if not set or invalid.
func getEnvAsAddress(key string) (common.Address, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(valueStr) {
		return common.Address{}, errors.New("environment variable " + key + " must be a valid hex address, got: " + valueStr)
	}
	return common.HexToAddress(valueStr), nil
}
