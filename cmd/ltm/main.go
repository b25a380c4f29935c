package main

import (
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/levered-fi/ltm/internal/config"
	"github.com/levered-fi/ltm/internal/executor"
	"github.com/levered-fi/ltm/internal/logger"
	"github.com/levered-fi/ltm/internal/orchestrator"
	"github.com/levered-fi/ltm/internal/preview"
	"github.com/levered-fi/ltm/internal/quote"
	"github.com/levered-fi/ltm/internal/state"
	"github.com/levered-fi/ltm/internal/wallet"
	"github.com/levered-fi/ltm/internal/web"
)

// main is the entry point for the leverage token manager service.
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
	log.Info().Msg("Leverage Token Manager Starting...")

	// Initialize Database Connection
	dbCfg := state.DBConfig{
		Host: os.Getenv("DB_HOST"), Port: mustAtoi(os.Getenv("DB_PORT"), 5432),
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: os.Getenv("DB_SSLMODE"),
	}
	if err := state.InitDB(dbCfg); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer state.CloseDB()
	if err := state.EnsureSchema(); err != nil {
		log.Fatal().Err(err).Msg("Failed to ensure database schema")
	}

	// --- 2. Chain Client Initialization ---
	client, err := ethclient.Dial(config.ChainRPC)
	if err != nil {
		log.Fatal().Err(err).Str("endpoint", config.ChainRPC).Msg("Failed to connect to chain RPC")
	}
	defer client.Close()
	log.Info().Str("endpoint", config.ChainRPC).Msg("Chain RPC connected")

	// --- 3. Preview Port and Quote Adapter Wiring ---
	version := orchestrator.DetectVersion()

	var port preview.ManagerPort
	if version == orchestrator.VersionV2 {
		v2, err := preview.NewRouterV2(client, config.ManagerAddress, config.RouterV2Address)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create V2 preview port")
		}
		port = v2
		log.Info().Str("router", config.RouterV2Address.Hex()).Msg("Using V2 router preview port")
	} else {
		v1, err := preview.NewManagerV1(client, config.ManagerAddress)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create V1 preview port")
		}
		port = v1
		log.Info().Str("manager", config.ManagerAddress.Hex()).Msg("Using V1 manager preview port")
	}

	adapter, err := quote.NewAggregatorAdapter(config.AggregatorAPI)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create aggregator quote adapter")
	}

	// --- 4. Execution Wiring (with Safety Switch) ---
	var exec *executor.Executor
	var executorAddress common.Address
	if os.Getenv("LTM_MODE") == "live" {
		log.Warn().Msg("Initializing in LIVE mode. Real transactions will be broadcast.")
		signer, err := wallet.NewSigningClient(client)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize signing client")
		}
		exec, err = executor.NewExecutor(signer, config.RouterV1Address, config.RouterV2Address)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize executor")
		}
		executorAddress = signer.Address()
	} else {
		log.Info().Msg("LTM_MODE is not 'live': running in plan-only mode, execution endpoints disabled.")
	}

	// --- 5. Create Orchestrator with Dependency Injection ---
	orch, err := orchestrator.NewOrchestrator(orchestrator.Config{
		Port:            port,
		Adapter:         adapter,
		Executor:        exec,
		ExecutorAddress: executorAddress,
		Version:         version,
		PersistPlans:    true,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create orchestrator")
	}

	// --- 6. Start Web Server ---
	webPort := os.Getenv("WEB_PORT")
	if webPort == "" {
		webPort = "8080"
	}

	webServer := web.NewWebServer(webPort, orch)
	go func() {
		log.Info().Str("port", webPort).Str("url", "http://localhost:"+webPort).Msg("Starting API server")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 7. Wait for Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutdown signal received, closing down")
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
