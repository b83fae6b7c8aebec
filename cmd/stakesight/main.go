package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/stakesight/stakesight/internal/chain"
	"github.com/stakesight/stakesight/internal/config"
	"github.com/stakesight/stakesight/internal/engine"
	"github.com/stakesight/stakesight/internal/logger"
	"github.com/stakesight/stakesight/internal/state"
	"github.com/stakesight/stakesight/internal/types"
	"github.com/stakesight/stakesight/internal/web"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// main is the entry point for the aggregation service.
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
	log.Info().Msg("Position aggregation engine starting...")

	// Initialize Database Connection (snapshot history for the dashboard)
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

	// --- Start Web Server ---
	webPort := os.Getenv("WEB_PORT")
	if webPort == "" {
		webPort = "8080"
	}

	webServer := web.NewWebServer(webPort)
	go func() {
		log.Info().Str("port", webPort).Str("url", "http://localhost:"+webPort).Msg("Starting snapshot API server")
		if err := webServer.Start(); err != nil {
			log.Error().Err(err).Msg("Web server failed to start")
		}
	}()

	// --- 2. Remote Object Client ---
	rpcClient, err := chain.NewClient(config.NodeRPC, config.RPCRateLimit)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize RPC client")
	}
	log.Info().Str("endpoint", config.NodeRPC).Msg("RPC client ready")

	// --- 3. Create Engine Instance with Dependency Injection ---
	engineConfig := engine.Config{
		Client:              rpcClient,
		PoolID:              types.ObjectID(config.PoolObjectID),
		PageSize:            config.PageSize,
		FetchConcurrency:    config.FetchConcurrency,
		FallbackBPSPerEpoch: config.FallbackBPSPerEpoch,
		Sink:                state.Sink{},
	}

	eng, err := engine.New(engineConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create engine instance")
	}

	log.Info().Str("poolID", config.PoolObjectID).Msg("Engine instance created successfully")

	// --- 4. Start Aggregation Loop ---
	interval := time.Duration(config.LoopIntervalMinutes) * time.Minute
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng.RunLoop(ctx, interval)
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
