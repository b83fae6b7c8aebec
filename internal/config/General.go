package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// NodeRPC is the JSON-RPC endpoint of the full node.
	NodeRPC string

	// PoolObjectID is the on-chain object ID of the liquid-staking pool this
	// instance aggregates.
	PoolObjectID string

	// PageSize is the page limit used when draining paginated dynamic-field tables.
	PageSize int
	// FetchConcurrency bounds the parallel object fetches issued within one
	// pagination tier. Unbounded fan-out against a shared public endpoint
	// trips rate limits.
	FetchConcurrency int
	// RPCRateLimit is the client-side request budget in requests per second.
	RPCRateLimit float64

	// FallbackBPSPerEpoch is the basis-point-per-epoch accrual used by the
	// conservative reward estimator when a deposit-epoch rate snapshot is not
	// recorded yet. It affects displayed figures only, never contract-settled
	// amounts, so it is an explicit tunable rather than a buried constant.
	FallbackBPSPerEpoch int64

	// LoopIntervalMinutes is how often the reporting loop recomputes a snapshot.
	LoopIntervalMinutes int
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// Endpoint and pool identity are required; tunables fall back to defaults.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	NodeRPC, err = getEnv("NODE_RPC")
	if err != nil {
		return err
	}

	PoolObjectID, err = getEnv("POOL_OBJECT_ID")
	if err != nil {
		return err
	}

	PageSize = getEnvAsIntWithDefault("PAGE_SIZE", DefaultPageSize)
	FetchConcurrency = getEnvAsIntWithDefault("FETCH_CONCURRENCY", DefaultFetchConcurrency)
	RPCRateLimit = getEnvAsFloatWithDefault("RPC_RATE_LIMIT", DefaultRPCRateLimit)
	FallbackBPSPerEpoch = int64(getEnvAsIntWithDefault("FALLBACK_BPS_PER_EPOCH", DefaultFallbackBPSPerEpoch))
	LoopIntervalMinutes = getEnvAsIntWithDefault("LOOP_INTERVAL_MINUTES", DefaultLoopIntervalMinutes)

	if PageSize <= 0 {
		return fmt.Errorf("PAGE_SIZE must be positive, got %d", PageSize)
	}
	if FetchConcurrency <= 0 {
		return fmt.Errorf("FETCH_CONCURRENCY must be positive, got %d", FetchConcurrency)
	}
	if FallbackBPSPerEpoch < 0 {
		return fmt.Errorf("FALLBACK_BPS_PER_EPOCH must not be negative, got %d", FallbackBPSPerEpoch)
	}

	log.Debug().
		Str("NodeRPC", NodeRPC).
		Str("PoolObjectID", PoolObjectID).
		Int("PageSize", PageSize).
		Int("FetchConcurrency", FetchConcurrency).
		Float64("RPCRateLimit", RPCRateLimit).
		Int64("FallbackBPSPerEpoch", FallbackBPSPerEpoch).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a required environment variable.
func getEnv(key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", errors.New("required environment variable not set: " + key)
	}
	return value, nil
}

// getEnvAsIntWithDefault retrieves an int environment variable, falling back to
// the default when unset or unparsable.
func getEnvAsIntWithDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid integer environment variable, using default")
		return defaultValue
	}
	return parsed
}

// getEnvAsFloatWithDefault retrieves a float environment variable, falling back
// to the default when unset or unparsable.
func getEnvAsFloatWithDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Warn().Str("key", key).Str("value", value).Msg("Invalid float environment variable, using default")
		return defaultValue
	}
	return parsed
}
