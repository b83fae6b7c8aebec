// ./internal/state/db.go
package state

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	psqlInfo := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	var err error
	DB, err = sql.Open("postgres", psqlInfo)
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
	}
}

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	schemaSQL := `
		CREATE TABLE IF NOT EXISTS pool_snapshots (
			snapshot_id SERIAL PRIMARY KEY,
			run_id TEXT NOT NULL,
			pool_id TEXT NOT NULL,
			epoch BIGINT NOT NULL,
			paused BOOLEAN NOT NULL DEFAULT FALSE,
			total_principal NUMERIC(39, 0) NOT NULL,
			pending_stake NUMERIC(39, 0) NOT NULL,
			total_rewards NUMERIC(39, 0) NOT NULL,
			total_value NUMERIC(39, 0) NOT NULL,
			active_positions INTEGER NOT NULL,
			pending_positions INTEGER NOT NULL,
			estimated_positions INTEGER NOT NULL,
			skipped_entries INTEGER NOT NULL,
			reconcile_status TEXT NOT NULL,
			reconcile_delta NUMERIC(39, 0) NOT NULL,
			needs_update BOOLEAN NOT NULL,
			payload JSONB NOT NULL,
			computed_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_pool_snapshots_pool_epoch
			ON pool_snapshots (pool_id, epoch DESC);
		CREATE INDEX IF NOT EXISTS idx_pool_snapshots_computed_at
			ON pool_snapshots (computed_at DESC);

		CREATE TABLE IF NOT EXISTS validator_summaries (
			summary_id SERIAL PRIMARY KEY,
			snapshot_id INTEGER NOT NULL REFERENCES pool_snapshots(snapshot_id) ON DELETE CASCADE,
			validator TEXT NOT NULL,
			principal NUMERIC(39, 0) NOT NULL,
			rewards NUMERIC(39, 0) NOT NULL,
			current_value NUMERIC(39, 0) NOT NULL,
			active_positions INTEGER NOT NULL,
			pending_positions INTEGER NOT NULL,
			estimated_positions INTEGER NOT NULL,
			earliest_activation_epoch BIGINT NOT NULL DEFAULT 0,
			synthetic BOOLEAN NOT NULL DEFAULT FALSE
		);

		CREATE INDEX IF NOT EXISTS idx_validator_summaries_snapshot
			ON validator_summaries (snapshot_id);
	`

	if _, err := DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to ensure database schema: %w", err)
	}

	log.Info().Msg("Database schema ensured successfully.")
	return nil
}
