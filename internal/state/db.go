// ./internal/state/db.go
package state

import (
	"context"
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
		CREATE TABLE IF NOT EXISTS vaults (
			vault_id VARCHAR(255) PRIMARY KEY,
			authority VARCHAR(255) NOT NULL,
			base_asset_id VARCHAR(255) NOT NULL,
			claim_token_asset_id VARCHAR(255) NOT NULL,
			claim_token_supply NUMERIC(20, 0) NOT NULL DEFAULT 0,
			purchased_asset_count NUMERIC(20, 0) NOT NULL DEFAULT 0,
			distribution_epoch NUMERIC(20, 0) NOT NULL DEFAULT 0,
			treasury_account VARCHAR(255) NOT NULL,
			fee_account VARCHAR(255) NOT NULL,
			sale_fee_bps INTEGER NOT NULL,
			distribution_fee_bps INTEGER NOT NULL,
			reference_asset_value NUMERIC(20, 0) NOT NULL,
			share_policy VARCHAR(32) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS distribution_rounds (
			vault_id VARCHAR(255) NOT NULL REFERENCES vaults(vault_id),
			epoch NUMERIC(20, 0) NOT NULL,
			total_amount NUMERIC(20, 0) NOT NULL,
			distribution_fee NUMERIC(20, 0) NOT NULL,
			distributable NUMERIC(20, 0) NOT NULL,
			per_unit NUMERIC(20, 0) NOT NULL,
			residual NUMERIC(20, 0) NOT NULL,
			round_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (vault_id, epoch)
		);

		CREATE TABLE IF NOT EXISTS distribution_payouts (
			vault_id VARCHAR(255) NOT NULL,
			epoch NUMERIC(20, 0) NOT NULL,
			holder VARCHAR(255) NOT NULL,
			amount NUMERIC(20, 0) NOT NULL,
			paid_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (vault_id, epoch, holder),
			FOREIGN KEY (vault_id, epoch) REFERENCES distribution_rounds(vault_id, epoch)
		);

		CREATE TABLE IF NOT EXISTS operation_receipts (
			receipt_id SERIAL PRIMARY KEY,
			operation_id VARCHAR(64) NOT NULL,
			vault_id VARCHAR(255) NOT NULL,
			kind VARCHAR(32) NOT NULL,
			amount NUMERIC(20, 0) NOT NULL DEFAULT 0,
			status VARCHAR(16) NOT NULL,
			message TEXT,
			receipt_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_operation_receipts_timestamp ON operation_receipts(receipt_timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_operation_receipts_vault ON operation_receipts(vault_id);
		CREATE INDEX IF NOT EXISTS idx_operation_receipts_kind ON operation_receipts(kind);
	`
	_, err := DB.Exec(schemaSQL)
	if err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
