package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/vivipolli/evergreen-protocol/internal/config"
	"github.com/vivipolli/evergreen-protocol/internal/engine"
	"github.com/vivipolli/evergreen-protocol/internal/ledger"
	"github.com/vivipolli/evergreen-protocol/internal/logger"
	"github.com/vivipolli/evergreen-protocol/internal/state"
	"github.com/vivipolli/evergreen-protocol/internal/types"
	"github.com/vivipolli/evergreen-protocol/internal/web"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// main is the entry point for the vault engine service.
func main() {
	// --- 1. Initialization Phase ---
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := config.LoadConfig(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger.Initialize(os.Getenv("LOG_LEVEL"))
	log.Info().Msg("Evergreen vault engine starting...")

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

	// --- 2. Ledger Selection (with Safety Switch) ---
	// Only the in-process ledger is wired; a chain-backed ledger service plugs
	// in here without touching the engine.
	var lgr ledger.Ledger
	ledgerMode := os.Getenv("LEDGER_MODE")
	if ledgerMode == "memory" {
		log.Warn().Msg("Using in-memory ledger. Balances are volatile and lost on restart.")
		lgr = ledger.NewMemoryLedger()
	} else {
		log.Fatal().Msg("LEDGER_MODE is not set to 'memory'. Halting to prevent accidental execution against an unconfigured ledger.")
	}

	// --- 3. Create Engine Instance with Dependency Injection ---
	eng, err := engine.New(engine.Config{
		Ledger:   lgr,
		Store:    state.NewVaultStore(),
		Journal:  state.NewPayoutJournal(),
		Recorder: state.NewOperationLog(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create vault engine")
	}

	// Initialize the vault on first boot; an existing vault is left untouched.
	ctx := context.Background()
	if _, err := eng.State(ctx, config.VaultID); err != nil {
		log.Info().Str("vault_id", config.VaultID).Msg("No vault state found, initializing")
		if _, err := eng.Initialize(ctx, engine.InitializeRequest{
			VaultID:         config.VaultID,
			Authority:       config.VaultAuthority,
			BaseAssetID:     config.BaseAssetID,
			TreasuryAccount: config.TreasuryAccount,
			FeeAccount:      config.FeeAccount,
			Schedule:        config.Schedule,
		}); err != nil && !isAlreadyInitialized(err) {
			log.Fatal().Err(err).Msg("Failed to initialize vault")
		}
	}

	// --- 4. Start Web Server ---
	webPort := os.Getenv("WEB_PORT")
	if webPort == "" {
		webPort = "8080"
	}

	webServer := web.NewWebServer(webPort, config.VaultID, eng)
	go func() {
		log.Info().Str("port", webPort).Msg("Starting vault HTTP API")
		if err := webServer.Start(); err != nil {
			log.Fatal().Err(err).Msg("Web server failed")
		}
	}()

	// Block until shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")
}

func isAlreadyInitialized(err error) bool {
	return errors.Is(err, types.ErrVaultExists)
}

// Helper to convert string to int with a default value
func mustAtoi(s string, defaultValue int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return i
}
