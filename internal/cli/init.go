// Package cli consolidates the initialization shared by cmd/finanzas
// and cmd/finanzas-worker.
package cli

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"finanzas/internal/config"
	applog "finanzas/internal/log"
	"finanzas/internal/storage"
)

// SetupLogger initializes structured logging with the given component
// name and sets it as the process default.
func SetupLogger(component string) *applog.Logger {
	logger := applog.New(applog.Config{
		Level:     slog.LevelInfo,
		Component: component,
	})
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitStorage opens the ledger store and runs migrations.
// Returns the repository or exits the process on failure.
func InitStorage(logger *applog.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize ledger store", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}
