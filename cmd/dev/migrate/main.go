package main

import (
	"context"

	"shoppulse/pkg/config"
	"shoppulse/pkg/db"
	"shoppulse/pkg/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg)
	if cfg.MigrationsPath == "" {
		cfg.MigrationsPath = "file://migrations"
	}
	if !cfg.HasDatabase() {
		logger.Fatal().Msg("no database configured: set DATABASE_URL or DB_HOST")
	}

	// This uses DIRECT_URL if set (recommended for Supabase migrations).
	if err := db.MigrateConfig(cfg.MigrationsPath, cfg); err != nil {
		logger.Fatal().Err(err).Msg("migrate failed")
	}

	// Sanity check that the runtime connection opens too. DSNs are never logged.
	pool, err := db.Open(context.Background(), cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("runtime db open failed")
	}
	pool.Close()

	logger.Info().Str("path", cfg.MigrationsPath).Msg("migrations applied")
}
