package main

import (
	"context"
	"fmt"

	"github.com/nerrad567/climate-core/internal/infrastructure/config"
	"github.com/nerrad567/climate-core/internal/infrastructure/database"
	"github.com/nerrad567/climate-core/internal/infrastructure/logging"
	"github.com/nerrad567/climate-core/migrations"
)

// loadConfig loads the configuration and builds the configured logger.
func loadConfig(path string) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, logging.New(cfg.Logging, version), nil
}

// openStore opens the database without touching the schema.
func openStore(cfg *config.Config) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

func newMigrator(db *database.DB, log *logging.Logger) (*database.Migrator, error) {
	m, err := database.NewMigrator(db, migrations.All(), migrations.Detector())
	if err != nil {
		return nil, err
	}
	m.SetLogger(log)
	return m, nil
}

// openMigratedStore opens the database and brings the schema up to date.
// Nothing else may touch the store before this returns.
func openMigratedStore(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	m, err := newMigrator(db, log)
	if err != nil {
		db.Close()
		return nil, err
	}
	report, err := m.Run(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready",
		"path", cfg.Database.Path,
		"schema_version", report.To,
		"applied", len(report.Applied),
	)
	return db, nil
}
