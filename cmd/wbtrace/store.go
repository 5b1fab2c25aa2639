package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jask/wbtrace/internal/config"
	"github.com/jask/wbtrace/internal/database"
	"github.com/jask/wbtrace/internal/database/boltstore"
	"github.com/jask/wbtrace/internal/database/memstore"
	"github.com/jask/wbtrace/internal/database/postgres"
	"github.com/jask/wbtrace/internal/database/repository"
	"github.com/jask/wbtrace/internal/storage"
)

// migrate applies the bundled schema for the SQL drivers.
func migrate(cfg config.StorageConfig) error {
	switch cfg.Driver {
	case config.DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return fmt.Errorf("mkdir db dir: %w", err)
		}
		return database.RunMigrations(cfg.Path)
	case config.DriverPostgres:
		return database.RunPostgresMigrations(cfg.URL)
	default:
		return nil
	}
}

func openStore(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (storage.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := migrate(cfg); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	switch cfg.Driver {
	case config.DriverSQLite:
		db, err := database.Open(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		logger.Info("storage ready", "driver", cfg.Driver, "path", cfg.Path)
		return repository.NewStore(db), nil
	case config.DriverPostgres:
		s, err := postgres.Open(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		logger.Info("storage ready", "driver", cfg.Driver)
		return s, nil
	case config.DriverBolt:
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir db dir: %w", err)
		}
		s, err := boltstore.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		logger.Info("storage ready", "driver", cfg.Driver, "path", cfg.Path)
		return s, nil
	default:
		logger.Warn("using in-memory storage; data is lost on exit")
		return memstore.New(), nil
	}
}
