package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"timewright/internal/config"
	"timewright/internal/store"
	"timewright/internal/store/postgres"
	"timewright/internal/store/sqlite"
)

const configFile = "timewright.yaml"

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// openDB dispatches on the DSN scheme. Both backends ensure the schema on
// open so a fresh database is usable immediately.
func openDB(ctx context.Context, cfg *config.ProjectConfig) (store.Store, error) {
	switch {
	case strings.HasPrefix(cfg.Database, "sqlite://"):
		db, err := sqlite.New(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close(ctx)
			return nil, err
		}
		return db, nil
	case strings.HasPrefix(cfg.Database, "postgres://"):
		db, err := postgres.New(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close(ctx)
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database %q", cfg.Database)
	}
}

func loadConfig() (*config.ProjectConfig, error) {
	return config.LoadProjectConfig(configFile)
}
