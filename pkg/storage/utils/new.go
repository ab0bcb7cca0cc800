// Package utils builds a storage.Driver from configuration.
package utils

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/vincenthz/ThinkMate/pkg/config"
	"github.com/vincenthz/ThinkMate/pkg/dotdir"
	"github.com/vincenthz/ThinkMate/pkg/logger"
	"github.com/vincenthz/ThinkMate/pkg/storage"
	"github.com/vincenthz/ThinkMate/pkg/storage/file"
	"github.com/vincenthz/ThinkMate/pkg/storage/inmemory"
	"github.com/vincenthz/ThinkMate/pkg/storage/postgres"
	"github.com/vincenthz/ThinkMate/pkg/storage/sqlite"
)

const defaultSQLiteName = "thinkmate.db"

// NewDriver opens the driver selected by c.Provider. configDir is the
// --config-dir override, used to place default file and SQLite locations.
func NewDriver(ctx context.Context, c config.StorageConfig, configDir string, log *slog.Logger) (storage.Driver, error) {
	log = logger.OrNop(log)

	switch c.Provider {
	case "", "file":
		dir, err := dotdir.NewManager().HistoryDir(configDir, c.HistoryDir)
		if err != nil {
			return nil, fmt.Errorf("resolving history directory: %w", err)
		}
		driver, err := file.NewDriver(dir, log)
		if err != nil {
			return nil, err
		}
		log.Info("using file storage", "dir", dir)
		return driver, nil

	case "sqlite":
		path := c.SQLitePath
		if path == "" {
			target, err := dotdir.NewManager().Target(configDir)
			if err != nil {
				return nil, fmt.Errorf("resolving sqlite path: %w", err)
			}
			path = filepath.Join(target, defaultSQLiteName)
		}
		driver, err := sqlite.NewDriver(ctx, path, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite store: %w", err)
		}
		log.Info("using SQLite storage", "path", path)
		return driver, nil

	case "postgres":
		if c.PostgresDSN == "" {
			return nil, errors.New("storage.postgres_dsn is required for the postgres provider")
		}
		driver, err := postgres.NewDriver(ctx, c.PostgresDSN, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL store: %w", err)
		}
		log.Info("using PostgreSQL storage")
		return driver, nil

	case "memory":
		log.Info("using in-memory storage")
		return inmemory.NewDriver(), nil

	default:
		return nil, fmt.Errorf("unknown storage provider %q (supported: %v)", c.Provider, config.StorageProviders)
	}
}
