package main

import (
	"fmt"
	"log/slog"

	"github.com/beamsim/beamsim/internal/config"
	"github.com/beamsim/beamsim/internal/geo"
	"github.com/beamsim/beamsim/internal/storage"
	"github.com/beamsim/beamsim/internal/storage/memory"
	pgstorage "github.com/beamsim/beamsim/internal/storage/postgres"
	redisstorage "github.com/beamsim/beamsim/internal/storage/redis"
	sqlitestorage "github.com/beamsim/beamsim/internal/storage/sqlite"
	wsstorage "github.com/beamsim/beamsim/internal/storage/websocket"
	"github.com/rs/zerolog"
)

// createStorageBackend builds the configured recording backend. It is not
// initialized yet.
func createStorageBackend(cfg config.StorageConfig, origin *geo.Origin, logger *slog.Logger, dbLog zerolog.Logger) (storage.Backend, error) {
	switch cfg.Type {
	case "postgres":
		backend, err := pgstorage.Open(cfg.Postgres, logger, dbLog, origin)
		if err != nil {
			return nil, err
		}
		logger.Info("Postgres storage backend initialized", "host", cfg.Postgres.Host)
		return backend, nil

	case "sqlite":
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: cfg.SQLite.DumpInterval,
			OutputDir:    cfg.SQLite.OutputDir,
		}, logger, dbLog, origin)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		logger.Info("SQLite storage backend initialized", "dir", cfg.SQLite.OutputDir)
		return backend, nil

	case "websocket":
		logger.Info("WebSocket storage backend initialized", "url", cfg.WebSocket.URL)
		return wsstorage.New(wsstorage.Config{
			URL:            cfg.WebSocket.URL,
			Secret:         cfg.WebSocket.Secret,
			ReconnectDelay: cfg.WebSocket.ReconnectDelay,
			AckTimeout:     cfg.WebSocket.AckTimeout,
		}, logger), nil

	case "redis":
		logger.Info("Redis storage backend initialized", "addr", cfg.Redis.Addr)
		return redisstorage.New(cfg.Redis, logger), nil

	case "memory", "":
		logger.Info("Memory storage backend initialized", "dir", cfg.Memory.OutputDir)
		return memory.New(cfg.Memory, origin), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
