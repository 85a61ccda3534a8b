// Package postgres implements the storage.Backend interface on PostgreSQL.
// It is the GORM backend on a pooled postgres connection with the PostGIS
// extension, written in batches by the background writer.
package postgres

import (
	"fmt"
	"log/slog"

	"github.com/beamsim/beamsim/internal/config"
	"github.com/beamsim/beamsim/internal/database"
	"github.com/beamsim/beamsim/internal/geo"
	gormstorage "github.com/beamsim/beamsim/internal/storage/gorm"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Dependencies holds all dependencies for the postgres storage backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger *slog.Logger
	Origin *geo.Origin
}

// Backend implements storage.Backend using GORM/PostgreSQL with queue-based batch writes.
type Backend struct {
	*gormstorage.Backend
}

// New wraps an open, migrated connection.
func New(deps Dependencies) *Backend {
	return &Backend{
		Backend: gormstorage.New(gormstorage.Dependencies{
			DB:     deps.DB,
			Logger: deps.Logger,
			Origin: deps.Origin,
		}),
	}
}

// Open connects to the configured server, migrates the schema and returns
// the backend. The connection is validated before returning.
func Open(cfg config.PostgresConfig, logger *slog.Logger, dbLog zerolog.Logger, origin *geo.Origin) (*Backend, error) {
	db, err := database.GetPostgresDB(cfg, dbLog)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := database.Setup(db, dbLog); err != nil {
		return nil, fmt.Errorf("failed to setup DB: %w", err)
	}
	return New(Dependencies{DB: db, Logger: logger, Origin: origin}), nil
}
