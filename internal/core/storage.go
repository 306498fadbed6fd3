package core

import (
	"context"
	"fmt"
	"io"

	"epibot/internal/config"
	"epibot/internal/infra/persistence/memory"
	"epibot/internal/infra/persistence/postgres"
	"epibot/internal/infra/persistence/sqlite"
	"epibot/pkg/domain"
)

// StorageDriver identifies a concrete record store implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// OpenRecordStore selects a backend from cfg. The returned closer releases the
// backend's resources and is never nil on success.
func OpenRecordStore(ctx context.Context, cfg config.StorageConfig) (domain.RecordStore, io.Closer, error) {
	driver := StorageDriver(cfg.Driver)
	if driver == "" {
		driver = StorageSQLite
	}
	switch driver {
	case StorageMemory:
		return memory.NewStore(), nopCloser{}, nil
	case StorageSQLite:
		store, err := sqlite.NewStore(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}
