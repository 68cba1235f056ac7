package storage

import (
	"context"
	"fmt"

	"readerstudy/internal/config"
	"readerstudy/internal/models"
)

// OutputReader reads persisted top-K rows outside an import batch.
type OutputReader interface {
	ListAIOutputs(ctx context.Context, caseID int) ([]models.AIOutput, error)
}

// Backend is a Store that can also serve read-back queries.
type Backend interface {
	Store
	OutputReader
}

// Open connects the backend named by cfg.StoreDriver and makes sure its schema exists.
func Open(ctx context.Context, cfg config.Config) (Backend, error) {
	switch cfg.StoreDriver {
	case "postgres":
		db, err := NewDB(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	case "sqlite":
		return OpenSQLite(ctx, cfg.SQLitePath)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
