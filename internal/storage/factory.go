package storage

import (
	"context"
	"fmt"

	"github.com/hyperjump/ruiji/internal/config"
)

// New opens the store selected by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig) (VectorStore, error) {
	switch cfg.Driver {
	case "sqlite", "":
		return NewSQLiteStore(cfg.DatabasePath)
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("postgres driver requires storage.database_url or RUIJI_DATABASE_URL")
		}
		return NewPostgresStore(ctx, cfg.DatabaseURL)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}
