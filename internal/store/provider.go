package store

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/huolter/50c14l/internal/common/config"
	"github.com/huolter/50c14l/internal/db"
)

// Provide builds the configured Repository implementation.
func Provide(cfg *config.Config) (Repository, error) {
	switch cfg.Database.Driver {
	case "memory":
		return NewMemoryRepository(), nil

	case "sqlite":
		writerDB, err := db.OpenSQLite(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite writer: %w", err)
		}
		readerDB, err := db.OpenSQLiteReader(cfg.Database.Path)
		if err != nil {
			_ = writerDB.Close()
			return nil, fmt.Errorf("failed to open sqlite reader: %w", err)
		}
		pool := db.NewPool(
			sqlx.NewDb(writerDB, "sqlite3"),
			sqlx.NewDb(readerDB, "sqlite3"),
		)
		return NewSQLiteRepository(pool)

	case "postgres":
		pgDB, err := db.OpenPostgres(cfg.Database.DSN(), cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		// pgx pools internally, so writer and reader share one handle.
		shared := sqlx.NewDb(pgDB, "pgx")
		pool := db.NewPool(shared, shared)
		return NewSQLiteRepository(pool)

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}
