package store

import (
	"context"
	"fmt"
)

// Store is the drink repository. Implementations are safe for concurrent use.
type Store interface {
	List(ctx context.Context) ([]Drink, error)
	// Get returns ErrNotFound for an unknown id.
	Get(ctx context.Context, id int64) (Drink, error)
	// Create assigns the id. A duplicate title is ErrConflict.
	Create(ctx context.Context, d Drink) (Drink, error)
	// Update replaces title and recipe of d.ID.
	Update(ctx context.Context, d Drink) (Drink, error)
	Delete(ctx context.Context, id int64) error
	// Reset drops all data and leaves only Seed.
	Reset(ctx context.Context) error
	Close() error
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver string
	// DSN is a file path for sqlite and a connection string for postgres.
	DSN string
}

// Open connects to the configured database and ensures the schema exists.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverSQLite:
		return NewSQLiteStore(ctx, cfg.DSN)
	case DriverPostgres:
		return NewPostgresStore(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
