package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"

	"github.com/JonMunkholm/csvimport/internal/config"
	"github.com/JonMunkholm/csvimport/internal/importer"
	"github.com/JonMunkholm/csvimport/internal/store"
	"github.com/JonMunkholm/csvimport/internal/store/memstore"
	"github.com/JonMunkholm/csvimport/internal/store/pgstore"
	"github.com/JonMunkholm/csvimport/internal/store/sqlstore"
)

// Backend is the persistence target imports are bound to.
// Exactly one of Memory, Postgres or SQL is set, matching Driver.
type Backend struct {
	Driver string

	Memory   *memstore.DB
	Postgres pgstore.Beginner
	SQL      *sqlx.DB

	// PG tunes the PostgreSQL writer.
	PG pgstore.Options
	// BatchSize caps rows per INSERT for the SQL backends.
	BatchSize int
}

// MemoryBackend returns a backend writing to db.
func MemoryBackend(db *memstore.DB) Backend {
	return Backend{Driver: config.DriverMemory, Memory: db}
}

// OpenBackend connects to the database configured in cfg. The returned
// close function releases the connection pool.
func OpenBackend(ctx context.Context, cfg *config.Config) (Backend, func(), error) {
	b := Backend{
		Driver:    cfg.Database.Driver,
		BatchSize: cfg.Import.BatchSize,
		PG:        pgstore.Options{UseCopy: cfg.Import.UseCopy, BatchSize: cfg.Import.BatchSize},
	}

	switch cfg.Database.Driver {
	case config.DriverMemory:
		b.Memory = memstore.NewDB()
		return b, func() {}, nil

	case config.DriverPostgres:
		pool, err := pgstore.Open(ctx, pgstore.PoolConfig{
			URL:             cfg.Database.URL,
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			return Backend{}, nil, err
		}
		b.Postgres = pool
		return b, pool.Close, nil

	case config.DriverMySQL, config.DriverSQLite:
		db, err := sqlstore.Open(ctx, sqlstore.PoolConfig{
			Driver:          cfg.Database.Driver,
			URL:             cfg.Database.URL,
			MaxOpenConns:    cfg.Database.MaxConns,
			MaxIdleConns:    cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
		})
		if err != nil {
			return Backend{}, nil, err
		}
		b.SQL = db
		return b, func() { _ = db.Close() }, nil

	default:
		return Backend{}, nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}
}

// pingTimeout bounds Ping so a health check never waits on a busy pool.
const pingTimeout = 2 * time.Second

// Ping checks that the backend is reachable.
func (b Backend) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	switch {
	case b.Memory != nil:
		return nil
	case b.SQL != nil:
		return b.SQL.PingContext(ctx)
	case b.Postgres != nil:
		if p, ok := b.Postgres.(*pgxpool.Pool); ok {
			return p.Ping(ctx)
		}
		return nil
	default:
		return errors.New("backend not configured")
	}
}

// newStore creates a fresh unit of work for table on b.
func newStore[E any](b Backend, table store.Table[E]) (importer.Store[E], error) {
	switch {
	case b.Memory != nil:
		return memstore.New(b.Memory, table)
	case b.Postgres != nil:
		return pgstore.New(b.Postgres, table, b.PG)
	case b.SQL != nil:
		return sqlstore.New(b.SQL, table, b.BatchSize)
	default:
		return nil, fmt.Errorf("no store configured for driver %q", b.Driver)
	}
}
