// Package pgstore is the PostgreSQL store backend.
//
// Each Store is one unit of work on its own pgx transaction. Persist writes
// the staged batch with the COPY protocol, or with a pipelined batch of
// INSERT statements when COPY is disabled.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/csvimport/internal/store"
)

// Options tunes how a Store writes.
type Options struct {
	// UseCopy selects COPY FROM (default) over batched INSERT.
	UseCopy bool
	// BatchSize caps how many INSERTs are queued per pgx.Batch round trip.
	BatchSize int
}

// DefaultOptions returns COPY with a 1000-row insert batch.
func DefaultOptions() Options {
	return Options{UseCopy: true, BatchSize: 1000}
}

// PoolConfig holds connection pool settings.
type PoolConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Open connects a pool and verifies it with a ping.
func Open(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Beginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Store is a unit of work against one table.
type Store[E any] struct {
	db     Beginner
	table  store.Table[E]
	opts   Options
	tx     pgx.Tx
	staged []E
}

// New creates a Store writing to table through db.
func New[E any](db Beginner, table store.Table[E], opts Options) (*Store[E], error) {
	if db == nil {
		return nil, errors.New("pgstore: database is required")
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions().BatchSize
	}
	return &Store[E]{db: db, table: table, opts: opts}, nil
}

// TransactionsSupported returns true.
func (s *Store[E]) TransactionsSupported() bool { return true }

// Begin opens the transaction.
func (s *Store[E]) Begin(ctx context.Context) error {
	if s.tx != nil {
		return errors.New("pgstore: transaction already open")
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	s.tx = tx
	return nil
}

// AddBatch stages entities for the next Persist.
func (s *Store[E]) AddBatch(ctx context.Context, entities []E) error {
	s.staged = append(s.staged, entities...)
	return nil
}

// Persist writes the staged entities inside the open transaction.
func (s *Store[E]) Persist(ctx context.Context) (int, error) {
	if s.tx == nil {
		return 0, store.ErrNoTransaction
	}
	if len(s.staged) == 0 {
		return 0, nil
	}

	var (
		n   int
		err error
	)
	if s.opts.UseCopy {
		n, err = s.copyFrom(ctx)
	} else {
		n, err = s.insertBatch(ctx)
	}
	if err != nil {
		return 0, err
	}
	s.staged = nil
	return n, nil
}

func (s *Store[E]) copyFrom(ctx context.Context) (int, error) {
	rows := make([][]any, 0, len(s.staged))
	for _, e := range s.staged {
		row, err := s.table.Row(e)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}

	n, err := s.tx.CopyFrom(ctx, identifier(s.table.Name), s.table.Columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", s.table.Name, err)
	}
	return int(n), nil
}

func (s *Store[E]) insertBatch(ctx context.Context) (int, error) {
	query := insertSQL(s.table.Name, s.table.Columns)

	total := 0
	for start := 0; start < len(s.staged); start += s.opts.BatchSize {
		end := min(start+s.opts.BatchSize, len(s.staged))

		batch := &pgx.Batch{}
		for _, e := range s.staged[start:end] {
			row, err := s.table.Row(e)
			if err != nil {
				return 0, err
			}
			batch.Queue(query, row...)
		}

		br := s.tx.SendBatch(ctx, batch)
		for i := start; i < end; i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return 0, fmt.Errorf("insert into %s (entity %d): %w", s.table.Name, i+1, err)
			}
		}
		if err := br.Close(); err != nil {
			return 0, fmt.Errorf("insert into %s: %w", s.table.Name, err)
		}
		total += end - start
	}
	return total, nil
}

// Commit commits the transaction.
func (s *Store[E]) Commit(ctx context.Context) error {
	if s.tx == nil {
		return store.ErrNoTransaction
	}
	tx := s.tx
	s.tx = nil
	return tx.Commit(ctx)
}

// Rollback rolls the transaction back. Rolling back a transaction that
// already ended is not an error.
func (s *Store[E]) Rollback(ctx context.Context) error {
	s.staged = nil
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}

func identifier(name string) pgx.Identifier {
	return pgx.Identifier(strings.Split(name, "."))
}

func insertSQL(table string, columns []string) string {
	cols := make([]string, len(columns))
	params := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = pgx.Identifier{c}.Sanitize()
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		identifier(table).Sanitize(), strings.Join(cols, ", "), strings.Join(params, ", "))
}
