// Package memstore is an in-process store backend.
//
// It has no transaction support: staged rows become visible only when
// Persist is called, and there is nothing to roll back afterwards. The
// importer only persists batches with no row errors, so imports remain
// all-or-nothing on this backend too.
package memstore

import (
	"context"
	"sync"

	"github.com/JonMunkholm/csvimport/internal/store"
)

// DB holds named in-memory tables shared by every Store created from it.
// It is safe for concurrent use.
type DB struct {
	mu     sync.RWMutex
	tables map[string][][]any
}

// NewDB creates an empty in-memory database.
func NewDB() *DB {
	return &DB{tables: make(map[string][][]any)}
}

// Count returns the number of rows in table.
func (db *DB) Count(table string) int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.tables[table])
}

// Rows returns a copy of the rows in table.
func (db *DB) Rows(table string) [][]any {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([][]any, len(db.tables[table]))
	copy(out, db.tables[table])
	return out
}

// Reset deletes all rows in table.
func (db *DB) Reset(table string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.tables, table)
}

func (db *DB) insert(table string, rows [][]any) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.tables[table] = append(db.tables[table], rows...)
}

// Store is a unit of work against one table of a DB.
type Store[E any] struct {
	db     *DB
	table  store.Table[E]
	staged []E
}

// New creates a Store writing to table in db.
func New[E any](db *DB, table store.Table[E]) (*Store[E], error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &Store[E]{db: db, table: table}, nil
}

// TransactionsSupported returns false.
func (s *Store[E]) TransactionsSupported() bool { return false }

// Begin is a no-op.
func (s *Store[E]) Begin(ctx context.Context) error { return nil }

// AddBatch stages entities for the next Persist.
func (s *Store[E]) AddBatch(ctx context.Context, entities []E) error {
	s.staged = append(s.staged, entities...)
	return nil
}

// Persist appends the staged entities to the table.
func (s *Store[E]) Persist(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	rows := make([][]any, 0, len(s.staged))
	for _, e := range s.staged {
		row, err := s.table.Row(e)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}
	s.db.insert(s.table.Name, rows)
	s.staged = nil
	return len(rows), nil
}

// Commit is a no-op.
func (s *Store[E]) Commit(ctx context.Context) error { return nil }

// Rollback discards anything staged but not yet persisted.
func (s *Store[E]) Rollback(ctx context.Context) error {
	s.staged = nil
	return nil
}
