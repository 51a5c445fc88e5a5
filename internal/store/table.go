// Package store holds what the persistence backends share: the table
// description an entity is written through.
//
// Backends live in subpackages:
//
//   - memstore: in-process tables, no transaction support
//   - pgstore: PostgreSQL via pgx, COPY or batched INSERT
//   - sqlstore: MySQL or SQLite via sqlx, multi-row INSERT
package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoTransaction is returned by Commit or Rollback when no transaction is open.
var ErrNoTransaction = errors.New("no transaction in progress")

// Table describes how entities of type E are written.
type Table[E any] struct {
	// Name is the destination table, optionally schema-qualified ("crm.contacts").
	Name string

	// Columns lists the destination columns in the order Values returns them.
	Columns []string

	// Values returns one entity's column values, matching Columns.
	Values func(E) []any
}

// Validate checks that the table description is usable.
func (t Table[E]) Validate() error {
	if t.Name == "" {
		return errors.New("table name is required")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table %s: no columns", t.Name)
	}
	if t.Values == nil {
		return fmt.Errorf("table %s: Values func is required", t.Name)
	}
	return nil
}

// Row returns e's values, checking the count against Columns.
func (t Table[E]) Row(e E) ([]any, error) {
	vals := t.Values(e)
	if len(vals) != len(t.Columns) {
		return nil, fmt.Errorf("table %s: %d values for %d columns", t.Name, len(vals), len(t.Columns))
	}
	return vals, nil
}

// QuoteIdentifier quotes a possibly schema-qualified identifier with q
// (`"` for PostgreSQL and SQLite, "`" for MySQL).
func QuoteIdentifier(name string, q string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = q + strings.ReplaceAll(p, q, q+q) + q
	}
	return strings.Join(parts, ".")
}
