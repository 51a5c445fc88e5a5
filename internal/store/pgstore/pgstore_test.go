package pgstore

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/csvimport/internal/store"
)

type account struct {
	Code string
	Name string
}

var accounts = store.Table[account]{
	Name:    "pgstore_test_accounts",
	Columns: []string{"code", "name"},
	Values:  func(a account) []any { return []any{a.Code, a.Name} },
}

func TestInsertSQL(t *testing.T) {
	assert.Equal(t,
		`INSERT INTO "crm"."contacts" ("id", "email") VALUES ($1, $2)`,
		insertSQL("crm.contacts", []string{"id", "email"}))
}

func TestNewDefaults(t *testing.T) {
	_, err := New[account](nil, accounts, DefaultOptions())
	assert.Error(t, err)
}

// testPool connects to TEST_DATABASE_URL or skips.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := Open(ctx, PoolConfig{URL: url, MaxConns: 2})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestPersistModes(t *testing.T) {
	for _, useCopy := range []bool{true, false} {
		name := "insert"
		if useCopy {
			name = "copy"
		}
		t.Run(name, func(t *testing.T) {
			pool := testPool(t)
			ctx := context.Background()

			// Temp tables are per connection, so pin one.
			conn, err := pool.Acquire(ctx)
			require.NoError(t, err)
			defer conn.Release()
			_, err = conn.Exec(ctx, `CREATE TEMP TABLE IF NOT EXISTS pgstore_test_accounts (code text PRIMARY KEY, name text NOT NULL)`)
			require.NoError(t, err)
			_, err = conn.Exec(ctx, `TRUNCATE pgstore_test_accounts`)
			require.NoError(t, err)

			s, err := New(conn.Conn(), accounts, Options{UseCopy: useCopy, BatchSize: 1})
			require.NoError(t, err)

			require.NoError(t, s.Begin(ctx))
			require.NoError(t, s.AddBatch(ctx, []account{{"1000", "Cash"}, {"2000", "Payables"}}))
			n, err := s.Persist(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)
			require.NoError(t, s.Commit(ctx))

			var got int
			require.NoError(t, conn.QueryRow(ctx, `SELECT count(*) FROM pgstore_test_accounts`).Scan(&got))
			assert.Equal(t, 2, got)
		})
	}
}

func TestRollbackAfterCommitIsNoop(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()

	s, err := New(pool, accounts, DefaultOptions())
	require.NoError(t, err)

	require.NoError(t, s.Begin(ctx))
	require.NoError(t, s.Commit(ctx))
	assert.NoError(t, s.Rollback(ctx))
}
