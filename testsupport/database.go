package testsupport

import (
	"context"
	"testing"

	"github.com/karloscodes/kour/database"
	"github.com/karloscodes/kour/sqlite"
)

// TestDBOptions configures test database creation.
type TestDBOptions struct {
	// Statements run once after the pool opens, e.g. CREATE TABLE.
	Schema []string

	// MaxConnections bounds concurrent Acquire calls. Default: 1.
	MaxConnections int
}

// NewTestPool opens an in-memory SQLite pool closed when the test ends.
// The pool holds a single connection so every Acquire sees the same database.
func NewTestPool(t testing.TB, opts ...TestDBOptions) *database.Pool {
	t.Helper()

	var options TestDBOptions
	if len(opts) > 0 {
		options = opts[0]
	}

	cfg := database.DefaultConfig(":memory:")
	cfg.MaxOpenConns = 1
	cfg.MaxIdleConns = 1
	cfg.MaxConnections = 1
	if options.MaxConnections > 0 {
		cfg.MaxConnections = options.MaxConnections
	}
	cfg.SQLite.TxImmediate = false
	cfg.SQLite.EnableWAL = false

	pool, err := database.Open(sqlite.NewDriver(), cfg, NewTestLogger())
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = pool.Close() })

	for _, stmt := range options.Schema {
		if err := pool.DB().Exec(stmt).Error; err != nil {
			t.Fatalf("testsupport: failed to apply schema %q: %v", stmt, err)
		}
	}
	return pool
}

// MustExecute runs query on a fresh connection and commits it.
func MustExecute(t testing.TB, pool *database.Pool, query string, args ...any) {
	t.Helper()

	ctx := context.Background()
	conn, err := pool.Acquire(ctx)
	if err != nil {
		t.Fatalf("testsupport: acquire: %v", err)
	}
	defer pool.Release(conn)

	if _, err := conn.Execute(ctx, query, args...); err != nil {
		t.Fatalf("testsupport: execute %q: %v", query, err)
	}
	if err := conn.Commit(ctx); err != nil {
		t.Fatalf("testsupport: commit: %v", err)
	}
}
