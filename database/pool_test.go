package database_test

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karloscodes/kour/database"
	"github.com/karloscodes/kour/testsupport"
)

var notesSchema = []string{
	"CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT NOT NULL UNIQUE)",
}

func TestConnQueries(t *testing.T) {
	pool := testsupport.NewTestPool(t, testsupport.TestDBOptions{Schema: notesSchema})
	ctx := context.Background()

	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer pool.Release(conn)

	n, err := conn.Execute(ctx, "INSERT INTO notes (id, body) VALUES (?, ?), (?, ?)", 1, "first", 2, "second")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	row, err := conn.FetchOne(ctx, "SELECT id, body FROM notes WHERE id = ?", 2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, row["id"])
	assert.EqualValues(t, "second", row["body"])

	missing, err := conn.FetchOne(ctx, "SELECT id FROM notes WHERE id = ?", 99)
	require.NoError(t, err)
	assert.Nil(t, missing)

	rows, err := conn.FetchMany(ctx, "SELECT body FROM notes ORDER BY id")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.EqualValues(t, "first", rows[0]["body"])

	empty, err := conn.FetchMany(ctx, "SELECT body FROM notes WHERE id > 10")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestConnOperationErrors(t *testing.T) {
	pool := testsupport.NewTestPool(t, testsupport.TestDBOptions{Schema: notesSchema})
	ctx := context.Background()

	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer pool.Release(conn)

	_, err = conn.Execute(ctx, "INSERT INTO missing_table VALUES (1)")
	assert.ErrorIs(t, err, database.ErrOperation)

	_, err = conn.FetchOne(ctx, "SELEC nonsense")
	assert.ErrorIs(t, err, database.ErrOperation)
}

func TestCommitAndRollback(t *testing.T) {
	pool := testsupport.NewTestPool(t, testsupport.TestDBOptions{Schema: notesSchema})
	ctx := context.Background()

	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	_, err = conn.Execute(ctx, "INSERT INTO notes (body) VALUES (?)", "kept")
	require.NoError(t, err)
	require.NoError(t, conn.Commit(ctx))
	assert.True(t, conn.Committed())
	assert.False(t, conn.RolledBack())

	_, err = conn.Execute(ctx, "INSERT INTO notes (body) VALUES (?)", "late")
	assert.ErrorIs(t, err, database.ErrOperation, "a finished transaction rejects work")
	pool.Release(conn)

	conn, err = pool.Acquire(ctx)
	require.NoError(t, err)
	_, err = conn.Execute(ctx, "INSERT INTO notes (body) VALUES (?)", "discarded")
	require.NoError(t, err)
	require.NoError(t, conn.Rollback(ctx))
	assert.True(t, conn.RolledBack())
	pool.Release(conn)

	conn, err = pool.Acquire(ctx)
	require.NoError(t, err)
	defer pool.Release(conn)
	rows, err := conn.FetchMany(ctx, "SELECT body FROM notes")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.EqualValues(t, "kept", rows[0]["body"])
}

func TestReleaseRollsBackUnfinishedWork(t *testing.T) {
	pool := testsupport.NewTestPool(t, testsupport.TestDBOptions{Schema: notesSchema})
	ctx := context.Background()

	conn, err := pool.Acquire(ctx)
	require.NoError(t, err)
	_, err = conn.Execute(ctx, "INSERT INTO notes (body) VALUES (?)", "pending")
	require.NoError(t, err)

	pool.Release(conn)
	assert.True(t, conn.Released())
	assert.True(t, conn.RolledBack())
	pool.Release(conn)

	_, err = conn.Execute(ctx, "SELECT 1")
	assert.ErrorIs(t, err, database.ErrReleased)

	check, err := pool.Acquire(ctx)
	require.NoError(t, err)
	defer pool.Release(check)
	row, err := check.FetchOne(ctx, "SELECT COUNT(*) AS n FROM notes")
	require.NoError(t, err)
	assert.EqualValues(t, 0, row["n"])
}

func TestAcquireWaitsForFreeSlot(t *testing.T) {
	pool := testsupport.NewTestPool(t)

	held, err := pool.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	pool.Release(held)
	conn, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	pool.Release(conn)
}

func TestClosedPool(t *testing.T) {
	pool := testsupport.NewTestPool(t)
	require.NoError(t, pool.Close())
	require.NoError(t, pool.Close())

	_, err := pool.Acquire(context.Background())
	assert.ErrorIs(t, err, database.ErrPoolClosed)
}

func TestMigrate(t *testing.T) {
	pool := testsupport.NewTestPool(t)
	migrations := fstest.MapFS{
		"migrations/00001_create_notes.sql": {Data: []byte(`-- +goose Up
CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT NOT NULL);

-- +goose Down
DROP TABLE notes;
`)},
	}

	require.NoError(t, database.Migrate(context.Background(), pool, migrations, "migrations", nil))
	testsupport.MustExecute(t, pool, "INSERT INTO notes (body) VALUES (?)", "migrated")

	var count int64
	require.NoError(t, pool.DB().Table(database.MigrationTable).Where("version_id = ?", 1).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	// Already applied migrations are skipped.
	require.NoError(t, database.Migrate(context.Background(), pool, migrations, "migrations", nil))
}

func TestMigrateMissingDirectory(t *testing.T) {
	pool := testsupport.NewTestPool(t)
	err := database.Migrate(context.Background(), pool, fstest.MapFS{}, "migrations", nil)
	assert.ErrorIs(t, err, database.ErrApplyMigrations)
}
