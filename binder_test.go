package kour

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karloscodes/kour/config"
	"github.com/karloscodes/kour/database"
	"github.com/karloscodes/kour/sqlite"
)

// countingPool wraps a real pool and records every connection it hands out.
type countingPool struct {
	*database.Pool
	acquired atomic.Int32
	released atomic.Int32
	last     *database.Conn
}

func (p *countingPool) Acquire(ctx context.Context) (*database.Conn, error) {
	conn, err := p.Pool.Acquire(ctx)
	if err == nil {
		p.acquired.Add(1)
		p.last = conn
	}
	return conn, err
}

func (p *countingPool) Release(conn *database.Conn) {
	p.released.Add(1)
	p.Pool.Release(conn)
}

func newCountingPool(t *testing.T) *countingPool {
	t.Helper()
	cfg := database.DefaultConfig(":memory:")
	cfg.MaxConnections = 1
	cfg.SQLite.TxImmediate = false
	pool, err := database.Open(sqlite.NewDriver(), cfg, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	require.NoError(t, pool.DB().Exec("CREATE TABLE notes (id INTEGER PRIMARY KEY, body TEXT)").Error)
	return &countingPool{Pool: pool}
}

func countNotes(t *testing.T, p *countingPool) int64 {
	t.Helper()
	var n int64
	require.NoError(t, p.DB().Raw("SELECT COUNT(*) FROM notes").Scan(&n).Error)
	return n
}

func callHandler(t *testing.T, b *binder, method, path string, fn any, params map[string]string, body string, opts ...RouteOption) (any, error) {
	t.Helper()
	h, err := NewHandler(method, fn, opts...)
	require.NoError(t, err)
	scope := &Scope{Method: method, Path: path}
	req := NewRequest(context.Background(), scope, func(context.Context) ([]byte, error) { return []byte(body), nil })
	req.SetPathParams(params)
	return b.call(context.Background(), h, req, NewResponse(nil, 200))
}

func TestBinderPathParams(t *testing.T) {
	b := &binder{logger: discardLogger()}

	out, err := callHandler(t, b, MethodGet, "/users/42", func(id int, flag bool) map[string]any {
		return map[string]any{"id": id, "flag": flag}
	}, map[string]string{"id": "42", "flag": "yes"}, "", Params("id", "flag"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": 42, "flag": true}, out)

	_, err = callHandler(t, b, MethodGet, "/users/x", func(id int) {}, map[string]string{"id": "x"}, "", Params("id"))
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestBinderInjection(t *testing.T) {
	cfg := config.Default()
	b := &binder{logger: discardLogger(), config: func() *config.Config { return cfg }}

	out, err := callHandler(t, b, MethodGet, "/", func(ctx context.Context, r *Request, w *Response, c *config.Config) string {
		w.SetHeader("X-Seen", "1")
		if ctx == nil || r == nil || c != cfg {
			return "missing"
		}
		return r.Path()
	}, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "/", out)
}

func TestBinderBody(t *testing.T) {
	b := &binder{logger: discardLogger()}

	out, err := callHandler(t, b, MethodPost, "/", func(body Body) any { return body["name"] }, nil, `{"name":"kour"}`)
	require.NoError(t, err)
	assert.Equal(t, "kour", out)

	_, err = callHandler(t, b, MethodPost, "/", func(body Body) {}, nil, `{broken`)
	assert.ErrorIs(t, err, ErrMalformedBody)
	assert.Nil(t, AsHTTPError(err), "a malformed map body is a fault")
}

type signup struct {
	Email string `json:"email"`
}

func (s *signup) Validate() error {
	if s.Email == "" {
		return errors.New("email is required")
	}
	return nil
}

func TestBinderSchema(t *testing.T) {
	b := &binder{logger: discardLogger()}
	fn := func(in *signup) string { return in.Email }

	out, err := callHandler(t, b, MethodPost, "/", fn, nil, `{"email":"a@b.c"}`)
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", out)

	_, err = callHandler(t, b, MethodPost, "/", fn, nil, `{}`)
	httpErr := AsHTTPError(err)
	require.NotNil(t, httpErr)
	assert.Equal(t, 400, httpErr.Code)
	assert.Equal(t, "email is required", httpErr.Message)

	_, err = callHandler(t, b, MethodPost, "/", fn, nil, `nope`)
	httpErr = AsHTTPError(err)
	require.NotNil(t, httpErr)
	assert.Equal(t, 400, httpErr.Code)
	assert.ErrorIs(t, err, ErrMalformedBody)
}

func TestBinderUnbound(t *testing.T) {
	b := &binder{logger: discardLogger()}

	_, err := callHandler(t, b, MethodGet, "/", func(n int) {}, nil, "")
	assert.ErrorIs(t, err, ErrUnboundParameter)

	// Without a pool a connection parameter cannot be served.
	_, err = callHandler(t, b, MethodGet, "/", func(conn *database.Conn) {}, nil, "")
	assert.ErrorIs(t, err, ErrUnboundParameter)
}

func TestBinderCommitsOnSuccess(t *testing.T) {
	pool := newCountingPool(t)
	b := &binder{logger: discardLogger(), pool: pool}

	_, err := callHandler(t, b, MethodPost, "/", func(ctx context.Context, conn *database.Conn) error {
		_, err := conn.Execute(ctx, "INSERT INTO notes (body) VALUES (?)", "hello")
		return err
	}, nil, "")
	require.NoError(t, err)

	assert.Equal(t, int32(1), pool.acquired.Load())
	assert.Equal(t, int32(1), pool.released.Load())
	assert.True(t, pool.last.Committed())
	assert.True(t, pool.last.Released())
	assert.Equal(t, int64(1), countNotes(t, pool))
}

func TestBinderRollsBackOnError(t *testing.T) {
	pool := newCountingPool(t)
	b := &binder{logger: discardLogger(), pool: pool}
	boom := ErrConflict("duplicate")

	_, err := callHandler(t, b, MethodPost, "/", func(ctx context.Context, conn *database.Conn) error {
		if _, err := conn.Execute(ctx, "INSERT INTO notes (body) VALUES (?)", "lost"); err != nil {
			return err
		}
		return boom
	}, nil, "")
	assert.Same(t, boom, err, "handler errors pass through unchanged")

	assert.True(t, pool.last.RolledBack())
	assert.False(t, pool.last.Committed())
	assert.Equal(t, int32(1), pool.released.Load())
	assert.Equal(t, int64(0), countNotes(t, pool))
}

func TestBinderRollsBackOnPanic(t *testing.T) {
	pool := newCountingPool(t)
	b := &binder{logger: discardLogger(), pool: pool}

	_, err := callHandler(t, b, MethodPost, "/", func(ctx context.Context, conn *database.Conn) {
		_, _ = conn.Execute(ctx, "INSERT INTO notes (body) VALUES (?)", "lost")
		panic("kaboom")
	}, nil, "")

	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "kaboom", panicErr.Value)
	assert.NotEmpty(t, panicErr.Stack)
	assert.True(t, pool.last.RolledBack())
	assert.Equal(t, int32(1), pool.released.Load())
	assert.Equal(t, int64(0), countNotes(t, pool))
}

func TestBinderSharesOneConnection(t *testing.T) {
	pool := newCountingPool(t)
	b := &binder{logger: discardLogger(), pool: pool}

	out, err := callHandler(t, b, MethodGet, "/", func(a, c *database.Conn) bool { return a == c }, nil, "")
	require.NoError(t, err)
	assert.Equal(t, true, out)
	assert.Equal(t, int32(1), pool.acquired.Load())
}

func TestBinderSkipsPoolWhenUnused(t *testing.T) {
	pool := newCountingPool(t)
	b := &binder{logger: discardLogger(), pool: pool}

	_, err := callHandler(t, b, MethodGet, "/", func() string { return "ok" }, nil, "")
	require.NoError(t, err)
	assert.Equal(t, int32(0), pool.acquired.Load())
	assert.Equal(t, int32(0), pool.released.Load())
}

func TestBinderKeepsHandlerSettledTransaction(t *testing.T) {
	pool := newCountingPool(t)
	b := &binder{logger: discardLogger(), pool: pool}

	out, err := callHandler(t, b, MethodPost, "/", func(ctx context.Context, conn *database.Conn) (string, error) {
		if _, err := conn.Execute(ctx, "INSERT INTO notes (body) VALUES (?)", "early"); err != nil {
			return "", err
		}
		return "ok", conn.Commit(ctx)
	}, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.True(t, pool.last.Committed())
	assert.Equal(t, int64(1), countNotes(t, pool))

	out, err = callHandler(t, b, MethodPost, "/", func(ctx context.Context, conn *database.Conn) (string, error) {
		if _, err := conn.Execute(ctx, "INSERT INTO notes (body) VALUES (?)", "undone"); err != nil {
			return "", err
		}
		return "skipped", conn.Rollback(ctx)
	}, nil, "")
	require.NoError(t, err)
	assert.Equal(t, "skipped", out)
	assert.True(t, pool.last.RolledBack())
	assert.Equal(t, int32(2), pool.released.Load())
	assert.Equal(t, int64(1), countNotes(t, pool))
}

// withDeferredForeignKey adds tables whose foreign key is only checked at
// commit, so an insert succeeds and the commit fails.
func withDeferredForeignKey(t *testing.T, p *countingPool) {
	t.Helper()
	require.NoError(t, p.DB().Exec("PRAGMA foreign_keys = ON").Error)
	require.NoError(t, p.DB().Exec("CREATE TABLE owners (id INTEGER PRIMARY KEY)").Error)
	require.NoError(t, p.DB().Exec(`CREATE TABLE pets (
		id INTEGER PRIMARY KEY,
		owner_id INTEGER REFERENCES owners(id) DEFERRABLE INITIALLY DEFERRED
	)`).Error)
}

func TestBinderCommitFailureIsAnError(t *testing.T) {
	pool := newCountingPool(t)
	withDeferredForeignKey(t, pool)
	b := &binder{logger: discardLogger(), pool: pool}

	_, err := callHandler(t, b, MethodPost, "/", func(ctx context.Context, conn *database.Conn) (string, error) {
		_, err := conn.Execute(ctx, "INSERT INTO pets (owner_id) VALUES (?)", 99)
		return "created", err
	}, nil, "")
	assert.ErrorIs(t, err, database.ErrOperation)
	assert.False(t, pool.last.Committed())
	assert.Equal(t, int32(1), pool.acquired.Load())
	assert.Equal(t, int32(1), pool.released.Load())
}
