package kour

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"runtime/debug"

	"github.com/karloscodes/kour/config"
	"github.com/karloscodes/kour/database"
)

// ConnPool hands out the database connection a handler invocation works on.
// *database.Pool implements it.
type ConnPool interface {
	Acquire(ctx context.Context) (*database.Conn, error)
	Release(conn *database.Conn)
}

// PanicError is the fault produced when a handler panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("kour: handler panic: %v", e.Value)
}

// binder builds handler arguments and owns the per-call connection.
type binder struct {
	config func() *config.Config
	pool   ConnPool
	logger *slog.Logger
}

// invocation is the state of one handler call.
type invocation struct {
	*binder
	ctx  context.Context
	req  *Request
	res  *Response
	conn *database.Conn
}

// call binds arguments, runs the handler and settles the connection: commit
// on success, rollback on error or panic, release exactly once either way.
// Errors from the handler are returned unchanged.
func (b *binder) call(ctx context.Context, h *Handler, req *Request, res *Response) (result any, err error) {
	inv := &invocation{binder: b, ctx: ctx, req: req, res: res}
	defer inv.finish(&err)

	args, err := inv.bind(h)
	if err != nil {
		return nil, err
	}
	return h.call(args)
}

func (inv *invocation) finish(errp *error) {
	if r := recover(); r != nil {
		*errp = &PanicError{Value: r, Stack: debug.Stack()}
	}
	if inv.conn == nil {
		return
	}

	conn := inv.conn
	defer inv.pool.Release(conn)
	if err := inv.settle(conn, *errp != nil); err != nil {
		*errp = err
	}
}

// settle commits or rolls back unless the handler already finished the
// transaction itself. A failed or panicking commit becomes the call's error.
func (inv *invocation) settle(conn *database.Conn, failed bool) (err error) {
	if conn.Committed() || conn.RolledBack() {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	// Settle even if the request was cancelled.
	ctx := context.WithoutCancel(inv.ctx)
	if failed {
		if rerr := conn.Rollback(ctx); rerr != nil {
			inv.logger.Error("rollback failed", slog.Any("error", rerr))
		}
		return nil
	}
	return conn.Commit(ctx)
}

func (inv *invocation) bind(h *Handler) ([]reflect.Value, error) {
	args := make([]reflect.Value, len(h.Params))
	params := inv.req.PathParams()

	for i, p := range h.Params {
		if p.Source.injected() {
			args[i] = inv.inject(p)
			continue
		}

		if raw, ok := params[p.Name]; ok && p.Name != "" {
			v, err := Coerce(raw, p.Type)
			if err != nil {
				return nil, fmt.Errorf("path parameter %q: %w", p.Name, err)
			}
			args[i] = v
			continue
		}

		v, err := inv.resolve(i, p)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func (inv *invocation) inject(p Param) reflect.Value {
	switch p.Source {
	case SourceRequest:
		return reflect.ValueOf(inv.req)
	case SourceResponse:
		return reflect.ValueOf(inv.res)
	case SourceConfig:
		var cfg *config.Config
		if inv.config != nil {
			cfg = inv.config()
		}
		return reflect.ValueOf(cfg)
	default:
		return reflect.ValueOf(inv.ctx)
	}
}

func (inv *invocation) resolve(i int, p Param) (reflect.Value, error) {
	switch p.Source {
	case SourceBody:
		raw, err := inv.req.Body()
		if err != nil {
			return reflect.Value{}, err
		}
		body := reflect.New(p.Type)
		if err := json.Unmarshal(raw, body.Interface()); err != nil {
			return reflect.Value{}, fmt.Errorf("%w: %v", ErrMalformedBody, err)
		}
		return body.Elem(), nil

	case SourceSchema:
		return inv.decodeSchema(p.Type)

	case SourceConn:
		if inv.pool == nil {
			break
		}
		if inv.conn == nil {
			conn, err := inv.pool.Acquire(inv.ctx)
			if err != nil {
				return reflect.Value{}, err
			}
			inv.conn = conn
		}
		return reflect.ValueOf(inv.conn), nil
	}

	name := p.Name
	if name == "" {
		name = fmt.Sprintf("#%d", i)
	}
	return reflect.Value{}, fmt.Errorf("%w: %s (%s)", ErrUnboundParameter, name, p.Type)
}

// decodeSchema decodes the JSON body into a new value of the pointer type t
// and runs its Validate method when present.
func (inv *invocation) decodeSchema(t reflect.Type) (reflect.Value, error) {
	raw, err := inv.req.Body()
	if err != nil {
		return reflect.Value{}, err
	}
	v := reflect.New(t.Elem())
	if err := json.Unmarshal(raw, v.Interface()); err != nil {
		return reflect.Value{}, NewHTTPError(http.StatusBadRequest, "").
			WithCause(fmt.Errorf("%w: %v", ErrMalformedBody, err))
	}

	if validator, ok := v.Interface().(Validator); ok {
		if err := validator.Validate(); err != nil {
			var httpErr *HTTPError
			if errors.As(err, &httpErr) {
				return reflect.Value{}, err
			}
			return reflect.Value{}, ErrBadRequest(err.Error()).WithCause(err)
		}
	}
	return v, nil
}
