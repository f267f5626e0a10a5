package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/karloscodes/kour"
)

// ErrConcurrencyTimeout is returned when no slot frees up within the timeout.
var ErrConcurrencyTimeout = errors.New("middleware: concurrency limit timeout")

// ConcurrencyLimiter bounds concurrent reads and writes separately. SQLite
// allows a single writer, so writes usually get one slot.
type ConcurrencyLimiter struct {
	read    *semaphore.Weighted
	write   *semaphore.Weighted
	timeout time.Duration
	logger  *slog.Logger
}

// NewConcurrencyLimiter creates a limiter with readLimit and writeLimit slots.
// A nil logger discards log output.
func NewConcurrencyLimiter(readLimit, writeLimit int, timeout time.Duration, logger *slog.Logger) *ConcurrencyLimiter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ConcurrencyLimiter{
		read:    semaphore.NewWeighted(int64(readLimit)),
		write:   semaphore.NewWeighted(int64(writeLimit)),
		timeout: timeout,
		logger:  logger,
	}
}

// AcquireRead waits for a read slot.
func (l *ConcurrencyLimiter) AcquireRead(ctx context.Context) error {
	return l.acquire(ctx, l.read, "read")
}

// ReleaseRead frees a read slot.
func (l *ConcurrencyLimiter) ReleaseRead() { l.read.Release(1) }

// AcquireWrite waits for a write slot.
func (l *ConcurrencyLimiter) AcquireWrite(ctx context.Context) error {
	return l.acquire(ctx, l.write, "write")
}

// ReleaseWrite frees a write slot.
func (l *ConcurrencyLimiter) ReleaseWrite() { l.write.Release(1) }

func (l *ConcurrencyLimiter) acquire(ctx context.Context, sem *semaphore.Weighted, kind string) error {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	if err := sem.Acquire(ctx, 1); err != nil {
		l.logger.Warn("concurrency limit reached", slog.String("kind", kind), slog.Any("error", err))
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrConcurrencyTimeout
		}
		return err
	}
	return nil
}

// isRead reports whether method only reads state.
func isRead(method string) bool {
	switch method {
	case kour.MethodGet, kour.MethodHead, kour.MethodOptions:
		return true
	}
	return false
}

// Middleware takes a read slot for GET, HEAD and OPTIONS and a write slot
// for everything else. Requests that cannot get a slot receive 503.
func (l *ConcurrencyLimiter) Middleware() kour.Middleware {
	return func(next kour.Gateway) kour.Gateway {
		return kour.GatewayFunc(func(ctx context.Context, scope *kour.Scope, body kour.BodyFunc, sink kour.Sink) {
			acquire, release := l.AcquireWrite, l.ReleaseWrite
			if isRead(scope.Method) {
				acquire, release = l.AcquireRead, l.ReleaseRead
			}
			if err := acquire(ctx); err != nil {
				_ = reject(ctx, sink, http.StatusServiceUnavailable, "server busy, retry later")
				return
			}
			defer release()
			next.Serve(ctx, scope, body, sink)
		})
	}
}
