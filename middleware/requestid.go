package middleware

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/karloscodes/kour"
)

// DefaultRequestIDHeader is read from the request and echoed on the response.
const DefaultRequestIDHeader = "X-Request-ID"

// RequestIDConfig configures the request id middleware.
type RequestIDConfig struct {
	// Header is the request header holding an incoming id. Default: X-Request-ID.
	Header string

	// ResponseHeader is the response header the id is written to.
	// Default: same as Header.
	ResponseHeader string

	// Generator creates an id when the request carries none. Default: uuid v4.
	Generator func() string

	// Logger, when set, receives one debug line per request with the id.
	Logger *slog.Logger
}

// RequestIDOption configures RequestID.
type RequestIDOption func(*RequestIDConfig)

// WithRequestIDHeader sets the header the id is read from and echoed on.
func WithRequestIDHeader(header string) RequestIDOption {
	return func(c *RequestIDConfig) {
		c.Header = header
		c.ResponseHeader = header
	}
}

// WithRequestIDGenerator sets the id generator.
func WithRequestIDGenerator(gen func() string) RequestIDOption {
	return func(c *RequestIDConfig) {
		c.Generator = gen
	}
}

// WithRequestIDLogger logs each id at debug level.
func WithRequestIDLogger(logger *slog.Logger) RequestIDOption {
	return func(c *RequestIDConfig) {
		c.Logger = logger
	}
}

// RequestID reuses the request's id header or generates a new id, stores it
// under kour.StateRequestID and adds it to the response headers.
func RequestID(opts ...RequestIDOption) kour.Middleware {
	cfg := RequestIDConfig{
		Header:    DefaultRequestIDHeader,
		Generator: uuid.NewString,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.ResponseHeader == "" {
		cfg.ResponseHeader = cfg.Header
	}

	return func(next kour.Gateway) kour.Gateway {
		return kour.GatewayFunc(func(ctx context.Context, scope *kour.Scope, body kour.BodyFunc, sink kour.Sink) {
			id := scope.Header(cfg.Header)
			if id == "" {
				id = cfg.Generator()
				scope.Headers = append(scope.Headers, kour.Header{Name: cfg.Header, Value: id})
			}
			scope.SetState(kour.StateRequestID, id)
			if cfg.Logger != nil {
				cfg.Logger.Debug("request id assigned", slog.String("request_id", id), slog.String("path", scope.Path))
			}

			next.Serve(ctx, scope, body, kour.SinkFuncs{
				StartFunc: func(ctx context.Context, status int, headers []kour.Header) error {
					headers = append(headers, kour.Header{Name: cfg.ResponseHeader, Value: id})
					return sink.Start(ctx, status, headers)
				},
				BodyFunc: sink.Body,
			})
		})
	}
}
