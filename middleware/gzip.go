package middleware

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/karloscodes/kour"
)

// DefaultGzipMinSize is the smallest body that gets compressed.
const DefaultGzipMinSize = 500

// GzipConfig configures the gzip middleware.
type GzipConfig struct {
	// MinSize is the body size in bytes below which responses pass through.
	MinSize int

	// Level is the gzip compression level. Default: gzip.DefaultCompression.
	Level int
}

// GzipOption configures Gzip.
type GzipOption func(*GzipConfig)

// WithGzipMinSize sets the minimum body size to compress.
func WithGzipMinSize(size int) GzipOption {
	return func(c *GzipConfig) {
		c.MinSize = size
	}
}

// WithGzipLevel sets the compression level.
func WithGzipLevel(level int) GzipOption {
	return func(c *GzipConfig) {
		c.Level = level
	}
}

// Gzip compresses response bodies for clients that accept gzip. The start
// frame is held back until the body is known, so headers can be adjusted.
func Gzip(opts ...GzipOption) kour.Middleware {
	cfg := GzipConfig{
		MinSize: DefaultGzipMinSize,
		Level:   gzip.DefaultCompression,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(next kour.Gateway) kour.Gateway {
		return kour.GatewayFunc(func(ctx context.Context, scope *kour.Scope, body kour.BodyFunc, sink kour.Sink) {
			if !acceptsGzip(scope.Header("Accept-Encoding")) {
				next.Serve(ctx, scope, body, sink)
				return
			}
			next.Serve(ctx, scope, body, &gzipSink{next: sink, cfg: cfg})
		})
	}
}

type gzipSink struct {
	next    kour.Sink
	cfg     GzipConfig
	status  int
	headers []kour.Header
}

func (s *gzipSink) Start(_ context.Context, status int, headers []kour.Header) error {
	s.status = status
	s.headers = headers
	return nil
}

func (s *gzipSink) Body(ctx context.Context, body []byte) error {
	if len(body) < s.cfg.MinSize || hasHeader(s.headers, "Content-Encoding") {
		if err := s.next.Start(ctx, s.status, s.headers); err != nil {
			return err
		}
		return s.next.Body(ctx, body)
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, s.cfg.Level)
	if err != nil {
		return err
	}
	if _, err := zw.Write(body); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}

	headers := make([]kour.Header, 0, len(s.headers)+3)
	for _, h := range s.headers {
		if !strings.EqualFold(h.Name, "Content-Length") {
			headers = append(headers, h)
		}
	}
	headers = append(headers,
		kour.Header{Name: "Content-Encoding", Value: "gzip"},
		kour.Header{Name: "Vary", Value: "Accept-Encoding"},
		kour.Header{Name: "Content-Length", Value: strconv.Itoa(buf.Len())},
	)
	if err := s.next.Start(ctx, s.status, headers); err != nil {
		return err
	}
	return s.next.Body(ctx, buf.Bytes())
}

func acceptsGzip(header string) bool {
	for _, part := range strings.Split(header, ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !strings.EqualFold(strings.TrimSpace(coding), "gzip") {
			continue
		}
		if q, ok := strings.CutPrefix(strings.TrimSpace(params), "q="); ok {
			if v, err := strconv.ParseFloat(q, 64); err == nil && v == 0 {
				return false
			}
		}
		return true
	}
	return false
}

func hasHeader(headers []kour.Header, name string) bool {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return true
		}
	}
	return false
}
