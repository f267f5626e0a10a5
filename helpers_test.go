package kour

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recordSink captures the frames a gateway sends.
type recordSink struct {
	status  int
	headers []Header
	body    []byte
	starts  int
	bodies  int
}

func (s *recordSink) Start(_ context.Context, status int, headers []Header) error {
	s.starts++
	s.status = status
	s.headers = headers
	return nil
}

func (s *recordSink) Body(_ context.Context, body []byte) error {
	s.bodies++
	s.body = body
	return nil
}

func (s *recordSink) header(name string) string {
	for _, h := range s.headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func (s *recordSink) text() string { return string(s.body) }

func newTestApp(t *testing.T, opts ...AppOption) *App {
	t.Helper()
	return New(append([]AppOption{WithLogger(discardLogger())}, opts...)...)
}

// serve sends one request through g. headers alternate name, value.
func serve(g Gateway, method, path, body string, headers ...string) *recordSink {
	scope := &Scope{Method: method, Path: path, Scheme: "http", HTTPVersion: "1.1", Client: "127.0.0.1:1234"}
	for i := 0; i+1 < len(headers); i += 2 {
		scope.Headers = append(scope.Headers, Header{Name: headers[i], Value: headers[i+1]})
	}
	sink := &recordSink{}
	g.Serve(context.Background(), scope, func(context.Context) ([]byte, error) {
		return []byte(body), nil
	}, sink)
	return sink
}
