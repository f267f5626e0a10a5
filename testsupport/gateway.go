package testsupport

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/karloscodes/kour"
)

// NewTestLogger creates a slog.Logger that discards all output.
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// RecordingSink captures the two response frames sent by a gateway.
type RecordingSink struct {
	mu      sync.Mutex
	Status  int
	Headers []kour.Header
	Body    []byte
	Starts  int
	Bodies  int
}

func (s *RecordingSink) Start(_ context.Context, status int, headers []kour.Header) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Starts++
	s.Status = status
	s.Headers = append([]kour.Header(nil), headers...)
	return nil
}

func (s *RecordingSink) writeBody(_ context.Context, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Bodies++
	s.Body = append(s.Body, body...)
	return nil
}

// Header returns the first recorded value of name.
func (s *RecordingSink) Header(name string) string {
	values := s.HeaderValues(name)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// HeaderValues returns every recorded value of name.
func (s *RecordingSink) HeaderValues(name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var values []string
	for _, h := range s.Headers {
		if strings.EqualFold(h.Name, name) {
			values = append(values, h.Value)
		}
	}
	return values
}

// Text returns the recorded body as a string.
func (s *RecordingSink) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.Body)
}

// ScopeOption customizes a scope built by NewScope.
type ScopeOption func(*kour.Scope)

// WithHeader adds a request header.
func WithHeader(name, value string) ScopeOption {
	return func(s *kour.Scope) {
		s.Headers = append(s.Headers, kour.Header{Name: name, Value: value})
	}
}

// WithScheme sets the request scheme. Default: "http".
func WithScheme(scheme string) ScopeOption {
	return func(s *kour.Scope) {
		s.Scheme = scheme
	}
}

// NewScope builds a scope for method and target. A query string in target
// is split off into Scope.QueryString.
func NewScope(method, target string, opts ...ScopeOption) *kour.Scope {
	path, query, _ := strings.Cut(target, "?")
	if unescaped, err := url.PathUnescape(path); err == nil {
		path = unescaped
	}
	scope := &kour.Scope{
		Method:      method,
		Path:        path,
		Scheme:      "http",
		HTTPVersion: "1.1",
		Client:      "127.0.0.1:50000",
		QueryString: query,
	}
	for _, opt := range opts {
		opt(scope)
	}
	return scope
}

// StaticBody returns a BodyFunc yielding body.
func StaticBody(body string) kour.BodyFunc {
	return func(context.Context) ([]byte, error) {
		return []byte(body), nil
	}
}

// Call serves one request through gateway and returns what it sent.
func Call(gateway kour.Gateway, scope *kour.Scope, body string) *RecordingSink {
	sink := &RecordingSink{}
	gateway.Serve(context.Background(), scope, StaticBody(body), kour.SinkFuncs{StartFunc: sink.Start, BodyFunc: sink.writeBody})
	return sink
}

// Do is Call with a scope built from method and target.
func Do(gateway kour.Gateway, method, target, body string, opts ...ScopeOption) *RecordingSink {
	return Call(gateway, NewScope(method, target, opts...), body)
}
