package kour

import (
	"context"
	"strings"
)

// Header is a single response or request header line.
// Names keep the case they were given; lookups compare case-insensitively.
type Header struct {
	Name  string
	Value string
}

// Scope describes one inbound call as handed over by the transport gateway.
type Scope struct {
	Method      string
	Path        string
	Scheme      string
	HTTPVersion string
	Client      string
	QueryString string
	Headers     []Header

	// State carries values set by middleware (request id, trace ids).
	State map[string]any
}

// Header returns the first value of the named request header.
func (s *Scope) Header(name string) string {
	for _, h := range s.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// SetState stores a value visible to the inner gateway and the handler.
func (s *Scope) SetState(key string, value any) {
	if s.State == nil {
		s.State = make(map[string]any)
	}
	s.State[key] = value
}

// BodyFunc reads the request body. Gateways may defer the read until called.
type BodyFunc func(ctx context.Context) ([]byte, error)

// Sink receives the response, first the status line and headers, then the body.
// Each method is called exactly once per request, in that order.
type Sink interface {
	Start(ctx context.Context, status int, headers []Header) error
	Body(ctx context.Context, body []byte) error
}

// Gateway is the calling contract shared by the dispatcher and every middleware.
type Gateway interface {
	Serve(ctx context.Context, scope *Scope, body BodyFunc, sink Sink)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, scope *Scope, body BodyFunc, sink Sink)

// Serve calls f.
func (f GatewayFunc) Serve(ctx context.Context, scope *Scope, body BodyFunc, sink Sink) {
	f(ctx, scope, body, sink)
}

// Middleware wraps a Gateway with cross-cutting behavior.
//
// Example:
//
//	func Timing(next kour.Gateway) kour.Gateway {
//	    return kour.GatewayFunc(func(ctx context.Context, s *kour.Scope, b kour.BodyFunc, out kour.Sink) {
//	        start := time.Now()
//	        next.Serve(ctx, s, b, out)
//	        log.Println(s.Path, time.Since(start))
//	    })
//	}
type Middleware func(next Gateway) Gateway

// SinkFuncs builds a Sink from two functions. Nil functions are no-ops.
type SinkFuncs struct {
	StartFunc func(ctx context.Context, status int, headers []Header) error
	BodyFunc  func(ctx context.Context, body []byte) error
}

func (s SinkFuncs) Start(ctx context.Context, status int, headers []Header) error {
	if s.StartFunc == nil {
		return nil
	}
	return s.StartFunc(ctx, status, headers)
}

func (s SinkFuncs) Body(ctx context.Context, body []byte) error {
	if s.BodyFunc == nil {
		return nil
	}
	return s.BodyFunc(ctx, body)
}
