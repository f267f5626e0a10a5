package middleware

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/karloscodes/kour"
)

const defaultTracerName = "kour"

// StateTraceID is the Scope.State key holding the current trace id.
const StateTraceID = "trace_id"

// TracingConfig configures the OpenTelemetry middleware.
type TracingConfig struct {
	// TracerName is the name of the tracer (default: "kour").
	TracerName string

	// Provider supplies the tracer. Default: the global provider.
	Provider trace.TracerProvider

	// Propagator extracts the parent span from request headers and injects
	// the current one into response headers. Default: W3C trace context.
	Propagator propagation.TextMapPropagator

	// Filter determines which requests to trace. Nil traces all of them.
	Filter func(scope *kour.Scope) bool

	// AttributeExtractor adds custom attributes to each span.
	AttributeExtractor func(scope *kour.Scope) []attribute.KeyValue
}

// TracingOption configures Tracing.
type TracingOption func(*TracingConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) TracingOption {
	return func(c *TracingConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(provider trace.TracerProvider) TracingOption {
	return func(c *TracingConfig) {
		c.Provider = provider
	}
}

// WithPropagator sets the header propagator.
func WithPropagator(p propagation.TextMapPropagator) TracingOption {
	return func(c *TracingConfig) {
		c.Propagator = p
	}
}

// WithSpanFilter sets a filter function for requests.
func WithSpanFilter(filter func(scope *kour.Scope) bool) TracingOption {
	return func(c *TracingConfig) {
		c.Filter = filter
	}
}

// WithAttributeExtractor sets a custom attribute extractor.
func WithAttributeExtractor(extractor func(scope *kour.Scope) []attribute.KeyValue) TracingOption {
	return func(c *TracingConfig) {
		c.AttributeExtractor = extractor
	}
}

// Tracing starts a server span per request. The span context flows to the
// handler through ctx, its trace id is stored under StateTraceID and the
// span is propagated back in the response headers.
//
// The tracer uses the global OpenTelemetry provider unless one is given.
// Configure it in main() before serving:
//
//	otel.SetTracerProvider(tp)
//	app.Use(middleware.Tracing(middleware.WithTracerName("users-api")))
func Tracing(opts ...TracingOption) kour.Middleware {
	cfg := TracingConfig{
		TracerName: defaultTracerName,
		Propagator: propagation.TraceContext{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	provider := cfg.Provider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	tracer := provider.Tracer(cfg.TracerName)

	return func(next kour.Gateway) kour.Gateway {
		return kour.GatewayFunc(func(ctx context.Context, scope *kour.Scope, body kour.BodyFunc, sink kour.Sink) {
			if cfg.Filter != nil && !cfg.Filter(scope) {
				next.Serve(ctx, scope, body, sink)
				return
			}

			ctx = cfg.Propagator.Extract(ctx, scopeCarrier{scope: scope})

			attrs := []attribute.KeyValue{
				attribute.String("http.request.method", scope.Method),
				attribute.String("url.path", scope.Path),
				attribute.String("url.scheme", scope.Scheme),
				attribute.String("client.address", scope.Client),
			}
			if id, ok := scope.State[kour.StateRequestID].(string); ok {
				attrs = append(attrs, attribute.String("kour.request_id", id))
			}
			if cfg.AttributeExtractor != nil {
				attrs = append(attrs, cfg.AttributeExtractor(scope)...)
			}

			ctx, span := tracer.Start(ctx, scope.Method+" "+scope.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
			)
			defer span.End()

			if sc := span.SpanContext(); sc.HasTraceID() {
				scope.SetState(StateTraceID, sc.TraceID().String())
			}

			next.Serve(ctx, scope, body, kour.SinkFuncs{
				StartFunc: func(sctx context.Context, status int, headers []kour.Header) error {
					span.SetAttributes(attribute.Int("http.response.status_code", status))
					if status >= http.StatusInternalServerError {
						span.SetStatus(codes.Error, kour.StatusPhrase(status))
					}
					carrier := &headerCarrier{headers: headers}
					cfg.Propagator.Inject(ctx, carrier)
					return sink.Start(sctx, status, carrier.headers)
				},
				BodyFunc: sink.Body,
			})
		})
	}
}

// scopeCarrier reads propagation fields from request headers.
type scopeCarrier struct {
	scope *kour.Scope
}

func (c scopeCarrier) Get(key string) string { return c.scope.Header(key) }

func (c scopeCarrier) Set(key, value string) {
	c.scope.Headers = append(c.scope.Headers, kour.Header{Name: key, Value: value})
}

func (c scopeCarrier) Keys() []string {
	keys := make([]string, 0, len(c.scope.Headers))
	for _, h := range c.scope.Headers {
		keys = append(keys, h.Name)
	}
	return keys
}

// headerCarrier writes propagation fields into response headers.
type headerCarrier struct {
	headers []kour.Header
}

func (c *headerCarrier) Get(key string) string {
	for _, h := range c.headers {
		if http.CanonicalHeaderKey(h.Name) == http.CanonicalHeaderKey(key) {
			return h.Value
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	c.headers = append(c.headers, kour.Header{Name: key, Value: value})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, h := range c.headers {
		keys = append(keys, h.Name)
	}
	return keys
}
