package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/karloscodes/kour"
)

// MetricsConfig configures the Prometheus middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "kour").
	Namespace string

	// Subsystem is the metrics subsystem (default: "http").
	Subsystem string

	// ConstLabels are added to every metric.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is where the collectors are registered.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures Metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets labels added to every metric.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

type httpMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	inFlight        prometheus.Gauge
}

func newHTTPMetrics(cfg MetricsConfig) *httpMetrics {
	factory := promauto.With(cfg.Registry)

	return &httpMetrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "requests_total",
			Help:        "Total number of HTTP requests by method and status",
			ConstLabels: cfg.ConstLabels,
		}, []string{"method", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			ConstLabels: cfg.ConstLabels,
			Buckets:     cfg.Buckets,
		}, []string{"method"}),

		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   cfg.Namespace,
			Subsystem:   cfg.Subsystem,
			Name:        "requests_in_flight",
			Help:        "Number of HTTP requests being served",
			ConstLabels: cfg.ConstLabels,
		}),
	}
}

// Metrics records request counts, durations and in-flight requests.
// Collectors are registered once when Metrics is called, so a registry can
// back only one Metrics middleware.
//
// Metrics collected:
//   - kour_http_requests_total{method,status}
//   - kour_http_request_duration_seconds{method}
//   - kour_http_requests_in_flight
func Metrics(opts ...MetricsOption) kour.Middleware {
	cfg := MetricsConfig{
		Namespace: "kour",
		Subsystem: "http",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	m := newHTTPMetrics(cfg)

	return func(next kour.Gateway) kour.Gateway {
		return kour.GatewayFunc(func(ctx context.Context, scope *kour.Scope, body kour.BodyFunc, sink kour.Sink) {
			start := time.Now()
			m.inFlight.Inc()
			defer m.inFlight.Dec()

			status := 0
			next.Serve(ctx, scope, body, kour.SinkFuncs{
				StartFunc: func(ctx context.Context, code int, headers []kour.Header) error {
					status = code
					return sink.Start(ctx, code, headers)
				},
				BodyFunc: sink.Body,
			})

			m.requestsTotal.WithLabelValues(scope.Method, strconv.Itoa(status)).Inc()
			m.requestDuration.WithLabelValues(scope.Method).Observe(time.Since(start).Seconds())
		})
	}
}
