// Package middleware provides kour.Middleware implementations: request ids,
// gzip compression, Prometheus metrics, OpenTelemetry tracing, Sec-Fetch-Site
// checks and read/write concurrency limits.
//
// Each middleware wraps the next gateway and, where it needs to touch the
// response, the Sink it passes down:
//
//	app := kour.New()
//	app.Use(middleware.Gzip(), middleware.RequestID())
package middleware
