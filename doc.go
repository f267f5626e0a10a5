// Package kour is a minimal web framework: a segment-trie router, handlers
// whose parameters are bound by type and name, content negotiation between
// text/plain and JSON, and one transaction per request when a database pool
// is configured.
//
// Handlers are plain functions. Their parameters are filled from path
// variables, the JSON body, the request and response objects, the
// configuration, the request context or a database connection:
//
//	app := kour.New()
//	app.GET("/users/:id", func(ctx context.Context, id int, conn *database.Conn) (map[string]any, error) {
//	    return conn.FetchOne(ctx, "SELECT * FROM users WHERE id = ?", id)
//	}, kour.Params("id"))
//
// Success statuses default to 201 for POST, 204 for DELETE and 200 otherwise;
// returning an *HTTPError answers with its code and message.
//
// # Serving
//
// An App implements Gateway. Server puts it behind fiber:
//
//	server, _ := kour.NewServer(app, kour.DefaultServerConfig())
//	server.Run(ctx, ":8000")
//
// Middleware wraps the gateway; the last one registered runs outermost. The
// middleware package provides request ids, gzip, Prometheus metrics and
// OpenTelemetry tracing, and the cli package wires everything into run,
// routes and migrate commands.
//
// # Dispatch
//
// Every request goes through the same checks, in order: supported scheme
// (400), supported method (404), method allowed for the path (405 with an
// Allow header), route found (404), then the handler. Errors never escape the
// dispatcher: they are answered as JSON {"error": message} when the client
// accepts JSON and as plain text otherwise.
package kour
