package middleware

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karloscodes/kour"
	"github.com/karloscodes/kour/testsupport"
)

func echoRequestID(r *kour.Request) string { return r.RequestID() }

func TestRequestID(t *testing.T) {
	t.Run("generates an id when missing", func(t *testing.T) {
		app := newApp(t, RequestID(WithRequestIDGenerator(func() string { return "fixed-id" })))
		app.GET("/", echoRequestID)

		res := testsupport.Do(app, kour.MethodGet, "/", "")
		assert.Equal(t, 200, res.Status)
		assert.Equal(t, "fixed-id", res.Text())
		assert.Equal(t, "fixed-id", res.Header(DefaultRequestIDHeader))
	})

	t.Run("reuses the incoming header", func(t *testing.T) {
		app := newApp(t, RequestID())
		app.GET("/", echoRequestID)

		res := testsupport.Do(app, kour.MethodGet, "/", "", testsupport.WithHeader("x-request-id", "abc-123"))
		assert.Equal(t, "abc-123", res.Text())
		assert.Equal(t, []string{"abc-123"}, res.HeaderValues(DefaultRequestIDHeader))
	})

	t.Run("default generator yields uuids", func(t *testing.T) {
		app := newApp(t, RequestID())
		app.GET("/", echoRequestID)

		res := testsupport.Do(app, kour.MethodGet, "/", "")
		_, err := uuid.Parse(res.Text())
		require.NoError(t, err)
		assert.Equal(t, res.Text(), res.Header(DefaultRequestIDHeader))
	})

	t.Run("adds the generated id to request headers", func(t *testing.T) {
		app := newApp(t, RequestID(WithRequestIDGenerator(func() string { return "gen" })))
		app.GET("/", func(r *kour.Request) string { return r.Header(DefaultRequestIDHeader) })

		res := testsupport.Do(app, kour.MethodGet, "/", "")
		assert.Equal(t, "gen", res.Text())
	})

	t.Run("custom header", func(t *testing.T) {
		app := newApp(t, RequestID(WithRequestIDHeader("X-Correlation-ID")))
		app.GET("/", echoRequestID)

		res := testsupport.Do(app, kour.MethodGet, "/", "", testsupport.WithHeader("X-Correlation-ID", "corr"))
		assert.Equal(t, "corr", res.Text())
		assert.Equal(t, "corr", res.Header("X-Correlation-ID"))
		assert.Empty(t, res.Header(DefaultRequestIDHeader))
	})

	t.Run("error responses carry the id", func(t *testing.T) {
		app := newApp(t, RequestID(WithRequestIDGenerator(func() string { return "lost" })))

		res := testsupport.Do(app, kour.MethodGet, "/missing", "")
		assert.Equal(t, 404, res.Status)
		assert.Equal(t, "lost", res.Header(DefaultRequestIDHeader))
	})
}
