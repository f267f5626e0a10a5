package kour

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karloscodes/kour/config"
)

func newTestServer(t *testing.T, app *App, mutate ...func(*ServerConfig)) *Server {
	t.Helper()
	cfg := DefaultServerConfig()
	cfg.Logger = discardLogger()
	for _, m := range mutate {
		m(cfg)
	}
	server, err := NewServer(app, cfg)
	require.NoError(t, err)
	return server
}

func TestServerRoundTrip(t *testing.T) {
	app := newTestApp(t)
	app.POST("/items/{id}", func(id int, body map[string]any) map[string]any {
		return map[string]any{"id": id, "name": body["name"]}
	}, Params("id"))
	server := newTestServer(t, app)

	req := httptest.NewRequest(http.MethodPost, "/items/7?x=1", strings.NewReader(`{"name":"lamp"}`))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	resp, err := server.Fiber().Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "application/json; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"id":7,"name":"lamp"}`, string(body))
	assert.NotEmpty(t, resp.Header.Get("X-Content-Type-Options"), "helmet headers are set")
}

func TestServerHead(t *testing.T) {
	app := newTestApp(t)
	app.GET("/", func() string { return "hello" })
	app.HEAD("/", func() string { return "hello" })
	server := newTestServer(t, app)

	resp, err := server.Fiber().Test(httptest.NewRequest(http.MethodHead, "/", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, body)
	assert.Equal(t, "5", resp.Header.Get("Content-Length"))
}

func TestServerMethodNotAllowed(t *testing.T) {
	app := newTestApp(t)
	app.GET("/", func() string { return "hello" })
	server := newTestServer(t, app)

	resp, err := server.Fiber().Test(httptest.NewRequest(http.MethodDelete, "/", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "GET", resp.Header.Get("Allow"))
}

func TestServerMetricsPath(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "kour_test_total", Help: "test counter"})
	reg.MustRegister(counter)
	counter.Inc()

	app := newTestApp(t)
	server := newTestServer(t, app, func(cfg *ServerConfig) {
		cfg.MetricsPath = "/metrics"
		cfg.MetricsGatherer = reg
	})

	resp, err := server.Fiber().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "kour_test_total 1")
}

func TestServerRateLimit(t *testing.T) {
	app := newTestApp(t)
	app.GET("/", func() string { return "ok" })
	server := newTestServer(t, app, func(cfg *ServerConfig) {
		cfg.RateLimit = 1
	})

	resp, err := server.Fiber().Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = server.Fiber().Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestNewServerRequiresGateway(t *testing.T) {
	_, err := NewServer(nil, nil)
	assert.Error(t, err)
}

func TestServerConfigFrom(t *testing.T) {
	cfg := config.Default()
	cfg.Server.ReadTimeoutSeconds = 5
	cfg.Server.WriteTimeoutSeconds = 0
	cfg.Server.MetricsPath = "/metrics"

	sc := ServerConfigFrom(cfg, discardLogger())
	assert.Equal(t, "5s", sc.ReadTimeout.String())
	assert.Equal(t, DefaultServerConfig().WriteTimeout, sc.WriteTimeout)
	assert.Equal(t, "/metrics", sc.MetricsPath)

	assert.Equal(t, DefaultServerConfig().ReadTimeout, ServerConfigFrom(nil, nil).ReadTimeout)
}
