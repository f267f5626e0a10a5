package kour

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/karloscodes/kour/config"
)

// ServerConfig configures the fiber transport gateway.
type ServerConfig struct {
	// Logger for server lifecycle events. Default: slog.Default().
	Logger *slog.Logger

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	BodyLimit       int
	ProxyHeader     string
	TrustedProxies  []string

	// EnableRecover turns panics escaping the gateway into 500 responses.
	EnableRecover bool

	// EnableHelmet adds security headers to every response.
	EnableHelmet bool

	// RateLimit caps requests per client IP within RateWindow. Zero disables it.
	RateLimit  int
	RateWindow time.Duration

	// MetricsPath, when set, exposes MetricsGatherer in the Prometheus text
	// format. It is served by fiber and never reaches the gateway.
	MetricsPath     string
	MetricsGatherer prometheus.Gatherer
}

// DefaultServerConfig returns a configuration with sensible defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		BodyLimit:       4 * 1024 * 1024,
		EnableRecover:   true,
		EnableHelmet:    true,
		RateWindow:      time.Second,
	}
}

// ServerConfigFrom derives a server configuration from the server section
// of cfg. Zero timeouts keep the defaults.
func ServerConfigFrom(cfg *config.Config, logger *slog.Logger) *ServerConfig {
	sc := DefaultServerConfig()
	sc.Logger = logger
	if cfg == nil {
		return sc
	}
	if cfg.Server.ReadTimeoutSeconds > 0 {
		sc.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	}
	if cfg.Server.WriteTimeoutSeconds > 0 {
		sc.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	}
	sc.MetricsPath = cfg.Server.MetricsPath
	return sc
}

// Server adapts fiber to the Gateway contract: every request becomes a Scope,
// a lazy body accessor and a Sink writing back into the fiber context.
type Server struct {
	app     *fiber.App
	cfg     *ServerConfig
	gateway Gateway
	logger  *slog.Logger
}

// NewServer creates a server in front of gateway, usually an *App.
func NewServer(gateway Gateway, cfg *ServerConfig) (*Server, error) {
	if gateway == nil {
		return nil, fmt.Errorf("kour: gateway is required")
	}
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Second
	}

	fiberCfg := fiber.Config{
		DisableDefaultDate:    true,
		DisableStartupMessage: true,
		ReadTimeout:           cfg.ReadTimeout,
		WriteTimeout:          cfg.WriteTimeout,
		BodyLimit:             cfg.BodyLimit,
	}
	if cfg.ProxyHeader != "" {
		fiberCfg.ProxyHeader = cfg.ProxyHeader
	}
	if len(cfg.TrustedProxies) > 0 {
		fiberCfg.EnableTrustedProxyCheck = true
		fiberCfg.TrustedProxies = cfg.TrustedProxies
	}

	s := &Server{
		app:     fiber.New(fiberCfg),
		cfg:     cfg,
		gateway: gateway,
		logger:  logger,
	}

	if cfg.EnableRecover {
		s.app.Use(fiberrecover.New(fiberrecover.Config{EnableStackTrace: true}))
	}
	if cfg.EnableHelmet {
		s.app.Use(helmet.New(helmet.Config{ReferrerPolicy: "same-origin"}))
	}
	if cfg.RateLimit > 0 {
		s.app.Use(limiter.New(limiter.Config{
			Max:        cfg.RateLimit,
			Expiration: cfg.RateWindow,
		}))
	}
	if cfg.MetricsPath != "" {
		gatherer := cfg.MetricsGatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		s.app.Get(cfg.MetricsPath, adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	s.app.Use(s.handle)
	return s, nil
}

// handle hands one fiber request to the gateway.
func (s *Server) handle(c *fiber.Ctx) error {
	scope := scopeFromFiber(c)
	body := func(context.Context) ([]byte, error) {
		return append([]byte(nil), c.Body()...), nil
	}
	s.gateway.Serve(c.UserContext(), scope, body, &fiberSink{c: c})
	return nil
}

func scopeFromFiber(c *fiber.Ctx) *Scope {
	version := string(c.Request().Header.Protocol())
	scope := &Scope{
		Method:      c.Method(),
		Path:        c.Path(),
		Scheme:      c.Protocol(),
		HTTPVersion: strings.TrimPrefix(version, "HTTP/"),
		Client:      c.Context().RemoteAddr().String(),
		QueryString: string(c.Request().URI().QueryString()),
	}
	c.Request().Header.VisitAll(func(key, value []byte) {
		scope.Headers = append(scope.Headers, Header{Name: string(key), Value: string(value)})
	})
	return scope
}

// fiberSink writes the two response frames into the fiber response.
type fiberSink struct {
	c       *fiber.Ctx
	started bool
}

func (s *fiberSink) Start(_ context.Context, status int, headers []Header) error {
	if s.started {
		return errors.New("kour: response already started")
	}
	s.started = true

	s.c.Status(status)
	h := &s.c.Response().Header
	for _, header := range headers {
		switch {
		case strings.EqualFold(header.Name, fiber.HeaderContentType):
			h.SetContentType(header.Value)
		case strings.EqualFold(header.Name, fiber.HeaderContentLength):
			if n, err := strconv.Atoi(header.Value); err == nil {
				h.SetContentLength(n)
			}
		default:
			h.Add(header.Name, header.Value)
		}
	}
	return nil
}

func (s *fiberSink) Body(_ context.Context, body []byte) error {
	if !s.started {
		return errors.New("kour: response body before start")
	}
	if s.c.Method() == fiber.MethodHead {
		return nil
	}
	s.c.Response().SetBody(body)
	return nil
}

// Fiber returns the underlying fiber application, e.g. for app.Test.
func (s *Server) Fiber() *fiber.App {
	return s.app
}

// Listen serves on addr until the server is shut down.
func (s *Server) Listen(addr string) error {
	s.logger.Info("server started and ready to accept requests", slog.String("address", addr))
	return s.app.Listen(addr)
}

// Run serves on addr until ctx is cancelled or SIGINT/SIGTERM arrives, then
// shuts down gracefully and closes the gateway when it holds resources.
func (s *Server) Run(ctx context.Context, addr string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Listen(addr)
	})
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if closer, ok := s.gateway.(io.Closer); ok {
		if cerr := closer.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	if err != nil {
		s.logger.Error("server stopped with error", slog.Any("error", err))
		return err
	}
	s.logger.Info("graceful shutdown completed")
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
