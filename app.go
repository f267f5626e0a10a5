package kour

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/karloscodes/kour/config"
	"github.com/karloscodes/kour/database"
	"github.com/karloscodes/kour/postgres"
	"github.com/karloscodes/kour/sqlite"
)

// App is a router plus the collaborators the dispatcher needs: logger,
// configuration, connection pool and middleware chain. It implements Gateway.
type App struct {
	*Router

	logger  *slog.Logger
	cfg     atomic.Pointer[config.Config]
	pool    ConnPool
	schemes []string
	text    TextRenderer

	middleware []Middleware
	buildOnce  sync.Once
	gateway    Gateway
}

// AppOption configures an App.
type AppOption func(*App)

// WithLogger sets the logger. Default: built from the configuration.
func WithLogger(logger *slog.Logger) AppOption {
	return func(a *App) {
		a.logger = logger
	}
}

// WithConfig sets the configuration injected into handlers.
func WithConfig(cfg *config.Config) AppOption {
	return func(a *App) {
		a.cfg.Store(cfg)
	}
}

// WithPool sets the pool *database.Conn parameters are served from.
func WithPool(pool ConnPool) AppOption {
	return func(a *App) {
		a.pool = pool
	}
}

// WithTextRenderer overrides how non-string results render as text/plain.
func WithTextRenderer(text TextRenderer) AppOption {
	return func(a *App) {
		a.text = text
	}
}

// WithSchemes sets the accepted request schemes. Default: "http".
func WithSchemes(schemes ...string) AppOption {
	return func(a *App) {
		a.schemes = schemes
	}
}

// WithPrefix registers every route of the app under prefix.
func WithPrefix(prefix string) AppOption {
	return func(a *App) {
		a.Router = NewRouter(prefix)
	}
}

// New creates an App.
func New(options ...AppOption) *App {
	a := &App{Router: NewRouter()}
	for _, opt := range options {
		opt(a)
	}

	cfg := a.cfg.Load()
	if cfg == nil {
		cfg = config.Default()
		a.cfg.Store(cfg)
	}
	if a.logger == nil {
		a.logger = NewLogger(cfg)
	}
	if len(a.schemes) == 0 {
		a.schemes = cfg.Server.Schemes
	}
	if len(a.schemes) == 0 {
		a.schemes = []string{"http"}
	}
	if a.text == nil {
		a.text = DefaultTextRenderer
	}
	return a
}

// Load builds an App from the configuration file at path, opening the
// configured datasource.
func Load(path string, options ...AppOption) (*App, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	logger := NewLogger(cfg)

	pool, err := OpenDatasource(cfg, logger)
	if err != nil {
		return nil, err
	}

	base := []AppOption{WithConfig(cfg), WithLogger(logger)}
	if pool != nil {
		base = append(base, WithPool(pool))
	}
	return New(append(base, options...)...), nil
}

// OpenDatasource opens the pool described by the datasource section.
// It returns nil when no datasource is configured.
func OpenDatasource(cfg *config.Config, logger *slog.Logger) (*database.Pool, error) {
	var driver database.Driver
	switch cfg.Datasource.Type {
	case "":
		return nil, nil
	case "sqlite":
		driver = sqlite.NewDriver()
	case "postgres":
		driver = postgres.NewDriver()
	default:
		return nil, fmt.Errorf("kour: unsupported datasource type %q", cfg.Datasource.Type)
	}

	dbCfg := database.DefaultConfig(cfg.Datasource.DSN())
	dbCfg.MaxConnections = cfg.Datasource.MaxConnections
	if driver.Name() == "postgres" {
		dbCfg.MaxOpenConns = 25
		dbCfg.MaxIdleConns = 5
	}
	return database.Open(driver, dbCfg, logger)
}

// Use adds middleware. The last one added runs outermost.
func (a *App) Use(middleware ...Middleware) {
	if a.Sealed() {
		panic(ErrRouterSealed)
	}
	a.middleware = append(a.middleware, middleware...)
}

// Serve implements Gateway: the call goes through the middleware chain to
// the dispatcher. The first call seals the router.
func (a *App) Serve(ctx context.Context, scope *Scope, body BodyFunc, sink Sink) {
	a.buildOnce.Do(a.build)
	a.gateway.Serve(ctx, scope, body, sink)
}

func (a *App) build() {
	a.Seal()

	var g Gateway = &Dispatcher{
		router: a.Router,
		binder: &binder{
			config: a.cfg.Load,
			pool:   a.pool,
			logger: a.logger,
		},
		logger:  a.logger,
		schemes: a.schemes,
		text:    a.text,
	}
	for _, mw := range a.middleware {
		g = mw(g)
	}
	a.gateway = g
}

// Logger returns the app logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Config returns the current configuration.
func (a *App) Config() *config.Config { return a.cfg.Load() }

// SetConfig swaps the configuration handlers receive from now on.
func (a *App) SetConfig(cfg *config.Config) { a.cfg.Store(cfg) }

// Pool returns the connection pool, if any.
func (a *App) Pool() ConnPool { return a.pool }

// WatchConfig reloads the configuration file on change.
func (a *App) WatchConfig() {
	a.Config().Watch(a.logger, a.SetConfig)
}

// Close releases the pool.
func (a *App) Close() error {
	if closer, ok := a.pool.(io.Closer); ok {
		a.logger.Info("closing database connections")
		return closer.Close()
	}
	return nil
}
