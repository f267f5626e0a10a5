package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"
)

// Errors returned by the pool and its connections.
var (
	ErrOperation  = errors.New("database: operation failed")
	ErrPoolClosed = errors.New("database: pool is closed")
	ErrReleased   = errors.New("database: connection already released")
)

// Pool hands out transactional connections, one per handler invocation.
// At most Config.MaxConnections connections are held at a time.
type Pool struct {
	driver Driver
	cfg    *Config
	logger *slog.Logger
	db     *gorm.DB
	sem    *semaphore.Weighted

	mu     sync.Mutex
	closed bool
}

// Open connects using driver and returns a ready pool.
func Open(driver Driver, cfg *Config, logger *slog.Logger) (*Pool, error) {
	if driver == nil {
		return nil, fmt.Errorf("database: driver is required")
	}
	if cfg == nil {
		cfg = DefaultConfig("")
	}
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	dsn := driver.ConfigureDSN(cfg.DSN, cfg)
	gormLogger := NewGormLogger(logger.With(slog.String("component", "gorm")), nil)

	db, err := gorm.Open(driver.Open(dsn), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}

	if err := driver.AfterConnect(db, cfg, logger); err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: access sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	logger.Info("database connection established",
		slog.String("driver", driver.Name()),
		slog.Int("max_connections", cfg.MaxConnections),
		slog.Int("max_open", cfg.MaxOpenConns),
	)

	return &Pool{
		driver: driver,
		cfg:    cfg,
		logger: logger,
		db:     db,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConnections)),
	}, nil
}

// Acquire waits for a free slot and begins a transaction on a new connection.
// Busy errors while beginning are retried with backoff.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	if p.isClosed() {
		return nil, ErrPoolClosed
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("database: acquire: %w", err)
	}

	tx, err := p.begin(ctx)
	if err != nil {
		p.sem.Release(1)
		return nil, err
	}
	return &Conn{tx: tx, pool: p, logger: p.logger}, nil
}

func (p *Pool) begin(ctx context.Context) (*gorm.DB, error) {
	var err error
	for attempt := 0; attempt < p.cfg.Retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := calculateRetryDelay(attempt, p.cfg.Retry.BaseDelay, p.cfg.Retry.MaxDelay)
			p.logger.Info("retrying transaction begin",
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
				slog.Any("error", err))
			if werr := sleepContext(ctx, delay); werr != nil {
				return nil, fmt.Errorf("database: begin: %w", werr)
			}
		}

		tx := p.db.WithContext(ctx).Begin()
		if tx.Error == nil {
			return tx, nil
		}
		err = tx.Error
		if !isBusyError(err) {
			break
		}
	}
	return nil, fmt.Errorf("%w: begin: %w", ErrOperation, err)
}

// Release returns conn's slot to the pool. An unfinished transaction is rolled
// back first. Releasing the same connection twice is a no-op.
func (p *Pool) Release(conn *Conn) {
	if conn == nil || !conn.released.CompareAndSwap(false, true) {
		return
	}
	defer p.sem.Release(1)

	if !conn.finished() {
		if err := conn.tx.Rollback().Error; err != nil {
			p.logger.Warn("rollback on release failed", slog.Any("error", err))
		}
		conn.rolledBack.Store(true)
	}
}

// DB returns the underlying GORM handle for setup work such as migrations.
func (p *Pool) DB() *gorm.DB {
	return p.db
}

// Driver returns the pool's driver.
func (p *Pool) Driver() Driver {
	return p.driver
}

// Close runs driver cleanup and closes every connection.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if err := p.driver.Close(p.db, p.logger); err != nil {
		p.logger.Warn("driver cleanup error", slog.Any("error", err))
	}

	sqlDB, err := p.db.DB()
	if err != nil {
		return fmt.Errorf("database: access sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("database: close: %w", err)
	}

	p.logger.Info("database connection closed", slog.String("driver", p.driver.Name()))
	return nil
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
