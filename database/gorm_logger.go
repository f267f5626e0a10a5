package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GormLoggerConfig tunes the GORM to slog adapter.
type GormLoggerConfig struct {
	// SlowThreshold marks queries logged at warn level. Default: 200ms.
	SlowThreshold time.Duration

	// LogLevel is the GORM level. Default: logger.Warn.
	LogLevel logger.LogLevel

	// IgnoreRecordNotFound drops gorm.ErrRecordNotFound from error logs. Default: true.
	IgnoreRecordNotFound bool
}

// gormLogger routes GORM's logging onto slog.
type gormLogger struct {
	logger *slog.Logger
	cfg    GormLoggerConfig
}

// NewGormLogger creates a GORM logger writing to l. A nil cfg uses defaults.
func NewGormLogger(l *slog.Logger, cfg *GormLoggerConfig) logger.Interface {
	c := GormLoggerConfig{
		SlowThreshold:        200 * time.Millisecond,
		LogLevel:             logger.Warn,
		IgnoreRecordNotFound: true,
	}
	if cfg != nil {
		c = *cfg
	}
	return &gormLogger{logger: l, cfg: c}
}

// LogMode sets the log level
func (gl *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	next := *gl
	next.cfg.LogLevel = level
	return &next
}

func (gl *gormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if gl.cfg.LogLevel >= logger.Info {
		gl.logger.InfoContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (gl *gormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if gl.cfg.LogLevel >= logger.Warn {
		gl.logger.WarnContext(ctx, fmt.Sprintf(msg, data...))
	}
}

func (gl *gormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if gl.cfg.LogLevel >= logger.Error {
		gl.logger.ErrorContext(ctx, fmt.Sprintf(msg, data...))
	}
}

// Trace logs SQL queries with execution time
func (gl *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	if gl.cfg.LogLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	attrs := []any{
		slog.Float64("duration_ms", float64(elapsed.Nanoseconds())/1e6),
		slog.Int64("rows", rows),
		slog.String("sql", FormatSQL(sql)),
	}

	switch {
	case err != nil && gl.cfg.LogLevel >= logger.Error &&
		(!gl.cfg.IgnoreRecordNotFound || !errors.Is(err, gorm.ErrRecordNotFound)):
		gl.logger.ErrorContext(ctx, "database query failed", append(attrs, slog.Any("error", err))...)
	case gl.cfg.SlowThreshold > 0 && elapsed > gl.cfg.SlowThreshold && gl.cfg.LogLevel >= logger.Warn:
		gl.logger.WarnContext(ctx, "slow SQL query detected", attrs...)
	case gl.cfg.LogLevel >= logger.Info:
		gl.logger.DebugContext(ctx, "SQL query executed", attrs...)
	}
}
