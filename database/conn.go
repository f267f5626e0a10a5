package database

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"gorm.io/gorm"
)

// Conn is a connection holding an open transaction. It is owned by a single
// handler invocation and must be handed back with Pool.Release.
type Conn struct {
	tx     *gorm.DB
	pool   *Pool
	logger *slog.Logger

	committed  atomic.Bool
	rolledBack atomic.Bool
	released   atomic.Bool
}

// Execute runs a statement and returns the number of affected rows.
// Drivers that cannot report a count yield 1.
func (c *Conn) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	if err := c.usable(); err != nil {
		return 0, err
	}
	start := c.logQuery(query, args)

	res := c.tx.WithContext(ctx).Exec(query, args...)
	if res.Error != nil {
		return 0, c.fail(res.Error)
	}
	affected := res.RowsAffected
	if affected < 0 {
		affected = 1
	}
	c.logResult(affected, start)
	return affected, nil
}

// FetchOne returns the first row as a column map, or nil when there is none.
func (c *Conn) FetchOne(ctx context.Context, query string, args ...any) (map[string]any, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	start := c.logQuery(query, args)

	rows, err := c.tx.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, c.fail(err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, c.fail(err)
		}
		c.logResult(0, start)
		return nil, nil
	}

	row := map[string]any{}
	if err := c.tx.ScanRows(rows, &row); err != nil {
		return nil, c.fail(err)
	}
	c.logResult(1, start)
	return row, nil
}

// FetchMany returns every row as a column map.
func (c *Conn) FetchMany(ctx context.Context, query string, args ...any) ([]map[string]any, error) {
	if err := c.usable(); err != nil {
		return nil, err
	}
	start := c.logQuery(query, args)

	rows, err := c.tx.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, c.fail(err)
	}
	defer rows.Close()

	result := []map[string]any{}
	for rows.Next() {
		row := map[string]any{}
		if err := c.tx.ScanRows(rows, &row); err != nil {
			return nil, c.fail(err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, c.fail(err)
	}
	c.logResult(int64(len(result)), start)
	return result, nil
}

// Commit commits the transaction.
func (c *Conn) Commit(ctx context.Context) error {
	if err := c.usable(); err != nil {
		return err
	}
	if err := c.tx.WithContext(ctx).Commit().Error; err != nil {
		c.rolledBack.Store(true)
		return c.fail(err)
	}
	c.committed.Store(true)
	return nil
}

// Rollback aborts the transaction.
func (c *Conn) Rollback(ctx context.Context) error {
	if err := c.usable(); err != nil {
		return err
	}
	c.rolledBack.Store(true)
	if err := c.tx.WithContext(ctx).Rollback().Error; err != nil {
		return c.fail(err)
	}
	return nil
}

// Committed reports whether Commit succeeded.
func (c *Conn) Committed() bool { return c.committed.Load() }

// RolledBack reports whether the transaction was rolled back.
func (c *Conn) RolledBack() bool { return c.rolledBack.Load() }

// Released reports whether the connection went back to the pool.
func (c *Conn) Released() bool { return c.released.Load() }

// DB exposes the transaction for GORM model queries.
func (c *Conn) DB() *gorm.DB { return c.tx }

func (c *Conn) finished() bool {
	return c.committed.Load() || c.rolledBack.Load()
}

func (c *Conn) usable() error {
	if c.released.Load() {
		return ErrReleased
	}
	if c.finished() {
		return fmt.Errorf("%w: transaction already finished", ErrOperation)
	}
	return nil
}

func (c *Conn) fail(err error) error {
	c.logger.Error("database operation failed", slog.Any("error", err))
	return fmt.Errorf("%w: %w", ErrOperation, err)
}

func (c *Conn) logQuery(query string, args []any) time.Time {
	c.logger.Debug("==>  Query", slog.String("sql", FormatSQL(query)))
	c.logger.Debug("==> Params", slog.Any("args", args))
	return time.Now()
}

func (c *Conn) logResult(rows int64, start time.Time) {
	c.logger.Debug("<== Result",
		slog.Int64("rows", rows),
		slog.Float64("took_ms", float64(time.Since(start).Microseconds())/1000),
	)
}

var whitespace = regexp.MustCompile(`\s+`)

// FormatSQL collapses newlines, tabs and repeated spaces into single spaces.
func FormatSQL(sql string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(sql, " "))
}
