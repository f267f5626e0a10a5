package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

// Migration errors.
var (
	ErrSetDialect      = errors.New("database: failed to set migration dialect")
	ErrApplyMigrations = errors.New("database: failed to apply migrations")
)

// MigrationTable is the table goose records applied versions in.
const MigrationTable = "kour_migrations"

// Migrate applies the SQL migrations found in dir of migrations.
func Migrate(ctx context.Context, pool *Pool, migrations fs.FS, dir string, log *slog.Logger) error {
	if log == nil {
		log = pool.logger
	}
	db, err := pool.DB().DB()
	if err != nil {
		return fmt.Errorf("database: access sql.DB: %w", err)
	}

	goose.SetBaseFS(migrations)
	goose.SetLogger(&gooseLoggerAdapter{log})
	goose.SetTableName(MigrationTable)

	if err := goose.SetDialect(pool.Driver().Dialect()); err != nil {
		return errors.Join(ErrSetDialect, err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return errors.Join(ErrApplyMigrations, err)
	}
	return nil
}

type gooseLoggerAdapter struct {
	log *slog.Logger
}

func (g *gooseLoggerAdapter) Printf(format string, args ...any) {
	g.log.Info(fmt.Sprintf(format, args...))
}

// Fatalf logs only; goose returns the error to the caller.
func (g *gooseLoggerAdapter) Fatalf(format string, args ...any) {
	g.log.Error(fmt.Sprintf(format, args...))
}
