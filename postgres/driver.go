package postgres

import (
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/karloscodes/kour/database"
)

// Driver implements database.Driver for PostgreSQL.
type Driver struct{}

// NewDriver creates a new PostgreSQL driver.
func NewDriver() *Driver {
	return &Driver{}
}

// Name returns "postgres".
func (d *Driver) Name() string {
	return "postgres"
}

// Dialect returns the goose dialect name.
func (d *Driver) Dialect() string {
	return "postgres"
}

// Open returns a GORM PostgreSQL dialector.
func (d *Driver) Open(dsn string) gorm.Dialector {
	return postgres.Open(dsn)
}

// ConfigureDSN adds PostgreSQL-specific options to the DSN.
func (d *Driver) ConfigureDSN(dsn string, cfg *database.Config) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return appendURLParams(dsn, cfg)
	}
	return appendKeywordParams(dsn, cfg)
}

// appendURLParams adds options as query parameters of a URL DSN.
func appendURLParams(dsn string, cfg *database.Config) string {
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}

	var params []string

	if cfg.Postgres.SSLMode != "" {
		params = append(params, fmt.Sprintf("sslmode=%s", cfg.Postgres.SSLMode))
	}
	if cfg.Postgres.Timezone != "" {
		params = append(params, fmt.Sprintf("TimeZone=%s", cfg.Postgres.Timezone))
	}

	if len(params) > 0 {
		dsn += separator + strings.Join(params, "&")
	}

	return dsn
}

// appendKeywordParams adds options to a "key=value" DSN.
func appendKeywordParams(dsn string, cfg *database.Config) string {
	var params []string
	if cfg.Postgres.SSLMode != "" && !strings.Contains(dsn, "sslmode=") {
		params = append(params, "sslmode="+cfg.Postgres.SSLMode)
	}
	if cfg.Postgres.Timezone != "" && !strings.Contains(dsn, "TimeZone=") {
		params = append(params, "TimeZone="+cfg.Postgres.Timezone)
	}
	if len(params) == 0 {
		return dsn
	}
	return strings.TrimSpace(dsn + " " + strings.Join(params, " "))
}

// AfterConnect sets up PostgreSQL-specific configuration.
func (d *Driver) AfterConnect(db *gorm.DB, cfg *database.Config, logger *slog.Logger) error {
	// Set search path if specified
	if cfg.Postgres.SearchPath != "" {
		if err := db.Exec(fmt.Sprintf("SET search_path TO %s", cfg.Postgres.SearchPath)).Error; err != nil {
			logger.Error("failed to set search_path", slog.String("search_path", cfg.Postgres.SearchPath), slog.Any("error", err))
			return fmt.Errorf("postgres: set search_path: %w", err)
		}
	}
	return nil
}

// Close is a no-op for PostgreSQL.
func (d *Driver) Close(db *gorm.DB, logger *slog.Logger) error {
	return nil
}

// Ensure Driver implements database.Driver
var _ database.Driver = (*Driver)(nil)
