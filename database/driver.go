package database

import (
	"log/slog"

	"gorm.io/gorm"
)

// Driver adapts one database engine to the pool. The sqlite and postgres
// packages provide implementations.
type Driver interface {
	Name() string

	// Dialect is the goose dialect Migrate uses.
	Dialect() string

	Open(dsn string) gorm.Dialector

	// ConfigureDSN appends engine options from cfg to dsn before Open.
	ConfigureDSN(dsn string, cfg *Config) string

	// AfterConnect runs once on the fresh handle, e.g. pragmas or search_path.
	AfterConnect(db *gorm.DB, cfg *Config, logger *slog.Logger) error

	// Close runs before the pool closes its connections.
	Close(db *gorm.DB, logger *slog.Logger) error
}
