package database

import "time"

// Config provides database configuration.
type Config struct {
	// DSN is the database connection string.
	// For SQLite: file path (e.g., "storage/app.db") or ":memory:"
	// For PostgreSQL: connection URL or DSN string
	DSN string

	// MaxConnections bounds how many connections handlers may hold at once.
	// Acquire blocks once the bound is reached. Default: 10.
	MaxConnections int

	// MaxOpenConns is the maximum number of open connections. Default: 1 for SQLite, 25 for PostgreSQL.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections. Default: 1 for SQLite, 5 for PostgreSQL.
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime. Default: 10 minutes.
	ConnMaxLifetime time.Duration

	// Retry controls how a busy database is retried when a transaction begins.
	Retry RetryConfig

	// SQLite-specific options (ignored for other drivers)
	SQLite SQLiteOptions

	// PostgreSQL-specific options (ignored for other drivers)
	Postgres PostgresOptions
}

// RetryConfig controls retries on busy/locked errors.
type RetryConfig struct {
	// MaxRetries is the maximum number of attempts. Default: 5.
	MaxRetries int

	// BaseDelay is the initial delay before retry. Default: 50ms.
	BaseDelay time.Duration

	// MaxDelay is the maximum delay between retries. Default: 2s.
	MaxDelay time.Duration
}

// SQLiteOptions contains SQLite-specific configuration.
type SQLiteOptions struct {
	// BusyTimeout in milliseconds. Default: 5000.
	BusyTimeout int

	// EnableWAL enables Write-Ahead Logging. Default: true.
	EnableWAL bool

	// TxImmediate uses immediate transaction locking. Default: true.
	TxImmediate bool
}

// PostgresOptions contains PostgreSQL-specific configuration.
type PostgresOptions struct {
	// SSLMode for connection security. Default: "prefer".
	SSLMode string

	// Timezone for the connection. Default: "UTC".
	Timezone string

	// SearchPath sets the schema search path.
	SearchPath string
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig(dsn string) *Config {
	return &Config{
		DSN:             dsn,
		MaxConnections:  10,
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: 10 * time.Minute,
		Retry:           DefaultRetryConfig(),
		SQLite: SQLiteOptions{
			BusyTimeout: 5000,
			EnableWAL:   true,
			TxImmediate: true,
		},
		Postgres: PostgresOptions{
			SSLMode:  "prefer",
			Timezone: "UTC",
		},
	}
}

// DefaultRetryConfig returns the retry policy used when none is configured.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 5,
		BaseDelay:  50 * time.Millisecond,
		MaxDelay:   2 * time.Second,
	}
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.MaxConnections <= 0 {
		out.MaxConnections = 10
	}
	if out.ConnMaxLifetime <= 0 {
		out.ConnMaxLifetime = 10 * time.Minute
	}
	if out.Retry.MaxRetries <= 0 {
		out.Retry = DefaultRetryConfig()
	}
	return &out
}
