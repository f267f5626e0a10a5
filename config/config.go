package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Environment constants.
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// EnvPrefix prefixes every environment override, e.g. KOUR_SERVER_PORT.
const EnvPrefix = "KOUR"

// Config is the application configuration read from a YAML file plus
// KOUR_* environment overrides. Handlers can declare a *Config parameter
// to receive the current configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Datasource DatasourceConfig `mapstructure:"datasource"`

	v    *viper.Viper
	path string
}

// AppConfig holds application-wide settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// ServerConfig holds settings for the HTTP gateway.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// Schemes lists the accepted request schemes. Default: ["http"].
	Schemes []string `mapstructure:"schemes"`

	ReadTimeoutSeconds  int `mapstructure:"read_timeout"`
	WriteTimeoutSeconds int `mapstructure:"write_timeout"`

	// MetricsPath exposes Prometheus metrics when set, e.g. "/metrics".
	MetricsPath string `mapstructure:"metrics_path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Directory  string `mapstructure:"directory"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// DatasourceConfig describes the database handlers receive connections from.
type DatasourceConfig struct {
	// Type is "sqlite" or "postgres". Empty disables the pool.
	Type           string `mapstructure:"type"`
	DB             string `mapstructure:"db"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// Load reads the YAML file at path (optional) and applies defaults and
// environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVars(v)

	if path != "" {
		v.SetConfigFile(path)
		if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext == "yml" || ext == "" {
			v.SetConfigType("yaml")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	return decode(v, path)
}

// Default returns the configuration built from defaults and environment only.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		return &Config{App: AppConfig{Name: "kour", Environment: Development}}
	}
	return cfg
}

func decode(v *viper.Viper, path string) (*Config, error) {
	cfg := &Config{v: v, path: path}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "kour")
	v.SetDefault("app.environment", Development)
	v.SetDefault("app.debug", false)

	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.schemes", []string{"http"})
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.metrics_path", "")

	v.SetDefault("log.level", "")
	v.SetDefault("log.directory", "storage/logs")
	v.SetDefault("log.max_size_mb", 20)
	v.SetDefault("log.max_backups", 10)
	v.SetDefault("log.max_age_days", 30)

	v.SetDefault("datasource.type", "")
	v.SetDefault("datasource.max_connections", 10)
}

func bindEnvVars(v *viper.Viper) {
	// Short aliases for the most common overrides.
	_ = v.BindEnv("app.environment", EnvPrefix+"_ENV", EnvPrefix+"_APP_ENVIRONMENT")
	_ = v.BindEnv("server.port", EnvPrefix+"_PORT", EnvPrefix+"_SERVER_PORT")
	_ = v.BindEnv("log.level", EnvPrefix+"_LOG_LEVEL")
	_ = v.BindEnv("datasource.db", EnvPrefix+"_DATABASE", EnvPrefix+"_DATASOURCE_DB")
}

func (c *Config) validate() error {
	var problems []string

	switch c.App.Environment {
	case Development, Production, Test:
	default:
		problems = append(problems, fmt.Sprintf("invalid %s_ENV value %q", EnvPrefix, c.App.Environment))
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if len(c.Server.Schemes) == 0 {
		c.Server.Schemes = []string{"http"}
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("invalid log.level %q", c.Log.Level))
	}

	switch c.Datasource.Type {
	case "":
	case "sqlite":
		if c.Datasource.DB == "" {
			problems = append(problems, "datasource.db is required for sqlite")
		}
	case "postgres":
		if c.Datasource.Host == "" || c.Datasource.DB == "" {
			problems = append(problems, "datasource.host and datasource.db are required for postgres")
		}
	default:
		problems = append(problems, fmt.Sprintf("unsupported datasource.type %q", c.Datasource.Type))
	}

	if len(problems) > 0 {
		return errors.New("config: " + strings.Join(problems, "; "))
	}
	return nil
}

// Get returns the raw value of a dotted key, including keys the typed
// sections do not declare.
func (c *Config) Get(key string) any {
	if c.v == nil {
		return nil
	}
	return c.v.Get(key)
}

// GetString returns a dotted key as a string.
func (c *Config) GetString(key string) string {
	if c.v == nil {
		return ""
	}
	return c.v.GetString(key)
}

// Path returns the file the configuration was loaded from, if any.
func (c *Config) Path() string {
	return c.path
}

// Watch reloads the file whenever it changes and passes each valid new
// configuration to fn. Invalid edits are logged and skipped.
func (c *Config) Watch(logger *slog.Logger, fn func(*Config)) {
	if c.v == nil || c.path == "" {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}

	var mu sync.Mutex
	c.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		mu.Lock()
		defer mu.Unlock()

		next, err := Load(c.path)
		if err != nil {
			logger.Error("config reload failed", slog.String("file", e.Name), slog.Any("error", err))
			return
		}
		logger.Info("config reloaded", slog.String("file", e.Name))
		fn(next)
	})
	c.v.WatchConfig()
}

// Address returns host:port for the server to listen on.
func (c *Config) Address() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

// DSN returns the connection string for the configured datasource.
func (d DatasourceConfig) DSN() string {
	if d.Type != "postgres" {
		return d.DB
	}
	parts := []string{"host=" + d.Host, "dbname=" + d.DB}
	if d.Port > 0 {
		parts = append(parts, "port="+strconv.Itoa(d.Port))
	}
	if d.Username != "" {
		parts = append(parts, "user="+d.Username)
	}
	if d.Password != "" {
		parts = append(parts, "password="+d.Password)
	}
	return strings.Join(parts, " ")
}

// Environment checks.

func (c *Config) IsDevelopment() bool { return c.App.Environment == Development }
func (c *Config) IsProduction() bool  { return c.App.Environment == Production }
func (c *Config) IsTest() bool        { return c.App.Environment == Test }
