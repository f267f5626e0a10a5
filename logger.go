package kour

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/karloscodes/kour/config"
)

// NewLogger builds the application logger from the log section of cfg.
// Development and test write colored text to stdout. Production writes JSON
// to stdout and to a rotating file under log.directory.
func NewLogger(cfg *config.Config) *slog.Logger {
	if cfg == nil {
		cfg = config.Default()
	}
	level := resolveLogLevel(cfg)

	if !cfg.IsProduction() {
		return slog.New(newColorHandler(os.Stdout, level))
	}
	return slog.New(slog.NewJSONHandler(logWriter(cfg), &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}))
}

// resolveLogLevel picks the level: app.debug forces debug, then log.level,
// then info outside production and error in production.
func resolveLogLevel(cfg *config.Config) slog.Level {
	if cfg.App.Debug {
		return slog.LevelDebug
	}
	name := strings.ToLower(cfg.Log.Level)
	switch name {
	case "":
		if cfg.IsProduction() {
			return slog.LevelError
		}
		return slog.LevelInfo
	case "warning":
		name = "warn"
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// logWriter tees stdout with a lumberjack file. Stdout alone is used when
// the directory cannot be created.
func logWriter(cfg *config.Config) io.Writer {
	dir := cfg.Log.Directory
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return os.Stdout
	}

	name := cfg.App.Name
	if name == "" {
		name = "kour"
	}
	return io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   filepath.Join(dir, name+".log"),
		MaxSize:    positiveOr(cfg.Log.MaxSizeMB, 100),
		MaxBackups: positiveOr(cfg.Log.MaxBackups, 3),
		MaxAge:     positiveOr(cfg.Log.MaxAgeDays, 28),
		Compress:   true,
	})
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// ANSI colors for the development handler.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

// colorHandler prints "15:04:05 LEVEL message key=value" lines.
// Attributes added with WithAttrs are rendered once, under the group that was
// open at that time.
type colorHandler struct {
	w      io.Writer
	mu     *sync.Mutex
	level  slog.Level
	prefix string
	group  string
}

func newColorHandler(w io.Writer, level slog.Level) *colorHandler {
	return &colorHandler{w: w, mu: &sync.Mutex{}, level: level}
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(colorGray + r.Time.Format("15:04:05") + colorReset + " ")
	b.WriteString(levelColor(r.Level) + r.Level.String() + colorReset + " ")
	b.WriteString(r.Message)
	b.WriteString(h.prefix)
	r.Attrs(func(a slog.Attr) bool {
		writeColorAttr(&b, h.group, a)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	var b strings.Builder
	for _, a := range attrs {
		writeColorAttr(&b, h.group, a)
	}
	next := *h
	next.prefix = h.prefix + b.String()
	return &next
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.group = qualify(h.group, name)
	return &next
}

func writeColorAttr(b *strings.Builder, group string, a slog.Attr) {
	b.WriteString(" " + colorGray + qualify(group, a.Key) + "=" + colorReset + a.Value.String())
}

func qualify(group, key string) string {
	if group == "" {
		return key
	}
	return group + "." + key
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return colorRed
	case level >= slog.LevelWarn:
		return colorYellow
	case level >= slog.LevelInfo:
		return colorBlue
	default:
		return colorGray
	}
}
