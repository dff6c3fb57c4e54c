// Package logging builds the process logger and lets it be reconfigured
// while running: level changes apply in place, format or output changes
// swap the handler underneath every derived logger.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Output streams for console logging.
const (
	OutputStdout = "stdout"
	OutputStderr = "stderr"
)

// Config describes the desired logging configuration.
type Config struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	// Output picks the console stream. CLI jobs log to stderr so their
	// results can be piped from stdout.
	Output     string `yaml:"output" json:"output,omitempty"`
	FilePath   string `yaml:"file_path" json:"file_path,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb,omitempty"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups,omitempty"`
	MaxAgeDays int    `yaml:"max_age_days" json:"max_age_days,omitempty"`
	Compress   bool   `yaml:"compress" json:"compress,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "json",
		Output:     OutputStdout,
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 30,
	}
}

// String returns a human-readable summary of the config.
func (c Config) String() string {
	s := fmt.Sprintf("level=%s format=%s", c.Level, c.Format)
	if c.FilePath != "" {
		s += fmt.Sprintf(" file=%s max_size=%dMB max_backups=%d max_age=%dd",
			c.FilePath, c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays)
	}
	return s
}

// Validate rejects unknown levels, formats and outputs. Empty values are
// allowed and fall back to defaults.
func (c Config) Validate() error {
	if c.Level != "" && !ValidLevel(c.Level) {
		return fmt.Errorf("unknown log level %q", c.Level)
	}
	if c.Format != "" && !ValidFormat(c.Format) {
		return fmt.Errorf("unknown log format %q", c.Format)
	}
	switch c.Output {
	case "", OutputStdout, OutputStderr:
	default:
		return fmt.Errorf("unknown log output %q", c.Output)
	}
	return nil
}

// outputChanged reports whether moving from c to next needs a new handler.
func (c Config) outputChanged(next Config) bool {
	return c.Format != next.Format ||
		c.Output != next.Output ||
		c.FilePath != next.FilePath ||
		c.MaxSizeMB != next.MaxSizeMB ||
		c.MaxBackups != next.MaxBackups ||
		c.MaxAgeDays != next.MaxAgeDays ||
		c.Compress != next.Compress
}

// SwappableHandler is a slog.Handler whose delegate can be replaced at
// runtime. Loggers derived with With or WithGroup keep following swaps.
type SwappableHandler struct {
	root   *atomic.Pointer[slog.Handler]
	attrs  []slog.Attr
	groups []string
}

// NewSwappableHandler creates a SwappableHandler wrapping h.
func NewSwappableHandler(h slog.Handler) *SwappableHandler {
	root := &atomic.Pointer[slog.Handler]{}
	root.Store(&h)
	return &SwappableHandler{root: root}
}

// Swap replaces the delegate for this handler and everything derived from it.
func (s *SwappableHandler) Swap(h slog.Handler) {
	s.root.Store(&h)
}

func (s *SwappableHandler) current() slog.Handler {
	h := *s.root.Load()
	if len(s.attrs) > 0 {
		h = h.WithAttrs(s.attrs)
	}
	for _, g := range s.groups {
		h = h.WithGroup(g)
	}
	return h
}

// Enabled delegates to the current handler.
func (s *SwappableHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return (*s.root.Load()).Enabled(ctx, level)
}

// Handle delegates to the current handler.
func (s *SwappableHandler) Handle(ctx context.Context, r slog.Record) error {
	return s.current().Handle(ctx, r)
}

// WithAttrs returns a handler sharing this one's delegate with attrs added.
func (s *SwappableHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(s.groups) > 0 {
		// Attrs after a group belong inside it, so they cannot be replayed
		// ahead of the group on a fresh delegate.
		return &fixedHandler{inner: s.current().WithAttrs(attrs), swap: s}
	}
	next := &SwappableHandler{root: s.root, groups: s.groups}
	next.attrs = append(append([]slog.Attr(nil), s.attrs...), attrs...)
	return next
}

// WithGroup returns a handler sharing this one's delegate within group name.
func (s *SwappableHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return s
	}
	next := &SwappableHandler{root: s.root, attrs: s.attrs}
	next.groups = append(append([]string(nil), s.groups...), name)
	return next
}

// fixedHandler pins attrs added inside a group. It still follows the level
// of the swappable root.
type fixedHandler struct {
	inner slog.Handler
	swap  *SwappableHandler
}

func (f *fixedHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return f.swap.Enabled(ctx, level)
}

func (f *fixedHandler) Handle(ctx context.Context, r slog.Record) error {
	return f.inner.Handle(ctx, r)
}

func (f *fixedHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &fixedHandler{inner: f.inner.WithAttrs(attrs), swap: f.swap}
}

func (f *fixedHandler) WithGroup(name string) slog.Handler {
	return &fixedHandler{inner: f.inner.WithGroup(name), swap: f.swap}
}

// Manager owns the logger lifecycle and supports runtime reconfiguration.
type Manager struct {
	levelVar *slog.LevelVar
	handler  *SwappableHandler

	mu     sync.Mutex
	config Config
	closer io.Closer // rotating file writer, if any
}

// NewManager creates a Manager and returns it along with a ready-to-use logger.
func NewManager(cfg Config) (*Manager, *slog.Logger) {
	lvl := &slog.LevelVar{}
	lvl.Set(parseLevel(cfg.Level))

	writer, closer := buildWriter(cfg)
	m := &Manager{
		levelVar: lvl,
		handler:  NewSwappableHandler(buildHandler(writer, lvl, cfg.Format)),
		config:   cfg,
		closer:   closer,
	}
	return m, slog.New(m.handler)
}

// Reconfigure applies a new configuration at runtime. Level-only changes
// are instant via LevelVar; format or output changes rebuild the handler.
func (m *Manager) Reconfigure(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.levelVar.Set(parseLevel(cfg.Level))

	if m.config.outputChanged(cfg) {
		if m.closer != nil {
			m.closer.Close() //nolint:errcheck
			m.closer = nil
		}
		writer, closer := buildWriter(cfg)
		m.handler.Swap(buildHandler(writer, m.levelVar, cfg.Format))
		m.closer = closer
	}

	m.config = cfg
}

// Config returns the current configuration snapshot.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.config
}

// Level returns the active level.
func (m *Manager) Level() slog.Level {
	return m.levelVar.Level()
}

// Close releases the log file writer, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closer != nil {
		err := m.closer.Close()
		m.closer = nil
		return err
	}
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FormatLevel converts a slog.Level to its config name.
func FormatLevel(l slog.Level) string {
	switch {
	case l <= slog.LevelDebug:
		return "debug"
	case l >= slog.LevelError:
		return "error"
	case l >= slog.LevelWarn:
		return "warn"
	default:
		return "info"
	}
}

// buildWriter returns the console stream, teed into a rotating file when a
// path is configured. The file writer is returned as the closer.
func buildWriter(cfg Config) (io.Writer, io.Closer) {
	var console io.Writer = os.Stdout
	if cfg.Output == OutputStderr {
		console = os.Stderr
	}
	if cfg.FilePath == "" {
		return console, nil
	}

	defaults := DefaultConfig()
	lj := &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    positiveOr(cfg.MaxSizeMB, defaults.MaxSizeMB),
		MaxBackups: positiveOr(cfg.MaxBackups, defaults.MaxBackups),
		MaxAge:     positiveOr(cfg.MaxAgeDays, defaults.MaxAgeDays),
		Compress:   cfg.Compress,
	}
	return io.MultiWriter(console, lj), lj
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func buildHandler(w io.Writer, leveler slog.Leveler, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: leveler}
	if format == "text" {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}

// ValidLevel returns true if s is a recognized log level.
func ValidLevel(s string) bool {
	switch s {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

// ValidFormat returns true if s is a recognized log format.
func ValidFormat(s string) bool {
	return s == "text" || s == "json"
}
