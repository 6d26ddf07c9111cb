package build

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/btcsuite/btclog"
	btclogv2 "github.com/btcsuite/btclog/v2"
)

// LogConfig configures the log outputs.
type LogConfig struct {
	// Level is the btclog level name, for example "info" or "debug".
	Level string

	// Console receives every record. Nil disables console output.
	Console io.Writer

	// File enables the rotating log file when set.
	File *LogRotatorConfig
}

// LogManager owns the root handler every subsystem logger derives from.
type LogManager struct {
	root   *HandlerSet
	closer io.Closer
}

// NewLogManager creates the outputs described by cfg.
func NewLogManager(cfg *LogConfig) (*LogManager, error) {
	level, ok := btclog.LevelFromString(cfg.Level)
	if !ok {
		return nil, fmt.Errorf("unknown log level %q", cfg.Level)
	}

	var (
		handlers []btclogv2.Handler
		closer   io.Closer
	)
	if cfg.Console != nil {
		handlers = append(
			handlers, btclogv2.NewDefaultHandler(cfg.Console),
		)
	}
	if cfg.File != nil {
		w, err := NewRotatingLogWriter(cfg.File)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, btclogv2.NewDefaultHandler(w))
		closer = w
	}

	return &LogManager{
		root:   NewHandlerSet(level, handlers...),
		closer: closer,
	}, nil
}

// Logger returns a btclog logger tagged with subsystem.
func (m *LogManager) Logger(subsystem string) btclogv2.Logger {
	return btclogv2.NewSLogger(m.root.SubSystem(subsystem))
}

// SlogLogger returns a log/slog logger tagged with subsystem, for the
// packages that take one.
func (m *LogManager) SlogLogger(subsystem string) *slog.Logger {
	return slog.New(m.root.SubSystem(subsystem))
}

// Close flushes and closes the log file, if any.
func (m *LogManager) Close() error {
	if m.closer == nil {
		return nil
	}

	return m.closer.Close()
}
