// Package logger provides structured logging for the filevault daemon.
// It configures log/slog with text or JSON output and file rotation via lumberjack.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration options.
type Config struct {
	// LogDir is the directory where rotated log files are written.
	// If empty, only stdout logging is enabled.
	LogDir string

	// FileName is the log file name inside LogDir. Defaults to "server.log".
	FileName string

	// Debug enables debug-level logging.
	Debug bool

	// JSON selects the JSON handler instead of the text handler.
	JSON bool

	// Component is added to every entry when set.
	Component string

	// Output overrides stdout. Used by tests.
	Output io.Writer
}

var rotating *lumberjack.Logger

// Init initializes the global slog logger with the given configuration.
func Init(cfg Config) error {
	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	var writer io.Writer = os.Stdout
	if cfg.Output != nil {
		writer = cfg.Output
	}

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0755); err != nil {
			return err
		}
		name := cfg.FileName
		if name == "" {
			name = "server.log"
		}
		rotating = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, name),
			MaxSize:    50, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
			Compress:   true,
		}
		writer = io.MultiWriter(writer, rotating)
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	l := slog.New(handler)
	if cfg.Component != "" {
		l = l.With("component", cfg.Component)
	}
	slog.SetDefault(l)
	return nil
}

// Close flushes and closes the rotating log file, if any.
func Close() error {
	if rotating == nil {
		return nil
	}
	err := rotating.Close()
	rotating = nil
	return err
}

// WithComponent returns a logger tagged with a component attribute.
func WithComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

// Fatal logs at error level and exits with status code 1.
func Fatal(msg string, args ...any) {
	slog.Error(msg, args...)
	_ = Close()
	os.Exit(1)
}
