// Package logger provides structured logging for annostore
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with annostore-specific functionality.
// A nil *Logger is valid and discards everything.
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // pretty-print for development
	Output     io.Writer
	WithCaller bool
}

// NewLogger creates a new structured logger
func NewLogger(cfg Config) *Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	// Pretty printing for development
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("service", "annostore").
		Logger()

	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// Nop returns a logger that writes nothing
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// GetZerolog returns the underlying zerolog logger
func (l *Logger) GetZerolog() *zerolog.Logger {
	if l == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return &l.zlog
}

// Info logs an info message
func (l *Logger) Info(msg string) *zerolog.Event {
	if l == nil {
		return nil
	}
	return l.zlog.Info().Str("msg", msg)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) *zerolog.Event {
	if l == nil {
		return nil
	}
	return l.zlog.Debug().Str("msg", msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) *zerolog.Event {
	if l == nil {
		return nil
	}
	return l.zlog.Warn().Str("msg", msg)
}

// Error logs an error message
func (l *Logger) Error(msg string) *zerolog.Event {
	if l == nil {
		return nil
	}
	return l.zlog.Error().Str("msg", msg)
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	if l == nil {
		return nil
	}
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zlog: ctx.Logger()}
}

// SearchLogger returns a logger for one search job
func (l *Logger) SearchLogger(jobID string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "search").
			Str("job_id", jobID).
			Logger(),
	}
}

// DbLogger returns a logger for database operations
func (l *Logger) DbLogger(operation string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "database").
			Str("operation", operation).
			Logger(),
	}
}

// LogSearchJob logs the end of a search job with structured fields
func (l *Logger) LogSearchJob(pattern, state string, duration time.Duration, resultCount int, err error) {
	if l == nil {
		return
	}
	event := l.zlog.Info().
		Str("component", "search").
		Str("pattern", pattern).
		Str("state", state).
		Dur("duration_ms", duration).
		Int("result_count", resultCount)

	if err != nil {
		event = l.zlog.Error().
			Str("component", "search").
			Str("pattern", pattern).
			Str("state", state).
			Dur("duration_ms", duration).
			Int("result_count", resultCount).
			Err(err)
	}

	event.Msg("Search job finished")
}

// LogDbOperation logs database operation with structured fields
func (l *Logger) LogDbOperation(operation string, duration time.Duration, recordCount int, err error) {
	if l == nil {
		return
	}
	event := l.zlog.Debug().
		Str("component", "database").
		Str("operation", operation).
		Dur("duration_ms", duration).
		Int("record_count", recordCount)

	if err != nil {
		event = l.zlog.Error().
			Str("component", "database").
			Str("operation", operation).
			Dur("duration_ms", duration).
			Err(err)
	}

	event.Msg("Database operation completed")
}

// LogSessionOpen logs a session opening a database
func (l *Logger) LogSessionOpen(dbPath string, coderID int) {
	if l == nil {
		return
	}
	l.zlog.Info().
		Str("event", "session_open").
		Str("database", dbPath).
		Int("coder_id", coderID).
		Msg("Session opened")
}

// LogSessionClose logs session teardown
func (l *Logger) LogSessionClose() {
	if l == nil {
		return
	}
	l.zlog.Info().
		Str("event", "session_close").
		Msg("Session closed")
}

// Global logger instance
var globalLogger *Logger

// InitGlobalLogger initializes the global logger
func InitGlobalLogger(cfg Config) {
	globalLogger = NewLogger(cfg)
	log.Logger = *globalLogger.GetZerolog()
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		// Initialize with defaults if not set
		InitGlobalLogger(Config{
			Level:  "info",
			Pretty: true,
		})
	}
	return globalLogger
}
