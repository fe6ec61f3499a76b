package rlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent creates a child logger scoped to a subsystem (e.g. "itemstore", "builder").
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithIndexName creates a child logger scoped to one index.
func WithIndexName(indexName string) zerolog.Logger {
	return Logger.With().Str("index", indexName).Logger()
}

// WithItemType creates a child logger scoped to one item type.
func WithItemType(itemType string) zerolog.Logger {
	return Logger.With().Str("item_type", itemType).Logger()
}

// WithSessionID creates a child logger scoped to one change-tracking session.
func WithSessionID(sessionID string) zerolog.Logger {
	return Logger.With().Str("session_id", sessionID).Logger()
}

// Info logs at info level on the global logger.
func Info(msg string) {
	Logger.Info().Msg(msg)
}

// Debug logs at debug level on the global logger.
func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

// Warn logs at warn level on the global logger.
func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

// Error logs at error level on the global logger.
func Error(msg string) {
	Logger.Error().Msg(msg)
}

// Errorf logs an error with a message template at error level.
func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}
