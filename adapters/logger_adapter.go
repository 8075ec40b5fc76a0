package adapters

import (
	"log/slog"
	"strings"
)

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
	LogLevelNone  LogLevel = "NONE"
)

// ParseLogLevel converts a string to a LogLevel, defaulting to warn.
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LogLevelDebug
	case "INFO":
		return LogLevelInfo
	case "ERROR":
		return LogLevelError
	case "NONE", "OFF":
		return LogLevelNone
	default:
		return LogLevelWarn
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelError:
		return slog.LevelError
	case LogLevelNone:
		return slog.LevelError + 4
	default:
		return slog.LevelWarn
	}
}

// LoggerAdapter is an interface for logging.
// Implement this interface to use custom loggers. Args are alternating
// key/value pairs, as accepted by log/slog.
type LoggerAdapter interface {
	// Debug logs a debug message
	Debug(message string, args ...any)
	// Info logs an info message
	Info(message string, args ...any)
	// Warn logs a warning message
	Warn(message string, args ...any)
	// Error logs an error message
	Error(message string, args ...any)
}
