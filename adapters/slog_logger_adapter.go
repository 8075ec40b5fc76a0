package adapters

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// SlogLoggerAdapter implements LoggerAdapter on top of log/slog
type SlogLoggerAdapter struct {
	logger *slog.Logger
	level  LogLevel
}

var _ LoggerAdapter = (*SlogLoggerAdapter)(nil)

// NewSlogLoggerAdapter creates a text logger on stderr with the specified level
func NewSlogLoggerAdapter(level LogLevel) *SlogLoggerAdapter {
	return NewSlogLoggerAdapterWithWriter(os.Stderr, level)
}

// NewSlogLoggerAdapterWithWriter creates a text logger writing to w
func NewSlogLoggerAdapterWithWriter(w io.Writer, level LogLevel) *SlogLoggerAdapter {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level.slogLevel()})
	return &SlogLoggerAdapter{
		logger: slog.New(handler).With("component", "ripple"),
		level:  level,
	}
}

// WrapSlogLogger adapts an existing slog.Logger. Level filtering is left to
// the logger's handler.
func WrapSlogLogger(logger *slog.Logger) *SlogLoggerAdapter {
	return &SlogLoggerAdapter{logger: logger, level: LogLevelDebug}
}

func (s *SlogLoggerAdapter) log(level LogLevel, message string, args ...any) {
	if s.level == LogLevelNone {
		return
	}
	s.logger.Log(context.Background(), level.slogLevel(), message, args...)
}

func (s *SlogLoggerAdapter) Debug(message string, args ...any) {
	s.log(LogLevelDebug, message, args...)
}

func (s *SlogLoggerAdapter) Info(message string, args ...any) {
	s.log(LogLevelInfo, message, args...)
}

func (s *SlogLoggerAdapter) Warn(message string, args ...any) {
	s.log(LogLevelWarn, message, args...)
}

func (s *SlogLoggerAdapter) Error(message string, args ...any) {
	s.log(LogLevelError, message, args...)
}
