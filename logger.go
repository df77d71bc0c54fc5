package renteasy

import (
	"log/slog"

	"github.com/google/uuid"
)

// Logger is the minimal structured logging interface the client emits
// through. Arguments follow the key/value convention of log/slog.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger adapts a *slog.Logger to the Logger interface. Passing nil
// uses slog.Default().
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &slogLogger{l: l}
}

func (s *slogLogger) Debug(msg string, keysAndValues ...any) { s.l.Debug(msg, keysAndValues...) }
func (s *slogLogger) Info(msg string, keysAndValues ...any)  { s.l.Info(msg, keysAndValues...) }
func (s *slogLogger) Warn(msg string, keysAndValues ...any)  { s.l.Warn(msg, keysAndValues...) }
func (s *slogLogger) Error(msg string, keysAndValues ...any) { s.l.Error(msg, keysAndValues...) }

// DebugConfig controls which request lifecycle events are logged. All flags
// default to on once debug logging is enabled; disable selectively for less
// noise.
type DebugConfig struct {
	Enabled     bool
	LogRequests bool
	LogRetries  bool
	LogCache    bool
	LogAuth     bool

	// RequestIDGen produces the correlation ID attached to each logical
	// request.
	RequestIDGen func() string
}

// DefaultDebugConfig returns a DebugConfig with all categories enabled but
// debug logging itself off.
func DefaultDebugConfig() *DebugConfig {
	return &DebugConfig{
		Enabled:      false,
		LogRequests:  true,
		LogRetries:   true,
		LogCache:     true,
		LogAuth:      true,
		RequestIDGen: uuid.NewString,
	}
}
