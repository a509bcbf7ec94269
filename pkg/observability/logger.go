package observability

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// LogLevel controls which records a Logger emits.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l LogLevel) String() string {
	if l < DebugLevel || l > ErrorLevel {
		return "INFO"
	}
	return levelNames[l]
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger emits structured JSON records. It wraps slog so call sites can chain
// WithField and WithError without carrying slog argument pairs around.
type Logger struct {
	inner *slog.Logger
	level LogLevel
}

// NewLogger writes JSON records at or above level to out. A nil out means
// stdout.
func NewLogger(level LogLevel, out io.Writer) *Logger {
	if out == nil {
		out = os.Stdout
	}
	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level.slogLevel()})
	return &Logger{inner: slog.New(handler), level: level}
}

// WithField returns a child logger carrying key=value on every record.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{inner: l.inner.With(key, value), level: l.level}
}

// WithFields returns a child logger carrying all the given fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{inner: l.inner.With(args...), level: l.level}
}

// WithError attaches err under the "error" key. Nil errors are a no-op.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

func (l *Logger) Debug(msg string) { l.inner.Debug(msg) }
func (l *Logger) Info(msg string)  { l.inner.Info(msg) }
func (l *Logger) Warn(msg string)  { l.inner.Warn(msg) }
func (l *Logger) Error(msg string) { l.inner.Error(msg) }

func (l *Logger) Infof(format string, args ...interface{}) {
	l.inner.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.inner.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.inner.Error(fmt.Sprintf(format, args...))
}
