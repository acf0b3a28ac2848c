// Package obslog wraps log/slog with helpers for logging near
// secret-carrying values (field shares, MAC shares, hex payloads)
// without ever writing the value itself to a log line.
package obslog

import (
	"log/slog"
	"os"
)

// Logger is the narrow logging surface the rest of this repository
// depends on, so call sites never reach for log/slog directly and risk
// formatting a share or MAC value into a log line.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

type slogLogger struct {
	l *slog.Logger
}

// New returns a Logger backed by slog's default text handler on stderr
// at the given level.
func New(level slog.Level) Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return &slogLogger{l: slog.New(h)}
}

// NewNop returns a Logger that discards everything, for tests.
func NewNop() Logger {
	h := slog.NewTextHandler(nopWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return &slogLogger{l: slog.New(h)}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func (s *slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s *slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }
func (s *slogLogger) With(args ...any) Logger {
	return &slogLogger{l: s.l.With(args...)}
}

// Placeholder is a slog.LogValuer that always renders as a fixed
// string, for attaching to a log attribute whose real value must never
// be printed (e.g. a field share or MAC tag).
type Placeholder struct {
	Label string
}

// LogValue implements slog.LogValuer.
func (p Placeholder) LogValue() slog.Value {
	label := p.Label
	if label == "" {
		label = "redacted"
	}
	return slog.StringValue("<" + label + ">")
}

// Redacted wraps a hex-encoded secret so that logging it via %v/%s never
// reveals more than its length, matching this repository's policy of
// never formatting share or MAC bytes directly.
type Redacted struct {
	Hex string
}

func (r Redacted) String() string {
	return "<redacted:" + itoa(len(r.Hex)) + " hex chars>"
}

// LogValue implements slog.LogValuer.
func (r Redacted) LogValue() slog.Value {
	return slog.StringValue(r.String())
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := [20]byte{}
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[i:])
}
