// Package logging builds the structured loggers used across leadsplit.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format selects the slog handler.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Options configures NewLogger.
type Options struct {
	Level  slog.Level
	Format Format
	Output io.Writer
}

// Logger is a structured logger tagged with the emitting component.
type Logger struct {
	*slog.Logger
	root *slog.Logger
}

// NewLogger creates a logger whose records carry component and system fields.
func NewLogger(component string, opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	handlerOpts := &slog.HandlerOptions{Level: opts.Level}

	var handler slog.Handler
	if opts.Format == FormatText {
		handler = slog.NewTextHandler(out, handlerOpts)
	} else {
		handler = slog.NewJSONHandler(out, handlerOpts)
	}

	root := slog.New(handler).With(slog.String("system", "leadsplit"))
	return &Logger{Logger: root.With(slog.String("component", component)), root: root}
}

// Nop returns a logger that discards everything. Handy for tests and for
// callers that pass a nil logger.
func Nop() *Logger {
	root := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &Logger{Logger: root, root: root}
}

// Component returns a child logger for another component sharing the handler.
func (l *Logger) Component(name string) *Logger {
	return &Logger{Logger: l.root.With(slog.String("component", name)), root: l.root}
}

// WithRequest returns a logger with request-scoped fields.
func (l *Logger) WithRequest(requestID, method, path string) *Logger {
	return &Logger{
		Logger: l.Logger.With(
			slog.String("request_id", requestID),
			slog.String("method", method),
			slog.String("path", path),
		),
		root: l.root,
	}
}

// WithUpload returns a logger with upload-scoped fields.
func (l *Logger) WithUpload(fileName, uploadedBy string) *Logger {
	return &Logger{
		Logger: l.Logger.With(
			slog.String("file_name", fileName),
			slog.String("uploaded_by", uploadedBy),
		),
		root: l.root,
	}
}

// WithError returns a logger carrying err. Coded errors anywhere in the
// chain also log their fields under error_detail.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	args := []any{slog.String("error", err.Error())}
	var detail slog.LogValuer
	if errors.As(err, &detail) {
		args = append(args, slog.Any("error_detail", detail))
	}
	return &Logger{Logger: l.Logger.With(args...), root: l.root}
}

type ctxKey struct{}

// IntoContext stores l in ctx.
func IntoContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger stored in ctx, or fallback when none is set.
func FromContext(ctx context.Context, fallback *Logger) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok && l != nil {
		return l
	}
	if fallback == nil {
		return Nop()
	}
	return fallback
}

// ParseLevel converts a config string into a slog level.
func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", raw)
	}
}

// ParseFormat converts a config string into a handler format.
func ParseFormat(raw string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatText:
		return FormatText, nil
	default:
		return FormatJSON, fmt.Errorf("unknown log format %q", raw)
	}
}
