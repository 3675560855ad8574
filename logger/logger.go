// Package logger builds the application's slog logger.
package logger

import (
	"io"
	"log/slog"
	"os"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Option configures logger creation.
type Option func(*options)

type options struct {
	output io.Writer
	level  *slog.Level
}

// WithOutput sets the output destination. Nil writers are ignored.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.output = w
		}
	}
}

// WithLevel overrides the level implied by the environment.
func WithLevel(l slog.Level) Option {
	return func(o *options) { o.level = &l }
}

// New returns a logger for the given environment.
// Production logs JSON at info level, anything else logs text at debug level.
func New(env, service string, opts ...Option) *slog.Logger {
	o := &options{output: os.Stdout}
	for _, opt := range opts {
		opt(o)
	}

	production := env == EnvProduction || env == "prod"

	level := slog.LevelDebug
	if production {
		level = slog.LevelInfo
	}
	if o.level != nil {
		level = *o.level
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if production {
		handler = slog.NewJSONHandler(o.output, handlerOpts)
	} else {
		handler = slog.NewTextHandler(o.output, handlerOpts)
	}

	return slog.New(handler.WithAttrs([]slog.Attr{
		slog.String("service", service),
		slog.String("env", env),
	}))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// Err wraps an error as a slog attribute under the "error" key.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("error", err.Error())
}
