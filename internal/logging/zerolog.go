package logging

import (
	"context"
	"io"
	"strings"

	"github.com/rs/zerolog"
)

type zlogger struct {
	l zerolog.Logger
}

func newZerolog(w io.Writer, cfg Config) Logger {
	if !strings.EqualFold(cfg.Format, "json") {
		w = zerolog.ConsoleWriter{Out: w, NoColor: cfg.File != ""}
	}
	l := zerolog.New(w).With().Timestamp().Logger().Level(parseZerologLevel(cfg.Level))
	return &zlogger{l: l}
}

func (z *zlogger) With(fields ...Field) Logger {
	c := z.l.With()
	for _, f := range fields {
		c = c.Interface(f.Key, f.Value)
	}
	return &zlogger{l: c.Logger()}
}

func (z *zlogger) Debug(ctx context.Context, msg string, fields ...Field) {
	z.emit(ctx, z.l.Debug(), msg, fields)
}

func (z *zlogger) Info(ctx context.Context, msg string, fields ...Field) {
	z.emit(ctx, z.l.Info(), msg, fields)
}

func (z *zlogger) Warn(ctx context.Context, msg string, fields ...Field) {
	z.emit(ctx, z.l.Warn(), msg, fields)
}

func (z *zlogger) Error(ctx context.Context, msg string, fields ...Field) {
	z.emit(ctx, z.l.Error(), msg, fields)
}

func (z *zlogger) emit(ctx context.Context, e *zerolog.Event, msg string, fields []Field) {
	// Disabled levels return a nil event.
	if e == nil {
		return
	}
	if ctx != nil {
		e = e.Ctx(ctx)
	}
	for _, f := range fields {
		e = e.Interface(f.Key, f.Value)
	}
	e.Msg(msg)
}

func parseZerologLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
