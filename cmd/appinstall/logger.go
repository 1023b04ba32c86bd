package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	glog "github.com/goliatone/go-logger/glog"
)

const levelTrace = slog.Level(-8)

// slogLogger satisfies glog.Logger on top of log/slog.
type slogLogger struct {
	base *slog.Logger
	ctx  context.Context
}

func newLogger(w io.Writer, level string, format string) *slogLogger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var handler slog.Handler
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &slogLogger{base: slog.New(handler), ctx: context.Background()}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return levelTrace
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *slogLogger) Trace(msg string, args ...any) { l.base.Log(l.ctx, levelTrace, msg, args...) }
func (l *slogLogger) Debug(msg string, args ...any) { l.base.DebugContext(l.ctx, msg, args...) }
func (l *slogLogger) Info(msg string, args ...any)  { l.base.InfoContext(l.ctx, msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.base.WarnContext(l.ctx, msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.base.ErrorContext(l.ctx, msg, args...) }

func (l *slogLogger) Fatal(msg string, args ...any) {
	l.base.ErrorContext(l.ctx, msg, args...)
	os.Exit(1)
}

func (l *slogLogger) WithContext(ctx context.Context) glog.Logger {
	if ctx == nil {
		ctx = context.Background()
	}
	return &slogLogger{base: l.base, ctx: ctx}
}

// GetLogger makes the logger usable as a glog.LoggerProvider.
func (l *slogLogger) GetLogger(name string) glog.Logger {
	return &slogLogger{base: l.base.With("logger", name), ctx: l.ctx}
}
