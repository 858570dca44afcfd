// Package logger builds the slog loggers of the proxy and the CLI: a console
// sink (tint in dev, JSON otherwise), an optional rotating JSON file, and
// credential redaction in front of both.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options defines parameters for logger creation.
type Options struct {
	Env          string
	ConsoleLevel string // default: info
	FileLevel    string // default: debug
	File         string
	App          string
	// Console defaults to os.Stdout. The CLI passes os.Stderr so stdout stays
	// reserved for command output.
	Console io.Writer
}

// SensitiveFragments mark attribute keys whose values never reach a sink.
// A key matches when it contains a fragment, so "refresh_token" and
// "client_secret" are covered.
var SensitiveFragments = []string{"token", "secret", "authorization", "cookie", "password"}

const redacted = "[REDACTED]"

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds the logger. The returned closer releases the log file and must
// be called on shutdown.
func New(o Options) (*slog.Logger, io.Closer) {
	console := o.Console
	if console == nil {
		console = os.Stdout
	}
	consoleLvl := parseLevel(o.ConsoleLevel, slog.LevelInfo)

	var sink slog.Handler
	if o.Env == "dev" {
		sink = tint.NewHandler(console, &tint.Options{Level: consoleLvl, TimeFormat: time.Kitchen})
	} else {
		sink = slog.NewJSONHandler(console, &slog.HandlerOptions{Level: consoleLvl})
	}

	var closer io.Closer = nopCloser{}
	if o.File != "" {
		w := &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    5,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		}
		closer = w
		file := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: parseLevel(o.FileLevel, slog.LevelDebug)})
		sink = fanout{sink, file}
	}

	l := slog.New(NewRedactingHandler(sink, SensitiveFragments)).With(
		slog.String("app", o.App),
		slog.String("env", o.Env),
	)
	return l, closer
}

func parseLevel(s string, def slog.Level) slog.Level {
	if s == "" {
		return def
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return def
	}
	return l
}

// RedactingHandler masks credentials before records reach the inner handler.
type RedactingHandler struct {
	inner     slog.Handler
	fragments []string
}

func NewRedactingHandler(inner slog.Handler, fragments []string) *RedactingHandler {
	lower := make([]string, len(fragments))
	for i, f := range fragments {
		lower[i] = strings.ToLower(f)
	}
	return &RedactingHandler{inner: inner, fragments: lower}
}

func (h *RedactingHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.inner.Enabled(ctx, l)
}

func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	nr := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		nr.AddAttrs(h.redact(a))
		return true
	})
	return h.inner.Handle(ctx, nr)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = h.redact(a)
	}
	return &RedactingHandler{inner: h.inner.WithAttrs(clean), fragments: h.fragments}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name), fragments: h.fragments}
}

func (h *RedactingHandler) redact(a slog.Attr) slog.Attr {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		group := v.Group()
		clean := make([]any, len(group))
		for i, g := range group {
			clean[i] = h.redact(g)
		}
		return slog.Group(a.Key, clean...)
	}
	if h.sensitiveKey(a.Key) {
		return slog.String(a.Key, redacted)
	}
	if v.Kind() == slog.KindString && strings.HasPrefix(v.String(), "Bearer ") {
		return slog.String(a.Key, redacted)
	}
	return slog.Attr{Key: a.Key, Value: v}
}

func (h *RedactingHandler) sensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, f := range h.fragments {
		if strings.Contains(k, f) {
			return true
		}
	}
	return false
}

// fanout sends each record to every handler enabled for its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
