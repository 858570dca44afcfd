package logger

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_FileAndConsoleLevels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proxy.log")
	var console bytes.Buffer

	log, closer := New(Options{
		Env:          "prod",
		ConsoleLevel: "warn",
		File:         path,
		App:          "contacts-proxy",
		Console:      &console,
	})
	log.Debug("debug message")
	log.Warn("warn message")
	require.NoError(t, closer.Close())

	file, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(file), "debug message")
	assert.Contains(t, string(file), `"level":"DEBUG"`)
	assert.Contains(t, string(file), `"app":"contacts-proxy"`)

	assert.NotContains(t, console.String(), "debug message")
	assert.Contains(t, console.String(), `"msg":"warn message"`)
}

func TestNew_DevConsoleWithoutFile(t *testing.T) {
	var buf bytes.Buffer
	log, closer := New(Options{Env: "dev", ConsoleLevel: "WARN", App: "contacts", Console: &buf})
	log.Info("hidden")
	log.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.NoError(t, closer.Close())
}

func TestRedactingHandler(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewRedactingHandler(slog.NewJSONHandler(&buf, nil), SensitiveFragments))

	log.With(slog.String("Cookie", "sid=123")).Info("upstream call",
		slog.String("refresh_token", "v1.refresh-value"),
		slog.String("header", "Bearer eyJhbGciOiJSUzI1NiJ9"),
		slog.Group("idp", slog.String("client_secret", "s3cr3t"), slog.String("grant", "refresh_token")),
		slog.String("user", "john"),
	)

	out := buf.String()
	for _, secret := range []string{"sid=123", "v1.refresh-value", "eyJhbGciOiJSUzI1NiJ9", "s3cr3t"} {
		assert.NotContains(t, out, secret)
	}
	assert.Contains(t, out, redacted)
	assert.Contains(t, out, `"grant":"refresh_token"`)
	assert.Contains(t, out, "john")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug", slog.LevelInfo))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARN", slog.LevelInfo))
	assert.Equal(t, slog.LevelInfo, parseLevel("", slog.LevelInfo))
	assert.Equal(t, slog.LevelError, parseLevel("bogus", slog.LevelError))
}

func TestFanout(t *testing.T) {
	var info, warn bytes.Buffer
	f := fanout{
		slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}
	ctx := context.Background()
	assert.True(t, f.Enabled(ctx, slog.LevelInfo))
	assert.False(t, f.Enabled(ctx, slog.LevelDebug))

	require.NoError(t, f.Handle(ctx, slog.NewRecord(time.Now(), slog.LevelInfo, "fanout", 0)))
	assert.Contains(t, info.String(), "fanout")
	assert.Zero(t, warn.Len())

	slog.New(f.WithGroup("req").WithAttrs([]slog.Attr{slog.String("id", "1")})).Warn("both")
	assert.Contains(t, warn.String(), "req.id=1")
}
