package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			assert.Equal(t, tc.want, parseLevel(tc.in))
		})
	}
}

func TestInit_WritesJSONToWriter(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := Init("bank-test", "info", "production", &buf)
	logger.Info("hello", "k", "v")

	assert.Contains(t, buf.String(), `"service":"bank-test"`)
	assert.Contains(t, buf.String(), `"msg":"hello"`)
}

func TestFromContext(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))

	l := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := WithLogger(context.Background(), l)
	assert.Same(t, l, FromContext(ctx))
}

func TestInit_RedactsAndFormats(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	logger := Init("bank-test", "info", "production", &buf)
	logger.Info("login", "username", "alice", "Password", "hunter2", "token", "eyJhbGciOi", "amount", decimal.RequireFromString("10.5"))

	out := buf.String()
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "eyJhbGciOi")
	assert.Contains(t, out, `"Password":"[REDACTED]"`)
	assert.Contains(t, out, `"username":"alice"`)
	assert.Contains(t, out, `"amount":"10.50"`)
}
