package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"trace", 0, true},
	}
	for _, tt := range tests {
		got, err := GetLevel(tt.in)
		if tt.wantErr {
			assert.True(t, errors.Is(err, ErrUnknownLogLevel), "GetLevel(%q) err = %v", tt.in, err)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestGetFormat(t *testing.T) {
	f, err := GetFormat("JSON")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	f, err = GetFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)

	_, err = GetFormat("xml")
	assert.ErrorIs(t, err, ErrUnknownLogFormat)
}

func TestNew_JSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "warn", "json")
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", slog.String("task", "build-module"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, "build-module", rec["task"])
}

func TestNew_TextHandler(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "info", "text")
	require.NoError(t, err)

	logger.Info("compiled", slog.Int("bytes", 42))
	assert.Contains(t, buf.String(), "compiled")
	assert.Contains(t, buf.String(), "42")
}

func TestNew_InvalidArguments(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "loud", "text")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = New(&bytes.Buffer{}, "info", "yaml")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestContextRoundTrip(t *testing.T) {
	logger := Discard()
	ctx := NewContext(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}
