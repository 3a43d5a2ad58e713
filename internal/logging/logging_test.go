// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewFromOptions_JSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewFromOptions(Options{Format: "json", Out: &buf, Verbose: true})
	l.Debug().Str("grant", "pose").Msg("processing")

	assert.Contains(t, buf.String(), `"level":"debug"`)
	assert.Contains(t, buf.String(), `"grant":"pose"`)
	assert.Contains(t, buf.String(), `"message":"processing"`)
}

func TestNewFromOptions_LevelFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("DEBUG", "")

	var buf bytes.Buffer
	l := NewFromOptions(Options{Format: "json", Out: &buf})
	l.Info().Msg("hidden")
	l.Error().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestUseConsole(t *testing.T) {
	var buf bytes.Buffer
	assert.False(t, useConsole("", &buf), "non-file writers are never terminals")
	assert.False(t, useConsole("json", &buf))
	assert.True(t, useConsole("console", &buf))
}

func TestLevelFromEnv(t *testing.T) {
	tests := []struct {
		level, debug string
		want         zerolog.Level
	}{
		{"", "", zerolog.InfoLevel},
		{"", "1", zerolog.DebugLevel},
		{"WARN", "", zerolog.WarnLevel},
		{"bogus", "", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Setenv("LOG_LEVEL", tt.level)
		t.Setenv("DEBUG", tt.debug)
		assert.Equal(t, tt.want, levelFromEnv(), "LOG_LEVEL=%q DEBUG=%q", tt.level, tt.debug)
	}
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	l := zerolog.New(&buf)

	ctx := WithLogger(context.Background(), &l)
	ctx = WithField(ctx, "section", "broader_impacts")
	FromContext(ctx).Info().Msg("checked")

	assert.Contains(t, buf.String(), `"section":"broader_impacts"`)
	assert.Same(t, Default(), FromContext(context.Background()))
}
