package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("hidden")
	assert.Zero(t, buf.Len())

	log.With("component", "hub").Warn("shown", "key", "value")
	out := buf.String()
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"component":"hub"`)
	assert.Contains(t, out, `"level":"WARN"`)
}

func TestSetup(t *testing.T) {
	t.Parallel()

	for _, format := range []string{"", "pretty", "json", "TEXT"} {
		var buf bytes.Buffer
		log, err := Setup(&buf, format, "debug")
		require.NoError(t, err, format)
		log.Debug("visible")
		assert.Contains(t, buf.String(), "visible", format)
	}

	_, err := Setup(&bytes.Buffer{}, "xml", "info")
	require.Error(t, err)
	_, err = Setup(&bytes.Buffer{}, "json", "loud")
	require.Error(t, err)
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := WithContext(context.Background(), JSON(&buf, slog.LevelInfo))
	FromContext(ctx).Info("roundtrip")
	assert.Contains(t, buf.String(), "roundtrip")

	assert.NotNil(t, FromContext(context.Background()))
	Discard().Error("dropped")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("verbose")
	require.Error(t, err)
}

func TestPrettyFormatting(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := slog.New(NewPrettyHandler(&buf, nil))

	log.Debug("hidden")
	assert.Zero(t, buf.Len())

	log.With("service", "ferry").WithGroup("load").Info("done",
		"model", "org/demo",
		"note", "two words",
		"took", 1500*time.Millisecond,
		"error", errors.New("boom"),
		slog.Group("shard", "n", 2, "of", 3),
	)
	out := buf.String()
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "done")
	assert.Contains(t, out, "service=ferry")
	assert.Contains(t, out, "load.model=org/demo")
	assert.Contains(t, out, `load.note="two words"`)
	assert.Contains(t, out, "load.took=1.5s")
	assert.Contains(t, out, colorRed+"load.error=boom")
	assert.Contains(t, out, "load.shard.n=2 load.shard.of=3")
}

func TestPrettyEmptyGroup(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})
	assert.Same(t, h, h.WithGroup(""))
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestNeedsQuoting(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]bool{
		"simple":     false,
		"has space":  true,
		"tab\there":  true,
		`a"quote`:    true,
		"k=v":        true,
		"":           true,
		"no-special": false,
	} {
		assert.Equal(t, want, needsQuoting(in), in)
	}
}
