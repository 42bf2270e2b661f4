package logging

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSlogForTest(t *testing.T, level string) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := New(BackendSlog, level, &buf)
	require.NoError(t, err)
	return l, &buf
}

func TestSlogLogger_LevelsAsJSON(t *testing.T) {
	log, buf := newSlogForTest(t, "debug")
	ctx := context.Background()

	log.Debug(ctx, "dbg", "a", 1)
	log.Info(ctx, "inf", "b", 2)
	log.Warn(ctx, "wrn", "c", 3)
	log.Error(ctx, "err", "d", 4)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 4)

	tests := []struct {
		level string
		msg   string
		key   string
		val   float64
	}{
		{"DEBUG", "dbg", "a", 1},
		{"INFO", "inf", "b", 2},
		{"WARN", "wrn", "c", 3},
		{"ERROR", "err", "d", 4},
	}
	for i, tc := range tests {
		assert.Equal(t, tc.level, lines[i]["level"])
		assert.Equal(t, tc.msg, lines[i]["msg"])
		assert.Equal(t, tc.val, lines[i][tc.key])
	}
}

func TestSlogLogger_DefaultLevelIsInfo(t *testing.T) {
	log, buf := newSlogForTest(t, "")

	log.Debug(context.Background(), "hidden")
	log.Info(context.Background(), "shown")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["msg"])
}

func TestSlogLogger_ModuleChildLoggers(t *testing.T) {
	root, buf := newSlogForTest(t, "info")
	ctx := context.Background()

	rotation := root.With("module", "rotation")
	rotation.With("family_id", "f1").Warn(ctx, "refresh token reuse", "event", "refresh_reuse_detected")
	root.With("module", "sessions").Info(ctx, "session revoked")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "rotation", lines[0]["module"])
	assert.Equal(t, "f1", lines[0]["family_id"])
	assert.Equal(t, "refresh_reuse_detected", lines[0]["event"])
	assert.Equal(t, "sessions", lines[1]["module"])
	assert.NotContains(t, lines[1], "family_id")
}

func TestSecretsAreRedacted(t *testing.T) {
	for _, backend := range []string{BackendSlog, BackendLogrus} {
		t.Run(backend, func(t *testing.T) {
			var buf bytes.Buffer
			l, err := New(backend, "info", &buf)
			require.NoError(t, err)

			l.With("refresh_token", "rt-secret").Info(context.Background(), "login",
				"user_id", "u1", "password", "hunter2", "Access_Token", "at-secret")

			out := buf.String()
			assert.NotContains(t, out, "rt-secret")
			assert.NotContains(t, out, "hunter2")
			assert.NotContains(t, out, "at-secret")

			lines := decodeLines(t, &buf)
			require.Len(t, lines, 1)
			assert.Equal(t, "u1", lines[0]["user_id"])
			assert.Equal(t, redacted, lines[0]["password"])
		})
	}
}
