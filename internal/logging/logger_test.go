package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestNew_Backends(t *testing.T) {
	for _, backend := range []string{"", BackendSlog, BackendLogrus} {
		t.Run("backend="+backend, func(t *testing.T) {
			var buf bytes.Buffer
			l, err := New(backend, "debug", &buf)
			require.NoError(t, err)

			l.With("module", "test").Warn(context.Background(), "reuse", "family_id", "f1", "err", errors.New("boom"))

			lines := decodeLines(t, &buf)
			require.Len(t, lines, 1)
			assert.Equal(t, "reuse", lines[0]["msg"])
			assert.Equal(t, "test", lines[0]["module"])
			assert.Equal(t, "f1", lines[0]["family_id"])
		})
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(BackendLogrus, "warn", &buf)
	require.NoError(t, err)

	l.Info(context.Background(), "hidden")
	l.Error(context.Background(), "shown")

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "shown", lines[0]["msg"])
}

func TestNew_Errors(t *testing.T) {
	_, err := New("zap", "info", &bytes.Buffer{})
	require.Error(t, err)

	_, err = New(BackendSlog, "loud", &bytes.Buffer{})
	require.Error(t, err)

	_, err = New(BackendLogrus, "loud", &bytes.Buffer{})
	require.Error(t, err)
}

func TestToFields_DanglingKey(t *testing.T) {
	f := toFields([]any{"a", 1, 7, "x", "tail"})
	assert.Equal(t, 1, f["a"])
	assert.Equal(t, "x", f["7"])
	assert.Equal(t, "tail", f["!BADKEY"])
}

func TestNop(t *testing.T) {
	var l Logger = Nop{}
	l.With("k", "v").Info(context.TODO(), "nothing")
}
