package admin

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPassword_Terminal(t *testing.T) {
	origRead, origTerm := readPassword, isTerminal
	t.Cleanup(func() { readPassword, isTerminal = origRead, origTerm })
	isTerminal = func(int) bool { return true }
	readPassword = func(int) ([]byte, error) { return []byte("s3cret pass"), nil }

	var out bytes.Buffer
	pw, err := GetPassword(bufio.NewReader(strings.NewReader("")), "Enter password: ", &out)
	require.NoError(t, err)
	assert.Equal(t, "s3cret pass", pw)
	assert.Equal(t, "Enter password: \n", out.String())

	readPassword = func(int) ([]byte, error) { return nil, errors.New("boom") }
	_, err = GetPassword(bufio.NewReader(strings.NewReader("")), "Enter password: ", &out)
	require.EqualError(t, err, "boom")
}

func TestGetPassword_Piped(t *testing.T) {
	orig := isTerminal
	t.Cleanup(func() { isTerminal = orig })
	isTerminal = func(int) bool { return false }

	in := bufio.NewReader(strings.NewReader("first\r\nlast"))
	var out bytes.Buffer

	pw, err := GetPassword(in, "> ", &out)
	require.NoError(t, err)
	assert.Equal(t, "first", pw)

	pw, err = GetPassword(in, "> ", &out)
	require.NoError(t, err)
	assert.Equal(t, "last", pw)

	_, err = GetPassword(in, "> ", &out)
	require.Error(t, err)
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCmd  string
		wantRest []string
	}{
		{"bare command", []string{"sweep"}, "sweep", []string{}},
		{"global flag with value", []string{"-d", "postgres://x", "sessions", "-user", "a@b.c"}, "sessions", []string{"-user", "a@b.c"}},
		{"global flag with equals", []string{"-env=.env", "revoke-all", "-user", "u1"}, "revoke-all", []string{"-user", "u1"}},
		{"no command", []string{"-d", "x"}, "", nil},
		{"empty", nil, "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, rest := SplitCommand(tt.args)
			assert.Equal(t, tt.wantCmd, cmd)
			assert.Equal(t, tt.wantRest, rest)
		})
	}
}
