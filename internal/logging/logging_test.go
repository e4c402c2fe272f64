package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedFile_TruncatesWhenFull(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "ctl.log")
	f, err := OpenFile(path, 32)
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Write([]byte("0123456789012345678901234\n")) // 26 bytes
	require.NoError(t, err)
	_, err = f.Write([]byte("second line\n")) // would reach 38
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second line\n", string(data))
	assert.EqualValues(t, 12, f.Size())
}

func TestBoundedFile_AppendsToExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctl.log")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	f, err := OpenFile(path, 0)
	require.NoError(t, err)
	_, err = f.Write([]byte("new\n"))
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old\nnew\n", string(data))

	_, err = f.Write([]byte("late\n"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestNew_MirrorsToFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "ctl.log")

	logger, closer, err := New(Config{Level: "warn", File: path}, &console)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("modem silent", "component", "modem")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, console.String(), string(data))
	assert.Contains(t, console.String(), "modem silent")
	assert.NotContains(t, console.String(), "hidden")
}

func TestNew_JSONAndErrors(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(Config{Format: "json", Level: "debug"}, &buf)
	require.NoError(t, err)
	logger.Debug("hello")
	assert.True(t, strings.HasPrefix(buf.String(), "{"))

	_, _, err = New(Config{Format: "xml"}, &buf)
	assert.Error(t, err)
	_, _, err = New(Config{Level: "loud"}, &buf)
	assert.Error(t, err)

	l, err := ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, l)
}
