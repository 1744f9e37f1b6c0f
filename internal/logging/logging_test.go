package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		lines = append(lines, m)
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestLogger_WritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	require.NoError(t, err)

	l.Info("publish accepted", map[string]any{"event_id": "evt-1", "sequence": float64(1)})
	l.Error("event dead-lettered", map[string]any{"event_id": "evt-2"})
	require.NoError(t, l.Close())

	lines := readLines(t, filepath.Join(dir, "windlass.log"))
	require.Len(t, lines, 2)

	assert.Equal(t, "INFO", lines[0]["level"])
	assert.Equal(t, "publish accepted", lines[0]["msg"])
	assert.Equal(t, "evt-1", lines[0]["event_id"])
	assert.Equal(t, float64(1), lines[0]["sequence"])
	assert.NotEmpty(t, lines[0]["ts"])

	assert.Equal(t, "ERROR", lines[1]["level"])
	assert.Equal(t, "evt-2", lines[1]["event_id"])
}

func TestLogger_AppendsAcrossInstances(t *testing.T) {
	dir := t.TempDir()

	l1, err := New(dir)
	require.NoError(t, err)
	l1.Info("first", nil)
	require.NoError(t, l1.Close())

	l2, err := New(dir)
	require.NoError(t, err)
	l2.Info("second", nil)
	require.NoError(t, l2.Close())

	lines := readLines(t, filepath.Join(dir, "windlass.log"))
	require.Len(t, lines, 2)
	assert.Equal(t, "first", lines[0]["msg"])
	assert.Equal(t, "second", lines[1]["msg"])
}

func TestLogger_NilIsNoOp(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() {
		l.Info("ignored", nil)
		l.Error("ignored", map[string]any{"k": "v"})
	})
	assert.NoError(t, l.Close())
}
