package wal

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_CopiesLog(t *testing.T) {
	l := newTestLog(t)
	_, err := l.Append("a", nil)
	require.NoError(t, err)
	_, err = l.Append("b", nil)
	require.NoError(t, err)

	path, err := l.Snapshot()
	require.NoError(t, err)

	orig, err := os.ReadFile(l.path)
	require.NoError(t, err)
	snap, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, orig, snap)

	n, err := l.SnapshotCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSnapshot_EmptyLog(t *testing.T) {
	l := newTestLog(t)

	path, err := l.Snapshot()
	require.NoError(t, err)

	snap, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestPrune_DropsBelowHorizon(t *testing.T) {
	l := newTestLog(t)
	for i := 0; i < 5; i++ {
		_, err := l.Append("e", nil)
		require.NoError(t, err)
	}

	kept, dropped, err := l.Prune(4)
	require.NoError(t, err)
	assert.Equal(t, 2, kept)
	assert.Equal(t, 3, dropped)

	events, _, err := l.ReadFrom(1)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(4), events[0].Sequence)
	assert.Equal(t, int64(5), events[1].Sequence)
}

func TestPrune_AlwaysKeepsTailRecord(t *testing.T) {
	l := newTestLog(t)
	for i := 0; i < 3; i++ {
		_, err := l.Append("e", nil)
		require.NoError(t, err)
	}

	// Horizon beyond the tail still keeps the last record: it carries the
	// sequence high-water mark.
	kept, dropped, err := l.Prune(4)
	require.NoError(t, err)
	assert.Equal(t, 1, kept)
	assert.Equal(t, 2, dropped)

	ev, err := l.Append("after", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(4), ev.Sequence)
}

func TestPrune_DropsCorruptLines(t *testing.T) {
	l := newTestLog(t)
	_, err := l.Append("a", nil)
	require.NoError(t, err)
	corruptLine(t, l, "not json")
	_, err = l.Append("b", nil)
	require.NoError(t, err)

	kept, dropped, err := l.Prune(1)
	require.NoError(t, err)
	assert.Equal(t, 2, kept)
	assert.Equal(t, 1, dropped)

	_, corrupt, err := l.ReadFrom(1)
	require.NoError(t, err)
	assert.Zero(t, corrupt)
}

func TestPrune_SequencesSurviveReopen(t *testing.T) {
	l := newTestLog(t)
	for i := 0; i < 3; i++ {
		_, err := l.Append("e", nil)
		require.NoError(t, err)
	}
	_, _, err := l.Prune(3)
	require.NoError(t, err)

	events, _, err := l.ReadFrom(1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(3), events[0].Sequence)
}
