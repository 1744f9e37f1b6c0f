package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windlass-io/windlass/internal/id"
	"github.com/windlass-io/windlass/internal/lock"
)

func newTestLog(t *testing.T, opts ...Option) *Log {
	t.Helper()
	root := t.TempDir()
	locks, err := lock.NewManager(filepath.Join(root, "locks"),
		lock.WithPollInterval(time.Millisecond))
	require.NoError(t, err)

	ids, err := id.NewSnowflake(0)
	require.NoError(t, err)

	l, err := Open(root, locks, ids, opts...)
	require.NoError(t, err)
	return l
}

func TestAppend_AssignsMonotonicSequences(t *testing.T) {
	l := newTestLog(t)

	for i := int64(1); i <= 5; i++ {
		ev, err := l.Append("order.created", map[string]any{"n": i})
		require.NoError(t, err)
		assert.Equal(t, i, ev.Sequence)
		assert.NotEmpty(t, ev.EventID)
		assert.Equal(t, "published", ev.Status)
	}

	last, err := l.LastSequence()
	require.NoError(t, err)
	assert.Equal(t, int64(5), last)
}

func TestAppend_EmptyTypeRejected(t *testing.T) {
	l := newTestLog(t)
	_, err := l.Append("", nil)
	assert.Error(t, err)
}

func TestAppend_SurvivesReopen(t *testing.T) {
	l := newTestLog(t)
	_, err := l.Append("a", nil)
	require.NoError(t, err)
	_, err = l.Append("b", nil)
	require.NoError(t, err)

	// A second Log over the same files continues the numbering.
	reopened, err := Open(filepath.Dir(l.path), l.locks, l.ids)
	require.NoError(t, err)

	ev, err := reopened.Append("c", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), ev.Sequence)
}

func TestAppend_ConcurrentPublishersDoNotCollide(t *testing.T) {
	l := newTestLog(t)

	const n = 20
	done := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			_, err := l.Append("burst", map[string]any{"worker": i})
			done <- err
		}(i)
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-done)
	}

	events, corrupt, err := l.ReadFrom(1)
	require.NoError(t, err)
	assert.Zero(t, corrupt)
	require.Len(t, events, n)

	seen := make(map[int64]bool)
	for i, ev := range events {
		assert.Equal(t, int64(i+1), ev.Sequence, "gap or reorder at index %d", i)
		require.False(t, seen[ev.Sequence], "duplicate sequence %d", ev.Sequence)
		seen[ev.Sequence] = true
	}
}

func TestReadFrom_Window(t *testing.T) {
	l := newTestLog(t)
	for i := 0; i < 5; i++ {
		_, err := l.Append("e", nil)
		require.NoError(t, err)
	}

	events, corrupt, err := l.ReadFrom(3)
	require.NoError(t, err)
	assert.Zero(t, corrupt)
	require.Len(t, events, 3)
	assert.Equal(t, int64(3), events[0].Sequence)
	assert.Equal(t, int64(5), events[2].Sequence)
}

func TestReadFrom_EmptyLog(t *testing.T) {
	l := newTestLog(t)
	events, corrupt, err := l.ReadFrom(1)
	require.NoError(t, err)
	assert.Zero(t, corrupt)
	assert.Empty(t, events)
}

func TestReadFrom_SkipsCorruptLines(t *testing.T) {
	l := newTestLog(t)
	_, err := l.Append("a", nil)
	require.NoError(t, err)
	corruptLine(t, l, "{truncated")
	_, err = l.Append("b", nil)
	require.NoError(t, err)

	events, corrupt, err := l.ReadFrom(1)
	require.NoError(t, err)
	assert.Equal(t, 1, corrupt)
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].Sequence)
	assert.Equal(t, int64(2), events[1].Sequence)
}

func TestReadFrom_CorruptOutsideWindowNotCounted(t *testing.T) {
	l := newTestLog(t)
	_, err := l.Append("a", nil)
	require.NoError(t, err)
	corruptLine(t, l, "junk between 1 and 2")
	_, err = l.Append("b", nil)
	require.NoError(t, err)
	_, err = l.Append("c", nil)
	require.NoError(t, err)

	// Reading from 3 excludes the corrupt line between sequences 1 and 2.
	events, corrupt, err := l.ReadFrom(3)
	require.NoError(t, err)
	assert.Zero(t, corrupt)
	require.Len(t, events, 1)
}

func TestAppend_CorruptTailDoesNotForkNumbering(t *testing.T) {
	l := newTestLog(t)
	_, err := l.Append("a", nil)
	require.NoError(t, err)
	_, err = l.Append("b", nil)
	require.NoError(t, err)
	corruptLine(t, l, `{"sequence":99,"event_id":`)

	ev, err := l.Append("c", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), ev.Sequence)
}

func TestReappend_PreservesIdentity(t *testing.T) {
	l := newTestLog(t)
	orig, err := l.Append("order.created", map[string]any{"order_id": "ord-7"})
	require.NoError(t, err)
	_, err = l.Append("filler", nil)
	require.NoError(t, err)

	re, err := l.Reappend(orig)
	require.NoError(t, err)
	assert.Equal(t, int64(3), re.Sequence)
	assert.Equal(t, orig.EventID, re.EventID)
	assert.Equal(t, orig.EventType, re.EventType)
	assert.Equal(t, orig.Payload, re.Payload)
}

func TestLookup_ReturnsLatestMatch(t *testing.T) {
	l := newTestLog(t)
	orig, err := l.Append("a", nil)
	require.NoError(t, err)
	re, err := l.Reappend(orig)
	require.NoError(t, err)

	found, ok, err := l.Lookup(orig.EventID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, re.Sequence, found.Sequence)

	_, ok, err = l.Lookup("evt-nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAppend_TimesOutWhenLockHeld(t *testing.T) {
	l := newTestLog(t, WithAppendLockTimeout(30*time.Millisecond))

	// Hold the log lock as a different (live) owner.
	holder, err := lock.NewManager(filepath.Join(filepath.Dir(l.path), "locks"),
		lock.WithOwnerPID(os.Getppid()))
	require.NoError(t, err)
	require.NoError(t, holder.Acquire(AppendLockResource, time.Second))
	defer holder.Release(AppendLockResource)

	_, err = l.Append("blocked", nil)
	require.Error(t, err)
	assert.True(t, lock.IsTimeout(err))
}

func corruptLine(t *testing.T, l *Log, line string) {
	t.Helper()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = fmt.Fprintln(f, line)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}
