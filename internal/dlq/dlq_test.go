package dlq

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windlass-io/windlass/internal/testutil"
)

func newTestQueue(t *testing.T, opts ...Option) *Queue {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "dlq.log"), opts...)
}

func TestSendList(t *testing.T) {
	at := time.Date(2025, 8, 28, 12, 0, 0, 0, time.UTC)
	q := newTestQueue(t, WithClock(testutil.NewClock(at).Now))

	require.NoError(t, q.Send("evt-1", "handler exited with status 1", 0))
	require.NoError(t, q.Send("evt-2", "timeout", 0))

	entries, err := q.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "evt-1", entries[0].EventID)
	assert.Equal(t, "handler exited with status 1", entries[0].Reason)
	assert.Equal(t, 0, entries[0].RetryCount)
	assert.Equal(t, at, entries[0].SentToDLQAt)
	assert.Equal(t, "evt-2", entries[1].EventID)
}

func TestList_EmptyQueue(t *testing.T) {
	q := newTestQueue(t)
	entries, err := q.List()
	require.NoError(t, err)
	assert.Empty(t, entries)

	n, err := q.Len()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestList_SkipsCorruptLines(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Send("evt-1", "boom", 0))

	f, err := os.OpenFile(q.path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("{half a record\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, q.Send("evt-2", "boom again", 1))

	entries, err := q.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "evt-1", entries[0].EventID)
	assert.Equal(t, "evt-2", entries[1].EventID)
}

func TestInspect(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Send("evt-1", "first failure", 0))
	require.NoError(t, q.Send("evt-2", "other event", 0))
	require.NoError(t, q.Send("evt-1", "second failure", 1))

	entries, err := q.Inspect("evt-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "first failure", entries[0].Reason)
	assert.Equal(t, "second failure", entries[1].Reason)
	assert.Equal(t, 1, entries[1].RetryCount)
}

func TestInspect_NotFound(t *testing.T) {
	q := newTestQueue(t)
	require.NoError(t, q.Send("evt-1", "boom", 0))

	_, err := q.Inspect("evt-ghost")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "evt-ghost", nf.EventID)
}

func TestAttempts(t *testing.T) {
	q := newTestQueue(t)

	n, err := q.Attempts("evt-1")
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, q.Send("evt-1", "a", 0))
	require.NoError(t, q.Send("evt-1", "b", 1))

	n, err = q.Attempts("evt-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSend_EmptyEventIDRejected(t *testing.T) {
	q := newTestQueue(t)
	assert.Error(t, q.Send("", "boom", 0))
}
