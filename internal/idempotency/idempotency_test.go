package idempotency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windlass-io/windlass/internal/testutil"
)

func newTestCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	c, err := NewCache(t.TempDir(), opts...)
	require.NoError(t, err)
	return c
}

func TestCompleted_GatesReExecution(t *testing.T) {
	c := newTestCache(t)

	done, err := c.Completed("evt-1")
	require.NoError(t, err)
	assert.False(t, done)

	require.NoError(t, c.MarkCompleted("evt-1", map[string]any{"ok": true}))

	done, err = c.Completed("evt-1")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestMarkCompleted_FirstRecordWins(t *testing.T) {
	c := newTestCache(t)

	require.NoError(t, c.MarkCompleted("evt-1", map[string]any{"winner": "first"}))
	require.NoError(t, c.MarkCompleted("evt-1", map[string]any{"winner": "second"}))

	result, err := c.Result("evt-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"winner": "first"}, result)
}

func TestMarkCompleted_NilResult(t *testing.T) {
	c := newTestCache(t)
	require.NoError(t, c.MarkCompleted("evt-2", nil))

	result, err := c.Result("evt-2")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, result)
}

func TestResult_NotFound(t *testing.T) {
	c := newTestCache(t)

	_, err := c.Result("evt-ghost")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestMarkCompleted_StampsCompletionTime(t *testing.T) {
	at := time.Date(2025, 8, 28, 12, 0, 0, 0, time.UTC)
	c := newTestCache(t, WithClock(testutil.NewClock(at).Now))

	require.NoError(t, c.MarkCompleted("evt-3", nil))

	done, err := c.Completed("evt-3")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestValidation_RejectsUnsafeOperationIDs(t *testing.T) {
	c := newTestCache(t)

	_, err := c.Completed("")
	assert.Error(t, err)
	assert.Error(t, c.MarkCompleted("../escape", nil))
	_, err = c.Result("a/b")
	assert.Error(t, err)
}
