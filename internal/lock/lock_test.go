package lock

import (
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	m, err := NewManager(filepath.Join(t.TempDir(), "locks"), opts...)
	require.NoError(t, err)
	return m
}

func TestAcquireRelease(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Acquire("orders", time.Second))

	owner, err := m.Holder("orders")
	require.NoError(t, err)
	assert.Equal(t, "orders", owner.Resource)
	assert.Equal(t, os.Getpid(), owner.PID)

	require.NoError(t, m.Release("orders"))
	_, err = m.Holder("orders")
	assert.True(t, os.IsNotExist(err))
}

func TestAcquire_HeldLockTimesOut(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "locks")
	holder, err := NewManager(dir, WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, holder.Acquire("orders", time.Second))

	// Second manager with a different owner pid (same live process, so the
	// lock is not stale).
	contender, err := NewManager(dir,
		WithPollInterval(10*time.Millisecond),
		WithOwnerPID(os.Getppid()),
	)
	require.NoError(t, err)

	err = contender.Acquire("orders", 50*time.Millisecond)
	require.Error(t, err)
	assert.True(t, IsTimeout(err))

	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "orders", te.Resource)

	// The original holder is untouched.
	owner, err := holder.Holder("orders")
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), owner.PID)
}

func TestAcquire_BreaksStaleLock(t *testing.T) {
	m := newTestManager(t, WithPollInterval(10*time.Millisecond))

	// A reaped child pid is guaranteed dead.
	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	deadPID := cmd.Process.Pid
	require.NoError(t, cmd.Wait())

	stale, err := NewManager(m.dir, WithOwnerPID(deadPID))
	require.NoError(t, err)
	require.NoError(t, stale.Acquire("orders", time.Second))

	// Breaking happens immediately, not after waiting out the timeout.
	start := time.Now()
	require.NoError(t, m.Acquire("orders", time.Second))
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	owner, err := m.Holder("orders")
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), owner.PID)
}

func TestAcquire_ContentionSerializes(t *testing.T) {
	m := newTestManager(t, WithPollInterval(time.Millisecond))

	var inside atomic.Int32
	var violations atomic.Int32
	done := make(chan error, 4)

	for i := 0; i < 4; i++ {
		go func() {
			for j := 0; j < 5; j++ {
				if err := m.Acquire("shared", 5*time.Second); err != nil {
					done <- err
					return
				}
				if inside.Add(1) != 1 {
					violations.Add(1)
				}
				time.Sleep(time.Millisecond)
				inside.Add(-1)
				if err := m.Release("shared"); err != nil {
					done <- err
					return
				}
			}
			done <- nil
		}()
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, <-done)
	}
	assert.Zero(t, violations.Load(), "critical section entered concurrently")
}

func TestRelease_NotHeld(t *testing.T) {
	m := newTestManager(t)

	err := m.Release("orders")
	require.Error(t, err)
	var nh *NotHeldError
	assert.ErrorAs(t, err, &nh)
}

func TestRelease_WrongOwner(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "locks")
	holder, err := NewManager(dir, WithOwnerPID(os.Getppid()))
	require.NoError(t, err)
	require.NoError(t, holder.Acquire("orders", time.Second))

	other, err := NewManager(dir)
	require.NoError(t, err)

	err = other.Release("orders")
	require.Error(t, err)
	var nh *NotHeldError
	assert.ErrorAs(t, err, &nh)

	// Still held by the rightful owner.
	owner, err := holder.Holder("orders")
	require.NoError(t, err)
	assert.Equal(t, os.Getppid(), owner.PID)
}

func TestActive(t *testing.T) {
	m := newTestManager(t)

	active, err := m.Active()
	require.NoError(t, err)
	assert.Empty(t, active)

	require.NoError(t, m.Acquire("a", time.Second))
	require.NoError(t, m.Acquire("b", time.Second))

	active, err = m.Active()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, active)
}

func TestAcquire_RejectsUnsafeNames(t *testing.T) {
	m := newTestManager(t)
	assert.Error(t, m.Acquire("", time.Second))
	assert.Error(t, m.Acquire("../escape", time.Second))
	assert.Error(t, m.Release(".."))
}

func TestPidAlive(t *testing.T) {
	assert.True(t, pidAlive(os.Getpid()))
	assert.False(t, pidAlive(0))
	assert.False(t, pidAlive(-1))

	cmd := exec.Command("true")
	require.NoError(t, cmd.Start())
	pid := cmd.Process.Pid
	require.NoError(t, cmd.Wait())
	assert.False(t, pidAlive(pid))
}
