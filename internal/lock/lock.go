// Package lock implements advisory, single-host mutual exclusion on a
// shared filesystem.
//
// A lock is a directory under <root>/locks named after the resource.
// Directory creation is atomic on POSIX filesystems, so mkdir doubles as
// test-and-set. Owner metadata (pid, acquire time) lives in a file inside
// the directory; a lock whose owning process no longer exists is stale and
// may be force-broken by any acquirer.
//
// This does not provide correctness across machines with separate
// filesystems.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/windlass-io/windlass/internal/fsutil"
)

// DefaultPollInterval is how often a blocked Acquire re-checks the lock.
const DefaultPollInterval = 100 * time.Millisecond

const ownerFile = "owner.json"

// Owner is the metadata stored inside a held lock directory.
type Owner struct {
	Resource   string    `json:"resource"`
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// TimeoutError reports that a lock could not be acquired within the
// deadline. Callers should back off and retry at a higher level.
type TimeoutError struct {
	Resource string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("lock %q not acquired within %s", e.Resource, e.Timeout)
}

// IsTimeout reports whether err is a lock acquisition timeout.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// NotHeldError reports a release of a lock the caller does not hold.
type NotHeldError struct {
	Resource string
}

func (e *NotHeldError) Error() string {
	return fmt.Sprintf("lock %q not held by this owner", e.Resource)
}

// Manager acquires and releases named locks under a single directory.
type Manager struct {
	dir          string
	pollInterval time.Duration
	ownerPID     int
	now          func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithPollInterval overrides the acquire polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

// WithOwnerPID records locks as held by pid instead of the current process.
// Short-lived CLI invocations use this to register their parent worker
// process as the owner, so the lock survives the CLI process exiting.
func WithOwnerPID(pid int) Option {
	return func(m *Manager) {
		if pid > 0 {
			m.ownerPID = pid
		}
	}
}

// WithClock overrides the wall clock (tests).
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a lock manager rooted at dir, creating dir if needed.
func NewManager(dir string, opts ...Option) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure lock dir: %w", err)
	}
	m := &Manager{
		dir:          dir,
		pollInterval: DefaultPollInterval,
		ownerPID:     os.Getpid(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Acquire blocks until the named lock is held or timeout elapses.
//
// If the current holder's process is dead the lock is broken and
// re-acquired immediately, without waiting out the timeout.
func (m *Manager) Acquire(resource string, timeout time.Duration) error {
	if err := fsutil.CheckName("resource", resource); err != nil {
		return err
	}
	deadline := m.now().Add(timeout)

	for {
		err := os.Mkdir(m.lockPath(resource), 0o755)
		if err == nil {
			return m.writeOwner(resource)
		}
		if !os.IsExist(err) {
			return fmt.Errorf("acquire %q: %w", resource, err)
		}

		broke, berr := m.breakIfStale(resource)
		if berr != nil {
			return berr
		}
		if broke {
			// Removal was just performed by this caller, retry immediately.
			continue
		}

		if !m.now().Add(m.pollInterval).Before(deadline) {
			return &TimeoutError{Resource: resource, Timeout: timeout}
		}
		time.Sleep(m.pollInterval)
	}
}

// Release removes the named lock if held by this manager's owner pid.
// Returns *NotHeldError if the lock is absent or owned by someone else.
func (m *Manager) Release(resource string) error {
	if err := fsutil.CheckName("resource", resource); err != nil {
		return err
	}
	owner, err := m.readOwner(resource)
	if err != nil {
		if os.IsNotExist(err) {
			return &NotHeldError{Resource: resource}
		}
		return fmt.Errorf("release %q: %w", resource, err)
	}
	if owner.PID != m.ownerPID {
		return &NotHeldError{Resource: resource}
	}
	if err := os.RemoveAll(m.lockPath(resource)); err != nil {
		return fmt.Errorf("release %q: %w", resource, err)
	}
	return nil
}

// Holder returns the current owner of the named lock, or os.ErrNotExist
// if it is not held.
func (m *Manager) Holder(resource string) (Owner, error) {
	if err := fsutil.CheckName("resource", resource); err != nil {
		return Owner{}, err
	}
	return m.readOwner(resource)
}

// Active returns the resource names of all currently held locks.
func (m *Manager) Active() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("list locks: %w", err)
	}
	var resources []string
	for _, e := range entries {
		if e.IsDir() {
			resources = append(resources, e.Name())
		}
	}
	return resources, nil
}

// breakIfStale removes the lock if its owner process is dead. Returns true
// if the lock was broken.
func (m *Manager) breakIfStale(resource string) (bool, error) {
	owner, err := m.readOwner(resource)
	if err != nil {
		// Missing or unreadable metadata: the holder may be between mkdir
		// and its owner write. Treat as live and keep polling.
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("inspect %q: %w", resource, err)
	}
	if pidAlive(owner.PID) {
		return false, nil
	}
	if err := os.RemoveAll(m.lockPath(resource)); err != nil {
		return false, fmt.Errorf("break stale lock %q: %w", resource, err)
	}
	return true, nil
}

func (m *Manager) writeOwner(resource string) error {
	owner := Owner{
		Resource:   resource,
		PID:        m.ownerPID,
		AcquiredAt: m.now().UTC(),
	}
	data, err := json.Marshal(owner)
	if err != nil {
		return fmt.Errorf("marshal owner for %q: %w", resource, err)
	}
	path := filepath.Join(m.lockPath(resource), ownerFile)
	if err := fsutil.WriteAtomic(path, data, 0o644); err != nil {
		// Leave no half-acquired lock behind.
		os.RemoveAll(m.lockPath(resource))
		return fmt.Errorf("record owner for %q: %w", resource, err)
	}
	return nil
}

func (m *Manager) readOwner(resource string) (Owner, error) {
	data, err := os.ReadFile(filepath.Join(m.lockPath(resource), ownerFile))
	if err != nil {
		return Owner{}, err
	}
	var owner Owner
	if err := json.Unmarshal(data, &owner); err != nil {
		return Owner{}, fmt.Errorf("parse owner metadata: %w", err)
	}
	return owner, nil
}

func (m *Manager) lockPath(resource string) string {
	return filepath.Join(m.dir, resource)
}

// pidAlive probes process existence with signal 0.
//
// EPERM means the process exists but belongs to another user: alive, do
// not break. Only ESRCH (no such process) marks the owner definitively
// dead.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
