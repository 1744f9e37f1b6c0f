// Package offset tracks each named consumer's cursor into the event log.
//
// An offset is the sequence of the last record the consumer durably
// disposed of (handled, deduplicated, or dead-lettered). Commits are
// monotonic: an offset never moves backwards.
package offset

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/windlass-io/windlass/internal/fsutil"
)

// Tracker stores one offset file per consumer id.
type Tracker struct {
	dir string
}

// NewTracker creates an offset tracker rooted at dir.
func NewTracker(dir string) (*Tracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure offsets dir: %w", err)
	}
	return &Tracker{dir: dir}, nil
}

// Load returns the consumer's saved offset, 0 if it has none yet.
func (t *Tracker) Load(consumerID string) (int64, error) {
	if err := fsutil.CheckName("consumer id", consumerID); err != nil {
		return 0, err
	}
	data, err := os.ReadFile(t.path(consumerID))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read offset for %q: %w", consumerID, err)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse offset for %q: %w", consumerID, err)
	}
	return n, nil
}

// Commit durably advances the consumer's offset. A commit below the current
// offset is ignored.
func (t *Tracker) Commit(consumerID string, sequence int64) error {
	if err := fsutil.CheckName("consumer id", consumerID); err != nil {
		return err
	}
	current, err := t.Load(consumerID)
	if err != nil {
		return err
	}
	if sequence <= current {
		return nil
	}
	data := []byte(strconv.FormatInt(sequence, 10) + "\n")
	if err := fsutil.WriteAtomic(t.path(consumerID), data, 0o644); err != nil {
		return fmt.Errorf("commit offset for %q: %w", consumerID, err)
	}
	return nil
}

// All returns every consumer's committed offset.
func (t *Tracker) All() (map[string]int64, error) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return nil, fmt.Errorf("list offsets: %w", err)
	}
	offsets := make(map[string]int64)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".offset") {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".offset")
		n, err := t.Load(id)
		if err != nil {
			return nil, err
		}
		offsets[id] = n
	}
	return offsets, nil
}

func (t *Tracker) path(consumerID string) string {
	return filepath.Join(t.dir, consumerID+".offset")
}
