// Package checkpoint persists the latest durable snapshot of each
// workflow's progress.
//
// One document exists per workflow id; every save atomically replaces the
// previous one, so a reader never observes a partially written checkpoint.
// Restore after a crash returns exactly what the last save recorded.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/windlass-io/windlass/internal/fsutil"
	"github.com/windlass-io/windlass/internal/id"
)

// Checkpoint is the durable snapshot of one workflow's progress.
type Checkpoint struct {
	WorkflowID   string         `json:"workflow_id"`
	Stage        string         `json:"stage"`
	Sequence     int64          `json:"sequence"`
	State        map[string]any `json:"state"`
	CheckpointID string         `json:"checkpoint_id"`
	CreatedAt    time.Time      `json:"created_at"`
}

// NotFoundError reports that no checkpoint exists for a workflow. The
// caller recovers by starting the workflow fresh.
type NotFoundError struct {
	WorkflowID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no checkpoint for workflow %q", e.WorkflowID)
}

// IsNotFound reports whether err means the checkpoint does not exist.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Store keeps one checkpoint file per workflow id.
type Store struct {
	dir   string
	now   func() time.Time
	newID func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDFunc overrides checkpoint id generation (tests).
func WithIDFunc(f func() string) Option {
	return func(s *Store) { s.newID = f }
}

// NewStore creates a checkpoint store rooted at dir.
func NewStore(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure checkpoint dir: %w", err)
	}
	s := &Store{dir: dir, now: time.Now, newID: id.UUIDv7}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Save persists a checkpoint, overwriting any previous one for the same
// workflow. Concurrent saves for one workflow id are the caller's problem
// to serialize (typically via the lock manager).
func (s *Store) Save(workflowID, stage string, sequence int64, state map[string]any) (Checkpoint, error) {
	if err := fsutil.CheckName("workflow id", workflowID); err != nil {
		return Checkpoint{}, err
	}
	if stage == "" {
		return Checkpoint{}, fmt.Errorf("stage must not be empty")
	}
	if state == nil {
		state = map[string]any{}
	}
	cp := Checkpoint{
		WorkflowID:   workflowID,
		Stage:        stage,
		Sequence:     sequence,
		State:        state,
		CheckpointID: s.newID(),
		CreatedAt:    s.now().UTC(),
	}
	data, err := json.Marshal(cp)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := fsutil.WriteAtomic(s.path(workflowID), data, 0o644); err != nil {
		return Checkpoint{}, fmt.Errorf("save checkpoint %q: %w", workflowID, err)
	}
	return cp, nil
}

// Restore returns the most recent checkpoint for the workflow, or
// *NotFoundError if none exists.
func (s *Store) Restore(workflowID string) (Checkpoint, error) {
	if err := fsutil.CheckName("workflow id", workflowID); err != nil {
		return Checkpoint{}, err
	}
	data, err := os.ReadFile(s.path(workflowID))
	if err != nil {
		if os.IsNotExist(err) {
			return Checkpoint{}, &NotFoundError{WorkflowID: workflowID}
		}
		return Checkpoint{}, fmt.Errorf("read checkpoint %q: %w", workflowID, err)
	}
	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, fmt.Errorf("parse checkpoint %q: %w", workflowID, err)
	}
	return cp, nil
}

// All returns every stored checkpoint. Used by compaction to find the
// oldest sequence still needed.
func (s *Store) All() ([]Checkpoint, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	var cps []Checkpoint
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		cp, err := s.Restore(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			return nil, err
		}
		cps = append(cps, cp)
	}
	return cps, nil
}

func (s *Store) path(workflowID string) string {
	return filepath.Join(s.dir, workflowID+".json")
}
