// Package idempotency records proof that an operation ran to completion.
//
// The presence of a record for an operation id means the side effect must
// not be re-executed; its stored result is returned instead. Records are
// created once and never updated in place; retries use a new operation id.
// This cache is what turns the log's at-least-once delivery into
// exactly-once effect for any operation gated by it.
package idempotency

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/windlass-io/windlass/internal/fsutil"
)

// Record is the proof of one completed operation.
type Record struct {
	OperationID string         `json:"operation_id"`
	Result      map[string]any `json:"result"`
	CompletedAt time.Time      `json:"completed_at"`
}

// NotFoundError reports that no completion record exists for an operation.
type NotFoundError struct {
	OperationID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no completion record for operation %q", e.OperationID)
}

// IsNotFound reports whether err means the operation has not completed.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Cache stores one completion record per operation id.
type Cache struct {
	dir string
	now func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the wall clock (tests).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// NewCache creates an idempotency cache rooted at dir.
func NewCache(dir string, opts ...Option) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure idempotency dir: %w", err)
	}
	c := &Cache{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Completed reports whether the operation already ran to completion.
// Callers must check this before performing a side-effecting operation.
func (c *Cache) Completed(operationID string) (bool, error) {
	if err := fsutil.CheckName("operation id", operationID); err != nil {
		return false, err
	}
	_, err := os.Stat(c.path(operationID))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("check operation %q: %w", operationID, err)
}

// MarkCompleted records the operation's result. Call only after the side
// effect has durably succeeded. Marking an already-completed operation is a
// no-op: the first record wins.
func (c *Cache) MarkCompleted(operationID string, result map[string]any) error {
	if err := fsutil.CheckName("operation id", operationID); err != nil {
		return err
	}
	done, err := c.Completed(operationID)
	if err != nil {
		return err
	}
	if done {
		return nil
	}
	if result == nil {
		result = map[string]any{}
	}
	rec := Record{
		OperationID: operationID,
		Result:      result,
		CompletedAt: c.now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal completion record: %w", err)
	}
	if err := fsutil.WriteAtomic(c.path(operationID), data, 0o644); err != nil {
		return fmt.Errorf("mark operation %q completed: %w", operationID, err)
	}
	return nil
}

// Result returns the stored result for a completed operation, or
// *NotFoundError if it has not completed.
func (c *Cache) Result(operationID string) (map[string]any, error) {
	if err := fsutil.CheckName("operation id", operationID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(c.path(operationID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &NotFoundError{OperationID: operationID}
		}
		return nil, fmt.Errorf("read completion record %q: %w", operationID, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse completion record %q: %w", operationID, err)
	}
	return rec.Result, nil
}

func (c *Cache) path(operationID string) string {
	return filepath.Join(c.dir, operationID+".json")
}
