// Package dlq implements the dead letter queue: an append-only record of
// events whose handler failed.
//
// Setting failed events aside here is what keeps a single poison-pill
// record from blocking a consumer loop. Entries are never removed; retry is
// an explicit operator action handled at the engine level.
package dlq

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// Entry records one failed handling attempt.
type Entry struct {
	EventID     string    `json:"event_id"`
	Reason      string    `json:"reason"`
	RetryCount  int       `json:"retry_count"`
	SentToDLQAt time.Time `json:"sent_to_dlq_at"`
}

// NotFoundError reports that no dead-letter entry exists for an event id.
type NotFoundError struct {
	EventID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no dead-letter entries for event %q", e.EventID)
}

// IsNotFound reports whether err means the event was never dead-lettered.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// Queue is a JSONL dead-letter log.
type Queue struct {
	path string
	now  func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock overrides the wall clock (tests).
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New creates a dead letter queue stored at path.
func New(path string, opts ...Option) *Queue {
	q := &Queue{path: path, now: time.Now}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Send appends one entry. Multiple entries may exist for the same event id
// across retries.
func (q *Queue) Send(eventID, reason string, retryCount int) error {
	if eventID == "" {
		return fmt.Errorf("event id must not be empty")
	}
	entry := Entry{
		EventID:     eventID,
		Reason:      reason,
		RetryCount:  retryCount,
		SentToDLQAt: q.now().UTC(),
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dead-letter entry: %w", err)
	}

	f, err := os.OpenFile(q.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open dead letter queue: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("append dead-letter entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync dead letter queue: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close dead letter queue: %w", err)
	}
	return nil
}

// List returns all entries in append order. Corrupt lines are skipped.
func (q *Queue) List() ([]Entry, error) {
	f, err := os.Open(q.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open dead letter queue: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil || e.EventID == "" {
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan dead letter queue: %w", err)
	}
	return entries, nil
}

// Inspect returns all entries for one event id, or *NotFoundError if the
// event was never dead-lettered.
func (q *Queue) Inspect(eventID string) ([]Entry, error) {
	entries, err := q.List()
	if err != nil {
		return nil, err
	}
	var matched []Entry
	for _, e := range entries {
		if e.EventID == eventID {
			matched = append(matched, e)
		}
	}
	if len(matched) == 0 {
		return nil, &NotFoundError{EventID: eventID}
	}
	return matched, nil
}

// Attempts returns how many entries exist for the event id.
func (q *Queue) Attempts(eventID string) (int, error) {
	entries, err := q.List()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if e.EventID == eventID {
			n++
		}
	}
	return n, nil
}

// Len returns the total number of entries.
func (q *Queue) Len() (int, error) {
	entries, err := q.List()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}
