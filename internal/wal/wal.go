// Package wal implements the append-only event log that is the source of
// truth for everything downstream.
//
// The log is a single JSONL file: one canonical-JSON event per line.
// Appends never rewrite existing bytes, so readers may scan concurrently
// with a writer. Sequence assignment happens under a reserved engine lock,
// so concurrent publishers cannot race on the next ordinal.
package wal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/windlass-io/windlass/internal/id"
	"github.com/windlass-io/windlass/internal/lock"
	"github.com/windlass-io/windlass/internal/record"
)

// AppendLockResource is the reserved lock name guarding sequence
// assignment. User resources may not collide with it because it is not a
// name external collaborators would choose, and collisions are harmless:
// they only serialize against publishes.
const AppendLockResource = "__wal__"

// DefaultAppendLockTimeout bounds how long a publish waits for the log.
const DefaultAppendLockTimeout = 10 * time.Second

const (
	logFile      = "events.log"
	snapshotsDir = "snapshots"
)

// maxLineBytes bounds a single log record (1 MiB).
const maxLineBytes = 1 << 20

// Log is an append-only event log stored under a root directory.
type Log struct {
	path         string
	snapshots    string
	locks        *lock.Manager
	ids          id.Generator
	now          func() time.Time
	appendWithin time.Duration
}

// Option configures a Log.
type Option func(*Log)

// WithClock overrides the wall clock (tests).
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// WithAppendLockTimeout overrides how long Append waits for the log lock.
func WithAppendLockTimeout(d time.Duration) Option {
	return func(l *Log) {
		if d > 0 {
			l.appendWithin = d
		}
	}
}

// Open prepares the log under root. The log file itself is created lazily
// on first append.
func Open(root string, locks *lock.Manager, ids id.Generator, opts ...Option) (*Log, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("ensure log root: %w", err)
	}
	l := &Log{
		path:         filepath.Join(root, logFile),
		snapshots:    filepath.Join(root, snapshotsDir),
		locks:        locks,
		ids:          ids,
		now:          time.Now,
		appendWithin: DefaultAppendLockTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Append publishes one event: it assigns the next sequence number, stamps a
// fresh event id and timestamp, and durably appends one record.
//
// On any error the caller must not assume the event was persisted.
func (l *Log) Append(eventType string, payload map[string]any) (record.Event, error) {
	if eventType == "" {
		return record.Event{}, fmt.Errorf("event type must not be empty")
	}
	return l.appendLocked(func(seq int64) record.Event {
		return record.Event{
			Sequence:  seq,
			EventID:   l.ids.New("evt"),
			EventType: eventType,
			Payload:   payload,
			Timestamp: l.now().UTC(),
			Status:    record.StatusPublished,
		}
	})
}

// Reappend appends the given event again at a new sequence and timestamp,
// preserving its event id, type and payload. Used by dead-letter retry: the
// event is the same fact, replayed as a new log record.
func (l *Log) Reappend(orig record.Event) (record.Event, error) {
	return l.appendLocked(func(seq int64) record.Event {
		return record.Event{
			Sequence:  seq,
			EventID:   orig.EventID,
			EventType: orig.EventType,
			Payload:   orig.Payload,
			Timestamp: l.now().UTC(),
			Status:    record.StatusPublished,
		}
	})
}

func (l *Log) appendLocked(build func(seq int64) record.Event) (record.Event, error) {
	if err := l.locks.Acquire(AppendLockResource, l.appendWithin); err != nil {
		return record.Event{}, fmt.Errorf("lock log for append: %w", err)
	}
	defer l.locks.Release(AppendLockResource)

	last, _, err := l.tail()
	if err != nil {
		return record.Event{}, err
	}
	ev := build(last + 1)

	line, err := ev.CanonicalJSON()
	if err != nil {
		return record.Event{}, err
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return record.Event{}, fmt.Errorf("open log for append: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return record.Event{}, fmt.Errorf("append event: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return record.Event{}, fmt.Errorf("sync log: %w", err)
	}
	if err := f.Close(); err != nil {
		return record.Event{}, fmt.Errorf("close log: %w", err)
	}
	return ev, nil
}

// ReadFrom returns all events with sequence >= from, in log order, plus the
// number of corrupt lines encountered inside the read window. A corrupt
// line never aborts the scan.
func (l *Log) ReadFrom(from int64) ([]record.Event, int, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	var (
		events  []record.Event
		corrupt int
		lastSeq int64
	)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		ev, perr := record.ParseEvent(line)
		if perr != nil {
			// A corrupt line has no sequence of its own; it falls inside
			// the window when the surrounding records do.
			if lastSeq+1 >= from {
				corrupt++
			}
			continue
		}
		lastSeq = ev.Sequence
		if ev.Sequence >= from {
			events = append(events, ev)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan log: %w", err)
	}
	return events, corrupt, nil
}

// Lookup returns the most recent record carrying the given event id.
func (l *Log) Lookup(eventID string) (record.Event, bool, error) {
	events, _, err := l.ReadFrom(1)
	if err != nil {
		return record.Event{}, false, err
	}
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].EventID == eventID {
			return events[i], true, nil
		}
	}
	return record.Event{}, false, nil
}

// Len returns the number of valid records in the log.
func (l *Log) Len() (int, error) {
	events, _, err := l.ReadFrom(1)
	if err != nil {
		return 0, err
	}
	return len(events), nil
}

// LastSequence returns the sequence of the last valid record, 0 for an
// empty or absent log.
func (l *Log) LastSequence() (int64, error) {
	last, _, err := l.tail()
	return last, err
}

// tail scans for the last valid record's sequence and the total corrupt
// line count. Deriving the next ordinal from the last *valid* record means
// a corrupt trailing line cannot fork the numbering.
func (l *Log) tail() (int64, int, error) {
	events, corrupt, err := l.ReadFrom(1)
	if err != nil {
		return 0, 0, err
	}
	if len(events) == 0 {
		return 0, corrupt, nil
	}
	return events[len(events)-1].Sequence, corrupt, nil
}
