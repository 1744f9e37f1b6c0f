// Package record defines the event record written to the log and its
// canonical serialization.
//
// Payloads are schema-less documents (map[string]any) because producers and
// consumers evolve independently of the engine. Canonical encoding
// guarantees that a given record always serializes to identical bytes, so
// replay comparison and golden tests are stable across runs.
package record

import (
	"encoding/json"
	"fmt"
	"time"
)

// StatusPublished is the only lifecycle status an event carries today.
const StatusPublished = "published"

// Event is an immutable fact appended to the log.
//
// Events are never mutated or deleted except by compaction. Sequence values
// are unique and increasing within a log.
type Event struct {
	Sequence  int64          `json:"sequence"`
	EventID   string         `json:"event_id"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
	Timestamp time.Time      `json:"timestamp"`
	Status    string         `json:"status"`
}

// CanonicalJSON serializes the event as a single canonical JSON line
// (no trailing newline). Two equal events always produce identical bytes.
func (e Event) CanonicalJSON() ([]byte, error) {
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	m := map[string]any{
		"sequence":   e.Sequence,
		"event_id":   e.EventID,
		"event_type": e.EventType,
		"payload":    payload,
		"timestamp":  e.Timestamp.UTC().Format(time.RFC3339Nano),
		"status":     e.Status,
	}
	b, err := EncodeCanonical(m)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.EventID, err)
	}
	return b, nil
}

// ParseEvent decodes one log line into an Event. A line that is not valid
// JSON, or that lacks a positive sequence or an event id, is corrupt.
func ParseEvent(line []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(line, &e); err != nil {
		return Event{}, fmt.Errorf("parse event record: %w", err)
	}
	if e.Sequence <= 0 {
		return Event{}, fmt.Errorf("parse event record: missing or non-positive sequence")
	}
	if e.EventID == "" {
		return Event{}, fmt.Errorf("parse event record: missing event_id")
	}
	return e, nil
}
