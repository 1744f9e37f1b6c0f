package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvent_CanonicalJSON(t *testing.T) {
	ev := Event{
		Sequence:  1,
		EventID:   "evt-1",
		EventType: "order.created",
		Payload:   map[string]any{"order_id": "ord-42"},
		Timestamp: time.Date(2025, 8, 28, 12, 0, 0, 0, time.UTC),
		Status:    StatusPublished,
	}

	got, err := ev.CanonicalJSON()
	require.NoError(t, err)
	assert.Equal(t,
		`{"event_id":"evt-1","event_type":"order.created","payload":{"order_id":"ord-42"},"sequence":1,"status":"published","timestamp":"2025-08-28T12:00:00Z"}`,
		string(got))
}

func TestEvent_CanonicalJSON_NilPayload(t *testing.T) {
	ev := Event{
		Sequence:  3,
		EventID:   "evt-3",
		EventType: "heartbeat",
		Timestamp: time.Date(2025, 8, 28, 12, 0, 0, 0, time.UTC),
		Status:    StatusPublished,
	}
	got, err := ev.CanonicalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(got), `"payload":{}`)
}

func TestEvent_CanonicalJSON_RoundTrip(t *testing.T) {
	ev := Event{
		Sequence:  7,
		EventID:   "evt-7",
		EventType: "order.shipped",
		Payload:   map[string]any{"carrier": "dhl", "weight": 1.5},
		Timestamp: time.Date(2025, 8, 28, 12, 0, 0, 123456789, time.UTC),
		Status:    StatusPublished,
	}

	line, err := ev.CanonicalJSON()
	require.NoError(t, err)

	back, err := ParseEvent(line)
	require.NoError(t, err)
	assert.Equal(t, ev.Sequence, back.Sequence)
	assert.Equal(t, ev.EventID, back.EventID)
	assert.Equal(t, ev.EventType, back.EventType)
	assert.Equal(t, ev.Payload, back.Payload)
	assert.True(t, ev.Timestamp.Equal(back.Timestamp))
}

func TestParseEvent_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"truncated json", `{"sequence":1,"event_id":"evt`},
		{"not json", "garbage"},
		{"zero sequence", `{"sequence":0,"event_id":"evt-1"}`},
		{"negative sequence", `{"sequence":-2,"event_id":"evt-1"}`},
		{"missing event id", `{"sequence":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEvent([]byte(tt.line))
			assert.Error(t, err)
		})
	}
}
