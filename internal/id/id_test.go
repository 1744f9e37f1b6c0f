package id

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnowflake_Format(t *testing.T) {
	at := time.Date(2025, 8, 28, 12, 0, 0, 0, time.UTC)
	g, err := NewSnowflakeAt(0, func() time.Time { return at })
	require.NoError(t, err)

	got := g.New("evt")
	parts := strings.SplitN(got, "-", 3)
	require.Len(t, parts, 3)
	assert.Equal(t, "evt", parts[0])
	assert.Equal(t, "1756382400", parts[1])
	assert.NotEmpty(t, parts[2])
}

func TestSnowflake_Unique(t *testing.T) {
	g, err := NewSnowflake(0)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := g.New("evt")
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestNewSnowflake_RejectsBadNode(t *testing.T) {
	_, err := NewSnowflake(1024)
	assert.Error(t, err)
}

func TestUUIDv7_SortsByCreationTime(t *testing.T) {
	a := UUIDv7()
	time.Sleep(2 * time.Millisecond)
	b := UUIDv7()
	assert.Less(t, a, b)
}

func TestFixed_ReturnsIDsInOrder(t *testing.T) {
	g := NewFixed("evt-1", "evt-2")
	assert.Equal(t, "evt-1", g.New("evt"))
	assert.Equal(t, "evt-2", g.New("ignored"))
}

func TestFixed_PanicsWhenExhausted(t *testing.T) {
	g := NewFixed("only")
	g.New("evt")
	assert.Panics(t, func() { g.New("evt") })
}
