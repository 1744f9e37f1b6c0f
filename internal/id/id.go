// Package id generates the identifiers stamped onto every durable record.
//
// Identifiers follow the form <prefix>-<epoch>-<random>, where the random
// component comes from a snowflake node so ids remain unique across
// concurrent worker processes on the same host. Checkpoint ids use UUIDv7
// so they sort by creation time.
package id

import (
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

// Generator produces unique identifiers for a given prefix.
type Generator interface {
	New(prefix string) string
}

// Snowflake generates <prefix>-<epoch>-<random> identifiers backed by a
// snowflake node. Safe for concurrent use.
type Snowflake struct {
	node *snowflake.Node
	now  func() time.Time
}

// NewSnowflake creates a generator for the given node id (0-1023).
func NewSnowflake(nodeID int64) (*Snowflake, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("create snowflake node: %w", err)
	}
	return &Snowflake{node: node, now: time.Now}, nil
}

// NewSnowflakeAt is NewSnowflake with an injectable clock for the epoch
// component. The random component still comes from the snowflake node.
func NewSnowflakeAt(nodeID int64, now func() time.Time) (*Snowflake, error) {
	g, err := NewSnowflake(nodeID)
	if err != nil {
		return nil, err
	}
	g.now = now
	return g, nil
}

// New returns a fresh identifier, e.g. "evt-1756402800-8pk2mzq1c2a".
func (g *Snowflake) New(prefix string) string {
	return fmt.Sprintf("%s-%d-%s", prefix, g.now().UTC().Unix(), g.node.Generate().Base36())
}

// UUIDv7 returns a time-sortable UUIDv7 string.
//
// Panics if UUID generation fails (should never happen in practice).
func UUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// Fixed returns predetermined identifiers for testing.
//
// Tests provide a known sequence of ids and verify exact record output.
// Panics when all ids are exhausted, to fail fast on test misconfiguration.
//
// Thread-safety: safe for concurrent use via internal mutex.
type Fixed struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixed creates a generator that returns ids in order, ignoring prefix.
func NewFixed(ids ...string) *Fixed {
	return &Fixed{ids: ids}
}

// New returns the next predetermined id.
func (g *Fixed) New(string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.idx >= len(g.ids) {
		panic("id.Fixed: all ids exhausted")
	}
	s := g.ids[g.idx]
	g.idx++
	return s
}
