package engine

import (
	"fmt"
	"os"
	"time"

	"github.com/windlass-io/windlass/internal/checkpoint"
	"github.com/windlass-io/windlass/internal/config"
	"github.com/windlass-io/windlass/internal/consumer"
	"github.com/windlass-io/windlass/internal/dlq"
	"github.com/windlass-io/windlass/internal/id"
	"github.com/windlass-io/windlass/internal/idempotency"
	"github.com/windlass-io/windlass/internal/lock"
	"github.com/windlass-io/windlass/internal/logging"
	"github.com/windlass-io/windlass/internal/offset"
	"github.com/windlass-io/windlass/internal/record"
	"github.com/windlass-io/windlass/internal/schema"
	"github.com/windlass-io/windlass/internal/wal"
)

// Engine wires the coordination stores under one storage root.
type Engine struct {
	cfg config.Config

	Log         *wal.Log
	Checkpoints *checkpoint.Store
	Cache       *idempotency.Cache
	Locks       *lock.Manager
	DLQ         *dlq.Queue
	Offsets     *offset.Tracker

	schemas *schema.Validator
	runner  *consumer.Runner
	logger  *logging.Logger
}

// Option configures an Engine before its stores are opened.
type Option func(*options)

type options struct {
	ids      id.Generator
	now      func() time.Time
	ownerPID int
}

// WithIDGenerator overrides event id generation (tests).
func WithIDGenerator(g id.Generator) Option {
	return func(o *options) { o.ids = g }
}

// WithClock overrides the wall clock for every store (tests).
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLockOwnerPID records locks as held by pid instead of this process.
func WithLockOwnerPID(pid int) Option {
	return func(o *options) { o.ownerPID = pid }
}

// Open prepares every store under cfg.Root, creating the layout and a
// default config.yaml on first use.
func Open(cfg config.Config, opts ...Option) (*Engine, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.ids == nil {
		gen, err := id.NewSnowflakeAt(cfg.NodeID, o.now)
		if err != nil {
			return nil, err
		}
		o.ids = gen
	}

	if err := cfg.EnsureFile(); err != nil {
		return nil, err
	}

	lockOpts := []lock.Option{
		lock.WithPollInterval(time.Duration(cfg.LockPollInterval)),
		lock.WithClock(o.now),
	}
	if o.ownerPID > 0 {
		lockOpts = append(lockOpts, lock.WithOwnerPID(o.ownerPID))
	}
	locks, err := lock.NewManager(cfg.LocksDir(), lockOpts...)
	if err != nil {
		return nil, err
	}

	log, err := wal.Open(cfg.Root, locks, o.ids, wal.WithClock(o.now))
	if err != nil {
		return nil, err
	}
	checkpoints, err := checkpoint.NewStore(cfg.CheckpointsDir(), checkpoint.WithClock(o.now))
	if err != nil {
		return nil, err
	}
	cache, err := idempotency.NewCache(cfg.IdempotencyDir(), idempotency.WithClock(o.now))
	if err != nil {
		return nil, err
	}
	offsets, err := offset.NewTracker(cfg.OffsetsDir())
	if err != nil {
		return nil, err
	}
	queue := dlq.New(cfg.DLQPath(), dlq.WithClock(o.now))

	logger, err := logging.New(cfg.LogsDir())
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:         cfg,
		Log:         log,
		Checkpoints: checkpoints,
		Cache:       cache,
		Locks:       locks,
		DLQ:         queue,
		Offsets:     offsets,
		schemas:     schema.New(cfg.SchemasDir()),
		runner:      consumer.NewRunner(log, offsets, cache, queue, logger),
		logger:      logger,
	}, nil
}

// Close releases resources held by the engine.
func (e *Engine) Close() error {
	return e.logger.Close()
}

// Config returns the configuration the engine was opened with.
func (e *Engine) Config() config.Config {
	return e.cfg
}

// Publish validates the payload against its event type's schema (if one
// exists) and appends one event to the log.
func (e *Engine) Publish(eventType string, payload map[string]any) (record.Event, error) {
	if err := e.schemas.Validate(eventType, payload); err != nil {
		return record.Event{}, err
	}
	ev, err := e.Log.Append(eventType, payload)
	if err != nil {
		return record.Event{}, err
	}
	e.logger.Info("event published", map[string]any{
		"event_id":   ev.EventID,
		"event_type": ev.EventType,
		"sequence":   ev.Sequence,
	})
	return ev, nil
}

// Consume processes all new events for the named consumer.
func (e *Engine) Consume(consumerID string, handle consumer.Handler) (consumer.Result, error) {
	return e.runner.Consume(consumerID, handle)
}

// Replay re-runs handle over historical events from the given sequence,
// ignoring consumer offsets and the idempotency cache.
func (e *Engine) Replay(from int64, handle consumer.Handler) (consumer.ReplayResult, error) {
	return e.runner.Replay(from, handle)
}

// RetryDLQ re-publishes the original event behind a dead-letter entry. It
// is an explicit operator action and never happens automatically.
func (e *Engine) RetryDLQ(eventID string) (record.Event, error) {
	if _, err := e.DLQ.Inspect(eventID); err != nil {
		return record.Event{}, err
	}
	orig, found, err := e.Log.Lookup(eventID)
	if err != nil {
		return record.Event{}, err
	}
	if !found {
		// Dead-lettered but no longer in the log (pruned): nothing to
		// replay from.
		return record.Event{}, fmt.Errorf("event %q is not present in the log", eventID)
	}
	ev, err := e.Log.Reappend(orig)
	if err != nil {
		return record.Event{}, err
	}
	e.logger.Info("dead-lettered event re-published", map[string]any{
		"event_id": ev.EventID,
		"sequence": ev.Sequence,
	})
	return ev, nil
}

// Compact produces a timestamped snapshot of the log. With prune, records
// already covered by every checkpoint and every committed consumer offset
// are additionally dropped from the live log after the snapshot is taken.
func (e *Engine) Compact(prune bool) (CompactResult, error) {
	path, err := e.Log.Snapshot()
	if err != nil {
		return CompactResult{}, err
	}
	res := CompactResult{SnapshotPath: path}

	if prune {
		minSeq, ok, err := e.pruneHorizon()
		if err != nil {
			return res, err
		}
		if ok {
			kept, dropped, err := e.Log.Prune(minSeq)
			if err != nil {
				return res, err
			}
			res.Pruned = dropped
			res.Kept = kept
		}
	}
	e.logger.Info("log compacted", map[string]any{
		"snapshot": res.SnapshotPath,
		"pruned":   res.Pruned,
	})
	return res, nil
}

// CompactResult reports one compaction.
type CompactResult struct {
	SnapshotPath string `json:"snapshot_path"`
	Pruned       int    `json:"pruned"`
	Kept         int    `json:"kept"`
}

// pruneHorizon returns the lowest sequence that must be retained: the
// minimum over all committed consumer offsets and checkpointed sequences,
// plus one. Without any consumers or checkpoints there is no evidence any
// record's effects are captured, so nothing may be pruned.
func (e *Engine) pruneHorizon() (int64, bool, error) {
	offsets, err := e.Offsets.All()
	if err != nil {
		return 0, false, err
	}
	checkpoints, err := e.Checkpoints.All()
	if err != nil {
		return 0, false, err
	}
	if len(offsets) == 0 && len(checkpoints) == 0 {
		return 0, false, nil
	}

	var min int64 = -1
	for _, seq := range offsets {
		if min < 0 || seq < min {
			min = seq
		}
	}
	for _, cp := range checkpoints {
		if min < 0 || cp.Sequence < min {
			min = cp.Sequence
		}
	}
	return min + 1, true, nil
}

// Status reports the engine's observable state.
type Status struct {
	Events       int              `json:"events"`
	LastSequence int64            `json:"last_sequence"`
	DLQEntries   int              `json:"dlq_entries"`
	Consumers    map[string]int64 `json:"consumers"`
	ActiveLocks  []lock.Owner     `json:"active_locks"`
	Snapshots    int              `json:"snapshots"`
}

// Status gathers counts across all stores.
func (e *Engine) Status() (Status, error) {
	st := Status{ActiveLocks: []lock.Owner{}}

	events, _, err := e.Log.ReadFrom(1)
	if err != nil {
		return st, err
	}
	st.Events = len(events)
	if len(events) > 0 {
		st.LastSequence = events[len(events)-1].Sequence
	}

	if st.DLQEntries, err = e.DLQ.Len(); err != nil {
		return st, err
	}
	if st.Consumers, err = e.Offsets.All(); err != nil {
		return st, err
	}

	active, err := e.Locks.Active()
	if err != nil {
		return st, err
	}
	for _, resource := range active {
		owner, err := e.Locks.Holder(resource)
		if err != nil {
			// Released between the listing and the read, skip it.
			if os.IsNotExist(err) {
				continue
			}
			return st, err
		}
		st.ActiveLocks = append(st.ActiveLocks, owner)
	}

	if st.Snapshots, err = e.Log.SnapshotCount(); err != nil {
		return st, err
	}
	return st, nil
}
