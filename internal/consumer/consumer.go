// Package consumer implements the resumable consume loop and replay over
// the event log.
//
// Per consumer the loop is: load offset → read next → dedup-skip, handle,
// or dead-letter → advance offset → repeat until the log is exhausted.
// Delivery is at-least-once from the log's perspective and exactly-once in
// effect as long as handlers only take effect behind the idempotency cache.
package consumer

import (
	"fmt"

	"github.com/windlass-io/windlass/internal/dlq"
	"github.com/windlass-io/windlass/internal/idempotency"
	"github.com/windlass-io/windlass/internal/logging"
	"github.com/windlass-io/windlass/internal/offset"
	"github.com/windlass-io/windlass/internal/record"
	"github.com/windlass-io/windlass/internal/wal"
)

// Handler processes one event and returns its result document. A non-nil
// error sends the event to the dead letter queue; it never aborts the loop.
type Handler func(record.Event) (map[string]any, error)

// Result summarizes one consume pass.
type Result struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// ReplayResult summarizes one replay pass.
type ReplayResult struct {
	Replayed int `json:"replayed"`
	Corrupt  int `json:"corrupt"`
}

// Runner drives consumption for named consumers.
type Runner struct {
	log     *wal.Log
	offsets *offset.Tracker
	cache   *idempotency.Cache
	queue   *dlq.Queue
	logger  *logging.Logger
}

// NewRunner wires a consume loop over the given stores. logger may be nil.
func NewRunner(log *wal.Log, offsets *offset.Tracker, cache *idempotency.Cache, queue *dlq.Queue, logger *logging.Logger) *Runner {
	return &Runner{log: log, offsets: offsets, cache: cache, queue: queue, logger: logger}
}

// Consume processes every log record beyond the consumer's saved offset.
//
// Already-completed events (by event id) are skipped but still advance the
// offset: a previous run, possibly one that crashed before committing,
// already handled them. Handler failures are dead-lettered and also advance
// the offset, so one poison event never blocks the records behind it.
// Corrupt log lines count as failed and are passed over.
func (r *Runner) Consume(consumerID string, handle Handler) (Result, error) {
	var res Result

	from, err := r.offsets.Load(consumerID)
	if err != nil {
		return res, err
	}
	events, corrupt, err := r.log.ReadFrom(from + 1)
	if err != nil {
		return res, err
	}
	res.Failed += corrupt

	for _, ev := range events {
		done, err := r.cache.Completed(ev.EventID)
		if err != nil {
			return res, err
		}
		if done {
			res.Skipped++
			if err := r.offsets.Commit(consumerID, ev.Sequence); err != nil {
				return res, err
			}
			continue
		}

		result, herr := handle(ev)
		if herr != nil {
			attempts, err := r.queue.Attempts(ev.EventID)
			if err != nil {
				return res, err
			}
			if err := r.queue.Send(ev.EventID, herr.Error(), attempts); err != nil {
				return res, err
			}
			res.Failed++
			r.logger.Error("event dead-lettered", map[string]any{
				"consumer": consumerID,
				"event_id": ev.EventID,
				"sequence": ev.Sequence,
				"reason":   herr.Error(),
			})
		} else {
			// Mark completion before advancing the offset: if we crash
			// between the two, the next run dedup-skips instead of
			// re-executing the side effect.
			if err := r.cache.MarkCompleted(ev.EventID, result); err != nil {
				return res, err
			}
			res.Processed++
		}

		if err := r.offsets.Commit(consumerID, ev.Sequence); err != nil {
			return res, err
		}
	}

	r.logger.Info("consume pass finished", map[string]any{
		"consumer":  consumerID,
		"processed": res.Processed,
		"failed":    res.Failed,
		"skipped":   res.Skipped,
	})
	return res, nil
}

// Replay re-invokes handle for every record at or after from, in log
// order, ignoring consumer offsets and the idempotency cache entirely.
//
// This is a diagnostic/rebuild tool: the caller must ensure the handler is
// safe to run against already-applied events. Unlike Consume, a handler
// error aborts the replay.
func (r *Runner) Replay(from int64, handle Handler) (ReplayResult, error) {
	var res ReplayResult

	events, corrupt, err := r.log.ReadFrom(from)
	if err != nil {
		return res, err
	}
	res.Corrupt = corrupt

	for _, ev := range events {
		if _, err := handle(ev); err != nil {
			return res, fmt.Errorf("replay handler failed at sequence %d: %w", ev.Sequence, err)
		}
		res.Replayed++
	}
	return res, nil
}
