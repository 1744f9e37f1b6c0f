// Package engine wires the durable coordination stores (event log,
// checkpoints, idempotency cache, lock manager, dead letter queue and
// consumer offsets) under a single storage root.
//
// The engine assumes nothing beyond a shared POSIX-like filesystem: every
// guarantee (ordering, crash recovery, mutual exclusion) is a property of
// how the files underneath are mutated. Callers are typically short-lived
// worker processes; each operation opens the engine, acts, and exits.
//
// Error handling follows one rule: only I/O failures propagate as hard
// errors. Missing checkpoints, contended locks, failing handlers and
// corrupt log lines are all handled locally (typed not-found/timeout
// results, dead-lettering, skip-and-count) so that one bad event or one
// busy lock never stops the broader pipeline.
package engine
