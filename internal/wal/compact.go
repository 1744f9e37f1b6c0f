package wal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const snapshotStamp = "20060102T150405.000000000Z"

// Snapshot copies the current log into the snapshots directory as a
// timestamped recovery point and returns the snapshot path. The copy is
// written to a temporary file and renamed, so a crash never leaves a
// partial snapshot. History is preserved in full.
func (l *Log) Snapshot() (string, error) {
	if err := os.MkdirAll(l.snapshots, 0o755); err != nil {
		return "", fmt.Errorf("ensure snapshots dir: %w", err)
	}

	name := fmt.Sprintf("events-%s.log", l.now().UTC().Format(snapshotStamp))
	dest := filepath.Join(l.snapshots, name)

	src, err := os.Open(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("open log for snapshot: %w", err)
		}
		// Nothing published yet: the recovery point is an empty log.
		src = nil
	}
	if src != nil {
		defer src.Close()
	}

	tmp, err := os.CreateTemp(l.snapshots, ".snapshot-*")
	if err != nil {
		return "", fmt.Errorf("create snapshot temp: %w", err)
	}
	tmpName := tmp.Name()

	if src != nil {
		if _, err := io.Copy(tmp, src); err != nil {
			tmp.Close()
			os.Remove(tmpName)
			return "", fmt.Errorf("copy log to snapshot: %w", err)
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("finalize snapshot: %w", err)
	}
	return dest, nil
}

// Prune rewrites the log keeping only records with sequence >= minSeq.
// The last valid record is always kept, even when minSeq lies beyond it:
// the tail record is what carries the sequence high-water mark, and
// dropping it would restart numbering and break the uniqueness invariant.
// Callers take a Snapshot first; Prune itself is destructive. Corrupt lines
// are dropped. Returns the kept and dropped record counts.
func (l *Log) Prune(minSeq int64) (kept, dropped int, err error) {
	if err := l.locks.Acquire(AppendLockResource, l.appendWithin); err != nil {
		return 0, 0, fmt.Errorf("lock log for prune: %w", err)
	}
	defer l.locks.Release(AppendLockResource)

	events, corrupt, err := l.ReadFrom(1)
	if err != nil {
		return 0, 0, err
	}
	if n := len(events); n > 0 && minSeq > events[n-1].Sequence {
		minSeq = events[n-1].Sequence
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".events-prune-*")
	if err != nil {
		return 0, 0, fmt.Errorf("create prune temp: %w", err)
	}
	tmpName := tmp.Name()
	fail := func(step string, werr error) (int, int, error) {
		tmp.Close()
		os.Remove(tmpName)
		return 0, 0, fmt.Errorf("%s: %w", step, werr)
	}

	for _, ev := range events {
		if ev.Sequence < minSeq {
			dropped++
			continue
		}
		line, err := ev.CanonicalJSON()
		if err != nil {
			return fail("encode pruned record", err)
		}
		if _, err := tmp.Write(append(line, '\n')); err != nil {
			return fail("write pruned log", err)
		}
		kept++
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync pruned log", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, 0, fmt.Errorf("close pruned log: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return 0, 0, fmt.Errorf("replace log: %w", err)
	}
	return kept, dropped + corrupt, nil
}

// SnapshotCount returns how many snapshots exist.
func (l *Log) SnapshotCount() (int, error) {
	entries, err := os.ReadDir(l.snapshots)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("list snapshots: %w", err)
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() {
			n++
		}
	}
	return n, nil
}
