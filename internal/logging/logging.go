// Package logging appends structured JSON lines to a log file under the
// storage root, so operators can inspect what the engine did after the
// short-lived worker processes that invoked it have exited.
package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Logger writes one JSON object per line. A nil *Logger is a usable no-op,
// so callers never guard their log sites.
type Logger struct {
	file *os.File
	now  func() time.Time
}

// New creates (or reuses) the engine log file under dir.
func New(dir string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure log dir: %w", err)
	}
	path := filepath.Join(dir, "windlass.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &Logger{file: f, now: time.Now}, nil
}

// Close releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Info writes an info-level line.
func (l *Logger) Info(msg string, fields map[string]any) {
	l.emit("INFO", msg, fields)
}

// Error writes an error-level line.
func (l *Logger) Error(msg string, fields map[string]any) {
	l.emit("ERROR", msg, fields)
}

func (l *Logger) emit(level, msg string, fields map[string]any) {
	if l == nil || l.file == nil {
		return
	}
	m := make(map[string]any, 3+len(fields))
	m["ts"] = l.now().UTC().Format(time.RFC3339Nano)
	m["level"] = level
	m["msg"] = msg
	for k, v := range fields {
		m[k] = v
	}
	b, err := json.Marshal(m)
	if err != nil {
		return
	}
	fmt.Fprintln(l.file, string(b))
}
