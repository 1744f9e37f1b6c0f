// Package fsutil provides the small filesystem primitives the engine's
// stores share: atomic file replacement and key-to-filename safety checks.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WriteAtomic writes data to path by writing a temporary file in the same
// directory and renaming it into place. A reader never observes a partially
// written file. The temporary file is cleaned up on failure.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// CheckName rejects keys that cannot safely become a single path component.
// kind names the key in error messages ("workflow id", "resource", ...).
func CheckName(kind, name string) error {
	if name == "" {
		return fmt.Errorf("%s must not be empty", kind)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("%s must not be %q", kind, name)
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return fmt.Errorf("%s %q must not contain path separators", kind, name)
	}
	return nil
}
