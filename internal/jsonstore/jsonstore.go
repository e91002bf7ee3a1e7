// Package jsonstore provides an atomic, per-file-locked JSON persistence
// layer. The gateway uses it for accounts.json (internal/pool) and
// api_keys.json (internal/keystore). Hot-path reads operate on in-memory
// snapshots; writes reach disk when the owning package calls Flush or
// FlushLogged, and always land via a temp-file-then-rename so a crash
// mid-write never corrupts the file on disk.
package jsonstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
)

// File is a single JSON document guarded by its own mutex. T is the shape
// decoded from (and encoded to) disk.
type File[T any] struct {
	path string

	mu    sync.RWMutex
	value T
	dirty bool
}

// Open loads path into memory, creating an empty document (zero value of T)
// if the file does not yet exist. The parent directory is created if needed.
func Open[T any](path string) (*File[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	f := &File[T]{path: path}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Start from the zero value; the first flush materializes the file.
	case err != nil:
		return nil, fmt.Errorf("read %s: %w", path, err)
	default:
		if len(data) > 0 {
			if err := json.Unmarshal(data, &f.value); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	return f, nil
}

// View runs fn with a read lock held over the in-memory snapshot.
func (f *File[T]) View(fn func(value T)) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fn(f.value)
}

// Update runs fn with a write lock held, allowing it to mutate the snapshot
// in place, and marks the document dirty so the next Flush persists it.
func (f *File[T]) Update(fn func(value *T)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(&f.value)
	f.dirty = true
}

// Flush writes the in-memory snapshot to disk if it has changed since the
// last flush, via a temp-file-then-rename for atomicity.
func (f *File[T]) Flush() error {
	f.mu.Lock()
	if !f.dirty {
		f.mu.Unlock()
		return nil
	}
	data, err := json.MarshalIndent(f.value, "", "  ")
	f.dirty = false
	f.mu.Unlock()

	if err != nil {
		return fmt.Errorf("marshal %s: %w", f.path, err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file for %s: %w", f.path, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("rename temp file into place for %s: %w", f.path, err)
	}
	return nil
}

// FlushLogged runs Flush and logs (rather than returns) any error; intended
// for use from background tickers where there is no caller to report to.
func (f *File[T]) FlushLogged() {
	if err := f.Flush(); err != nil {
		log.WithError(err).WithField("path", f.path).Error("jsonstore flush failed")
	}
}
