package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// Writer defaults.
const (
	DefaultRenameAttempts = 15
	DefaultRenameBackoff  = 200 * time.Millisecond
)

// WriterConfig holds configuration for creating a Writer.
type WriterConfig struct {
	// RenameAttempts bounds how often a transiently failing rename is tried.
	RenameAttempts int
	// RenameBackoff is multiplied by the attempt number between tries.
	RenameBackoff time.Duration
	// Rename replaces os.Rename; tests use it to inject failures.
	Rename func(oldpath, newpath string) error
}

// Writer atomically replaces files with JSON content: it writes a temp file
// in the destination directory, syncs it, and renames it over the target.
//
// Writer only runs from the cache flush loop and the backup path, so it does
// no locking of its own.
type Writer struct {
	attempts int
	backoff  time.Duration
	rename   func(oldpath, newpath string) error
}

// NewWriter creates a new durable writer.
func NewWriter(cfg WriterConfig) *Writer {
	attempts := cfg.RenameAttempts
	if attempts <= 0 {
		attempts = DefaultRenameAttempts
	}

	backoff := cfg.RenameBackoff
	if backoff <= 0 {
		backoff = DefaultRenameBackoff
	}

	rename := cfg.Rename
	if rename == nil {
		rename = os.Rename
	}

	return &Writer{
		attempts: attempts,
		backoff:  backoff,
		rename:   rename,
	}
}

// WriteJSON serializes v and atomically replaces path with it.
func (w *Writer) WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}

	return w.Write(path, data)
}

// Write atomically replaces path with data.
func (w *Writer) Write(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tmpPath := tmp.Name()
	committed := false

	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := w.renameWithRetry(tmpPath, path); err != nil {
		return err
	}

	committed = true

	return nil
}

// renameWithRetry retries renames that fail because another process briefly
// holds the destination (virus scanners, indexers), with linear backoff.
func (w *Writer) renameWithRetry(from, to string) error {
	var lastErr error

	for attempt := 1; attempt <= w.attempts; attempt++ {
		err := w.rename(from, to)
		if err == nil {
			return nil
		}

		lastErr = err

		if !isTransientRenameError(err) {
			break
		}

		if attempt < w.attempts {
			renameRetriesTotal.Inc()
			time.Sleep(time.Duration(attempt) * w.backoff)
		}
	}

	return fmt.Errorf("atomic rename %s: %w", filepath.Base(to), lastErr)
}

func isTransientRenameError(err error) bool {
	return errors.Is(err, fs.ErrPermission) || errors.Is(err, syscall.EBUSY)
}
