// Package changelog appends audit records for accepted operations.
package changelog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/serroba/taskgrid/internal/storage"
	"go.uber.org/zap"
)

// SystemUser is the user recorded for events the service performs itself.
const SystemUser = "SYSTEM"

const (
	timestampLayout = "2006-01-02 15:04:05"
	dayLayout       = "2006-01-02"
	logExt          = ".log"
)

// Record is one line of a project's change log.
type Record struct {
	Timestamp string                     `json:"timestamp"`
	User      string                     `json:"user"`
	Op        string                     `json:"op"`
	Details   map[string]json.RawMessage `json:"details"`
}

// Config holds configuration for creating a Writer.
type Config struct {
	Dir    string
	Logger *zap.Logger
	Now    func() time.Time
}

// Writer appends records to <dir>/<project>/<YYYY-MM-DD>.log, one JSON
// object per line. Failures are logged and never returned.
type Writer struct {
	mu     sync.Mutex
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

// New creates a change log writer.
func New(cfg Config) *Writer {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Writer{
		dir:    cfg.Dir,
		logger: logger,
		now:    now,
	}
}

// Append records an operation. The payload's project, user and op keys are
// not repeated in the details.
func (w *Writer) Append(name, user, op string, payload map[string]json.RawMessage) {
	details := make(map[string]json.RawMessage, len(payload))

	for k, v := range payload {
		switch k {
		case "project", "user", "op":
			continue
		}

		details[k] = v
	}

	w.write(name, Record{User: user, Op: op, Details: details})
}

// RecordBackup records a milestone backup as a SYSTEM event.
func (w *Writer) RecordBackup(name, filename string, version int) {
	fn, _ := json.Marshal(filename)

	w.write(name, Record{
		User: SystemUser,
		Op:   "backup",
		Details: map[string]json.RawMessage{
			"filename": fn,
			"version":  json.RawMessage(fmt.Sprint(version)),
		},
	})
}

// Path returns the file a project's records for the given day go to.
func (w *Writer) Path(name string, day time.Time) string {
	return filepath.Join(w.dir, storage.SanitizeName(name), day.Format(dayLayout)+logExt)
}

func (w *Writer) write(name string, rec Record) {
	now := w.now()
	rec.Timestamp = now.Format(timestampLayout)

	if err := w.appendLine(w.Path(name, now), rec); err != nil {
		w.logger.Warn("change log append failed",
			zap.String("project", name),
			zap.String("op", rec.Op),
			zap.Error(err),
		)
	}
}

func (w *Writer) appendLine(path string, rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}

	if _, err := f.Write(line); err != nil {
		_ = f.Close()

		return err
	}

	return f.Close()
}

// Ensure Writer implements storage.BackupRecorder.
var _ storage.BackupRecorder = (*Writer)(nil)
