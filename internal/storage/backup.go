package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/serroba/taskgrid/internal/project"
	"go.uber.org/zap"
)

// Backup defaults.
const (
	DefaultBackupEvery = 50
	DefaultBackupKeep  = 50

	backupTimeLayout = "20060102_150405"
)

// BackupRecorder receives an audit record for every backup written.
type BackupRecorder interface {
	RecordBackup(name, filename string, version int)
}

// BackupConfig holds configuration for creating a Backups manager.
type BackupConfig struct {
	Dir      string
	Every    int // Snapshot every N versions
	Keep     int // Retained backups per project
	Writer   *Writer
	Recorder BackupRecorder
	Logger   *zap.Logger
	Now      func() time.Time
}

// Backups copies a project into a capped history every Nth version.
type Backups struct {
	dir      string
	every    int
	keep     int
	writer   *Writer
	recorder BackupRecorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewBackups creates a backup manager.
func NewBackups(cfg BackupConfig) *Backups {
	every := cfg.Every
	if every <= 0 {
		every = DefaultBackupEvery
	}

	keep := cfg.Keep
	if keep <= 0 {
		keep = DefaultBackupKeep
	}

	writer := cfg.Writer
	if writer == nil {
		writer = NewWriter(WriterConfig{})
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Backups{
		dir:      cfg.Dir,
		every:    every,
		keep:     keep,
		writer:   writer,
		recorder: cfg.Recorder,
		logger:   logger,
		now:      now,
	}
}

// Due reports whether version is a backup milestone.
func (b *Backups) Due(version int) bool {
	return version > 0 && version%b.every == 0
}

// MaybeSnapshot writes a backup when version is a milestone and then enforces
// retention. Failures are logged and never returned: a failed backup must not
// fail the operation that triggered it.
func (b *Backups) MaybeSnapshot(name string, doc *project.Document, version int) {
	if !b.Due(version) {
		return
	}

	start := b.now()

	filename, err := b.snapshot(name, doc.Clone(), version)
	if err != nil {
		backupOperationsTotal.WithLabelValues("error").Inc()
		b.logger.Error("backup failed",
			zap.String("project", name),
			zap.Int("version", version),
			zap.Error(err),
		)

		return
	}

	backupOperationsTotal.WithLabelValues("ok").Inc()
	backupDurationSeconds.Observe(time.Since(start).Seconds())

	if err := b.enforceRetention(name); err != nil {
		b.logger.Warn("backup retention failed", zap.String("project", name), zap.Error(err))
	}

	if b.recorder != nil {
		b.recorder.RecordBackup(name, filename, version)
	}

	b.logger.Info("backup written",
		zap.String("project", name),
		zap.String("file", filename),
		zap.Int("version", version),
	)
}

// List returns a project's backup files, oldest first.
func (b *Backups) List(name string) ([]string, error) {
	entries, err := os.ReadDir(b.projectDir(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}

		return nil, err
	}

	files := make([]string, 0, len(entries))

	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), documentExt) {
			files = append(files, entry.Name())
		}
	}

	slices.SortFunc(files, compareBackupNames)

	return files, nil
}

func (b *Backups) projectDir(name string) string {
	return filepath.Join(b.dir, SanitizeName(name))
}

func (b *Backups) snapshot(name string, doc *project.Document, version int) (string, error) {
	filename := fmt.Sprintf("v%d_%s%s", version, b.now().Format(backupTimeLayout), documentExt)

	if err := b.writer.WriteJSON(filepath.Join(b.projectDir(name), filename), doc); err != nil {
		return "", err
	}

	return filename, nil
}

func (b *Backups) enforceRetention(name string) error {
	files, err := b.List(name)
	if err != nil {
		return err
	}

	var errs []error

	for len(files) > b.keep {
		if err := os.Remove(filepath.Join(b.projectDir(name), files[0])); err != nil {
			errs = append(errs, err)
		}

		files = files[1:]
	}

	return errors.Join(errs...)
}

// compareBackupNames orders v<version>_<timestamp>.json by version number
// first so v100 sorts after v50, then by name.
func compareBackupNames(a, b string) int {
	va, vb := backupVersion(a), backupVersion(b)
	if va != vb {
		if va < vb {
			return -1
		}

		return 1
	}

	return strings.Compare(a, b)
}

func backupVersion(filename string) int {
	rest, ok := strings.CutPrefix(filename, "v")
	if !ok {
		return -1
	}

	digits, _, _ := strings.Cut(rest, "_")

	v, err := strconv.Atoi(digits)
	if err != nil {
		return -1
	}

	return v
}
