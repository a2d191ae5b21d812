package storage_test

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/serroba/taskgrid/internal/project"
	"github.com/serroba/taskgrid/internal/storage"
	"github.com/stretchr/testify/require"
)

type backupEvent struct {
	name     string
	filename string
	version  int
}

type recorderStub struct {
	mu     sync.Mutex
	events []backupEvent
}

func (r *recorderStub) RecordBackup(name, filename string, version int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, backupEvent{name: name, filename: filename, version: version})
}

func (r *recorderStub) Events() []backupEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]backupEvent(nil), r.events...)
}

func fixedClock() func() time.Time {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	return func() time.Time { return at }
}

func TestBackups_Due(t *testing.T) {
	t.Parallel()

	backups := storage.NewBackups(storage.BackupConfig{Dir: t.TempDir()})

	require.False(t, backups.Due(0))
	require.False(t, backups.Due(49))
	require.True(t, backups.Due(50))
	require.False(t, backups.Due(51))
	require.True(t, backups.Due(100))
}

func TestBackups_SkipsNonMilestones(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	recorder := &recorderStub{}
	backups := storage.NewBackups(storage.BackupConfig{Dir: dir, Recorder: recorder})

	backups.MaybeSnapshot("alpha", sampleDocument(t, 49), 49)

	files, err := backups.List("alpha")
	require.NoError(t, err)
	require.Empty(t, files)
	require.Empty(t, recorder.Events())
}

func TestBackups_WritesMilestone(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	recorder := &recorderStub{}
	backups := storage.NewBackups(storage.BackupConfig{
		Dir:      dir,
		Recorder: recorder,
		Now:      fixedClock(),
	})

	backups.MaybeSnapshot("alpha", sampleDocument(t, 50), 50)

	files, err := backups.List("alpha")
	require.NoError(t, err)
	require.Equal(t, []string{"v50_20260314_092653.json"}, files)

	data, err := os.ReadFile(filepath.Join(dir, "alpha", files[0]))
	require.NoError(t, err)

	var doc project.Document
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Equal(t, 50, doc.Version)

	require.Equal(t, []backupEvent{{name: "alpha", filename: files[0], version: 50}}, recorder.Events())
}

func TestBackups_RetentionKeepsNewest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	backups := storage.NewBackups(storage.BackupConfig{
		Dir:   dir,
		Every: 1,
		Keep:  3,
		Now:   fixedClock(),
	})

	for v := 1; v <= 12; v++ {
		backups.MaybeSnapshot("alpha", sampleDocument(t, v), v)
	}

	files, err := backups.List("alpha")
	require.NoError(t, err)
	require.Equal(t, []string{
		"v10_20260314_092653.json",
		"v11_20260314_092653.json",
		"v12_20260314_092653.json",
	}, files)
}

func TestBackups_RetentionCapAtDefault(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	backups := storage.NewBackups(storage.BackupConfig{Dir: dir, Now: fixedClock()})

	for i := 1; i <= 55; i++ {
		v := i * storage.DefaultBackupEvery
		backups.MaybeSnapshot("alpha", sampleDocument(t, v), v)
	}

	files, err := backups.List("alpha")
	require.NoError(t, err)
	require.Len(t, files, storage.DefaultBackupKeep)
	require.Equal(t, fmt.Sprintf("v%d_20260314_092653.json", 6*storage.DefaultBackupEvery), files[0])
}

func TestBackups_FailureIsSwallowed(t *testing.T) {
	t.Parallel()

	recorder := &recorderStub{}
	backups := storage.NewBackups(storage.BackupConfig{
		Dir:      t.TempDir(),
		Recorder: recorder,
		Writer: storage.NewWriter(storage.WriterConfig{
			RenameAttempts: 1,
			Rename:         func(_, _ string) error { return fs.ErrPermission },
		}),
	})

	require.NotPanics(t, func() {
		backups.MaybeSnapshot("alpha", sampleDocument(t, 50), 50)
	})

	files, err := backups.List("alpha")
	require.NoError(t, err)
	require.Empty(t, files)
	require.Empty(t, recorder.Events())
}
