package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/serroba/taskgrid/internal/config"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "taskgrid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := config.Default()

	require.Equal(t, ":5000", cfg.Server.Addr)
	require.Equal(t, 2*time.Second, cfg.Cache.FlushInterval)
	require.Equal(t, 50, cfg.Backup.Every)
	require.Equal(t, 50, cfg.Backup.Keep)
	require.Equal(t, 15, cfg.Storage.RenameAttempts)
	require.Equal(t, filepath.Join("data", "projects"), cfg.Storage.ProjectsDir)
	require.Equal(t, filepath.Join("data", "backups"), cfg.Storage.BackupsDir)
	require.Equal(t, filepath.Join("data", "logs"), cfg.Storage.LogsDir)
	require.NoError(t, cfg.Validate())
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	require.NoError(t, err)
	require.Equal(t, config.Default(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	t.Parallel()

	path := writeFile(t, `
server:
  addr: ":9000"
storage:
  data_dir: /srv/taskgrid
  logs_dir: /var/log/taskgrid
  rename_backoff: 50ms
cache:
  flush_interval: 500ms
backup:
  keep: 10
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	require.Equal(t, ":9000", cfg.Server.Addr)
	require.Equal(t, 10*time.Second, cfg.Server.ReadHeaderTimeout)
	require.Equal(t, filepath.Join("/srv/taskgrid", "projects"), cfg.Storage.ProjectsDir)
	require.Equal(t, "/var/log/taskgrid", cfg.Storage.LogsDir)
	require.Equal(t, 50*time.Millisecond, cfg.Storage.RenameBackoff)
	require.Equal(t, 500*time.Millisecond, cfg.Cache.FlushInterval)
	require.Equal(t, 50, cfg.Backup.Every)
	require.Equal(t, 10, cfg.Backup.Keep)
}

// Not parallel: t.Setenv.
func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "log:\n  level: warn\n")

	t.Setenv("TASKGRID_LOG_LEVEL", "debug")
	t.Setenv("TASKGRID_BACKUP_EVERY", "5")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, 5, cfg.Backup.Every)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = config.Load(writeFile(t, "backup:\n  every: 0\n"))
	require.ErrorIs(t, err, config.ErrInvalid)

	_, err = config.Load(writeFile(t, "cache:\n  flush_interval: -1s\n"))
	require.ErrorIs(t, err, config.ErrInvalid)
}
