// Package config loads server settings from defaults, a YAML file and
// TASKGRID_* environment variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/serroba/taskgrid/internal/cache"
	"github.com/serroba/taskgrid/internal/storage"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TASKGRID_SERVER_ADDR.
const EnvPrefix = "TASKGRID"

// ErrInvalid is returned when a loaded setting is out of range.
var ErrInvalid = errors.New("invalid config")

// Config represents the full server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Backup  BackupConfig  `yaml:"backup" mapstructure:"backup"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr              string        `yaml:"addr" mapstructure:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// StorageConfig locates project files, backups and change logs.
// Empty directories default to a subdirectory of DataDir.
type StorageConfig struct {
	DataDir        string        `yaml:"data_dir" mapstructure:"data_dir"`
	ProjectsDir    string        `yaml:"projects_dir" mapstructure:"projects_dir"`
	BackupsDir     string        `yaml:"backups_dir" mapstructure:"backups_dir"`
	LogsDir        string        `yaml:"logs_dir" mapstructure:"logs_dir"`
	RenameAttempts int           `yaml:"rename_attempts" mapstructure:"rename_attempts"`
	RenameBackoff  time.Duration `yaml:"rename_backoff" mapstructure:"rename_backoff"`
}

// CacheConfig configures the write-behind cache.
type CacheConfig struct {
	FlushInterval time.Duration `yaml:"flush_interval" mapstructure:"flush_interval"`
}

// BackupConfig configures milestone backups.
type BackupConfig struct {
	Every int `yaml:"every" mapstructure:"every"`
	Keep  int `yaml:"keep" mapstructure:"keep"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

// Default returns the default configuration.
func Default() *Config {
	cfg := defaults()
	cfg.Storage.resolveDirs()

	return cfg
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":5000",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Storage: StorageConfig{
			DataDir:        "data",
			RenameAttempts: storage.DefaultRenameAttempts,
			RenameBackoff:  storage.DefaultRenameBackoff,
		},
		Cache: CacheConfig{
			FlushInterval: cache.DefaultFlushInterval,
		},
		Backup: BackupConfig{
			Every: storage.DefaultBackupEvery,
			Keep:  storage.DefaultBackupKeep,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load merges defaults, the YAML file at path (skipped when empty) and
// environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, defaults())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Storage.resolveDirs()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports the first out-of-range setting.
func (c *Config) Validate() error {
	switch {
	case c.Server.Addr == "":
		return fmt.Errorf("%w: server.addr is empty", ErrInvalid)
	case c.Storage.DataDir == "":
		return fmt.Errorf("%w: storage.data_dir is empty", ErrInvalid)
	case c.Storage.RenameAttempts < 1:
		return fmt.Errorf("%w: storage.rename_attempts must be at least 1", ErrInvalid)
	case c.Cache.FlushInterval <= 0:
		return fmt.Errorf("%w: cache.flush_interval must be positive", ErrInvalid)
	case c.Backup.Every < 1:
		return fmt.Errorf("%w: backup.every must be at least 1", ErrInvalid)
	case c.Backup.Keep < 1:
		return fmt.Errorf("%w: backup.keep must be at least 1", ErrInvalid)
	}

	return nil
}

func (s *StorageConfig) resolveDirs() {
	if s.ProjectsDir == "" {
		s.ProjectsDir = filepath.Join(s.DataDir, "projects")
	}

	if s.BackupsDir == "" {
		s.BackupsDir = filepath.Join(s.DataDir, "backups")
	}

	if s.LogsDir == "" {
		s.LogsDir = filepath.Join(s.DataDir, "logs")
	}
}

// setDefaults registers every key so environment variables can override
// settings absent from the file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.read_header_timeout", cfg.Server.ReadHeaderTimeout)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
	v.SetDefault("storage.data_dir", cfg.Storage.DataDir)
	v.SetDefault("storage.projects_dir", cfg.Storage.ProjectsDir)
	v.SetDefault("storage.backups_dir", cfg.Storage.BackupsDir)
	v.SetDefault("storage.logs_dir", cfg.Storage.LogsDir)
	v.SetDefault("storage.rename_attempts", cfg.Storage.RenameAttempts)
	v.SetDefault("storage.rename_backoff", cfg.Storage.RenameBackoff)
	v.SetDefault("cache.flush_interval", cfg.Cache.FlushInterval)
	v.SetDefault("backup.every", cfg.Backup.Every)
	v.SetDefault("backup.keep", cfg.Backup.Keep)
	v.SetDefault("log.level", cfg.Log.Level)
}
