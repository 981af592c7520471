// Package config loads tasksync settings from defaults, config files and
// TASKSYNC_* environment variables.
package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// Config is the full tasksync configuration.
type Config struct {
	// Data holds the local store settings
	Data DataConfig `yaml:"data" mapstructure:"data"`

	// Remote configures the task service client
	Remote RemoteConfig `yaml:"remote" mapstructure:"remote"`

	// Sync configures the sync engine and its scheduler
	Sync SyncConfig `yaml:"sync" mapstructure:"sync"`

	// Migration configures guest-to-account migration
	Migration MigrationConfig `yaml:"migration" mapstructure:"migration"`

	// Log configures structured logging
	Log LogConfig `yaml:"log" mapstructure:"log"`

	// Dashboard configures the live event stream served by the daemon
	Dashboard DashboardConfig `yaml:"dashboard" mapstructure:"dashboard"`

	// Cloud configures the development task service (taskd cloud serve)
	Cloud CloudConfig `yaml:"cloud" mapstructure:"cloud"`
}

// DataConfig locates the local store.
type DataConfig struct {
	Dir      string `yaml:"dir" mapstructure:"dir"`
	MaxBytes int64  `yaml:"max_bytes" mapstructure:"max_bytes"`
}

// RemoteConfig configures the HTTP client.
type RemoteConfig struct {
	URL            string        `yaml:"url" mapstructure:"url"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	MaxRetries     int           `yaml:"max_retries" mapstructure:"max_retries"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout" mapstructure:"probe_timeout"`
	ProbeInterval  time.Duration `yaml:"probe_interval" mapstructure:"probe_interval"`
}

// SyncConfig configures sync passes.
type SyncConfig struct {
	Interval        time.Duration `yaml:"interval" mapstructure:"interval"`
	BatchSize       int           `yaml:"batch_size" mapstructure:"batch_size"`
	MaxRetries      int           `yaml:"max_retries" mapstructure:"max_retries"`
	OnlineDebounce  time.Duration `yaml:"online_debounce" mapstructure:"online_debounce"`
	EnqueueDebounce time.Duration `yaml:"enqueue_debounce" mapstructure:"enqueue_debounce"`
}

// MigrationConfig configures the migration engine.
type MigrationConfig struct {
	BatchSize       int           `yaml:"batch_size" mapstructure:"batch_size"`
	ItemDelay       time.Duration `yaml:"item_delay" mapstructure:"item_delay"`
	SkipDuplicates  bool          `yaml:"skip_duplicates" mapstructure:"skip_duplicates"`
	DuplicateWindow time.Duration `yaml:"duplicate_window" mapstructure:"duplicate_window"`
	PreserveLocal   bool          `yaml:"preserve_local" mapstructure:"preserve_local"`
	Bulk            bool          `yaml:"bulk" mapstructure:"bulk"`
}

// LogConfig configures logging. An empty File logs to stderr.
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Format     string `yaml:"format" mapstructure:"format"` // text or json
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
}

// DashboardConfig configures the websocket dashboard.
type DashboardConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Addr    string `yaml:"addr" mapstructure:"addr"`
}

// CloudConfig configures the development server.
type CloudConfig struct {
	Addr     string            `yaml:"addr" mapstructure:"addr"`
	TokenTTL time.Duration     `yaml:"token_ttl" mapstructure:"token_ttl"`
	Accounts map[string]string `yaml:"accounts,omitempty" mapstructure:"accounts"`
}

// DBPath returns the path of the local store file.
func (c *Config) DBPath() string {
	return filepath.Join(c.Data.Dir, "tasks.db")
}

// Validate checks values that would otherwise fail deep inside a component.
func (c *Config) Validate() error {
	if c.Data.Dir == "" {
		return fmt.Errorf("data.dir is required")
	}
	if c.Remote.URL != "" {
		u, err := url.Parse(c.Remote.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("remote.url must be an absolute URL (got %q)", c.Remote.URL)
		}
	}
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync.batch_size must be positive (got %d)", c.Sync.BatchSize)
	}
	if c.Sync.MaxRetries <= 0 {
		return fmt.Errorf("sync.max_retries must be positive (got %d)", c.Sync.MaxRetries)
	}
	if c.Migration.BatchSize <= 0 {
		return fmt.Errorf("migration.batch_size must be positive (got %d)", c.Migration.BatchSize)
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error (got %q)", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json (got %q)", c.Log.Format)
	}
	return nil
}
