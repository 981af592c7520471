package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Data: DataConfig{
			Dir:      GlobalDir(),
			MaxBytes: 5 * 1024 * 1024,
		},
		Remote: RemoteConfig{
			URL:            "http://127.0.0.1:8787",
			RequestTimeout: 10 * time.Second,
			MaxRetries:     2,
			ProbeTimeout:   5 * time.Second,
			ProbeInterval:  15 * time.Second,
		},
		Sync: SyncConfig{
			Interval:        30 * time.Second,
			BatchSize:       10,
			MaxRetries:      3,
			OnlineDebounce:  time.Second,
			EnqueueDebounce: 500 * time.Millisecond,
		},
		Migration: MigrationConfig{
			BatchSize:       5,
			ItemDelay:       100 * time.Millisecond,
			SkipDuplicates:  true,
			DuplicateWindow: time.Minute,
			PreserveLocal:   true,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Dashboard: DashboardConfig{
			Addr: "127.0.0.1:8788",
		},
		Cloud: CloudConfig{
			Addr:     "127.0.0.1:8787",
			TokenTTL: time.Hour,
		},
	}
}

const defaultHeader = `# tasksync configuration
#
# Values here can be overridden by a project .tasksync/config.yaml and by
# TASKSYNC_* environment variables (e.g. TASKSYNC_REMOTE_URL).

`

// WriteDefault writes the default configuration to path. An existing file is
// only replaced when force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString(defaultHeader)
	if err := Encode(&buf, DefaultConfig()); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// Encode renders cfg as YAML.
func Encode(w io.Writer, cfg *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return enc.Close()
}
