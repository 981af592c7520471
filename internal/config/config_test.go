package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.Sync.BatchSize)
	assert.Equal(t, 3, cfg.Sync.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Sync.Interval)
	assert.Equal(t, 5, cfg.Migration.BatchSize)
	assert.True(t, cfg.Migration.SkipDuplicates)
	assert.True(t, cfg.Migration.PreserveLocal)
	assert.Equal(t, filepath.Join(cfg.Data.Dir, "tasks.db"), cfg.DBPath())
}

func TestLoadWithoutFilesReturnsDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadFrom(Paths{
		Global:  filepath.Join(dir, "missing-global.yaml"),
		Project: filepath.Join(dir, "missing-project.yaml"),
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Sync, cfg.Sync)
	assert.Equal(t, DefaultConfig().Remote, cfg.Remote)
}

func TestProjectOverridesGlobal(t *testing.T) {
	dir := t.TempDir()
	global := filepath.Join(dir, "global", "config.yaml")
	project := filepath.Join(dir, "project", "config.yaml")

	writeFile(t, global, `
remote:
  url: https://tasks.example.com
sync:
  interval: 2m
  batch_size: 20
`)
	writeFile(t, project, `
sync:
  batch_size: 5
log:
  format: json
`)

	cfg, err := LoadFrom(Paths{Global: global, Project: project})
	require.NoError(t, err)
	assert.Equal(t, "https://tasks.example.com", cfg.Remote.URL)
	assert.Equal(t, 2*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 5, cfg.Sync.BatchSize)
	assert.Equal(t, "json", cfg.Log.Format)
	// Untouched keys keep their defaults.
	assert.Equal(t, 3, cfg.Sync.MaxRetries)
}

func TestEnvironmentOverridesFiles(t *testing.T) {
	dir := t.TempDir()
	explicit := filepath.Join(dir, "tasksync.yaml")
	writeFile(t, explicit, "sync:\n  max_retries: 7\n")

	t.Setenv("TASKSYNC_SYNC_MAX_RETRIES", "9")
	t.Setenv("TASKSYNC_DATA_DIR", dir)

	cfg, err := LoadFrom(Paths{Explicit: explicit})
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Sync.MaxRetries)
	assert.Equal(t, dir, cfg.Data.Dir)
}

func TestExplicitFileMustExist(t *testing.T) {
	_, err := LoadFrom(Paths{Explicit: filepath.Join(t.TempDir(), "nope.yaml")})
	require.Error(t, err)
}

func TestTOMLConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeFile(t, path, `
[migration]
bulk = true
batch_size = 25
`)

	cfg, err := LoadFrom(Paths{Explicit: path})
	require.NoError(t, err)
	assert.True(t, cfg.Migration.Bulk)
	assert.Equal(t, 25, cfg.Migration.BatchSize)
}

func TestInvalidValuesRejected(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"batch size", "sync:\n  batch_size: 0\n"},
		{"log level", "log:\n  level: loud\n"},
		{"relative url", "remote:\n  url: tasks.example.com\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			writeFile(t, path, tt.content)

			_, err := LoadFrom(Paths{Explicit: path})
			assert.Error(t, err)
		})
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".tasksync", "config.yaml")

	require.NoError(t, WriteDefault(path, false))
	assert.Error(t, WriteDefault(path, false), "existing file is kept")
	require.NoError(t, WriteDefault(path, true))

	cfg, err := LoadFrom(Paths{Explicit: path})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Sync, cfg.Sync)
	assert.Equal(t, DefaultConfig().Migration, cfg.Migration)
}

func TestWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "sync:\n  batch_size: 4\n")

	reloaded := make(chan *Config, 16)
	require.NoError(t, Watch(Paths{Explicit: path}, path, nil, func(cfg *Config) {
		reloaded <- cfg
	}))

	writeFile(t, path, "sync:\n  batch_size: 8\n")

	// A truncating write can fire more than one event.
	deadline := time.After(5 * time.Second)
	for {
		select {
		case cfg := <-reloaded:
			if cfg.Sync.BatchSize == 8 {
				return
			}
		case <-deadline:
			t.Fatal("config was not reloaded")
		}
	}
}
