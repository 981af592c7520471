package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: remote.url is TASKSYNC_REMOTE_URL.
const EnvPrefix = "TASKSYNC"

// Paths lists the config files merged by LoadFrom, lowest precedence first.
// Missing Global or Project files are skipped; a missing Explicit file is an
// error.
type Paths struct {
	Global   string
	Project  string
	Explicit string
}

// DefaultPaths returns the global and project locations plus explicit.
func DefaultPaths(explicit string) Paths {
	return Paths{
		Global:   GlobalConfigPath(),
		Project:  ProjectConfigPath(),
		Explicit: explicit,
	}
}

// Load merges defaults, the global and project config files, the explicit
// file (if any) and the environment.
func Load(explicit string) (*Config, error) {
	return LoadFrom(DefaultPaths(explicit))
}

// LoadFrom is Load with explicit file locations.
func LoadFrom(paths Paths) (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	for _, path := range []string{paths.Global, paths.Project} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		if err := mergeFile(v, path); err != nil {
			return nil, err
		}
	}
	if paths.Explicit != "" {
		if err := mergeFile(v, paths.Explicit); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Data.Dir = expandHome(cfg.Data.Dir)
	cfg.Log.File = expandHome(cfg.Log.File)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newViper returns a viper instance with every default registered, so that
// environment overrides apply to all known keys.
func newViper() (*viper.Viper, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, DefaultConfig()); err != nil {
		return nil, err
	}
	defaults := viper.New()
	defaults.SetConfigType("yaml")
	if err := defaults.ReadConfig(&buf); err != nil {
		return nil, fmt.Errorf("failed to read defaults: %w", err)
	}

	v := viper.New()
	for _, key := range defaults.AllKeys() {
		v.SetDefault(key, defaults.Get(key))
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

func mergeFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	if err := v.MergeInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return nil
}

// Watch reloads the configuration whenever the file at path changes and
// passes the result to onChange. The watch lasts for the life of the
// process.
func Watch(paths Paths, path string, logger *slog.Logger, onChange func(*Config)) error {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cannot watch %s: %w", path, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := LoadFrom(paths)
		if err != nil {
			logger.Warn("config reload failed", "file", e.Name, "error", err)
			return
		}
		logger.Info("config reloaded", "file", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// GlobalDir returns ~/.tasksync.
func GlobalDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tasksync"
	}
	return filepath.Join(home, ".tasksync")
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(GlobalDir(), "config.yaml")
}

// ProjectConfigPath returns the path to the project config file.
func ProjectConfigPath() string {
	cwd, _ := os.Getwd()
	return filepath.Join(cwd, ".tasksync", "config.yaml")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
