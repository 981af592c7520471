package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mschirtzinger/tasksync/internal/config"
	"github.com/mschirtzinger/tasksync/internal/dashboard"
)

// DaemonOptions configures RunDaemon.
type DaemonOptions struct {
	// Dashboard overrides config.Dashboard.Enabled when set
	Dashboard *bool

	// ConfigPaths are reloaded when WatchFile changes
	ConfigPaths config.Paths

	// WatchFile is the config file to watch; empty disables hot reload
	WatchFile string
}

// RunDaemon keeps the device in sync until ctx is cancelled: it watches
// connectivity, runs the sync scheduler, serves the dashboard and reloads
// the log level when the config file changes.
func (a *App) RunDaemon(ctx context.Context, opts DaemonOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	enabled := a.Config.Dashboard.Enabled
	if opts.Dashboard != nil {
		enabled = *opts.Dashboard
	}

	var dash *dashboard.Server
	if enabled {
		dash = dashboard.NewServer(&dashboard.Config{
			Addr:     a.Config.Dashboard.Addr,
			Gatherer: a.Registry,
			Status:   func() any { v, _ := a.Status(ctx); return v },
			Logger:   a.Logger,
		})
		handler := dashboard.NewHandler(dash, a.Logger)
		handler.SetOnline(a.Monitor.Online())
		defer handler.Attach(a.Bus)()
		if err := dash.Start(); err != nil {
			return err
		}
		defer func() {
			if err := dash.Stop(); err != nil {
				a.Logger.Warn("dashboard shutdown failed", "error", err)
			}
		}()
	}

	if opts.WatchFile != "" {
		err := config.Watch(opts.ConfigPaths, opts.WatchFile, a.Logger, func(cfg *config.Config) {
			a.SetLogLevel(cfg.Log.Level)
			if cfg.Sync != a.Config.Sync || cfg.Remote != a.Config.Remote {
				a.Logger.Warn("sync and remote settings apply after restart")
			}
		})
		if err != nil {
			a.Logger.Warn("config hot reload disabled", "error", err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.Monitor.Watch(ctx, a.Config.Remote.ProbeInterval)
	}()

	if err := a.Sync.Start(ctx); err != nil {
		cancel()
		wg.Wait()
		return fmt.Errorf("failed to start sync scheduler: %w", err)
	}

	if required, err := a.Migration.CheckRequired(); err == nil && required && a.Auth.Usable() {
		a.Logger.Info("local-only tasks found, run taskd migrate to upload them")
	}

	a.Logger.Info("daemon running", "remote", a.Config.Remote.URL, "dashboard", enabled)
	<-ctx.Done()

	a.Sync.Stop()
	wg.Wait()
	a.Logger.Info("daemon stopped")
	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}
