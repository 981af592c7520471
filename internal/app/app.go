// Package app wires the tasksync components together. Commands build one App
// per invocation; the daemon keeps one alive and runs its background loops.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/mschirtzinger/tasksync/internal/config"
	"github.com/mschirtzinger/tasksync/internal/connectivity"
	"github.com/mschirtzinger/tasksync/internal/events"
	"github.com/mschirtzinger/tasksync/internal/logging"
	"github.com/mschirtzinger/tasksync/internal/metrics"
	"github.com/mschirtzinger/tasksync/internal/migration"
	"github.com/mschirtzinger/tasksync/internal/remote"
	"github.com/mschirtzinger/tasksync/internal/storage"
	"github.com/mschirtzinger/tasksync/internal/store"
	tsync "github.com/mschirtzinger/tasksync/internal/sync"
)

// Options adjusts how New builds an App.
type Options struct {
	// Logger overrides the logger built from the config
	Logger *slog.Logger
}

// App holds the wired components.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Bus       *events.Bus
	Store     *store.Store
	Auth      *remote.Auth
	Client    *remote.Client
	Monitor   *connectivity.Monitor
	Sync      *tsync.Engine
	Migration *migration.Engine
	Tasks     *storage.Facade
	Metrics   *metrics.Metrics
	Registry  *prometheus.Registry

	level     *slog.LevelVar
	logCloser io.Closer
}

// New opens the local store and builds every component. Nothing touches the
// network until a component is used.
func New(cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	a := &App{Config: cfg, Bus: events.NewBus()}

	if opts.Logger != nil {
		a.Logger = opts.Logger
	} else {
		a.Logger, a.level, a.logCloser = logging.New(cfg.Log)
	}

	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := store.OpenWithOptions(cfg.DBPath(), store.Options{MaxBytes: cfg.Data.MaxBytes})
	if err != nil {
		return nil, err
	}
	a.Store = st

	if err := a.wire(); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire() error {
	cfg := a.Config

	rcfg := remote.DefaultConfig(cfg.Remote.URL)
	rcfg.RequestTimeout = cfg.Remote.RequestTimeout
	rcfg.MaxRetries = uint64(max(cfg.Remote.MaxRetries, 0))
	rcfg.Logger = a.Logger

	auth, err := remote.NewAuth(rcfg, a.Store)
	if err != nil {
		return err
	}
	client, err := remote.NewClient(rcfg, auth)
	if err != nil {
		return err
	}
	a.Auth, a.Client = auth, client

	monitor, err := connectivity.New(&connectivity.Config{
		Checker:      client,
		ProbeTimeout: cfg.Remote.ProbeTimeout,
		Bus:          a.Bus,
		Logger:       a.Logger,
	})
	if err != nil {
		return err
	}
	a.Monitor = monitor

	engine, err := tsync.New(a.Store, client, monitor, &tsync.Config{
		BatchSize:       cfg.Sync.BatchSize,
		MaxRetries:      cfg.Sync.MaxRetries,
		Interval:        cfg.Sync.Interval,
		OnlineDebounce:  cfg.Sync.OnlineDebounce,
		EnqueueDebounce: cfg.Sync.EnqueueDebounce,
		WatchStore:      true,
		Authorized:      auth.Usable,
		SessionID:       a.sessionID,
		Bus:             a.Bus,
		Logger:          a.Logger,
	})
	if err != nil {
		return err
	}
	a.Sync = engine

	mig, err := migration.New(a.Store, client, auth, engine, &migration.Config{
		BatchSize:       cfg.Migration.BatchSize,
		ItemDelay:       cfg.Migration.ItemDelay,
		SkipDuplicates:  cfg.Migration.SkipDuplicates,
		DuplicateWindow: cfg.Migration.DuplicateWindow,
		PreserveLocal:   cfg.Migration.PreserveLocal,
		Bulk:            cfg.Migration.Bulk,
		Bus:             a.Bus,
		Logger:          a.Logger,
	})
	if err != nil {
		return err
	}
	a.Migration = mig

	tasks, err := storage.New(a.Store, client, auth, monitor, engine, a.Logger)
	if err != nil {
		return err
	}
	a.Tasks = tasks

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(a.Registry, a.pendingGauge)
	if err != nil {
		return err
	}
	m.Attach(a.Bus)
	a.Metrics = m
	return nil
}

// Connect probes the remote service when a session exists so that the
// facade knows whether to call it directly. Without a session nothing is
// sent. The probe result is returned for callers that want to report it.
func (a *App) Connect(ctx context.Context) error {
	if !a.Auth.Usable() {
		return nil
	}
	err := a.Monitor.Probe(ctx)
	a.Monitor.SetOnline(err == nil)
	a.Metrics.SetOnline(err == nil)
	return err
}

// SetLogLevel changes the level of the config-built logger.
func (a *App) SetLogLevel(level string) {
	if a.level != nil {
		a.level.Set(logging.ParseLevel(level))
	}
}

// Close stops background work and releases the store.
func (a *App) Close() error {
	if a.Sync != nil {
		a.Sync.Stop()
	}
	var errs []error
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.logCloser != nil {
		errs = append(errs, a.logCloser.Close())
	}
	return errors.Join(errs...)
}

func (a *App) sessionID() string {
	if sess := a.Auth.Session(); sess != nil {
		return sess.UserID
	}
	return ""
}

func (a *App) pendingGauge() float64 {
	n, err := a.Store.PendingCount()
	if err != nil {
		return 0
	}
	return float64(n)
}
