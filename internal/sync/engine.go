package sync

import (
	"context"
	"fmt"
	"log/slog"
	stdsync "sync"
	"sync/atomic"
	"time"

	apperrors "github.com/mschirtzinger/tasksync/internal/errors"
	"github.com/mschirtzinger/tasksync/internal/events"
	"github.com/mschirtzinger/tasksync/internal/remote"
	"github.com/mschirtzinger/tasksync/internal/schema"
	"github.com/mschirtzinger/tasksync/internal/store"
)

// Config holds configuration for the engine.
type Config struct {
	// BatchSize is the number of queued operations applied per batch (default: 10)
	BatchSize int

	// MaxRetries drops an operation once its retry counter reaches it (default: 3)
	MaxRetries int

	// Interval between scheduled passes while online (default: 30s)
	Interval time.Duration

	// OnlineDebounce delays the pass after an offline-to-online transition (default: 1s)
	OnlineDebounce time.Duration

	// EnqueueDebounce delays the pass after an enqueue while online (default: 500ms)
	EnqueueDebounce time.Duration

	// WatchStore makes the scheduler watch the store file so operations
	// queued by other processes are pushed without waiting for Interval.
	WatchStore bool

	// Authorized reports whether a usable session exists. Scheduled passes
	// are skipped while it returns false. Nil means always authorized.
	Authorized func() bool

	// SessionID returns the owner recorded in sync metadata.
	SessionID func() string

	// Bus receives lifecycle events (default: private bus)
	Bus *events.Bus

	// Logger for engine activity
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:       10,
		MaxRetries:      3,
		Interval:        30 * time.Second,
		OnlineDebounce:  time.Second,
		EnqueueDebounce: 500 * time.Millisecond,
		Logger:          slog.Default(),
	}
}

func (c *Config) withDefaults() *Config {
	out := *DefaultConfig()
	if c == nil {
		return &out
	}
	cfg := *c
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = out.BatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = out.MaxRetries
	}
	if cfg.Interval <= 0 {
		cfg.Interval = out.Interval
	}
	if cfg.OnlineDebounce <= 0 {
		cfg.OnlineDebounce = out.OnlineDebounce
	}
	if cfg.EnqueueDebounce <= 0 {
		cfg.EnqueueDebounce = out.EnqueueDebounce
	}
	if cfg.Logger == nil {
		cfg.Logger = out.Logger
	}
	if cfg.Bus == nil {
		cfg.Bus = events.NewBus()
	}
	return &cfg
}

// Result summarizes one sync pass.
type Result struct {
	Success     bool
	Synced      int // operations applied remotely
	Failed      int // operations dropped permanently
	Pulled      int // remote tasks inserted or overwritten locally
	Conflicts   []*schema.Conflict
	CompletedAt time.Time
	Duration    time.Duration
	Err         error
}

// Status is a snapshot of the engine state.
type Status struct {
	Syncing    bool
	Running    bool // scheduler started
	Failures   int  // consecutive failed passes
	LastError  string
	LastResult *Result
}

// Engine drains the pending-operation queue and merges remote state.
type Engine struct {
	store  *store.Store
	api    remote.API
	conn   Connectivity
	config *Config
	bus    *events.Bus
	logger *slog.Logger
	now    func() time.Time

	inFlight atomic.Bool

	mu         stdsync.Mutex
	conflicts  map[string]*schema.Conflict
	failures   int
	lastErr    error
	lastResult *Result

	sched scheduler
}

// New creates an engine.
//
// Example:
//
//	engine, err := sync.New(st, client, monitor, nil)
//	if err != nil {
//	    return err
//	}
//	result, err := engine.Sync(ctx)
func New(st *store.Store, api remote.API, conn Connectivity, config *Config) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if api == nil {
		return nil, fmt.Errorf("remote api cannot be nil")
	}
	if conn == nil {
		return nil, fmt.Errorf("connectivity cannot be nil")
	}

	cfg := config.withDefaults()
	return &Engine{
		store:     st,
		api:       api,
		conn:      conn,
		config:    cfg,
		bus:       cfg.Bus,
		logger:    cfg.Logger.With("component", "sync"),
		now:       time.Now,
		conflicts: make(map[string]*schema.Conflict),
	}, nil
}

// Bus returns the bus the engine publishes to.
func (e *Engine) Bus() *events.Bus {
	return e.bus
}

// Sync runs one pass. See the package documentation for the steps.
func (e *Engine) Sync(ctx context.Context) (*Result, error) {
	if !e.inFlight.CompareAndSwap(false, true) {
		return nil, apperrors.New(apperrors.ErrSyncInProgress, "sync already in progress")
	}
	defer e.inFlight.Store(false)

	start := e.now()
	e.bus.Publish(events.SyncStarted, nil)
	e.logger.Debug("sync started")

	if err := e.conn.Probe(ctx); err != nil {
		return e.fail(start, &Result{}, apperrors.Wrap(apperrors.ErrUnreachable, "remote service unreachable", err))
	}

	remoteTasks, err := e.api.ListTasks(ctx)
	if err != nil {
		return e.fail(start, &Result{}, fmt.Errorf("failed to fetch remote tasks: %w", err))
	}

	res := &Result{}
	if err := e.drain(ctx, res); err != nil {
		return e.fail(start, res, err)
	}

	if res.Synced > 0 {
		remoteTasks, err = e.api.ListTasks(ctx)
		if err != nil {
			return e.fail(start, res, fmt.Errorf("failed to refetch remote tasks: %w", err))
		}
	}

	conflicts, pulled, err := e.merge(remoteTasks)
	if err != nil {
		return e.fail(start, res, fmt.Errorf("merge failed: %w", err))
	}
	res.Conflicts = conflicts
	res.Pulled = pulled

	meta := &schema.SyncMetadata{LastSyncAt: schema.Timestamp(e.now())}
	if e.config.SessionID != nil {
		meta.SessionID = e.config.SessionID()
	}
	if err := e.store.WriteSyncMetadata(meta); err != nil {
		return e.fail(start, res, fmt.Errorf("failed to write sync metadata: %w", err))
	}

	res.Success = true
	res.CompletedAt = meta.LastSyncAt
	res.Duration = e.now().Sub(start)

	fresh := e.replaceConflicts(conflicts)

	e.mu.Lock()
	e.failures = 0
	e.lastErr = nil
	e.lastResult = res
	e.mu.Unlock()

	for _, c := range fresh {
		e.bus.Publish(events.SyncConflict, events.ConflictData{TaskID: c.TaskID, Kind: string(c.Kind), Title: c.Title()})
	}
	e.bus.Publish(events.SyncSucceeded, events.SyncData{
		Synced:    res.Synced,
		Failed:    res.Failed,
		Conflicts: len(res.Conflicts),
		Duration:  res.Duration,
	})
	e.logger.Info("sync complete",
		"synced", res.Synced,
		"failed", res.Failed,
		"pulled", res.Pulled,
		"conflicts", len(res.Conflicts),
		"duration", res.Duration)
	return res, nil
}

// fail records a pass-level failure and reports it once.
func (e *Engine) fail(start time.Time, res *Result, err error) (*Result, error) {
	res.Success = false
	res.Err = err
	res.CompletedAt = schema.Timestamp(e.now())
	res.Duration = e.now().Sub(start)

	e.mu.Lock()
	e.failures++
	failures := e.failures
	e.lastErr = err
	e.lastResult = res
	e.mu.Unlock()

	e.bus.Publish(events.SyncFailed, events.SyncData{
		Synced:   res.Synced,
		Failed:   res.Failed,
		Duration: res.Duration,
		Error:    err.Error(),
	})
	e.logger.Warn("sync failed", "error", err, "consecutive_failures", failures)
	return res, err
}

// Enqueue stores op in the pending-operation queue and, when the scheduler
// is running and the device is online, schedules a pass shortly after.
func (e *Engine) Enqueue(op *schema.PendingOperation) error {
	if err := e.store.EnqueueOperation(op); err != nil {
		return err
	}

	e.bus.Publish(events.OperationEnqueued, events.OperationData{
		OperationID: op.ID,
		TaskID:      op.TaskID,
		Kind:        string(op.Kind),
	})
	e.logger.Debug("operation enqueued", "op", op.ID, "kind", op.Kind, "task", op.TaskID)

	if e.conn.Online() {
		e.sched.kick(e.config.EnqueueDebounce)
	}
	return nil
}

// Syncing reports whether a pass is in flight.
func (e *Engine) Syncing() bool {
	return e.inFlight.Load()
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		Syncing:    e.inFlight.Load(),
		Running:    e.sched.running(),
		Failures:   e.failures,
		LastResult: e.lastResult,
	}
	if e.lastErr != nil {
		st.LastError = e.lastErr.Error()
	}
	return st
}
