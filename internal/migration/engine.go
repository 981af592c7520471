// Package migration moves tasks created without an account (local-only
// tasks) to the remote service exactly once.
//
// A run walks the stages
//
//	checking -> preparing -> authenticating -> migrating -> syncing -> cleanup -> complete
//
// and any stage may end in error. The completion flag is written to the store
// during cleanup; until it exists a later check reports migration as still
// required, so a failed or cancelled run can simply be repeated. Items already
// created by an earlier run are recognized by ID (and, when enabled, by title
// and creation time) and are not created twice.
package migration

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/mschirtzinger/tasksync/internal/errors"
	"github.com/mschirtzinger/tasksync/internal/events"
	"github.com/mschirtzinger/tasksync/internal/remote"
	"github.com/mschirtzinger/tasksync/internal/schema"
	"github.com/mschirtzinger/tasksync/internal/store"
	tsync "github.com/mschirtzinger/tasksync/internal/sync"
)

// Syncer is the part of the sync engine migration uses.
type Syncer interface {
	Sync(ctx context.Context) (*tsync.Result, error)
	Enqueue(op *schema.PendingOperation) error
}

// Config holds configuration for the engine.
type Config struct {
	// BatchSize is the number of tasks per batch (default: 5)
	BatchSize int

	// ItemDelay separates consecutive remote creations (default: 100ms)
	ItemDelay time.Duration

	// SkipDuplicates enables the title and creation-time heuristic
	SkipDuplicates bool

	// DuplicateWindow is the creation-time tolerance of the heuristic (default: 1m)
	DuplicateWindow time.Duration

	// PreserveLocal keeps migrated tasks on the device, attached to the
	// account. When false they are removed and come back from the remote on
	// the next sync.
	PreserveLocal bool

	// Bulk sends each batch through the bulk-create endpoint
	Bulk bool

	// Bus receives lifecycle events (default: private bus)
	Bus *events.Bus

	// Logger for migration activity
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:       5,
		ItemDelay:       100 * time.Millisecond,
		SkipDuplicates:  true,
		DuplicateWindow: time.Minute,
		PreserveLocal:   true,
		Logger:          slog.Default(),
	}
}

// Engine runs the migration state machine.
type Engine struct {
	store  *store.Store
	api    remote.API
	auth   remote.Authenticator
	syncer Syncer
	config *Config
	bus    *events.Bus
	logger *slog.Logger
	now    func() time.Time

	running   atomic.Bool
	cancelled atomic.Bool

	mu    sync.Mutex
	state State
}

// New creates a migration engine.
func New(st *store.Store, api remote.API, auth remote.Authenticator, syncer Syncer, config *Config) (*Engine, error) {
	if st == nil || api == nil || auth == nil || syncer == nil {
		return nil, fmt.Errorf("store, api, auth and syncer are required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	cfg := *config
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.ItemDelay < 0 {
		cfg.ItemDelay = 0
	}
	if cfg.DuplicateWindow <= 0 {
		cfg.DuplicateWindow = time.Minute
	}
	if cfg.Bus == nil {
		cfg.Bus = events.NewBus()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Engine{
		store:  st,
		api:    api,
		auth:   auth,
		syncer: syncer,
		config: &cfg,
		bus:    cfg.Bus,
		logger: cfg.Logger.With("component", "migration"),
		now:    time.Now,
		state:  State{Stage: StageIdle},
	}, nil
}

// Status returns a snapshot of the state.
func (e *Engine) Status() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// CheckRequired reports whether migration is needed: at least one local-only
// task exists, the session is not a full account, and no completion flag is
// stored.
func (e *Engine) CheckRequired() (bool, error) {
	required, err := e.required()
	if err != nil {
		return false, err
	}

	e.mu.Lock()
	e.state.Required = required
	if !required {
		done, _, _ := e.store.MigrationStatus()
		e.state.Completed = done
	}
	e.mu.Unlock()
	return required, nil
}

func (e *Engine) required() (bool, error) {
	done, _, err := e.store.MigrationStatus()
	if err != nil {
		return false, fmt.Errorf("failed to read migration flag: %w", err)
	}
	if done {
		return false, nil
	}
	if sess := e.auth.Session(); sess.IsAccount(e.now()) {
		return false, nil
	}
	local, err := e.store.LocalOnly()
	if err != nil {
		return false, fmt.Errorf("failed to read local tasks: %w", err)
	}
	return len(local) > 0, nil
}

// Cancel stops a run that is in the migrating stage. Items already sent are
// not rolled back; no new batch starts.
func (e *Engine) Cancel() error {
	e.mu.Lock()
	stage := e.state.Stage
	if stage != StageMigrating {
		e.mu.Unlock()
		return apperrors.New(apperrors.ErrValidation, fmt.Sprintf("migration cannot be cancelled while %s", stage))
	}
	// Set under mu so Run cannot leave migrating between the check and the flag.
	e.cancelled.Store(true)
	e.mu.Unlock()

	e.enterError(apperrors.New(apperrors.ErrCancelled, CancelledMessage))
	return nil
}

// Run executes one migration. When migration is not required it returns a
// report with Required=false and leaves the machine idle.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, apperrors.New(apperrors.ErrConflict, "migration already running")
	}
	defer e.running.Store(false)
	e.cancelled.Store(false)

	start := e.now()
	e.mu.Lock()
	e.state = State{Stage: e.state.Stage, StartedAt: start}
	e.mu.Unlock()

	e.setStage(StageChecking)
	required, err := e.CheckRequired()
	if err != nil {
		return nil, e.enterError(err)
	}
	if !required {
		e.setStage(StageIdle)
		e.logger.Info("migration not required")
		return &Report{Required: false}, nil
	}

	e.setStage(StagePreparing)
	tasks, err := e.store.LocalOnly()
	if err != nil {
		return nil, e.enterError(fmt.Errorf("failed to read local tasks: %w", err))
	}
	e.mu.Lock()
	e.state.InProgress = true
	e.state.Total = len(tasks)
	e.mu.Unlock()

	e.setStage(StageAuthenticating)
	sess, err := e.ensureSession(ctx)
	if err != nil {
		return nil, e.enterError(apperrors.Wrap(apperrors.ErrAuth, "could not obtain a session", err))
	}

	e.setStage(StageMigrating)
	report := &Report{Required: true, Total: len(tasks)}
	outcomes, err := e.migrate(ctx, tasks, report)
	if err != nil {
		return report, e.enterError(err)
	}

	if err := e.leaveMigrating(); err != nil {
		return report, e.enterError(err)
	}
	if _, err := e.syncer.Sync(ctx); err != nil {
		e.logger.Warn("post-migration sync failed", "error", err)
	}

	e.setStage(StageCleanup)
	if err := e.cleanup(tasks, outcomes, sess.UserID); err != nil {
		return report, e.enterError(err)
	}

	report.Duration = e.now().Sub(start)
	e.mu.Lock()
	e.state.InProgress = false
	e.state.Completed = true
	e.state.Required = false
	e.mu.Unlock()
	e.setStage(StageComplete)

	e.bus.Publish(events.MigrationComplete, events.MigrationResultData{
		Migrated: report.Migrated,
		Skipped:  report.Skipped,
		Errors:   report.Errors,
		Duration: report.Duration,
	})
	e.logger.Info("migration complete",
		"migrated", report.Migrated,
		"skipped", report.Skipped,
		"errors", report.Errors,
		"duration", report.Duration)
	return report, nil
}

// ensureSession returns a usable session, refreshing or requesting a guest
// session as needed.
func (e *Engine) ensureSession(ctx context.Context) (*schema.Session, error) {
	sess := e.auth.Session()
	if sess.Valid(e.now()) {
		return sess, nil
	}
	if sess != nil && sess.RefreshToken != "" {
		fresh, err := e.auth.Refresh(ctx)
		if err == nil {
			return fresh, nil
		}
		e.logger.Info("session refresh failed, requesting guest session", "error", err)
	}
	return e.auth.GuestSession(ctx)
}

func (e *Engine) setStage(next Stage) {
	e.mu.Lock()
	prev := e.state.Stage
	e.state.Stage = next
	e.mu.Unlock()

	if prev == next {
		return
	}
	e.logger.Debug("migration stage", "from", prev, "to", next)
	e.bus.Publish(events.MigrationStage, events.StageData{From: string(prev), To: string(next)})
}

// leaveMigrating moves from migrating to syncing unless Cancel got there
// first.
func (e *Engine) leaveMigrating() error {
	e.mu.Lock()
	if e.cancelled.Load() || e.state.Stage != StageMigrating {
		e.mu.Unlock()
		return apperrors.New(apperrors.ErrCancelled, CancelledMessage)
	}
	e.state.Stage = StageSyncing
	e.mu.Unlock()

	e.bus.Publish(events.MigrationStage, events.StageData{From: string(StageMigrating), To: string(StageSyncing)})
	return nil
}

// enterError moves the machine to the error stage. The completion flag is
// left untouched.
func (e *Engine) enterError(err error) error {
	e.mu.Lock()
	already := e.state.Stage == StageError
	prev := e.state.Stage
	e.state.Stage = StageError
	e.state.InProgress = false
	if !already {
		e.state.LastError = errorMessage(err)
	}
	e.mu.Unlock()

	if already {
		return err
	}
	e.logger.Error("migration failed", "stage", prev, "error", err)
	e.bus.Publish(events.MigrationStage, events.StageData{From: string(prev), To: string(StageError)})
	e.bus.Publish(events.MigrationError, events.MigrationErrorData{Stage: string(prev), Message: errorMessage(err)})
	return err
}

// errorMessage drops the code prefix from coded errors.
func errorMessage(err error) string {
	var appErr *apperrors.AppError
	if !stderrors.As(err, &appErr) {
		return err.Error()
	}
	if appErr.Err != nil {
		return fmt.Sprintf("%s: %v", appErr.Message, appErr.Err)
	}
	return appErr.Message
}

func (e *Engine) progress() {
	e.mu.Lock()
	e.state.Migrated++
	data := events.ProgressData{Total: e.state.Total, Migrated: e.state.Migrated}
	e.mu.Unlock()

	e.bus.Publish(events.MigrationProgress, data)
}
