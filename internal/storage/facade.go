// Package storage is the single entry point application code uses to read
// and change tasks.
//
// Every mutation is applied to the local store first, so callers always get
// an immediate result. When a session is usable and the device is online the
// facade also performs the remote call synchronously and stores the
// authoritative response. A failed remote call turns into a pending
// operation and an optimistic result, except validation failures, which are
// returned at once and never queued.
//
// Tasks created without any session are local-only. They never touch the
// remote service until migration attaches them to an account.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/mschirtzinger/tasksync/internal/errors"
	"github.com/mschirtzinger/tasksync/internal/remote"
	"github.com/mschirtzinger/tasksync/internal/schema"
	"github.com/mschirtzinger/tasksync/internal/store"
)

// Sessions reports the current remote session.
type Sessions interface {
	Session() *schema.Session
	Usable() bool
}

// Connectivity reports the best-known online state.
type Connectivity interface {
	Online() bool
}

// Queue accepts pending operations. The sync engine implements it.
type Queue interface {
	Enqueue(op *schema.PendingOperation) error
}

// Result describes the outcome of a facade call.
type Result struct {
	Success bool
	// Task is the resulting task; for Delete, the task that was deleted.
	Task *schema.Task
	// Optimistic is true when the remote has not confirmed the change yet.
	Optimistic bool
	// OperationID identifies the queued operation, if one was queued.
	OperationID string
	// RemoteErr is the remote failure that made the result optimistic.
	RemoteErr error
}

// Facade coordinates the local store, the remote API and the queue.
type Facade struct {
	store    *store.Store
	api      remote.API
	sessions Sessions
	conn     Connectivity
	queue    Queue
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a facade. A nil logger uses slog.Default().
func New(st *store.Store, api remote.API, sessions Sessions, conn Connectivity, queue Queue, logger *slog.Logger) (*Facade, error) {
	if st == nil || api == nil || sessions == nil || conn == nil || queue == nil {
		return nil, fmt.Errorf("store, api, sessions, connectivity and queue are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Facade{
		store:    st,
		api:      api,
		sessions: sessions,
		conn:     conn,
		queue:    queue,
		logger:   logger.With("component", "storage"),
		now:      time.Now,
	}, nil
}

// List returns every task in the local store.
func (f *Facade) List() ([]*schema.Task, error) {
	return f.store.All()
}

// Get returns one task from the local store.
func (f *Facade) Get(id string) (*schema.Task, error) {
	return f.store.Get(id)
}

// Create stores a new task. Without a session the task is local-only.
func (f *Facade) Create(ctx context.Context, fields schema.TaskFields) (*Result, error) {
	sess := f.sessions.Session()
	owner, localOnly := schema.LocalOwnerID, true
	if sess != nil {
		owner, localOnly = sess.UserID, false
	}

	task, err := schema.NewTask(fields, owner, localOnly, f.now())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "invalid task", err)
	}
	if err := f.store.Upsert(task); err != nil {
		return nil, err
	}
	if localOnly {
		return &Result{Success: true, Task: task}, nil
	}

	op := schema.NewCreateOperation(task, f.now())
	if !f.direct() {
		return f.enqueue(op, task, nil)
	}

	created, err := f.api.CreateTask(ctx, task)
	if apperrors.Is(err, apperrors.ErrConflict) {
		return &Result{Success: true, Task: task}, nil
	}
	if err != nil {
		return f.remoteFailed(op, task, err, func() error { return f.store.Remove(task.ID) })
	}
	return f.confirmed(created)
}

// Update applies patch to the task with the given ID.
func (f *Facade) Update(ctx context.Context, id string, patch *schema.TaskPatch) (*Result, error) {
	if patch == nil || patch.IsEmpty() {
		return nil, apperrors.New(apperrors.ErrValidation, "nothing to update")
	}

	cur, err := f.store.Get(id)
	if err != nil {
		return nil, err
	}
	next, err := patch.Apply(cur, f.now())
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "invalid update", err)
	}
	if err := f.store.Upsert(next); err != nil {
		return nil, err
	}
	if cur.LocalOnly {
		return &Result{Success: true, Task: next}, nil
	}

	// The remote stores the same ordering timestamp the device holds.
	rp := *patch
	updated := next.UpdatedAt
	rp.UpdatedAt = &updated
	op := schema.NewUpdateOperation(id, &rp, f.now())

	queued, err := f.hasPending(id)
	if err != nil {
		return nil, err
	}
	if queued || !f.direct() {
		return f.enqueue(op, next, nil)
	}

	stored, err := f.api.UpdateTask(ctx, id, &rp)
	if err != nil {
		return f.remoteFailed(op, next, err, func() error { return f.store.Upsert(cur) })
	}
	return f.confirmed(stored)
}

// ToggleCompletion flips the completion flag.
func (f *Facade) ToggleCompletion(ctx context.Context, id string) (*Result, error) {
	cur, err := f.store.Get(id)
	if err != nil {
		return nil, err
	}
	done := !cur.Completed
	return f.Update(ctx, id, &schema.TaskPatch{Completed: &done})
}

// Delete removes the task with the given ID. If the remote delete fails the
// local record is restored before the retry is queued.
func (f *Facade) Delete(ctx context.Context, id string) (*Result, error) {
	cur, err := f.store.Get(id)
	if err != nil {
		return nil, err
	}
	if err := f.store.Remove(id); err != nil {
		return nil, err
	}
	if cur.LocalOnly {
		return &Result{Success: true, Task: cur}, nil
	}

	op := schema.NewDeleteOperation(id, f.now())

	queued, err := f.hasPending(id)
	if err != nil {
		return nil, err
	}
	if queued || !f.direct() {
		return f.enqueue(op, cur, nil)
	}

	err = f.api.DeleteTask(ctx, id)
	if err == nil || apperrors.Is(err, apperrors.ErrNotFound) {
		return &Result{Success: true, Task: cur}, nil
	}

	if rerr := f.store.Upsert(cur); rerr != nil {
		return nil, fmt.Errorf("failed to restore task %s after remote delete failed: %w", id, rerr)
	}
	return f.remoteFailed(op, cur, err, func() error { return nil })
}

// direct reports whether a synchronous remote call should be attempted.
func (f *Facade) direct() bool {
	return f.sessions.Usable() && f.conn.Online()
}

func (f *Facade) hasPending(taskID string) (bool, error) {
	ops, err := f.store.ListOperations()
	if err != nil {
		return false, err
	}
	for _, op := range ops {
		if op.TaskID == taskID {
			return true, nil
		}
	}
	return false, nil
}

// enqueue queues op and returns an optimistic result.
func (f *Facade) enqueue(op *schema.PendingOperation, task *schema.Task, cause error) (*Result, error) {
	if err := f.queue.Enqueue(op); err != nil {
		return nil, fmt.Errorf("failed to queue %s: %w", op.Kind, err)
	}
	if cause != nil {
		f.logger.Info("remote call failed, queued for sync", "op", op.ID, "kind", op.Kind, "task", op.TaskID, "error", cause)
	}
	return &Result{
		Success:     true,
		Task:        task,
		Optimistic:  true,
		OperationID: op.ID,
		RemoteErr:   cause,
	}, nil
}

// remoteFailed classifies a failed synchronous call. A validation rejection
// rolls the local change back and is returned. Anything else is queued so the
// sync engine retries it or drops it once it runs out of attempts.
func (f *Facade) remoteFailed(op *schema.PendingOperation, task *schema.Task, err error, rollback func() error) (*Result, error) {
	if apperrors.Is(err, apperrors.ErrValidation) {
		if rerr := rollback(); rerr != nil {
			f.logger.Error("rollback failed", "task", op.TaskID, "error", rerr)
		}
		return nil, err
	}
	if !queueable(err) {
		f.logger.Warn("remote rejected change", "op", op.Kind, "task", op.TaskID, "error", err)
	}
	return f.enqueue(op, task, err)
}

// confirmed stores the authoritative remote version.
func (f *Facade) confirmed(remoteTask *schema.Task) (*Result, error) {
	t := remoteTask.Clone()
	t.LocalOnly = false
	if err := f.store.Upsert(t); err != nil {
		return nil, err
	}
	return &Result{Success: true, Task: t}, nil
}

func queueable(err error) bool {
	return apperrors.IsRetryable(err) || apperrors.Is(err, apperrors.ErrAuth)
}
