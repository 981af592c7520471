package migration

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/mschirtzinger/tasksync/internal/errors"
	"github.com/mschirtzinger/tasksync/internal/schema"
)

// outcome is what happened to one local task.
type outcome int

const (
	outcomeFailed  outcome = iota
	outcomeCreated         // created remotely, or already there under the same ID
	outcomeSkipped         // a different remote task matched the heuristic
)

// migrate walks tasks in batches. Per-item failures are counted; only
// cancellation or a failure to read the remote list aborts.
func (e *Engine) migrate(ctx context.Context, tasks []*schema.Task, report *Report) (map[string]outcome, error) {
	existing, err := e.api.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch remote tasks: %w", err)
	}

	outcomes := make(map[string]outcome, len(tasks))
	first := true

	for start := 0; start < len(tasks); start += e.config.BatchSize {
		if err := e.interrupted(ctx); err != nil {
			return outcomes, err
		}

		batch := tasks[start:min(start+e.config.BatchSize, len(tasks))]
		e.logger.Debug("migrating batch", "from", start, "size", len(batch))

		if e.config.Bulk {
			e.migrateBulk(ctx, batch, existing, outcomes, report)
			continue
		}

		for _, t := range batch {
			if o, dup := e.duplicate(t, existing); dup {
				e.record(t, o, nil, outcomes, report)
				continue
			}
			if !first {
				if err := sleep(ctx, e.config.ItemDelay); err != nil {
					return outcomes, apperrors.Wrap(apperrors.ErrCancelled, "migration interrupted", err)
				}
			}
			first = false

			_, err := e.api.CreateTask(ctx, uploadable(t))
			if apperrors.Is(err, apperrors.ErrConflict) {
				err = nil
			}
			if err != nil {
				e.record(t, outcomeFailed, err, outcomes, report)
				continue
			}
			e.record(t, outcomeCreated, nil, outcomes, report)
		}
	}

	// A cancel that arrived during the last batch still ends the run.
	if err := e.interrupted(ctx); err != nil {
		return outcomes, err
	}
	return outcomes, nil
}

func (e *Engine) migrateBulk(ctx context.Context, batch, existing []*schema.Task, outcomes map[string]outcome, report *Report) {
	var send []*schema.Task
	for _, t := range batch {
		if o, dup := e.duplicate(t, existing); dup {
			e.record(t, o, nil, outcomes, report)
			continue
		}
		send = append(send, uploadable(t))
	}
	if len(send) == 0 {
		return
	}

	res, err := e.api.BulkCreate(ctx, send)
	if err != nil {
		for _, t := range send {
			e.record(t, outcomeFailed, err, outcomes, report)
		}
		return
	}

	failed := make(map[string]string, len(res.Failed))
	for _, f := range res.Failed {
		if f.Code == string(apperrors.ErrConflict) {
			continue
		}
		failed[f.ID] = f.Error
	}
	for _, t := range send {
		if msg, ok := failed[t.ID]; ok {
			e.record(t, outcomeFailed, fmt.Errorf("%s", msg), outcomes, report)
			continue
		}
		e.record(t, outcomeCreated, nil, outcomes, report)
	}
}

// duplicate reports whether t already exists remotely: by ID always, and by
// title plus creation time within the window when the heuristic is enabled.
func (e *Engine) duplicate(t *schema.Task, existing []*schema.Task) (outcome, bool) {
	for _, r := range existing {
		if r.ID == t.ID {
			return outcomeCreated, true
		}
	}
	if !e.config.SkipDuplicates {
		return 0, false
	}
	for _, r := range existing {
		if r.Title != t.Title {
			continue
		}
		if d := r.CreatedAt.Sub(t.CreatedAt).Abs(); d <= e.config.DuplicateWindow {
			return outcomeSkipped, true
		}
	}
	return 0, false
}

func (e *Engine) record(t *schema.Task, o outcome, err error, outcomes map[string]outcome, report *Report) {
	outcomes[t.ID] = o
	report.Processed++
	switch o {
	case outcomeCreated:
		report.Migrated++
	case outcomeSkipped:
		report.Skipped++
		e.logger.Info("skipping duplicate", "task", t.ID, "title", t.Title)
	case outcomeFailed:
		report.Errors++
		e.logger.Warn("failed to migrate task", "task", t.ID, "error", err)
	}
	e.progress()
}

func (e *Engine) interrupted(ctx context.Context) error {
	if e.cancelled.Load() {
		return apperrors.New(apperrors.ErrCancelled, CancelledMessage)
	}
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.ErrCancelled, "migration interrupted", err)
	}
	return nil
}

// cleanup persists the completion flag first, then settles the local copies:
// created tasks are attached to the account (or removed when local data is
// not preserved), heuristic duplicates are removed, and failed items are
// handed to the pending-operation queue.
func (e *Engine) cleanup(tasks []*schema.Task, outcomes map[string]outcome, ownerID string) error {
	if err := e.store.MarkMigrationComplete(e.now()); err != nil {
		return fmt.Errorf("failed to persist completion flag: %w", err)
	}

	for _, t := range tasks {
		var err error
		switch outcomes[t.ID] {
		case outcomeCreated:
			if e.config.PreserveLocal {
				err = e.store.Upsert(attached(t, ownerID))
			} else {
				err = e.store.Remove(t.ID)
			}
		case outcomeSkipped:
			err = e.store.Remove(t.ID)
		case outcomeFailed:
			a := attached(t, ownerID)
			if err = e.store.Upsert(a); err == nil {
				err = e.syncer.Enqueue(schema.NewCreateOperation(a, e.now()))
			}
		}
		if err != nil {
			e.logger.Warn("cleanup failed for task", "task", t.ID, "error", err)
		}
	}
	return nil
}

// uploadable is the copy of a local task sent to the remote service.
func uploadable(t *schema.Task) *schema.Task {
	c := t.Clone()
	c.LocalOnly = false
	return c
}

func attached(t *schema.Task, ownerID string) *schema.Task {
	c := t.Clone()
	c.LocalOnly = false
	c.OwnerID = ownerID
	return c
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
