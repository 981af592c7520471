package sync

import (
	"context"
	"fmt"

	apperrors "github.com/mschirtzinger/tasksync/internal/errors"
	"github.com/mschirtzinger/tasksync/internal/events"
	"github.com/mschirtzinger/tasksync/internal/schema"
)

// drain applies the queued operations in FIFO batches. Per-operation failures
// are recorded in res; only an authentication failure or cancellation aborts
// the drain.
func (e *Engine) drain(ctx context.Context, res *Result) error {
	ops, err := e.store.ListOperations()
	if err != nil {
		return fmt.Errorf("failed to list pending operations: %w", err)
	}
	if len(ops) == 0 {
		return nil
	}

	e.logger.Debug("draining queue", "operations", len(ops), "batch_size", e.config.BatchSize)

	// Tasks with an operation that failed this pass. Their later operations
	// wait so per-task order is preserved.
	held := make(map[string]bool)

	for start := 0; start < len(ops); start += e.config.BatchSize {
		if err := ctx.Err(); err != nil {
			return apperrors.Wrap(apperrors.ErrCancelled, "sync cancelled", err)
		}

		end := min(start+e.config.BatchSize, len(ops))
		for _, op := range ops[start:end] {
			if held[op.TaskID] {
				continue
			}
			if err := e.process(ctx, op, res, held); err != nil {
				return err
			}
		}
	}
	return nil
}

// process applies one operation and updates the queue accordingly.
func (e *Engine) process(ctx context.Context, op *schema.PendingOperation, res *Result, held map[string]bool) error {
	err := e.apply(ctx, op)
	switch {
	case err == nil:
		if rerr := e.store.RemoveOperation(op.ID); rerr != nil {
			return fmt.Errorf("failed to remove applied operation %s: %w", op.ID, rerr)
		}
		res.Synced++
		e.processed(op, events.OutcomeApplied, op.RetryCount, nil)
		return nil

	case apperrors.Is(err, apperrors.ErrAuth):
		// The client already tried a refresh; without credentials nothing
		// else in the queue can succeed either.
		return fmt.Errorf("operation %s rejected: %w", op.ID, err)

	case ctx.Err() != nil:
		return apperrors.Wrap(apperrors.ErrCancelled, "sync cancelled", ctx.Err())

	case !apperrors.IsRetryable(err):
		return e.drop(op, res, op.RetryCount, err)
	}

	count, ierr := e.store.IncrementRetry(op.ID, err.Error())
	if ierr != nil {
		return fmt.Errorf("failed to record retry for %s: %w", op.ID, ierr)
	}
	held[op.TaskID] = true
	if count >= e.config.MaxRetries {
		return e.drop(op, res, count, err)
	}

	e.logger.Info("operation will be retried", "op", op.ID, "kind", op.Kind, "task", op.TaskID, "retries", count, "error", err)
	e.processed(op, events.OutcomeRetry, count, err)
	return nil
}

// drop removes an operation that will never succeed.
func (e *Engine) drop(op *schema.PendingOperation, res *Result, retries int, cause error) error {
	if err := e.store.RemoveOperation(op.ID); err != nil {
		return fmt.Errorf("failed to drop operation %s: %w", op.ID, err)
	}
	res.Failed++
	e.logger.Error("operation permanently failed",
		"op", op.ID, "kind", op.Kind, "task", op.TaskID, "retries", retries, "error", cause)
	e.processed(op, events.OutcomeDropped, retries, cause)
	return nil
}

func (e *Engine) processed(op *schema.PendingOperation, outcome string, retries int, err error) {
	data := events.OperationData{
		OperationID: op.ID,
		TaskID:      op.TaskID,
		Kind:        string(op.Kind),
		Outcome:     outcome,
		RetryCount:  retries,
	}
	if err != nil {
		data.Error = err.Error()
	}
	e.bus.Publish(events.OperationProcessed, data)
}

// apply replays one operation against the remote API.
func (e *Engine) apply(ctx context.Context, op *schema.PendingOperation) error {
	switch op.Kind {
	case schema.OpCreate:
		_, err := e.api.CreateTask(ctx, op.Task)
		if apperrors.Is(err, apperrors.ErrConflict) {
			// A previous attempt reached the remote but its response was lost.
			return nil
		}
		return err

	case schema.OpUpdate:
		_, err := e.api.UpdateTask(ctx, op.TaskID, op.Patch)
		return err

	case schema.OpDelete:
		err := e.api.DeleteTask(ctx, op.TaskID)
		if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		return e.store.Remove(op.TaskID)

	default:
		return apperrors.New(apperrors.ErrValidation, fmt.Sprintf("unknown operation kind %q", op.Kind))
	}
}
