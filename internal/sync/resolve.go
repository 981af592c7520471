package sync

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	apperrors "github.com/mschirtzinger/tasksync/internal/errors"
	"github.com/mschirtzinger/tasksync/internal/schema"
)

// Conflicts returns the unresolved conflicts ordered by detection.
func (e *Engine) Conflicts() []*schema.Conflict {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*schema.Conflict, 0, len(e.conflicts))
	for _, c := range e.conflicts {
		cp := *c
		out = append(out, &cp)
	}
	slices.SortFunc(out, func(a, b *schema.Conflict) int {
		if n := a.DetectedAt.Compare(b.DetectedAt); n != 0 {
			return n
		}
		return cmp.Compare(a.TaskID, b.TaskID)
	})
	return out
}

// replaceConflicts swaps in the conflicts of the latest pass and returns
// the ones that were not known before.
func (e *Engine) replaceConflicts(conflicts []*schema.Conflict) []*schema.Conflict {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*schema.Conflict, len(conflicts))
	var fresh []*schema.Conflict
	for _, c := range conflicts {
		if prev, ok := e.conflicts[c.TaskID]; ok && prev.Kind == c.Kind {
			c.DetectedAt = prev.DetectedAt
		} else {
			fresh = append(fresh, c)
		}
		next[c.TaskID] = c
	}
	e.conflicts = next
	return fresh
}

// ResolveConflict applies the chosen side of the conflict on taskID.
//
// Choosing local makes the remote match the device: the local version is
// pushed (re-created when the remote deleted it) or, for delete_update, the
// remote task is deleted. Choosing remote makes the device match the remote:
// the remote version is stored locally, or the local copy is removed when
// the remote deleted it.
//
// Resolution shares the in-flight guard with Sync.
func (e *Engine) ResolveConflict(ctx context.Context, taskID string, choice schema.Resolution) error {
	if !choice.Valid() {
		return apperrors.New(apperrors.ErrValidation, fmt.Sprintf("resolution must be local or remote (got %q)", choice))
	}

	e.mu.Lock()
	c, ok := e.conflicts[taskID]
	e.mu.Unlock()
	if !ok {
		return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("no conflict for task %s", taskID))
	}

	if !e.inFlight.CompareAndSwap(false, true) {
		return apperrors.New(apperrors.ErrSyncInProgress, "sync in progress, resolve later")
	}
	defer e.inFlight.Store(false)

	var err error
	if choice == schema.ResolveLocal {
		err = e.keepLocal(ctx, c)
	} else {
		err = e.keepRemote(c)
	}
	if err != nil {
		return err
	}

	e.mu.Lock()
	delete(e.conflicts, taskID)
	e.mu.Unlock()

	e.logger.Info("conflict resolved", "task", taskID, "kind", c.Kind, "choice", choice)
	return nil
}

func (e *Engine) keepLocal(ctx context.Context, c *schema.Conflict) error {
	switch c.Kind {
	case schema.ConflictUpdate:
		local := e.currentLocal(c)
		_, err := e.api.UpdateTask(ctx, c.TaskID, schema.PatchFromTask(local))
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return e.recreate(ctx, local)
		}
		return err

	case schema.ConflictDelete:
		return e.recreate(ctx, e.currentLocal(c))

	case schema.ConflictDeleteUpdate:
		if err := e.api.DeleteTask(ctx, c.TaskID); err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		return e.dropQueued(c.TaskID)
	}
	return apperrors.New(apperrors.ErrInternal, fmt.Sprintf("unknown conflict kind %q", c.Kind))
}

func (e *Engine) keepRemote(c *schema.Conflict) error {
	switch c.Kind {
	case schema.ConflictUpdate, schema.ConflictDeleteUpdate:
		if err := e.dropQueued(c.TaskID); err != nil {
			return err
		}
		return e.pull(c.Remote)

	case schema.ConflictDelete:
		if err := e.dropQueued(c.TaskID); err != nil {
			return err
		}
		return e.store.Remove(c.TaskID)
	}
	return apperrors.New(apperrors.ErrInternal, fmt.Sprintf("unknown conflict kind %q", c.Kind))
}

// currentLocal prefers the stored task over the snapshot in the conflict so
// edits made after detection are pushed too.
func (e *Engine) currentLocal(c *schema.Conflict) *schema.Task {
	if t, err := e.store.Get(c.TaskID); err == nil {
		return t
	}
	return c.Local
}

func (e *Engine) recreate(ctx context.Context, t *schema.Task) error {
	if t == nil {
		return apperrors.New(apperrors.ErrNotFound, "local version no longer exists")
	}
	created, err := e.api.CreateTask(ctx, t)
	if err != nil {
		return err
	}
	return e.pull(created)
}

// dropQueued removes every queued operation for taskID.
func (e *Engine) dropQueued(taskID string) error {
	ops, err := e.store.ListOperations()
	if err != nil {
		return err
	}
	for _, op := range ops {
		if op.TaskID != taskID {
			continue
		}
		if err := e.store.RemoveOperation(op.ID); err != nil {
			return err
		}
	}
	return nil
}
