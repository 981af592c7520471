package sync

import (
	"fmt"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

// merge reconciles the remote list with the store. It returns the conflicts
// found and the number of tasks pulled into the store.
func (e *Engine) merge(remoteTasks []*schema.Task) ([]*schema.Conflict, int, error) {
	local, err := e.store.All()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read local tasks: %w", err)
	}
	ops, err := e.store.ListOperations()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read pending operations: %w", err)
	}

	localByID := make(map[string]*schema.Task, len(local))
	for _, t := range local {
		localByID[t.ID] = t
	}

	pending := make(map[string]bool)
	deletes := make(map[string]*schema.PendingOperation)
	for _, op := range ops {
		pending[op.TaskID] = true
		if op.Kind == schema.OpDelete {
			deletes[op.TaskID] = op
		}
	}

	now := schema.Timestamp(e.now())
	var conflicts []*schema.Conflict
	pulled := 0
	seen := make(map[string]bool, len(remoteTasks))

	for _, r := range remoteTasks {
		seen[r.ID] = true
		l, ok := localByID[r.ID]

		if !ok {
			if del, queued := deletes[r.ID]; queued {
				if r.UpdatedAt.After(del.EnqueuedAt) {
					conflicts = append(conflicts, &schema.Conflict{
						TaskID:     r.ID,
						Kind:       schema.ConflictDeleteUpdate,
						Remote:     r.Clone(),
						DetectedAt: now,
					})
				}
				continue
			}
			if err := e.pull(r); err != nil {
				return nil, pulled, err
			}
			pulled++
			continue
		}

		switch {
		case l.UpdatedAt.After(r.UpdatedAt):
			conflicts = append(conflicts, &schema.Conflict{
				TaskID:     r.ID,
				Kind:       schema.ConflictUpdate,
				Local:      l,
				Remote:     r.Clone(),
				DetectedAt: now,
			})
		case r.UpdatedAt.After(l.UpdatedAt):
			if err := e.pull(r); err != nil {
				return nil, pulled, err
			}
			pulled++
		}
	}

	for _, l := range local {
		if seen[l.ID] || l.LocalOnly || pending[l.ID] {
			continue
		}
		conflicts = append(conflicts, &schema.Conflict{
			TaskID:     l.ID,
			Kind:       schema.ConflictDelete,
			Local:      l,
			DetectedAt: now,
		})
	}

	return conflicts, pulled, nil
}

// pull stores the remote version of a task locally.
func (e *Engine) pull(r *schema.Task) error {
	t := r.Clone()
	t.LocalOnly = false
	if err := e.store.Upsert(t); err != nil {
		return fmt.Errorf("failed to store remote task %s: %w", r.ID, err)
	}
	e.logger.Debug("pulled remote task", "task", r.ID)
	return nil
}
