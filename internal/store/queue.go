package store

import (
	"fmt"
	"slices"

	apperrors "github.com/mschirtzinger/tasksync/internal/errors"
	"github.com/mschirtzinger/tasksync/internal/schema"
)

// EnqueueOperation appends op to the pending-operation queue.
// A full store yields a QUOTA_EXCEEDED error and the queue is left unchanged.
func (s *Store) EnqueueOperation(op *schema.PendingOperation) error {
	if err := op.Validate(); err != nil {
		return apperrors.Wrap(apperrors.ErrValidation, "invalid operation", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.update(func(q querier) error {
		ops, err := loadOperations(q)
		if err != nil {
			return err
		}
		if slices.ContainsFunc(ops, func(o *schema.PendingOperation) bool { return o.ID == op.ID }) {
			return apperrors.New(apperrors.ErrValidation, fmt.Sprintf("operation %s already queued", op.ID))
		}
		return s.writeJSON(q, KeyPendingOps, append(ops, cloneOperation(op)))
	})
}

// ListOperations returns the queue in enqueue order.
func (s *Store) ListOperations() ([]*schema.PendingOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ops, err := loadOperations(s.conn)
	if err != nil {
		return nil, err
	}
	out := make([]*schema.PendingOperation, len(ops))
	for i, op := range ops {
		out[i] = cloneOperation(op)
	}
	return out, nil
}

// RemoveOperation drops an operation from the queue.
// Returns nil if the operation doesn't exist (idempotent).
func (s *Store) RemoveOperation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.update(func(q querier) error {
		ops, err := loadOperations(q)
		if err != nil {
			return err
		}
		i := indexOfOperation(ops, id)
		if i < 0 {
			return nil
		}
		return s.writeJSON(q, KeyPendingOps, slices.Delete(ops, i, i+1))
	})
}

// IncrementRetry bumps the retry counter of an operation and records the
// failure that caused it. Returns the new counter value.
func (s *Store) IncrementRetry(id, lastErr string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	err := s.update(func(q querier) error {
		ops, err := loadOperations(q)
		if err != nil {
			return err
		}
		i := indexOfOperation(ops, id)
		if i < 0 {
			return apperrors.New(apperrors.ErrNotFound, fmt.Sprintf("operation %s not found", id))
		}
		ops[i].RetryCount++
		ops[i].LastError = lastErr
		count = ops[i].RetryCount
		return s.writeJSON(q, KeyPendingOps, ops)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// PendingCount returns the number of queued operations.
func (s *Store) PendingCount() (int, error) {
	ops, err := s.ListOperations()
	if err != nil {
		return 0, err
	}
	return len(ops), nil
}

func loadOperations(q querier) ([]*schema.PendingOperation, error) {
	var ops []*schema.PendingOperation
	if _, err := readJSON(q, KeyPendingOps, &ops); err != nil {
		return nil, err
	}
	return ops, nil
}

func indexOfOperation(ops []*schema.PendingOperation, id string) int {
	return slices.IndexFunc(ops, func(o *schema.PendingOperation) bool { return o.ID == id })
}

func cloneOperation(op *schema.PendingOperation) *schema.PendingOperation {
	c := *op
	c.Task = op.Task.Clone()
	if op.Patch != nil {
		p := *op.Patch
		c.Patch = &p
	}
	return &c
}
