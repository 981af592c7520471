package schema

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OperationKind is the mutation a pending operation replays.
type OperationKind string

const (
	OpCreate OperationKind = "create"
	OpUpdate OperationKind = "update"
	OpDelete OperationKind = "delete"
)

// PendingOperation is a mutation that the remote service has not confirmed.
type PendingOperation struct {
	ID         string        `json:"id"`
	Kind       OperationKind `json:"kind"`
	TaskID     string        `json:"task_id"`
	Task       *Task         `json:"task,omitempty"`  // create payload
	Patch      *TaskPatch    `json:"patch,omitempty"` // update payload
	EnqueuedAt time.Time     `json:"enqueued_at"`
	RetryCount int           `json:"retry_count"`
	LastError  string        `json:"last_error,omitempty"`
}

// NewCreateOperation queues the creation of t.
func NewCreateOperation(t *Task, now time.Time) *PendingOperation {
	return &PendingOperation{
		ID:         uuid.NewString(),
		Kind:       OpCreate,
		TaskID:     t.ID,
		Task:       t.Clone(),
		EnqueuedAt: Timestamp(now),
	}
}

// NewUpdateOperation queues a partial update of taskID.
func NewUpdateOperation(taskID string, patch *TaskPatch, now time.Time) *PendingOperation {
	return &PendingOperation{
		ID:         uuid.NewString(),
		Kind:       OpUpdate,
		TaskID:     taskID,
		Patch:      patch,
		EnqueuedAt: Timestamp(now),
	}
}

// NewDeleteOperation queues the deletion of taskID.
func NewDeleteOperation(taskID string, now time.Time) *PendingOperation {
	return &PendingOperation{
		ID:         uuid.NewString(),
		Kind:       OpDelete,
		TaskID:     taskID,
		EnqueuedAt: Timestamp(now),
	}
}

// Validate checks that the operation carries the payload its kind needs.
func (op *PendingOperation) Validate() error {
	if op.ID == "" {
		return fmt.Errorf("operation id is required")
	}
	if op.TaskID == "" {
		return fmt.Errorf("task id is required")
	}
	switch op.Kind {
	case OpCreate:
		if op.Task == nil {
			return fmt.Errorf("create operation requires a task payload")
		}
		if op.Task.ID != op.TaskID {
			return fmt.Errorf("create payload id %s does not match task id %s", op.Task.ID, op.TaskID)
		}
	case OpUpdate:
		if op.Patch == nil {
			return fmt.Errorf("update operation requires a patch payload")
		}
	case OpDelete:
		if op.Task != nil || op.Patch != nil {
			return fmt.Errorf("delete operation must not carry a payload")
		}
	default:
		return fmt.Errorf("unknown operation kind %q", op.Kind)
	}
	if op.RetryCount < 0 {
		return fmt.Errorf("retry count must not be negative")
	}
	return nil
}

// SyncMetadata records the last successful sync pass.
type SyncMetadata struct {
	LastSyncAt time.Time `json:"last_sync_at"`
	SessionID  string    `json:"session_id,omitempty"`
}
