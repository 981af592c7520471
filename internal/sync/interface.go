package sync

import (
	"context"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

// Syncer is the surface of the engine used by the storage facade and the
// migration engine.
type Syncer interface {
	// Sync runs one pass. A concurrent call fails with SYNC_IN_PROGRESS.
	Sync(ctx context.Context) (*Result, error)

	// Enqueue records a mutation the remote has not confirmed yet.
	Enqueue(op *schema.PendingOperation) error

	// Conflicts returns the unresolved conflicts from the last pass.
	Conflicts() []*schema.Conflict

	// ResolveConflict applies the chosen side of a conflict.
	ResolveConflict(ctx context.Context, taskID string, choice schema.Resolution) error
}

// Connectivity is the view of the connectivity monitor the engine needs.
type Connectivity interface {
	Online() bool
	Probe(ctx context.Context) error
	Subscribe(fn func(online bool)) func()
}
