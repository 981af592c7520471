// Package sync reconciles the on-device record store with the remote task
// service.
//
// # Sync pass
//
// One pass runs these steps:
//
//  1. Reject the call with SYNC_IN_PROGRESS if another pass is running.
//  2. Probe the remote service. If it is unreachable, bump the failure counter
//     and stop without touching local state.
//  3. Fetch the remote task list.
//  4. Drain the pending-operation queue in FIFO batches. Each operation is
//     applied independently: success removes it, a retryable failure bumps its
//     retry counter (dropping it once the maximum is reached), and a
//     non-retryable failure drops it at once. Once an operation for a task
//     fails, later operations for that task wait for the next pass.
//  5. Merge the remote list into the store (re-fetching it first if the drain
//     applied anything) and collect conflicts.
//  6. Persist sync metadata.
//
// # Merge policy
//
//   - remote only: inserted locally, unless a delete for it is still queued
//   - local only: a delete conflict, never removed automatically
//   - both, local newer: an update conflict
//   - both, remote newer: local is overwritten silently
//   - both, equal timestamps: nothing
//
// Conflicts are held in memory until ResolveConflict picks a side.
//
// # Scheduling
//
// Start runs passes on an interval while the monitor reports online, and
// shortly after an offline-to-online transition or an enqueue. Stop releases
// the timer and the connectivity subscription.
package sync
