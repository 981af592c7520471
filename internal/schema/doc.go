// Package schema defines the records that tasksync keeps on the device and
// exchanges with the remote service.
//
// # Records
//
//   - Task: the user-visible entity. IDs are client-generated UUIDs so they
//     stay unique across the local store and the remote service.
//   - PendingOperation: a create, update or delete that the remote has not yet
//     confirmed. Operations for one task are replayed in enqueue order.
//   - SyncMetadata: when the last successful sync pass finished and for which
//     session.
//   - Conflict: a derived pairing of a local and a remote version of one task,
//     produced by the merge step of a sync pass.
//
// # Timestamps
//
// UpdatedAt is the only ordering signal used by the merge step. It is always
// stored in UTC with millisecond precision so that a value round-tripped
// through JSON compares equal to the original.
//
// # Design Principles
//
//   - Flat JSON structures, last-write-wins on UpdatedAt
//   - Validation lives next to the type it guards
//   - No external validation libraries
package schema
