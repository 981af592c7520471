package schema

import "time"

// ConflictKind classifies how a local and a remote version disagree.
type ConflictKind string

const (
	// ConflictUpdate: both sides hold the task and the local copy is newer.
	ConflictUpdate ConflictKind = "update"
	// ConflictDelete: the remote deleted a task the device still holds.
	ConflictDelete ConflictKind = "delete"
	// ConflictDeleteUpdate: the device deleted a task the remote has since changed.
	ConflictDeleteUpdate ConflictKind = "delete_update"
)

// Resolution picks the winning side of a conflict.
type Resolution string

const (
	ResolveLocal  Resolution = "local"
	ResolveRemote Resolution = "remote"
)

// Valid reports whether r is a known resolution.
func (r Resolution) Valid() bool {
	return r == ResolveLocal || r == ResolveRemote
}

// Conflict pairs two versions of one task. Local is nil for delete_update,
// Remote is nil for delete.
type Conflict struct {
	TaskID     string       `json:"task_id"`
	Kind       ConflictKind `json:"kind"`
	Local      *Task        `json:"local,omitempty"`
	Remote     *Task        `json:"remote,omitempty"`
	DetectedAt time.Time    `json:"detected_at"`
}

// Title returns whichever side's title is available.
func (c *Conflict) Title() string {
	if c.Local != nil {
		return c.Local.Title
	}
	if c.Remote != nil {
		return c.Remote.Title
	}
	return ""
}
