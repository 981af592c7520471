package migration

import "time"

// Stage is a state of the migration machine.
type Stage string

const (
	StageIdle           Stage = "idle"
	StageChecking       Stage = "checking"
	StagePreparing      Stage = "preparing"
	StageAuthenticating Stage = "authenticating"
	StageMigrating      Stage = "migrating"
	StageSyncing        Stage = "syncing"
	StageCleanup        Stage = "cleanup"
	StageComplete       Stage = "complete"
	StageError          Stage = "error"
)

// CancelledMessage is the error message recorded when a user cancels.
const CancelledMessage = "cancelled by user"

// State describes migration progress. Migrated counts attempted items
// (created, skipped or failed), so it only ever grows during a run.
type State struct {
	Required   bool      `json:"required"`
	InProgress bool      `json:"in_progress"`
	Completed  bool      `json:"completed"`
	Total      int       `json:"total"`
	Migrated   int       `json:"migrated"`
	Stage      Stage     `json:"stage"`
	LastError  string    `json:"last_error,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
}

// Report is the outcome of a finished run.
type Report struct {
	Required  bool          `json:"required"`
	Total     int           `json:"total"`
	Processed int           `json:"processed"`
	Migrated  int           `json:"migrated"` // created remotely or already present under the same ID
	Skipped   int           `json:"skipped"`  // matched an existing remote task by title and creation time
	Errors    int           `json:"errors"`
	Duration  time.Duration `json:"duration"`
}
