package events

import "time"

// ConnectivityData accompanies ConnectivityChanged.
type ConnectivityData struct {
	Online bool `json:"online"`
}

// OperationData accompanies OperationEnqueued and OperationProcessed.
type OperationData struct {
	OperationID string `json:"operation_id"`
	TaskID      string `json:"task_id"`
	Kind        string `json:"kind"`
	// Outcome is "applied", "retry" or "dropped"; empty for enqueue events.
	Outcome    string `json:"outcome,omitempty"`
	RetryCount int    `json:"retry_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Operation outcomes.
const (
	OutcomeApplied = "applied"
	OutcomeRetry   = "retry"
	OutcomeDropped = "dropped"
)

// SyncData accompanies SyncSucceeded and SyncFailed.
type SyncData struct {
	Synced    int           `json:"synced"`
	Failed    int           `json:"failed"`
	Conflicts int           `json:"conflicts"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// ConflictData accompanies SyncConflict, once per detected conflict.
type ConflictData struct {
	TaskID string `json:"task_id"`
	Kind   string `json:"kind"`
	Title  string `json:"title,omitempty"`
}

// StageData accompanies MigrationStage.
type StageData struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ProgressData accompanies MigrationProgress.
type ProgressData struct {
	Total    int `json:"total"`
	Migrated int `json:"migrated"`
}

// MigrationResultData accompanies MigrationComplete.
type MigrationResultData struct {
	Migrated int           `json:"migrated"`
	Skipped  int           `json:"skipped"`
	Errors   int           `json:"errors"`
	Duration time.Duration `json:"duration"`
}

// MigrationErrorData accompanies MigrationError.
type MigrationErrorData struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}
