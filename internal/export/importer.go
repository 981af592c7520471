package export

import (
	"fmt"
	"os"
	"time"

	"github.com/mschirtzinger/tasksync/internal/schema"
)

// Sink receives imported tasks.
type Sink interface {
	// Exists reports whether a task with id is already stored.
	Exists(id string) (bool, error)
	// Add stores a new task.
	Add(task *schema.Task) error
}

// ImportOptions configures Import.
type ImportOptions struct {
	OwnerID   string
	LocalOnly bool
	DryRun    bool // parse and validate only
	Backup    bool // copy the input file before importing
}

// ImportResult summarizes an import.
type ImportResult struct {
	Imported      int
	Skipped       int // tombstones and IDs already present
	BackupCreated string
	Errors        []string
}

// Import reads the JSONL file at path and adds each valid record to sink.
// Invalid records are reported in Errors without stopping the import.
func Import(path string, sink Sink, opts ImportOptions) (*ImportResult, error) {
	result := &ImportResult{}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("input file does not exist: %w", err)
	}

	if opts.Backup && !opts.DryRun {
		backupPath := path + ".backup." + time.Now().Format("20060102-150405")
		input, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read input for backup: %w", err)
		}
		if err := os.WriteFile(backupPath, input, 0o600); err != nil {
			return nil, fmt.Errorf("failed to create backup: %w", err)
		}
		result.BackupCreated = backupPath
	}

	records, err := FromJSONL(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSONL: %w", err)
	}

	owner := opts.OwnerID
	if owner == "" {
		owner = schema.LocalOwnerID
	}
	now := time.Now()
	seen := make(map[string]bool)

	for i, rec := range records {
		if rec.Tombstone() {
			result.Skipped++
			continue
		}
		task, err := rec.ToTask(owner, opts.LocalOnly, now)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("record %d (%s): %v", i+1, rec.ID, err))
			continue
		}
		if seen[task.ID] {
			result.Skipped++
			continue
		}
		seen[task.ID] = true

		exists, err := sink.Exists(task.ID)
		if err != nil {
			return result, err
		}
		if exists {
			result.Skipped++
			continue
		}
		if !opts.DryRun {
			if err := sink.Add(task); err != nil {
				return result, fmt.Errorf("failed to add task %s: %w", task.ID, err)
			}
		}
		result.Imported++
	}
	return result, nil
}
