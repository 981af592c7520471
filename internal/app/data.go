package app

import (
	"io"
	"slices"
	"strings"
	"time"

	"github.com/mschirtzinger/tasksync/internal/export"
	"github.com/mschirtzinger/tasksync/internal/schema"
)

// SortedTasks returns every task, open tasks first, then by due date and
// creation time.
func (a *App) SortedTasks() ([]*schema.Task, error) {
	tasks, err := a.Tasks.List()
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(tasks, func(x, y *schema.Task) int {
		if x.Completed != y.Completed {
			if x.Completed {
				return 1
			}
			return -1
		}
		switch {
		case x.DueDate != nil && y.DueDate == nil:
			return -1
		case x.DueDate == nil && y.DueDate != nil:
			return 1
		case x.DueDate != nil && y.DueDate != nil && !x.DueDate.Equal(*y.DueDate):
			return x.DueDate.Compare(*y.DueDate)
		}
		return x.CreatedAt.Compare(y.CreatedAt)
	})
	return tasks, nil
}

// PendingTaskIDs returns the IDs of tasks with queued operations.
func (a *App) PendingTaskIDs() (map[string]bool, error) {
	ops, err := a.Store.ListOperations()
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(ops))
	for _, op := range ops {
		ids[op.TaskID] = true
	}
	return ids, nil
}

// Resolve finds a task by full ID or unique ID prefix.
func (a *App) Resolve(ref string) (*schema.Task, error) {
	tasks, err := a.Tasks.List()
	if err != nil {
		return nil, err
	}
	var match *schema.Task
	for _, t := range tasks {
		if t.ID == ref {
			return t, nil
		}
		if strings.HasPrefix(t.ID, ref) {
			if match != nil {
				return nil, errAmbiguous(ref)
			}
			match = t
		}
	}
	if match == nil {
		return nil, errUnknown(ref)
	}
	return match, nil
}

// Export writes every task in format.
func (a *App) Export(w io.Writer, format export.Format) error {
	tasks, err := a.SortedTasks()
	if err != nil {
		return err
	}
	return export.Write(w, tasks, format)
}

// Import adds the tasks in a JSONL file. With a session they are attached to
// it and queued for upload; without one they stay local-only.
func (a *App) Import(path string, dryRun, backup bool) (*export.ImportResult, error) {
	opts := export.ImportOptions{DryRun: dryRun, Backup: backup, LocalOnly: true}
	if sess := a.Auth.Session(); sess != nil {
		opts.OwnerID = sess.UserID
		opts.LocalOnly = false
	}
	return export.Import(path, importSink{a}, opts)
}

type importSink struct{ a *App }

func (s importSink) Exists(id string) (bool, error) {
	_, err := s.a.Store.Get(id)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

func (s importSink) Add(t *schema.Task) error {
	if err := s.a.Store.Upsert(t); err != nil {
		return err
	}
	if t.LocalOnly {
		return nil
	}
	return s.a.Sync.Enqueue(schema.NewCreateOperation(t, time.Now()))
}

// Reset forgets the session and erases every local record.
func (a *App) Reset() error {
	if err := a.Auth.Logout(); err != nil {
		return err
	}
	return a.Store.ClearAll()
}
