package app

import (
	"context"
	"fmt"

	"github.com/mschirtzinger/tasksync/internal/migration"
	"github.com/mschirtzinger/tasksync/internal/ui"
)

// Status collects the data shown by taskd status. It probes the remote
// service when a session exists.
func (a *App) Status(ctx context.Context) (ui.StatusView, error) {
	var v ui.StatusView

	_ = a.Connect(ctx)
	v.Online = a.Monitor.Online()

	if sess := a.Auth.Session(); sess != nil {
		v.Account = sess.UserID
		v.Guest = sess.Guest
	}

	tasks, err := a.Store.All()
	if err != nil {
		return v, err
	}
	v.Tasks = len(tasks)
	for _, t := range tasks {
		if t.LocalOnly {
			v.LocalOnly++
		}
	}

	if v.Pending, err = a.Store.PendingCount(); err != nil {
		return v, err
	}
	v.Conflicts = len(a.Sync.Conflicts())

	meta, err := a.Store.ReadSyncMetadata()
	if err != nil {
		return v, err
	}
	if meta != nil {
		v.LastSyncAt = meta.LastSyncAt
	}

	v.MigrationNote, err = a.migrationNote()
	if err != nil {
		return v, err
	}
	if v.StoreBytes, err = a.Store.Size(); err != nil {
		return v, err
	}
	return v, nil
}

func (a *App) migrationNote() (string, error) {
	done, at, err := a.Store.MigrationStatus()
	if err != nil {
		return "", err
	}
	if done {
		return "complete " + at.Local().Format("2006-01-02 15:04"), nil
	}
	required, err := a.Migration.CheckRequired()
	if err != nil {
		return "", err
	}
	if required {
		return "required (run taskd login or taskd migrate)", nil
	}
	state := a.Migration.Status()
	if state.Stage == migration.StageError {
		return fmt.Sprintf("failed: %s", state.LastError), nil
	}
	return "", nil
}
