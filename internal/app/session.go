package app

import (
	"context"
	"fmt"

	"github.com/mschirtzinger/tasksync/internal/migration"
	"github.com/mschirtzinger/tasksync/internal/schema"
	tsync "github.com/mschirtzinger/tasksync/internal/sync"
)

// LoginResult describes what Login did.
type LoginResult struct {
	Session   *schema.Session
	Migration *migration.Report // nil when no migration was needed
	Sync      *tsync.Result     // nil when the follow-up sync failed
	SyncErr   error
}

// Login signs in to an account. Local-only tasks are migrated first under a
// guest session; the service then moves the guest's tasks to the account and
// a final sync brings the device up to date.
func (a *App) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	res := &LoginResult{}

	if err := a.Connect(ctx); err != nil {
		a.Logger.Debug("probe before login failed", "error", err)
	}

	required, err := a.Migration.CheckRequired()
	if err != nil {
		return nil, err
	}
	if required {
		report, err := a.Migration.Run(ctx)
		if err != nil {
			return nil, fmt.Errorf("migration failed, not logged in: %w", err)
		}
		res.Migration = report
	} else if a.Auth.Usable() {
		// Flush changes made under the guest session before it is replaced.
		if _, err := a.Sync.Sync(ctx); err != nil {
			a.Logger.Info("sync before login failed", "error", err)
		}
	}

	sess, err := a.Auth.Login(ctx, username, password)
	if err != nil {
		return nil, err
	}
	res.Session = sess
	a.Monitor.SetOnline(true)

	res.Sync, res.SyncErr = a.Sync.Sync(ctx)
	return res, nil
}

// Logout forgets the session. Tasks stay on the device.
func (a *App) Logout() error {
	return a.Auth.Logout()
}

// Guest starts a guest session so that tasks sync without an account.
func (a *App) Guest(ctx context.Context) (*schema.Session, error) {
	if sess := a.Auth.Session(); sess != nil && sess.Guest && a.Auth.Usable() {
		return sess, nil
	}
	return a.Auth.GuestSession(ctx)
}
