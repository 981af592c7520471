package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/tasksync/internal/cloud"
	"github.com/mschirtzinger/tasksync/internal/config"
	apperrors "github.com/mschirtzinger/tasksync/internal/errors"
	"github.com/mschirtzinger/tasksync/internal/export"
	"github.com/mschirtzinger/tasksync/internal/schema"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupApp(t *testing.T) (*App, *cloud.Server) {
	t.Helper()

	srv := cloud.New(&cloud.Config{Accounts: map[string]string{"ada": "secret"}})
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)

	cfg := config.DefaultConfig()
	cfg.Data.Dir = t.TempDir()
	cfg.Remote.URL = hs.URL
	cfg.Remote.MaxRetries = 0
	cfg.Migration.ItemDelay = time.Millisecond

	a, err := New(cfg, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a, srv
}

func TestLoginMigratesLocalTasks(t *testing.T) {
	a, srv := setupApp(t)
	ctx := context.Background()

	for _, title := range []string{"one", "two", "three"} {
		res, err := a.Tasks.Create(ctx, schema.TaskFields{Title: title})
		require.NoError(t, err)
		assert.True(t, res.Task.LocalOnly)
	}

	res, err := a.Login(ctx, "ada", "secret")
	require.NoError(t, err)
	require.NotNil(t, res.Migration)
	assert.Equal(t, 3, res.Migration.Migrated)
	assert.False(t, res.Session.Guest)
	require.NoError(t, res.SyncErr)

	remoteTasks := srv.Tasks("user-ada")
	assert.Len(t, remoteTasks, 3)

	local, err := a.Tasks.List()
	require.NoError(t, err)
	require.Len(t, local, 3)
	for _, task := range local {
		assert.False(t, task.LocalOnly)
		assert.Equal(t, "user-ada", task.OwnerID)
	}

	done, _, err := a.Store.MigrationStatus()
	require.NoError(t, err)
	assert.True(t, done)
}

func TestLoginWithBadCredentialsKeepsGuestWork(t *testing.T) {
	a, _ := setupApp(t)
	ctx := context.Background()

	_, err := a.Tasks.Create(ctx, schema.TaskFields{Title: "draft"})
	require.NoError(t, err)

	_, err = a.Login(ctx, "ada", "wrong")
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrAuth))

	tasks, err := a.Tasks.List()
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestGuestThenLogin(t *testing.T) {
	a, srv := setupApp(t)
	ctx := context.Background()

	_, err := a.Guest(ctx)
	require.NoError(t, err)
	require.NoError(t, a.Connect(ctx))

	res, err := a.Tasks.Create(ctx, schema.TaskFields{Title: "guest work"})
	require.NoError(t, err)
	assert.False(t, res.Optimistic)

	login, err := a.Login(ctx, "ada", "secret")
	require.NoError(t, err)
	assert.Nil(t, login.Migration)

	remoteTasks := srv.Tasks("user-ada")
	require.Len(t, remoteTasks, 1)
	local, err := a.Tasks.Get(res.Task.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-ada", local.OwnerID)
}

func TestImportAttachesToSession(t *testing.T) {
	a, srv := setupApp(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "in.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"imp-1","title":"imported"}`+"\n"), 0o600))

	res, err := a.Import(path, false, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	task, err := a.Tasks.Get("imp-1")
	require.NoError(t, err)
	assert.True(t, task.LocalOnly, "no session yet")

	require.NoError(t, a.Reset())
	sess, err := a.Guest(ctx)
	require.NoError(t, err)

	res, err = a.Import(path, false, false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Imported)
	pending, err := a.PendingTaskIDs()
	require.NoError(t, err)
	assert.True(t, pending["imp-1"])

	require.NoError(t, a.Connect(ctx))
	_, err = a.Sync.Sync(ctx)
	require.NoError(t, err)
	assert.Len(t, srv.Tasks(sess.UserID), 1)
}

func TestResolveByPrefix(t *testing.T) {
	a, _ := setupApp(t)
	ctx := context.Background()

	res, err := a.Tasks.Create(ctx, schema.TaskFields{Title: "find me"})
	require.NoError(t, err)

	got, err := a.Resolve(res.Task.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, res.Task.ID, got.ID)

	_, err = a.Resolve("zzzzzzzz")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestSortedTasks(t *testing.T) {
	a, _ := setupApp(t)
	ctx := context.Background()

	due := time.Now().Add(time.Hour)
	_, err := a.Tasks.Create(ctx, schema.TaskFields{Title: "no due"})
	require.NoError(t, err)
	done, err := a.Tasks.Create(ctx, schema.TaskFields{Title: "finished"})
	require.NoError(t, err)
	_, err = a.Tasks.ToggleCompletion(ctx, done.Task.ID)
	require.NoError(t, err)
	_, err = a.Tasks.Create(ctx, schema.TaskFields{Title: "soon", DueDate: &due})
	require.NoError(t, err)

	tasks, err := a.SortedTasks()
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, "soon", tasks[0].Title)
	assert.Equal(t, "no due", tasks[1].Title)
	assert.Equal(t, "finished", tasks[2].Title)
}

func TestStatusAndExport(t *testing.T) {
	a, _ := setupApp(t)
	ctx := context.Background()

	_, err := a.Tasks.Create(ctx, schema.TaskFields{Title: "offline first"})
	require.NoError(t, err)

	v, err := a.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Tasks)
	assert.Equal(t, 1, v.LocalOnly)
	assert.Empty(t, v.Account)
	assert.Contains(t, v.MigrationNote, "required")

	var buf bytes.Buffer
	require.NoError(t, a.Export(&buf, export.FormatYAML))
	assert.Contains(t, buf.String(), "offline first")
}

func TestReset(t *testing.T) {
	a, _ := setupApp(t)
	ctx := context.Background()

	_, err := a.Guest(ctx)
	require.NoError(t, err)
	_, err = a.Tasks.Create(ctx, schema.TaskFields{Title: "temp"})
	require.NoError(t, err)

	require.NoError(t, a.Reset())
	assert.Nil(t, a.Auth.Session())
	tasks, err := a.Tasks.List()
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestDaemonStopsOnCancel(t *testing.T) {
	a, _ := setupApp(t)
	a.Config.Dashboard.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	enabled := true
	done := make(chan error, 1)
	go func() { done <- a.RunDaemon(ctx, DaemonOptions{Dashboard: &enabled}) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}
}
