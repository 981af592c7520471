package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/tasksync/internal/cloud"
	"github.com/mschirtzinger/tasksync/internal/connectivity"
	apperrors "github.com/mschirtzinger/tasksync/internal/errors"
	"github.com/mschirtzinger/tasksync/internal/remote"
	"github.com/mschirtzinger/tasksync/internal/schema"
	"github.com/mschirtzinger/tasksync/internal/store"
	tsync "github.com/mschirtzinger/tasksync/internal/sync"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	store   *store.Store
	server  *cloud.Server
	auth    *remote.Auth
	monitor *connectivity.Monitor
	engine  *tsync.Engine
	facade  *Facade
}

func setupHarness(t *testing.T, guest bool, opts store.Options) *harness {
	t.Helper()

	st, err := store.OpenWithOptions(filepath.Join(t.TempDir(), "tasks.db"), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	srv := cloud.New(nil)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)

	rcfg := remote.DefaultConfig(hs.URL)
	rcfg.MaxRetries = 0
	auth, err := remote.NewAuth(rcfg, st)
	require.NoError(t, err)
	client, err := remote.NewClient(rcfg, auth)
	require.NoError(t, err)

	if guest {
		_, err := auth.GuestSession(context.Background())
		require.NoError(t, err)
	}

	monitor, err := connectivity.New(&connectivity.Config{Checker: client, InitialOnline: true})
	require.NoError(t, err)
	engine, err := tsync.New(st, client, monitor, nil)
	require.NoError(t, err)
	facade, err := New(st, client, auth, monitor, engine, nil)
	require.NoError(t, err)

	return &harness{store: st, server: srv, auth: auth, monitor: monitor, engine: engine, facade: facade}
}

func (h *harness) pending(t *testing.T) []*schema.PendingOperation {
	t.Helper()
	ops, err := h.store.ListOperations()
	require.NoError(t, err)
	return ops
}

func title(s string) *string { return &s }

func TestWithoutSessionTasksAreLocalOnly(t *testing.T) {
	h := setupHarness(t, false, store.Options{})
	ctx := context.Background()

	res, err := h.facade.Create(ctx, schema.TaskFields{Title: "guest task", Tags: []string{"home"}})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.False(t, res.Optimistic)
	assert.True(t, res.Task.LocalOnly)
	assert.Equal(t, schema.LocalOwnerID, res.Task.OwnerID)
	assert.Equal(t, schema.PriorityMedium, res.Task.Priority)

	_, err = h.facade.Update(ctx, res.Task.ID, &schema.TaskPatch{Title: title("renamed")})
	require.NoError(t, err)
	_, err = h.facade.ToggleCompletion(ctx, res.Task.ID)
	require.NoError(t, err)

	got, err := h.facade.Get(res.Task.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.True(t, got.Completed)

	_, err = h.facade.Delete(ctx, res.Task.ID)
	require.NoError(t, err)

	assert.Empty(t, h.pending(t))
	assert.Equal(t, cloud.Stats{}, h.server.Stats())
}

func TestOnlineChangesReachRemote(t *testing.T) {
	h := setupHarness(t, true, store.Options{})
	ctx := context.Background()
	owner := h.auth.Session().UserID

	res, err := h.facade.Create(ctx, schema.TaskFields{Title: "online", Priority: schema.PriorityHigh})
	require.NoError(t, err)
	assert.False(t, res.Optimistic)
	assert.Empty(t, res.OperationID)
	assert.False(t, res.Task.LocalOnly)
	assert.Equal(t, owner, res.Task.OwnerID)
	require.Len(t, h.server.Tasks(owner), 1)

	res, err = h.facade.Update(ctx, res.Task.ID, &schema.TaskPatch{Title: title("online, edited")})
	require.NoError(t, err)
	assert.False(t, res.Optimistic)

	remoteTask := h.server.Tasks(owner)[0]
	assert.Equal(t, "online, edited", remoteTask.Title)
	assert.True(t, remoteTask.UpdatedAt.Equal(res.Task.UpdatedAt))

	res, err = h.facade.ToggleCompletion(ctx, res.Task.ID)
	require.NoError(t, err)
	assert.True(t, res.Task.Completed)
	assert.True(t, h.server.Tasks(owner)[0].Completed)

	_, err = h.facade.Delete(ctx, res.Task.ID)
	require.NoError(t, err)
	assert.Empty(t, h.server.Tasks(owner))
	assert.Empty(t, h.pending(t))

	list, err := h.facade.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestOfflineChangesAreQueued(t *testing.T) {
	h := setupHarness(t, true, store.Options{})
	ctx := context.Background()
	owner := h.auth.Session().UserID
	h.monitor.SetOnline(false)

	res, err := h.facade.Create(ctx, schema.TaskFields{Title: "offline"})
	require.NoError(t, err)
	assert.True(t, res.Optimistic)
	assert.NotEmpty(t, res.OperationID)
	assert.Nil(t, res.RemoteErr)

	_, err = h.facade.Update(ctx, res.Task.ID, &schema.TaskPatch{Title: title("offline, edited")})
	require.NoError(t, err)

	ops := h.pending(t)
	require.Len(t, ops, 2)
	assert.Equal(t, res.OperationID, ops[0].ID)
	assert.Zero(t, h.server.Stats().Creates)

	h.monitor.SetOnline(true)

	// A create is still queued, so the update goes to the queue as well.
	_, err = h.facade.Update(ctx, res.Task.ID, &schema.TaskPatch{Description: title("details")})
	require.NoError(t, err)
	assert.Len(t, h.pending(t), 3)

	_, err = h.engine.Sync(ctx)
	require.NoError(t, err)
	assert.Empty(t, h.pending(t))

	remoteTasks := h.server.Tasks(owner)
	require.Len(t, remoteTasks, 1)
	assert.Equal(t, "offline, edited", remoteTasks[0].Title)
	assert.Equal(t, "details", remoteTasks[0].Description)
}

func TestNetworkFailureFallsBackToQueue(t *testing.T) {
	h := setupHarness(t, true, store.Options{})
	ctx := context.Background()

	h.server.FailNext(http.MethodPost, 1, http.StatusServiceUnavailable)

	res, err := h.facade.Create(ctx, schema.TaskFields{Title: "flaky"})
	require.NoError(t, err)
	assert.True(t, res.Optimistic)
	require.Error(t, res.RemoteErr)
	assert.True(t, apperrors.IsRetryable(res.RemoteErr))

	got, err := h.facade.Get(res.Task.ID)
	require.NoError(t, err, "optimistic value stays in place")
	assert.Equal(t, "flaky", got.Title)
	assert.Len(t, h.pending(t), 1)
}

func TestValidationIsNeverQueued(t *testing.T) {
	h := setupHarness(t, true, store.Options{})
	ctx := context.Background()

	_, err := h.facade.Create(ctx, schema.TaskFields{Title: "   "})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	_, err = h.facade.Create(ctx, schema.TaskFields{Title: strings.Repeat("x", schema.MaxTitleLength+1)})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	res, err := h.facade.Create(ctx, schema.TaskFields{Title: "fine"})
	require.NoError(t, err)

	_, err = h.facade.Update(ctx, res.Task.ID, &schema.TaskPatch{Title: title("")})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
	_, err = h.facade.Update(ctx, res.Task.ID, &schema.TaskPatch{})
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	list, err := h.facade.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Empty(t, h.pending(t))
}

func TestRemoteRejectionRollsBack(t *testing.T) {
	h := setupHarness(t, true, store.Options{})
	ctx := context.Background()

	h.server.FailNext(http.MethodPost, 1, http.StatusUnprocessableEntity)

	_, err := h.facade.Create(ctx, schema.TaskFields{Title: "rejected"})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))

	list, err := h.facade.List()
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, h.pending(t))
}

func TestUnexpectedRemoteFailureIsQueued(t *testing.T) {
	h := setupHarness(t, true, store.Options{})
	ctx := context.Background()
	owner := h.auth.Session().UserID

	res, err := h.facade.Create(ctx, schema.TaskFields{Title: "before"})
	require.NoError(t, err)

	h.server.FailNext(http.MethodPatch, 1, http.StatusNotFound)

	upd, err := h.facade.Update(ctx, res.Task.ID, &schema.TaskPatch{Title: title("after")})
	require.NoError(t, err)
	assert.True(t, upd.Optimistic)
	assert.NotEmpty(t, upd.OperationID, "the change is never kept without a queued operation")
	assert.True(t, apperrors.Is(upd.RemoteErr, apperrors.ErrNotFound))

	ops := h.pending(t)
	require.Len(t, ops, 1)
	assert.Equal(t, schema.OpUpdate, ops[0].Kind)

	_, err = h.engine.Sync(ctx)
	require.NoError(t, err)
	remoteTasks := h.server.Tasks(owner)
	require.Len(t, remoteTasks, 1)
	assert.Equal(t, "after", remoteTasks[0].Title)
	assert.Empty(t, h.pending(t))
}

func TestFailedRemoteDeleteRestoresLocal(t *testing.T) {
	h := setupHarness(t, true, store.Options{})
	ctx := context.Background()
	owner := h.auth.Session().UserID

	res, err := h.facade.Create(ctx, schema.TaskFields{Title: "sticky"})
	require.NoError(t, err)

	h.server.FailNext(http.MethodDelete, 1, http.StatusServiceUnavailable)

	del, err := h.facade.Delete(ctx, res.Task.ID)
	require.NoError(t, err)
	assert.True(t, del.Optimistic)
	assert.NotEmpty(t, del.OperationID)
	require.Error(t, del.RemoteErr)

	_, err = h.facade.Get(res.Task.ID)
	require.NoError(t, err, "the local record is restored")

	ops := h.pending(t)
	require.Len(t, ops, 1)
	assert.Equal(t, schema.OpDelete, ops[0].Kind)

	_, err = h.engine.Sync(ctx)
	require.NoError(t, err)
	assert.Empty(t, h.server.Tasks(owner))
	_, err = h.facade.Get(res.Task.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestOfflineDeleteIsImmediateLocally(t *testing.T) {
	h := setupHarness(t, true, store.Options{})
	ctx := context.Background()
	owner := h.auth.Session().UserID

	res, err := h.facade.Create(ctx, schema.TaskFields{Title: "bye"})
	require.NoError(t, err)

	h.monitor.SetOnline(false)
	del, err := h.facade.Delete(ctx, res.Task.ID)
	require.NoError(t, err)
	assert.True(t, del.Optimistic)

	_, err = h.facade.Get(res.Task.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	assert.Len(t, h.server.Tasks(owner), 1)

	h.monitor.SetOnline(true)
	_, err = h.engine.Sync(ctx)
	require.NoError(t, err)
	assert.Empty(t, h.server.Tasks(owner))
}

func TestUnknownTask(t *testing.T) {
	h := setupHarness(t, true, store.Options{})
	ctx := context.Background()

	_, err := h.facade.Update(ctx, "missing", &schema.TaskPatch{Title: title("x")})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	_, err = h.facade.Delete(ctx, "missing")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	_, err = h.facade.ToggleCompletion(ctx, "missing")
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestQuotaExceededSurfaces(t *testing.T) {
	h := setupHarness(t, false, store.Options{MaxBytes: 1024})

	_, err := h.facade.Create(context.Background(), schema.TaskFields{
		Title:       "big",
		Description: strings.Repeat("d", 1500),
	})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrQuotaExceeded))

	list, err := h.facade.List()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDueDateRoundTrip(t *testing.T) {
	h := setupHarness(t, true, store.Options{})
	ctx := context.Background()

	due := time.Date(2026, 11, 1, 9, 30, 0, 0, time.UTC)
	res, err := h.facade.Create(ctx, schema.TaskFields{Title: "dentist", DueDate: &due})
	require.NoError(t, err)
	require.NotNil(t, res.Task.DueDate)
	assert.True(t, res.Task.DueDate.Equal(due))

	res, err = h.facade.Update(ctx, res.Task.ID, &schema.TaskPatch{ClearDue: true})
	require.NoError(t, err)
	assert.Nil(t, res.Task.DueDate)
	assert.Nil(t, h.server.Tasks(h.auth.Session().UserID)[0].DueDate)
}
