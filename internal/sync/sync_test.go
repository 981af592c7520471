package sync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/tasksync/internal/cloud"
	"github.com/mschirtzinger/tasksync/internal/connectivity"
	apperrors "github.com/mschirtzinger/tasksync/internal/errors"
	"github.com/mschirtzinger/tasksync/internal/events"
	"github.com/mschirtzinger/tasksync/internal/remote"
	"github.com/mschirtzinger/tasksync/internal/schema"
	"github.com/mschirtzinger/tasksync/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type harness struct {
	store   *store.Store
	server  *cloud.Server
	client  *remote.Client
	monitor *connectivity.Monitor
	engine  *Engine
	bus     *events.Bus
	owner   string
}

// setupHarness wires an engine to a temporary store and an in-memory cloud
// server holding a guest session.
func setupHarness(t *testing.T, config *Config) *harness {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	srv := cloud.New(nil)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)

	rcfg := remote.DefaultConfig(hs.URL)
	rcfg.MaxRetries = 0
	rcfg.InitialBackoff = time.Millisecond
	auth, err := remote.NewAuth(rcfg, st)
	require.NoError(t, err)
	client, err := remote.NewClient(rcfg, auth)
	require.NoError(t, err)

	sess, err := auth.GuestSession(context.Background())
	require.NoError(t, err)

	bus := events.NewBus()
	monitor, err := connectivity.New(&connectivity.Config{
		Checker:       client,
		ProbeTimeout:  time.Second,
		InitialOnline: true,
		Bus:           bus,
	})
	require.NoError(t, err)

	if config == nil {
		config = DefaultConfig()
	}
	config.Bus = bus
	config.SessionID = func() string { return sess.UserID }

	engine, err := New(st, client, monitor, config)
	require.NoError(t, err)
	t.Cleanup(engine.Stop)

	return &harness{
		store:   st,
		server:  srv,
		client:  client,
		monitor: monitor,
		engine:  engine,
		bus:     bus,
		owner:   sess.UserID,
	}
}

// createOffline mimics an offline create through the facade.
func (h *harness) createOffline(t *testing.T, title string) *schema.Task {
	t.Helper()

	task, err := schema.NewTask(schema.TaskFields{Title: title}, h.owner, false, time.Now())
	require.NoError(t, err)
	require.NoError(t, h.store.Upsert(task))
	require.NoError(t, h.engine.Enqueue(schema.NewCreateOperation(task, time.Now())))
	return task
}

// updateOffline mimics an offline update through the facade.
func (h *harness) updateOffline(t *testing.T, id string, patch *schema.TaskPatch) *schema.Task {
	t.Helper()

	cur, err := h.store.Get(id)
	require.NoError(t, err)
	next, err := patch.Apply(cur, time.Now())
	require.NoError(t, err)
	require.NoError(t, h.store.Upsert(next))

	updated := next.UpdatedAt
	patch.UpdatedAt = &updated
	require.NoError(t, h.engine.Enqueue(schema.NewUpdateOperation(id, patch, time.Now())))
	return next
}

// deleteOffline mimics an offline delete through the facade.
func (h *harness) deleteOffline(t *testing.T, id string) {
	t.Helper()

	require.NoError(t, h.store.Remove(id))
	require.NoError(t, h.engine.Enqueue(schema.NewDeleteOperation(id, time.Now())))
}

// remoteTask seeds a task directly on the server.
func (h *harness) remoteTask(t *testing.T, title string, updated time.Time) *schema.Task {
	t.Helper()

	task, err := schema.NewTask(schema.TaskFields{Title: title}, h.owner, false, updated.Add(-time.Hour))
	require.NoError(t, err)
	task.UpdatedAt = schema.Timestamp(updated)
	h.server.Put(task)
	return task
}

func (h *harness) pending(t *testing.T) []*schema.PendingOperation {
	t.Helper()
	ops, err := h.store.ListOperations()
	require.NoError(t, err)
	return ops
}

func strPtr(s string) *string { return &s }

func TestScenarioOfflineCreatesAreDispatched(t *testing.T) {
	h := setupHarness(t, nil)

	for _, title := range []string{"one", "two", "three"} {
		h.createOffline(t, title)
	}
	require.Len(t, h.pending(t), 3)

	res, err := h.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Synced)
	assert.Zero(t, res.Failed)
	assert.Empty(t, res.Conflicts)

	assert.Equal(t, 3, h.server.Stats().Creates)
	assert.Empty(t, h.pending(t))
	assert.Len(t, h.server.Tasks(h.owner), 3)

	meta, err := h.store.ReadSyncMetadata()
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, h.owner, meta.SessionID)
	assert.True(t, res.CompletedAt.Equal(meta.LastSyncAt))
}

func TestScenarioLocalNewerIsUpdateConflict(t *testing.T) {
	h := setupHarness(t, nil)
	base := time.Now().Add(-time.Hour)

	remoteX := h.remoteTask(t, "remote title", base.Add(5*time.Second))
	localX := remoteX.Clone()
	localX.Title = "local title"
	localX.UpdatedAt = schema.Timestamp(base.Add(10 * time.Second))
	require.NoError(t, h.store.Upsert(localX))

	var conflictEvents []events.ConflictData
	h.bus.SubscribeType(events.SyncConflict, func(e events.Event) {
		conflictEvents = append(conflictEvents, e.Data.(events.ConflictData))
	})

	res, err := h.engine.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, schema.ConflictUpdate, res.Conflicts[0].Kind)
	assert.Equal(t, remoteX.ID, res.Conflicts[0].TaskID)

	got, err := h.store.Get(remoteX.ID)
	require.NoError(t, err)
	assert.Equal(t, "local title", got.Title, "local value is not overwritten")

	require.Len(t, conflictEvents, 1)
	assert.Equal(t, "update", conflictEvents[0].Kind)

	// A second pass reports the same conflict without a new event.
	res, err = h.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Conflicts, 1)
	assert.Len(t, conflictEvents, 1)
	assert.Len(t, h.engine.Conflicts(), 1)
}

func TestScenarioRemoteNewerOverwritesSilently(t *testing.T) {
	h := setupHarness(t, nil)
	base := time.Now().Add(-time.Hour)

	remoteY := h.remoteTask(t, "remote wins", base.Add(20*time.Second))
	localY := remoteY.Clone()
	localY.Title = "stale local"
	localY.UpdatedAt = schema.Timestamp(base)
	require.NoError(t, h.store.Upsert(localY))

	res, err := h.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Conflicts)
	assert.Equal(t, 1, res.Pulled)

	got, err := h.store.Get(remoteY.ID)
	require.NoError(t, err)
	assert.Equal(t, "remote wins", got.Title)
	assert.True(t, got.UpdatedAt.Equal(remoteY.UpdatedAt))
}

func TestRemoteOnlyTaskIsPulled(t *testing.T) {
	h := setupHarness(t, nil)
	r := h.remoteTask(t, "made elsewhere", time.Now().Add(-time.Minute))

	res, err := h.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Pulled)

	got, err := h.store.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, "made elsewhere", got.Title)
	assert.False(t, got.LocalOnly)
}

func TestSyncIsIdempotent(t *testing.T) {
	h := setupHarness(t, nil)

	h.createOffline(t, "a")
	h.remoteTask(t, "b", time.Now().Add(-time.Minute))

	_, err := h.engine.Sync(context.Background())
	require.NoError(t, err)
	before, err := h.store.All()
	require.NoError(t, err)

	res, err := h.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Conflicts)
	assert.Zero(t, res.Synced)
	assert.Zero(t, res.Pulled)

	after, err := h.store.All()
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestOfflineChangesConverge(t *testing.T) {
	h := setupHarness(t, nil)
	ctx := context.Background()

	keep := h.createOffline(t, "keep")
	edit := h.createOffline(t, "edit me")
	gone := h.createOffline(t, "delete me")

	h.updateOffline(t, edit.ID, &schema.TaskPatch{Title: strPtr("edited")})
	done := true
	h.updateOffline(t, keep.ID, &schema.TaskPatch{Completed: &done})
	h.deleteOffline(t, gone.ID)
	require.Len(t, h.pending(t), 6)

	res, err := h.engine.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Synced)
	assert.Empty(t, res.Conflicts)
	assert.Empty(t, h.pending(t))

	local, err := h.store.All()
	require.NoError(t, err)
	remoteTasks := h.server.Tasks(h.owner)
	require.Len(t, remoteTasks, len(local))

	byID := make(map[string]*schema.Task)
	for _, r := range remoteTasks {
		byID[r.ID] = r
	}
	for _, l := range local {
		r, ok := byID[l.ID]
		require.True(t, ok, "task %s missing remotely", l.ID)
		assert.True(t, l.SameContent(r), "task %s differs", l.ID)
		assert.True(t, l.UpdatedAt.Equal(r.UpdatedAt))
	}
	_, ok := byID[gone.ID]
	assert.False(t, ok)
}

func TestUnreachableAbortsPass(t *testing.T) {
	h := setupHarness(t, nil)
	h.createOffline(t, "waiting")
	h.server.SetAvailable(false)

	var failed []events.SyncData
	h.bus.SubscribeType(events.SyncFailed, func(e events.Event) {
		failed = append(failed, e.Data.(events.SyncData))
	})

	res, err := h.engine.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnreachable))
	assert.False(t, res.Success)

	ops := h.pending(t)
	require.Len(t, ops, 1)
	assert.Zero(t, ops[0].RetryCount, "unreachable is not an operation retry")
	assert.Equal(t, 1, h.engine.Status().Failures)
	assert.Len(t, failed, 1)

	meta, err := h.store.ReadSyncMetadata()
	require.NoError(t, err)
	assert.Nil(t, meta)

	h.server.SetAvailable(true)
	_, err = h.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Zero(t, h.engine.Status().Failures)
}

func TestExhaustedOperationIsDropped(t *testing.T) {
	h := setupHarness(t, &Config{MaxRetries: 3})
	h.createOffline(t, "doomed")

	var dropped int
	h.bus.SubscribeType(events.OperationProcessed, func(e events.Event) {
		if e.Data.(events.OperationData).Outcome == events.OutcomeDropped {
			dropped++
		}
	})

	h.server.FailNext(http.MethodPost, 100, http.StatusServiceUnavailable)

	for pass := 1; pass <= 2; pass++ {
		res, err := h.engine.Sync(context.Background())
		require.NoError(t, err, "operation failures do not fail the pass")
		assert.Zero(t, res.Failed)
		ops := h.pending(t)
		require.Len(t, ops, 1)
		assert.Equal(t, pass, ops[0].RetryCount)
		assert.NotEmpty(t, ops[0].LastError)
	}

	res, err := h.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, h.pending(t))
	assert.Equal(t, 1, dropped)

	// It never comes back.
	_, err = h.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h.pending(t))
}

func TestFailedOperationHoldsLaterOpsForSameTask(t *testing.T) {
	h := setupHarness(t, nil)

	a := h.createOffline(t, "a")
	b := h.createOffline(t, "b")
	h.updateOffline(t, a.ID, &schema.TaskPatch{Title: strPtr("a2")})

	// Only the first POST fails: the create of a.
	h.server.FailNext(http.MethodPost, 1, http.StatusServiceUnavailable)

	res, err := h.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Synced, "only b is applied")

	ops := h.pending(t)
	require.Len(t, ops, 2)
	assert.Equal(t, schema.OpCreate, ops[0].Kind)
	assert.Equal(t, 1, ops[0].RetryCount)
	assert.Equal(t, schema.OpUpdate, ops[1].Kind)
	assert.Zero(t, ops[1].RetryCount, "held, not attempted")

	assert.Len(t, h.server.Tasks(h.owner), 1)
	assert.Equal(t, b.ID, h.server.Tasks(h.owner)[0].ID)

	res, err = h.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Synced)
	assert.Empty(t, h.pending(t))

	var titles []string
	for _, r := range h.server.Tasks(h.owner) {
		titles = append(titles, r.Title)
	}
	assert.ElementsMatch(t, []string{"a2", "b"}, titles)
}

func TestNonRetryableFailureIsDroppedAtOnce(t *testing.T) {
	h := setupHarness(t, nil)

	ghost, err := schema.NewTask(schema.TaskFields{Title: "ghost"}, h.owner, false, time.Now())
	require.NoError(t, err)
	require.NoError(t, h.store.Upsert(ghost))
	require.NoError(t, h.engine.Enqueue(schema.NewUpdateOperation(ghost.ID, &schema.TaskPatch{Title: strPtr("x")}, time.Now())))

	res, err := h.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, h.pending(t))
}

func TestDeleteOfMissingRemoteTaskSucceeds(t *testing.T) {
	h := setupHarness(t, nil)

	require.NoError(t, h.engine.Enqueue(schema.NewDeleteOperation("never-existed", time.Now())))

	res, err := h.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Synced)
	assert.Zero(t, res.Failed)
}

func TestDuplicateCreateCountsAsApplied(t *testing.T) {
	h := setupHarness(t, nil)

	task := h.createOffline(t, "already there")
	h.server.Put(task)

	res, err := h.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Synced)
	assert.Len(t, h.server.Tasks(h.owner), 1)
}

func TestDeleteConflict(t *testing.T) {
	h := setupHarness(t, nil)
	ctx := context.Background()

	task := h.createOffline(t, "shared")
	_, err := h.engine.Sync(ctx)
	require.NoError(t, err)

	h.server.Remove(task.ID)

	res, err := h.engine.Sync(ctx)
	require.NoError(t, err)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, schema.ConflictDelete, res.Conflicts[0].Kind)

	_, err = h.store.Get(task.ID)
	require.NoError(t, err, "local copy is not auto-removed")

	// Keeping the local side re-creates it remotely.
	require.NoError(t, h.engine.ResolveConflict(ctx, task.ID, schema.ResolveLocal))
	assert.Len(t, h.server.Tasks(h.owner), 1)
	assert.Empty(t, h.engine.Conflicts())

	h.server.Remove(task.ID)
	_, err = h.engine.Sync(ctx)
	require.NoError(t, err)

	// Keeping the remote side removes it locally.
	require.NoError(t, h.engine.ResolveConflict(ctx, task.ID, schema.ResolveRemote))
	_, err = h.store.Get(task.ID)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestLocalOnlyTasksAreNotDeleteConflicts(t *testing.T) {
	h := setupHarness(t, nil)

	task, err := schema.NewTask(schema.TaskFields{Title: "guest data"}, schema.LocalOwnerID, true, time.Now())
	require.NoError(t, err)
	require.NoError(t, h.store.Upsert(task))

	res, err := h.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Conflicts)
}

func TestResolveLocalPushesLocalVersion(t *testing.T) {
	h := setupHarness(t, nil)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	r := h.remoteTask(t, "remote", base)
	local := r.Clone()
	local.Title = "local"
	local.Tags = []string{"mine"}
	local.UpdatedAt = schema.Timestamp(base.Add(time.Minute))
	require.NoError(t, h.store.Upsert(local))

	_, err := h.engine.Sync(ctx)
	require.NoError(t, err)
	require.Len(t, h.engine.Conflicts(), 1)

	require.NoError(t, h.engine.ResolveConflict(ctx, r.ID, schema.ResolveLocal))

	remoteTasks := h.server.Tasks(h.owner)
	require.Len(t, remoteTasks, 1)
	assert.True(t, local.SameContent(remoteTasks[0]))
	assert.True(t, local.UpdatedAt.Equal(remoteTasks[0].UpdatedAt))

	res, err := h.engine.Sync(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Conflicts)
}

func TestResolveRemoteOverwritesLocal(t *testing.T) {
	h := setupHarness(t, nil)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	r := h.remoteTask(t, "remote", base)
	local := r.Clone()
	local.Title = "local"
	local.UpdatedAt = schema.Timestamp(base.Add(time.Minute))
	require.NoError(t, h.store.Upsert(local))

	_, err := h.engine.Sync(ctx)
	require.NoError(t, err)

	require.NoError(t, h.engine.ResolveConflict(ctx, r.ID, schema.ResolveRemote))
	got, err := h.store.Get(r.ID)
	require.NoError(t, err)
	assert.Equal(t, "remote", got.Title)

	err = h.engine.ResolveConflict(ctx, r.ID, schema.ResolveRemote)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound), "already resolved")

	err = h.engine.ResolveConflict(ctx, r.ID, "mine")
	assert.True(t, apperrors.Is(err, apperrors.ErrValidation))
}

func TestDeleteUpdateConflict(t *testing.T) {
	h := setupHarness(t, nil)
	ctx := context.Background()

	task := h.createOffline(t, "contested")
	_, err := h.engine.Sync(ctx)
	require.NoError(t, err)

	h.deleteOffline(t, task.ID)

	// The remote changes after the delete was queued, and the delete itself
	// cannot reach the server this pass.
	changed := task.Clone()
	changed.Title = "changed elsewhere"
	changed.UpdatedAt = schema.Timestamp(time.Now().Add(time.Minute))
	h.server.Put(changed)
	h.server.FailNext(http.MethodDelete, 1, http.StatusServiceUnavailable)

	res, err := h.engine.Sync(ctx)
	require.NoError(t, err)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, schema.ConflictDeleteUpdate, res.Conflicts[0].Kind)
	assert.Nil(t, res.Conflicts[0].Local)

	_, err = h.store.Get(task.ID)
	assert.Error(t, err, "the remote version is not pulled while the delete is pending")

	require.NoError(t, h.engine.ResolveConflict(ctx, task.ID, schema.ResolveRemote))
	got, err := h.store.Get(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "changed elsewhere", got.Title)
	assert.Empty(t, h.pending(t), "the local delete is discarded")
}

// blockingConn lets a test hold a pass inside the probe.
type blockingConn struct {
	entered chan struct{}
	release chan struct{}
}

func (c *blockingConn) Online() bool                      { return true }
func (c *blockingConn) Subscribe(func(online bool)) func() { return func() {} }
func (c *blockingConn) Probe(ctx context.Context) error {
	c.entered <- struct{}{}
	<-c.release
	return nil
}

func TestConcurrentSyncIsRejected(t *testing.T) {
	h := setupHarness(t, nil)
	conn := &blockingConn{entered: make(chan struct{}), release: make(chan struct{})}
	engine, err := New(h.store, h.client, conn, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := engine.Sync(context.Background())
		done <- err
	}()
	<-conn.entered

	assert.True(t, engine.Syncing())
	_, err = engine.Sync(context.Background())
	assert.True(t, apperrors.Is(err, apperrors.ErrSyncInProgress))

	close(conn.release)
	require.NoError(t, <-done)
	assert.False(t, engine.Syncing())
}

func TestSchedulerSyncsWhenBackOnline(t *testing.T) {
	h := setupHarness(t, &Config{
		Interval:        time.Hour,
		OnlineDebounce:  10 * time.Millisecond,
		EnqueueDebounce: 10 * time.Millisecond,
	})
	h.monitor.SetOnline(false)

	succeeded := make(chan struct{}, 10)
	h.bus.SubscribeType(events.SyncSucceeded, func(events.Event) { succeeded <- struct{}{} })

	require.NoError(t, h.engine.Start(context.Background()))
	assert.Error(t, h.engine.Start(context.Background()), "second start is rejected")
	assert.True(t, h.engine.Status().Running)

	h.createOffline(t, "queued while offline")
	select {
	case <-succeeded:
		t.Fatal("no sync expected while offline")
	case <-time.After(50 * time.Millisecond):
	}

	h.monitor.SetOnline(true)
	select {
	case <-succeeded:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a sync after coming back online")
	}
	assert.Empty(t, h.pending(t))

	// An enqueue while online triggers another pass.
	h.createOffline(t, "queued while online")
	select {
	case <-succeeded:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a sync after enqueue")
	}
	assert.Empty(t, h.pending(t))

	h.engine.Stop()
	h.engine.Stop()
	assert.False(t, h.engine.Status().Running)
}

func TestSchedulerSyncsOnInterval(t *testing.T) {
	h := setupHarness(t, &Config{
		Interval:        20 * time.Millisecond,
		OnlineDebounce:  time.Hour,
		EnqueueDebounce: time.Hour,
	})

	succeeded := make(chan struct{}, 10)
	h.bus.SubscribeType(events.SyncSucceeded, func(events.Event) { succeeded <- struct{}{} })

	// Queued straight into the store so no enqueue trigger fires.
	task, err := schema.NewTask(schema.TaskFields{Title: "picked up by the ticker"}, h.owner, false, time.Now())
	require.NoError(t, err)
	require.NoError(t, h.store.Upsert(task))
	require.NoError(t, h.store.EnqueueOperation(schema.NewCreateOperation(task, time.Now())))

	require.NoError(t, h.engine.Start(context.Background()))
	select {
	case <-succeeded:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a sync on the interval")
	}
	assert.Empty(t, h.pending(t))
	assert.Len(t, h.server.Tasks(h.owner), 1)
}

func TestSchedulerSkipsTicksWhileOffline(t *testing.T) {
	h := setupHarness(t, &Config{Interval: 10 * time.Millisecond})
	h.monitor.SetOnline(false)

	var started atomic.Int32
	h.bus.SubscribeType(events.SyncStarted, func(events.Event) { started.Add(1) })

	require.NoError(t, h.engine.Start(context.Background()))
	time.Sleep(100 * time.Millisecond)
	h.engine.Stop()

	assert.Zero(t, started.Load())
}

func TestScheduledPassIsSkipped(t *testing.T) {
	authorized := true
	h := setupHarness(t, &Config{Authorized: func() bool { return authorized }})
	ctx := context.Background()

	var started atomic.Int32
	h.bus.SubscribeType(events.SyncStarted, func(events.Event) { started.Add(1) })

	h.engine.inFlight.Store(true)
	h.engine.scheduled(ctx, "interval")
	assert.Zero(t, started.Load(), "a pass is already in flight")
	h.engine.inFlight.Store(false)

	authorized = false
	h.engine.scheduled(ctx, "interval")
	assert.Zero(t, started.Load(), "no usable session")

	authorized = true
	h.engine.scheduled(ctx, "interval")
	assert.Equal(t, int32(1), started.Load())
}

func TestSchedulerPushesOperationsQueuedByAnotherProcess(t *testing.T) {
	h := setupHarness(t, &Config{
		Interval:        time.Hour,
		OnlineDebounce:  time.Hour,
		EnqueueDebounce: 10 * time.Millisecond,
		WatchStore:      true,
	})

	var started atomic.Int32
	h.bus.SubscribeType(events.SyncStarted, func(events.Event) { started.Add(1) })
	succeeded := make(chan struct{}, 10)
	h.bus.SubscribeType(events.SyncSucceeded, func(events.Event) { succeeded <- struct{}{} })

	require.NoError(t, h.engine.Start(context.Background()))

	other, err := store.Open(h.store.Path())
	require.NoError(t, err)
	t.Cleanup(func() { _ = other.Close() })

	task, err := schema.NewTask(schema.TaskFields{Title: "from another process"}, h.owner, false, time.Now())
	require.NoError(t, err)
	require.NoError(t, other.Upsert(task))
	require.NoError(t, other.EnqueueOperation(schema.NewCreateOperation(task, time.Now())))

	select {
	case <-succeeded:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a sync after another handle queued an operation")
	}
	assert.Len(t, h.server.Tasks(h.owner), 1)
	assert.Empty(t, h.pending(t))

	// The pass's own writes do not start another one.
	passes := started.Load()
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, passes, started.Load())
}
