package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/tasksync/internal/events"
)

func setupDashboard(t *testing.T) (*Server, *Handler, *events.Bus) {
	t.Helper()

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "tasksync_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	srv := NewServer(&Config{
		Addr:     "127.0.0.1:0",
		Gatherer: reg,
		Status:   func() any { return map[string]int{"pending": 2} },
	})
	require.NoError(t, srv.Start())
	t.Cleanup(func() { _ = srv.Stop() })

	h := NewHandler(srv, nil)
	bus := events.NewBus()
	t.Cleanup(h.Attach(bus))
	return srv, h, bus
}

func dial(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+srv.Addr()+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func waitForClients(t *testing.T, srv *Server, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return srv.ClientCount() == n }, 5*time.Second, 10*time.Millisecond)
}

func TestWelcomeIsStats(t *testing.T) {
	srv, h, _ := setupDashboard(t)
	h.SetOnline(true)

	conn := dial(t, srv)
	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeStats, msg.Type)

	var stats StatsData
	require.NoError(t, json.Unmarshal(msg.Data, &stats))
	assert.True(t, stats.Online)
}

func TestEventsAreForwarded(t *testing.T) {
	srv, h, bus := setupDashboard(t)

	conn := dial(t, srv)
	_ = readMessage(t, conn) // welcome
	waitForClients(t, srv, 1)

	bus.Publish(events.SyncSucceeded, events.SyncData{Synced: 3})

	msg := readMessage(t, conn)
	assert.Equal(t, string(events.SyncSucceeded), msg.Type)
	var data events.SyncData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, 3, data.Synced)

	msg = readMessage(t, conn)
	assert.Equal(t, MessageTypeStats, msg.Type)
	assert.Equal(t, 1, h.Stats().Syncs)
}

func TestStatsTracking(t *testing.T) {
	_, h, bus := setupDashboard(t)

	bus.Publish(events.OperationEnqueued, events.OperationData{Kind: "create"})
	bus.Publish(events.OperationProcessed, events.OperationData{Kind: "create", Outcome: events.OutcomeApplied})
	bus.Publish(events.OperationProcessed, events.OperationData{Kind: "update", Outcome: events.OutcomeDropped})
	bus.Publish(events.SyncFailed, events.SyncData{Error: "unreachable"})
	bus.Publish(events.SyncConflict, events.ConflictData{TaskID: "t1", Kind: "update"})
	bus.Publish(events.ConnectivityChanged, events.ConnectivityData{Online: true})

	stats := h.Stats()
	assert.Equal(t, 1, stats.Enqueued)
	assert.Equal(t, 1, stats.Applied)
	assert.Equal(t, 1, stats.Dropped)
	assert.Equal(t, 1, stats.SyncFailures)
	assert.Equal(t, "unreachable", stats.LastSyncError)
	assert.Equal(t, 1, stats.Conflicts)
	assert.True(t, stats.Online)
}

func TestHTTPEndpoints(t *testing.T) {
	srv, _, _ := setupDashboard(t)
	base := "http://" + srv.Addr()

	get := func(path string) (int, string) {
		resp, err := http.Get(base + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(body)
	}

	code, body := get("/health")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"status":"ok"`)

	code, body = get("/status")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"pending":2`)

	code, body = get("/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "tasksync_test_total 1")

	code, _ = get("/nope")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestClientDisconnect(t *testing.T) {
	srv, _, _ := setupDashboard(t)

	conn := dial(t, srv)
	_ = readMessage(t, conn)
	waitForClients(t, srv, 1)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	waitForClients(t, srv, 0)
}
