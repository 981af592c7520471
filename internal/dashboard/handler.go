package dashboard

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/mschirtzinger/tasksync/internal/events"
)

// StatsData summarizes activity since the daemon started.
type StatsData struct {
	Online        bool      `json:"online"`
	Syncs         int       `json:"syncs"`
	SyncFailures  int       `json:"sync_failures"`
	Conflicts     int       `json:"conflicts"`
	Enqueued      int       `json:"enqueued"`
	Applied       int       `json:"applied"`
	Dropped       int       `json:"dropped"`
	LastSyncAt    time.Time `json:"last_sync_at,omitempty"`
	LastSyncError string    `json:"last_sync_error,omitempty"`
}

// Handler forwards bus events to a Server and keeps running stats.
type Handler struct {
	server *Server
	logger *slog.Logger

	mu    sync.Mutex
	stats StatsData
}

// NewHandler creates a handler connected to server. The server's welcome
// message becomes the current stats.
func NewHandler(server *Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{server: server, logger: logger.With("component", "dashboard")}
	server.SetWelcome(h.statsMessage)
	return h
}

// Attach subscribes h to every event on bus. The returned func detaches it.
func (h *Handler) Attach(bus *events.Bus) func() {
	return bus.Subscribe(h.OnEvent)
}

// SetOnline seeds the connectivity state.
func (h *Handler) SetOnline(online bool) {
	h.mu.Lock()
	h.stats.Online = online
	h.mu.Unlock()
}

// OnEvent forwards ev and refreshes stats.
func (h *Handler) OnEvent(ev events.Event) {
	msg := Message{Type: string(ev.Type), Timestamp: ev.Time}
	if ev.Data != nil {
		data, err := json.Marshal(ev.Data)
		if err != nil {
			h.logger.Error("failed to marshal event data", "type", ev.Type, "error", err)
			return
		}
		msg.Data = data
	}
	h.server.Broadcast(msg)

	if h.record(ev) {
		h.server.Broadcast(h.statsMessage())
	}
}

// record folds ev into the stats and reports whether they changed.
func (h *Handler) record(ev events.Event) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch ev.Type {
	case events.SyncSucceeded:
		h.stats.Syncs++
		h.stats.LastSyncAt = ev.Time
		h.stats.LastSyncError = ""
	case events.SyncFailed:
		h.stats.SyncFailures++
		if d, ok := ev.Data.(events.SyncData); ok {
			h.stats.LastSyncError = d.Error
		}
	case events.SyncConflict:
		h.stats.Conflicts++
	case events.ConnectivityChanged:
		if d, ok := ev.Data.(events.ConnectivityData); ok {
			h.stats.Online = d.Online
		}
	case events.OperationEnqueued:
		h.stats.Enqueued++
	case events.OperationProcessed:
		d, ok := ev.Data.(events.OperationData)
		if !ok {
			return false
		}
		switch d.Outcome {
		case events.OutcomeApplied:
			h.stats.Applied++
		case events.OutcomeDropped:
			h.stats.Dropped++
		default:
			return false
		}
	default:
		return false
	}
	return true
}

// Stats returns the current statistics.
func (h *Handler) Stats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

func (h *Handler) statsMessage() Message {
	data, _ := json.Marshal(h.Stats())
	return Message{Type: MessageTypeStats, Timestamp: time.Now(), Data: data}
}
