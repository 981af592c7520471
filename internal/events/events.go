// Package events is the typed lifecycle notification bus shared by the sync
// engine, the migration engine, the connectivity monitor and their observers.
//
// Handlers run synchronously on the publishing goroutine, in registration
// order. A handler may subscribe or unsubscribe from within a callback; the
// change takes effect for the next Publish.
package events

import (
	"sync"
	"time"
)

// Type identifies a lifecycle event.
type Type string

const (
	SyncStarted   Type = "sync_started"
	SyncSucceeded Type = "sync_succeeded"
	SyncFailed    Type = "sync_failed"
	SyncConflict  Type = "sync_conflict"

	ConnectivityChanged Type = "connectivity_changed"

	OperationEnqueued  Type = "operation_enqueued"
	OperationProcessed Type = "operation_processed"

	MigrationStage    Type = "migration_stage"
	MigrationProgress Type = "migration_progress"
	MigrationComplete Type = "migration_complete"
	MigrationError    Type = "migration_error"
)

// Event is one published notification. Data holds the payload struct that
// matches Type (see payloads.go).
type Event struct {
	Type Type      `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data,omitempty"`
}

// Handler receives published events.
type Handler func(Event)

type subscription struct {
	id     uint64
	filter Type // empty matches every type
	fn     Handler
}

// Bus fans events out to subscribers. The zero value is ready to use and a
// nil *Bus drops everything published to it.
type Bus struct {
	mu   sync.Mutex
	next uint64
	subs []subscription
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn for every event type. The returned function removes
// the subscription and is safe to call more than once.
func (b *Bus) Subscribe(fn Handler) func() {
	return b.add("", fn)
}

// SubscribeType registers fn for a single event type.
func (b *Bus) SubscribeType(t Type, fn Handler) func() {
	return b.add(t, fn)
}

func (b *Bus) add(filter Type, fn Handler) func() {
	b.mu.Lock()
	b.next++
	id := b.next
	b.subs = append(b.subs, subscription{id: id, filter: filter, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers an event of type t to every matching subscriber and returns
// once all of them have run.
func (b *Bus) Publish(t Type, data any) {
	if b == nil {
		return
	}

	b.mu.Lock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	ev := Event{Type: t, Time: time.Now(), Data: data}
	for _, s := range subs {
		if s.filter == "" || s.filter == t {
			s.fn(ev)
		}
	}
}

// Len returns the number of active subscriptions.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
