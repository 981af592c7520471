package sync

import (
	"context"
	"fmt"
	stdsync "sync"
	"time"

	apperrors "github.com/mschirtzinger/tasksync/internal/errors"
)

// scheduler owns the background loop that triggers passes.
type scheduler struct {
	mu          stdsync.Mutex
	cancel      context.CancelFunc
	wg          stdsync.WaitGroup
	kicks       chan time.Duration
	unsubscribe func()
	watcher     *storeWatcher
}

func (s *scheduler) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// kick asks the loop for a pass after delay. Later kicks restart the delay.
// It is a no-op while the scheduler is stopped.
func (s *scheduler) kick(delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return
	}
	select {
	case s.kicks <- delay:
	default:
	}
}

// Start launches the scheduling loop:
//  1. a pass every Interval while online and authorized
//  2. a pass OnlineDebounce after an offline-to-online transition
//  3. a pass EnqueueDebounce after an enqueue while online
//  4. with WatchStore, a pass EnqueueDebounce after another process queues
//     an operation in the same store
//
// The loop runs until ctx is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) error {
	s := &e.sched
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return fmt.Errorf("scheduler already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.kicks = make(chan time.Duration, 8)
	s.unsubscribe = e.conn.Subscribe(func(online bool) {
		if online {
			e.logger.Debug("back online, scheduling sync")
			e.sched.kick(e.config.OnlineDebounce)
		}
	})

	var changed <-chan struct{}
	if e.config.WatchStore {
		w, err := watchStore(e.store.Path())
		if err != nil {
			e.logger.Warn("store watch unavailable, relying on the interval", "error", err)
		} else {
			s.watcher = w
			changed = w.Changed()
		}
	}

	s.wg.Add(1)
	go e.loop(ctx, s.kicks, changed)

	e.logger.Info("sync scheduler started", "interval", e.config.Interval)
	return nil
}

// Stop halts the loop, waits for it to exit and removes the connectivity
// subscription. It is safe to call more than once.
func (e *Engine) Stop() {
	s := &e.sched
	s.mu.Lock()
	cancel := s.cancel
	unsubscribe := s.unsubscribe
	watcher := s.watcher
	s.cancel = nil
	s.unsubscribe = nil
	s.watcher = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	unsubscribe()
	cancel()
	s.wg.Wait()
	if watcher != nil {
		if err := watcher.Close(); err != nil {
			e.logger.Warn("failed to stop store watch", "error", err)
		}
	}
	e.logger.Info("sync scheduler stopped")
}

func (e *Engine) loop(ctx context.Context, kicks <-chan time.Duration, changed <-chan struct{}) {
	defer e.sched.wg.Done()

	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()

	var debounce, storeDebounce *time.Timer
	var fire, storeFire <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
		if storeDebounce != nil {
			storeDebounce.Stop()
		}
	}()

	// IDs of queued operations already looked at after a store change.
	seen := map[string]bool{}

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			e.scheduled(ctx, "interval")

		case delay := <-kicks:
			if debounce == nil {
				debounce = time.NewTimer(delay)
			} else {
				debounce.Reset(delay)
			}
			fire = debounce.C

		case <-fire:
			fire = nil
			e.scheduled(ctx, "trigger")

		case <-changed:
			if storeDebounce == nil {
				storeDebounce = time.NewTimer(e.config.EnqueueDebounce)
			} else {
				storeDebounce.Reset(e.config.EnqueueDebounce)
			}
			storeFire = storeDebounce.C

		case <-storeFire:
			storeFire = nil
			next, fresh := e.newOperations(seen)
			if fresh && e.inFlight.Load() {
				// Look again once the running pass is done.
				storeDebounce.Reset(e.config.EnqueueDebounce)
				storeFire = storeDebounce.C
				continue
			}
			seen = next
			if fresh {
				e.scheduled(ctx, "store")
			}
		}
	}
}

// newOperations reports whether the queue holds an operation missing from
// seen, and returns the current set of queued IDs. Our own pass also writes
// the store, so only new operations lead to another pass.
func (e *Engine) newOperations(seen map[string]bool) (map[string]bool, bool) {
	ops, err := e.store.ListOperations()
	if err != nil {
		e.logger.Debug("failed to read queue after store change", "error", err)
		return seen, false
	}
	next := make(map[string]bool, len(ops))
	fresh := false
	for _, op := range ops {
		next[op.ID] = true
		if !seen[op.ID] {
			fresh = true
		}
	}
	return next, fresh
}

// scheduled runs a pass if the device is online, authorized and idle.
func (e *Engine) scheduled(ctx context.Context, reason string) {
	if !e.conn.Online() || e.inFlight.Load() {
		return
	}
	if e.config.Authorized != nil && !e.config.Authorized() {
		return
	}

	if _, err := e.Sync(ctx); err != nil && !apperrors.Is(err, apperrors.ErrSyncInProgress) {
		e.logger.Debug("scheduled sync failed", "reason", reason, "error", err)
	}
}
