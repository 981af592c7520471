// Package connectivity tracks whether the remote service is believed reachable.
//
// The monitor keeps two signals:
//  1. A passive, best-known online flag that gates whether a sync is attempted.
//     It changes through SetOnline, and Watch keeps it current by probing on an
//     interval since a headless process receives no platform network events.
//  2. An active Probe that issues a bounded-time request to the remote health
//     endpoint and gates whether a sync that already started may proceed.
package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/mschirtzinger/tasksync/internal/errors"
	"github.com/mschirtzinger/tasksync/internal/events"
)

// HealthChecker performs the active reachability check.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Config holds configuration for the monitor.
type Config struct {
	// HealthURL is requested by the default checker (ignored when Checker is set)
	HealthURL string

	// Checker overrides the HTTP health check
	Checker HealthChecker

	// ProbeTimeout bounds a single probe (default: 5s)
	ProbeTimeout time.Duration

	// InitialOnline is the flag value before the first transition
	InitialOnline bool

	// Bus receives ConnectivityChanged events (default: private bus)
	Bus *events.Bus

	// Logger for monitor activity
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		ProbeTimeout: 5 * time.Second,
		Logger:       slog.Default(),
	}
}

// Monitor holds the best-known connectivity state.
type Monitor struct {
	checker HealthChecker
	timeout time.Duration
	bus     *events.Bus
	logger  *slog.Logger

	mu     sync.RWMutex
	online bool
}

// New creates a monitor. Either HealthURL or Checker must be set.
func New(config *Config) (*Monitor, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Checker == nil && config.HealthURL == "" {
		return nil, fmt.Errorf("health url or checker is required")
	}

	m := &Monitor{
		checker: config.Checker,
		timeout: config.ProbeTimeout,
		bus:     config.Bus,
		logger:  config.Logger,
		online:  config.InitialOnline,
	}
	if m.timeout <= 0 {
		m.timeout = 5 * time.Second
	}
	if m.bus == nil {
		m.bus = events.NewBus()
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.checker == nil {
		m.checker = &httpChecker{url: config.HealthURL, client: &http.Client{}}
	}
	return m, nil
}

// Online returns the best-known connectivity.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// SetOnline records a passive connectivity signal. A ConnectivityChanged event
// is published only when the value actually changes. Returns true on a
// transition.
func (m *Monitor) SetOnline(online bool) bool {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	m.mu.Unlock()

	m.logger.Info("connectivity changed", "online", online)
	m.bus.Publish(events.ConnectivityChanged, events.ConnectivityData{Online: online})
	return true
}

// Subscribe calls fn on every connectivity transition. The returned function
// removes the subscription.
func (m *Monitor) Subscribe(fn func(online bool)) func() {
	return m.bus.SubscribeType(events.ConnectivityChanged, func(e events.Event) {
		if d, ok := e.Data.(events.ConnectivityData); ok {
			fn(d.Online)
		}
	})
}

// Probe checks whether the remote service answers within the probe timeout.
// It does not change the passive flag. A nil error means reachable; otherwise
// the error carries UNREACHABLE or TIMEOUT.
func (m *Monitor) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.checker.Health(ctx)
	if err == nil {
		return nil
	}
	if ctx.Err() == context.DeadlineExceeded {
		return apperrors.Wrap(apperrors.ErrTimeout, fmt.Sprintf("health check exceeded %s", m.timeout), err)
	}
	return apperrors.Wrap(apperrors.ErrUnreachable, "remote service unreachable", err)
}

// Reachable is Probe reduced to a boolean.
func (m *Monitor) Reachable(ctx context.Context) bool {
	return m.Probe(ctx) == nil
}

// Watch probes every interval and feeds the result into SetOnline until ctx is
// cancelled. The first probe runs immediately.
func (m *Monitor) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		err := m.Probe(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil && m.Online() {
			m.logger.Debug("probe failed", "error", err)
		}
		m.SetOnline(err == nil)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type httpChecker struct {
	url    string
	client *http.Client
}

func (c *httpChecker) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("health endpoint returned %s", resp.Status)
	}
	return nil
}
