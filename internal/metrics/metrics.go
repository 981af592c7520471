// Package metrics exposes sync and migration activity as Prometheus
// collectors fed from the event bus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mschirtzinger/tasksync/internal/events"
)

const namespace = "tasksync"

// Metrics holds the tasksync collectors.
type Metrics struct {
	SyncPasses        *prometheus.CounterVec
	SyncDuration      prometheus.Histogram
	OperationsQueued  *prometheus.CounterVec
	OperationsHandled *prometheus.CounterVec
	Conflicts         *prometheus.CounterVec
	Online            prometheus.Gauge
	MigrationTotal    prometheus.Gauge
	MigrationDone     prometheus.Gauge
	MigrationRuns     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. pending, when not
// nil, backs a gauge reporting the current queue length.
func New(reg prometheus.Registerer, pending func() float64) (*Metrics, error) {
	m := &Metrics{
		SyncPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_passes_total",
			Help:      "Sync passes by result.",
		}, []string{"result"}),
		SyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of sync passes.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		OperationsQueued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_enqueued_total",
			Help:      "Pending operations added to the queue.",
		}, []string{"kind"}),
		OperationsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_processed_total",
			Help:      "Queued operations processed during sync, by outcome.",
		}, []string{"kind", "outcome"}),
		Conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conflicts_detected_total",
			Help:      "Conflicts detected during merge.",
		}, []string{"kind"}),
		Online: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "online",
			Help:      "1 when the remote service is believed reachable.",
		}),
		MigrationTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "migration_tasks_total",
			Help:      "Tasks selected by the current migration.",
		}),
		MigrationDone: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "migration_tasks_processed",
			Help:      "Tasks processed by the current migration.",
		}),
		MigrationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migration_runs_total",
			Help:      "Finished migration runs by result.",
		}, []string{"result"}),
	}

	collectors := []prometheus.Collector{
		m.SyncPasses, m.SyncDuration, m.OperationsQueued, m.OperationsHandled,
		m.Conflicts, m.Online, m.MigrationTotal, m.MigrationDone, m.MigrationRuns,
	}
	if pending != nil {
		collectors = append(collectors, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_operations",
			Help:      "Operations waiting in the queue.",
		}, pending))
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Attach subscribes m to bus. The returned func detaches it.
func (m *Metrics) Attach(bus *events.Bus) func() {
	return bus.Subscribe(m.observe)
}

func (m *Metrics) observe(ev events.Event) {
	switch ev.Type {
	case events.SyncSucceeded:
		if d, ok := ev.Data.(events.SyncData); ok {
			m.SyncPasses.WithLabelValues("success").Inc()
			m.SyncDuration.Observe(d.Duration.Seconds())
		}
	case events.SyncFailed:
		m.SyncPasses.WithLabelValues("failure").Inc()
		if d, ok := ev.Data.(events.SyncData); ok && d.Duration > 0 {
			m.SyncDuration.Observe(d.Duration.Seconds())
		}
	case events.SyncConflict:
		if d, ok := ev.Data.(events.ConflictData); ok {
			m.Conflicts.WithLabelValues(d.Kind).Inc()
		}
	case events.ConnectivityChanged:
		if d, ok := ev.Data.(events.ConnectivityData); ok {
			if d.Online {
				m.Online.Set(1)
			} else {
				m.Online.Set(0)
			}
		}
	case events.OperationEnqueued:
		if d, ok := ev.Data.(events.OperationData); ok {
			m.OperationsQueued.WithLabelValues(d.Kind).Inc()
		}
	case events.OperationProcessed:
		if d, ok := ev.Data.(events.OperationData); ok {
			m.OperationsHandled.WithLabelValues(d.Kind, d.Outcome).Inc()
		}
	case events.MigrationProgress:
		if d, ok := ev.Data.(events.ProgressData); ok {
			m.MigrationTotal.Set(float64(d.Total))
			m.MigrationDone.Set(float64(d.Migrated))
		}
	case events.MigrationComplete:
		m.MigrationRuns.WithLabelValues("complete").Inc()
	case events.MigrationError:
		m.MigrationRuns.WithLabelValues("error").Inc()
	}
}

// SetOnline records the initial connectivity state, before any change event.
func (m *Metrics) SetOnline(online bool) {
	if online {
		m.Online.Set(1)
		return
	}
	m.Online.Set(0)
}
