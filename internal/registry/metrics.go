package registry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the registry collectors. A nil *Metrics records nothing.
type Metrics struct {
	actions        *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	reconciles     *prometheus.CounterVec
	busyRejections prometheus.Counter
	projects       prometheus.Gauge
	activeListings prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aarna",
				Subsystem: "registry",
				Name:      "actions_total",
				Help:      "Registry actions by operation and outcome category.",
			},
			[]string{"operation", "outcome"},
		),
		actionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "aarna",
				Subsystem: "registry",
				Name:      "action_duration_seconds",
				Help:      "Duration of registry actions including ledger round-trips.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
			[]string{"operation"},
		),
		reconciles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "aarna",
				Subsystem: "registry",
				Name:      "reconciliations_total",
				Help:      "Authoritative state reads by result.",
			},
			[]string{"result"},
		),
		busyRejections: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "aarna",
				Subsystem: "registry",
				Name:      "busy_rejections_total",
				Help:      "Actions rejected because another action was in flight.",
			},
		),
		projects: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "aarna",
				Subsystem: "registry",
				Name:      "projects",
				Help:      "Projects in the mirror.",
			},
		),
		activeListings: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "aarna",
				Subsystem: "registry",
				Name:      "active_listings",
				Help:      "Active listings in the mirror.",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.actions, m.actionDuration, m.reconciles, m.busyRejections, m.projects, m.activeListings)
	}
	return m
}

func (m *Metrics) recordAction(operation, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(operation, outcome).Inc()
	m.actionDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func (m *Metrics) recordBusy() {
	if m == nil {
		return
	}
	m.busyRejections.Inc()
}

func (m *Metrics) recordReconcile(err error, snap Snapshot) {
	if m == nil {
		return
	}
	if err != nil {
		m.reconciles.WithLabelValues("error").Inc()
		return
	}
	m.reconciles.WithLabelValues("ok").Inc()
	m.projects.Set(float64(len(snap.Projects)))
	active := 0
	for _, l := range snap.Listings {
		if l.Active {
			active++
		}
	}
	m.activeListings.Set(float64(active))
}
