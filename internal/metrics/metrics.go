package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the Prometheus collectors of the scraper. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	Registry        *prometheus.Registry
	ItemsTotal      *prometheus.CounterVec
	ReauthTotal     *prometheus.CounterVec
	JobsTotal       *prometheus.CounterVec
	JobDuration     *prometheus.HistogramVec
	EventsPublished *prometheus.CounterVec
	OutboxBacklog   *prometheus.GaugeVec
}

// New registers all collectors on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	items := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_items_processed_total",
			Help: "Work items processed, by portal, strategy and outcome.",
		},
		[]string{"portal", "strategy", "outcome"},
	)
	reauth := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_reauthentications_total",
			Help: "Re-authentication attempts during jobs.",
		},
		[]string{"portal", "result"},
	)
	jobs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "portal_jobs_total",
			Help: "Finished jobs by portal, mode and status.",
		},
		[]string{"portal", "mode", "status"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "portal_job_duration_seconds",
			Help:    "Wall time of finished jobs.",
			Buckets: prometheus.ExponentialBuckets(5, 2, 10),
		},
		[]string{"portal", "mode"},
	)
	events := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_events_published_total",
			Help: "Outbox publish attempts by event type and result.",
		},
		[]string{"event_type", "result"},
	)
	backlog := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "outbox_events",
			Help: "Outbox events awaiting publication or dead-lettered.",
		},
		[]string{"state"},
	)

	registry.MustRegister(items, reauth, jobs, duration, events, backlog)

	return &Metrics{
		Registry:        registry,
		ItemsTotal:      items,
		ReauthTotal:     reauth,
		JobsTotal:       jobs,
		JobDuration:     duration,
		EventsPublished: events,
		OutboxBacklog:   backlog,
	}
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

func (m *Metrics) ItemProcessed(portal, strategy, outcome string) {
	if m == nil {
		return
	}
	m.ItemsTotal.WithLabelValues(portal, strategy, outcome).Inc()
}

func (m *Metrics) Reauthenticated(portal string, ok bool) {
	if m == nil {
		return
	}
	m.ReauthTotal.WithLabelValues(portal, result(ok)).Inc()
}

func (m *Metrics) JobFinished(portal, mode, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(portal, mode, status).Inc()
	m.JobDuration.WithLabelValues(portal, mode).Observe(d.Seconds())
}

func (m *Metrics) EventPublished(eventType string, ok bool) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(eventType, result(ok)).Inc()
}

func (m *Metrics) SetOutboxBacklog(pending, deadLetter int64) {
	if m == nil {
		return
	}
	m.OutboxBacklog.WithLabelValues("pending").Set(float64(pending))
	m.OutboxBacklog.WithLabelValues("dead_letter").Set(float64(deadLetter))
}
