package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Loop labels.
const (
	LoopAlerts      = "alerts"
	LoopOutlook     = "outlook"
	LoopDiscussions = "discussions"
)

// Metrics holds the Prometheus collectors for the polling loops and the
// notification pipeline.
type Metrics struct {
	Polls        *prometheus.CounterVec   // labels: loop, outcome={success,error}
	PollDuration *prometheus.HistogramVec // labels: loop
	FetchErrors  *prometheus.CounterVec   // labels: loop, kind

	ActiveAlerts       *prometheus.GaugeVec // labels: code
	AlertsExcluded     prometheus.Counter
	ItemsMalformed     prometheus.Counter
	Notifications      prometheus.Counter
	NotificationErrors *prometheus.CounterVec // labels: sink
	DiscussionRecords  prometheus.Gauge
	StreamSubscribers  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. Tests pass
// a fresh prometheus.NewRegistry() to avoid duplicate registration panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "severe_dashboard",
			Name:      "polls_total",
			Help:      "Poll attempts by loop and outcome.",
		}, []string{"loop", "outcome"}),
		PollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "severe_dashboard",
			Name:      "poll_duration_seconds",
			Help:      "Duration of one poll including fetch and apply.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"loop"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "severe_dashboard",
			Name:      "fetch_errors_total",
			Help:      "Failed fetches by loop and failure kind.",
		}, []string{"loop", "kind"}),
		ActiveAlerts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "severe_dashboard",
			Name:      "active_alerts",
			Help:      "Active alerts by counter code.",
		}, []string{"code"}),
		AlertsExcluded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "severe_dashboard",
			Name:      "alerts_excluded_total",
			Help:      "Raw alerts that matched no tracked event kind.",
		}),
		ItemsMalformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "severe_dashboard",
			Name:      "items_malformed_total",
			Help:      "Individual feed items dropped because they could not be decoded.",
		}),
		Notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "severe_dashboard",
			Name:      "notifications_total",
			Help:      "Notifications emitted for newly appeared alerts.",
		}),
		NotificationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "severe_dashboard",
			Name:      "notification_errors_total",
			Help:      "Notification delivery failures by sink.",
		}, []string{"sink"}),
		DiscussionRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "severe_dashboard",
			Name:      "discussion_records",
			Help:      "Mesoscale discussions currently listed.",
		}),
		StreamSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "severe_dashboard",
			Name:      "stream_subscribers",
			Help:      "Connected event stream clients.",
		}),
	}

	reg.MustRegister(
		m.Polls,
		m.PollDuration,
		m.FetchErrors,
		m.ActiveAlerts,
		m.AlertsExcluded,
		m.ItemsMalformed,
		m.Notifications,
		m.NotificationErrors,
		m.DiscussionRecords,
		m.StreamSubscribers,
	)

	return m
}

// ObservePoll records one completed poll.
func (m *Metrics) ObservePoll(loop string, started time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.Polls.WithLabelValues(loop, outcome).Inc()
	m.PollDuration.WithLabelValues(loop).Observe(time.Since(started).Seconds())
}

// SetActive replaces the per-code gauge values.
func (m *Metrics) SetActive(byCode map[string]int) {
	m.ActiveAlerts.Reset()
	for code, n := range byCode {
		m.ActiveAlerts.WithLabelValues(code).Set(float64(n))
	}
}
