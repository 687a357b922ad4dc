package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// comparison engine and the notification scheduler.
type Metrics struct {
	// Scheduler metrics.
	TicksTotal        prometheus.Counter
	TickDuration      prometheus.Histogram
	SubscribersDue    prometheus.Counter
	NotificationsSent prometheus.Counter
	SubscriberSkips   *prometheus.CounterVec // labels: reason={already_sent,invalid,no_data,provider,push}
	SchedulerRunning  prometheus.Gauge

	// Upstream provider metrics.
	ProviderRequests *prometheus.CounterVec   // labels: endpoint, outcome={success,error,empty}
	ProviderDuration *prometheus.HistogramVec // labels: endpoint

	// Comparison and cache metrics.
	Comparisons  *prometheus.CounterVec // labels: kind={now,extremes}, outcome={success,insufficient,error}
	CacheLookups *prometheus.CounterVec // labels: kind={t1h,ext,sent}, result={hit,miss,error}
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.TicksTotal,
		m.TickDuration,
		m.SubscribersDue,
		m.NotificationsSent,
		m.SubscriberSkips,
		m.SchedulerRunning,
		m.ProviderRequests,
		m.ProviderDuration,
		m.Comparisons,
		m.CacheLookups,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "yesterday",
			Name:      "scheduler_ticks_total",
			Help:      "Total scheduler ticks executed.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "yesterday",
			Name:      "scheduler_tick_duration_seconds",
			Help:      "Duration of a complete scheduler tick.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		SubscribersDue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "yesterday",
			Name:      "subscribers_due_total",
			Help:      "Subscribers whose notification window matched a tick.",
		}),
		NotificationsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "yesterday",
			Name:      "notifications_sent_total",
			Help:      "Notifications confirmed by the push collaborator.",
		}),
		SubscriberSkips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yesterday",
			Name:      "subscriber_skips_total",
			Help:      "Due subscribers skipped in a tick, by reason.",
		}, []string{"reason"}),
		SchedulerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "yesterday",
			Name:      "scheduler_running",
			Help:      "1 while the scheduler loop is active, 0 when shut down.",
		}),
		ProviderRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yesterday",
			Name:      "provider_requests_total",
			Help:      "Weather provider requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		ProviderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "yesterday",
			Name:      "provider_request_duration_seconds",
			Help:      "Weather provider request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		Comparisons: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yesterday",
			Name:      "comparisons_total",
			Help:      "Comparison computations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yesterday",
			Name:      "cache_lookups_total",
			Help:      "Comparison cache lookups by key kind and result.",
		}, []string{"kind", "result"}),
	}
}
