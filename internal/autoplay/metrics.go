package autoplay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ViewsReported       prometheus.Counter
	ViewsDeduped        prometheus.Counter
	ReportFailures      *prometheus.CounterVec
	AutoplayTransitions prometheus.Counter
	PendingTimers       prometheus.Gauge
}

// NewMetrics registers the collectors with reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ViewsReported: f.NewCounter(prometheus.CounterOpts{
			Name: "reelfeed_views_reported_total",
			Help: "Scroll views accepted by the reporter.",
		}),
		ViewsDeduped: f.NewCounter(prometheus.CounterOpts{
			Name: "reelfeed_views_deduped_total",
			Help: "Scroll views dropped inside the session window.",
		}),
		ReportFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "reelfeed_view_report_failures_total",
			Help: "View reports dropped after failing.",
		}, []string{"kind"}),
		AutoplayTransitions: f.NewCounter(prometheus.CounterOpts{
			Name: "reelfeed_autoplay_transitions_total",
			Help: "Changes of the playing video.",
		}),
		PendingTimers: f.NewGauge(prometheus.GaugeOpts{
			Name: "reelfeed_autoplay_pending_timers",
			Help: "Armed per-item dwell timers.",
		}),
	}
}
