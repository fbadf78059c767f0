package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveSessions is the number of identities with a live session record.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "interview_proxy_active_sessions",
		Help: "Client sessions currently held by the registry.",
	})

	// ActiveListeners counts attached listeners by pool ("session" or "legacy").
	ActiveListeners = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "interview_proxy_active_listeners",
		Help: "Attached SSE/WebSocket listeners.",
	}, []string{"pool"})

	// Broadcasts counts broadcast calls by target ("session", "legacy", "no_session").
	Broadcasts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_proxy_broadcasts_total",
		Help: "Broadcast calls by delivery target.",
	}, []string{"target"})

	// ListenerWriteFailures counts failed deliveries to individual listeners.
	// Failing listeners are not removed, so a steadily rising value points at
	// sinks whose transport never reported a close.
	ListenerWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_proxy_listener_write_failures_total",
		Help: "Listener writes that failed or were dropped.",
	})

	// SessionsReaped counts sessions removed by the grace-period cleanup.
	SessionsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_proxy_sessions_reaped_total",
		Help: "Empty sessions removed after the grace period.",
	})

	// UpstreamLatency tracks upstream call duration by operation and outcome.
	UpstreamLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "interview_proxy_upstream_latency_seconds",
		Help:    "Latency of OpenRouter calls.",
		Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"operation", "outcome"})

	// ChatOutcomes counts /api/chat terminal states ("complete", "fallback", "greeting", "error").
	ChatOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "interview_proxy_chat_outcomes_total",
		Help: "Terminal outcomes of orchestrated chat requests.",
	}, []string{"outcome"})

	// MirrorErrors counts failed publishes to the NATS event tap.
	MirrorErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "interview_proxy_mirror_errors_total",
		Help: "Failed publishes to the event mirror.",
	})
)
