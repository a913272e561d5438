package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muster_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "muster_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	rsvpTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muster_rsvp_transitions_total",
			Help: "Applied RSVP status transitions",
		},
		[]string{"from", "to"},
	)

	rsvpFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muster_rsvp_failures_total",
			Help: "Rejected RSVP operations by rule",
		},
		[]string{"reason"},
	)

	waitlistPromotions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "muster_waitlist_promotions_total",
			Help: "Waitlisted attendees promoted to going",
		},
	)

	websocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "muster_websocket_clients",
			Help: "Connected websocket clients",
		},
	)

	pushSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muster_push_sent_total",
			Help: "Web push notifications by kind and result",
		},
		[]string{"kind", "result"},
	)

	snapshotRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "muster_snapshot_runs_total",
			Help: "Database snapshot runs by result",
		},
		[]string{"result"},
	)
)

func TrackHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequests.WithLabelValues(method, path, status).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func TrackRSVPTransition(from, to string) {
	rsvpTransitions.WithLabelValues(from, to).Inc()
}

func TrackRSVPFailure(reason string) {
	rsvpFailures.WithLabelValues(reason).Inc()
}

func TrackWaitlistPromotion() {
	waitlistPromotions.Inc()
}

func WebsocketConnected() {
	websocketClients.Inc()
}

func WebsocketDisconnected() {
	websocketClients.Dec()
}

func TrackPushSent(kind, result string) {
	pushSent.WithLabelValues(kind, result).Inc()
}

func TrackSnapshotRun(result string) {
	snapshotRuns.WithLabelValues(result).Inc()
}
