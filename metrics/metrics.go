// Package metrics provides Prometheus instrumentation for the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sightrelay"

var (
	// framesReceivedTotal counts every frame that reaches the gateway,
	// admitted or not.
	framesReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total number of frames received from clients",
		},
		[]string{"channel"}, // channel: websocket, http
	)

	// framesRejectedTotal counts frames dropped by the admission gates.
	framesRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_rejected_total",
			Help:      "Total number of frames rejected by admission control",
		},
		[]string{"reason"}, // reason: quota, interval
	)

	// framesAdmittedTotal counts frames forwarded upstream.
	framesAdmittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_admitted_total",
			Help:      "Total number of frames admitted and relayed upstream",
		},
	)

	// framesDegradedTotal counts frames relayed unnormalized after a
	// processing failure.
	framesDegradedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_degraded_total",
			Help:      "Total number of frames relayed without normalization",
		},
	)

	// normalizedFrameBytes observes the size of normalized frame payloads.
	normalizedFrameBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "normalized_frame_bytes",
			Help:      "Size of normalized frame payloads in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8), // 1KiB .. 16MiB
		},
	)

	// relayRequestDuration observes upstream inference call duration.
	relayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_request_duration_seconds",
			Help:      "Duration of upstream inference calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"model", "status"}, // status: success, error, cancelled
	)

	// relayEmptyResponsesTotal counts completions suppressed as whitespace-only.
	relayEmptyResponsesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_empty_responses_total",
			Help:      "Total number of upstream completions with no usable text",
		},
	)

	// sessionsActive is a gauge of currently registered sessions.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently registered client sessions",
		},
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		framesReceivedTotal,
		framesRejectedTotal,
		framesAdmittedTotal,
		framesDegradedTotal,
		normalizedFrameBytes,
		relayRequestDuration,
		relayEmptyResponsesTotal,
		sessionsActive,
	}
)

// RecordFrameReceived records a frame arriving on the given channel.
func RecordFrameReceived(channel string) {
	framesReceivedTotal.WithLabelValues(channel).Inc()
}

// RecordFrameRejected records an admission rejection.
func RecordFrameRejected(reason string) {
	framesRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordFrameAdmitted records an admitted frame and its normalized size.
func RecordFrameAdmitted(sizeBytes int64, degraded bool) {
	framesAdmittedTotal.Inc()
	normalizedFrameBytes.Observe(float64(sizeBytes))
	if degraded {
		framesDegradedTotal.Inc()
	}
}

// RecordRelayRequest records an upstream call's duration and outcome.
func RecordRelayRequest(model, status string, durationSeconds float64) {
	relayRequestDuration.WithLabelValues(model, status).Observe(durationSeconds)
}

// RecordEmptyResponse records a suppressed whitespace-only completion.
func RecordEmptyResponse() {
	relayEmptyResponsesTotal.Inc()
}

// SessionOpened increments the active session gauge.
func SessionOpened() {
	sessionsActive.Inc()
}

// SessionClosed decrements the active session gauge.
func SessionClosed() {
	sessionsActive.Dec()
}

// SetActiveSessions sets the active session gauge to an absolute value.
func SetActiveSessions(n int) {
	sessionsActive.Set(float64(n))
}
