// Package metrics exposes Prometheus instrumentation for the voice
// update pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the pipeline.
type Metrics struct {
	// Streaming session metrics
	SessionsStarted   prometheus.Counter
	SessionsCompleted prometheus.Counter
	SessionsCancelled prometheus.Counter
	SessionsFailed    prometheus.Counter
	ActiveSessions    prometheus.Gauge
	SessionDuration   prometheus.Histogram

	// Uplink metrics
	ChunksSent prometheus.Counter
	BytesSent  prometheus.Counter

	// Downlink metrics
	EventsReceived *prometheus.CounterVec
	DecodeErrors   prometheus.Counter

	// Capture metrics
	DroppedFrames prometheus.Counter
}

// New creates and registers all metrics. A nil registerer uses the
// default registry; tests pass their own to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictate_sessions_started_total",
			Help: "Total number of streaming update sessions opened",
		}),
		SessionsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictate_sessions_completed_total",
			Help: "Total number of sessions that received an update result",
		}),
		SessionsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictate_sessions_cancelled_total",
			Help: "Total number of sessions cancelled by the client",
		}),
		SessionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictate_sessions_failed_total",
			Help: "Total number of sessions ended by transport, protocol or server errors",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dictate_active_sessions",
			Help: "Current number of open streaming sessions",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dictate_session_duration_seconds",
			Help:    "Wall-clock duration of streaming sessions",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		ChunksSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictate_audio_chunks_sent_total",
			Help: "Total number of binary audio frames sent",
		}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictate_audio_bytes_sent_total",
			Help: "Total canonical PCM bytes sent",
		}),
		EventsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dictate_server_events_total",
			Help: "Total decoded server events by type",
		}, []string{"type"}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictate_decode_errors_total",
			Help: "Total inbound messages that failed to decode",
		}),
		DroppedFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "dictate_dropped_frames_total",
			Help: "Hardware buffers dropped because the conversion queue was full",
		}),
	}
}
