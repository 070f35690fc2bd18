package stream

import (
	"time"

	"dictate/metrics"
)

// metricsRef wraps the optional Prometheus instrumentation so session code
// never nil-checks at each call site.
type metricsRef struct {
	m *metrics.Metrics
}

func newMetricsRef(m *metrics.Metrics) *metricsRef {
	return &metricsRef{m: m}
}

func (r *metricsRef) sessionStarted() {
	if r.m == nil {
		return
	}
	r.m.SessionsStarted.Inc()
	r.m.ActiveSessions.Inc()
}

func (r *metricsRef) sessionEnded(st State, dur time.Duration) {
	if r.m == nil {
		return
	}
	r.m.ActiveSessions.Dec()
	r.m.SessionDuration.Observe(dur.Seconds())
	switch st {
	case Completed:
		r.m.SessionsCompleted.Inc()
	case Cancelled:
		r.m.SessionsCancelled.Inc()
	default:
		r.m.SessionsFailed.Inc()
	}
}

func (r *metricsRef) chunkSent(n int) {
	if r.m == nil {
		return
	}
	r.m.ChunksSent.Inc()
	r.m.BytesSent.Add(float64(n))
}

func (r *metricsRef) eventReceived(typ string) {
	if r.m == nil {
		return
	}
	r.m.EventsReceived.WithLabelValues(typ).Inc()
}

func (r *metricsRef) decodeError() {
	if r.m == nil {
		return
	}
	r.m.DecodeErrors.Inc()
}
