package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const NAMESPACE = "ismp_relayer"

// Metrics holds the collectors of the relayer. A nil *Metrics records nothing.
type Metrics struct {
	registry           *prometheus.Registry
	statusTransitions  *prometheus.CounterVec
	timeoutTransitions *prometheus.CounterVec
	streamErrors       *prometheus.CounterVec
	activeStreams      *prometheus.GaugeVec
	streamDuration     prometheus.Histogram
}

func NewMetrics() *Metrics {
	m := &Metrics{
		statusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "status_transitions_total",
			Help:      "Status updates emitted by request status streams",
		}, []string{"source", "dest", "status"}),
		timeoutTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "timeout_transitions_total",
			Help:      "Status updates emitted by request timeout streams",
		}, []string{"source", "dest", "status"}),
		streamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Name:      "stream_errors_total",
			Help:      "Streams terminated by an error, by the state they failed in",
		}, []string{"stream", "state"}),
		activeStreams: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: NAMESPACE,
			Name:      "active_streams",
			Help:      "Streams currently running",
		}, []string{"stream"}),
		streamDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: NAMESPACE,
			Name:      "stream_duration_seconds",
			Help:      "Time from starting a stream to its last item",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
	}
	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(
		m.statusTransitions,
		m.timeoutTransitions,
		m.streamErrors,
		m.activeStreams,
		m.streamDuration,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) StatusTransition(source, dest, status string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(source, dest, status).Inc()
}

func (m *Metrics) TimeoutTransition(source, dest, status string) {
	if m == nil {
		return
	}
	m.timeoutTransitions.WithLabelValues(source, dest, status).Inc()
}

func (m *Metrics) StreamError(stream, state string) {
	if m == nil {
		return
	}
	m.streamErrors.WithLabelValues(stream, state).Inc()
}

// StreamStarted counts a running stream and returns the func that ends it.
func (m *Metrics) StreamStarted(stream string) func() {
	if m == nil {
		return func() {}
	}
	started := time.Now()
	gauge := m.activeStreams.WithLabelValues(stream)
	gauge.Inc()
	return func() {
		gauge.Dec()
		m.streamDuration.Observe(time.Since(started).Seconds())
	}
}
