package tcp

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the ingestion counters. A nil *Metrics records nothing.
type Metrics struct {
	accepted      prometheus.Counter
	messages      *prometheus.CounterVec
	bytesRead     prometheus.Counter
	applyDuration prometheus.Histogram
}

// NewMetrics registers the ingestion metrics on reg.
// Pass prometheus.DefaultRegisterer in main, a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		accepted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "meshhub",
			Subsystem: "ingest",
			Name:      "connections_accepted_total",
			Help:      "Total number of sender connections accepted",
		}),

		messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshhub",
			Subsystem: "ingest",
			Name:      "messages_total",
			Help:      "Mesh messages handled, by outcome",
		}, []string{"outcome"}),

		bytesRead: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "meshhub",
			Subsystem: "ingest",
			Name:      "bytes_read_total",
			Help:      "Header and body bytes read from senders",
		}),

		applyDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "meshhub",
			Subsystem: "ingest",
			Name:      "apply_duration_seconds",
			Help:      "Time spent applying a decoded mesh to the scene",
			Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}),
	}
}

func (m *Metrics) connectionAccepted() {
	if m == nil {
		return
	}
	m.accepted.Inc()
}

func (m *Metrics) messageHandled(outcome string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) addBytes(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesRead.Add(float64(n))
}

func (m *Metrics) observeApply(d time.Duration) {
	if m == nil {
		return
	}
	m.applyDuration.Observe(d.Seconds())
}
