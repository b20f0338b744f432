// Package metrics holds the connector's Prometheus instruments.
//
// A nil *Metrics is valid and records nothing, so components take it as an
// optional dependency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cwlogs_connector"

// Batch outcomes besides the decoder's skip reasons.
const OutcomeDecoded = "decoded"

// Metrics holds all Prometheus metrics for the connector.
type Metrics struct {
	PayloadsReceived *prometheus.CounterVec
	PayloadsDropped  *prometheus.CounterVec
	Batches          *prometheus.CounterVec
	BatchEvents      prometheus.Histogram
	EventsDecoded    prometheus.Counter
	EventsFiltered   prometheus.Counter
	EventsEmitted    *prometheus.CounterVec
	EventsFailed     *prometheus.CounterVec
	Duplicates       prometheus.Counter
}

// New creates the metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PayloadsReceived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "payloads_total",
			Help:      "Total number of subscription payloads received by source.",
		}, []string{"source"}),
		PayloadsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "payloads_dropped_total",
			Help:      "Total number of payloads dropped because the pipeline buffer was full.",
		}, []string{"source"}),
		Batches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decode",
			Name:      "batches_total",
			Help:      "Total number of batches by outcome.",
		}, []string{"outcome"}), // outcome: decoded, decompress, invalid_json, no_message_type, control_message, malformed
		BatchEvents: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "decode",
			Name:      "batch_events",
			Help:      "Number of log events per decoded batch.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		EventsDecoded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "decode",
			Name:      "events_total",
			Help:      "Total number of log events decoded.",
		}),
		EventsFiltered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "filter",
			Name:      "events_dropped_total",
			Help:      "Total number of log events rejected by the filter chain.",
		}),
		EventsEmitted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "emit",
			Name:      "events_total",
			Help:      "Total number of log events each emitter delivered. Batching emitters count an event once its batch is accepted.",
		}, []string{"emitter"}),
		EventsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "emit",
			Name:      "failures_total",
			Help:      "Total number of log events an emitter failed to deliver.",
		}, []string{"emitter"}),
		Duplicates: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "elasticsearch",
			Name:      "duplicates_total",
			Help:      "Total number of documents rejected as already indexed.",
		}),
	}
}

func (m *Metrics) PayloadReceived(source string) {
	if m != nil {
		m.PayloadsReceived.WithLabelValues(source).Inc()
	}
}

func (m *Metrics) PayloadDropped(source string) {
	if m != nil {
		m.PayloadsDropped.WithLabelValues(source).Inc()
	}
}

// BatchDecoded records a successful decode of n events.
func (m *Metrics) BatchDecoded(n int) {
	if m != nil {
		m.Batches.WithLabelValues(OutcomeDecoded).Inc()
		m.BatchEvents.Observe(float64(n))
		m.EventsDecoded.Add(float64(n))
	}
}

// BatchSkipped records an abandoned batch under its skip reason.
func (m *Metrics) BatchSkipped(reason string) {
	if m != nil {
		m.Batches.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) EventFiltered() {
	if m != nil {
		m.EventsFiltered.Inc()
	}
}

// EventEmitted counts delivered events; n may exceed one for batched sinks.
func (m *Metrics) EventEmitted(emitter string, n int) {
	if m != nil {
		m.EventsEmitted.WithLabelValues(emitter).Add(float64(n))
	}
}

// EventFailed counts delivery failures; n may exceed one for batched sinks.
func (m *Metrics) EventFailed(emitter string, n int) {
	if m != nil {
		m.EventsFailed.WithLabelValues(emitter).Add(float64(n))
	}
}

func (m *Metrics) Duplicate() {
	if m != nil {
		m.Duplicates.Inc()
	}
}
