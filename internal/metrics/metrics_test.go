package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.PayloadReceived("kinesis")
	m.PayloadReceived("kinesis")
	m.PayloadDropped("stdin")
	m.BatchDecoded(3)
	m.BatchSkipped("control_message")
	m.EventFiltered()
	m.EventEmitted("stdout", 1)
	m.EventFailed("s3", 4)
	m.Duplicate()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PayloadsReceived.WithLabelValues("kinesis")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PayloadsDropped.WithLabelValues("stdin")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Batches.WithLabelValues(OutcomeDecoded)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Batches.WithLabelValues("control_message")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.EventsDecoded))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsFiltered))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsEmitted.WithLabelValues("stdout")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.EventsFailed.WithLabelValues("s3")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Duplicates))
}

func TestMetrics_Registered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.BatchDecoded(1)

	families, err := reg.Gather()
	assert.NoError(t, err)

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["cwlogs_connector_decode_batches_total"])
	assert.True(t, names["cwlogs_connector_decode_batch_events"])
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.PayloadReceived("x")
		m.PayloadDropped("x")
		m.BatchDecoded(1)
		m.BatchSkipped("x")
		m.EventFiltered()
		m.EventEmitted("x", 1)
		m.EventFailed("x", 1)
		m.Duplicate()
	})
}
