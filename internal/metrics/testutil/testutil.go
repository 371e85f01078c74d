// Package testutil reads single label sets of the trainer's
// collectors in tests.
package testutil

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// CounterValue returns the current value for a CounterVec label set.
func CounterValue(tb testing.TB, vec *prometheus.CounterVec, labels ...string) float64 {
	tb.Helper()
	c, err := vec.GetMetricWithLabelValues(labels...)
	require.NoError(tb, err)
	return read(tb, c).GetCounter().GetValue()
}

// GaugeValue returns the current value for a GaugeVec label set.
func GaugeValue(tb testing.TB, vec *prometheus.GaugeVec, labels ...string) float64 {
	tb.Helper()
	g, err := vec.GetMetricWithLabelValues(labels...)
	require.NoError(tb, err)
	return read(tb, g).GetGauge().GetValue()
}

// HistogramSamples returns the sample count and sum for a
// HistogramVec label set.
func HistogramSamples(tb testing.TB, vec *prometheus.HistogramVec, labels ...string) (uint64, float64) {
	tb.Helper()
	o, err := vec.GetMetricWithLabelValues(labels...)
	require.NoError(tb, err)
	h := read(tb, o.(prometheus.Metric)).GetHistogram()
	return h.GetSampleCount(), h.GetSampleSum()
}

func read(tb testing.TB, m prometheus.Metric) *dto.Metric {
	tb.Helper()
	var out dto.Metric
	require.NoError(tb, m.Write(&out))
	return &out
}
