package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("depreciation:calculate").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("depreciation:calculate").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("depreciation:calculate", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("depreciation:calculate", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("depreciation:calculate")))
}

func TestAddEnqueuedIgnoresEmpty(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddEnqueued("depreciation:schedule", 0)
	m.AddEnqueued("depreciation:schedule", 3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.enqueued.WithLabelValues("depreciation:schedule")))

	var nilMetrics *Metrics
	nilMetrics.AddEnqueued("x", 1)
	require.NoError(t, nilMetrics.Track("x").End(nil))
}
