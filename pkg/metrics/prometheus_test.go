package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	drepo "FinCast/internal/domain/repository"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegisterer(reg)
	var _ drepo.Metrics = r

	r.RecordForecast("gb", "ok")
	r.RecordForecast("gb", "ok")
	r.RecordForecast("gb", "failed")
	r.RecordBatch("gb", 3, 1)
	r.RecordError("archive")
	r.RecordFitDuration("gb", 0.2)
	r.RecordLatency("batch", 0.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.forecasts.WithLabelValues("gb", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.failed.WithLabelValues("gb")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("archive")))

	n, err := testutil.GatherAndCount(reg, "fincast_fit_duration_seconds", "fincast_batch_categories")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
