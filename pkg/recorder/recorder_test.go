package recorder

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fhirbench/fhirbench/pkg/report"
)

func TestAllSuccess(t *testing.T) {
	r := New(DefaultCeilingMillis)
	start := time.Now()
	for i := 0; i < 100; i++ {
		r.RecordSuccess(10)
	}
	m := r.Finalize(start, start.Add(time.Second))

	require.Equal(t, 0, m.IterationsFailed)
	require.Equal(t, 0, m.IterationsSkipped)
	require.NotNil(t, m.Metrics)
	require.Equal(t, int64(10), m.Metrics.LatencyMillisP50)
	require.Equal(t, int64(10), m.Metrics.LatencyMillisP100)
	require.InDelta(t, 100.0, m.Metrics.ThroughputPerSecond, 0.01)
}

func TestAllFailuresProduceNoMetrics(t *testing.T) {
	r := New(DefaultCeilingMillis)
	start := time.Now()
	for i := 0; i < 20; i++ {
		r.RecordFailure(report.FailureTimeout)
	}
	m := r.Finalize(start, start.Add(time.Second))

	require.Equal(t, 20, m.IterationsFailed)
	require.Nil(t, m.Metrics)
}

func TestMonotonePercentiles(t *testing.T) {
	r := New(DefaultCeilingMillis)
	start := time.Now()
	latencies := []int64{5, 10, 15, 20, 25, 30, 1000, 2000, 50, 5000}
	for _, l := range latencies {
		r.RecordSuccess(l)
	}
	m := r.Finalize(start, start.Add(time.Second))

	require.NotNil(t, m.Metrics)
	require.LessOrEqual(t, m.Metrics.LatencyMillisP50, m.Metrics.LatencyMillisP90)
	require.LessOrEqual(t, m.Metrics.LatencyMillisP90, m.Metrics.LatencyMillisP99)
	require.LessOrEqual(t, m.Metrics.LatencyMillisP99, m.Metrics.LatencyMillisP999)
	require.LessOrEqual(t, m.Metrics.LatencyMillisP999, m.Metrics.LatencyMillisP100)
}

func TestClampAboveCeiling(t *testing.T) {
	r := New(DefaultCeilingMillis)
	clamped := r.RecordSuccess(DefaultCeilingMillis + 5000)
	require.True(t, clamped)

	m := r.Finalize(time.Now(), time.Now().Add(time.Second))
	require.NotNil(t, m.Metrics)
	require.LessOrEqual(t, m.Metrics.LatencyMillisP100, int64(DefaultCeilingMillis))
	require.Equal(t, 1, m.Metrics.ClampedCount)
}

// TestWarmUpDiscard models S6: the warm-up iteration's duration (1000ms) is
// kept out of the histogram, but its success is still counted towards
// successCount/successSumMS, so invariant I2 (successes + failed + skipped
// == ticketed attempts) holds and throughput reflects all 100 attempts.
func TestWarmUpDiscard(t *testing.T) {
	r := New(DefaultCeilingMillis)
	r.RecordWarmUpSuccess(1000)
	for i := 0; i < 99; i++ {
		r.RecordSuccess(10)
	}
	m := r.Finalize(time.Now(), time.Now().Add(time.Second))
	require.NotNil(t, m.Metrics)
	require.LessOrEqual(t, m.Metrics.LatencyMillisP100, int64(15))
	require.InDelta(t, 100.0, m.Metrics.ThroughputPerSecond, 0.01)
	require.Equal(t, 0, m.IterationsFailed)
	require.Equal(t, 0, m.IterationsSkipped)
}

// TestHistogramRoundTrip verifies testable property #4: decoding
// LatencyHistogram reconstructs a histogram whose quantiles agree with the
// scalar percentile fields computed from the same data.
func TestHistogramRoundTrip(t *testing.T) {
	r := New(DefaultCeilingMillis)
	for i := 0; i < 500; i++ {
		r.RecordSuccess(int64(1 + i%237))
	}
	m := r.Finalize(time.Now(), time.Now().Add(time.Second))
	require.NotNil(t, m.Metrics)

	gzipRaw, err := base64.StdEncoding.DecodeString(m.Metrics.LatencyHistogramHgrmGzip)
	require.NoError(t, err)
	require.NotEmpty(t, gzipRaw)

	decoded, err := DecodeHistogram(m.Metrics.LatencyHistogram)
	require.NoError(t, err)

	require.InDelta(t, m.Metrics.LatencyMillisP50, decoded.ValueAtQuantile(50), 1)
	require.InDelta(t, m.Metrics.LatencyMillisP90, decoded.ValueAtQuantile(90), 1)
	require.InDelta(t, m.Metrics.LatencyMillisP99, decoded.ValueAtQuantile(99), 1)
	require.InDelta(t, m.Metrics.LatencyMillisP999, decoded.ValueAtQuantile(99.9), 1)
	require.InDelta(t, m.Metrics.LatencyMillisP100, decoded.ValueAtQuantile(100), 1)
}

func TestSkipCounted(t *testing.T) {
	r := New(DefaultCeilingMillis)
	r.RecordSuccess(5)
	r.RecordSkip()
	r.RecordSkip()
	m := r.Finalize(time.Now(), time.Now().Add(time.Second))
	require.Equal(t, 2, m.IterationsSkipped)
	require.NotNil(t, m.Metrics)
}
