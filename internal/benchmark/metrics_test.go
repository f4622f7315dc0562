package benchmark

import (
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inference-bench/internal/types"
)

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		p      float64
		want   float64
	}{
		{name: "median odd", values: []float64{1, 3, 7}, p: 50, want: 3},
		{name: "median even", values: []float64{1, 3, 7, 9}, p: 50, want: 5},
		{name: "min", values: []float64{2, 4, 8}, p: 0, want: 2},
		{name: "max", values: []float64{2, 4, 8}, p: 100, want: 8},
		{name: "below range clamps", values: []float64{2, 4, 8}, p: -5, want: 2},
		{name: "above range clamps", values: []float64{2, 4, 8}, p: 150, want: 8},
		{name: "single", values: []float64{42}, p: 95, want: 42},
		{name: "interpolated p95", values: []float64{10, 20, 30, 40, 50}, p: 95, want: 48},
		{name: "ttft p50", values: []float64{100, 120, 130, 150}, p: 50, want: 125},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Percentile(tt.values, tt.p)
			require.True(t, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestPercentileEmpty(t *testing.T) {
	_, ok := Percentile(nil, 50)
	assert.False(t, ok)
}

func TestPercentileIsPure(t *testing.T) {
	values := []float64{5, 9, 11, 17, 23, 31}
	snapshot := append([]float64(nil), values...)

	first, _ := Percentile(values, 90)
	second, _ := Percentile(values, 90)

	assert.Equal(t, first, second)
	assert.Equal(t, snapshot, values)
}

func TestPercentileMatchesMedian(t *testing.T) {
	sets := [][]float64{
		{4},
		{9, 1},
		{3, 8, 1, 6, 2},
		{10, 40, 20, 30, 60, 50},
	}

	for _, set := range sets {
		sorted := append([]float64(nil), set...)
		sort.Float64s(sorted)

		var median float64
		n := len(sorted)
		if n%2 == 1 {
			median = sorted[n/2]
		} else {
			median = (sorted[n/2-1] + sorted[n/2]) / 2
		}

		got, ok := Percentile(sorted, 50)
		require.True(t, ok)
		assert.InDelta(t, median, got, 1e-9)
	}
}

func streamingSuccess(ttft, total time.Duration, tokens int) types.RequestResult {
	return types.RequestResult{
		Mode:            types.ModeStreaming,
		Success:         true,
		TTFT:            ttft,
		HasTTFT:         true,
		TotalTime:       total,
		TokensGenerated: tokens,
		TokensPerSecond: types.TokensPerSecond(tokens, total),
	}
}

func TestAggregateEmpty(t *testing.T) {
	_, err := Aggregate(nil, time.Second, types.ModeStreaming)
	assert.True(t, errors.Is(err, ErrNoResults))
}

func TestAggregateStreamingWithFailure(t *testing.T) {
	results := []types.RequestResult{
		streamingSuccess(100*time.Millisecond, time.Second, 10),
		streamingSuccess(120*time.Millisecond, time.Second, 20),
		{
			Mode:      types.ModeStreaming,
			TotalTime: 5 * time.Millisecond,
			Error:     "dial tcp: connection refused",
			ErrorType: types.ErrorTypeConnection,
		},
		streamingSuccess(150*time.Millisecond, 2*time.Second, 40),
		streamingSuccess(130*time.Millisecond, 2*time.Second, 30),
	}

	m, err := Aggregate(results, 4*time.Second, types.ModeStreaming)
	require.NoError(t, err)

	assert.Equal(t, 5, m.TotalRequests)
	assert.Equal(t, 4, m.SuccessfulRequests)
	assert.Equal(t, 1, m.FailedRequests)
	assert.InDelta(t, 0.8, m.SuccessRate, 1e-9)
	assert.Equal(t, map[string]int{types.ErrorTypeConnection: 1}, m.ErrorsByType)

	require.NotNil(t, m.TTFT)
	assert.True(t, m.HasTTFT())
	assert.Equal(t, 4, m.TTFT.Count)
	assert.InDelta(t, 125, m.TTFT.P50, 1e-9)
	assert.InDelta(t, 125, m.TTFT.Mean, 1e-9)
	assert.InDelta(t, 100, m.TTFT.Min, 1e-9)
	assert.InDelta(t, 150, m.TTFT.Max, 1e-9)

	require.NotNil(t, m.Latency)
	assert.Equal(t, 4, m.Latency.Count)
	assert.InDelta(t, 1500, m.Latency.Mean, 1e-9)
	assert.InDelta(t, 1500, m.Latency.P50, 1e-9)

	require.NotNil(t, m.Throughput)
	assert.InDelta(t, 16.25, m.Throughput.Mean, 1e-9)
	assert.InDelta(t, 17.5, m.Throughput.P50, 1e-9)

	assert.Equal(t, 100, m.TotalTokensGenerated)
	assert.InDelta(t, 1.25, m.RequestsPerSecond, 1e-9)
	assert.InDelta(t, 25, m.AggregateTokensPerSecond, 1e-9)
}

func TestAggregateAllFailed(t *testing.T) {
	results := make([]types.RequestResult, 20)
	for i := range results {
		results[i] = types.RequestResult{
			Mode:       types.ModeNonStreaming,
			TotalTime:  10 * time.Millisecond,
			Error:      "HTTP 500: boom",
			ErrorType:  types.ErrorTypeHTTP,
			StatusCode: 500,
		}
	}

	m, err := Aggregate(results, 2*time.Second, types.ModeNonStreaming)
	require.NoError(t, err)

	assert.Zero(t, m.SuccessRate)
	assert.Equal(t, 20, m.FailedRequests)
	assert.Nil(t, m.Latency)
	assert.Nil(t, m.TTFT)
	assert.Nil(t, m.Throughput)
	assert.Zero(t, m.TotalTokensGenerated)
	assert.Zero(t, m.AggregateTokensPerSecond)
	assert.InDelta(t, 10, m.RequestsPerSecond, 1e-9)
	assert.Equal(t, 20, m.ErrorsByType[types.ErrorTypeHTTP])
}

func TestAggregateFailedStreamsAddNoTokens(t *testing.T) {
	failed := &types.Attempt{
		Mode:   types.ModeStreaming,
		Start:  time.Now(),
		Tokens: 4,
	}
	failed.MarkFirstToken()
	failed.End = failed.Start.Add(time.Second)
	failed.Fail(types.ErrorTypeTimeout, errors.New("stream error: i/o timeout"))

	results := []types.RequestResult{
		streamingSuccess(50*time.Millisecond, time.Second, 8),
		failed.Result(),
	}

	m, err := Aggregate(results, time.Second, types.ModeStreaming)
	require.NoError(t, err)

	assert.Equal(t, 8, m.TotalTokensGenerated)
	assert.Equal(t, 1, m.TTFT.Count)
	assert.Equal(t, 1, m.Throughput.Count)
	assert.InDelta(t, 8, m.AggregateTokensPerSecond, 1e-9)
	assert.Equal(t, 1, m.ErrorsByType[types.ErrorTypeTimeout])
}

func TestAggregateNonStreamingHasNoTTFT(t *testing.T) {
	results := []types.RequestResult{{
		Mode:            types.ModeNonStreaming,
		Success:         true,
		TotalTime:       2 * time.Second,
		TokensGenerated: 10,
		TokensPerSecond: types.TokensPerSecond(10, 2*time.Second),
	}}

	m, err := Aggregate(results, 2*time.Second, types.ModeNonStreaming)
	require.NoError(t, err)

	assert.Nil(t, m.TTFT)
	assert.False(t, m.HasTTFT())
	require.NotNil(t, m.Throughput)
	assert.InDelta(t, 5.0, m.Throughput.P50, 1e-9)
}

func TestAggregateZeroDuration(t *testing.T) {
	m, err := Aggregate([]types.RequestResult{streamingSuccess(time.Millisecond, time.Millisecond, 1)}, 0, types.ModeStreaming)
	require.NoError(t, err)

	assert.Zero(t, m.RequestsPerSecond)
	assert.Zero(t, m.AggregateTokensPerSecond)
}
