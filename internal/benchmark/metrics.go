package benchmark

import (
	"errors"
	"math"
	"sort"
	"time"

	"inference-bench/internal/types"
)

// ErrNoResults is returned when a run produced nothing to aggregate
var ErrNoResults = errors.New("no results to aggregate")

// Aggregate reduces the results of one run into summary statistics.
// Distributions without samples are left nil.
func Aggregate(results []types.RequestResult, runDuration time.Duration, mode types.Mode) (*types.AggregateMetrics, error) {
	if len(results) == 0 {
		return nil, ErrNoResults
	}

	metrics := &types.AggregateMetrics{
		Mode:          mode,
		TotalRequests: len(results),
		RunDuration:   runDuration,
		ErrorsByType:  make(map[string]int),
	}

	latencies := make([]float64, 0, len(results))
	ttfts := make([]float64, 0, len(results))
	rates := make([]float64, 0, len(results))

	for _, r := range results {
		metrics.TotalTokensGenerated += r.TokensGenerated

		if !r.Success {
			metrics.FailedRequests++
			errType := r.ErrorType
			if errType == "" {
				errType = types.ErrorTypeUnknown
			}
			metrics.ErrorsByType[errType]++
			continue
		}

		metrics.SuccessfulRequests++
		latencies = append(latencies, milliseconds(r.TotalTime))

		if r.HasTTFT && mode == types.ModeStreaming {
			ttfts = append(ttfts, milliseconds(r.TTFT))
		}
		if r.TokensPerSecond > 0 {
			rates = append(rates, r.TokensPerSecond)
		}
	}

	metrics.SuccessRate = float64(metrics.SuccessfulRequests) / float64(metrics.TotalRequests)

	if seconds := runDuration.Seconds(); seconds > 0 {
		metrics.RequestsPerSecond = float64(metrics.TotalRequests) / seconds
		metrics.AggregateTokensPerSecond = float64(metrics.TotalTokensGenerated) / seconds
	}

	metrics.Latency = distribution(latencies)
	metrics.TTFT = distribution(ttfts)
	metrics.Throughput = distribution(rates)

	return metrics, nil
}

// distribution summarizes values, or returns nil for an empty set
func distribution(values []float64) *types.Distribution {
	if len(values) == 0 {
		return nil
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	d := &types.Distribution{
		Count: len(sorted),
		Mean:  average(sorted),
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
	}
	d.P50, _ = Percentile(sorted, 50)
	d.P95, _ = Percentile(sorted, 95)
	d.P99, _ = Percentile(sorted, 99)

	return d
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// average calculates the average of a slice of float64
func average(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Percentile returns the linearly interpolated value at rank (n-1)*p/100 of
// an ascending slice. ok is false for an empty slice.
func Percentile(sortedValues []float64, p float64) (value float64, ok bool) {
	n := len(sortedValues)
	if n == 0 {
		return 0, false
	}
	if p <= 0 {
		return sortedValues[0], true
	}
	if p >= 100 {
		return sortedValues[n-1], true
	}

	index := (p / 100.0) * float64(n-1)
	lower := int(math.Floor(index))
	upper := int(math.Ceil(index))

	if lower == upper {
		return sortedValues[lower], true
	}

	// Linear interpolation
	weight := index - float64(lower)
	return sortedValues[lower]*(1-weight) + sortedValues[upper]*weight, true
}
