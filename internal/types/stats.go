package types

import "time"

// Distribution summarizes one sample set. A nil *Distribution means no
// samples were available, which is different from a measured zero.
type Distribution struct {
	Count int
	Mean  float64
	Min   float64
	Max   float64
	P50   float64
	P95   float64
	P99   float64
}

// AggregateMetrics is the reduction of one benchmark run
type AggregateMetrics struct {
	Mode Mode

	// General stats
	TotalRequests      int
	SuccessfulRequests int
	FailedRequests     int
	SuccessRate        float64 // fraction in [0,1]
	RunDuration        time.Duration

	// Latency over successful TotalTime (ms)
	Latency *Distribution

	// TTFT over successful streaming results (ms)
	TTFT *Distribution

	// Per-request tokens/second over results with a positive rate
	Throughput *Distribution

	// Token stats
	TotalTokensGenerated     int
	RequestsPerSecond        float64
	AggregateTokensPerSecond float64

	// Errors
	ErrorsByType map[string]int
}

// HasTTFT reports whether any sample captured a first token
func (m *AggregateMetrics) HasTTFT() bool {
	return m.TTFT != nil
}

// ConcurrencyLevelStats tracks stats for a specific concurrency level
type ConcurrencyLevelStats struct {
	RunID            string
	ConcurrencyLevel int
	StartedAt        time.Time
	Metrics          *AggregateMetrics
	Results          []RequestResult
}

// ProgressSnapshot is a point-in-time view of a run that is still going
type ProgressSnapshot struct {
	Mode       Mode
	InFlight   int
	Completed  int
	Successful int
	Failed     int
	Tokens     int
	Elapsed    time.Duration
}
