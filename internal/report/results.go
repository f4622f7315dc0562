package report

import (
	"fmt"
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"

	"inference-bench/internal/config"
	"inference-bench/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ResultsFile is the JSON document written next to the markdown report
type ResultsFile struct {
	GeneratedAt time.Time     `json:"generated_at"`
	Config      config.Config `json:"config"`
	Runs        []RunRecord   `json:"runs"`
}

// RunRecord is one batch in the results file
type RunRecord struct {
	RunID            string            `json:"run_id"`
	Mode             types.Mode        `json:"mode"`
	ConcurrencyLevel int               `json:"concurrency"`
	StartedAt        time.Time         `json:"started_at"`
	Summary          SummaryRecord     `json:"summary"`
	Requests         []RequestRecord   `json:"requests,omitempty"`
	Latency          *DistributionJSON `json:"latency_ms,omitempty"`
	TTFT             *DistributionJSON `json:"ttft_ms,omitempty"`
	Throughput       *DistributionJSON `json:"tokens_per_second,omitempty"`
}

// SummaryRecord holds the scalar aggregate values of a run
type SummaryRecord struct {
	TotalRequests            int            `json:"total_requests"`
	SuccessfulRequests       int            `json:"successful_requests"`
	FailedRequests           int            `json:"failed_requests"`
	SuccessRate              float64        `json:"success_rate"`
	RunDurationSeconds       float64        `json:"run_duration_seconds"`
	TotalTokensGenerated     int            `json:"total_tokens_generated"`
	RequestsPerSecond        float64        `json:"requests_per_second"`
	AggregateTokensPerSecond float64        `json:"aggregate_tokens_per_second"`
	ErrorsByType             map[string]int `json:"errors_by_type,omitempty"`
}

// DistributionJSON mirrors types.Distribution
type DistributionJSON struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// RequestRecord is one raw request result
type RequestRecord struct {
	Success         bool     `json:"success"`
	TTFTMillis      *float64 `json:"ttft_ms,omitempty"`
	TotalMillis     float64  `json:"total_time_ms"`
	TokensGenerated int      `json:"tokens_generated"`
	TokensPerSecond float64  `json:"tokens_per_second"`
	Error           string   `json:"error,omitempty"`
	ErrorType       string   `json:"error_type,omitempty"`
	StatusCode      int      `json:"status_code,omitempty"`
}

// JSONReporter writes benchmark results as JSON
type JSONReporter struct {
	config     *config.Config
	includeRaw bool
	now        func() time.Time
}

// NewJSONReporter creates a new JSON reporter
func NewJSONReporter(cfg *config.Config) *JSONReporter {
	return &JSONReporter{
		config:     cfg,
		includeRaw: cfg.Output.IncludeRaw,
		now:        time.Now,
	}
}

// Build converts the collected stats into the results document
func (j *JSONReporter) Build(allStats []*types.ConcurrencyLevelStats) *ResultsFile {
	doc := &ResultsFile{
		GeneratedAt: j.now().UTC(),
		Config:      *j.config,
		Runs:        make([]RunRecord, 0, len(allStats)),
	}

	for _, stat := range allStats {
		m := stat.Metrics
		run := RunRecord{
			RunID:            stat.RunID,
			Mode:             m.Mode,
			ConcurrencyLevel: stat.ConcurrencyLevel,
			StartedAt:        stat.StartedAt.UTC(),
			Summary: SummaryRecord{
				TotalRequests:            m.TotalRequests,
				SuccessfulRequests:       m.SuccessfulRequests,
				FailedRequests:           m.FailedRequests,
				SuccessRate:              m.SuccessRate,
				RunDurationSeconds:       m.RunDuration.Seconds(),
				TotalTokensGenerated:     m.TotalTokensGenerated,
				RequestsPerSecond:        m.RequestsPerSecond,
				AggregateTokensPerSecond: m.AggregateTokensPerSecond,
				ErrorsByType:             m.ErrorsByType,
			},
			Latency:    distributionJSON(m.Latency),
			TTFT:       distributionJSON(m.TTFT),
			Throughput: distributionJSON(m.Throughput),
		}

		if j.includeRaw {
			run.Requests = make([]RequestRecord, 0, len(stat.Results))
			for _, r := range stat.Results {
				run.Requests = append(run.Requests, requestRecord(r))
			}
		}

		doc.Runs = append(doc.Runs, run)
	}

	return doc
}

// SaveToFile writes the results document as indented JSON
func (j *JSONReporter) SaveToFile(allStats []*types.ConcurrencyLevelStats, filename string) error {
	data, err := json.MarshalIndent(j.Build(allStats), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	return os.WriteFile(filename, data, 0644)
}

func distributionJSON(d *types.Distribution) *DistributionJSON {
	if d == nil {
		return nil
	}
	return &DistributionJSON{
		Count: d.Count,
		Mean:  d.Mean,
		Min:   d.Min,
		Max:   d.Max,
		P50:   d.P50,
		P95:   d.P95,
		P99:   d.P99,
	}
}

func requestRecord(r types.RequestResult) RequestRecord {
	rec := RequestRecord{
		Success:         r.Success,
		TotalMillis:     float64(r.TotalTime) / float64(time.Millisecond),
		TokensGenerated: r.TokensGenerated,
		TokensPerSecond: r.TokensPerSecond,
		Error:           r.Error,
		ErrorType:       r.ErrorType,
		StatusCode:      r.StatusCode,
	}
	if r.HasTTFT {
		ttft := float64(r.TTFT) / float64(time.Millisecond)
		rec.TTFTMillis = &ttft
	}
	return rec
}
