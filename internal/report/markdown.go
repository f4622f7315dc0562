package report

import (
	"fmt"
	"os"
	"strings"
	"time"

	"inference-bench/internal/config"
	"inference-bench/internal/types"
)

// MarkdownReporter generates markdown reports
type MarkdownReporter struct {
	config *config.Config
	now    func() time.Time
}

// NewMarkdownReporter creates a new markdown reporter
func NewMarkdownReporter(cfg *config.Config) *MarkdownReporter {
	return &MarkdownReporter{
		config: cfg,
		now:    time.Now,
	}
}

// Generate generates the full markdown report
func (m *MarkdownReporter) Generate(allStats []*types.ConcurrencyLevelStats) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# LLM Inference Benchmark Report\n\n")
	fmt.Fprintf(&sb, "Generated: %s\n\n", m.now().Format("2006-01-02 15:04:05"))

	// Test Configuration
	m.writeConfiguration(&sb)

	// Overall Summary
	m.writeOverallSummary(&sb, allStats)

	// Detailed Results by Concurrency Level
	m.writeDetailedResults(&sb, allStats)

	// Distributions
	m.writeDistribution(&sb, "Latency Analysis", "Latency (ms)", allStats,
		func(a *types.AggregateMetrics) *types.Distribution { return a.Latency })
	m.writeDistribution(&sb, "Time to First Token (TTFT) Analysis", "TTFT (ms), streaming mode", allStats,
		func(a *types.AggregateMetrics) *types.Distribution { return a.TTFT })
	m.writeDistribution(&sb, "Per-Request Throughput", "Tokens/sec per request", allStats,
		func(a *types.AggregateMetrics) *types.Distribution { return a.Throughput })

	// Error Analysis
	m.writeErrorAnalysis(&sb, allStats)

	return sb.String()
}

// writeConfiguration writes the test configuration section
func (m *MarkdownReporter) writeConfiguration(sb *strings.Builder) {
	cfg := m.config

	sb.WriteString("## Test Configuration\n\n")
	sb.WriteString("| Parameter | Value |\n")
	sb.WriteString("|-----------|-------|\n")
	fmt.Fprintf(sb, "| Backend | %s |\n", cfg.Target.Backend)
	if cfg.Target.Backend == config.BackendBedrock {
		fmt.Fprintf(sb, "| Region | %s |\n", cfg.AWS.Region)
	} else {
		fmt.Fprintf(sb, "| Target | %s |\n", cfg.Target.URL)
	}
	fmt.Fprintf(sb, "| Model | %s |\n", valueOr(cfg.Model.ID, "-"))
	if cfg.Test.PayloadFile != "" {
		fmt.Fprintf(sb, "| Payload File | %s |\n", cfg.Test.PayloadFile)
	} else {
		fmt.Fprintf(sb, "| Prompt Size | %d characters |\n", cfg.Test.PromptSize)
	}
	fmt.Fprintf(sb, "| Max Tokens | %d |\n", cfg.Test.MaxTokens)
	fmt.Fprintf(sb, "| Temperature | %.2f |\n", cfg.Test.Temperature)
	fmt.Fprintf(sb, "| Streaming Enabled | %t |\n", cfg.Test.Streaming)
	fmt.Fprintf(sb, "| Non-Streaming Enabled | %t |\n", cfg.Test.NonStreaming)
	fmt.Fprintf(sb, "| Concurrency Range | %d - %d (step: %d) |\n",
		cfg.Concurrency.Start, cfg.Concurrency.End, cfg.Concurrency.Step)
	if cfg.Concurrency.Requests > 0 {
		fmt.Fprintf(sb, "| Requests per Level | %d |\n", cfg.Concurrency.Requests)
	} else {
		fmt.Fprintf(sb, "| Duration per Level | %d seconds |\n", cfg.Concurrency.DurationSeconds)
	}
	if cfg.Concurrency.RateLimit > 0 {
		fmt.Fprintf(sb, "| Rate Limit | %.2f req/s |\n", cfg.Concurrency.RateLimit)
	}
	sb.WriteString("\n")
}

// writeOverallSummary writes the overall summary section
func (m *MarkdownReporter) writeOverallSummary(sb *strings.Builder, allStats []*types.ConcurrencyLevelStats) {
	sb.WriteString("## Overall Summary\n\n")

	totalRequests := 0
	totalSuccess := 0
	totalFailures := 0
	totalTokens := 0

	for _, stat := range allStats {
		totalRequests += stat.Metrics.TotalRequests
		totalSuccess += stat.Metrics.SuccessfulRequests
		totalFailures += stat.Metrics.FailedRequests
		totalTokens += stat.Metrics.TotalTokensGenerated
	}

	successRate := 0.0
	if totalRequests > 0 {
		successRate = float64(totalSuccess) / float64(totalRequests) * 100.0
	}

	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	fmt.Fprintf(sb, "| Runs | %d |\n", len(allStats))
	fmt.Fprintf(sb, "| Total Requests | %d |\n", totalRequests)
	fmt.Fprintf(sb, "| Successful Requests | %d (%.2f%%) |\n", totalSuccess, successRate)
	fmt.Fprintf(sb, "| Failed Requests | %d |\n", totalFailures)
	fmt.Fprintf(sb, "| Total Tokens Generated | %d |\n\n", totalTokens)
}

// writeDetailedResults writes detailed results for each run
func (m *MarkdownReporter) writeDetailedResults(sb *strings.Builder, allStats []*types.ConcurrencyLevelStats) {
	sb.WriteString("## Detailed Results by Concurrency Level\n\n")

	sb.WriteString("| Mode | Concurrency | Requests | Success Rate | Req/s | Tokens/s | Avg Latency (ms) | P50 TTFT (ms) | Run ID |\n")
	sb.WriteString("|------|-------------|----------|--------------|-------|----------|------------------|---------------|--------|\n")

	for _, stat := range allStats {
		a := stat.Metrics
		fmt.Fprintf(sb, "| %s | %d | %d | %.2f%% | %.2f | %.2f | %s | %s | %s |\n",
			a.Mode,
			stat.ConcurrencyLevel,
			a.TotalRequests,
			a.SuccessRate*100,
			a.RequestsPerSecond,
			a.AggregateTokensPerSecond,
			formatOptional(a.Latency, func(d *types.Distribution) float64 { return d.Mean }),
			formatOptional(a.TTFT, func(d *types.Distribution) float64 { return d.P50 }),
			stat.RunID,
		)
	}
	sb.WriteString("\n")
}

// writeDistribution writes one distribution table, skipping runs without
// samples. The section is omitted when no run has any.
func (m *MarkdownReporter) writeDistribution(sb *strings.Builder, title, caption string, allStats []*types.ConcurrencyLevelStats, pick func(*types.AggregateMetrics) *types.Distribution) {
	var rows []string
	for _, stat := range allStats {
		d := pick(stat.Metrics)
		if d == nil {
			continue
		}
		rows = append(rows, fmt.Sprintf("| %s | %d | %d | %.2f | %.2f | %.2f | %.2f | %.2f | %.2f |\n",
			stat.Metrics.Mode, stat.ConcurrencyLevel, d.Count, d.Min, d.Mean, d.Max, d.P50, d.P95, d.P99))
	}
	if len(rows) == 0 {
		return
	}

	fmt.Fprintf(sb, "## %s\n\n", title)
	fmt.Fprintf(sb, "### %s\n\n", caption)
	sb.WriteString("| Mode | Concurrency | Samples | Min | Avg | Max | P50 | P95 | P99 |\n")
	sb.WriteString("|------|-------------|---------|-----|-----|-----|-----|-----|-----|\n")
	for _, row := range rows {
		sb.WriteString(row)
	}
	sb.WriteString("\n")
}

// writeErrorAnalysis writes error analysis section
func (m *MarkdownReporter) writeErrorAnalysis(sb *strings.Builder, allStats []*types.ConcurrencyLevelStats) {
	allErrors := make(map[string]int)
	for _, stat := range allStats {
		for errType, count := range stat.Metrics.ErrorsByType {
			allErrors[errType] += count
		}
	}

	sb.WriteString("## Error Analysis\n\n")

	if len(allErrors) == 0 {
		sb.WriteString("No errors occurred during the test.\n\n")
		return
	}

	sb.WriteString("### Error Distribution\n\n")
	sb.WriteString("| Error Type | Count |\n")
	sb.WriteString("|------------|-------|\n")
	for _, errType := range sortedKeys(allErrors) {
		fmt.Fprintf(sb, "| %s | %d |\n", errType, allErrors[errType])
	}
	sb.WriteString("\n")

	sb.WriteString("### Errors by Concurrency Level\n\n")
	sb.WriteString("| Mode | Concurrency | Total Errors | Error Types |\n")
	sb.WriteString("|------|-------------|--------------|-------------|\n")

	for _, stat := range allStats {
		a := stat.Metrics
		if a.FailedRequests == 0 {
			continue
		}
		var errorTypes []string
		for _, errType := range sortedKeys(a.ErrorsByType) {
			errorTypes = append(errorTypes, fmt.Sprintf("%s(%d)", errType, a.ErrorsByType[errType]))
		}
		fmt.Fprintf(sb, "| %s | %d | %d | %s |\n",
			a.Mode, stat.ConcurrencyLevel, a.FailedRequests, strings.Join(errorTypes, ", "))
	}
	sb.WriteString("\n")
}

// SaveToFile saves the report to a file
func (m *MarkdownReporter) SaveToFile(content string, filename string) error {
	return os.WriteFile(filename, []byte(content), 0644)
}

func formatOptional(d *types.Distribution, field func(*types.Distribution) float64) string {
	if d == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", field(d))
}

func valueOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
