package report

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"inference-bench/internal/config"
	"inference-bench/internal/types"
)

var (
	headingColor = color.New(color.FgCyan, color.Bold)
	goodColor    = color.New(color.FgGreen)
	warnColor    = color.New(color.FgYellow)
	badColor     = color.New(color.FgRed, color.Bold)
)

// ConsoleReporter handles real-time console output
type ConsoleReporter struct {
	out io.Writer
}

// NewConsoleReporter creates a console reporter writing to stdout
func NewConsoleReporter() *ConsoleReporter {
	return NewConsoleReporterTo(os.Stdout)
}

// NewConsoleReporterTo creates a console reporter writing to w
func NewConsoleReporterTo(w io.Writer) *ConsoleReporter {
	return &ConsoleReporter{out: w}
}

func (c *ConsoleReporter) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func (c *ConsoleReporter) println(args ...any) {
	_, _ = fmt.Fprintln(c.out, args...)
}

// PrintHeader prints the test header
func (c *ConsoleReporter) PrintHeader(cfg *config.Config) {
	c.println(strings.Repeat("=", 80))
	_, _ = headingColor.Fprintln(c.out, "LLM Inference Benchmark")
	c.println(strings.Repeat("=", 80))
	c.printf("Backend: %s\n", cfg.Target.Backend)
	if cfg.Target.Backend == config.BackendBedrock {
		c.printf("Region: %s\n", cfg.AWS.Region)
	} else {
		c.printf("Target: %s\n", cfg.Target.URL)
	}
	if cfg.Model.ID != "" {
		c.printf("Model: %s\n", cfg.Model.ID)
	}
	if cfg.Test.PayloadFile != "" {
		c.printf("Payload File: %s\n", cfg.Test.PayloadFile)
	} else if cfg.Test.Prompt == "" {
		c.printf("Prompt Size: %d characters\n", cfg.Test.PromptSize)
	}
	c.printf("Max Tokens: %d\n", cfg.Test.MaxTokens)
	c.printf("Temperature: %.2f\n", cfg.Test.Temperature)
	c.printf("Concurrency Range: %d -> %d (step: %d)\n",
		cfg.Concurrency.Start, cfg.Concurrency.End, cfg.Concurrency.Step)
	if cfg.Concurrency.Requests > 0 {
		c.printf("Requests per Level: %d\n", cfg.Concurrency.Requests)
	} else {
		c.printf("Duration per Level: %d seconds\n", cfg.Concurrency.DurationSeconds)
	}
	if cfg.Concurrency.RateLimit > 0 {
		c.printf("Rate Limit: %.2f req/s\n", cfg.Concurrency.RateLimit)
	}
	c.println(strings.Repeat("=", 80))
	c.println()
}

// PrintSection prints a section header
func (c *ConsoleReporter) PrintSection(title string) {
	c.println()
	c.println(strings.Repeat("-", 80))
	_, _ = headingColor.Fprintf(c.out, ">>> %s\n", title)
	c.println(strings.Repeat("-", 80))
	c.println()
}

// PrintConcurrencyLevel prints the start of a new concurrency level test
func (c *ConsoleReporter) PrintConcurrencyLevel(level int) {
	c.printf("\n[Concurrency Level: %d]\n", level)
	c.println("Starting test...")
}

// PrintProgress prints progress during the test
func (c *ConsoleReporter) PrintProgress(p types.ProgressSnapshot) {
	var rps, tps float64
	if secs := p.Elapsed.Seconds(); secs > 0 {
		rps = float64(p.Completed) / secs
		tps = float64(p.Tokens) / secs
	}
	c.printf("  Progress: %d requests | In flight: %d | Success: %d | Failures: %d | Req/s: %.2f | Tokens/s: %.2f\n",
		p.Completed, p.InFlight, p.Successful, p.Failed, rps, tps)
}

// PrintStats prints detailed statistics for a completed test
func (c *ConsoleReporter) PrintStats(stats *types.ConcurrencyLevelStats) {
	m := stats.Metrics

	c.println("\nResults:")
	c.println(strings.Repeat("─", 80))

	c.printf("  Run ID:             %s\n", stats.RunID)
	c.printf("  Total Requests:     %d\n", m.TotalRequests)
	c.printf("  Successful:         %d (%s)\n", m.SuccessfulRequests, c.rate(m.SuccessRate))
	c.printf("  Failed:             %d\n", m.FailedRequests)
	c.printf("  Duration:           %s\n", m.RunDuration.Round(100*time.Millisecond))

	c.println("\n  Throughput:")
	c.printf("    Requests/sec:     %.2f\n", m.RequestsPerSecond)
	c.printf("    Tokens/sec:       %.2f\n", m.AggregateTokensPerSecond)
	c.printf("    Total Tokens:     %d\n", m.TotalTokensGenerated)

	c.printDistribution("Latency (ms)", m.Latency)
	if m.Mode == types.ModeStreaming {
		c.printDistribution("Time to First Token (ms)", m.TTFT)
	}
	c.printDistribution("Per-Request Tokens/sec", m.Throughput)

	if len(m.ErrorsByType) > 0 {
		c.println("\n  Error Distribution:")
		for _, errType := range sortedKeys(m.ErrorsByType) {
			_, _ = badColor.Fprintf(c.out, "    %s: %d\n", errType, m.ErrorsByType[errType])
		}
	}

	c.println(strings.Repeat("─", 80))
}

func (c *ConsoleReporter) printDistribution(title string, d *types.Distribution) {
	c.printf("\n  %s:\n", title)
	if d == nil {
		c.println("    n/a")
		return
	}
	c.printf("    Average:          %.2f\n", d.Mean)
	c.printf("    Min:              %.2f\n", d.Min)
	c.printf("    Max:              %.2f\n", d.Max)
	c.printf("    P50:              %.2f\n", d.P50)
	c.printf("    P95:              %.2f\n", d.P95)
	c.printf("    P99:              %.2f\n", d.P99)
}

// rate formats a success fraction colored by health
func (c *ConsoleReporter) rate(r float64) string {
	text := fmt.Sprintf("%.2f%%", r*100)
	switch {
	case r >= 0.99:
		return goodColor.Sprint(text)
	case r >= 0.9:
		return warnColor.Sprint(text)
	default:
		return badColor.Sprint(text)
	}
}

// PrintReportSaved prints a message indicating the report was saved
func (c *ConsoleReporter) PrintReportSaved(filename string) {
	c.println()
	c.println(strings.Repeat("=", 80))
	_, _ = goodColor.Fprintf(c.out, "Report saved to: %s\n", filename)
	c.println(strings.Repeat("=", 80))
}

// PrintError prints an error message
func (c *ConsoleReporter) PrintError(err error) {
	_, _ = badColor.Fprintf(c.out, "\n[ERROR] %v\n", err)
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
