package benchmark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"inference-bench/internal/bedrock"
	"inference-bench/internal/completion"
	"inference-bench/internal/config"
	"inference-bench/internal/report"
	"inference-bench/internal/types"
)

// progressInterval is how often a running level prints its progress
const progressInterval = 5 * time.Second

// InvokerFactory creates the invoker for one run. The returned func releases
// its connections once the run is over.
type InvokerFactory func(ctx context.Context, mode types.Mode, concurrency int) (Invoker, func(), error)

// Runner orchestrates the benchmark test
type Runner struct {
	config     *config.Config
	console    *report.ConsoleReporter
	logger     *zap.Logger
	observer   Observer
	newInvoker InvokerFactory
}

// RunnerOption configures a Runner
type RunnerOption func(*Runner)

// WithConsole replaces the stdout console reporter
func WithConsole(console *report.ConsoleReporter) RunnerOption {
	return func(r *Runner) { r.console = console }
}

// WithInvokerFactory replaces the backend selected by the configuration
func WithInvokerFactory(f InvokerFactory) RunnerOption {
	return func(r *Runner) { r.newInvoker = f }
}

// WithRunObserver adds an observer to every run of the sweep
func WithRunObserver(o Observer) RunnerOption {
	return func(r *Runner) { r.observer = o }
}

// NewRunner creates a new benchmark runner
func NewRunner(cfg *config.Config, logger *zap.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Runner{
		config:  cfg,
		console: report.NewConsoleReporter(),
		logger:  logger,
	}
	r.newInvoker = r.defaultInvoker

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run executes the benchmark test
func (r *Runner) Run(ctx context.Context) ([]*types.ConcurrencyLevelStats, error) {
	r.console.PrintHeader(r.config)

	payload, err := BuildPayload(r.config)
	if err != nil {
		return nil, err
	}

	var allStats []*types.ConcurrencyLevelStats

	for _, mode := range r.config.Modes() {
		if ctx.Err() != nil {
			break
		}

		r.console.PrintSection(sectionTitle(mode))
		stats, err := r.runConcurrencyTests(ctx, payload, mode)
		if err != nil {
			return nil, fmt.Errorf("%s test failed: %w", mode, err)
		}
		allStats = append(allStats, stats...)
	}

	return allStats, nil
}

// StopCondition returns the stop criterion configured for every level
func (r *Runner) StopCondition() StopCondition {
	if r.config.Concurrency.Requests > 0 {
		return Requests(r.config.Concurrency.Requests)
	}
	return Duration(r.config.Duration())
}

// runConcurrencyTests runs tests with increasing concurrency levels
func (r *Runner) runConcurrencyTests(ctx context.Context, payload types.Payload, mode types.Mode) ([]*types.ConcurrencyLevelStats, error) {
	var results []*types.ConcurrencyLevelStats

	for _, concurrency := range r.config.Levels() {
		if ctx.Err() != nil {
			r.logger.Info("sweep interrupted", zap.String("mode", string(mode)), zap.Int("next_concurrency", concurrency))
			break
		}

		r.console.PrintConcurrencyLevel(concurrency)

		stats, err := r.runSingleConcurrencyLevel(ctx, payload, mode, concurrency)
		if errors.Is(err, ErrNoResults) {
			r.console.PrintError(fmt.Errorf("concurrency level %d: %w", concurrency, err))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("concurrency level %d failed: %w", concurrency, err)
		}

		results = append(results, stats)
		r.console.PrintStats(stats)
	}

	return results, nil
}

// runSingleConcurrencyLevel runs a test at a specific concurrency level
func (r *Runner) runSingleConcurrencyLevel(ctx context.Context, payload types.Payload, mode types.Mode, concurrency int) (*types.ConcurrencyLevelStats, error) {
	invoker, closeInvoker, err := r.newInvoker(ctx, mode, concurrency)
	if err != nil {
		return nil, err
	}
	defer closeInvoker()

	progress := NewProgress(mode)
	driver := NewDriver(invoker,
		WithMaxWorkers(r.config.Concurrency.MaxWorkers),
		WithRateLimit(r.config.Concurrency.RateLimit),
		WithObserver(progress),
		WithObserver(r.observer),
		WithLogger(r.logger),
	)

	// Monitor progress
	done := make(chan struct{})
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)

		ticker := time.NewTicker(progressInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				r.console.PrintProgress(progress.Snapshot())
			}
		}
	}()

	stats, err := driver.RunBatch(ctx, payload, mode, concurrency, r.StopCondition())

	close(done)
	<-monitorDone

	if err != nil {
		return nil, err
	}

	r.logger.Info("level complete",
		zap.String("run_id", stats.RunID),
		zap.String("mode", string(mode)),
		zap.Int("concurrency", concurrency),
		zap.Int("requests", stats.Metrics.TotalRequests),
		zap.Float64("success_rate", stats.Metrics.SuccessRate),
	)

	return stats, nil
}

// defaultInvoker builds a client for the configured backend. Each run gets
// its own connection pool sized to the run's concurrency.
func (r *Runner) defaultInvoker(ctx context.Context, mode types.Mode, concurrency int) (Invoker, func(), error) {
	transport := completion.TransportConfig{
		ConnectTimeout:  r.config.ConnectTimeout(),
		ReadTimeout:     r.config.ReadTimeout(mode),
		WriteTimeout:    r.config.WriteTimeout(),
		IdleConnTimeout: r.config.IdleConnTimeout(),
		MaxConns:        concurrency,
		HTTP2:           r.config.Target.HTTP2,
	}

	switch r.config.Target.Backend {
	case config.BackendBedrock:
		client, err := bedrock.NewClient(ctx, bedrock.ClientConfig{
			Region:      r.config.AWS.Region,
			AccessKey:   r.config.AWS.AccessKeyID,
			SecretKey:   r.config.AWS.SecretAccessKey,
			ModelID:     r.config.Model.ID,
			ServiceTier: bedrock.ServiceTier(r.config.Model.ServiceTier),
			Transport:   transport,
		}, r.logger)
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil
	default:
		client, err := completion.NewClient(completion.ClientConfig{
			URL:       r.config.Target.URL,
			APIKey:    r.config.Target.APIKey,
			Headers:   r.config.Target.Headers,
			Transport: transport,
		}, r.logger)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	}
}

// GenerateReport generates the final benchmark report
func (r *Runner) GenerateReport(allStats []*types.ConcurrencyLevelStats) error {
	generator := report.NewMarkdownReporter(r.config)

	reportContent := generator.Generate(allStats)

	if err := generator.SaveToFile(reportContent, r.config.Output.ReportFile); err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	r.console.PrintReportSaved(r.config.Output.ReportFile)

	if r.config.Output.ResultsFile != "" {
		if err := report.NewJSONReporter(r.config).SaveToFile(allStats, r.config.Output.ResultsFile); err != nil {
			return fmt.Errorf("failed to save results: %w", err)
		}
		r.console.PrintReportSaved(r.config.Output.ResultsFile)
	}

	return nil
}

func sectionTitle(mode types.Mode) string {
	if mode == types.ModeStreaming {
		return "Streaming Mode Test"
	}
	return "Non-Streaming Mode Test"
}
