package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"inference-bench/internal/benchmark"
	"inference-bench/internal/config"
	"inference-bench/internal/logging"
	"inference-bench/internal/telemetry"
)

func main() {
	// Parse command line flags
	flags := pflag.NewFlagSet("inference-bench", pflag.ExitOnError)
	config.RegisterFlags(flags)
	_ = flags.Parse(os.Args[1:])

	configPath, _ := flags.GetString("config")

	// Load configuration
	cfg, err := config.Load(configPath, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Create context that can be cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\n\nReceived interrupt signal, finishing in-flight requests...")
		cancel()
	}()

	var opts []benchmark.RunnerOption
	if cfg.Metrics.ListenAddress != "" {
		collector := telemetry.NewCollector()
		opts = append(opts, benchmark.WithRunObserver(collector))

		metricsCtx, stopMetrics := context.WithCancel(context.Background())
		defer stopMetrics()

		go func() {
			if err := collector.Serve(metricsCtx, cfg.Metrics.ListenAddress, logger); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	// Create and run the benchmark
	runner := benchmark.NewRunner(cfg, logger, opts...)

	allStats, err := runner.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Benchmark failed: %v\n", err)
		os.Exit(1)
	}

	if len(allStats) == 0 {
		fmt.Fprintf(os.Stderr, "Benchmark failed: %v\n", benchmark.ErrNoResults)
		os.Exit(1)
	}

	// Generate report
	if err := runner.GenerateReport(allStats); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to generate report: %v\n", err)
		os.Exit(1)
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		fmt.Println("\nBenchmark interrupted; partial results were reported.")
		return
	}

	fmt.Println("\nBenchmark completed successfully!")
}
