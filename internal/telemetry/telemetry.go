// Package telemetry exposes live benchmark counters to Prometheus.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"inference-bench/internal/types"
)

const namespace = "inference_bench"

// Collector records request outcomes on a private registry
type Collector struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	inFlight *prometheus.GaugeVec
	latency  *prometheus.HistogramVec
	ttft     *prometheus.HistogramVec
	tokens   *prometheus.CounterVec
}

// NewCollector creates a new collector with its own registry
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Collector{
		registry: registry,
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Completed benchmark requests by mode and outcome",
			}, []string{"mode", "outcome"},
		),
		inFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "requests_in_flight",
				Help:      "Requests currently admitted and not yet completed",
			}, []string{"mode"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Total time of successful requests",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			}, []string{"mode"},
		),
		ttft: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "time_to_first_token_seconds",
				Help:      "Time to first token of streaming requests",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			}, []string{"mode"},
		),
		tokens: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tokens_generated_total",
				Help:      "Tokens generated across all requests",
			}, []string{"mode"},
		),
	}
}

// Registry returns the registry holding the benchmark metrics
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) RequestStarted(mode types.Mode) {
	c.inFlight.WithLabelValues(string(mode)).Inc()
}

func (c *Collector) RequestFinished(result types.RequestResult) {
	mode := string(result.Mode)

	c.inFlight.WithLabelValues(mode).Dec()
	c.tokens.WithLabelValues(mode).Add(float64(result.TokensGenerated))

	if !result.Success {
		c.requests.WithLabelValues(mode, result.ErrorType).Inc()
		return
	}

	c.requests.WithLabelValues(mode, "success").Inc()
	c.latency.WithLabelValues(mode).Observe(result.TotalTime.Seconds())
	if result.HasTTFT {
		c.ttft.WithLabelValues(mode).Observe(result.TTFT.Seconds())
	}
}

// Handler serves the collector's registry
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done
func (c *Collector) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("serving metrics", zap.String("address", addr))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
