package benchmark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/ksuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"inference-bench/internal/types"
)

// DefaultMaxWorkers caps the number of looping workers in a duration-based run
const DefaultMaxWorkers = 50

// Invoker executes single measured requests against a target. Both methods
// always return a result; failures are described inside it.
type Invoker interface {
	InvokeStreaming(ctx context.Context, payload types.Payload) types.RequestResult
	InvokeNonStreaming(ctx context.Context, payload types.Payload) types.RequestResult
}

// Observer is notified around every request a driver issues. Calls arrive
// from many goroutines at once.
type Observer interface {
	RequestStarted(mode types.Mode)
	RequestFinished(result types.RequestResult)
}

// StopCondition ends a run after a number of requests or after a wall-clock
// duration. Exactly one of the two is set.
type StopCondition struct {
	Requests int
	Duration time.Duration
}

// Requests stops a run once n requests have been issued and completed
func Requests(n int) StopCondition {
	return StopCondition{Requests: n}
}

// Duration stops issuing new requests once d has elapsed
func Duration(d time.Duration) StopCondition {
	return StopCondition{Duration: d}
}

// Validate checks that exactly one stop criterion is set
func (s StopCondition) Validate() error {
	switch {
	case s.Requests < 0 || s.Duration < 0:
		return errors.New("stop condition must not be negative")
	case s.Requests > 0 && s.Duration > 0:
		return errors.New("stop condition must set either requests or duration, not both")
	case s.Requests == 0 && s.Duration == 0:
		return errors.New("stop condition must set requests or duration")
	}
	return nil
}

func (s StopCondition) String() string {
	if s.Requests > 0 {
		return fmt.Sprintf("%d requests", s.Requests)
	}
	return s.Duration.String()
}

// Option configures a Driver
type Option func(*Driver)

// WithMaxWorkers overrides DefaultMaxWorkers
func WithMaxWorkers(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.maxWorkers = n
		}
	}
}

// WithRateLimit spaces request starts to at most rps per second.
// A non-positive rate disables limiting.
func WithRateLimit(rps float64) Option {
	return func(d *Driver) {
		if rps > 0 {
			d.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			d.limiter = nil
		}
	}
}

// WithObserver registers an observer. Multiple observers are combined.
func WithObserver(o Observer) Option {
	return func(d *Driver) {
		if o != nil {
			d.observers = append(d.observers, o)
		}
	}
}

// WithLogger sets the driver logger
func WithLogger(logger *zap.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Driver issues requests through an Invoker under an admission gate that
// bounds the number in flight to the run's concurrency.
type Driver struct {
	invoker    Invoker
	maxWorkers int
	limiter    *rate.Limiter
	observers  []Observer
	logger     *zap.Logger
}

// NewDriver creates a new driver
func NewDriver(invoker Invoker, opts ...Option) *Driver {
	d := &Driver{
		invoker:    invoker,
		maxWorkers: DefaultMaxWorkers,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes one benchmark run and returns every collected result with
// the run duration, measured from the first dispatch to the last
// completion. Cancelling ctx stops admission of new requests; requests
// already in flight run to completion. ErrNoResults is returned when
// nothing completed.
func (d *Driver) Run(ctx context.Context, payload types.Payload, mode types.Mode, concurrency int, stop StopCondition) ([]types.RequestResult, time.Duration, error) {
	if concurrency < 1 {
		return nil, 0, fmt.Errorf("concurrency must be at least 1, got %d", concurrency)
	}
	if err := stop.Validate(); err != nil {
		return nil, 0, err
	}
	if _, err := types.ParseMode(string(mode)); err != nil {
		return nil, 0, err
	}

	d.logger.Debug("run starting",
		zap.String("mode", string(mode)),
		zap.Int("concurrency", concurrency),
		zap.Stringer("stop", stop),
	)

	c := newCollector(stop.Requests)
	start := time.Now()

	if stop.Requests > 0 {
		d.runCount(ctx, c, payload, mode, concurrency, stop.Requests)
	} else {
		d.runDuration(ctx, c, payload, mode, concurrency, start.Add(stop.Duration))
	}

	elapsed := time.Since(start)
	results := c.snapshot()

	d.logger.Debug("run finished",
		zap.String("mode", string(mode)),
		zap.Int("concurrency", concurrency),
		zap.Int("results", len(results)),
		zap.Duration("elapsed", elapsed),
	)

	if len(results) == 0 {
		return nil, elapsed, ErrNoResults
	}

	return results, elapsed, nil
}

// RunBatch executes one run and aggregates it
func (d *Driver) RunBatch(ctx context.Context, payload types.Payload, mode types.Mode, concurrency int, stop StopCondition) (*types.ConcurrencyLevelStats, error) {
	startedAt := time.Now()

	results, elapsed, err := d.Run(ctx, payload, mode, concurrency, stop)
	if err != nil {
		return nil, err
	}

	metrics, err := Aggregate(results, elapsed, mode)
	if err != nil {
		return nil, err
	}

	return &types.ConcurrencyLevelStats{
		RunID:            ksuid.New().String(),
		ConcurrencyLevel: concurrency,
		StartedAt:        startedAt,
		Metrics:          metrics,
		Results:          results,
	}, nil
}

// invoke executes one request and notifies observers around it
func (d *Driver) invoke(ctx context.Context, payload types.Payload, mode types.Mode) types.RequestResult {
	for _, o := range d.observers {
		o.RequestStarted(mode)
	}

	var result types.RequestResult
	if mode == types.ModeStreaming {
		result = d.invoker.InvokeStreaming(ctx, payload)
	} else {
		result = d.invoker.InvokeNonStreaming(ctx, payload)
	}

	for _, o := range d.observers {
		o.RequestFinished(result)
	}

	return result
}
