package benchmark

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"inference-bench/internal/types"
)

// collector gathers results from concurrent requests
type collector struct {
	mu      sync.Mutex
	results []types.RequestResult
}

func newCollector(capacity int) *collector {
	return &collector{results: make([]types.RequestResult, 0, capacity)}
}

func (c *collector) add(result types.RequestResult) {
	c.mu.Lock()
	c.results = append(c.results, result)
	c.mu.Unlock()
}

func (c *collector) snapshot() []types.RequestResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]types.RequestResult, len(c.results))
	copy(out, c.results)
	return out
}

// admit waits for the rate limiter, if any, then for a slot in the gate
func (d *Driver) admit(ctx context.Context, gate *semaphore.Weighted) error {
	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return gate.Acquire(ctx, 1)
}

// runCount dispatches exactly n requests, each in its own goroutine once the
// gate admits it, and waits for all of them.
func (d *Driver) runCount(ctx context.Context, c *collector, payload types.Payload, mode types.Mode, concurrency, n int) {
	gate := semaphore.NewWeighted(int64(concurrency))

	// Requests outlive cancellation of ctx; per-request timeouts bound them
	requestCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		if err := d.admit(ctx, gate); err != nil {
			d.logger.Info("admission stopped")
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer gate.Release(1)

			c.add(d.invoke(requestCtx, payload, mode))
		}()
	}

	wg.Wait()
}

// runDuration starts min(concurrency, maxWorkers) workers that keep issuing
// requests through the gate until the deadline passes. A request admitted
// before the deadline always completes and is recorded.
func (d *Driver) runDuration(ctx context.Context, c *collector, payload types.Payload, mode types.Mode, concurrency int, deadline time.Time) {
	gate := semaphore.NewWeighted(int64(concurrency))
	workers := min(concurrency, d.maxWorkers)

	admitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	requestCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for time.Now().Before(deadline) {
				if err := d.admit(admitCtx, gate); err != nil {
					return nil
				}

				result := d.invoke(requestCtx, payload, mode)
				gate.Release(1)
				c.add(result)
			}
			return nil
		})
	}

	_ = g.Wait()
}
