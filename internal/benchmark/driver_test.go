package benchmark

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inference-bench/internal/completion"
	"inference-bench/internal/types"
)

// fakeInvoker sleeps for delay and tracks the peak number of concurrent calls
type fakeInvoker struct {
	delay    time.Duration
	inFlight atomic.Int64
	peak     atomic.Int64
	calls    atomic.Int64
	fail     bool
}

func (f *fakeInvoker) invoke(mode types.Mode) types.RequestResult {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	defer f.inFlight.Add(-1)

	attempt := types.NewAttempt(mode)
	time.Sleep(f.delay)
	if f.fail {
		attempt.Fail(types.ErrorTypeHTTP, errors.New("HTTP 500: boom"))
		attempt.StatusCode = http.StatusInternalServerError
	} else {
		attempt.MarkFirstToken()
		attempt.Tokens = 3
	}
	return attempt.Result()
}

func (f *fakeInvoker) InvokeStreaming(_ context.Context, _ types.Payload) types.RequestResult {
	return f.invoke(types.ModeStreaming)
}

func (f *fakeInvoker) InvokeNonStreaming(_ context.Context, _ types.Payload) types.RequestResult {
	return f.invoke(types.ModeNonStreaming)
}

type countingObserver struct {
	mu       sync.Mutex
	started  int
	finished int
}

func (o *countingObserver) RequestStarted(types.Mode) {
	o.mu.Lock()
	o.started++
	o.mu.Unlock()
}

func (o *countingObserver) RequestFinished(types.RequestResult) {
	o.mu.Lock()
	o.finished++
	o.mu.Unlock()
}

func benchPayload() types.Payload {
	return types.Payload{
		Messages:  []types.Message{{Role: "user", Content: "ping"}},
		MaxTokens: 8,
	}
}

func TestRunCountBased(t *testing.T) {
	inv := &fakeInvoker{delay: 20 * time.Millisecond}
	observer := &countingObserver{}

	results, elapsed, err := NewDriver(inv, WithObserver(observer)).
		Run(context.Background(), benchPayload(), types.ModeStreaming, 3, Requests(10))
	require.NoError(t, err)

	assert.Len(t, results, 10)
	assert.EqualValues(t, 10, inv.calls.Load())
	assert.LessOrEqual(t, inv.peak.Load(), int64(3))
	assert.Equal(t, 10, observer.started)
	assert.Equal(t, 10, observer.finished)
	assert.GreaterOrEqual(t, elapsed, 4*20*time.Millisecond)

	for _, r := range results {
		assert.True(t, r.Success)
		assert.Equal(t, types.ModeStreaming, r.Mode)
	}
}

func TestRunDurationBased(t *testing.T) {
	inv := &fakeInvoker{delay: 10 * time.Millisecond}

	start := time.Now()
	results, elapsed, err := NewDriver(inv).
		Run(context.Background(), benchPayload(), types.ModeNonStreaming, 4, Duration(150*time.Millisecond))
	require.NoError(t, err)

	assert.NotEmpty(t, results)
	assert.EqualValues(t, len(results), inv.calls.Load())
	assert.LessOrEqual(t, inv.peak.Load(), int64(4))
	assert.GreaterOrEqual(t, elapsed, 140*time.Millisecond)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestRunDurationBasedCapsWorkers(t *testing.T) {
	inv := &fakeInvoker{delay: 30 * time.Millisecond}

	_, _, err := NewDriver(inv, WithMaxWorkers(2)).
		Run(context.Background(), benchPayload(), types.ModeStreaming, 8, Duration(100*time.Millisecond))
	require.NoError(t, err)

	assert.LessOrEqual(t, inv.peak.Load(), int64(2))
}

func TestRunRateLimited(t *testing.T) {
	inv := &fakeInvoker{}

	_, elapsed, err := NewDriver(inv, WithRateLimit(10)).
		Run(context.Background(), benchPayload(), types.ModeStreaming, 4, Requests(5))
	require.NoError(t, err)

	// burst of one, then one start every 100ms
	assert.GreaterOrEqual(t, elapsed, 350*time.Millisecond)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewDriver(&fakeInvoker{}).
		Run(ctx, benchPayload(), types.ModeStreaming, 2, Requests(5))
	assert.True(t, errors.Is(err, ErrNoResults))
}

func TestRunCancelledMidRunFinishesInFlight(t *testing.T) {
	inv := &fakeInvoker{delay: 100 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	results, _, err := NewDriver(inv).
		Run(ctx, benchPayload(), types.ModeStreaming, 2, Requests(50))
	require.NoError(t, err)

	assert.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Success)
	}
}

func TestRunRejectsInvalidArguments(t *testing.T) {
	d := NewDriver(&fakeInvoker{})
	ctx := context.Background()

	_, _, err := d.Run(ctx, benchPayload(), types.ModeStreaming, 0, Requests(1))
	assert.Error(t, err)

	_, _, err = d.Run(ctx, benchPayload(), types.ModeStreaming, 1, StopCondition{Requests: 1, Duration: time.Second})
	assert.Error(t, err)

	_, _, err = d.Run(ctx, benchPayload(), types.ModeStreaming, 1, StopCondition{})
	assert.Error(t, err)

	_, _, err = d.Run(ctx, benchPayload(), types.Mode("batch"), 1, Requests(1))
	assert.Error(t, err)
}

func TestRunBatch(t *testing.T) {
	stats, err := NewDriver(&fakeInvoker{delay: time.Millisecond}).
		RunBatch(context.Background(), benchPayload(), types.ModeStreaming, 2, Requests(4))
	require.NoError(t, err)

	assert.Len(t, stats.RunID, 27)
	assert.Equal(t, 2, stats.ConcurrencyLevel)
	assert.Len(t, stats.Results, 4)
	assert.Equal(t, 4, stats.Metrics.SuccessfulRequests)
	assert.Equal(t, 12, stats.Metrics.TotalTokensGenerated)
	assert.NotNil(t, stats.Metrics.TTFT)
	assert.False(t, stats.StartedAt.IsZero())
}

func TestRunAgainstFailingServer(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := completion.NewClient(completion.ClientConfig{
		URL:       server.URL,
		Transport: completion.TransportConfig{MaxConns: 5},
	}, nil)
	require.NoError(t, err)
	defer client.Close()

	stats, err := NewDriver(client).
		RunBatch(context.Background(), benchPayload(), types.ModeNonStreaming, 5, Requests(20))
	require.NoError(t, err)

	m := stats.Metrics
	assert.EqualValues(t, 20, hits.Load())
	assert.Equal(t, 20, m.TotalRequests)
	assert.Zero(t, m.SuccessRate)
	assert.Equal(t, 20, m.ErrorsByType[types.ErrorTypeHTTP])
	assert.Nil(t, m.Latency)
	assert.Nil(t, m.Throughput)
	for _, r := range stats.Results {
		assert.Equal(t, http.StatusInternalServerError, r.StatusCode)
	}
}

func TestStopConditionString(t *testing.T) {
	assert.Equal(t, "10 requests", Requests(10).String())
	assert.Equal(t, "1m0s", Duration(time.Minute).String())
}

func TestRunAgainstStallingStream(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"one two three\"}}]}\n\n")
		w.(http.Flusher).Flush()
		<-release
	}))
	defer server.Close()
	defer close(release)

	client, err := completion.NewClient(completion.ClientConfig{
		URL: server.URL,
		Transport: completion.TransportConfig{
			MaxConns:    4,
			ReadTimeout: 100 * time.Millisecond,
		},
	}, nil)
	require.NoError(t, err)
	defer client.Close()

	stats, err := NewDriver(client).
		RunBatch(context.Background(), benchPayload(), types.ModeStreaming, 4, Requests(4))
	require.NoError(t, err)

	m := stats.Metrics
	assert.Zero(t, m.SuccessRate)
	assert.Equal(t, 4, m.FailedRequests)
	assert.Zero(t, m.TotalTokensGenerated)
	assert.Zero(t, m.AggregateTokensPerSecond)
	assert.Nil(t, m.TTFT)
	assert.Nil(t, m.Throughput)
	assert.Equal(t, 4, m.ErrorsByType[types.ErrorTypeTimeout])
	for _, r := range stats.Results {
		assert.Zero(t, r.TokensGenerated)
		assert.False(t, r.HasTTFT)
	}
}
