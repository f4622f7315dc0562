package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inference-bench/internal/types"
)

func TestCollectorRecordsOutcomes(t *testing.T) {
	c := NewCollector()

	c.RequestStarted(types.ModeStreaming)
	c.RequestStarted(types.ModeStreaming)
	assert.Equal(t, 2.0, testutil.ToFloat64(c.inFlight.WithLabelValues("streaming")))

	c.RequestFinished(types.RequestResult{
		Mode:            types.ModeStreaming,
		Success:         true,
		HasTTFT:         true,
		TTFT:            50 * time.Millisecond,
		TotalTime:       time.Second,
		TokensGenerated: 12,
	})
	c.RequestFinished(types.RequestResult{
		Mode:      types.ModeStreaming,
		ErrorType: types.ErrorTypeHTTP,
		TotalTime: 10 * time.Millisecond,
	})

	assert.Zero(t, testutil.ToFloat64(c.inFlight.WithLabelValues("streaming")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("streaming", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("streaming", types.ErrorTypeHTTP)))
	assert.Equal(t, 12.0, testutil.ToFloat64(c.tokens.WithLabelValues("streaming")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.ttft))
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector()
	c.RequestStarted(types.ModeNonStreaming)

	server := httptest.NewServer(c.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `inference_bench_requests_in_flight{mode="non_streaming"} 1`)
}
