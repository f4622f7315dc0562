// Package completion drives an OpenAI-compatible chat completion endpoint
// over HTTP and measures each request.
package completion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"syscall"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"inference-bench/internal/stream"
	"inference-bench/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// readChunkSize is the size of each raw body read in streaming mode
	readChunkSize = 1024

	// maxErrorBody caps the response text kept in an HTTP error
	maxErrorBody = 512
)

// ClientConfig holds the target description shared by all requests of a run
type ClientConfig struct {
	URL       string
	APIKey    string
	Headers   map[string]string
	Transport TransportConfig
}

// Client issues measured completion requests. It is safe for concurrent
// use; every call works on its own request/response pair.
type Client struct {
	url        string
	apiKey     string
	headers    map[string]string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a client with a dedicated pooled transport
func NewClient(cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("target url is required")
	}

	transport, err := NewTransport(cfg.Transport)
	if err != nil {
		return nil, err
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		headers:    cfg.Headers,
		httpClient: &http.Client{Transport: transport},
		logger:     logger,
	}, nil
}

// Close releases idle pooled connections
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// InvokeStreaming sends one streaming request and measures time to first
// token, total time and the approximate number of generated tokens.
func (c *Client) InvokeStreaming(ctx context.Context, payload types.Payload) types.RequestResult {
	attempt := types.NewAttempt(types.ModeStreaming)

	req, err := c.newRequest(ctx, payload.ForMode(types.ModeStreaming))
	if err != nil {
		attempt.Fail(types.ErrorTypeRequest, fmt.Errorf("failed to prepare request: %w", err))
		return c.finish(attempt)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		attempt.Fail(categorizeError(err), err)
		return c.finish(attempt)
	}
	defer resp.Body.Close()

	attempt.StatusCode = resp.StatusCode
	if !isSuccessStatus(resp.StatusCode) {
		attempt.Fail(types.ErrorTypeHTTP, httpError(resp))
		return c.finish(attempt)
	}

	consumeEventStream(resp.Body, attempt)

	return c.finish(attempt)
}

// InvokeNonStreaming sends one request, waits for the full body and reads
// the provider-reported completion token usage.
func (c *Client) InvokeNonStreaming(ctx context.Context, payload types.Payload) types.RequestResult {
	attempt := types.NewAttempt(types.ModeNonStreaming)

	req, err := c.newRequest(ctx, payload.ForMode(types.ModeNonStreaming))
	if err != nil {
		attempt.Fail(types.ErrorTypeRequest, fmt.Errorf("failed to prepare request: %w", err))
		return c.finish(attempt)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		attempt.Fail(categorizeError(err), err)
		return c.finish(attempt)
	}
	defer resp.Body.Close()

	attempt.StatusCode = resp.StatusCode
	if !isSuccessStatus(resp.StatusCode) {
		attempt.Fail(types.ErrorTypeHTTP, httpError(resp))
		return c.finish(attempt)
	}

	body, err := io.ReadAll(resp.Body)
	attempt.Finish()
	if err != nil {
		attempt.Fail(categorizeError(err), fmt.Errorf("failed to read response: %w", err))
		return c.finish(attempt)
	}

	var parsed CompletionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		attempt.Fail(types.ErrorTypeResponseParse, fmt.Errorf("failed to parse response: %w", err))
		return c.finish(attempt)
	}

	attempt.Tokens = parsed.CompletionTokens()

	return c.finish(attempt)
}

func (c *Client) newRequest(ctx context.Context, payload types.Payload) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	return req, nil
}

func (c *Client) finish(attempt *types.Attempt) types.RequestResult {
	result := attempt.Result()
	if !result.Success {
		c.logger.Debug("request unsuccessful",
			zap.String("mode", string(result.Mode)),
			zap.String("error_type", result.ErrorType),
			zap.String("error", result.Error),
			zap.Int("status", result.StatusCode),
			zap.Duration("total_time", result.TotalTime),
		)
	}
	return result
}

// consumeEventStream reads the body in raw chunks, reassembles lines and
// interprets each complete line as one event until the stream ends.
func consumeEventStream(body io.Reader, attempt *types.Attempt) {
	var lines stream.LineBuffer
	buf := make([]byte, readChunkSize)

	for {
		n, err := body.Read(buf)
		if n > 0 {
			_, _ = lines.Write(buf[:n])
			for {
				line, ok := lines.Next()
				if !ok {
					break
				}
				if handleEvent(line, attempt) {
					attempt.Finish()
					return
				}
			}
		}

		if err == nil {
			continue
		}

		if errors.Is(err, io.EOF) {
			if rest := lines.Remainder(); len(rest) > 0 {
				handleEvent(rest, attempt)
			}
			attempt.Finish()
			return
		}

		attempt.Finish()
		errType := categorizeError(err)
		if errType != types.ErrorTypeTimeout {
			errType = types.ErrorTypeStream
		}
		attempt.Fail(errType, fmt.Errorf("stream error: %w", err))
		return
	}
}

// handleEvent applies one event line to the attempt and reports whether
// the stream is complete.
func handleEvent(line []byte, attempt *types.Attempt) bool {
	kind, chunk := stream.Decode(line)
	switch kind {
	case stream.KindDone:
		return true
	case stream.KindChunk:
		content := chunk.Content()
		if stream.HasContent(content) {
			attempt.MarkFirstToken()
			attempt.Tokens += stream.ApproxTokens(content)
		}
		return chunk.Finished()
	default:
		return false
	}
}

func isSuccessStatus(code int) bool {
	return code >= 200 && code < 300
}

func httpError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
}

// categorizeError maps a transport error onto an error category
func categorizeError(err error) string {
	var netErr net.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return types.ErrorTypeTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return types.ErrorTypeTimeout
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET), errors.Is(err, io.ErrUnexpectedEOF):
		return types.ErrorTypeConnection
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout"):
		return types.ErrorTypeTimeout
	case strings.Contains(errStr, "connection"), strings.Contains(errStr, "dial"), strings.Contains(errStr, "eof"):
		return types.ErrorTypeConnection
	default:
		return types.ErrorTypeUnknown
	}
}
