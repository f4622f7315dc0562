package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inference-bench/internal/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoadFileWithDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"target": {"url": "http://localhost:8000/v1/chat/completions", "headers": {"X-Team": "perf"}},
		"test": {"non_streaming": true},
		"concurrency": {"start": 2, "end": 8, "step": 2}
	}`)

	cfg, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, BackendHTTP, cfg.Target.Backend)
	assert.Equal(t, "perf", cfg.Target.Headers["x-team"])
	assert.True(t, cfg.Target.HTTP2)
	assert.Equal(t, 256, cfg.Test.MaxTokens)
	assert.Equal(t, []types.Mode{types.ModeStreaming, types.ModeNonStreaming}, cfg.Modes())
	assert.Equal(t, []int{2, 4, 6, 8}, cfg.Levels())
	assert.Equal(t, 60*time.Second, cfg.Duration())
	assert.Equal(t, 300*time.Second, cfg.ReadTimeout(types.ModeStreaming))
	assert.Equal(t, 120*time.Second, cfg.ReadTimeout(types.ModeNonStreaming))
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout())
	assert.Equal(t, 50, cfg.Concurrency.MaxWorkers)
}

func TestLoadFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `{"target": {"url": "http://a"}, "concurrency": {"start": 1, "end": 4}}`)
	fs := newFlags(t, "--url", "http://b", "-n", "16", "--requests", "100", "--mode", "both")

	cfg, err := Load(path, fs)
	require.NoError(t, err)

	assert.Equal(t, "http://b", cfg.Target.URL)
	assert.Equal(t, []int{16}, cfg.Levels())
	assert.Equal(t, 100, cfg.Concurrency.Requests)
	assert.True(t, cfg.Test.Streaming)
	assert.True(t, cfg.Test.NonStreaming)
}

func TestLoadDurationFlagClearsRequests(t *testing.T) {
	path := writeConfig(t, `{"target": {"url": "http://a"}, "concurrency": {"requests": 50}}`)

	cfg, err := Load(path, newFlags(t, "--duration", "30"))
	require.NoError(t, err)

	assert.Zero(t, cfg.Concurrency.Requests)
	assert.Equal(t, 30*time.Second, cfg.Duration())
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("INFERENCE_BENCH_TARGET_URL", "http://from-env")
	t.Setenv("INFERENCE_BENCH_TEST_MAX_TOKENS", "42")

	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "http://from-env", cfg.Target.URL)
	assert.Equal(t, 42, cfg.Test.MaxTokens)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestLoadUnknownMode(t *testing.T) {
	_, err := Load("", newFlags(t, "--url", "http://a", "--mode", "batch"))
	assert.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		Target:      TargetConfig{URL: "http://a", Backend: BackendHTTP},
		Test:        TestConfig{PromptSize: 10, MaxTokens: 10, Streaming: true},
		Concurrency: ConcurrencyConfig{Start: 1, End: 1, Step: 1, DurationSeconds: 10, MaxWorkers: 50},
		Timeouts:    TimeoutConfig{ConnectSeconds: 1, StreamingReadSeconds: 1, NonStreamingReadSeconds: 1, WriteSeconds: 1},
		Output:      OutputConfig{ReportFile: "r.md"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{name: "valid", modify: func(*Config) {}},
		{name: "missing url", modify: func(c *Config) { c.Target.URL = "" }, errMsg: "target.url"},
		{name: "unknown backend", modify: func(c *Config) { c.Target.Backend = "grpc" }, errMsg: "target.backend"},
		{name: "bedrock without region", modify: func(c *Config) { c.Target.Backend = BackendBedrock; c.Model.ID = "anthropic.claude" }, errMsg: "aws.region"},
		{name: "bedrock without model", modify: func(c *Config) { c.Target.Backend = BackendBedrock; c.AWS.Region = "us-east-1" }, errMsg: "model.id"},
		{name: "bad range", modify: func(c *Config) { c.Concurrency.End = 0 }, errMsg: "concurrency.end"},
		{name: "bad step", modify: func(c *Config) { c.Concurrency.Step = 0 }, errMsg: "concurrency.step"},
		{name: "no duration", modify: func(c *Config) { c.Concurrency.DurationSeconds = 0 }, errMsg: "duration_seconds"},
		{name: "count based needs no duration", modify: func(c *Config) { c.Concurrency.DurationSeconds = 0; c.Concurrency.Requests = 5 }},
		{name: "negative rate", modify: func(c *Config) { c.Concurrency.RateLimit = -1 }, errMsg: "rate_limit"},
		{name: "zero timeout", modify: func(c *Config) { c.Timeouts.WriteSeconds = 0 }, errMsg: "timeouts"},
		{name: "no report", modify: func(c *Config) { c.Output.ReportFile = "" }, errMsg: "report_file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestValidateNoModes(t *testing.T) {
	cfg := validConfig()
	cfg.Test.Streaming = false

	assert.True(t, errors.Is(cfg.Validate(), ErrNoModes))
}
