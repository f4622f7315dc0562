package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"inference-bench/internal/types"
)

// EnvPrefix prefixes environment overrides, e.g. INFERENCE_BENCH_TARGET_URL
const EnvPrefix = "INFERENCE_BENCH"

// Backends
const (
	BackendHTTP    = "http"
	BackendBedrock = "bedrock"
)

// ErrNoModes is returned when neither streaming nor non-streaming is enabled
var ErrNoModes = errors.New("at least one of streaming or non_streaming must be enabled")

// Config represents the complete configuration for the benchmark tool
type Config struct {
	Target      TargetConfig      `mapstructure:"target" json:"target"`
	AWS         AWSConfig         `mapstructure:"aws" json:"aws"`
	Model       ModelConfig       `mapstructure:"model" json:"model"`
	Test        TestConfig        `mapstructure:"test" json:"test"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency" json:"concurrency"`
	Timeouts    TimeoutConfig     `mapstructure:"timeouts" json:"timeouts"`
	Output      OutputConfig      `mapstructure:"output" json:"output"`
	Log         LogConfig         `mapstructure:"log" json:"log"`
	Metrics     MetricsConfig     `mapstructure:"metrics" json:"metrics"`
}

// TargetConfig describes the endpoint under test
type TargetConfig struct {
	URL     string            `mapstructure:"url" json:"url"`
	Backend string            `mapstructure:"backend" json:"backend"`
	APIKey  string            `mapstructure:"api_key" json:"-"`
	Headers map[string]string `mapstructure:"headers" json:"-"`
	HTTP2   bool              `mapstructure:"http2" json:"http2"`
}

// AWSConfig contains AWS credentials and region
type AWSConfig struct {
	Region          string `mapstructure:"region" json:"region"`
	AccessKeyID     string `mapstructure:"access_key_id" json:"-"`
	SecretAccessKey string `mapstructure:"secret_access_key" json:"-"`
}

// ModelConfig contains model configuration
type ModelConfig struct {
	ID          string `mapstructure:"id" json:"id"`
	ServiceTier string `mapstructure:"service_tier" json:"service_tier,omitempty"`
}

// TestConfig contains test parameters
type TestConfig struct {
	Prompt         string  `mapstructure:"prompt" json:"prompt,omitempty"`
	PromptSize     int     `mapstructure:"prompt_size" json:"prompt_size"`
	PromptTemplate string  `mapstructure:"prompt_template" json:"prompt_template,omitempty"`
	SystemPrompt   string  `mapstructure:"system_prompt" json:"system_prompt,omitempty"`
	PayloadFile    string  `mapstructure:"payload_file" json:"payload_file,omitempty"`
	MaxTokens      int     `mapstructure:"max_tokens" json:"max_tokens"`
	Temperature    float64 `mapstructure:"temperature" json:"temperature"`
	Streaming      bool    `mapstructure:"streaming" json:"streaming"`
	NonStreaming   bool    `mapstructure:"non_streaming" json:"non_streaming"`
}

// ConcurrencyConfig defines the concurrency test parameters. A positive
// Requests switches every level to a count-based run.
type ConcurrencyConfig struct {
	Start           int     `mapstructure:"start" json:"start"`
	End             int     `mapstructure:"end" json:"end"`
	Step            int     `mapstructure:"step" json:"step"`
	DurationSeconds int     `mapstructure:"duration_seconds" json:"duration_seconds"`
	Requests        int     `mapstructure:"requests" json:"requests"`
	MaxWorkers      int     `mapstructure:"max_workers" json:"max_workers"`
	RateLimit       float64 `mapstructure:"rate_limit" json:"rate_limit"`
}

// TimeoutConfig holds per-operation network timeouts in seconds
type TimeoutConfig struct {
	ConnectSeconds          int `mapstructure:"connect_seconds" json:"connect_seconds"`
	StreamingReadSeconds    int `mapstructure:"streaming_read_seconds" json:"streaming_read_seconds"`
	NonStreamingReadSeconds int `mapstructure:"non_streaming_read_seconds" json:"non_streaming_read_seconds"`
	WriteSeconds            int `mapstructure:"write_seconds" json:"write_seconds"`
	IdleConnSeconds         int `mapstructure:"idle_conn_seconds" json:"idle_conn_seconds"`
}

// OutputConfig defines output settings
type OutputConfig struct {
	ReportFile  string `mapstructure:"report_file" json:"report_file"`
	ResultsFile string `mapstructure:"results_file" json:"results_file,omitempty"`
	IncludeRaw  bool   `mapstructure:"include_raw" json:"include_raw"`
}

// LogConfig selects the log level and encoding
type LogConfig struct {
	Level string `mapstructure:"level" json:"level"`
	JSON  bool   `mapstructure:"json" json:"json"`
}

// MetricsConfig enables the Prometheus endpoint when ListenAddress is set
type MetricsConfig struct {
	ListenAddress string `mapstructure:"listen_address" json:"listen_address,omitempty"`
}

// setDefaults registers every key so that environment overrides apply
func setDefaults(v *viper.Viper) {
	v.SetDefault("target.url", "")
	v.SetDefault("target.backend", BackendHTTP)
	v.SetDefault("target.api_key", "")
	v.SetDefault("target.headers", map[string]string{})
	v.SetDefault("target.http2", true)

	v.SetDefault("aws.region", "")
	v.SetDefault("aws.access_key_id", "")
	v.SetDefault("aws.secret_access_key", "")

	v.SetDefault("model.id", "")
	v.SetDefault("model.service_tier", "")

	v.SetDefault("test.prompt", "")
	v.SetDefault("test.prompt_size", 1000)
	v.SetDefault("test.prompt_template", "")
	v.SetDefault("test.system_prompt", "")
	v.SetDefault("test.payload_file", "")
	v.SetDefault("test.max_tokens", 256)
	v.SetDefault("test.temperature", 0.7)
	v.SetDefault("test.streaming", true)
	v.SetDefault("test.non_streaming", false)

	v.SetDefault("concurrency.start", 1)
	v.SetDefault("concurrency.end", 1)
	v.SetDefault("concurrency.step", 1)
	v.SetDefault("concurrency.duration_seconds", 60)
	v.SetDefault("concurrency.requests", 0)
	v.SetDefault("concurrency.max_workers", 50)
	v.SetDefault("concurrency.rate_limit", 0.0)

	v.SetDefault("timeouts.connect_seconds", 10)
	v.SetDefault("timeouts.streaming_read_seconds", 300)
	v.SetDefault("timeouts.non_streaming_read_seconds", 120)
	v.SetDefault("timeouts.write_seconds", 30)
	v.SetDefault("timeouts.idle_conn_seconds", 30)

	v.SetDefault("output.report_file", "benchmark_report.md")
	v.SetDefault("output.results_file", "")
	v.SetDefault("output.include_raw", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("metrics.listen_address", "")
}

// flagKeys maps command line flags onto configuration keys
var flagKeys = map[string][]string{
	"url":          {"target.url"},
	"backend":      {"target.backend"},
	"api-key":      {"target.api_key"},
	"model":        {"model.id"},
	"region":       {"aws.region"},
	"prompt":       {"test.prompt"},
	"payload":      {"test.payload_file"},
	"max-tokens":   {"test.max_tokens"},
	"concurrency":  {"concurrency.start", "concurrency.end"},
	"requests":     {"concurrency.requests"},
	"duration":     {"concurrency.duration_seconds"},
	"rate-limit":   {"concurrency.rate_limit"},
	"report":       {"output.report_file"},
	"results":      {"output.results_file"},
	"log-level":    {"log.level"},
	"metrics-addr": {"metrics.listen_address"},
}

// RegisterFlags adds the command line flags understood by Load
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringP("config", "c", "", "Path to configuration file")
	fs.String("url", "", "Chat completion endpoint URL")
	fs.String("backend", BackendHTTP, "Target backend (http|bedrock)")
	fs.String("api-key", "", "Bearer token sent to the endpoint")
	fs.StringP("model", "m", "", "Model identifier")
	fs.String("region", "", "AWS region for the bedrock backend")
	fs.String("prompt", "", "Prompt text")
	fs.String("payload", "", "Path to a JSON request payload")
	fs.Int("max-tokens", 0, "Maximum tokens to generate")
	fs.String("mode", "", "Mode to benchmark (streaming|non_streaming|both)")
	fs.IntP("concurrency", "n", 0, "Fixed concurrency level")
	fs.Int("requests", 0, "Requests per level (count-based run)")
	fs.Int("duration", 0, "Seconds per level (duration-based run)")
	fs.Float64("rate-limit", 0, "Maximum request starts per second")
	fs.String("report", "", "Markdown report path")
	fs.String("results", "", "JSON results path")
	fs.String("log-level", "", "Log level")
	fs.String("metrics-addr", "", "Address for the Prometheus endpoint")
}

// Load reads the optional configuration file, applies environment
// overrides and the flags set on fs, then validates the result.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if fs != nil {
		if err := bindFlags(v, fs); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, keys := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		for _, key := range keys {
			if err := v.BindPFlag(key, flag); err != nil {
				return fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	if flag := fs.Lookup("mode"); flag != nil && flag.Changed {
		switch flag.Value.String() {
		case string(types.ModeStreaming):
			v.Set("test.streaming", true)
			v.Set("test.non_streaming", false)
		case string(types.ModeNonStreaming):
			v.Set("test.streaming", false)
			v.Set("test.non_streaming", true)
		case "both":
			v.Set("test.streaming", true)
			v.Set("test.non_streaming", true)
		default:
			return fmt.Errorf("unknown mode %q", flag.Value.String())
		}
	}

	// An explicit duration on the command line wins over configured requests
	if flag := fs.Lookup("duration"); flag != nil && flag.Changed {
		if requests := fs.Lookup("requests"); requests == nil || !requests.Changed {
			v.Set("concurrency.requests", 0)
		}
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Target.Backend {
	case BackendHTTP:
		if c.Target.URL == "" {
			return fmt.Errorf("target.url is required")
		}
	case BackendBedrock:
		// access_key_id and secret_access_key are optional
		// if empty, the SDK will use default credential chain
		if c.AWS.Region == "" {
			return fmt.Errorf("aws.region is required")
		}
		if c.Model.ID == "" {
			return fmt.Errorf("model.id is required")
		}
	default:
		return fmt.Errorf("target.backend must be %q or %q", BackendHTTP, BackendBedrock)
	}

	if c.Test.PayloadFile == "" && c.Test.Prompt == "" && c.Test.PromptSize <= 0 {
		return fmt.Errorf("test.prompt_size must be positive")
	}
	if !c.Test.Streaming && !c.Test.NonStreaming {
		return ErrNoModes
	}
	if c.Test.MaxTokens <= 0 {
		return fmt.Errorf("test.max_tokens must be positive")
	}
	if c.Concurrency.Start <= 0 {
		return fmt.Errorf("concurrency.start must be positive")
	}
	if c.Concurrency.End < c.Concurrency.Start {
		return fmt.Errorf("concurrency.end must be >= concurrency.start")
	}
	if c.Concurrency.Step <= 0 {
		return fmt.Errorf("concurrency.step must be positive")
	}
	if c.Concurrency.Requests < 0 {
		return fmt.Errorf("concurrency.requests must not be negative")
	}
	if c.Concurrency.Requests == 0 && c.Concurrency.DurationSeconds <= 0 {
		return fmt.Errorf("concurrency.duration_seconds must be positive")
	}
	if c.Concurrency.MaxWorkers <= 0 {
		return fmt.Errorf("concurrency.max_workers must be positive")
	}
	if c.Concurrency.RateLimit < 0 {
		return fmt.Errorf("concurrency.rate_limit must not be negative")
	}
	if c.Timeouts.ConnectSeconds <= 0 || c.Timeouts.StreamingReadSeconds <= 0 ||
		c.Timeouts.NonStreamingReadSeconds <= 0 || c.Timeouts.WriteSeconds <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.Output.ReportFile == "" {
		return fmt.Errorf("output.report_file is required")
	}

	return nil
}

// Modes returns the enabled modes, streaming first
func (c *Config) Modes() []types.Mode {
	var modes []types.Mode
	if c.Test.Streaming {
		modes = append(modes, types.ModeStreaming)
	}
	if c.Test.NonStreaming {
		modes = append(modes, types.ModeNonStreaming)
	}
	return modes
}

// ReadTimeout returns the per-read timeout for mode
func (c *Config) ReadTimeout(mode types.Mode) time.Duration {
	if mode == types.ModeStreaming {
		return seconds(c.Timeouts.StreamingReadSeconds)
	}
	return seconds(c.Timeouts.NonStreamingReadSeconds)
}

// ConnectTimeout returns the connection establishment timeout
func (c *Config) ConnectTimeout() time.Duration {
	return seconds(c.Timeouts.ConnectSeconds)
}

// WriteTimeout returns the request write timeout
func (c *Config) WriteTimeout() time.Duration {
	return seconds(c.Timeouts.WriteSeconds)
}

// IdleConnTimeout returns how long pooled connections may stay idle
func (c *Config) IdleConnTimeout() time.Duration {
	return seconds(c.Timeouts.IdleConnSeconds)
}

// Duration returns the duration of a duration-based level
func (c *Config) Duration() time.Duration {
	return seconds(c.Concurrency.DurationSeconds)
}

// Levels returns the concurrency levels of the sweep in order
func (c *Config) Levels() []int {
	var levels []int
	for n := c.Concurrency.Start; n <= c.Concurrency.End; n += c.Concurrency.Step {
		levels = append(levels, n)
	}
	return levels
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
