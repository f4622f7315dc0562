// Package bedrock benchmarks models hosted on AWS Bedrock through the same
// measured request contract as the HTTP backend.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"inference-bench/internal/completion"
	"inference-bench/internal/stream"
	"inference-bench/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ServiceTier represents the Bedrock service tier
type ServiceTier string

const (
	ServiceTierDefault  ServiceTier = "default"
	ServiceTierPriority ServiceTier = "priority"
	ServiceTierFlex     ServiceTier = "flex"
)

// ClientConfig holds the configuration needed to create a Bedrock client
type ClientConfig struct {
	Region      string
	AccessKey   string
	SecretKey   string
	ModelID     string
	ServiceTier ServiceTier
	Transport   completion.TransportConfig
}

// runtimeAPI is the subset of the Bedrock runtime client used here
type runtimeAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
	InvokeModelWithResponseStream(ctx context.Context, params *bedrockruntime.InvokeModelWithResponseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error)
}

// Client wraps the AWS Bedrock Runtime client
type Client struct {
	api         runtimeAPI
	modelID     string
	family      Family
	serviceTier ServiceTier
	logger      *zap.Logger
}

// NewClient creates a new Bedrock client. Empty credentials fall back to
// the default credential chain (env, shared credentials, IAM role).
func NewClient(ctx context.Context, cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	family, ok := DetectFamily(cfg.ModelID)
	if !ok {
		return nil, fmt.Errorf("unsupported model: %s", cfg.ModelID)
	}

	transport, err := completion.NewTransport(cfg.Transport)
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{Transport: transport}

	var awsCfg aws.Config
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithHTTPClient(httpClient),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to load default AWS config: %w", err)
		}
	} else {
		awsCfg = aws.Config{
			Region:      cfg.Region,
			HTTPClient:  httpClient,
			Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		}
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	serviceTier := cfg.ServiceTier
	if serviceTier == "" {
		serviceTier = ServiceTierDefault
	}

	return &Client{
		api:         bedrockruntime.NewFromConfig(awsCfg),
		modelID:     cfg.ModelID,
		family:      family,
		serviceTier: serviceTier,
		logger:      logger,
	}, nil
}

// InvokeNonStreaming invokes the model without streaming
func (c *Client) InvokeNonStreaming(ctx context.Context, payload types.Payload) types.RequestResult {
	attempt := types.NewAttempt(types.ModeNonStreaming)

	body, err := buildRequestBody(c.family, payload)
	if err != nil {
		attempt.Fail(types.ErrorTypeRequest, fmt.Errorf("failed to prepare request: %w", err))
		return c.finish(attempt)
	}

	output, err := c.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(c.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	attempt.Finish()

	if err != nil {
		errType, status := categorizeError(err)
		attempt.StatusCode = status
		attempt.Fail(errType, err)
		return c.finish(attempt)
	}
	attempt.StatusCode = http.StatusOK

	var resp ModelResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		attempt.Fail(types.ErrorTypeResponseParse, fmt.Errorf("failed to parse response: %w", err))
		return c.finish(attempt)
	}
	attempt.Tokens = resp.OutputTokens()

	return c.finish(attempt)
}

// InvokeStreaming invokes the model with streaming
func (c *Client) InvokeStreaming(ctx context.Context, payload types.Payload) types.RequestResult {
	attempt := types.NewAttempt(types.ModeStreaming)

	body, err := buildRequestBody(c.family, payload)
	if err != nil {
		attempt.Fail(types.ErrorTypeRequest, fmt.Errorf("failed to prepare request: %w", err))
		return c.finish(attempt)
	}

	input := &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(c.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	}

	// Set service tier if specified
	if c.serviceTier != ServiceTierDefault {
		input.ServiceTier = brtypes.ServiceTierType(c.serviceTier)
	}

	output, err := c.api.InvokeModelWithResponseStream(ctx, input)
	if err != nil {
		errType, status := categorizeError(err)
		attempt.StatusCode = status
		attempt.Fail(errType, err)
		return c.finish(attempt)
	}
	attempt.StatusCode = http.StatusOK

	eventStream := output.GetStream()
	defer eventStream.Close()

	consumeEvents(eventStream.Events(), eventStream.Err, attempt)

	return c.finish(attempt)
}

func (c *Client) finish(attempt *types.Attempt) types.RequestResult {
	result := attempt.Result()
	if !result.Success {
		c.logger.Debug("bedrock request unsuccessful",
			zap.String("model", c.modelID),
			zap.String("mode", string(result.Mode)),
			zap.String("error_type", result.ErrorType),
			zap.String("error", result.Error),
			zap.Int("status", result.StatusCode),
		)
	}
	return result
}

// consumeEvents drains the event channel, applying the same first-token and
// approximate token rules as the HTTP backend
func consumeEvents(events <-chan brtypes.ResponseStream, streamErr func() error, attempt *types.Attempt) {
	for event := range events {
		chunk, ok := event.(*brtypes.ResponseStreamMemberChunk)
		if !ok {
			continue
		}

		var parsed StreamChunk
		if err := json.Unmarshal(chunk.Value.Bytes, &parsed); err != nil {
			continue
		}

		text := parsed.Text()
		if stream.HasContent(text) {
			attempt.MarkFirstToken()
			attempt.Tokens += stream.ApproxTokens(text)
		}
	}
	attempt.Finish()

	if err := streamErr(); err != nil {
		errType, _ := categorizeError(err)
		if errType != types.ErrorTypeTimeout {
			errType = types.ErrorTypeStream
		}
		attempt.Fail(errType, fmt.Errorf("stream error: %w", err))
	}
}

// buildRequestBody renders the payload in the model family's body format
func buildRequestBody(family Family, payload types.Payload) ([]byte, error) {
	var system []string
	var messages []ClaudeMessage
	for _, m := range payload.Messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		messages = append(messages, ClaudeMessage{Role: m.Role, Content: m.Content})
	}
	if len(messages) == 0 {
		return nil, errors.New("payload has no user messages")
	}

	switch family {
	case FamilyClaude:
		return json.Marshal(ClaudeRequest{
			AnthropicVersion: "bedrock-2023-05-31",
			MaxTokens:        payload.MaxTokens,
			System:           strings.Join(system, "\n"),
			Messages:         messages,
			Temperature:      payload.Temperature,
		})
	case FamilyOpenAI:
		all := make([]ClaudeMessage, 0, len(payload.Messages))
		for _, m := range payload.Messages {
			all = append(all, ClaudeMessage{Role: m.Role, Content: m.Content})
		}
		return json.Marshal(ChatRequest{
			Messages:    all,
			MaxTokens:   payload.MaxTokens,
			Temperature: payload.Temperature,
		})
	case FamilyMistral:
		return json.Marshal(PromptRequest{
			Prompt:      "<s>[INST] " + flatten(system, messages) + " [/INST]",
			MaxTokens:   payload.MaxTokens,
			Temperature: payload.Temperature,
		})
	case FamilyLlama:
		return json.Marshal(LlamaRequest{
			Prompt:      flatten(system, messages),
			MaxGenLen:   payload.MaxTokens,
			Temperature: payload.Temperature,
		})
	default:
		return nil, fmt.Errorf("unsupported model family: %s", family)
	}
}

// flatten joins system and message contents into a single prompt
func flatten(system []string, messages []ClaudeMessage) string {
	parts := append([]string(nil), system...)
	for _, m := range messages {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n\n")
}

// categorizeError maps an AWS error onto an error category and, when the
// service answered, its HTTP status
func categorizeError(err error) (string, int) {
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() > 0 {
		return types.ErrorTypeHTTP, respErr.HTTPStatusCode()
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return types.ErrorTypeTimeout, 0
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "throttling"), strings.Contains(errStr, "too many"), strings.Contains(errStr, "service quota"):
		return types.ErrorTypeHTTP, http.StatusTooManyRequests
	case strings.Contains(errStr, "timeout"):
		return types.ErrorTypeTimeout, 0
	case strings.Contains(errStr, "connection"), strings.Contains(errStr, "dial"), strings.Contains(errStr, "eof"):
		return types.ErrorTypeConnection, 0
	default:
		return types.ErrorTypeUnknown, 0
	}
}
