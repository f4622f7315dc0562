package bedrock

import "strings"

// Family groups models that share a request and response body format
type Family string

const (
	FamilyClaude  Family = "claude"
	FamilyOpenAI  Family = "openai"
	FamilyMistral Family = "mistral"
	FamilyLlama   Family = "llama"
)

// DetectFamily derives the body format from a Bedrock model ID
func DetectFamily(modelID string) (Family, bool) {
	id := strings.ToLower(modelID)
	switch {
	case strings.Contains(id, "claude"), strings.Contains(id, "anthropic"):
		return FamilyClaude, true
	case strings.Contains(id, "deepseek"), strings.Contains(id, "qwen"), strings.Contains(id, "openai"):
		return FamilyOpenAI, true
	case strings.Contains(id, "mistral"), strings.Contains(id, "mixtral"):
		return FamilyMistral, true
	case strings.Contains(id, "llama"), strings.Contains(id, "meta"):
		return FamilyLlama, true
	default:
		return "", false
	}
}

// ClaudeRequest represents a request to Claude models
type ClaudeRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	System           string          `json:"system,omitempty"`
	Messages         []ClaudeMessage `json:"messages"`
	Temperature      float64         `json:"temperature,omitempty"`
}

// ClaudeMessage represents a message in Claude request
type ClaudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the OpenAI-compatible body used by DeepSeek, Qwen and
// OpenAI models on Bedrock
type ChatRequest struct {
	Messages    []ClaudeMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
}

// PromptRequest is the completion body used by Mistral models
type PromptRequest struct {
	Prompt      string  `json:"prompt"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// LlamaRequest represents a request to Llama models
type LlamaRequest struct {
	Prompt      string  `json:"prompt"`
	MaxGenLen   int     `json:"max_gen_len"`
	Temperature float64 `json:"temperature,omitempty"`
}

// InvocationMetrics is appended by Bedrock to some response bodies
type InvocationMetrics struct {
	InputTokenCount  int `json:"inputTokenCount"`
	OutputTokenCount int `json:"outputTokenCount"`
}

// ModelResponse covers the token accounting fields of every supported
// non-streaming response format
type ModelResponse struct {
	Usage *struct {
		CompletionTokens int `json:"completion_tokens"`
		OutputTokens     int `json:"output_tokens"`
	} `json:"usage"`
	GenerationTokenCount int                `json:"generation_token_count"`
	Metrics              *InvocationMetrics `json:"amazon-bedrock-invocationMetrics"`
}

// OutputTokens returns the provider-reported generated token count, or 0
func (r *ModelResponse) OutputTokens() int {
	switch {
	case r.Usage != nil && r.Usage.CompletionTokens > 0:
		return r.Usage.CompletionTokens
	case r.Usage != nil && r.Usage.OutputTokens > 0:
		return r.Usage.OutputTokens
	case r.GenerationTokenCount > 0:
		return r.GenerationTokenCount
	case r.Metrics != nil && r.Metrics.OutputTokenCount > 0:
		return r.Metrics.OutputTokenCount
	default:
		return 0
	}
}

// StreamChunk covers the text-bearing fields of every supported streaming
// chunk format
type StreamChunk struct {
	// Claude
	Type  string `json:"type"`
	Delta *struct {
		Text string `json:"text"`
	} `json:"delta"`

	// OpenAI-compatible
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`

	// Mistral
	Outputs []struct {
		Text string `json:"text"`
	} `json:"outputs"`

	// Llama
	Generation string `json:"generation"`
}

// Text returns the content fragment carried by the chunk, or ""
func (c *StreamChunk) Text() string {
	switch {
	case c.Type == "content_block_delta" && c.Delta != nil:
		return c.Delta.Text
	case len(c.Choices) > 0:
		return c.Choices[0].Delta.Content
	case len(c.Outputs) > 0:
		return c.Outputs[0].Text
	default:
		return c.Generation
	}
}
