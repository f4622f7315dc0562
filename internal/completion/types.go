package completion

// CompletionResponse is the subset of a non-streaming chat completion body
// that the benchmark reads. Every field is optional.
type CompletionResponse struct {
	Choices []CompletionChoice `json:"choices"`
	Usage   *CompletionUsage   `json:"usage"`
}

// CompletionChoice represents a choice in the response
type CompletionChoice struct {
	Message      CompletionMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

// CompletionMessage represents the generated message
type CompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionUsage represents token usage in the response
type CompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionTokens returns usage.completion_tokens, or 0 when the server
// did not report usage.
func (r *CompletionResponse) CompletionTokens() int {
	if r.Usage == nil || r.Usage.CompletionTokens < 0 {
		return 0
	}
	return r.Usage.CompletionTokens
}

// Content returns the first choice's message content, or ""
func (r *CompletionResponse) Content() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}
