package types

// Message is one entry of a chat-style conversation
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Payload is the completion request sent to the target
type Payload struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

// ForMode returns a copy of the payload with Stream set for the given mode
func (p Payload) ForMode(mode Mode) Payload {
	p.Messages = append([]Message(nil), p.Messages...)
	p.Stream = mode == ModeStreaming
	return p
}
