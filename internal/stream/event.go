package stream

import (
	"bytes"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	dataPrefix = []byte("data:")
	doneMarker = []byte("[DONE]")
)

// Kind classifies a decoded line
type Kind int

const (
	// KindSkip is a blank, comment, keep-alive or unparsable line
	KindSkip Kind = iota
	// KindChunk is a parsed completion chunk
	KindChunk
	// KindDone is the stream termination sentinel
	KindDone
)

// ChatChunk is the subset of an OpenAI-style streaming chunk that the
// benchmark reads. Every field is optional.
type ChatChunk struct {
	Choices []ChunkChoice `json:"choices"`
}

// ChunkChoice is one entry of ChatChunk.Choices
type ChunkChoice struct {
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChunkDelta carries the incremental content
type ChunkDelta struct {
	Content string `json:"content"`
}

// Content returns the first choice's delta content, or ""
func (c *ChatChunk) Content() string {
	if len(c.Choices) == 0 {
		return ""
	}
	return c.Choices[0].Delta.Content
}

// Finished reports whether the first choice carries a finish reason
func (c *ChatChunk) Finished() bool {
	if len(c.Choices) == 0 {
		return false
	}
	fr := c.Choices[0].FinishReason
	return fr != nil && *fr != ""
}

// Decode interprets one line of an event stream. Lines carrying the data
// marker are unwrapped first; bare lines are tried as JSON too, since some
// servers emit newline-delimited JSON without the marker.
func Decode(line []byte) (Kind, *ChatChunk) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return KindSkip, nil
	}

	if bytes.HasPrefix(line, dataPrefix) {
		line = bytes.TrimSpace(line[len(dataPrefix):])
	}

	if bytes.Equal(line, doneMarker) {
		return KindDone, nil
	}

	var chunk ChatChunk
	if err := json.Unmarshal(line, &chunk); err != nil {
		return KindSkip, nil
	}

	return KindChunk, &chunk
}

// HasContent reports whether a fragment carries anything besides whitespace
func HasContent(fragment string) bool {
	return strings.TrimSpace(fragment) != ""
}

// ApproxTokens estimates the token count of a content fragment by counting
// whitespace separated words. This is not a tokenizer and will differ from
// provider-reported usage; it is kept as a cheap, model-independent
// approximation.
func ApproxTokens(fragment string) int {
	if n := len(strings.Fields(fragment)); n > 0 {
		return n
	}
	if HasContent(fragment) {
		return 1
	}
	return 0
}
