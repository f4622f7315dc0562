package benchmark

import (
	"fmt"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"inference-bench/internal/config"
	"inference-bench/internal/types"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// BuildPayload assembles the request payload for a run. A payload file, if
// configured, is used as is apart from defaults for unset fields; otherwise
// the configured or generated prompt becomes the single user message.
func BuildPayload(cfg *config.Config) (types.Payload, error) {
	if cfg.Test.PayloadFile != "" {
		return loadPayloadFile(cfg)
	}

	prompt := cfg.Test.Prompt
	if prompt == "" {
		prompt = GeneratePrompt(cfg.Test.PromptTemplate, cfg.Test.PromptSize)
	}

	var messages []types.Message
	if cfg.Test.SystemPrompt != "" {
		messages = append(messages, types.Message{Role: "system", Content: cfg.Test.SystemPrompt})
	}
	messages = append(messages, types.Message{Role: "user", Content: prompt})

	return types.Payload{
		Model:       cfg.Model.ID,
		Messages:    messages,
		MaxTokens:   cfg.Test.MaxTokens,
		Temperature: cfg.Test.Temperature,
	}, nil
}

func loadPayloadFile(cfg *config.Config) (types.Payload, error) {
	data, err := os.ReadFile(cfg.Test.PayloadFile)
	if err != nil {
		return types.Payload{}, fmt.Errorf("failed to read payload file: %w", err)
	}

	var payload types.Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return types.Payload{}, fmt.Errorf("failed to parse payload file: %w", err)
	}

	if len(payload.Messages) == 0 {
		return types.Payload{}, fmt.Errorf("payload file %s has no messages", cfg.Test.PayloadFile)
	}
	if payload.Model == "" {
		payload.Model = cfg.Model.ID
	}
	if payload.MaxTokens <= 0 {
		payload.MaxTokens = cfg.Test.MaxTokens
	}

	return payload, nil
}

// GeneratePrompt generates a prompt of approximately the specified size
func GeneratePrompt(template string, size int) string {
	if template == "" {
		template = "Please write a detailed explanation about artificial intelligence, " +
			"covering its history, applications, and future prospects. " +
			"Make your response approximately {size} characters long."
	}

	// Replace {size} placeholder if present
	prompt := strings.ReplaceAll(template, "{size}", fmt.Sprintf("%d", size))

	if len(prompt) >= size {
		return prompt[:size]
	}

	// Pad the prompt to reach the desired size
	padding := strings.Repeat("Please provide more detailed information. ", (size-len(prompt))/45+1)
	prompt = prompt + " " + padding

	if len(prompt) > size {
		prompt = prompt[:size]
	}

	return prompt
}
