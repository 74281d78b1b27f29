package nlu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	fallbackTimeout   = 10 * time.Second
	fallbackMaxTokens = 100

	// DefaultFallbackModel is used when no model name is configured.
	DefaultFallbackModel = "gpt-4o-mini"
)

// OpenAIFallback asks a chat-completion model to pick an intent when the
// local classifier is unsure.
type OpenAIFallback struct {
	client *openai.Client
	model  string
}

// NewOpenAIFallback creates a fallback backed by an OpenAI-compatible API.
// An empty baseURL uses the public OpenAI endpoint.
func NewOpenAIFallback(apiKey, model, baseURL string) *OpenAIFallback {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = DefaultFallbackModel
	}
	return &OpenAIFallback{client: openai.NewClientWithConfig(cfg), model: model}
}

// Name identifies the provider in predictions.
func (f *OpenAIFallback) Name() string { return "openai" }

type fallbackReply struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// Classify returns one of intents, or an error when the reply names none of them.
func (f *OpenAIFallback) Classify(ctx context.Context, sentence string, intents []string) (string, float64, error) {
	if len(intents) == 0 {
		return "", 0, errors.New("no candidate intents")
	}

	var b strings.Builder
	b.WriteString("You classify chatbot user messages into exactly one intent.\n")
	b.WriteString("Candidate intents (topic/intent):\n")
	for _, name := range intents {
		b.WriteString("- ")
		b.WriteString(name)
		b.WriteString("\n")
	}
	b.WriteString("\nReply with ONLY a JSON object: {\"intent\": \"<candidate>\", \"confidence\": <0..1>}.\n")

	ctx, cancel := context.WithTimeout(ctx, fallbackTimeout)
	defer cancel()
	resp, err := f.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       f.model,
		Temperature: 0,
		MaxTokens:   fallbackMaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: b.String()},
			{Role: openai.ChatMessageRoleUser, Content: sentence},
		},
	})
	if err != nil {
		return "", 0, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", 0, errors.New("no choices")
	}

	reply, err := parseFallbackReply(resp.Choices[0].Message.Content)
	if err != nil {
		return "", 0, err
	}
	for _, name := range intents {
		if name == reply.Intent {
			return reply.Intent, clamp01(reply.Confidence), nil
		}
	}
	return "", 0, fmt.Errorf("model answered unknown intent %q", reply.Intent)
}

// parseFallbackReply decodes the reply, tolerating prose around the JSON object.
func parseFallbackReply(raw string) (*fallbackReply, error) {
	var out fallbackReply
	err := json.Unmarshal([]byte(raw), &out)
	if err == nil {
		return &out, nil
	}
	first := strings.IndexByte(raw, '{')
	last := strings.LastIndexByte(raw, '}')
	if first < 0 || last <= first {
		return nil, fmt.Errorf("decode fallback reply: %w", err)
	}
	if err := json.Unmarshal([]byte(raw[first:last+1]), &out); err != nil {
		return nil, fmt.Errorf("decode fallback reply: %w", err)
	}
	return &out, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
