// Package assistant asks an OpenAI chat model to write text.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultModel is used when no model is configured
const DefaultModel = openai.GPT3Dot5Turbo

// Timeout bounds a single completion request
const Timeout = 30 * time.Second

// ErrEmptyCompletion is returned when the model answers with no text
var ErrEmptyCompletion = errors.New("assistant: empty completion")

// Client wraps the OpenAI api
type Client struct {
	c     *openai.Client
	model string
}

// New returns a Client. A non empty baseURL replaces the OpenAI endpoint.
func New(key string, model string, baseURL string) *Client {
	cfg := openai.DefaultConfig(key)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	if model == "" {
		model = DefaultModel
	}

	return &Client{c: openai.NewClientWithConfig(cfg), model: model}
}

// Complete sends a system and user prompt and returns the trimmed answer
func (c *Client) Complete(ctx context.Context, system string, prompt string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	resp, err := c.c.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("assistant: completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", ErrEmptyCompletion
	}

	return out, nil
}
