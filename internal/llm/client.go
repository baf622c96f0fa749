// Package llm answers questions about a transcript through an
// OpenAI-compatible chat completion endpoint.
package llm

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultTimeout bounds a single question so the webhook reply stays
// inside the platform's response budget.
const DefaultTimeout = 4 * time.Second

// systemPrompt is the assistant persona used for transcript Q&A.
const systemPrompt = "你是一个视频内容助手，根据视频文字内容回答用户问题。"

// Client asks a chat model questions grounded in a transcript.
type Client struct {
	cli     *openai.Client
	model   string
	timeout time.Duration
}

// Opts holds parameters for creating a Client.
type Opts struct {
	APIKey  string
	BaseURL string        // defaults to the OpenAI API
	Model   string        // e.g. "moonshot-v1-32k"
	Timeout time.Duration // defaults to DefaultTimeout
}

// New creates a Client.
func New(opts Opts) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("llm: api key is required")
	}
	if opts.Model == "" {
		return nil, fmt.Errorf("llm: model is required")
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		cli:     openai.NewClientWithConfig(cfg),
		model:   opts.Model,
		timeout: timeout,
	}, nil
}

// Ask answers a question using contextText as grounding. The call is
// bounded by the client timeout; on expiry the context error is returned
// and the caller replies with a failure message instead of hanging.
func (c *Client) Ask(ctx context.Context, question, contextText string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.cli.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("基于以下视频内容，回答问题：\n\n%s\n\n问题：%s", contextText, question)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("llm: ask: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm: ask: empty response")
	}
	return resp.Choices[0].Message.Content, nil
}
