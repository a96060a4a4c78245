// Package openai is an OpenAI-compatible client (OpenAI, Ollama, vLLM) for
// embeddings, generation and query classification.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"legalrag/internal/domain"
	"legalrag/internal/llm"
)

// Config configures the client.
type Config struct {
	BaseURL    string
	APIKey     string
	EmbedModel string
	ChatModel  string
	Timeout    time.Duration
	MaxRetries int
	BatchSize  int
	// QueryPrefix and DocumentPrefix are prepended to texts by embedding
	// mode, for models trained with asymmetric prefixes ("query: ", "passage: ").
	QueryPrefix    string
	DocumentPrefix string
}

// Client wraps go-openai with retries.
type Client struct {
	api *goopenai.Client
	cfg Config
}

// New creates a client. The API key is required unless BaseURL points at a
// local server that ignores it.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("openai: missing API key")
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = string(goopenai.SmallEmbedding3)
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = goopenai.GPT4oMini
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 64
	}

	conf := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		conf.BaseURL = cfg.BaseURL
	}
	conf.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &Client{api: goopenai.NewClientWithConfig(conf), cfg: cfg}, nil
}

// WithChatModel returns a client sharing the connection but generating with model.
func (c *Client) WithChatModel(model string) *Client {
	cfg := c.cfg
	cfg.ChatModel = model
	return &Client{api: c.api, cfg: cfg}
}

// Name identifies the embedding model.
func (c *Client) Name() string { return "openai:" + c.cfg.EmbedModel }

// Embed embeds texts in batches, preserving input order.
func (c *Client) Embed(ctx context.Context, texts []string, mode domain.EmbedMode) ([][]float32, error) {
	prefix := c.cfg.DocumentPrefix
	if mode == domain.ModeQuery {
		prefix = c.cfg.QueryPrefix
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.cfg.BatchSize {
		end := min(start+c.cfg.BatchSize, len(texts))
		input := make([]string, 0, end-start)
		for _, t := range texts[start:end] {
			input = append(input, prefix+t)
		}

		var resp goopenai.EmbeddingResponse
		err := c.withRetry(ctx, func() error {
			var err error
			resp, err = c.api.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
				Input: input,
				Model: goopenai.EmbeddingModel(c.cfg.EmbedModel),
			})
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("openai embed: %w", err)
		}
		if len(resp.Data) != len(input) {
			return nil, fmt.Errorf("openai embed: got %d embeddings for %d texts", len(resp.Data), len(input))
		}
		batch := make([][]float32, len(input))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(batch) {
				return nil, fmt.Errorf("openai embed: index %d out of range", d.Index)
			}
			batch[d.Index] = d.Embedding
		}
		out = append(out, batch...)
	}
	return out, nil
}

// Generate answers question from context under the system prompt.
func (c *Client) Generate(ctx context.Context, systemPrompt, context, question string) (string, error) {
	var msgs []goopenai.ChatCompletionMessage
	if systemPrompt != "" {
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt})
	}
	msgs = append(msgs, goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: llm.UserMessage(context, question)})
	return c.chat(ctx, goopenai.ChatCompletionRequest{Model: c.cfg.ChatModel, Messages: msgs})
}

// Classify sends the routing prompt and asks for a JSON object.
func (c *Client) Classify(ctx context.Context, prompt string) (string, error) {
	return c.chat(ctx, goopenai.ChatCompletionRequest{
		Model:          c.cfg.ChatModel,
		Messages:       []goopenai.ChatCompletionMessage{{Role: goopenai.ChatMessageRoleUser, Content: prompt}},
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{Type: goopenai.ChatCompletionResponseFormatTypeJSONObject},
	})
}

func (c *Client) chat(ctx context.Context, req goopenai.ChatCompletionRequest) (string, error) {
	var resp goopenai.ChatCompletionResponse
	err := c.withRetry(ctx, func() error {
		var err error
		resp, err = c.api.CreateChatCompletion(ctx, req)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New("openai chat: empty answer")
	}
	return resp.Choices[0].Message.Content, nil
}

// withRetry retries fn on rate limiting, server errors and transport
// failures, with exponential backoff.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err = fn(); err == nil || !retryable(err) || attempt == c.cfg.MaxRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay(attempt)):
		}
	}
	return err
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return true
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
