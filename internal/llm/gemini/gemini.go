// Package gemini is a Gemini API client for embeddings, generation and
// query classification.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"legalrag/internal/domain"
	"legalrag/internal/llm"
)

// Config configures the Gemini client.
type Config struct {
	BaseURL    string
	APIKey     string
	EmbedModel string
	ChatModel  string
	Timeout    time.Duration
	MaxRetries int
	// BatchSize caps texts per batchEmbedContents call.
	BatchSize int
}

// Client talks to the Gemini REST API.
type Client struct {
	http *resty.Client
	cfg  Config
}

// New creates a client. The API key is required.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: missing API key")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "text-embedding-004"
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gemini-2.5-flash"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > 100 {
		cfg.BatchSize = 100
	}

	h := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.MaxRetries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetHeader("x-goog-api-key", cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && (r.StatusCode() == 429 || r.StatusCode() >= 500)
		})
	return &Client{http: h, cfg: cfg}, nil
}

// WithChatModel returns a client sharing the connection but generating with model.
func (c *Client) WithChatModel(model string) *Client {
	cfg := c.cfg
	cfg.ChatModel = model
	return &Client{http: c.http, cfg: cfg}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type embedRequest struct {
	Model    string  `json:"model"`
	Content  content `json:"content"`
	TaskType string  `json:"taskType"`
}

type batchEmbedRequest struct {
	Requests []embedRequest `json:"requests"`
}

type batchEmbedResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

type generationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

type generateRequest struct {
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	Contents          []content         `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Name identifies the embedding model.
func (c *Client) Name() string { return "gemini:" + c.cfg.EmbedModel }

func taskType(mode domain.EmbedMode) string {
	if mode == domain.ModeQuery {
		return "RETRIEVAL_QUERY"
	}
	return "RETRIEVAL_DOCUMENT"
}

// Embed embeds texts with the retrieval task type matching mode.
func (c *Client) Embed(ctx context.Context, texts []string, mode domain.EmbedMode) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.cfg.BatchSize {
		end := min(start+c.cfg.BatchSize, len(texts))
		vecs, err := c.embedBatch(ctx, texts[start:end], mode)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string, mode domain.EmbedMode) ([][]float32, error) {
	model := "models/" + c.cfg.EmbedModel
	req := batchEmbedRequest{Requests: make([]embedRequest, len(texts))}
	for i, t := range texts {
		req.Requests[i] = embedRequest{
			Model:    model,
			Content:  content{Parts: []part{{Text: t}}},
			TaskType: taskType(mode),
		}
	}

	var result batchEmbedResponse
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		SetError(&apiErr).
		ForceContentType("application/json").
		Post("/" + model + ":batchEmbedContents")
	if err := checkResponse("embed", resp, err, &apiErr); err != nil {
		return nil, err
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini embed: got %d embeddings for %d texts", len(result.Embeddings), len(texts))
	}
	out := make([][]float32, len(texts))
	for i, e := range result.Embeddings {
		out[i] = e.Values
	}
	return out, nil
}

// Generate answers question from context under the system prompt.
func (c *Client) Generate(ctx context.Context, systemPrompt, context, question string) (string, error) {
	req := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: llm.UserMessage(context, question)}}}},
	}
	if systemPrompt != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: systemPrompt}}}
	}
	return c.generate(ctx, req)
}

// Classify sends the routing prompt and asks for a JSON reply.
func (c *Client) Classify(ctx context.Context, prompt string) (string, error) {
	zero := 0.0
	return c.generate(ctx, generateRequest{
		Contents:         []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: &generationConfig{Temperature: &zero, ResponseMimeType: "application/json"},
	})
}

func (c *Client) generate(ctx context.Context, req generateRequest) (string, error) {
	var result generateResponse
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		SetError(&apiErr).
		ForceContentType("application/json").
		Post("/models/" + c.cfg.ChatModel + ":generateContent")
	if err := checkResponse("generate", resp, err, &apiErr); err != nil {
		return "", err
	}
	if len(result.Candidates) == 0 {
		if r := result.PromptFeedback.BlockReason; r != "" {
			return "", fmt.Errorf("gemini generate: prompt blocked: %s", r)
		}
		return "", errors.New("gemini generate: no candidates")
	}
	var text string
	for _, p := range result.Candidates[0].Content.Parts {
		text += p.Text
	}
	if text == "" {
		return "", fmt.Errorf("gemini generate: empty answer (finish reason %s)", result.Candidates[0].FinishReason)
	}
	return text, nil
}

func checkResponse(op string, resp *resty.Response, err error, apiErr *apiError) error {
	if err != nil {
		return fmt.Errorf("gemini %s: %w", op, err)
	}
	if resp.IsError() {
		if apiErr.Error.Message != "" {
			return fmt.Errorf("gemini %s: %s: %s", op, resp.Status(), apiErr.Error.Message)
		}
		return fmt.Errorf("gemini %s: %s", op, resp.Status())
	}
	return nil
}
