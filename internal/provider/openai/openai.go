// Package openai implements provider.Provider over the OpenAI Chat Completions API.
package openai

import (
	"context"
	"errors"
	"strings"

	"github.com/hejijunhao/statusreport/internal/connector/httpclient"
	"github.com/hejijunhao/statusreport/internal/errs"
	"github.com/hejijunhao/statusreport/internal/provider"
)

const (
	Name           = "openai"
	DefaultModel   = "gpt-4o"
	defaultBaseURL = "https://api.openai.com"
)

func init() {
	provider.Register(Name, func(cfg provider.Config) provider.Provider { return New(cfg) })
}

// Client calls POST /v1/chat/completions.
type Client struct {
	http  *httpclient.Client
	model string
}

// New creates a Client.
func New(cfg provider.Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	opts := []httpclient.Option{
		httpclient.WithBearer(cfg.APIKey),
		httpclient.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, httpclient.WithTimeout(cfg.Timeout))
	}
	if cfg.Backoff > 0 {
		opts = append(opts, httpclient.WithBackoff(cfg.Backoff))
	}
	return &Client{http: httpclient.New(strings.TrimRight(base, "/"), opts...), model: model}
}

func (c *Client) Name() string { return Name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Complete sends a system and a user message and returns the first choice.
func (c *Client) Complete(ctx context.Context, req provider.Request) (string, error) {
	msgs := make([]chatMessage, 0, 2)
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: req.System})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: req.Prompt})

	var resp chatResponse
	err := c.http.PostJSON(ctx, "/v1/chat/completions", chatRequest{
		Model:       c.model,
		Messages:    msgs,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}, &resp)
	if err != nil {
		return "", provider.Wrap(Name, err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errs.NewProviderError(Name, errs.InvalidResponse, errors.New("no choices in response"))
	}
	return resp.Choices[0].Message.Content, nil
}
