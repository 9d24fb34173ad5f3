// Package anthropic implements provider.Provider over the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/hejijunhao/statusreport/internal/connector/httpclient"
	"github.com/hejijunhao/statusreport/internal/errs"
	"github.com/hejijunhao/statusreport/internal/provider"
)

const (
	Name           = "anthropic"
	DefaultModel   = "claude-sonnet-4-20250514"
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
)

func init() {
	provider.Register(Name, func(cfg provider.Config) provider.Provider { return New(cfg) })
}

// Client calls POST /v1/messages.
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
		httpclient.WithHeader("x-api-key", cfg.APIKey),
		httpclient.WithHeader("anthropic-version", apiVersion),
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

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Complete sends one user message and returns the concatenated text blocks.
func (c *Client) Complete(ctx context.Context, req provider.Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	body := messagesRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		System:      req.System,
		Messages:    []message{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
	}
	var resp messagesResponse
	if err := c.http.PostJSON(ctx, "/v1/messages", body, &resp); err != nil {
		return "", provider.Wrap(Name, err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", errs.NewProviderError(Name, errs.InvalidResponse, errors.New("no text content in response"))
	}
	return b.String(), nil
}
