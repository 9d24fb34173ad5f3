// Package provider abstracts the AI text-completion backends used for
// taxonomy generation and classification.
package provider

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Request is one prompt.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Provider turns a prompt into structured text (JSON in practice).
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// Func adapts a function to the Provider interface.
type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Name() string { return "func" }

func (f Func) Complete(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// Config holds backend connection settings.
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
}

// Constructor creates a Provider from its config.
type Constructor func(Config) Provider

var registry = map[string]Constructor{}

// Register adds a provider constructor under the given name.
func Register(name string, ctor Constructor) {
	registry[name] = ctor
}

// New creates the named provider.
func New(name string, cfg Config) (Provider, error) {
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown AI provider: %s", name)
	}
	return ctor(cfg), nil
}

// Names returns the registered provider names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
