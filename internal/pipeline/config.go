package pipeline

import (
	"time"

	"github.com/hejijunhao/statusreport/internal/config"
	"github.com/hejijunhao/statusreport/internal/connector"
	"github.com/hejijunhao/statusreport/internal/engine"
	"github.com/hejijunhao/statusreport/internal/engine/classifier"
	"github.com/hejijunhao/statusreport/internal/engine/normalize"
	"github.com/hejijunhao/statusreport/internal/provider"
)

// FromConfig maps loaded settings onto a pipeline Config. Both known
// providers are configured. When the selected provider has no API key the
// default becomes heuristic-only; naming it on a request is still an error.
func FromConfig(c config.Config) Config {
	providers := make(map[string]provider.Config, 2)
	for _, name := range []string{"anthropic", "openai"} {
		pc := provider.Config{
			APIKey:     c.AI.APIKey(name),
			Model:      c.AI.Model(name),
			Timeout:    c.AI.CallTimeout,
			MaxRetries: 2,
			Backoff:    time.Second,
		}
		if name == c.AI.Provider {
			pc.BaseURL = c.AI.BaseURL
		}
		providers[name] = pc
	}
	def := c.AI.Provider
	if providers[def].APIKey == "" {
		def = ""
	}
	return Config{
		Fetch: connector.Options{
			Timeout:    c.Fetch.Timeout,
			MaxRetries: c.Fetch.MaxRetries,
			MaxPages:   c.Fetch.MaxPages,
			UserAgent:  c.Fetch.UserAgent,
		},
		Vendor:    c.Fetch.Vendor,
		FetchRate: c.Fetch.RatePerSecond,
		Engine: engine.Config{
			Normalize: normalize.Config{DedupWindow: c.Engine.DedupWindow},
			Classifier: classifier.Config{
				Workers:     c.AI.Workers,
				CallTimeout: c.AI.CallTimeout,
				MaxTokens:   c.AI.ClassifyTokens,
			},
			TrendThreshold: c.Engine.TrendThreshold,
			TokenBudget:    c.AI.TokenBudget,
			MaxTokens:      c.AI.MaxTokens,
		},
		RunTimeout:      c.RunLimit,
		Providers:       providers,
		DefaultProvider: def,
		ProviderRate:    c.AI.RatePerSecond,
		ProviderBurst:   c.AI.Burst,
	}
}
