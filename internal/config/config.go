package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/hejijunhao/statusreport/internal/engine/compactor"
	"github.com/hejijunhao/statusreport/internal/errs"
)

// EnvPrefix is prepended to every environment variable (STATUSREPORT_AI_PROVIDER).
const EnvPrefix = "STATUSREPORT"

// Config holds all statusreport configuration.
type Config struct {
	LogLevel string
	LogJSON  bool

	Fetch    FetchConfig
	AI       AIConfig
	Engine   EngineConfig
	Store    StoreConfig
	Output   OutputConfig
	RunLimit time.Duration // whole-run timeout
}

// FetchConfig holds source adapter settings.
type FetchConfig struct {
	Vendor        string // auto, statuspage, generic
	Timeout       time.Duration
	RatePerSecond float64
	MaxRetries    int
	MaxPages      int
	UserAgent     string
}

// AIConfig holds provider settings for taxonomy generation and classification.
type AIConfig struct {
	Provider        string // anthropic, openai
	AnthropicAPIKey string
	AnthropicModel  string
	OpenAIAPIKey    string
	OpenAIModel     string
	BaseURL         string // override for the selected provider
	CallTimeout     time.Duration
	RatePerSecond   float64
	Burst           int
	Workers         int
	MaxTokens       int // taxonomy response cap
	TokenBudget     int // taxonomy prompt budget
	ClassifyTokens  int // per-incident classification response cap
}

// EngineConfig holds normalization and analysis settings.
type EngineConfig struct {
	DedupWindow    time.Duration
	TrendThreshold float64
	Verbosity      string // minimal, standard, full
}

// StoreConfig selects the feedback/dataset store. Empty Path keeps state in memory.
type StoreConfig struct {
	Path string
}

// OutputConfig holds report sink settings.
type OutputConfig struct {
	Format       string // stdout, file, both
	Path         string // may contain {company}
	MaxSize      int64  // file rotation threshold in bytes, 0 disables
	Keep         int    // rotated generations kept
	Pretty       bool
	WebhookURL   string // optional run-summary endpoint
	WebhookToken string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)
	v.SetDefault("run.timeout", 10*time.Minute)

	v.SetDefault("fetch.vendor", "auto")
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.rate_per_second", 1.0)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.max_pages", 50)
	v.SetDefault("fetch.user_agent", "statusreport/1.0")

	v.SetDefault("ai.provider", "anthropic")
	v.SetDefault("ai.anthropic_model", "claude-sonnet-4-20250514")
	v.SetDefault("ai.openai_model", "gpt-4o")
	v.SetDefault("ai.call_timeout", 60*time.Second)
	v.SetDefault("ai.rate_per_second", 1.0)
	v.SetDefault("ai.burst", 1)
	v.SetDefault("ai.workers", 4)
	v.SetDefault("ai.max_tokens", 4096)
	v.SetDefault("ai.token_budget", 6000)
	v.SetDefault("ai.classify_max_tokens", 1024)

	v.SetDefault("engine.dedup_window", time.Hour)
	v.SetDefault("engine.trend_threshold", 0.15)
	v.SetDefault("engine.verbosity", "standard")

	v.SetDefault("store.path", "")

	v.SetDefault("output.format", "stdout")
	v.SetDefault("output.path", "")
	v.SetDefault("output.pretty", false)
	v.SetDefault("output.max_size", 0)
	v.SetDefault("output.keep", 5)
	v.SetDefault("output.webhook_url", "")
	v.SetDefault("output.webhook_token", "")
}

// NewViper returns a viper instance with defaults and env binding applied.
// Callers may bind flags onto it before calling FromViper.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Provider keys are also read under their conventional names.
	_ = v.BindEnv("ai.anthropic_api_key", EnvPrefix+"_AI_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("ai.openai_api_key", EnvPrefix+"_AI_OPENAI_API_KEY", "OPENAI_API_KEY")
	return v
}

// Load reads configuration from defaults, an optional YAML file, and the
// environment. An empty path skips the file.
func Load(path string) (Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errs.Configf("read config %s: %v", path, err)
		}
	}
	return FromViper(v), nil
}

// FromViper materializes a Config from a prepared viper instance.
func FromViper(v *viper.Viper) Config {
	return Config{
		LogLevel: v.GetString("log.level"),
		LogJSON:  v.GetBool("log.json"),
		RunLimit: v.GetDuration("run.timeout"),
		Fetch: FetchConfig{
			Vendor:        v.GetString("fetch.vendor"),
			Timeout:       v.GetDuration("fetch.timeout"),
			RatePerSecond: v.GetFloat64("fetch.rate_per_second"),
			MaxRetries:    v.GetInt("fetch.max_retries"),
			MaxPages:      v.GetInt("fetch.max_pages"),
			UserAgent:     v.GetString("fetch.user_agent"),
		},
		AI: AIConfig{
			Provider:        v.GetString("ai.provider"),
			AnthropicAPIKey: v.GetString("ai.anthropic_api_key"),
			AnthropicModel:  v.GetString("ai.anthropic_model"),
			OpenAIAPIKey:    v.GetString("ai.openai_api_key"),
			OpenAIModel:     v.GetString("ai.openai_model"),
			BaseURL:         v.GetString("ai.base_url"),
			CallTimeout:     v.GetDuration("ai.call_timeout"),
			RatePerSecond:   v.GetFloat64("ai.rate_per_second"),
			Burst:           v.GetInt("ai.burst"),
			Workers:         v.GetInt("ai.workers"),
			MaxTokens:       v.GetInt("ai.max_tokens"),
			TokenBudget:     v.GetInt("ai.token_budget"),
			ClassifyTokens:  v.GetInt("ai.classify_max_tokens"),
		},
		Engine: EngineConfig{
			DedupWindow:    v.GetDuration("engine.dedup_window"),
			TrendThreshold: v.GetFloat64("engine.trend_threshold"),
			Verbosity:      v.GetString("engine.verbosity"),
		},
		Store: StoreConfig{
			Path: v.GetString("store.path"),
		},
		Output: OutputConfig{
			Format:       v.GetString("output.format"),
			Path:         v.GetString("output.path"),
			MaxSize:      v.GetInt64("output.max_size"),
			Keep:         v.GetInt("output.keep"),
			Pretty:       v.GetBool("output.pretty"),
			WebhookURL:   v.GetString("output.webhook_url"),
			WebhookToken: v.GetString("output.webhook_token"),
		},
	}
}

// APIKey returns the key configured for the named provider.
func (c AIConfig) APIKey(provider string) string {
	switch provider {
	case "anthropic":
		return c.AnthropicAPIKey
	case "openai":
		return c.OpenAIAPIKey
	default:
		return ""
	}
}

// Model returns the model configured for the named provider.
func (c AIConfig) Model(provider string) string {
	switch provider {
	case "anthropic":
		return c.AnthropicModel
	case "openai":
		return c.OpenAIModel
	default:
		return ""
	}
}

// Validate checks settings that would otherwise fail midway through a run.
func (c Config) Validate() error {
	var problems []error
	switch c.Fetch.Vendor {
	case "auto", "statuspage", "generic":
	default:
		problems = append(problems, fmt.Errorf("fetch.vendor must be auto, statuspage or generic, got %q", c.Fetch.Vendor))
	}
	if c.Fetch.RatePerSecond <= 0 {
		problems = append(problems, errors.New("fetch.rate_per_second must be positive"))
	}
	if c.Fetch.MaxRetries < 0 {
		problems = append(problems, errors.New("fetch.max_retries must not be negative"))
	}
	if c.Fetch.MaxPages <= 0 {
		problems = append(problems, errors.New("fetch.max_pages must be positive"))
	}
	switch c.AI.Provider {
	case "anthropic", "openai":
	default:
		problems = append(problems, fmt.Errorf("ai.provider must be anthropic or openai, got %q", c.AI.Provider))
	}
	if c.AI.Workers <= 0 {
		problems = append(problems, errors.New("ai.workers must be positive"))
	}
	if c.AI.RatePerSecond <= 0 {
		problems = append(problems, errors.New("ai.rate_per_second must be positive"))
	}
	if c.AI.CallTimeout <= 0 {
		problems = append(problems, errors.New("ai.call_timeout must be positive"))
	}
	if c.AI.MaxTokens < 0 || c.AI.TokenBudget < 0 || c.AI.ClassifyTokens < 0 {
		problems = append(problems, errors.New("ai.max_tokens, ai.token_budget and ai.classify_max_tokens must not be negative"))
	}
	if c.Engine.DedupWindow < 0 {
		problems = append(problems, errors.New("engine.dedup_window must not be negative"))
	}
	if c.Engine.TrendThreshold <= 0 || c.Engine.TrendThreshold >= 1 {
		problems = append(problems, errors.New("engine.trend_threshold must be in (0, 1)"))
	}
	if _, err := compactor.ParseVerbosity(c.Engine.Verbosity); err != nil {
		problems = append(problems, fmt.Errorf("engine.verbosity: %w", err))
	}
	switch c.Output.Format {
	case "stdout", "none":
	case "file", "both":
		if c.Output.Path == "" {
			problems = append(problems, fmt.Errorf("output.path is required for output.format %q", c.Output.Format))
		}
	default:
		problems = append(problems, fmt.Errorf("output.format must be stdout, file, both or none, got %q", c.Output.Format))
	}
	if c.Output.MaxSize < 0 || c.Output.Keep < 0 {
		problems = append(problems, errors.New("output.max_size and output.keep must not be negative"))
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", errs.ErrConfig, errors.Join(problems...))
}

// Company is one status page to report on.
type Company struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Companies is the on-disk target plus peer list.
type Companies struct {
	Target Company   `yaml:"target"`
	Peers  []Company `yaml:"peers"`
}

// LoadCompanies reads a companies YAML file.
func LoadCompanies(path string) (Companies, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Companies{}, errs.Configf("read companies file: %v", err)
	}
	var c Companies
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Companies{}, errs.Configf("parse companies file %s: %v", path, err)
	}
	for i, p := range c.Peers {
		if p.Name == "" || p.URL == "" {
			return Companies{}, errs.Configf("companies file %s: peer %d needs name and url", path, i)
		}
	}
	return c, nil
}
