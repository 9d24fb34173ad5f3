package statusreport

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hejijunhao/statusreport/internal/config"
)

type options struct {
	cfg        config.Config
	providers  map[string]Provider
	outputs    []Output
	logger     *slog.Logger
	registerer prometheus.Registerer
}

// Option configures a Client.
type Option func(*options)

// WithStorePath keeps feedback and dataset snapshots in a SQLite file.
// Default: in memory, lost on Close.
func WithStorePath(path string) Option {
	return func(o *options) { o.cfg.Store.Path = path }
}

// WithAnthropic selects Anthropic with the given key. An empty model keeps
// the default.
func WithAnthropic(apiKey, model string) Option {
	return func(o *options) {
		o.cfg.AI.Provider = "anthropic"
		o.cfg.AI.AnthropicAPIKey = apiKey
		if model != "" {
			o.cfg.AI.AnthropicModel = model
		}
	}
}

// WithOpenAI selects OpenAI with the given key. An empty model keeps the
// default.
func WithOpenAI(apiKey, model string) Option {
	return func(o *options) {
		o.cfg.AI.Provider = "openai"
		o.cfg.AI.OpenAIAPIKey = apiKey
		if model != "" {
			o.cfg.AI.OpenAIModel = model
		}
	}
}

// WithProviderBaseURL points the selected provider at another endpoint.
func WithProviderBaseURL(url string) Option {
	return func(o *options) { o.cfg.AI.BaseURL = url }
}

// WithProvider registers a custom provider under name and selects it.
func WithProvider(name string, p Provider) Option {
	return func(o *options) {
		o.providers[name] = p
		o.cfg.AI.Provider = name
	}
}

// WithVendor forces the adapter plan: "auto", "statuspage" or "generic".
func WithVendor(vendor string) Option {
	return func(o *options) { o.cfg.Fetch.Vendor = vendor }
}

// WithFetchRate caps status page requests per second across a run. Default: 1.
func WithFetchRate(perSecond float64) Option {
	return func(o *options) { o.cfg.Fetch.RatePerSecond = perSecond }
}

// WithProviderRate caps AI calls per second across a run. Default: 1.
func WithProviderRate(perSecond float64, burst int) Option {
	return func(o *options) {
		o.cfg.AI.RatePerSecond = perSecond
		o.cfg.AI.Burst = burst
	}
}

// WithWorkers sets the number of concurrent classification calls. Default: 4.
func WithWorkers(n int) Option {
	return func(o *options) { o.cfg.AI.Workers = n }
}

// WithDedupWindow sets how far apart two same-titled records may start and
// still be merged. Default: 1h.
func WithDedupWindow(d time.Duration) Option {
	return func(o *options) { o.cfg.Engine.DedupWindow = d }
}

// WithTrendThreshold sets the relative change needed to call a trend
// improving or worsening. Default: 0.15.
func WithTrendThreshold(t float64) Option {
	return func(o *options) { o.cfg.Engine.TrendThreshold = t }
}

// WithRunTimeout bounds a whole report run. Default: 10m.
func WithRunTimeout(d time.Duration) Option {
	return func(o *options) { o.cfg.RunLimit = d }
}

// WithOutput adds a sink that receives every report.
func WithOutput(out Output) Option {
	return func(o *options) { o.outputs = append(o.outputs, out) }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithRegisterer records run metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// defaultOptions starts from the same defaults and STATUSREPORT_*
// environment as the command line tool.
func defaultOptions() options {
	return options{
		cfg:       config.FromViper(config.NewViper()),
		providers: make(map[string]Provider),
		logger:    slog.Default(),
	}
}
