package statusreport

import (
	"context"
	"fmt"
	"time"

	"github.com/hejijunhao/statusreport/internal/engine/taxonomy"
	"github.com/hejijunhao/statusreport/internal/errs"
	"github.com/hejijunhao/statusreport/internal/metrics"
	"github.com/hejijunhao/statusreport/internal/model"
	"github.com/hejijunhao/statusreport/internal/output"
	"github.com/hejijunhao/statusreport/internal/output/multi"
	"github.com/hejijunhao/statusreport/internal/pipeline"
	"github.com/hejijunhao/statusreport/internal/provider"
	"github.com/hejijunhao/statusreport/internal/store"

	_ "github.com/hejijunhao/statusreport/internal/connector/feed"
	_ "github.com/hejijunhao/statusreport/internal/connector/generic"
	_ "github.com/hejijunhao/statusreport/internal/connector/statushtml"
	_ "github.com/hejijunhao/statusreport/internal/connector/statuspage"
	_ "github.com/hejijunhao/statusreport/internal/provider/anthropic"
	_ "github.com/hejijunhao/statusreport/internal/provider/openai"
)

type (
	Report               = model.ReportBundle
	Incident             = model.Incident
	Category             = model.Category
	ClassificationResult = model.ClassificationResult
	Metrics              = model.Metrics
	PeerRow              = model.PeerRow
	Warning              = model.Warning
	Feedback             = model.TrainingFeedback

	// Provider is an AI text-completion backend.
	Provider        = provider.Provider
	ProviderRequest = provider.Request
	ProviderFunc    = provider.Func

	// Output receives every finished report.
	Output = output.Output
)

// Errors a caller may want to branch on.
var (
	ErrConfig      = errs.ErrConfig
	ErrNoIncidents = errs.ErrNoIncidents
	ErrValidation  = errs.ErrValidation
	ErrNotFound    = store.ErrNotFound
)

// Peer is a comparison company.
type Peer struct {
	Name string
	URL  string
}

// Request describes one report.
type Request struct {
	Company string
	URL     string
	Start   time.Time
	End     time.Time
	Peers   []Peer
	// SkipAI classifies with the keyword library only.
	SkipAI bool
	// Provider overrides the configured provider for this request.
	Provider string
}

// Client generates reports and manages classification feedback.
type Client struct {
	pipeline *pipeline.Pipeline
}

// New creates a Client. Settings start from STATUSREPORT_* environment
// variables and defaults; options override them.
func New(opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	custom := o.cfg.AI.Provider
	_, isCustom := o.providers[custom]
	if isCustom {
		// Validate only knows the built-in names.
		o.cfg.AI.Provider = "anthropic"
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("statusreport: %w", err)
	}
	cfg := pipeline.FromConfig(o.cfg)
	if isCustom {
		cfg.DefaultProvider = custom
	}

	var st store.Store = store.NewMemory()
	if o.cfg.Store.Path != "" {
		s, err := store.OpenSQLite(o.cfg.Store.Path)
		if err != nil {
			return nil, fmt.Errorf("statusreport: %w", err)
		}
		st = s
	}

	pipeOpts := []pipeline.Option{pipeline.WithLogger(o.logger)}
	for name, p := range o.providers {
		pipeOpts = append(pipeOpts, pipeline.WithProvider(name, p))
	}
	if o.registerer != nil {
		pipeOpts = append(pipeOpts, pipeline.WithMetrics(metrics.New(o.registerer)))
	}

	var out output.Output
	switch len(o.outputs) {
	case 0:
	case 1:
		out = o.outputs[0]
	default:
		out = multi.New(o.outputs...)
	}
	return &Client{pipeline: pipeline.New(cfg, st, out, pipeOpts...)}, nil
}

// Report fetches, classifies and analyzes one company. It fails only on
// invalid input (ErrConfig) or when the target has no incidents in range
// (ErrNoIncidents).
func (c *Client) Report(ctx context.Context, req Request) (*Report, error) {
	preq := pipeline.Request{
		Company:  req.Company,
		URL:      req.URL,
		Start:    req.Start,
		End:      req.End,
		SkipAI:   req.SkipAI,
		Provider: req.Provider,
	}
	for _, p := range req.Peers {
		preq.Peers = append(preq.Peers, pipeline.Peer{Name: p.Name, URL: p.URL})
	}
	return c.pipeline.GenerateReport(ctx, preq)
}

// AddFeedback records a human category correction. It applies from the
// next report for that company onwards.
func (c *Client) AddFeedback(ctx context.Context, f Feedback) error {
	return c.pipeline.Feedback().Record(ctx, f)
}

// RevokeFeedback withdraws every correction for the incident key.
func (c *Client) RevokeFeedback(ctx context.Context, company, incidentKey string) error {
	return c.pipeline.Feedback().Revoke(ctx, company, incidentKey)
}

// Feedback lists a company's corrections, revoked ones included.
func (c *Client) Feedback(ctx context.Context, company string) ([]Feedback, error) {
	return c.pipeline.Feedback().Load(ctx, company)
}

// Close flushes outputs and closes the store.
func (c *Client) Close() error {
	return c.pipeline.Close()
}

// DefaultCategories returns the built-in keyword library used when no AI
// provider is available.
func DefaultCategories() []Category {
	return taxonomy.Library()
}
