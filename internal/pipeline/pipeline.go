// Package pipeline runs one report: fetch the target and its peers,
// normalize, categorize, classify, analyze, persist and emit the bundle.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hejijunhao/statusreport/internal/connector"
	"github.com/hejijunhao/statusreport/internal/engine"
	"github.com/hejijunhao/statusreport/internal/engine/analysis"
	"github.com/hejijunhao/statusreport/internal/engine/feedback"
	"github.com/hejijunhao/statusreport/internal/errs"
	"github.com/hejijunhao/statusreport/internal/metrics"
	"github.com/hejijunhao/statusreport/internal/model"
	"github.com/hejijunhao/statusreport/internal/output"
	"github.com/hejijunhao/statusreport/internal/provider"
	"github.com/hejijunhao/statusreport/internal/store"
)

// Config holds everything a run needs that does not vary per request.
type Config struct {
	Fetch     connector.Options // Limiter is ignored; each run owns its own
	Vendor    string            // auto, statuspage, generic
	FetchRate float64           // requests per second across all companies

	Engine engine.Config

	RunTimeout time.Duration

	Providers       map[string]provider.Config
	DefaultProvider string
	ProviderRate    float64
	ProviderBurst   int
}

// Peer is one comparison company.
type Peer struct {
	Name string
	URL  string
}

// Request describes one report.
type Request struct {
	Company  string
	URL      string
	Start    time.Time
	End      time.Time
	Peers    []Peer
	SkipAI   bool   // heuristic taxonomy and classification only
	Provider string // overrides Config.DefaultProvider
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithProvider registers a ready-made provider under name. It takes
// precedence over the provider registry and Config.Providers.
func WithProvider(name string, p provider.Provider) Option {
	return func(pl *Pipeline) { pl.providers[name] = p }
}

// WithMetrics records run metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(pl *Pipeline) { pl.metrics = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(pl *Pipeline) { pl.logger = l }
}

// WithClock replaces time.Now for GeneratedAt and feedback timestamps.
func WithClock(now func() time.Time) Option {
	return func(pl *Pipeline) { pl.now = now }
}

// Pipeline connects adapters, engine, store and output.
type Pipeline struct {
	cfg       Config
	store     store.Store
	output    output.Output
	providers map[string]provider.Provider
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a Pipeline. A nil store keeps feedback and snapshots in
// memory; a nil output skips emission.
func New(cfg Config, st store.Store, out output.Output, opts ...Option) *Pipeline {
	if st == nil {
		st = store.NewMemory()
	}
	p := &Pipeline{
		cfg:       cfg,
		store:     st,
		output:    out,
		providers: make(map[string]provider.Provider),
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Feedback returns an incorporator over the pipeline's store.
func (p *Pipeline) Feedback() *feedback.Incorporator {
	return feedback.New(p.store, p.logger)
}

// companyData is one company's fetched and normalized history.
type companyData struct {
	name          string
	url           string
	incidents     []model.Incident
	warnings      []model.Warning
	lowConfidence bool
	err           error
}

// GenerateReport produces the report bundle for req. Only configuration
// errors and an empty target history fail the run; everything else is
// recorded on the bundle as warnings or degraded reasons.
func (p *Pipeline) GenerateReport(ctx context.Context, req Request) (*model.ReportBundle, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	base, err := p.resolveProvider(req)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := p.logger.With("run_id", runID, "company", req.Company)
	start, end := req.Start.UTC(), req.End.UTC()

	if p.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.RunTimeout)
		defer cancel()
	}

	fetchOpts := p.cfg.Fetch
	fetchOpts.Limiter = rate.NewLimiter(rate.Limit(orDefault(p.cfg.FetchRate, 1)), 1)

	var prov provider.Provider
	if base != nil {
		lim := provider.NewLimiter(orDefault(p.cfg.ProviderRate, 1), p.cfg.ProviderBurst)
		defer lim.Close()
		prov = provider.Limited(base, lim)
	}

	eng := engine.New(p.cfg.Engine, prov, p.metrics, logger)
	target, peers := p.fetchAll(ctx, eng, fetchOpts, req, start, end, logger)

	if target.err != nil {
		if errs.Fatal(target.err) {
			return nil, target.err
		}
		return nil, fmt.Errorf("%w: %s: %w", errs.ErrNoIncidents, req.Company, target.err)
	}
	if len(target.incidents) == 0 {
		return nil, fmt.Errorf("%w: %s returned no incidents in range", errs.ErrNoIncidents, req.Company)
	}

	bundle := &model.ReportBundle{
		RunID:         runID,
		Company:       req.Company,
		URL:           req.URL,
		Start:         start,
		End:           end,
		GeneratedAt:   p.now().UTC(),
		Incidents:     target.incidents,
		LowConfidence: target.lowConfidence,
		Warnings:      target.warnings,
	}
	if target.lowConfidence {
		bundle.Warnings = append(bundle.Warnings, model.Warning{
			Stage:   "fetch",
			Subject: req.URL,
			Message: errs.ErrLowConfidence.Error() + ": no incident structure found, results may be incomplete",
		})
	}

	entries, err := p.store.LoadFeedback(ctx, req.Company)
	if err != nil {
		logger.Warn("loading feedback failed", "err", err)
		bundle.Warnings = append(bundle.Warnings, model.Warning{Stage: "feedback", Subject: req.Company, Message: err.Error()})
	}
	prepared := feedback.Prepare(entries, target.incidents)

	outcome := eng.Process(ctx, engine.Input{
		Company:   req.Company,
		Incidents: target.incidents,
		Start:     start,
		End:       end,
		Feedback:  prepared,
	})
	bundle.Categories = outcome.Categories
	bundle.Results = outcome.Results
	bundle.Metrics = outcome.Metrics
	bundle.Degraded = outcome.Degraded
	bundle.DegradedReasons = outcome.Reasons

	if len(peers) > 0 {
		inputs := make([]analysis.PeerInput, len(peers))
		for i, pd := range peers {
			inputs[i] = analysis.PeerInput{Company: pd.name, Err: pd.err}
			if pd.err == nil && len(pd.incidents) == 0 {
				inputs[i].Err = errs.ErrNoIncidents
			}
			if inputs[i].Err != nil {
				bundle.Warnings = append(bundle.Warnings, model.Warning{Stage: "peers", Subject: pd.name, Message: inputs[i].Err.Error()})
				continue
			}
			bundle.Warnings = append(bundle.Warnings, pd.warnings...)
			inputs[i].Input = &analysis.Input{
				Incidents:  pd.incidents,
				Results:    engine.ClassifyPeer(pd.incidents, outcome.Categories),
				Categories: outcome.Categories,
				Start:      start,
				End:        end,
			}
		}
		bundle.Peers = eng.Analyzer().ComparePeers(outcome.Metrics, inputs)
	}

	prev, err := p.store.LoadPreviousDataset(ctx, req.Company)
	if err != nil {
		logger.Warn("loading previous dataset failed", "err", err)
		bundle.Warnings = append(bundle.Warnings, model.Warning{Stage: "store", Subject: req.Company, Message: err.Error()})
	}
	if prev != nil {
		bundle.NewIncidents = analysis.NewSince(prev, target.incidents)
	}
	err = p.store.SaveDataset(ctx, &model.CompanyDataset{
		Company:    req.Company,
		URL:        req.URL,
		RunID:      runID,
		FetchedAt:  bundle.GeneratedAt,
		Incidents:  target.incidents,
		Categories: outcome.Categories,
	})
	if err != nil {
		logger.Warn("saving dataset failed", "err", err)
		bundle.Warnings = append(bundle.Warnings, model.Warning{Stage: "store", Subject: req.Company, Message: err.Error()})
	}

	logger.Info("report generated",
		"incidents", len(bundle.Incidents),
		"categories", len(bundle.Categories),
		"peers", len(bundle.Peers),
		"degraded", bundle.Degraded,
		"warnings", len(bundle.Warnings),
	)

	if p.output != nil {
		if err := p.output.Write(ctx, bundle); err != nil {
			return bundle, fmt.Errorf("pipeline output: %w", err)
		}
	}
	return bundle, nil
}

// fetchAll fetches the target and every peer concurrently. Each company's
// failure stays in its own slot; a failing peer never cancels the others.
func (p *Pipeline) fetchAll(ctx context.Context, eng *engine.Engine, opts connector.Options, req Request, start, end time.Time, logger *slog.Logger) (companyData, []companyData) {
	resolver := connector.NewResolver(opts, p.cfg.Vendor, logger)
	all := make([]companyData, 1+len(req.Peers))
	all[0] = companyData{name: req.Company, url: req.URL}
	for i, peer := range req.Peers {
		all[i+1] = companyData{name: peer.Name, url: peer.URL}
	}

	var g errgroup.Group
	for i := range all {
		g.Go(func() error {
			p.fetchCompany(ctx, eng, resolver, &all[i], start, end, logger)
			return nil
		})
	}
	_ = g.Wait()
	return all[0], all[1:]
}

func (p *Pipeline) fetchCompany(ctx context.Context, eng *engine.Engine, resolver *connector.Resolver, cd *companyData, start, end time.Time, logger *slog.Logger) {
	began := time.Now()
	plan, err := resolver.Plan(ctx, cd.url)
	if err != nil {
		cd.err = err
		return
	}
	res, err := connector.FetchPlan(ctx, plan, connector.Request{URL: cd.url, Start: start, End: end}, logger)
	cd.warnings = append(cd.warnings, res.Warnings...)
	cd.lowConfidence = res.LowConfidence
	if err != nil {
		cd.err = err
		return
	}
	rep := eng.Normalize(res.Incidents, start, end)
	cd.incidents = rep.Incidents
	cd.warnings = append(cd.warnings, rep.Warnings...)
	p.metrics.ObserveFetch(cd.name, time.Since(began), rep.Incidents, rep.Dropped)
	logger.Info("company fetched",
		"target", cd.name,
		"raw", len(res.Incidents),
		"incidents", len(rep.Incidents),
		"dropped", rep.Dropped,
		"clipped", rep.Clipped,
		"merged", rep.Merged,
	)
}

// resolveProvider returns the provider for req, or nil when the run is
// heuristic-only. Unknown names and missing keys are configuration errors.
func (p *Pipeline) resolveProvider(req Request) (provider.Provider, error) {
	if req.SkipAI {
		return nil, nil
	}
	name := req.Provider
	if name == "" {
		name = p.cfg.DefaultProvider
	}
	if name == "" {
		return nil, nil
	}
	if prov, ok := p.providers[name]; ok {
		return prov, nil
	}
	pc, ok := p.cfg.Providers[name]
	if !ok || pc.APIKey == "" {
		return nil, errs.Configf("AI provider %q has no API key configured", name)
	}
	prov, err := provider.New(name, pc)
	if err != nil {
		return nil, errs.Configf("%v", err)
	}
	return prov, nil
}

// Close releases the output and the store.
func (p *Pipeline) Close() error {
	var errList []error
	if p.output != nil {
		if err := p.output.Close(); err != nil {
			errList = append(errList, err)
		}
	}
	if err := p.store.Close(); err != nil {
		errList = append(errList, err)
	}
	return errors.Join(errList...)
}

func validate(req Request) error {
	var problems []string
	if strings.TrimSpace(req.Company) == "" {
		problems = append(problems, "company is required")
	}
	if strings.TrimSpace(req.URL) == "" {
		problems = append(problems, "url is required")
	}
	if req.Start.IsZero() || req.End.IsZero() {
		problems = append(problems, "start and end are required")
	} else if !req.End.After(req.Start) {
		problems = append(problems, "end must be after start")
	}
	for i, peer := range req.Peers {
		if peer.Name == "" || peer.URL == "" {
			problems = append(problems, fmt.Sprintf("peer %d needs name and url", i))
		}
		if peer.Name == req.Company {
			problems = append(problems, fmt.Sprintf("peer %q is the target", peer.Name))
		}
	}
	if len(problems) > 0 {
		return errs.Configf("%s", strings.Join(problems, "; "))
	}
	return nil
}

func orDefault(v, def float64) float64 {
	if v <= 0 {
		return def
	}
	return v
}
