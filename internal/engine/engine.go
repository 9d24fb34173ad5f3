// Package engine turns raw adapter output into a classified, analyzed
// company dataset.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hejijunhao/statusreport/internal/engine/analysis"
	"github.com/hejijunhao/statusreport/internal/engine/classifier"
	"github.com/hejijunhao/statusreport/internal/engine/feedback"
	"github.com/hejijunhao/statusreport/internal/engine/normalize"
	"github.com/hejijunhao/statusreport/internal/engine/taxonomy"
	"github.com/hejijunhao/statusreport/internal/metrics"
	"github.com/hejijunhao/statusreport/internal/model"
	"github.com/hejijunhao/statusreport/internal/provider"
)

// Config wires the engine's stages.
type Config struct {
	Normalize      normalize.Config
	Classifier     classifier.Config
	TrendThreshold float64
	TokenBudget    int // taxonomy prompt budget
	MaxTokens      int // taxonomy response cap
}

// Engine orchestrates the normalize → taxonomy → classify → analyze pipeline.
type Engine struct {
	cfg        Config
	provider   provider.Provider
	heuristic  taxonomy.Generator
	ai         taxonomy.Generator
	classifier *classifier.Classifier
	analyzer   *analysis.Analyzer
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// New creates an Engine. A nil provider runs every stage heuristically.
// m may be nil.
func New(cfg Config, p provider.Provider, m *metrics.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		cfg:        cfg,
		provider:   p,
		heuristic:  taxonomy.Heuristic{},
		classifier: classifier.New(p, cfg.Classifier, logger),
		analyzer:   analysis.New(analysis.Config{TrendThreshold: cfg.TrendThreshold}),
		metrics:    m,
		logger:     logger,
	}
	if p != nil {
		e.ai = taxonomy.AI{Provider: p, TokenBudget: cfg.TokenBudget, MaxTokens: cfg.MaxTokens}
	}
	return e
}

// Analyzer returns the engine's analyzer for peer comparison.
func (e *Engine) Analyzer() *analysis.Analyzer { return e.analyzer }

// Normalize validates and deduplicates raw records for one company. Each
// call uses its own normalizer so companies can be processed concurrently.
func (e *Engine) Normalize(raws []model.RawIncident, start, end time.Time) normalize.Report {
	return normalize.New(e.cfg.Normalize).Normalize(raws, start, end)
}

// Input is one company's normalized dataset plus its feedback.
type Input struct {
	Company    string
	Incidents  []model.Incident
	Start, End time.Time
	Feedback   feedback.Prepared
}

// Outcome is the engine's result for one company.
type Outcome struct {
	Categories []model.Category
	Results    []model.ClassificationResult
	Metrics    model.Metrics
	Degraded   bool
	Reasons    []string
}

// Process categorizes, classifies and analyzes the target dataset.
func (e *Engine) Process(ctx context.Context, in Input) Outcome {
	var out Outcome

	cats, degraded, reason := e.Categorize(ctx, taxonomy.Corpus{
		Company:   in.Company,
		Incidents: in.Incidents,
		Seeds:     in.Feedback.Seeds,
	})
	out.Categories = cats
	if degraded {
		out.Degraded = true
		out.Reasons = append(out.Reasons, reason)
	}

	results, degraded, reasons := e.classifier.Classify(ctx, in.Incidents, cats, in.Feedback.Overrides)
	out.Results = results
	if degraded {
		out.Degraded = true
		out.Reasons = append(out.Reasons, reasons...)
		e.metrics.Fallback("classify")
	}
	e.metrics.ObserveClassifications(results)

	out.Metrics = e.analyzer.Analyze(analysis.Input{
		Company:    in.Company,
		Incidents:  in.Incidents,
		Results:    results,
		Categories: cats,
		Start:      in.Start,
		End:        in.End,
	})
	e.metrics.ObserveMetrics(out.Metrics)
	return out
}

// Categorize runs the AI generator when a provider is configured and falls
// back to the heuristic library when it fails. The fallback never fails.
func (e *Engine) Categorize(ctx context.Context, corpus taxonomy.Corpus) (cats []model.Category, degraded bool, reason string) {
	if e.ai != nil {
		cats, err := e.ai.Generate(ctx, corpus)
		if err == nil {
			e.logger.Info("taxonomy generated", "company", corpus.Company, "method", model.MethodAI, "categories", len(cats))
			return cats, false, ""
		}
		reason = fmt.Sprintf("taxonomy: AI generation failed, using heuristic library: %v", err)
		degraded = true
		e.logger.Warn("taxonomy generation failed, falling back to heuristic", "company", corpus.Company, "err", err)
		e.metrics.Fallback("taxonomy")
	}
	// Heuristic.Generate is pure and never returns an error.
	cats, _ = e.heuristic.Generate(ctx, corpus)
	e.logger.Info("taxonomy generated", "company", corpus.Company, "method", model.MethodHeuristic, "categories", len(cats))
	return cats, degraded, reason
}

// ClassifyPeer assigns a peer's incidents to the target's categories with
// the heuristic only, so peer comparison never spends provider calls.
func ClassifyPeer(incidents []model.Incident, categories []model.Category) []model.ClassificationResult {
	results := make([]model.ClassificationResult, len(incidents))
	for i, inc := range incidents {
		results[i] = classifier.Heuristic(inc, categories)
	}
	return results
}
