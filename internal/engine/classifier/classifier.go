// Package classifier assigns each incident to one category of the taxonomy.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hejijunhao/statusreport/internal/engine/compactor"
	"github.com/hejijunhao/statusreport/internal/engine/taxonomy"
	"github.com/hejijunhao/statusreport/internal/errs"
	"github.com/hejijunhao/statusreport/internal/model"
	"github.com/hejijunhao/statusreport/internal/provider"
)

// Config tunes the AI worker pool.
type Config struct {
	Workers     int           // concurrent provider calls. Default 4.
	CallTimeout time.Duration // per-call timeout. Default 60s.
	MaxTokens   int           // default 1024
}

// Classifier runs AI classification with heuristic fallback. A nil provider
// makes every incident go through the heuristic.
type Classifier struct {
	provider provider.Provider
	cfg      Config
	logger   *slog.Logger
}

// New creates a Classifier. The provider should already be wrapped with the
// run's limiter (see provider.Limited).
func New(p provider.Provider, cfg Config, logger *slog.Logger) *Classifier {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 60 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{provider: p, cfg: cfg, logger: logger}
}

// Classify returns one result per incident, index-aligned with incidents.
// overrides maps incident keys to manual corrections; those incidents are
// never sent to the provider. degraded is set when any incident that should
// have been classified by the provider fell back to the heuristic.
func (c *Classifier) Classify(ctx context.Context, incidents []model.Incident, categories []model.Category, overrides map[string]model.ClassificationResult) (results []model.ClassificationResult, degraded bool, reasons []string) {
	results = make([]model.ClassificationResult, len(incidents))
	fails := make([]error, len(incidents))
	known := categoryIndex(categories)

	var tripped atomic.Bool
	g := new(errgroup.Group)
	g.SetLimit(c.cfg.Workers)

	for i := range incidents {
		inc := incidents[i]
		if o, ok := overrides[inc.Key]; ok && known[o.CategoryID] {
			o.IncidentID = inc.ID
			o.Method = model.MethodManualOverride
			o.Confidence = 1
			results[i] = o
			continue
		}
		if c.provider == nil {
			results[i] = Heuristic(inc, categories)
			continue
		}
		g.Go(func() error {
			results[i], fails[i] = c.classifyOne(ctx, inc, categories, known, &tripped)
			return nil
		})
	}
	_ = g.Wait()

	var failed int
	var first error
	for _, err := range fails {
		if err == nil {
			continue
		}
		failed++
		if first == nil {
			first = err
		}
	}
	if failed > 0 {
		reason := fmt.Sprintf("classification: %d of %d incidents fell back to heuristic: %v", failed, len(incidents), first)
		c.logger.Warn("classification degraded", "fallbacks", failed, "incidents", len(incidents), "err", first)
		return results, true, []string{reason}
	}
	return results, false, nil
}

// classifyOne asks the provider and falls back to the heuristic on any
// failure. The returned error explains the fallback.
func (c *Classifier) classifyOne(ctx context.Context, inc model.Incident, categories []model.Category, known map[string]bool, tripped *atomic.Bool) (model.ClassificationResult, error) {
	if tripped.Load() {
		return Heuristic(inc, categories), errors.New("provider disabled after authentication failure")
	}
	if err := ctx.Err(); err != nil {
		return Heuristic(inc, categories), err
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
	defer cancel()

	out, err := c.provider.Complete(callCtx, provider.Request{
		System:      classificationSystem,
		Prompt:      prompt(inc, categories),
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		if errs.IsProviderKind(err, errs.AuthFailure) && tripped.CompareAndSwap(false, true) {
			c.logger.Error("provider authentication failed, remaining incidents use heuristic", "provider", c.provider.Name(), "err", err)
		}
		return Heuristic(inc, categories), err
	}

	res, err := parseResult(out, known)
	if err != nil {
		c.logger.Debug("unusable classification response", "incident", inc.ID, "err", err)
		return Heuristic(inc, categories), errs.NewProviderError(c.provider.Name(), errs.InvalidResponse, err)
	}
	res.IncidentID = inc.ID
	res.Method = model.MethodAI
	return res, nil
}

type aiResult struct {
	CategoryID string   `json:"category_id"`
	Confidence *float64 `json:"confidence"`
	Summary    string   `json:"summary"`
	RootCause  string   `json:"root_cause"`
	Components []string `json:"affected_components"`
}

func parseResult(out string, known map[string]bool) (model.ClassificationResult, error) {
	var r aiResult
	if err := provider.DecodeJSON(out, &r); err != nil {
		return model.ClassificationResult{}, err
	}
	id := strings.TrimSpace(r.CategoryID)
	if !known[id] {
		return model.ClassificationResult{}, fmt.Errorf("unknown category %q", r.CategoryID)
	}
	conf := 0.5
	if r.Confidence != nil {
		conf = min(max(*r.Confidence, 0), 1)
	}
	var components []string
	for _, c := range r.Components {
		if c = strings.TrimSpace(c); c != "" {
			components = append(components, c)
		}
	}
	return model.ClassificationResult{
		CategoryID: id,
		Confidence: conf,
		Summary:    strings.TrimSpace(r.Summary),
		RootCause:  strings.TrimSpace(r.RootCause),
		Components: components,
	}, nil
}

// Heuristic classifies by keyword hits across the incident's title,
// description and updates. The category with the most distinct keyword hits
// wins; ties go to the earlier category and zero hits go to "other".
func Heuristic(inc model.Incident, categories []model.Category) model.ClassificationResult {
	text := taxonomy.Prepare(inc.Text())

	var best model.Category
	var bestHits []string
	for _, cat := range categories {
		if cat.ID == model.OtherCategoryID {
			continue
		}
		if hits := taxonomy.Match(cat, text); len(hits) > len(bestHits) {
			best, bestHits = cat, hits
		}
	}

	if len(bestHits) == 0 {
		return model.ClassificationResult{
			IncidentID: inc.ID,
			CategoryID: model.OtherCategoryID,
			Summary:    "no category keywords matched",
			Method:     model.MethodHeuristic,
		}
	}
	return model.ClassificationResult{
		IncidentID: inc.ID,
		CategoryID: best.ID,
		Confidence: min(float64(len(bestHits))/3, 1),
		Summary:    fmt.Sprintf("matched %q on: %s", best.ID, strings.Join(bestHits, ", ")),
		Method:     model.MethodHeuristic,
	}
}

func categoryIndex(categories []model.Category) map[string]bool {
	m := make(map[string]bool, len(categories)+1)
	for _, c := range categories {
		m[c.ID] = true
	}
	m[model.OtherCategoryID] = true
	return m
}

const classificationSystem = `You are an expert at analyzing incident reports and identifying root causes.
Classify each incident into exactly one of the predefined categories.`

type promptCategory struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// updateTokens caps each status update in the prompt.
const updateTokens = 80

func prompt(inc model.Incident, categories []model.Category) string {
	cats := make([]promptCategory, len(categories))
	for i, c := range categories {
		cats[i] = promptCategory{ID: c.ID, Name: c.Name, Description: c.Description}
	}
	catJSON, _ := json.MarshalIndent(cats, "", "  ")

	cmp := compactor.New(compactor.Minimal)
	var b strings.Builder
	b.WriteString("Classify the following incident into one of the categories.\n\nCategories:\n")
	b.Write(catJSON)
	fmt.Fprintf(&b, "\n\nIncident:\n- Title: %s\n- Impact: %s\n- Started: %s\n", inc.Title, inc.Impact, inc.StartedAt.UTC().Format("2006-01-02 15:04"))
	if inc.Description != "" {
		desc, _ := cmp.Compact(inc.Description)
		fmt.Fprintf(&b, "- Description: %s\n", desc)
	}
	b.WriteString("\nUpdates:\n")
	if len(inc.Updates) == 0 {
		b.WriteString("No updates available.\n")
	}
	for i, u := range inc.Updates {
		if i == 5 {
			break
		}
		fmt.Fprintf(&b, "[%s] [%s] %s\n", u.At.UTC().Format("2006-01-02 15:04"), u.Status, compactor.Truncate(u.Body, updateTokens))
	}
	b.WriteString(`
Pick the primary root cause category; use "other" if nothing fits.
Respond with ONLY a JSON object: {"category_id": "...", "confidence": 0.0-1.0, "summary": "one or two sentences", "root_cause": "specific cause if stated, else empty", "affected_components": ["..."]}`)
	return b.String()
}
