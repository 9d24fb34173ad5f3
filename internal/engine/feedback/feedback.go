// Package feedback turns human category corrections into taxonomy seeds and
// manual classification overrides.
package feedback

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/hejijunhao/statusreport/internal/engine/taxonomy"
	"github.com/hejijunhao/statusreport/internal/errs"
	"github.com/hejijunhao/statusreport/internal/model"
	"github.com/hejijunhao/statusreport/internal/store"
)

// Incorporator records corrections and prepares them for a run.
type Incorporator struct {
	store  store.FeedbackStore
	now    func() time.Time
	logger *slog.Logger
}

// New creates an Incorporator backed by s.
func New(s store.FeedbackStore, logger *slog.Logger) *Incorporator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Incorporator{store: s, now: time.Now, logger: logger}
}

// Record validates and persists one correction.
func (in *Incorporator) Record(ctx context.Context, entry model.TrainingFeedback) error {
	entry.Company = strings.TrimSpace(entry.Company)
	entry.IncidentKey = strings.TrimSpace(entry.IncidentKey)
	entry.Category.ID = taxonomy.Slug(entry.Category.ID)
	switch {
	case entry.Company == "":
		return errs.Validationf("feedback: company is required")
	case entry.IncidentKey == "":
		return errs.Validationf("feedback: incident key is required")
	case entry.Category.ID == "":
		return errs.Validationf("feedback: category id is required")
	}
	if entry.Category.Name == "" {
		entry.Category.Name = entry.Category.ID
	}
	entry.Category.Method = model.MethodManualOverride
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = in.now().UTC()
	}
	entry.RevokedAt = nil

	if err := in.store.SaveFeedback(ctx, entry); err != nil {
		return err
	}
	in.logger.Info("feedback recorded", "company", entry.Company, "incident", entry.IncidentKey, "category", entry.Category.ID)
	return nil
}

// Revoke deactivates every correction for the incident.
func (in *Incorporator) Revoke(ctx context.Context, company, incidentKey string) error {
	if err := in.store.RevokeFeedback(ctx, company, incidentKey); err != nil {
		return err
	}
	in.logger.Info("feedback revoked", "company", company, "incident", incidentKey)
	return nil
}

// Load returns all corrections for company, revoked ones included.
func (in *Incorporator) Load(ctx context.Context, company string) ([]model.TrainingFeedback, error) {
	return in.store.LoadFeedback(ctx, company)
}

// Prepared is the run input derived from feedback.
type Prepared struct {
	Seeds     []model.Category
	Overrides map[string]model.ClassificationResult // by incident key
}

// Prepare derives seeds and overrides from the active entries. Seeds take
// the latest correction per category id, with keywords enriched by the
// significant words of every corrected incident title in that category.
// Overrides only cover incidents present in incidents; the latest
// correction per key wins.
func Prepare(entries []model.TrainingFeedback, incidents []model.Incident) Prepared {
	active := make([]model.TrainingFeedback, 0, len(entries))
	for _, e := range entries {
		if e.Active() {
			active = append(active, e)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].CreatedAt.Before(active[j].CreatedAt) })

	present := make(map[string]model.Incident, len(incidents))
	for _, inc := range incidents {
		present[inc.Key] = inc
	}

	latestByKey := make(map[string]model.TrainingFeedback)
	seeds := make(map[string]model.Category)
	keywords := make(map[string]map[string]bool)
	for _, e := range active {
		latestByKey[e.IncidentKey] = e

		id := e.Category.ID
		seed := e.Category
		seed.Method = model.MethodManualOverride
		seed.Exemplars = nil
		seeds[id] = seed

		kw := keywords[id]
		if kw == nil {
			kw = make(map[string]bool)
			keywords[id] = kw
		}
		for _, k := range e.Category.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				kw[k] = true
			}
		}
		title := e.IncidentTitle
		if inc, ok := present[e.IncidentKey]; ok && title == "" {
			title = inc.Title
		}
		for _, w := range SignificantWords(title) {
			kw[w] = true
		}
	}

	p := Prepared{Overrides: make(map[string]model.ClassificationResult)}
	for id, seed := range seeds {
		seed.Keywords = sortedKeys(keywords[id])
		p.Seeds = append(p.Seeds, seed)
	}
	sort.Slice(p.Seeds, func(i, j int) bool { return p.Seeds[i].ID < p.Seeds[j].ID })

	for key, e := range latestByKey {
		inc, ok := present[key]
		if !ok {
			continue
		}
		summary := "manual correction"
		if e.Notes != "" {
			summary += ": " + e.Notes
		}
		p.Overrides[key] = model.ClassificationResult{
			IncidentID: inc.ID,
			CategoryID: e.Category.ID,
			Confidence: 1,
			Summary:    summary,
			Method:     model.MethodManualOverride,
		}
	}
	return p
}

var stopwords = map[string]bool{
	"about": true, "affecting": true, "after": true, "being": true, "from": true,
	"have": true, "impacting": true, "incident": true, "investigating": true,
	"issue": true, "issues": true, "some": true, "that": true,
	"their": true, "there": true, "this": true, "users": true, "were": true,
	"when": true, "with": true, "customers": true, "resolved": true,
}

// SignificantWords returns the folded words of title longer than three
// letters that are not stopwords or numbers, in first-seen order.
func SignificantWords(title string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range taxonomy.Words(title) {
		if len([]rune(w)) <= 3 || stopwords[w] || seen[w] || isNumber(w) {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func isNumber(w string) bool {
	for _, r := range w {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
