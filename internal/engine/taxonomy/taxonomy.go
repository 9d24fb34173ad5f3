// Package taxonomy builds the per-company category set that incidents are
// classified into.
package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hejijunhao/statusreport/internal/engine/compactor"
	"github.com/hejijunhao/statusreport/internal/errs"
	"github.com/hejijunhao/statusreport/internal/model"
	"github.com/hejijunhao/statusreport/internal/provider"
)

// maxExemplars caps how many incident ids a category keeps as examples.
const maxExemplars = 3

// Corpus is the input to taxonomy generation.
type Corpus struct {
	Company   string
	Incidents []model.Incident
	Seeds     []model.Category // categories carried over from feedback
}

// Generator produces the ordered category set for a corpus. The result
// always ends with the "other" category.
type Generator interface {
	Generate(ctx context.Context, c Corpus) ([]model.Category, error)
}

// Heuristic selects groups from the built-in keyword library.
type Heuristic struct{}

// Generate is deterministic: the same corpus yields the same categories.
func (Heuristic) Generate(_ context.Context, c Corpus) ([]model.Category, error) {
	texts := prepareAll(c.Incidents)
	var cats []model.Category
	for _, g := range Library() {
		if matchesAny(g, texts) {
			cats = append(cats, g)
		}
	}
	return finalize(cats, c.Seeds, c.Incidents, texts, model.MethodHeuristic), nil
}

// AI asks a provider to derive categories from the corpus.
type AI struct {
	Provider provider.Provider
	// TokenBudget bounds the incident listing in the prompt. Default 6000.
	TokenBudget int
	MaxTokens   int
}

type aiCategory struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
}

// Generate returns *errs.ProviderError with kind InvalidResponse when the
// provider's output is not a usable category list.
func (a AI) Generate(ctx context.Context, c Corpus) ([]model.Category, error) {
	if a.Provider == nil {
		return nil, errors.New("taxonomy: no provider configured")
	}
	maxTokens := a.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	out, err := a.Provider.Complete(ctx, provider.Request{
		System:      generationSystem,
		Prompt:      a.prompt(c),
		MaxTokens:   maxTokens,
		Temperature: 0.3,
	})
	if err != nil {
		return nil, err
	}

	cats, err := parseCategories(out)
	if err != nil {
		return nil, errs.NewProviderError(a.Provider.Name(), errs.InvalidResponse, err)
	}
	return finalize(cats, c.Seeds, c.Incidents, prepareAll(c.Incidents), model.MethodAI), nil
}

func (a AI) prompt(c Corpus) string {
	budget := a.TokenBudget
	if budget <= 0 {
		budget = 6000
	}
	cmp := compactor.New(compactor.Minimal)
	lines := make([]string, 0, len(c.Incidents))
	for _, inc := range c.Incidents {
		line := fmt.Sprintf("- [%s] %s", strings.ToUpper(string(inc.Impact)), inc.Title)
		if len(inc.Updates) > 0 {
			if _, summary := cmp.Compact(inc.Updates[0].Body); summary != "" {
				line += "\n  Details: " + summary
			}
		}
		lines = append(lines, line)
	}
	kept := compactor.Fit(lines, budget)

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the incidents below from the %s status page and generate a taxonomy of incident categories.\n\n", c.Company)
	fmt.Fprintf(&b, "Total incidents: %d (showing %d)\n\n", len(c.Incidents), kept)
	b.WriteString(strings.Join(lines[:kept], "\n"))
	b.WriteString(generationInstructions)
	return b.String()
}

func parseCategories(out string) ([]model.Category, error) {
	var items []aiCategory
	if err := provider.DecodeJSON(out, &items); err != nil {
		// Some models wrap the array in an object.
		var wrapped struct {
			Categories []aiCategory `json:"categories"`
		}
		if werr := provider.DecodeJSON(out, &wrapped); werr != nil || wrapped.Categories == nil {
			return nil, err
		}
		items = wrapped.Categories
	}
	if len(items) == 0 {
		return nil, errors.New("empty category list")
	}

	seen := make(map[string]bool, len(items))
	cats := make([]model.Category, 0, len(items))
	for _, it := range items {
		id := Slug(it.ID)
		if id == "" {
			return nil, fmt.Errorf("category %q has no id", it.Name)
		}
		if seen[id] {
			return nil, fmt.Errorf("duplicate category id %q", id)
		}
		seen[id] = true
		name := strings.TrimSpace(it.Name)
		if name == "" {
			name = id
		}
		cats = append(cats, model.Category{
			ID:          id,
			Name:        name,
			Description: strings.TrimSpace(it.Description),
			Method:      model.MethodAI,
			Keywords:    it.Keywords,
		})
	}
	return cats, nil
}

// Slug lowercases s and joins its words with hyphens.
func Slug(s string) string {
	return strings.Join(Words(s), "-")
}

// MergeSeeds overlays seeded categories onto cats. A seed with an existing id
// replaces that entry in place and keeps the union of both keyword lists;
// other seeds are appended.
func MergeSeeds(cats, seeds []model.Category) []model.Category {
	out := append([]model.Category(nil), cats...)
	for _, s := range seeds {
		s.Seeded = true
		idx := -1
		for i := range out {
			if out[i].ID == s.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			out = append(out, s)
			continue
		}
		s.Keywords = unionKeywords(out[idx].Keywords, s.Keywords)
		if s.Description == "" {
			s.Description = out[idx].Description
		}
		out[idx] = s
	}
	return out
}

// finalize merges seeds, fills exemplars and moves "other" to the end.
func finalize(cats, seeds []model.Category, incidents []model.Incident, texts []Text, method model.Method) []model.Category {
	cats = MergeSeeds(cats, seeds)

	other := model.OtherCategory(method)
	out := make([]model.Category, 0, len(cats)+1)
	for _, c := range cats {
		if c.ID == model.OtherCategoryID {
			other = c
			continue
		}
		c.Exemplars = exemplars(c, incidents, texts)
		out = append(out, c)
	}
	return append(out, other)
}

func exemplars(c model.Category, incidents []model.Incident, texts []Text) []string {
	var ids []string
	for i, t := range texts {
		if len(Match(c, t)) > 0 {
			ids = append(ids, incidents[i].ID)
			if len(ids) == maxExemplars {
				break
			}
		}
	}
	return ids
}

func prepareAll(incidents []model.Incident) []Text {
	texts := make([]Text, len(incidents))
	for i, inc := range incidents {
		texts[i] = Prepare(inc.Text())
	}
	return texts
}

func matchesAny(c model.Category, texts []Text) bool {
	for _, t := range texts {
		if len(Match(c, t)) > 0 {
			return true
		}
	}
	return false
}

func unionKeywords(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, kw := range append(append([]string(nil), a...), b...) {
		k := strings.ToLower(strings.TrimSpace(kw))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
