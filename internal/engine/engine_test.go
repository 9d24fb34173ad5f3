package engine

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hejijunhao/statusreport/internal/engine/feedback"
	"github.com/hejijunhao/statusreport/internal/engine/taxonomy"
	"github.com/hejijunhao/statusreport/internal/engine/testdata"
	"github.com/hejijunhao/statusreport/internal/errs"
	"github.com/hejijunhao/statusreport/internal/metrics"
	"github.com/hejijunhao/statusreport/internal/model"
	"github.com/hejijunhao/statusreport/internal/provider"
)

var (
	corpusStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	corpusEnd   = time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC)
)

// loadCorpus normalizes the embedded corpus and returns the incidents with
// their expected categories, aligned by index.
func loadCorpus(t *testing.T, e *Engine) ([]model.Incident, []string) {
	t.Helper()
	entries, err := testdata.LoadCorpus()
	if err != nil {
		t.Fatalf("LoadCorpus: %v", err)
	}
	raws, _ := testdata.RawIncidents()
	rep := e.Normalize(raws, corpusStart, corpusEnd)
	if len(rep.Incidents) != len(entries) {
		t.Fatalf("expected %d incidents after normalization, got %d (warnings: %v)", len(entries), len(rep.Incidents), rep.Warnings)
	}

	expected := make(map[string]string, len(entries))
	for _, e := range entries {
		expected[e.Title] = e.ExpectedCategory
	}
	want := make([]string, len(rep.Incidents))
	for i, inc := range rep.Incidents {
		want[i] = expected[inc.Title]
	}
	return rep.Incidents, want
}

func TestProcessHeuristicCorpus(t *testing.T) {
	e := New(Config{}, nil, nil, nil)
	incs, want := loadCorpus(t, e)

	out := e.Process(context.Background(), Input{Company: "Acme", Incidents: incs, Start: corpusStart, End: corpusEnd})

	if out.Degraded {
		t.Fatalf("heuristic-only run must not be degraded: %v", out.Reasons)
	}
	if last := out.Categories[len(out.Categories)-1]; last.ID != model.OtherCategoryID {
		t.Fatalf("expected other last, got %q", last.ID)
	}
	for i, r := range out.Results {
		if r.CategoryID != want[i] {
			t.Errorf("%q: expected %q, got %q (%s)", incs[i].Title, want[i], r.CategoryID, r.Summary)
		}
	}
	if out.Metrics.TotalIncidents != len(incs) || out.Metrics.Months < 5.9 {
		t.Fatalf("unexpected metrics: total %d months %.2f", out.Metrics.TotalIncidents, out.Metrics.Months)
	}
	if out.Metrics.Open != 3 {
		t.Fatalf("expected 3 open incidents in the corpus, got %d", out.Metrics.Open)
	}
}

func TestProcessProviderFailureDegrades(t *testing.T) {
	var calls atomic.Int32
	p := provider.Func(func(context.Context, provider.Request) (string, error) {
		calls.Add(1)
		return "", errs.NewProviderError("func", errs.Unavailable, errors.New("connection refused"))
	})
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	e := New(Config{}, p, m, nil)
	incs, want := loadCorpus(t, e)

	out := e.Process(context.Background(), Input{Company: "Acme", Incidents: incs, Start: corpusStart, End: corpusEnd})

	if !out.Degraded || len(out.Reasons) != 2 {
		t.Fatalf("expected taxonomy and classification fallbacks, got %v", out.Reasons)
	}
	if !strings.HasPrefix(out.Reasons[0], "taxonomy:") {
		t.Fatalf("unexpected first reason %q", out.Reasons[0])
	}
	for i, r := range out.Results {
		if r.Method != model.MethodHeuristic || r.CategoryID != want[i] {
			t.Fatalf("slot %d: expected heuristic %q, got %+v", i, want[i], r)
		}
	}
	if got := testutil.ToFloat64(m.Fallbacks.WithLabelValues("taxonomy")); got != 1 {
		t.Fatalf("expected taxonomy fallback counted, got %v", got)
	}
	if got := testutil.ToFloat64(m.Classifications.WithLabelValues("heuristic")); got != float64(len(incs)) {
		t.Fatalf("expected %d heuristic classifications, got %v", len(incs), got)
	}
}

func TestProcessAppliesFeedback(t *testing.T) {
	e := New(Config{}, nil, nil, nil)
	incs, _ := loadCorpus(t, e)

	target := incs[len(incs)-1] // "Unexplained partial outage"
	prepared := feedback.Prepare([]model.TrainingFeedback{{
		Company:     "Acme",
		IncidentKey: target.Key,
		Category:    model.Category{ID: "capacity-planning", Name: "Capacity Planning"},
		CreatedAt:   corpusStart,
	}}, incs)

	out := e.Process(context.Background(), Input{Company: "Acme", Incidents: incs, Start: corpusStart, End: corpusEnd, Feedback: prepared})

	var seeded bool
	for _, c := range out.Categories {
		if c.ID == "capacity-planning" && c.Seeded {
			seeded = true
		}
	}
	if !seeded {
		t.Fatal("expected seeded category in taxonomy")
	}
	r := out.Results[len(out.Results)-1]
	if r.CategoryID != "capacity-planning" || r.Method != model.MethodManualOverride {
		t.Fatalf("expected manual override, got %+v", r)
	}

	// A second run with the same feedback keeps the override.
	again := e.Process(context.Background(), Input{Company: "Acme", Incidents: incs, Start: corpusStart, End: corpusEnd, Feedback: prepared})
	if !cmp.Equal(again.Results[len(again.Results)-1], r) {
		t.Fatal("override not stable across runs")
	}
}

func TestCategorizeAI(t *testing.T) {
	p := provider.Func(func(context.Context, provider.Request) (string, error) {
		return `[{"id":"db","name":"Database","keywords":["database","postgres"]}]`, nil
	})
	e := New(Config{}, p, nil, nil)
	cats, degraded, _ := e.Categorize(context.Background(), corpusFor(t, e))
	if degraded || len(cats) != 2 || cats[0].Method != model.MethodAI {
		t.Fatalf("unexpected categories %+v (degraded %v)", cats, degraded)
	}
}

func corpusFor(t *testing.T, e *Engine) taxonomy.Corpus {
	t.Helper()
	incs, _ := loadCorpus(t, e)
	return taxonomy.Corpus{Company: "Acme", Incidents: incs}
}

func TestClassifyPeer(t *testing.T) {
	e := New(Config{}, nil, nil, nil)
	incs, want := loadCorpus(t, e)
	cats, _, _ := e.Categorize(context.Background(), taxonomy.Corpus{Incidents: incs})

	for i, r := range ClassifyPeer(incs, cats) {
		if r.CategoryID != want[i] {
			t.Fatalf("slot %d: expected %q, got %q", i, want[i], r.CategoryID)
		}
	}
}
