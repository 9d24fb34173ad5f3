package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hejijunhao/statusreport/internal/errs"
	"github.com/hejijunhao/statusreport/internal/model"
	"github.com/hejijunhao/statusreport/internal/provider"
)

var testCategories = []model.Category{
	{ID: "network-connectivity", Name: "Network", Keywords: []string{"dns", "network", "latency"}},
	{ID: "database-storage", Name: "Database", Keywords: []string{"database", "db", "replica"}},
	{ID: "api-service-degradation", Name: "API", Keywords: []string{"api", "errors", "latency"}},
	model.OtherCategory(model.MethodHeuristic),
}

func incident(id, title string) model.Incident {
	return model.Incident{
		ID:        id,
		Key:       "h:" + id,
		Title:     title,
		Impact:    model.ImpactMajor,
		StartedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestHeuristic(t *testing.T) {
	tests := []struct {
		name     string
		inc      model.Incident
		wantCat  string
		wantConf float64
		wantSum  string
	}{
		{
			name:     "single keyword",
			inc:      incident("INC-0001", "Primary database failover"),
			wantCat:  "database-storage",
			wantConf: 1.0 / 3,
			wantSum:  `matched "database-storage" on: database`,
		},
		{
			name:     "most hits wins",
			inc:      incident("INC-0002", "Elevated API errors and latency"),
			wantCat:  "api-service-degradation",
			wantConf: 1,
			wantSum:  `matched "api-service-degradation" on: api, errors, latency`,
		},
		{
			name:     "tie goes to earlier category",
			inc:      incident("INC-0003", "Increased latency"),
			wantCat:  "network-connectivity",
			wantConf: 1.0 / 3,
			wantSum:  `matched "network-connectivity" on: latency`,
		},
		{
			name:    "no hits",
			inc:     incident("INC-0004", "Billing page typo"),
			wantCat: model.OtherCategoryID,
			wantSum: "no category keywords matched",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Heuristic(tt.inc, testCategories)
			want := model.ClassificationResult{
				IncidentID: tt.inc.ID,
				CategoryID: tt.wantCat,
				Confidence: tt.wantConf,
				Summary:    tt.wantSum,
				Method:     model.MethodHeuristic,
			}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestHeuristicSearchesUpdates(t *testing.T) {
	inc := incident("INC-0001", "Service disruption")
	inc.Updates = []model.StatusUpdate{{Status: "identified", Body: "A DNS misconfiguration was rolled out"}}
	if got := Heuristic(inc, testCategories); got.CategoryID != "network-connectivity" {
		t.Fatalf("expected match from update text, got %q", got.CategoryID)
	}
}

func TestHeuristicDeterministic(t *testing.T) {
	inc := incident("INC-0001", "DNS and database latency")
	first := Heuristic(inc, testCategories)
	for i := 0; i < 10; i++ {
		if got := Heuristic(inc, testCategories); !cmp.Equal(got, first) {
			t.Fatalf("run %d differs: %+v vs %+v", i, got, first)
		}
	}
}

func TestClassifyWithoutProvider(t *testing.T) {
	incs := []model.Incident{incident("INC-0001", "DNS outage"), incident("INC-0002", "Nothing")}
	c := New(nil, Config{}, nil)

	results, degraded, reasons := c.Classify(context.Background(), incs, testCategories, nil)
	if degraded || reasons != nil {
		t.Fatalf("heuristic-only run must not be degraded: %v", reasons)
	}
	if results[0].CategoryID != "network-connectivity" || results[1].CategoryID != model.OtherCategoryID {
		t.Fatalf("unexpected results %+v", results)
	}
}

func TestClassifyAI(t *testing.T) {
	// Responds based on the title so index alignment is observable.
	p := provider.Func(func(_ context.Context, req provider.Request) (string, error) {
		time.Sleep(time.Duration(len(req.Prompt)%7) * time.Millisecond)
		switch {
		case strings.Contains(req.Prompt, "Title: db"):
			return `{"category_id":"database-storage","confidence":0.9,"summary":"db down"}`, nil
		case strings.Contains(req.Prompt, "Title: net"):
			return "```json\n{\"category_id\":\"network-connectivity\",\"confidence\":1.7,\"summary\":\"net\"}\n```", nil
		}
		return `{"category_id":"other","summary":"unclear"}`, nil
	})

	var incs []model.Incident
	var want []string
	for i := 0; i < 30; i++ {
		title, cat := "misc", model.OtherCategoryID
		switch i % 3 {
		case 0:
			title, cat = "db", "database-storage"
		case 1:
			title, cat = "net", "network-connectivity"
		}
		incs = append(incs, incident(fmt.Sprintf("INC-%04d", i+1), title))
		want = append(want, cat)
	}

	results, degraded, _ := New(p, Config{Workers: 5}, nil).Classify(context.Background(), incs, testCategories, nil)
	if degraded {
		t.Fatal("unexpected degraded run")
	}
	for i, r := range results {
		if r.IncidentID != incs[i].ID || r.CategoryID != want[i] {
			t.Fatalf("slot %d: got %+v, want category %q", i, r, want[i])
		}
		if r.Method != model.MethodAI {
			t.Fatalf("slot %d: expected ai method, got %q", i, r.Method)
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			t.Fatalf("slot %d: confidence out of range: %v", i, r.Confidence)
		}
	}
	if results[2].Confidence != 0.5 {
		t.Fatalf("expected default confidence for missing value, got %v", results[2].Confidence)
	}
}

func TestClassifyProviderFailureFallsBack(t *testing.T) {
	p := provider.Func(func(context.Context, provider.Request) (string, error) {
		return "", errs.NewProviderError("func", errs.Unavailable, errors.New("connection refused"))
	})
	incs := []model.Incident{
		incident("INC-0001", "DNS outage"),
		incident("INC-0002", "Database replica lag"),
		incident("INC-0003", "Unknown"),
	}

	results, degraded, reasons := New(p, Config{Workers: 2}, nil).Classify(context.Background(), incs, testCategories, nil)
	if !degraded {
		t.Fatal("expected degraded")
	}
	if len(reasons) != 1 || !strings.Contains(reasons[0], "3 of 3") {
		t.Fatalf("unexpected reasons %v", reasons)
	}
	for i, r := range results {
		if diff := cmp.Diff(Heuristic(incs[i], testCategories), r); diff != "" {
			t.Fatalf("slot %d mismatch (-heuristic +got):\n%s", i, diff)
		}
	}
}

func TestClassifyAuthFailureTripsPool(t *testing.T) {
	var calls atomic.Int32
	p := provider.Func(func(context.Context, provider.Request) (string, error) {
		calls.Add(1)
		return "", errs.NewProviderError("func", errs.AuthFailure, errors.New("401"))
	})
	incs := make([]model.Incident, 20)
	for i := range incs {
		incs[i] = incident(fmt.Sprintf("INC-%04d", i+1), "DNS outage")
	}

	results, degraded, _ := New(p, Config{Workers: 1}, nil).Classify(context.Background(), incs, testCategories, nil)
	if !degraded {
		t.Fatal("expected degraded")
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected provider called once before tripping, got %d", n)
	}
	for i, r := range results {
		if r.Method != model.MethodHeuristic {
			t.Fatalf("slot %d: expected heuristic, got %q", i, r.Method)
		}
	}
}

func TestClassifyUnknownCategoryFallsBackPerIncident(t *testing.T) {
	p := provider.Func(func(_ context.Context, req provider.Request) (string, error) {
		if strings.Contains(req.Prompt, "Title: DNS") {
			return `{"category_id":"made-up","confidence":0.9}`, nil
		}
		return `{"category_id":"database-storage","confidence":0.8,"summary":"db"}`, nil
	})
	incs := []model.Incident{incident("INC-0001", "DNS outage"), incident("INC-0002", "Replica lag")}

	results, degraded, _ := New(p, Config{}, nil).Classify(context.Background(), incs, testCategories, nil)
	if !degraded {
		t.Fatal("expected degraded flag for the fallback")
	}
	if results[0].Method != model.MethodHeuristic || results[0].CategoryID != "network-connectivity" {
		t.Fatalf("expected heuristic fallback for slot 0, got %+v", results[0])
	}
	if results[1].Method != model.MethodAI || results[1].CategoryID != "database-storage" {
		t.Fatalf("expected ai result for slot 1, got %+v", results[1])
	}
}

func TestClassifyOverrides(t *testing.T) {
	var calls atomic.Int32
	p := provider.Func(func(context.Context, provider.Request) (string, error) {
		calls.Add(1)
		return `{"category_id":"other","confidence":0.4}`, nil
	})
	incs := []model.Incident{incident("INC-0001", "DNS outage"), incident("INC-0002", "Something")}
	overrides := map[string]model.ClassificationResult{
		incs[0].Key: {CategoryID: "database-storage", Summary: "operator says db"},
		"h:absent":  {CategoryID: "network-connectivity"},
	}

	results, _, _ := New(p, Config{}, nil).Classify(context.Background(), incs, testCategories, overrides)
	want := model.ClassificationResult{
		IncidentID: "INC-0001",
		CategoryID: "database-storage",
		Confidence: 1,
		Summary:    "operator says db",
		Method:     model.MethodManualOverride,
	}
	if diff := cmp.Diff(want, results[0]); diff != "" {
		t.Fatalf("override mismatch (-want +got):\n%s", diff)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected one provider call for the non-overridden incident, got %d", calls.Load())
	}
}

func TestClassifyCancelledContext(t *testing.T) {
	var calls atomic.Int32
	p := provider.Func(func(context.Context, provider.Request) (string, error) {
		calls.Add(1)
		return `{"category_id":"other"}`, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, degraded, _ := New(p, Config{}, nil).Classify(ctx, []model.Incident{incident("INC-0001", "DNS")}, testCategories, nil)
	if !degraded || results[0].Method != model.MethodHeuristic {
		t.Fatalf("expected heuristic fallback on cancelled run, got %+v", results[0])
	}
	if calls.Load() != 0 {
		t.Fatal("provider must not be called after cancellation")
	}
}

func TestClassifyCallTimeout(t *testing.T) {
	p := provider.Func(func(ctx context.Context, _ provider.Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	results, degraded, _ := New(p, Config{CallTimeout: 10 * time.Millisecond}, nil).
		Classify(context.Background(), []model.Incident{incident("INC-0001", "DNS")}, testCategories, nil)
	if !degraded || results[0].Method != model.MethodHeuristic {
		t.Fatalf("expected heuristic fallback on timeout, got %+v", results[0])
	}
}

func TestClassifyAIRootCause(t *testing.T) {
	var gotPrompt string
	p := provider.Func(func(_ context.Context, req provider.Request) (string, error) {
		gotPrompt = req.Prompt
		return `{"category_id":"database-storage","confidence":0.8,"summary":"primary failed over",` +
			`"root_cause":" expired TLS certificate on the replica ","affected_components":["API"," ","Dashboard"]}`, nil
	})

	results, _, _ := New(p, Config{Workers: 1}, nil).Classify(context.Background(), []model.Incident{incident("INC-1", "db")}, testCategories, nil)
	if !strings.Contains(gotPrompt, `"root_cause"`) {
		t.Error("prompt does not ask for a root cause")
	}
	want := model.ClassificationResult{
		IncidentID: "INC-1",
		CategoryID: "database-storage",
		Confidence: 0.8,
		Summary:    "primary failed over",
		Method:     model.MethodAI,
		RootCause:  "expired TLS certificate on the replica",
		Components: []string{"API", "Dashboard"},
	}
	if diff := cmp.Diff(want, results[0]); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}
