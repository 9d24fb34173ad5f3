package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hejijunhao/statusreport/internal/config"
	"github.com/hejijunhao/statusreport/internal/connector"
	"github.com/hejijunhao/statusreport/internal/engine"
	"github.com/hejijunhao/statusreport/internal/engine/classifier"
	"github.com/hejijunhao/statusreport/internal/engine/normalize"
	"github.com/hejijunhao/statusreport/internal/errs"
	"github.com/hejijunhao/statusreport/internal/model"
	"github.com/hejijunhao/statusreport/internal/provider"
	"github.com/hejijunhao/statusreport/internal/store"

	_ "github.com/hejijunhao/statusreport/internal/connector/feed"
	_ "github.com/hejijunhao/statusreport/internal/connector/generic"
	_ "github.com/hejijunhao/statusreport/internal/connector/statushtml"
	_ "github.com/hejijunhao/statusreport/internal/connector/statuspage"
)

var (
	rangeStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rangeEnd   = time.Date(2024, 3, 31, 23, 59, 59, 0, time.UTC)
)

type apiIncident struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Impact     string `json:"impact"`
	CreatedAt  string `json:"created_at"`
	StartedAt  string `json:"started_at"`
	ResolvedAt string `json:"resolved_at,omitempty"`
}

func incident(id, name, impact string, start time.Time, dur time.Duration) apiIncident {
	inc := apiIncident{
		ID:        id,
		Name:      name,
		Status:    "resolved",
		Impact:    impact,
		CreatedAt: start.Format(time.RFC3339),
		StartedAt: start.Format(time.RFC3339),
	}
	if dur > 0 {
		inc.ResolvedAt = start.Add(dur).Format(time.RFC3339)
	}
	return inc
}

// statusPage serves the Statuspage v2 endpoints and honors from/to.
type statusPage struct {
	mu        sync.Mutex
	incidents []apiIncident
	calls     atomic.Int32
}

func (s *statusPage) set(incs ...apiIncident) {
	s.mu.Lock()
	s.incidents = incs
	s.mu.Unlock()
}

func (s *statusPage) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.calls.Add(1)
	switch r.URL.Path {
	case "/api/v2/status.json":
		w.Write([]byte(`{"page":{"id":"pg1","name":"Test"}}`))
	case "/api/v2/incidents.json":
		from, _ := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
		to, _ := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
		s.mu.Lock()
		out := []apiIncident{}
		for _, inc := range s.incidents {
			t, _ := time.Parse(time.RFC3339, inc.StartedAt)
			if !t.Before(from) && !t.After(to) {
				out = append(out, inc)
			}
		}
		s.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{"incidents": out})
	default:
		http.NotFound(w, r)
	}
}

func newStatusPage(t *testing.T, incs ...apiIncident) (*statusPage, *httptest.Server) {
	t.Helper()
	sp := &statusPage{}
	sp.set(incs...)
	srv := httptest.NewServer(sp)
	t.Cleanup(srv.Close)
	return sp, srv
}

func acmeIncidents() []apiIncident {
	return []apiIncident{
		incident("a1", "Login failures for SSO users", "major", time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC), 2*time.Hour),
		incident("a2", "DNS resolution errors", "critical", time.Date(2024, 2, 10, 8, 0, 0, 0, time.UTC), 4*time.Hour),
		incident("a3", "Database latency elevated", "minor", time.Date(2024, 3, 2, 14, 0, 0, 0, time.UTC), 6*time.Hour),
	}
}

func testConfig() Config {
	return Config{
		Fetch:     connector.Options{Timeout: 5 * time.Second, MaxRetries: 0, Backoff: time.Millisecond},
		Vendor:    connector.VendorAuto,
		FetchRate: 1000,
		Engine: engine.Config{
			Normalize:      normalize.Config{DedupWindow: time.Hour},
			Classifier:     classifier.Config{Workers: 2, CallTimeout: 5 * time.Second},
			TrendThreshold: 0.15,
		},
		RunTimeout:   30 * time.Second,
		ProviderRate: 1000,
	}
}

type captureOutput struct {
	bundles []*model.ReportBundle
	closed  bool
}

func (c *captureOutput) Write(_ context.Context, b *model.ReportBundle) error {
	c.bundles = append(c.bundles, b)
	return nil
}

func (c *captureOutput) Close() error {
	c.closed = true
	return nil
}

func TestGenerateReport_Heuristic(t *testing.T) {
	_, srv := newStatusPage(t, acmeIncidents()...)
	out := &captureOutput{}
	p := New(testConfig(), nil, out)

	b, err := p.GenerateReport(context.Background(), Request{
		Company: "Acme", URL: srv.URL, Start: rangeStart, End: rangeEnd, SkipAI: true,
	})
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	if len(b.Incidents) != 3 {
		t.Fatalf("incidents = %d, want 3", len(b.Incidents))
	}
	if len(b.Results) != len(b.Incidents) {
		t.Fatalf("results = %d, want one per incident", len(b.Results))
	}
	for i, r := range b.Results {
		if r.IncidentID != b.Incidents[i].ID {
			t.Errorf("result %d is for %s, want %s", i, r.IncidentID, b.Incidents[i].ID)
		}
		if r.Method != model.MethodHeuristic {
			t.Errorf("result %d method = %s, want heuristic", i, r.Method)
		}
	}
	if b.Degraded {
		t.Errorf("heuristic-only run should not be degraded: %v", b.DegradedReasons)
	}
	if b.Metrics.MTTR != 4*time.Hour {
		t.Errorf("MTTR = %v, want 4h", b.Metrics.MTTR)
	}
	if b.RunID == "" {
		t.Error("expected a run id")
	}
	if len(b.NewIncidents) != 0 {
		t.Errorf("first run should not report new incidents, got %v", b.NewIncidents)
	}
	if len(out.bundles) != 1 || out.bundles[0] != b {
		t.Fatalf("output received %d bundles", len(out.bundles))
	}
}

func TestGenerateReport_NewIncidentsAcrossRuns(t *testing.T) {
	sp, srv := newStatusPage(t, acmeIncidents()...)
	p := New(testConfig(), store.NewMemory(), nil)
	req := Request{Company: "Acme", URL: srv.URL, Start: rangeStart, End: rangeEnd, SkipAI: true}

	if _, err := p.GenerateReport(context.Background(), req); err != nil {
		t.Fatalf("first run: %v", err)
	}
	sp.set(append(acmeIncidents(),
		incident("a4", "Webhook delivery delayed", "minor", time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC), time.Hour))...)

	b, err := p.GenerateReport(context.Background(), req)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(b.NewIncidents) != 1 {
		t.Fatalf("new incidents = %v, want 1", b.NewIncidents)
	}
	if got := b.NewIncidents[0]; got != b.Incidents[3].ID {
		t.Errorf("new incident = %s, want %s", got, b.Incidents[3].ID)
	}
}

func TestGenerateReport_ProviderFailureDegrades(t *testing.T) {
	_, srv := newStatusPage(t, acmeIncidents()...)
	var calls atomic.Int32
	failing := provider.Func(func(ctx context.Context, req provider.Request) (string, error) {
		calls.Add(1)
		return "", errs.NewProviderError("fake", errs.Unavailable, errors.New("down"))
	})
	cfg := testConfig()
	cfg.DefaultProvider = "fake"
	p := New(cfg, nil, nil, WithProvider("fake", failing))

	b, err := p.GenerateReport(context.Background(), Request{Company: "Acme", URL: srv.URL, Start: rangeStart, End: rangeEnd})
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	if !b.Degraded {
		t.Fatal("expected degraded report")
	}
	if len(b.DegradedReasons) != 2 {
		t.Errorf("reasons = %v, want taxonomy and classification", b.DegradedReasons)
	}
	for _, r := range b.Results {
		if r.Method != model.MethodHeuristic {
			t.Errorf("%s: method = %s, want heuristic", r.IncidentID, r.Method)
		}
	}
	if calls.Load() == 0 {
		t.Error("provider was never called")
	}
}

func TestGenerateReport_Peers(t *testing.T) {
	_, target := newStatusPage(t, acmeIncidents()...)
	_, good := newStatusPage(t,
		incident("b1", "DNS resolution errors", "major", time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), time.Hour),
	)
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer broken.Close()

	p := New(testConfig(), nil, nil)
	b, err := p.GenerateReport(context.Background(), Request{
		Company: "Acme", URL: target.URL, Start: rangeStart, End: rangeEnd, SkipAI: true,
		Peers: []Peer{{Name: "Globex", URL: good.URL}, {Name: "Initech", URL: broken.URL}},
	})
	if err != nil {
		t.Fatalf("GenerateReport: %v", err)
	}
	if len(b.Peers) != 2 {
		t.Fatalf("peer rows = %d, want 2", len(b.Peers))
	}
	globex, initech := b.Peers[0], b.Peers[1]
	if globex.Missing || globex.Metrics == nil {
		t.Fatalf("Globex should have metrics: %+v", globex)
	}
	if globex.IncidentDelta != -2 {
		t.Errorf("Globex incident delta = %d, want -2", globex.IncidentDelta)
	}
	if globex.MTTRDelta != time.Hour-4*time.Hour {
		t.Errorf("Globex MTTR delta = %v, want -3h", globex.MTTRDelta)
	}
	if !initech.Missing || initech.Reason == "" {
		t.Errorf("Initech should be a missing row with a reason: %+v", initech)
	}
	var peerWarning bool
	for _, w := range b.Warnings {
		if w.Stage == "peers" && w.Subject == "Initech" {
			peerWarning = true
		}
	}
	if !peerWarning {
		t.Error("expected a peers warning for Initech")
	}
}

func TestGenerateReport_FeedbackOverride(t *testing.T) {
	_, srv := newStatusPage(t, acmeIncidents()...)
	p := New(testConfig(), nil, nil)
	err := p.Feedback().Record(context.Background(), model.TrainingFeedback{
		Company:     "Acme",
		IncidentKey: "id:a3",
		Category:    model.Category{ID: "network-connectivity", Name: "Network Connectivity"},
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	req := Request{Company: "Acme", URL: srv.URL, Start: rangeStart, End: rangeEnd, SkipAI: true}
	for run := 0; run < 2; run++ {
		b, err := p.GenerateReport(context.Background(), req)
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		var found bool
		for i, inc := range b.Incidents {
			if inc.Key != "id:a3" {
				continue
			}
			found = true
			r := b.Results[i]
			if r.Method != model.MethodManualOverride || r.CategoryID != "network-connectivity" {
				t.Errorf("run %d: result = %+v, want manual override to network-connectivity", run, r)
			}
		}
		if !found {
			t.Fatalf("run %d: incident id:a3 missing", run)
		}
	}
}

func TestGenerateReport_ConfigErrorsBeforeFetch(t *testing.T) {
	sp, srv := newStatusPage(t, acmeIncidents()...)
	p := New(testConfig(), nil, nil)

	tests := []struct {
		name string
		req  Request
	}{
		{"no company", Request{URL: srv.URL, Start: rangeStart, End: rangeEnd}},
		{"reversed range", Request{Company: "Acme", URL: srv.URL, Start: rangeEnd, End: rangeStart}},
		{"peer is target", Request{Company: "Acme", URL: srv.URL, Start: rangeStart, End: rangeEnd,
			Peers: []Peer{{Name: "Acme", URL: srv.URL}}}},
		{"unknown provider", Request{Company: "Acme", URL: srv.URL, Start: rangeStart, End: rangeEnd, Provider: "nope"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.GenerateReport(context.Background(), tt.req)
			if !errors.Is(err, errs.ErrConfig) {
				t.Fatalf("err = %v, want ErrConfig", err)
			}
		})
	}
	if n := sp.calls.Load(); n != 0 {
		t.Errorf("server saw %d requests, want none", n)
	}
}

func TestGenerateReport_InvalidURLIsConfigError(t *testing.T) {
	p := New(testConfig(), nil, nil)
	_, err := p.GenerateReport(context.Background(), Request{
		Company: "Acme", URL: "not a url", Start: rangeStart, End: rangeEnd, SkipAI: true,
	})
	if !errors.Is(err, errs.ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
}

func TestGenerateReport_NoIncidents(t *testing.T) {
	_, srv := newStatusPage(t)
	out := &captureOutput{}
	p := New(testConfig(), nil, out)

	_, err := p.GenerateReport(context.Background(), Request{
		Company: "Acme", URL: srv.URL, Start: rangeStart, End: rangeEnd, SkipAI: true,
	})
	if !errors.Is(err, errs.ErrNoIncidents) {
		t.Fatalf("err = %v, want ErrNoIncidents", err)
	}
	if len(out.bundles) != 0 {
		t.Error("no bundle should be emitted")
	}
}

func TestGenerateReport_MissingAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultProvider = "anthropic"
	cfg.Providers = map[string]provider.Config{"anthropic": {Model: "m"}}
	p := New(cfg, nil, nil)

	_, err := p.GenerateReport(context.Background(), Request{
		Company: "Acme", URL: "https://status.example.com", Start: rangeStart, End: rangeEnd,
	})
	if err == nil || !errors.Is(err, errs.ErrConfig) || !strings.Contains(err.Error(), "anthropic") {
		t.Fatalf("err = %v, want ErrConfig naming the provider", err)
	}
}

func TestClose(t *testing.T) {
	out := &captureOutput{}
	p := New(testConfig(), store.NewMemory(), out)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !out.closed {
		t.Error("output not closed")
	}
}

func TestFromConfig(t *testing.T) {
	v := config.NewViper()
	v.Set("ai.provider", "openai")
	v.Set("ai.openai_api_key", "sk-test")
	v.Set("ai.base_url", "http://localhost:9999")
	v.Set("fetch.vendor", "generic")
	cfg := FromConfig(config.FromViper(v))

	if cfg.DefaultProvider != "openai" || cfg.Vendor != "generic" {
		t.Fatalf("unexpected config: provider=%q vendor=%q", cfg.DefaultProvider, cfg.Vendor)
	}
	oa := cfg.Providers["openai"]
	if oa.APIKey != "sk-test" || oa.BaseURL != "http://localhost:9999" || oa.Model != "gpt-4o" {
		t.Errorf("openai config = %+v", oa)
	}
	if cfg.Providers["anthropic"].BaseURL != "" {
		t.Error("base url override should only apply to the selected provider")
	}
	if cfg.Engine.Normalize.DedupWindow != time.Hour || cfg.Engine.TrendThreshold != 0.15 {
		t.Errorf("engine defaults not carried: %+v", cfg.Engine)
	}
}

func TestFromConfig_TokenLimits(t *testing.T) {
	v := config.NewViper()
	v.Set("ai.token_budget", 2000)
	v.Set("ai.max_tokens", 3000)
	v.Set("ai.classify_max_tokens", 512)
	cfg := FromConfig(config.FromViper(v))

	if cfg.Engine.TokenBudget != 2000 || cfg.Engine.MaxTokens != 3000 {
		t.Errorf("taxonomy limits = %d/%d, want 2000/3000", cfg.Engine.TokenBudget, cfg.Engine.MaxTokens)
	}
	if cfg.Engine.Classifier.MaxTokens != 512 {
		t.Errorf("classifier MaxTokens = %d, want 512", cfg.Engine.Classifier.MaxTokens)
	}
}

func TestFromConfig_NoKeyRunsHeuristic(t *testing.T) {
	v := config.NewViper()
	v.Set("ai.provider", "anthropic")
	v.Set("ai.anthropic_api_key", "")
	cfg := FromConfig(config.FromViper(v))
	if cfg.DefaultProvider != "" {
		t.Fatalf("DefaultProvider = %q, want heuristic-only", cfg.DefaultProvider)
	}
}
