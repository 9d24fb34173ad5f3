package taxonomy

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hejijunhao/statusreport/internal/errs"
	"github.com/hejijunhao/statusreport/internal/model"
	"github.com/hejijunhao/statusreport/internal/provider"
)

func incidents(titles ...string) []model.Incident {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Incident, len(titles))
	for i, title := range titles {
		out[i] = model.Incident{
			ID:        fmt.Sprintf("INC-%04d", i+1),
			Title:     title,
			Impact:    model.ImpactMinor,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}
	}
	return out
}

func ids(cats []model.Category) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = c.ID
	}
	return out
}

func TestLibraryUniqueIDs(t *testing.T) {
	seen := map[string]bool{}
	for _, c := range Library() {
		if seen[c.ID] {
			t.Fatalf("duplicate library id %q", c.ID)
		}
		seen[c.ID] = true
		if c.ID == model.OtherCategoryID {
			t.Fatal("library must not contain the catch-all category")
		}
		if len(c.Keywords) == 0 {
			t.Fatalf("library group %q has no keywords", c.ID)
		}
	}
}

func TestMatchWordBoundaries(t *testing.T) {
	c := model.Category{Keywords: []string{"ui", "db", "packet loss", "third-party"}}

	tests := []struct {
		text string
		want []string
	}{
		{"Build pipeline failing", nil},
		{"Dashboard UI not loading", []string{"ui"}},
		{"Elevated PACKET  LOSS in eu-west", []string{"packet loss"}},
		{"Third party payments provider outage", []string{"third-party"}},
		{"Primary DB failover", []string{"db"}},
	}
	for _, tt := range tests {
		got := Match(c, Prepare(tt.text))
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("Match(%q) mismatch (-want +got):\n%s", tt.text, diff)
		}
	}
}

func TestHeuristicSelectsMatchingGroups(t *testing.T) {
	incs := incidents(
		"Elevated API error rates",
		"Login failures for SSO users",
		"Something odd happened",
	)
	cats, err := Heuristic{}.Generate(context.Background(), Corpus{Company: "Acme", Incidents: incs})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"authentication-authorization", "api-service-degradation", model.OtherCategoryID}
	if diff := cmp.Diff(want, ids(cats)); diff != "" {
		t.Fatalf("category ids mismatch (-want +got):\n%s", diff)
	}
	if cats[1].Exemplars[0] != "INC-0001" {
		t.Fatalf("expected INC-0001 as exemplar, got %v", cats[1].Exemplars)
	}
	for _, c := range cats {
		if c.Method != model.MethodHeuristic {
			t.Fatalf("expected heuristic method on %q, got %q", c.ID, c.Method)
		}
	}
}

func TestHeuristicDeterministic(t *testing.T) {
	incs := incidents("Database latency", "DNS resolution failures", "Scheduled maintenance", "Webhook delivery delayed")
	c := Corpus{Company: "Acme", Incidents: incs}

	first, _ := Heuristic{}.Generate(context.Background(), c)
	for i := 0; i < 5; i++ {
		again, _ := Heuristic{}.Generate(context.Background(), c)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("run %d differs (-first +again):\n%s", i, diff)
		}
	}
}

func TestHeuristicExemplarCap(t *testing.T) {
	incs := incidents("db down", "db slow", "db failover", "db restored")
	cats, _ := Heuristic{}.Generate(context.Background(), Corpus{Incidents: incs})
	for _, c := range cats {
		if c.ID == "database-storage" && len(c.Exemplars) != maxExemplars {
			t.Fatalf("expected %d exemplars, got %v", maxExemplars, c.Exemplars)
		}
	}
}

func TestHeuristicSeedsAlwaysIncluded(t *testing.T) {
	seeds := []model.Category{
		{ID: "billing", Name: "Billing", Keywords: []string{"invoice"}, Method: model.MethodManualOverride},
		{ID: "security", Name: "Security", Keywords: []string{"phishing"}, Method: model.MethodManualOverride},
	}
	cats, _ := Heuristic{}.Generate(context.Background(), Corpus{
		Incidents: incidents("Nothing matches here"),
		Seeds:     seeds,
	})

	want := []string{"billing", "security", model.OtherCategoryID}
	if diff := cmp.Diff(want, ids(cats)); diff != "" {
		t.Fatalf("category ids mismatch (-want +got):\n%s", diff)
	}
	if !cats[0].Seeded || !cats[1].Seeded {
		t.Fatal("expected seeds to be marked")
	}
}

func TestMergeSeedsReplacesInPlace(t *testing.T) {
	cats := []model.Category{
		{ID: "network-connectivity", Description: "net", Keywords: []string{"dns"}},
		{ID: "database-storage", Keywords: []string{"db"}},
	}
	seeds := []model.Category{{ID: "network-connectivity", Name: "Network", Keywords: []string{"BGP", "dns"}}}

	got := MergeSeeds(cats, seeds)
	want := []model.Category{
		{ID: "network-connectivity", Name: "Network", Description: "net", Keywords: []string{"dns", "bgp"}, Seeded: true},
		{ID: "database-storage", Keywords: []string{"db"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("MergeSeeds mismatch (-want +got):\n%s", diff)
	}
	if cats[0].Seeded {
		t.Fatal("input slice must not be modified")
	}
}

func TestAIGenerate(t *testing.T) {
	var prompt string
	p := provider.Func(func(_ context.Context, req provider.Request) (string, error) {
		prompt = req.Prompt
		return "```json\n[" +
			`{"id":"Queue Backlog","name":"Queue backlog","description":"jobs stuck","keywords":["queue"]},` +
			`{"id":"other","name":"Misc","description":"","keywords":[]},` +
			`{"id":"dns","name":"DNS","description":"","keywords":["dns"]}` +
			"]\n```", nil
	})
	incs := incidents("Job queue backlog", "DNS outage")
	cats, err := AI{Provider: p}.Generate(context.Background(), Corpus{Company: "Acme", Incidents: incs})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"queue-backlog", "dns", model.OtherCategoryID}
	if diff := cmp.Diff(want, ids(cats)); diff != "" {
		t.Fatalf("category ids mismatch (-want +got):\n%s", diff)
	}
	if cats[2].Name != "Misc" {
		t.Fatalf("expected provider's other category kept, got %+v", cats[2])
	}
	if cats[0].Method != model.MethodAI || cats[0].Exemplars[0] != "INC-0001" {
		t.Fatalf("unexpected first category %+v", cats[0])
	}
	if !strings.Contains(prompt, "Acme") || !strings.Contains(prompt, "[MINOR] DNS outage") {
		t.Fatalf("prompt missing corpus details:\n%s", prompt)
	}
}

func TestAIGenerateInvalid(t *testing.T) {
	tests := []struct {
		name string
		out  string
	}{
		{"prose", "I could not find any patterns."},
		{"empty list", "[]"},
		{"duplicate ids", `[{"id":"a","name":"A"},{"id":"A","name":"A again"}]`},
		{"missing id", `[{"name":"Nameless"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := provider.Func(func(context.Context, provider.Request) (string, error) { return tt.out, nil })
			_, err := AI{Provider: p}.Generate(context.Background(), Corpus{Incidents: incidents("x")})
			if !errs.IsProviderKind(err, errs.InvalidResponse) {
				t.Fatalf("expected invalid response, got %v", err)
			}
		})
	}
}

func TestAIGenerateWrappedObject(t *testing.T) {
	p := provider.Func(func(context.Context, provider.Request) (string, error) {
		return `{"categories":[{"id":"api","name":"API"}]}`, nil
	})
	cats, err := AI{Provider: p}.Generate(context.Background(), Corpus{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff([]string{"api", model.OtherCategoryID}, ids(cats)); diff != "" {
		t.Fatalf("category ids mismatch (-want +got):\n%s", diff)
	}
}

func TestAIPromptBudget(t *testing.T) {
	titles := make([]string, 200)
	for i := range titles {
		titles[i] = fmt.Sprintf("Incident number %d with a moderately long descriptive title", i)
	}
	prompt := AI{TokenBudget: 100}.prompt(Corpus{Company: "Acme", Incidents: incidents(titles...)})
	if !strings.Contains(prompt, "Total incidents: 200 (showing") {
		t.Fatalf("expected totals line, got:\n%s", prompt[:200])
	}
	if strings.Contains(prompt, "Incident number 199 ") {
		t.Fatal("expected prompt listing to be cut by the token budget")
	}
}

func TestSlug(t *testing.T) {
	if got := Slug("  Database / Storage Issues "); got != "database-storage-issues" {
		t.Fatalf("unexpected slug %q", got)
	}
}
