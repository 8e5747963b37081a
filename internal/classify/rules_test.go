package classify

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"ticketrelay/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestRules_UrgentLogin(t *testing.T) {
	r := NewRules(DefaultRules(), testLogger())
	out := r.Classify(context.Background(), "urgent: can't login")

	want := domain.Classification{
		Category: domain.CategoryLoginIssue,
		Priority: domain.PriorityHigh,
		Team:     domain.TeamGeneral,
	}
	if out.Result != want {
		t.Fatalf("got %+v, want %+v", out.Result, want)
	}
	if out.Fallback() {
		t.Fatal("rule classification never reports a fallback error")
	}
}

func TestRules_UrgentAlwaysHigh(t *testing.T) {
	r := NewRules(DefaultRules(), testLogger())
	for _, text := range []string{
		"urgent",
		"this is urgent, swag never arrived",
		"sponsor question, not urgent really",
		"nothing matches but urgent anyway",
	} {
		if got := r.Classify(context.Background(), text).Result.Priority; got != domain.PriorityHigh {
			t.Errorf("%q: priority = %s, want High", text, got)
		}
	}
}

func TestRules_CaseSensitive(t *testing.T) {
	r := NewRules(DefaultRules(), testLogger())
	out := r.Classify(context.Background(), "URGENT: LOGIN broken")
	if out.Result != domain.FallbackClassification() {
		t.Fatalf("uppercase keywords must not match, got %+v", out.Result)
	}
}

func TestRules_FirstMatchWins(t *testing.T) {
	r := NewRules(DefaultRules(), testLogger())
	out := r.Classify(context.Background(), "my swag shipment and my login both failed")
	if out.Result.Category != domain.CategoryLoginIssue {
		t.Fatalf("expected the earlier rule to win, got %s", out.Result.Category)
	}
}

func TestRules_NoMatchKeepsFallback(t *testing.T) {
	r := NewRules(DefaultRules(), testLogger())
	out := r.Classify(context.Background(), "hello there")
	if out.Result != domain.FallbackClassification() {
		t.Fatalf("expected fallback triple, got %+v", out.Result)
	}
}

func TestRules_TeamFromRule(t *testing.T) {
	set := RuleSet{Categories: []Rule{
		{Category: domain.CategorySponsorship, Team: domain.TeamSponsorship, Keywords: []string{"sponsor"}},
	}}
	out := NewRules(set, testLogger()).Classify(context.Background(), "sponsor booth")
	if out.Result.Team != domain.TeamSponsorship {
		t.Fatalf("expected Sponsorship team, got %s", out.Result.Team)
	}
}

func TestLoadRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	os.WriteFile(path, []byte(`
urgent: ["urgent", "asap"]
categories:
  - category: Swag Delay
    team: Logistics
    keywords: ["hoodie"]
`), 0o644)

	set, err := LoadRules(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	out := NewRules(set, testLogger()).Classify(context.Background(), "hoodie missing asap")
	want := domain.Classification{Category: domain.CategorySwagDelay, Priority: domain.PriorityHigh, Team: domain.TeamLogistics}
	if out.Result != want {
		t.Fatalf("got %+v, want %+v", out.Result, want)
	}
}

func TestLoadRules_RejectsUnknownValues(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"category": "categories:\n  - category: Billing\n    keywords: [invoice]\n",
		"team":     "categories:\n  - category: Other\n    team: Finance\n    keywords: [invoice]\n",
		"keywords": "categories:\n  - category: Other\n",
		"field":    "priorities: []\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			os.WriteFile(path, []byte(body), 0o644)
			if _, err := LoadRules(path); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
