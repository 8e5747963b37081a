package classify

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"ticketrelay/internal/domain"
)

// Rule maps keywords to a category, and optionally a team.
type Rule struct {
	Category domain.Category `yaml:"category"`
	Team     domain.Team     `yaml:"team,omitempty"`
	Keywords []string        `yaml:"keywords"`
}

// RuleSet is an ordered keyword rule table. Rules are checked in order and
// the first match wins. Matching is case-sensitive.
type RuleSet struct {
	Urgent     []string `yaml:"urgent"`
	Categories []Rule   `yaml:"categories"`
}

// DefaultRules returns the built-in keyword table.
func DefaultRules() RuleSet {
	return RuleSet{
		Urgent: []string{"urgent"},
		Categories: []Rule{
			{Category: domain.CategoryLoginIssue, Keywords: []string{"login", "log in", "password"}},
			{Category: domain.CategorySubmissionIssue, Keywords: []string{"submit", "submission"}},
			{Category: domain.CategorySwagDelay, Keywords: []string{"swag", "t-shirt"}},
			{Category: domain.CategorySponsorship, Keywords: []string{"sponsor"}},
		},
	}
}

// LoadRules reads a YAML rule file and checks every value against its closed set.
func LoadRules(path string) (RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("read rules %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var set RuleSet
	if err := dec.Decode(&set); err != nil {
		return RuleSet{}, fmt.Errorf("parse rules %s: %w", path, err)
	}
	if err := set.Validate(); err != nil {
		return RuleSet{}, fmt.Errorf("rules %s: %w", path, err)
	}
	return set, nil
}

// Validate rejects rules naming values outside the closed sets.
func (s RuleSet) Validate() error {
	var errs []string
	for i, r := range s.Categories {
		if _, ok := domain.ParseCategory(string(r.Category)); !ok {
			errs = append(errs, fmt.Sprintf("categories[%d]: unknown category %q", i, r.Category))
		}
		if r.Team != "" {
			if _, ok := domain.ParseTeam(string(r.Team)); !ok {
				errs = append(errs, fmt.Sprintf("categories[%d]: unknown team %q", i, r.Team))
			}
		}
		if len(r.Keywords) == 0 {
			errs = append(errs, fmt.Sprintf("categories[%d]: no keywords", i))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Rules is the deterministic keyword classifier.
type Rules struct {
	set    RuleSet
	logger *slog.Logger
}

func NewRules(set RuleSet, logger *slog.Logger) *Rules {
	return &Rules{set: set, logger: logger}
}

// Classify never returns an error: unmatched fields keep their fallback.
func (r *Rules) Classify(_ context.Context, text string) Outcome {
	result := domain.FallbackClassification()

	if containsAny(text, r.set.Urgent) {
		result.Priority = domain.PriorityHigh
	}

	for _, rule := range r.set.Categories {
		if containsAny(text, rule.Keywords) {
			result.Category = rule.Category
			if rule.Team != "" {
				result.Team = rule.Team
			}
			break
		}
	}

	r.logger.Debug("rule classification",
		"category", result.Category, "priority", result.Priority, "team", result.Team)
	return Outcome{Result: result}
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
