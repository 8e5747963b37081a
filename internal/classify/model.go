package classify

import (
	"context"
	"fmt"
	"log/slog"

	"ticketrelay/internal/domain"
)

const classifyPrompt = `Categorize the following support ticket:

Message: %q

Return JSON:
{
  "category": "Swag Delay" | "Submission Issue" | "Login Trouble" | "Sponsorship" | "Other",
  "priority": "Critical" | "High" | "Medium" | "Low",
  "team": "Tech Support" | "Sponsorship" | "Logistics" | "General" | "Admin"
}`

// Model classifies messages by asking a text-generation backend for a JSON
// object and validating each field against its closed set.
type Model struct {
	provider domain.Provider
	model    string
	logger   *slog.Logger
}

type ModelConfig struct {
	Provider domain.Provider
	Model    string // optional override of the provider's default model
	Logger   *slog.Logger
}

func NewModel(cfg ModelConfig) *Model {
	return &Model{provider: cfg.Provider, model: cfg.Model, logger: cfg.Logger}
}

func (m *Model) Classify(ctx context.Context, text string) Outcome {
	resp, err := m.provider.Chat(ctx, domain.ChatRequest{
		Messages:   []domain.Message{{Role: "user", Content: fmt.Sprintf(classifyPrompt, text)}},
		Model:      m.model,
		MaxTokens:  256,
		JSONOutput: true,
	})
	if err != nil {
		m.logger.Error("classifier backend failed", "provider", m.provider.Name(), "err", err)
		return Outcome{Result: domain.FallbackClassification(), Err: fmt.Errorf("%s: %w", m.provider.Name(), err)}
	}

	out := ParseAnswer(resp.Content)
	if out.Err != nil {
		m.logger.Warn("classifier answer replaced by fallback",
			"provider", m.provider.Name(), "err", out.Err, "answer", resp.Content)
	}
	return out
}
