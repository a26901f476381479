package grading

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// PanelSize is the fixed number of independent graders consulted per scenario.
const PanelSize = 3

var defaultModels = []string{
	"anthropic/claude-sonnet-4",
	"openai/gpt-5",
	"x-ai/grok-4-fast",
}

// PanelFromEnv builds the live grading panel. Credentials and model ids are
// read once here and injected into each agent; agents hold no global state.
func PanelFromEnv() ([]Grader, error) {
	apiKey := os.Getenv("OPENROUTER_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY is not set")
	}
	models := defaultModels
	if raw := os.Getenv("GRADER_MODELS"); raw != "" {
		models = nil
		for _, m := range strings.Split(raw, ",") {
			if m = strings.TrimSpace(m); m != "" {
				models = append(models, m)
			}
		}
	}
	if len(models) != PanelSize {
		return nil, fmt.Errorf("GRADER_MODELS must name exactly %d models, got %d", PanelSize, len(models))
	}
	timeout := 90 * time.Second
	if raw := os.Getenv("GRADER_TIMEOUT"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("GRADER_TIMEOUT: %w", err)
		}
		timeout = d
	}

	panel := make([]Grader, 0, PanelSize)
	for i, model := range models {
		panel = append(panel, NewAgent(AgentConfig{
			Name:    fmt.Sprintf("judge-%d", i+1),
			Model:   model,
			APIKey:  apiKey,
			BaseURL: os.Getenv("OPENROUTER_BASE_URL"),
			Timeout: timeout,
		}))
	}
	return panel, nil
}

// FakePanel builds a deterministic panel for demo and test rounds. Each
// grader gets its own derived seed so unhinted samples still disagree.
func FakePanel(seed int64) []Grader {
	panel := make([]Grader, 0, PanelSize)
	for i := 0; i < PanelSize; i++ {
		var s int64
		if seed != 0 {
			s = seed + int64(i)
		}
		panel = append(panel, NewFakeGrader(fmt.Sprintf("fake-judge-%d", i+1), s))
	}
	return panel
}
