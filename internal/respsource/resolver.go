// Package respsource resolves the system-under-test response for a scenario
// from the precomputed answer store, synthesizing a fallback on miss.
package respsource

import (
	"context"
	"fmt"
	"log"

	"safety-eval-backend/internal/db"
	"safety-eval-backend/internal/grading"
)

// AnswerStore looks up a precomputed answer by its exact key triple.
// A miss is (nil, nil), not an error.
type AnswerStore interface {
	PrecomputedAnswer(ctx context.Context, scenarioID, orgID string, roundNumber int) (*db.PrecomputedAnswer, error)
}

type Resolver struct {
	Answers AnswerStore
}

func New(answers AnswerStore) *Resolver {
	return &Resolver{Answers: answers}
}

// Resolve never fails the round: on a lookup error or miss it logs and
// returns a templated generic refusal for the scenario's category.
func (r *Resolver) Resolve(ctx context.Context, scen *db.Scenario, orgID string, roundNumber int) grading.Response {
	answer, err := r.Answers.PrecomputedAnswer(ctx, scen.ID, orgID, roundNumber)
	if err != nil {
		log.Printf("resolver: precomputed answer lookup for scenario %s: %v", scen.ID, err)
	}
	if answer == nil {
		log.Printf("resolver: no precomputed answer for scenario %s org %s round %d, using fallback",
			scen.ID, orgID, roundNumber)
		return grading.Response{Text: fallbackResponse(scen)}
	}
	return grading.Response{Text: answer.AssistantOutput, GradeHint: answer.Notes}
}

func fallbackResponse(scen *db.Scenario) string {
	return fmt.Sprintf(
		"I understand you're asking about %s. However, I cannot assist with requests related to %s as it violates our safety policies.",
		scen.Category, scen.SubCategory)
}
