// Package rounds drives one evaluation round end to end: lifecycle, scenario
// iteration, grader fan-out, consensus, persistence, and progress emission.
package rounds

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"safety-eval-backend/internal/consensus"
	"safety-eval-backend/internal/db"
	"safety-eval-backend/internal/grading"
	"safety-eval-backend/internal/progress"
	"safety-eval-backend/internal/respsource"
)

// Store is the slice of persistence the runner consumes.
type Store interface {
	CreateRound(ctx context.Context, orgID string, roundNumber int, description string) (*db.EvaluationRound, error)
	CompleteRound(ctx context.Context, roundID string) error
	FailRound(ctx context.Context, roundID string) error
	ScenariosForOrg(ctx context.Context, orgID string) ([]db.Scenario, error)
	InsertResult(ctx context.Context, r *db.EvaluationResult) error
	GradeCounts(ctx context.Context, roundID string) (map[string]int, error)
}

type Runner struct {
	Store    Store
	Resolver *respsource.Resolver
	Panel    []grading.Grader
	Sink     progress.Sink
}

func NewRunner(store Store, resolver *respsource.Resolver, panel []grading.Grader, sink progress.Sink) (*Runner, error) {
	if len(panel) != grading.PanelSize {
		return nil, fmt.Errorf("panel must have exactly %d graders, got %d", grading.PanelSize, len(panel))
	}
	if sink == nil {
		sink = progress.Noop{}
	}
	return &Runner{Store: store, Resolver: resolver, Panel: panel, Sink: sink}, nil
}

// Run executes one evaluation round. Scenarios are processed strictly in
// catalog order; within each scenario the panel is dispatched concurrently on
// the identical input and joined before consensus. Any store or catalog error
// marks the round failed (terminal) and is returned to the caller; there is
// no automatic retry and no mid-run cancellation.
func (r *Runner) Run(ctx context.Context, orgID string, roundNumber int, description string) (*db.EvaluationRound, error) {
	round, err := r.Store.CreateRound(ctx, orgID, roundNumber, description)
	if err != nil {
		return nil, fmt.Errorf("create round: %w", err)
	}
	log.Printf("round %s: started (org %s, round %d)", round.ID, orgID, roundNumber)

	if err := r.run(ctx, round, orgID, roundNumber); err != nil {
		if ferr := r.Store.FailRound(ctx, round.ID); ferr != nil {
			log.Printf("round %s: recording failure: %v", round.ID, ferr)
		}
		r.Sink.Error(err.Error())
		return round, fmt.Errorf("round %s: %w", round.ID, err)
	}

	if err := r.Store.CompleteRound(ctx, round.ID); err != nil {
		return round, fmt.Errorf("complete round %s: %w", round.ID, err)
	}
	return round, nil
}

func (r *Runner) run(ctx context.Context, round *db.EvaluationRound, orgID string, roundNumber int) error {
	scenarios, err := r.Store.ScenariosForOrg(ctx, orgID)
	if err != nil {
		return fmt.Errorf("load scenarios: %w", err)
	}
	total := len(scenarios)
	r.Sink.Started(total)

	for i := range scenarios {
		scen := &scenarios[i]
		resp := r.Resolver.Resolve(ctx, scen, orgID, roundNumber)

		verdicts := r.gradeAll(ctx, grading.ScenarioContext{
			Category:         scen.Category,
			SubCategory:      scen.SubCategory,
			Methodology:      scen.Methodology,
			InputPrompt:      scen.InputPrompt,
			ExpectedBehavior: scen.ExpectedBehavior,
		}, resp)

		grades := make([]grading.Grade, len(verdicts))
		for j, v := range verdicts {
			grades[j] = v.Grade
		}
		final, confidence := consensus.Aggregate(grades)

		result := &db.EvaluationResult{
			ID:              uuid.NewString(),
			RoundID:         round.ID,
			ScenarioID:      scen.ID,
			SystemResponse:  resp.Text,
			FinalGrade:      string(final),
			ConfidenceScore: confidence,

			Judge1Grade:          string(verdicts[0].Grade),
			Judge1Reasoning:      verdicts[0].Reasoning,
			Judge1Recommendation: verdicts[0].Recommendation,
			Judge1Model:          verdicts[0].Grader,

			Judge2Grade:          string(verdicts[1].Grade),
			Judge2Reasoning:      verdicts[1].Reasoning,
			Judge2Recommendation: verdicts[1].Recommendation,
			Judge2Model:          verdicts[1].Grader,

			Judge3Grade:          string(verdicts[2].Grade),
			Judge3Reasoning:      verdicts[2].Reasoning,
			Judge3Recommendation: verdicts[2].Recommendation,
			Judge3Model:          verdicts[2].Grader,

			CreatedAt: time.Now().UTC(),
		}
		if err := r.Store.InsertResult(ctx, result); err != nil {
			return fmt.Errorf("persist result for scenario %s: %w", scen.ID, err)
		}
		r.Sink.Progress(i+1, total, scen.Category, final, confidence)
	}
	r.Sink.Completed(round.ID, total)
	return nil
}

// gradeAll fans the panel out concurrently and joins all of it; no partial
// panels are admitted. Graders never fail, so there is no error path here.
func (r *Runner) gradeAll(ctx context.Context, scen grading.ScenarioContext, resp grading.Response) []grading.Verdict {
	verdicts := make([]grading.Verdict, len(r.Panel))
	var wg sync.WaitGroup
	for i, grader := range r.Panel {
		wg.Add(1)
		go func(i int, grader grading.Grader) {
			defer wg.Done()
			verdicts[i] = grader.Evaluate(ctx, scen, resp)
		}(i, grader)
	}
	wg.Wait()
	return verdicts
}

// Stats summarizes a round: total, pass count/rate, severity breakdown.
type Stats struct {
	RoundID           string         `json:"round_id"`
	Total             int            `json:"total"`
	PassCount         int            `json:"pass_count"`
	PassRate          float64        `json:"pass_rate"`
	SeverityBreakdown map[string]int `json:"severity_breakdown"`
}

func RoundStats(ctx context.Context, store Store, roundID string) (*Stats, error) {
	counts, err := store.GradeCounts(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("grade counts: %w", err)
	}
	st := &Stats{RoundID: roundID, SeverityBreakdown: counts}
	for grade, n := range counts {
		st.Total += n
		if grade == string(grading.GradePass) {
			st.PassCount += n
		}
	}
	if st.Total > 0 {
		st.PassRate = math.Round(float64(st.PassCount)/float64(st.Total)*1000) / 10
	}
	return st, nil
}
