package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Store holds every query the evaluation pipeline runs against Postgres.
// Writes within one round never overlap (the runner loop is sequential), so
// no advisory locking is needed; rounds for different orgs write in parallel.
type Store struct {
	DB *sqlx.DB
}

func NewStore(dbx *sqlx.DB) *Store {
	return &Store{DB: dbx}
}

// --- organizations / scenarios (catalog is owned elsewhere; read-mostly) ---

func (s *Store) OrganizationByID(ctx context.Context, id string) (*Organization, error) {
	var org Organization
	err := s.DB.GetContext(ctx, &org, `select * from organizations where id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (s *Store) InsertOrganization(ctx context.Context, org *Organization) error {
	_, err := s.DB.ExecContext(ctx,
		`insert into organizations(id, name, business_type) values($1,$2,$3)`,
		org.ID, org.Name, org.BusinessType)
	return err
}

// ScenariosForOrg snapshots the catalog for the org's business type in
// stable catalog order. The runner iterates exactly this slice.
func (s *Store) ScenariosForOrg(ctx context.Context, orgID string) ([]Scenario, error) {
	var scens []Scenario
	err := s.DB.SelectContext(ctx, &scens,
		`select sc.* from scenarios sc
		 join organizations o on o.business_type = sc.business_type
		 where o.id=$1
		 order by sc.created_at, sc.id`, orgID)
	return scens, err
}

func (s *Store) InsertScenario(ctx context.Context, sc *Scenario) error {
	_, err := s.DB.ExecContext(ctx,
		`insert into scenarios(id, business_type, category, sub_category, methodology,
		   input_prompt, expected_behavior, tactics, use_case, created_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		sc.ID, sc.BusinessType, sc.Category, sc.SubCategory, sc.Methodology,
		sc.InputPrompt, sc.ExpectedBehavior, sc.Tactics, sc.UseCase, sc.CreatedAt)
	return err
}

// --- evaluation rounds ---

func (s *Store) CreateRound(ctx context.Context, orgID string, roundNumber int, description string) (*EvaluationRound, error) {
	r := &EvaluationRound{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		RoundNumber:    roundNumber,
		Description:    description,
		Status:         RoundRunning,
		StartedAt:      time.Now().UTC(),
	}
	_, err := s.DB.ExecContext(ctx,
		`insert into evaluation_rounds(id, organization_id, round_number, description, status, started_at)
		 values($1,$2,$3,$4,$5,$6)`,
		r.ID, r.OrganizationID, r.RoundNumber, r.Description, r.Status, r.StartedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Store) CompleteRound(ctx context.Context, roundID string) error {
	return s.setRoundTerminal(ctx, roundID, RoundCompleted)
}

func (s *Store) FailRound(ctx context.Context, roundID string) error {
	return s.setRoundTerminal(ctx, roundID, RoundFailed)
}

func (s *Store) setRoundTerminal(ctx context.Context, roundID, status string) error {
	res, err := s.DB.ExecContext(ctx,
		`update evaluation_rounds set status=$1, completed_at=$2 where id=$3 and status=$4`,
		status, time.Now().UTC(), roundID, RoundRunning)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("round %s is not running", roundID)
	}
	return nil
}

func (s *Store) SetRoundAuditRef(ctx context.Context, roundID, ref string) error {
	_, err := s.DB.ExecContext(ctx,
		`update evaluation_rounds set audit_ref=$1 where id=$2`, ref, roundID)
	return err
}

func (s *Store) RoundByID(ctx context.Context, id string) (*EvaluationRound, error) {
	var r EvaluationRound
	err := s.DB.GetContext(ctx, &r, `select * from evaluation_rounds where id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) RoundsByOrganization(ctx context.Context, orgID string, limit int) ([]EvaluationRound, error) {
	var rounds []EvaluationRound
	err := s.DB.SelectContext(ctx, &rounds,
		`select * from evaluation_rounds where organization_id=$1
		 order by started_at desc limit $2`, orgID, limit)
	return rounds, err
}

// --- evaluation results ---

func (s *Store) InsertResult(ctx context.Context, r *EvaluationResult) error {
	_, err := s.DB.ExecContext(ctx,
		`insert into evaluation_results(
		   id, round_id, scenario_id, system_response, final_grade, confidence_score,
		   judge_1_grade, judge_1_reasoning, judge_1_recommendation, judge_1_model,
		   judge_2_grade, judge_2_reasoning, judge_2_recommendation, judge_2_model,
		   judge_3_grade, judge_3_reasoning, judge_3_recommendation, judge_3_model,
		   created_at)
		 values($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		r.ID, r.RoundID, r.ScenarioID, r.SystemResponse, r.FinalGrade, r.ConfidenceScore,
		r.Judge1Grade, r.Judge1Reasoning, r.Judge1Recommendation, r.Judge1Model,
		r.Judge2Grade, r.Judge2Reasoning, r.Judge2Recommendation, r.Judge2Model,
		r.Judge3Grade, r.Judge3Reasoning, r.Judge3Recommendation, r.Judge3Model,
		r.CreatedAt)
	return err
}

func (s *Store) ResultByID(ctx context.Context, id string) (*EvaluationResult, error) {
	var r EvaluationResult
	err := s.DB.GetContext(ctx, &r, `select * from evaluation_results where id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ResultsByRound returns results in the order they were persisted, which is
// catalog order within a round.
func (s *Store) ResultsByRound(ctx context.Context, roundID string, limit, offset int) ([]EvaluationResult, error) {
	var results []EvaluationResult
	err := s.DB.SelectContext(ctx, &results,
		`select * from evaluation_results where round_id=$1
		 order by created_at, id limit $2 offset $3`, roundID, limit, offset)
	return results, err
}

func (s *Store) GradeCounts(ctx context.Context, roundID string) (map[string]int, error) {
	rows := []struct {
		FinalGrade string `db:"final_grade"`
		N          int    `db:"n"`
	}{}
	err := s.DB.SelectContext(ctx, &rows,
		`select final_grade, count(*) as n from evaluation_results
		 where round_id=$1 group by final_grade`, roundID)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.FinalGrade] = row.N
	}
	return counts, nil
}

// LowConfidenceResults lists results whose confidence is at or below the
// threshold, i.e. the human-review queue. roundID "" means all rounds.
func (s *Store) LowConfidenceResults(ctx context.Context, roundID string, maxConfidence, limit, offset int) ([]EvaluationResult, error) {
	var results []EvaluationResult
	if roundID != "" {
		err := s.DB.SelectContext(ctx, &results,
			`select * from evaluation_results
			 where confidence_score <= $1 and round_id=$2
			 order by created_at, id limit $3 offset $4`,
			maxConfidence, roundID, limit, offset)
		return results, err
	}
	err := s.DB.SelectContext(ctx, &results,
		`select * from evaluation_results
		 where confidence_score <= $1
		 order by created_at, id limit $2 offset $3`,
		maxConfidence, limit, offset)
	return results, err
}

// --- precomputed answers ---

// PrecomputedAnswer looks up the stand-in SUT response for the exact
// (scenario, org, round) triple. Returns (nil, nil) on miss.
func (s *Store) PrecomputedAnswer(ctx context.Context, scenarioID, orgID string, roundNumber int) (*PrecomputedAnswer, error) {
	var a PrecomputedAnswer
	err := s.DB.GetContext(ctx, &a,
		`select * from precomputed_answers
		 where scenario_id=$1 and organization_id=$2 and round_number=$3`,
		scenarioID, orgID, roundNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) InsertPrecomputedAnswer(ctx context.Context, a *PrecomputedAnswer) error {
	_, err := s.DB.ExecContext(ctx,
		`insert into precomputed_answers(id, organization_id, scenario_id, round_number, assistant_output, notes)
		 values($1,$2,$3,$4,$5,$6)`,
		a.ID, a.OrganizationID, a.ScenarioID, a.RoundNumber, a.AssistantOutput, a.Notes)
	return err
}

// --- human reviews ---

func (s *Store) ReviewByResult(ctx context.Context, resultID string) (*HumanReview, error) {
	var hr HumanReview
	err := s.DB.GetContext(ctx, &hr,
		`select * from human_reviews where evaluation_result_id=$1`, resultID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &hr, nil
}

func (s *Store) ReviewByID(ctx context.Context, id string) (*HumanReview, error) {
	var hr HumanReview
	err := s.DB.GetContext(ctx, &hr, `select * from human_reviews where id=$1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &hr, nil
}

// ApplyReview inserts the review and rewrites the result's final grade and
// confidence in one transaction. Human adjudication is terminal (100).
func (s *Store) ApplyReview(ctx context.Context, hr *HumanReview) error {
	return WithTx(ctx, s.DB, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx,
			`insert into human_reviews(id, evaluation_result_id, reviewer,
			   original_grade, original_confidence, reviewed_grade, notes, reviewed_at)
			 values($1,$2,$3,$4,$5,$6,$7,$8)`,
			hr.ID, hr.EvaluationResultID, hr.Reviewer,
			hr.OriginalGrade, hr.OriginalConfidence, hr.ReviewedGrade, hr.Notes, hr.ReviewedAt)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`update evaluation_results set final_grade=$1, confidence_score=100 where id=$2`,
			hr.ReviewedGrade, hr.EvaluationResultID)
		return err
	})
}
