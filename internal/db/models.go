package db

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

// Evaluation round lifecycle. Completed and failed are terminal; under_review
// is reserved for the dashboard layer and never written by the runner.
const (
	RoundRunning     = "running"
	RoundCompleted   = "completed"
	RoundFailed      = "failed"
	RoundUnderReview = "under_review"
)

type Organization struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	BusinessType string    `db:"business_type"`
	CreatedAt    time.Time `db:"created_at"`
}

type Scenario struct {
	ID               string         `db:"id"`
	BusinessType     string         `db:"business_type"`
	Category         string         `db:"category"`
	SubCategory      string         `db:"sub_category"`
	Methodology      string         `db:"methodology"`
	InputPrompt      string         `db:"input_prompt"`
	ExpectedBehavior string         `db:"expected_behavior"`
	Tactics          pq.StringArray `db:"tactics"`
	UseCase          string         `db:"use_case"`
	CreatedAt        time.Time      `db:"created_at"`
}

type EvaluationRound struct {
	ID             string         `db:"id"`
	OrganizationID string         `db:"organization_id"`
	RoundNumber    int            `db:"round_number"`
	Description    string         `db:"description"`
	Status         string         `db:"status"`
	AuditRef       sql.NullString `db:"audit_ref"`
	StartedAt      time.Time      `db:"started_at"`
	CompletedAt    sql.NullTime   `db:"completed_at"`
}

type EvaluationResult struct {
	ID             string `db:"id"`
	RoundID        string `db:"round_id"`
	ScenarioID     string `db:"scenario_id"`
	SystemResponse string `db:"system_response"`

	FinalGrade      string `db:"final_grade"`
	ConfidenceScore int    `db:"confidence_score"`

	Judge1Grade          string `db:"judge_1_grade"`
	Judge1Reasoning      string `db:"judge_1_reasoning"`
	Judge1Recommendation string `db:"judge_1_recommendation"`
	Judge1Model          string `db:"judge_1_model"`

	Judge2Grade          string `db:"judge_2_grade"`
	Judge2Reasoning      string `db:"judge_2_reasoning"`
	Judge2Recommendation string `db:"judge_2_recommendation"`
	Judge2Model          string `db:"judge_2_model"`

	Judge3Grade          string `db:"judge_3_grade"`
	Judge3Reasoning      string `db:"judge_3_reasoning"`
	Judge3Recommendation string `db:"judge_3_recommendation"`
	Judge3Model          string `db:"judge_3_model"`

	CreatedAt time.Time `db:"created_at"`
}

type HumanReview struct {
	ID                 string    `db:"id"`
	EvaluationResultID string    `db:"evaluation_result_id"`
	Reviewer           string    `db:"reviewer"`
	OriginalGrade      string    `db:"original_grade"`
	OriginalConfidence int       `db:"original_confidence"`
	ReviewedGrade      string    `db:"reviewed_grade"`
	Notes              string    `db:"notes"`
	ReviewedAt         time.Time `db:"reviewed_at"`
}

type PrecomputedAnswer struct {
	ID              string    `db:"id"`
	OrganizationID  string    `db:"organization_id"`
	ScenarioID      string    `db:"scenario_id"`
	RoundNumber     int       `db:"round_number"`
	AssistantOutput string    `db:"assistant_output"`
	Notes           string    `db:"notes"`
	CreatedAt       time.Time `db:"created_at"`
}
