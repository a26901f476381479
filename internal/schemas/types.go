package schemas

import "time"

// RunRoundRequest starts an evaluation round. With Fake set the round uses
// the deterministic fake grading panel; Seed 0 means time-seeded.
type RunRoundRequest struct {
	OrganizationID string `json:"organization_id"`
	RoundNumber    int    `json:"round_number"`
	Description    string `json:"description,omitempty"`
	Fake           bool   `json:"fake,omitempty"`
	Seed           int64  `json:"seed,omitempty"`
}

type RoundOut struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	RoundNumber    int        `json:"round_number"`
	Description    string     `json:"description,omitempty"`
	Status         string     `json:"status"`
	AuditRef       string     `json:"audit_ref,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

type JudgeVerdictOut struct {
	Grade          string `json:"grade"`
	Reasoning      string `json:"reasoning"`
	Recommendation string `json:"recommendation"`
	Model          string `json:"model"`
}

type ResultOut struct {
	ID              string            `json:"id"`
	RoundID         string            `json:"round_id"`
	ScenarioID      string            `json:"scenario_id"`
	SystemResponse  string            `json:"system_response"`
	FinalGrade      string            `json:"final_grade"`
	ConfidenceScore int               `json:"confidence_score"`
	Verdicts        []JudgeVerdictOut `json:"verdicts"`
	HasHumanReview  bool              `json:"has_human_review,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
}

type HumanReviewRequest struct {
	EvaluationResultID string `json:"evaluation_result_id"`
	ReviewedGrade      string `json:"reviewed_grade"`
	Notes              string `json:"notes,omitempty"`
	Reviewer           string `json:"reviewer,omitempty"`
}

type HumanReviewOut struct {
	ID                 string    `json:"id"`
	EvaluationResultID string    `json:"evaluation_result_id"`
	Reviewer           string    `json:"reviewer,omitempty"`
	OriginalGrade      string    `json:"original_grade"`
	OriginalConfidence int       `json:"original_confidence"`
	ReviewedGrade      string    `json:"reviewed_grade"`
	Notes              string    `json:"notes,omitempty"`
	ReviewedAt         time.Time `json:"reviewed_at"`
}

// ProgressEvent is the wire envelope for the WebSocket progress stream.
// Type is one of started, progress, heartbeat, complete, error.
type ProgressEvent struct {
	Type       string `json:"type"`
	Current    int    `json:"current,omitempty"`
	Total      int    `json:"total,omitempty"`
	Label      string `json:"label,omitempty"`
	Grade      string `json:"grade,omitempty"`
	Confidence int    `json:"confidence,omitempty"`
	RoundID    string `json:"round_id,omitempty"`
	Message    string `json:"message,omitempty"`
}
