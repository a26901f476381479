// Package review records one-shot human overrides for low-confidence
// evaluation results.
package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"safety-eval-backend/internal/db"
	"safety-eval-backend/internal/grading"
)

var (
	ErrResultNotFound  = errors.New("evaluation result not found")
	ErrAlreadyReviewed = errors.New("evaluation result already has a human review")
	ErrInvalidGrade    = errors.New("reviewed grade is not a canonical grade")
)

// Store is the persistence slice the review workflow consumes.
type Store interface {
	ResultByID(ctx context.Context, id string) (*db.EvaluationResult, error)
	ReviewByResult(ctx context.Context, resultID string) (*db.HumanReview, error)
	ApplyReview(ctx context.Context, hr *db.HumanReview) error
}

type Service struct {
	Store Store
}

func NewService(store Store) *Service {
	return &Service{Store: store}
}

// Submit records exactly one human override for a result: it snapshots the
// prior grade and confidence, then rewrites the result to the reviewed grade
// at confidence 100. A second submission for the same result is a conflict
// and leaves the result untouched.
func (s *Service) Submit(ctx context.Context, resultID string, reviewedGrade grading.Grade, notes, reviewer string) (*db.HumanReview, error) {
	if _, ok := grading.ParseGrade(string(reviewedGrade)); !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidGrade, reviewedGrade)
	}

	result, err := s.Store.ResultByID(ctx, resultID)
	if err != nil {
		return nil, fmt.Errorf("load result %s: %w", resultID, err)
	}
	if result == nil {
		return nil, fmt.Errorf("%w: %s", ErrResultNotFound, resultID)
	}

	existing, err := s.Store.ReviewByResult(ctx, resultID)
	if err != nil {
		return nil, fmt.Errorf("check existing review: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyReviewed, resultID)
	}

	hr := &db.HumanReview{
		ID:                 uuid.NewString(),
		EvaluationResultID: resultID,
		Reviewer:           reviewer,
		OriginalGrade:      result.FinalGrade,
		OriginalConfidence: result.ConfidenceScore,
		ReviewedGrade:      string(reviewedGrade),
		Notes:              notes,
		ReviewedAt:         time.Now().UTC(),
	}
	if err := s.Store.ApplyReview(ctx, hr); err != nil {
		return nil, fmt.Errorf("apply review: %w", err)
	}
	return hr, nil
}
