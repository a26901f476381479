// Package worker consumes background round-execution tasks. Rounds enqueued
// here run without an attached observer; progress goes to the process log and
// the finished round is archived to object storage for audit.
package worker

import (
	"context"
	"encoding/json"
	"log"

	"github.com/hibiken/asynq"

	"safety-eval-backend/internal/db"
	"safety-eval-backend/internal/grading"
	httpapi "safety-eval-backend/internal/http"
	"safety-eval-backend/internal/progress"
	"safety-eval-backend/internal/respsource"
	"safety-eval-backend/internal/rounds"
	"safety-eval-backend/internal/schemas"
	"safety-eval-backend/internal/storage"
)

type Server struct {
	Store *db.Store
	S3    *storage.Client
}

func (s *Server) mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(httpapi.TaskRunRound, s.handleRunRound)
	return mux
}

func (s *Server) handleRunRound(ctx context.Context, t *asynq.Task) error {
	var req schemas.RunRoundRequest
	if err := json.Unmarshal(t.Payload(), &req); err != nil {
		log.Printf("worker: bad run_round payload: %v", err)
		return nil
	}
	log.Printf("worker: running round %d for org %s (fake=%v)",
		req.RoundNumber, req.OrganizationID, req.Fake)

	var panel []grading.Grader
	var err error
	if req.Fake {
		panel = grading.FakePanel(req.Seed)
	} else {
		panel, err = grading.PanelFromEnv()
		if err != nil {
			log.Printf("worker: building panel: %v", err)
			return nil
		}
	}

	runner, err := rounds.NewRunner(s.Store, respsource.New(s.Store), panel, progress.LogSink{})
	if err != nil {
		log.Printf("worker: %v", err)
		return nil
	}
	round, err := runner.Run(ctx, req.OrganizationID, req.RoundNumber, req.Description)
	if err != nil {
		// The round row already carries the failed status; do not let asynq
		// retry a failed round.
		log.Printf("worker: round failed: %v", err)
		return nil
	}

	if err := s.archive(ctx, round.ID); err != nil {
		log.Printf("worker: archiving round %s: %v", round.ID, err)
	}
	return nil
}

// archive uploads the round with its full panel transcript to S3 and records
// the object ref on the round.
func (s *Server) archive(ctx context.Context, roundID string) error {
	round, err := s.Store.RoundByID(ctx, roundID)
	if err != nil {
		return err
	}
	results, err := s.Store.ResultsByRound(ctx, roundID, 10000, 0)
	if err != nil {
		return err
	}
	export := map[string]any{
		"round":   round,
		"results": results,
	}
	ref, err := s.S3.PutJSON(ctx, roundID, export)
	if err != nil {
		return err
	}
	if err := s.Store.SetRoundAuditRef(ctx, roundID, ref); err != nil {
		return err
	}
	log.Printf("worker: archived round %s to %s", roundID, ref)
	return nil
}

func Run(addr string, store *db.Store, s3c *storage.Client) error {
	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: addr}, asynq.Config{Concurrency: 5})
	w := &Server{Store: store, S3: s3c}
	return srv.Run(w.mux())
}
