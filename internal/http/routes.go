package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	m "github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"

	"safety-eval-backend/internal/db"
	"safety-eval-backend/internal/grading"
	"safety-eval-backend/internal/progress"
	"safety-eval-backend/internal/respsource"
	"safety-eval-backend/internal/review"
	"safety-eval-backend/internal/rounds"
	"safety-eval-backend/internal/schemas"
	"safety-eval-backend/internal/storage"
)

// TaskRunRound is the asynq task type for background round execution.
const TaskRunRound = "evaluation:run_round"

type Server struct {
	Store   *db.Store
	S3      *storage.Client
	Asynq   *asynq.Client
	Reviews *review.Service
}

func NewServer(store *db.Store, s3c *storage.Client, asq *asynq.Client) *http.Server {
	s := &Server{Store: store, S3: s3c, Asynq: asq, Reviews: review.NewService(store)}
	r := chi.NewRouter()
	r.Use(m.RequestID, m.RealIP, m.Logger, m.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(RequireAPIToken)
		r.Post("/evaluations/rounds", s.startRound)
		r.Post("/evaluations/rounds/async", s.startRoundAsync)
		r.Get("/evaluations/rounds/{id}", s.getRound)
		r.Get("/evaluations/rounds/{id}/results", s.listResults)
		r.Get("/evaluations/rounds/{id}/stats", s.getStats)
		r.Get("/evaluations/rounds/{id}/audit", s.getAudit)
		r.Get("/evaluations/organizations/{id}/rounds", s.listOrgRounds)
		r.Post("/human-reviews", s.createReview)
		r.Get("/human-reviews/low-confidence", s.listLowConfidence)
		r.Get("/human-reviews/{id}", s.getReview)
	})

	// WebSocket endpoint authenticates via query token (browser clients
	// cannot set Authorization headers on upgrade requests).
	r.Get("/evaluations/ws/run", s.runRoundWS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.DB.Ping(); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"status":"db error"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	return &http.Server{Addr: ":8000", Handler: r}
}

type errResp struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// buildPanel picks the grading panel for a run request: the deterministic
// fake panel for demo rounds, the live OpenRouter panel otherwise.
func buildPanel(req *schemas.RunRoundRequest) ([]grading.Grader, error) {
	if req.Fake {
		return grading.FakePanel(req.Seed), nil
	}
	return grading.PanelFromEnv()
}

func (s *Server) newRunner(req *schemas.RunRoundRequest, sink progress.Sink) (*rounds.Runner, error) {
	panel, err := buildPanel(req)
	if err != nil {
		return nil, err
	}
	return rounds.NewRunner(s.Store, respsource.New(s.Store), panel, sink)
}

func (s *Server) startRound(w http.ResponseWriter, r *http.Request) {
	var req schemas.RunRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, 400, errResp{err.Error()})
		return
	}
	org, err := s.Store.OrganizationByID(r.Context(), req.OrganizationID)
	if err != nil {
		writeJSON(w, 500, errResp{err.Error()})
		return
	}
	if org == nil {
		writeJSON(w, 404, errResp{"organization not found"})
		return
	}

	runner, err := s.newRunner(&req, progress.Noop{})
	if err != nil {
		writeJSON(w, 500, errResp{err.Error()})
		return
	}
	round, err := runner.Run(r.Context(), req.OrganizationID, req.RoundNumber, req.Description)
	if err != nil {
		// The round is already recorded as failed; surface the cause.
		writeJSON(w, 500, errResp{err.Error()})
		return
	}
	fresh, err := s.Store.RoundByID(r.Context(), round.ID)
	if err != nil || fresh == nil {
		writeJSON(w, 500, errResp{"round not found after run"})
		return
	}
	writeJSON(w, 200, roundOut(fresh))
}

func (s *Server) startRoundAsync(w http.ResponseWriter, r *http.Request) {
	var req schemas.RunRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, 400, errResp{err.Error()})
		return
	}
	org, err := s.Store.OrganizationByID(r.Context(), req.OrganizationID)
	if err != nil {
		writeJSON(w, 500, errResp{err.Error()})
		return
	}
	if org == nil {
		writeJSON(w, 404, errResp{"organization not found"})
		return
	}
	payload, _ := json.Marshal(req)
	task := asynq.NewTask(TaskRunRound, payload)
	if _, err := s.Asynq.Enqueue(task, asynq.MaxRetry(0)); err != nil {
		writeJSON(w, 500, errResp{err.Error()})
		return
	}
	writeJSON(w, 202, map[string]string{"enqueued": "ok"})
}

func (s *Server) getRound(w http.ResponseWriter, r *http.Request) {
	round, err := s.Store.RoundByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, 500, errResp{err.Error()})
		return
	}
	if round == nil {
		writeJSON(w, 404, errResp{"round not found"})
		return
	}
	writeJSON(w, 200, roundOut(round))
}

func (s *Server) listResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)
	results, err := s.Store.ResultsByRound(r.Context(), id, limit, offset)
	if err != nil {
		writeJSON(w, 500, errResp{err.Error()})
		return
	}
	out := make([]schemas.ResultOut, 0, len(results))
	for i := range results {
		out = append(out, resultOut(&results[i], false))
	}
	writeJSON(w, 200, out)
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	round, err := s.Store.RoundByID(r.Context(), id)
	if err != nil {
		writeJSON(w, 500, errResp{err.Error()})
		return
	}
	if round == nil {
		writeJSON(w, 404, errResp{"round not found"})
		return
	}
	stats, err := rounds.RoundStats(r.Context(), s.Store, id)
	if err != nil {
		writeJSON(w, 500, errResp{err.Error()})
		return
	}
	writeJSON(w, 200, stats)
}

func (s *Server) getAudit(w http.ResponseWriter, r *http.Request) {
	round, err := s.Store.RoundByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, 500, errResp{err.Error()})
		return
	}
	if round == nil || !round.AuditRef.Valid {
		writeJSON(w, 404, errResp{"no audit archive for round"})
		return
	}
	doc, err := s.S3.GetJSON(r.Context(), round.AuditRef.String)
	if err != nil {
		writeJSON(w, 500, errResp{err.Error()})
		return
	}
	writeJSON(w, 200, doc)
}

func (s *Server) listOrgRounds(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := queryInt(r, "limit", 10)
	list, err := s.Store.RoundsByOrganization(r.Context(), id, limit)
	if err != nil {
		writeJSON(w, 500, errResp{err.Error()})
		return
	}
	out := make([]schemas.RoundOut, 0, len(list))
	for i := range list {
		out = append(out, roundOut(&list[i]))
	}
	writeJSON(w, 200, out)
}

func (s *Server) createReview(w http.ResponseWriter, r *http.Request) {
	var req schemas.HumanReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, 400, errResp{err.Error()})
		return
	}
	hr, err := s.Reviews.Submit(r.Context(), req.EvaluationResultID,
		grading.Grade(req.ReviewedGrade), req.Notes, req.Reviewer)
	switch {
	case errors.Is(err, review.ErrInvalidGrade):
		writeJSON(w, 400, errResp{err.Error()})
	case errors.Is(err, review.ErrResultNotFound):
		writeJSON(w, 404, errResp{err.Error()})
	case errors.Is(err, review.ErrAlreadyReviewed):
		writeJSON(w, 409, errResp{err.Error()})
	case err != nil:
		writeJSON(w, 500, errResp{err.Error()})
	default:
		log.Printf("human review %s: %s -> %s by %s",
			hr.ID, hr.OriginalGrade, hr.ReviewedGrade, hr.Reviewer)
		writeJSON(w, 201, reviewOut(hr))
	}
}

func (s *Server) listLowConfidence(w http.ResponseWriter, r *http.Request) {
	roundID := r.URL.Query().Get("round_id")
	maxConfidence := queryInt(r, "max_confidence", 99)
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)

	results, err := s.Store.LowConfidenceResults(r.Context(), roundID, maxConfidence, limit, offset)
	if err != nil {
		writeJSON(w, 500, errResp{err.Error()})
		return
	}
	out := make([]schemas.ResultOut, 0, len(results))
	for i := range results {
		hr, err := s.Store.ReviewByResult(r.Context(), results[i].ID)
		if err != nil {
			writeJSON(w, 500, errResp{err.Error()})
			return
		}
		out = append(out, resultOut(&results[i], hr != nil))
	}
	writeJSON(w, 200, out)
}

func (s *Server) getReview(w http.ResponseWriter, r *http.Request) {
	hr, err := s.Store.ReviewByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, 500, errResp{err.Error()})
		return
	}
	if hr == nil {
		writeJSON(w, 404, errResp{"review not found"})
		return
	}
	writeJSON(w, 200, reviewOut(hr))
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func roundOut(r *db.EvaluationRound) schemas.RoundOut {
	out := schemas.RoundOut{
		ID:             r.ID,
		OrganizationID: r.OrganizationID,
		RoundNumber:    r.RoundNumber,
		Description:    r.Description,
		Status:         r.Status,
		StartedAt:      r.StartedAt,
	}
	if r.AuditRef.Valid {
		out.AuditRef = r.AuditRef.String
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		out.CompletedAt = &t
	}
	return out
}

func resultOut(res *db.EvaluationResult, reviewed bool) schemas.ResultOut {
	return schemas.ResultOut{
		ID:              res.ID,
		RoundID:         res.RoundID,
		ScenarioID:      res.ScenarioID,
		SystemResponse:  res.SystemResponse,
		FinalGrade:      res.FinalGrade,
		ConfidenceScore: res.ConfidenceScore,
		Verdicts: []schemas.JudgeVerdictOut{
			{Grade: res.Judge1Grade, Reasoning: res.Judge1Reasoning, Recommendation: res.Judge1Recommendation, Model: res.Judge1Model},
			{Grade: res.Judge2Grade, Reasoning: res.Judge2Reasoning, Recommendation: res.Judge2Recommendation, Model: res.Judge2Model},
			{Grade: res.Judge3Grade, Reasoning: res.Judge3Reasoning, Recommendation: res.Judge3Recommendation, Model: res.Judge3Model},
		},
		HasHumanReview: reviewed,
		CreatedAt:      res.CreatedAt,
	}
}

func reviewOut(hr *db.HumanReview) schemas.HumanReviewOut {
	return schemas.HumanReviewOut{
		ID:                 hr.ID,
		EvaluationResultID: hr.EvaluationResultID,
		Reviewer:           hr.Reviewer,
		OriginalGrade:      hr.OriginalGrade,
		OriginalConfidence: hr.OriginalConfidence,
		ReviewedGrade:      hr.ReviewedGrade,
		Notes:              hr.Notes,
		ReviewedAt:         hr.ReviewedAt,
	}
}
