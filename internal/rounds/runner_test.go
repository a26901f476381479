package rounds

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"safety-eval-backend/internal/db"
	"safety-eval-backend/internal/grading"
	"safety-eval-backend/internal/respsource"
)

// memStore is an in-memory Store and AnswerStore for runner tests.
type memStore struct {
	mu        sync.Mutex
	rounds    map[string]*db.EvaluationRound
	scenarios []db.Scenario
	answers   map[string]*db.PrecomputedAnswer
	results   []db.EvaluationResult

	scenarioErr  error
	failInsertAt int // 1-based insert index that errors; 0 = never
}

func newMemStore() *memStore {
	return &memStore{
		rounds:  map[string]*db.EvaluationRound{},
		answers: map[string]*db.PrecomputedAnswer{},
	}
}

func (m *memStore) CreateRound(_ context.Context, orgID string, roundNumber int, description string) (*db.EvaluationRound, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := &db.EvaluationRound{
		ID:             uuid.NewString(),
		OrganizationID: orgID,
		RoundNumber:    roundNumber,
		Description:    description,
		Status:         db.RoundRunning,
		StartedAt:      time.Now().UTC(),
	}
	m.rounds[r.ID] = r
	return r, nil
}

func (m *memStore) setTerminal(roundID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rounds[roundID]
	if !ok || r.Status != db.RoundRunning {
		return fmt.Errorf("round %s is not running", roundID)
	}
	r.Status = status
	r.CompletedAt.Valid = true
	r.CompletedAt.Time = time.Now().UTC()
	return nil
}

func (m *memStore) CompleteRound(_ context.Context, roundID string) error {
	return m.setTerminal(roundID, db.RoundCompleted)
}

func (m *memStore) FailRound(_ context.Context, roundID string) error {
	return m.setTerminal(roundID, db.RoundFailed)
}

func (m *memStore) ScenariosForOrg(context.Context, string) ([]db.Scenario, error) {
	if m.scenarioErr != nil {
		return nil, m.scenarioErr
	}
	return m.scenarios, nil
}

func (m *memStore) InsertResult(_ context.Context, r *db.EvaluationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsertAt > 0 && len(m.results)+1 == m.failInsertAt {
		return errors.New("disk full")
	}
	m.results = append(m.results, *r)
	return nil
}

func (m *memStore) GradeCounts(_ context.Context, roundID string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{}
	for _, r := range m.results {
		if r.RoundID == roundID {
			counts[r.FinalGrade]++
		}
	}
	return counts, nil
}

func (m *memStore) PrecomputedAnswer(_ context.Context, scenarioID, _ string, _ int) (*db.PrecomputedAnswer, error) {
	return m.answers[scenarioID], nil
}

// recorderSink records every event the runner emits.
type recorderSink struct {
	mu       sync.Mutex
	started  []int
	currents []int
	complete int
	errs     []string
}

func (s *recorderSink) Started(total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = append(s.started, total)
}

func (s *recorderSink) Progress(current, total int, label string, grade grading.Grade, confidence int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currents = append(s.currents, current)
}

func (s *recorderSink) Completed(roundID string, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.complete++
}

func (s *recorderSink) Error(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, message)
}

func seedStore(hints []string) *memStore {
	m := newMemStore()
	for i, hint := range hints {
		id := fmt.Sprintf("scen-%d", i+1)
		m.scenarios = append(m.scenarios, db.Scenario{
			ID:          id,
			Category:    fmt.Sprintf("Category %d", i+1),
			SubCategory: "sub",
			InputPrompt: "do something bad",
		})
		m.answers[id] = &db.PrecomputedAnswer{
			ScenarioID:      id,
			AssistantOutput: "stand-in response",
			Notes:           hint,
		}
	}
	return m
}

func TestRunOneResultPerScenarioInCatalogOrder(t *testing.T) {
	t.Parallel()

	store := seedStore([]string{"PASS - fine", "P2 - major", "P0 - catastrophic"})
	runner, err := NewRunner(store, respsource.New(store), grading.FakePanel(42), nil)
	if err != nil {
		t.Fatal(err)
	}

	round, err := runner.Run(context.Background(), "org-1", 1, "test round")
	if err != nil {
		t.Fatal(err)
	}
	if got := store.rounds[round.ID].Status; got != db.RoundCompleted {
		t.Fatalf("round status = %s, want completed", got)
	}
	if !store.rounds[round.ID].CompletedAt.Valid {
		t.Error("completed_at not set")
	}

	if len(store.results) != 3 {
		t.Fatalf("got %d results, want 3", len(store.results))
	}
	wantGrades := []string{"PASS", "P2", "P0"}
	for i, res := range store.results {
		if res.ScenarioID != fmt.Sprintf("scen-%d", i+1) {
			t.Errorf("result %d out of catalog order: %s", i, res.ScenarioID)
		}
		if res.RoundID != round.ID {
			t.Errorf("result %d has round %s", i, res.RoundID)
		}
		if res.FinalGrade != wantGrades[i] {
			t.Errorf("result %d grade = %s, want %s", i, res.FinalGrade, wantGrades[i])
		}
		// Hinted fake verdicts are unanimous.
		if res.ConfidenceScore != 100 {
			t.Errorf("result %d confidence = %d, want 100", i, res.ConfidenceScore)
		}
		if res.Judge1Grade != wantGrades[i] || res.Judge2Grade != wantGrades[i] || res.Judge3Grade != wantGrades[i] {
			t.Errorf("result %d panel grades diverged: %s/%s/%s",
				i, res.Judge1Grade, res.Judge2Grade, res.Judge3Grade)
		}
		if res.Judge1Reasoning == "" || res.Judge1Model == "" {
			t.Errorf("result %d missing verdict detail", i)
		}
	}
}

func TestRunStatsEndToEnd(t *testing.T) {
	t.Parallel()

	store := seedStore([]string{"PASS - fine", "P2 - major", "P0 - catastrophic"})
	runner, err := NewRunner(store, respsource.New(store), grading.FakePanel(7), nil)
	if err != nil {
		t.Fatal(err)
	}
	round, err := runner.Run(context.Background(), "org-1", 1, "")
	if err != nil {
		t.Fatal(err)
	}

	stats, err := RoundStats(context.Background(), store, round.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 || stats.PassCount != 1 {
		t.Errorf("total=%d pass=%d, want 3/1", stats.Total, stats.PassCount)
	}
	if stats.PassRate != 33.3 {
		t.Errorf("pass_rate = %v, want 33.3", stats.PassRate)
	}
	want := map[string]int{"PASS": 1, "P2": 1, "P0": 1}
	if len(stats.SeverityBreakdown) != len(want) {
		t.Fatalf("breakdown = %v, want %v", stats.SeverityBreakdown, want)
	}
	for g, n := range want {
		if stats.SeverityBreakdown[g] != n {
			t.Errorf("breakdown[%s] = %d, want %d", g, stats.SeverityBreakdown[g], n)
		}
	}
}

func TestRunPersistFailureMarksRoundFailed(t *testing.T) {
	t.Parallel()

	store := seedStore([]string{"PASS - ok", "P2 - major", "P0 - bad"})
	store.failInsertAt = 2
	sink := &recorderSink{}
	runner, err := NewRunner(store, respsource.New(store), grading.FakePanel(1), sink)
	if err != nil {
		t.Fatal(err)
	}

	round, err := runner.Run(context.Background(), "org-1", 1, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := store.rounds[round.ID].Status; got != db.RoundFailed {
		t.Errorf("round status = %s, want failed", got)
	}
	if !store.rounds[round.ID].CompletedAt.Valid {
		t.Error("failed round must still set completed_at")
	}
	if len(store.results) != 1 {
		t.Errorf("got %d results, want 1 (failure mid-round)", len(store.results))
	}
	if len(sink.errs) != 1 {
		t.Errorf("error event not emitted: %v", sink.errs)
	}
}

func TestRunCatalogFailureMarksRoundFailed(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.scenarioErr = errors.New("catalog unavailable")
	runner, err := NewRunner(store, respsource.New(store), grading.FakePanel(1), nil)
	if err != nil {
		t.Fatal(err)
	}
	round, err := runner.Run(context.Background(), "org-1", 1, "")
	if err == nil {
		t.Fatal("expected error")
	}
	if got := store.rounds[round.ID].Status; got != db.RoundFailed {
		t.Errorf("round status = %s, want failed", got)
	}
}

func TestRunProgressIsMonotonic(t *testing.T) {
	t.Parallel()

	store := seedStore([]string{"PASS - a", "P3 - b", "P1 - c", "P4 - d"})
	sink := &recorderSink{}
	runner, err := NewRunner(store, respsource.New(store), grading.FakePanel(5), sink)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := runner.Run(context.Background(), "org-1", 1, ""); err != nil {
		t.Fatal(err)
	}

	if len(sink.started) != 1 || sink.started[0] != 4 {
		t.Errorf("started events = %v", sink.started)
	}
	if len(sink.currents) != 4 {
		t.Fatalf("progress events = %v", sink.currents)
	}
	for i, cur := range sink.currents {
		if cur != i+1 {
			t.Errorf("progress %d has current=%d", i, cur)
		}
	}
	if sink.complete != 1 {
		t.Errorf("complete events = %d", sink.complete)
	}
}

func TestNewRunnerRejectsWrongPanelSize(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	if _, err := NewRunner(store, respsource.New(store), grading.FakePanel(1)[:2], nil); err == nil {
		t.Error("expected panel size error")
	}
}
