package http

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"safety-eval-backend/internal/grading"
	"safety-eval-backend/internal/progress"
	"safety-eval-backend/internal/schemas"
)

const heartbeatInterval = 5 * time.Second

var upgrader = websocket.Upgrader{
	// The dashboard is served from a different origin than the API.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// runRoundWS runs an evaluation round over a live WebSocket: the client sends
// one RunRoundRequest, the server streams started/progress/complete|error
// events plus heartbeats. A disconnecting observer does not halt the round;
// the sink just goes quiet.
func (s *Server) runRoundWS(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("token") != os.Getenv("API_TOKEN") {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade: %v", err)
		return
	}
	defer conn.Close()

	var req schemas.RunRoundRequest
	if err := conn.ReadJSON(&req); err != nil {
		log.Printf("ws: bad run request: %v", err)
		return
	}
	sink := &wsSink{conn: conn}

	org, err := s.Store.OrganizationByID(r.Context(), req.OrganizationID)
	if err != nil || org == nil {
		sink.Error("organization not found")
		return
	}
	runner, err := s.newRunner(&req, sink)
	if err != nil {
		sink.Error(err.Error())
		return
	}

	// Grader calls have no intrinsic keepalive; ping for the connection's
	// lifetime and stop as soon as the round ends either way.
	done := make(chan struct{})
	go progress.RunHeartbeat(done, heartbeatInterval, sink.ping)
	defer close(done)

	if _, err := runner.Run(r.Context(), req.OrganizationID, req.RoundNumber, req.Description); err != nil {
		// Runner already emitted the error event and recorded the failure.
		log.Printf("ws round: %v", err)
	}
}

// wsSink streams progress events over one WebSocket connection. Writes are
// serialized because the heartbeat goroutine and the runner emit
// concurrently; after the first write error the sink degrades to a no-op.
type wsSink struct {
	conn *websocket.Conn
	mu   sync.Mutex
	dead bool
}

func (s *wsSink) send(ev schemas.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		log.Printf("ws: observer gone: %v", err)
		s.dead = true
	}
}

func (s *wsSink) ping() {
	s.send(schemas.ProgressEvent{Type: "heartbeat"})
}

func (s *wsSink) Started(total int) {
	s.send(schemas.ProgressEvent{Type: "started", Total: total})
}

func (s *wsSink) Progress(current, total int, label string, grade grading.Grade, confidence int) {
	s.send(schemas.ProgressEvent{
		Type: "progress", Current: current, Total: total,
		Label: label, Grade: string(grade), Confidence: confidence,
	})
}

func (s *wsSink) Completed(roundID string, total int) {
	s.send(schemas.ProgressEvent{Type: "complete", RoundID: roundID, Total: total})
}

func (s *wsSink) Error(message string) {
	s.send(schemas.ProgressEvent{Type: "error", Message: message})
}
