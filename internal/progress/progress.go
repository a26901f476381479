// Package progress defines the transport-agnostic event sink the round
// runner pushes progress into. The runner never knows whether anyone is
// listening; a disconnected observer degrades to a no-op.
package progress

import (
	"log"
	"time"

	"safety-eval-backend/internal/grading"
)

// Sink receives round lifecycle events. Implementations must tolerate being
// called from the runner's goroutine and must never block the round.
type Sink interface {
	Started(total int)
	Progress(current, total int, label string, grade grading.Grade, confidence int)
	Completed(roundID string, total int)
	Error(message string)
}

// Noop is the sink used when no observer is attached.
type Noop struct{}

func (Noop) Started(int) {}

func (Noop) Progress(int, int, string, grading.Grade, int) {}

func (Noop) Completed(string, int) {}

func (Noop) Error(string) {}

// LogSink writes progress to the process log; used for background worker runs.
type LogSink struct{}

func (LogSink) Started(total int) {
	log.Printf("round: starting, %d scenarios", total)
}

func (LogSink) Progress(current, total int, label string, grade grading.Grade, confidence int) {
	log.Printf("round: %d/%d %s -> %s (confidence %d)", current, total, label, grade, confidence)
}

func (LogSink) Completed(roundID string, total int) {
	log.Printf("round %s: completed, %d results", roundID, total)
}

func (LogSink) Error(message string) {
	log.Printf("round: failed: %s", message)
}

// RunHeartbeat calls ping every interval until done closes. Grader calls have
// no intrinsic keepalive, so long-lived duplex transports run this alongside
// a round to keep idle connections open.
func RunHeartbeat(done <-chan struct{}, interval time.Duration, ping func()) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			ping()
		}
	}
}
