package jobqueue

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/insrobot/pkg/models"
)

// ledger is the per-request state held by Results.
type ledger struct {
	outcomes []models.Outcome
	expected int
	settled  int // outcomes that count toward expected (worker outcomes only)
	done     chan struct{}
	closed   bool
}

func (l *ledger) checkComplete() {
	if !l.closed && l.settled >= l.expected {
		l.closed = true
		close(l.done)
	}
}

// Results collects outcomes per request id and signals when a request has
// received all the outcomes it expects. Safe for concurrent use.
type Results struct {
	mu      sync.Mutex
	ledgers map[uuid.UUID]*ledger
}

// NewResults creates an empty result store.
func NewResults() *Results {
	return &Results{ledgers: make(map[uuid.UUID]*ledger)}
}

// Register creates the ledger for id and returns its completion signal. If id
// is already registered the existing signal is returned unchanged.
func (r *Results) Register(id uuid.UUID, expected int) <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.ledgers[id]; ok {
		return l.done
	}
	l := &ledger{expected: expected, done: make(chan struct{})}
	r.ledgers[id] = l
	l.checkComplete()
	return l.done
}

// Append records a worker outcome and closes the completion signal once the
// request has all its expected outcomes. Outcomes for ids that were never
// registered or were already drained are discarded.
func (r *Results) Append(id uuid.UUID, outcome models.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.ledgers[id]
	if !ok {
		slog.Debug("discarding outcome for unknown request", "request_id", id, "label", outcome.Label)
		return
	}
	l.outcomes = append(l.outcomes, outcome)
	l.settled++
	l.checkComplete()
}

// Reject records the outcome of a job that never reached the queue and lowers
// the expected count so completion does not wait for it.
func (r *Results) Reject(id uuid.UUID, outcome models.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.ledgers[id]
	if !ok {
		return
	}
	l.outcomes = append(l.outcomes, outcome)
	r.decrementLocked(l)
}

// DecrementExpected lowers the expected count for id by one and completes the
// request if it now has everything it expects.
func (r *Results) DecrementExpected(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.ledgers[id]; ok {
		r.decrementLocked(l)
	}
}

func (r *Results) decrementLocked(l *ledger) {
	if l.expected > 0 {
		l.expected--
	}
	l.checkComplete()
}

// Drain removes the ledger for id and returns its outcomes in completion
// order. It returns an empty slice if id is unknown or already drained.
func (r *Results) Drain(id uuid.UUID) []models.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.ledgers[id]
	if !ok {
		return []models.Outcome{}
	}
	delete(r.ledgers, id)
	if l.outcomes == nil {
		return []models.Outcome{}
	}
	return l.outcomes
}

// Progress reports how many outcomes have settled out of the expected count.
func (r *Results) Progress(id uuid.UUID) (settled, expected int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.ledgers[id]
	if !ok {
		return 0, 0, false
	}
	return l.settled, l.expected, true
}
