package form

import (
	"context"
	"time"
)

// OutcomeKind classifies how an exchange resolved.
type OutcomeKind string

const (
	OutcomeAnswered     OutcomeKind = "answered"
	OutcomeUnanswerable OutcomeKind = "unanswerable"
	OutcomeFailed       OutcomeKind = "failed"
)

// Outcome is the resolution of one exchange.
type Outcome struct {
	ExchangeID string
	RequestID  string
	Question   string
	Kind       OutcomeKind
	Answer     Markup
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the exchange took.
func (o Outcome) Duration() time.Duration {
	return o.FinishedAt.Sub(o.StartedAt)
}

// Task is a handle on one running exchange.
type Task struct {
	id      string
	cancel  context.CancelFunc
	done    chan struct{}
	outcome Outcome
}

func newTask(id string, cancel context.CancelFunc) *Task {
	return &Task{
		id:     id,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ID returns the exchange id.
func (t *Task) ID() string {
	return t.id
}

// Done is closed once the exchange has settled.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Cancel aborts the outbound call. The exchange then resolves through the
// failure path. Cancelling a settled task is a no-op.
func (t *Task) Cancel() {
	t.cancel()
}

// Wait blocks until the exchange settles or ctx is done.
func (t *Task) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		return t.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (t *Task) resolve(o Outcome) {
	t.outcome = o
	close(t.done)
}
