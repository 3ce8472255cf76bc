package form

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Generator produces text for a prompt. ok is false when the service
// answered but the response carried no generated text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (text string, ok bool, err error)
}

// PromptRenderer embeds a question into the instruction template.
type PromptRenderer interface {
	Render(question string) (string, error)
}

// Overlap decides what Submit does while an exchange is unresolved.
type Overlap int

const (
	// OverlapReject refuses the second submission with ErrExchangeInFlight.
	OverlapReject Overlap = iota
	// OverlapLastWriteWins runs both; whichever resolves last owns
	// Answer and Error, and the first to settle clears InFlight.
	OverlapLastWriteWins
)

// ParseOverlap maps a config value to an Overlap.
func ParseOverlap(s string) (Overlap, error) {
	switch s {
	case "", "reject":
		return OverlapReject, nil
	case "last-write-wins":
		return OverlapLastWriteWins, nil
	default:
		return OverlapReject, fmt.Errorf("unknown overlap policy %q", s)
	}
}

// SettleHook observes every settled exchange.
type SettleHook func(Outcome)

// Option configures a Controller.
type Option func(*Controller)

// WithOverlap sets the overlap policy.
func WithOverlap(o Overlap) Option {
	return func(c *Controller) { c.overlap = o }
}

// WithSettleHook registers a hook run after each exchange settles and
// before its Task is released. A panicking hook is logged and skipped.
func WithSettleHook(h SettleHook) Option {
	return func(c *Controller) { c.hooks = append(c.hooks, h) }
}

// WithRequestID extracts a request id from the Submit context; it is
// logged and carried on the Outcome.
func WithRequestID(fn func(context.Context) string) Option {
	return func(c *Controller) { c.requestID = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

const subscriberBuffer = 16

// Controller owns one tab's form state. All transitions go through Reduce
// under mu; the remote call runs on its own goroutine.
type Controller struct {
	mu           sync.Mutex
	state        State
	gen          Generator
	prompts      PromptRenderer
	overlap      Overlap
	hooks        []SettleHook
	logger       *slog.Logger
	requestID    func(context.Context) string
	pending      map[string]*Task
	subs         map[int]chan State
	nextSub      int
	lastActivity time.Time
	wg           sync.WaitGroup
}

// NewController creates a controller whose initial answer is greeting.
func NewController(gen Generator, prompts PromptRenderer, greeting string, opts ...Option) *Controller {
	c := &Controller{
		state:        NewState(greeting),
		gen:          gen,
		prompts:      prompts,
		logger:       slog.Default(),
		pending:      make(map[string]*Task),
		subs:         make(map[int]chan State),
		lastActivity: time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// InFlight reports whether any exchange is unresolved.
func (c *Controller) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) > 0
}

// Touch marks the form as in use without changing its state.
func (c *Controller) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActivity = time.Now()
}

// LastActivity returns when the form was last touched, edited or submitted.
func (c *Controller) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Edit replaces the draft question.
func (c *Controller) Edit(text string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastActivity = time.Now()
	c.applyLocked(DraftEdited{Text: text})
	return c.state
}

// Submit validates draft and, when it is non-blank, starts an exchange.
// Blank input returns a *ValidationError without calling the generator.
// Under OverlapReject a submission during an exchange returns
// ErrExchangeInFlight and leaves the state untouched.
//
// The exchange runs detached from ctx's cancellation; use Task.Cancel to
// abort it.
func (c *Controller) Submit(ctx context.Context, draft string) (*Task, error) {
	c.mu.Lock()

	if c.overlap == OverlapReject && len(c.pending) > 0 {
		c.mu.Unlock()
		return nil, ErrExchangeInFlight
	}

	c.lastActivity = time.Now()
	c.applyLocked(SubmitRequested{Text: draft})

	if strings.TrimSpace(draft) == "" {
		c.applyLocked(Rejected{Message: MsgEmptyQuestion})
		c.applyLocked(Acknowledged{})
		c.mu.Unlock()
		return nil, &ValidationError{Message: MsgEmptyQuestion}
	}

	id := uuid.NewString()
	reqID := ""
	if c.requestID != nil {
		reqID = c.requestID(ctx)
	}
	exchangeCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	task := newTask(id, cancel)
	c.pending[id] = task
	c.applyLocked(Started{ExchangeID: id, Question: draft})
	c.wg.Add(1)
	c.mu.Unlock()

	c.logger.Info("Exchange started", "exchange_id", id, "request_id", reqID, "question_length", len(draft))

	go c.run(exchangeCtx, task, draft, reqID)
	return task, nil
}

// Cancel aborts every unresolved exchange and returns how many there were.
func (c *Controller) Cancel() int {
	c.mu.Lock()
	tasks := make([]*Task, 0, len(c.pending))
	for _, t := range c.pending {
		tasks = append(tasks, t)
	}
	c.mu.Unlock()

	for _, t := range tasks {
		t.Cancel()
	}
	return len(tasks)
}

// Wait blocks until every started exchange has settled.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Subscribe returns a channel receiving a snapshot after every transition,
// and a function that ends the subscription. Slow readers miss
// intermediate snapshots, never the latest one.
func (c *Controller) Subscribe() (<-chan State, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan State, subscriberBuffer)
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			delete(c.subs, id)
			close(ch)
		})
	}
}

func (c *Controller) run(ctx context.Context, task *Task, question, reqID string) {
	defer c.wg.Done()

	outcome := Outcome{ExchangeID: task.id, RequestID: reqID, Question: question, StartedAt: time.Now()}
	defer func() {
		if r := recover(); r != nil {
			err := &TransportError{Err: fmt.Errorf("generator panic: %v", r)}
			outcome.Kind = OutcomeFailed
			outcome.Err = err
			outcome.Answer = MsgFailedAnswer
			c.apply(Failed{ExchangeID: task.id, Err: err})
		}
		outcome.FinishedAt = time.Now()
		c.settle(task, outcome)
	}()

	prompt, err := c.prompts.Render(question)
	if err != nil {
		outcome = c.fail(outcome, err)
		return
	}

	text, ok, err := c.gen.Generate(ctx, prompt)
	switch {
	case err != nil:
		outcome = c.fail(outcome, err)
	case !ok:
		outcome.Kind = OutcomeUnanswerable
		outcome.Answer = MsgNoAnswer
		c.apply(Unanswerable{ExchangeID: task.id})
	default:
		outcome.Kind = OutcomeAnswered
		outcome.Answer = TrustGenerated(text)
		c.apply(Answered{ExchangeID: task.id, Answer: outcome.Answer})
	}
}

func (c *Controller) fail(outcome Outcome, err error) Outcome {
	terr := &TransportError{Err: err}
	outcome.Kind = OutcomeFailed
	outcome.Err = terr
	outcome.Answer = MsgFailedAnswer
	c.apply(Failed{ExchangeID: outcome.ExchangeID, Err: terr})
	return outcome
}

func (c *Controller) settle(task *Task, outcome Outcome) {
	c.mu.Lock()
	delete(c.pending, task.id)
	c.applyLocked(Settled{ExchangeID: task.id})
	c.mu.Unlock()

	task.cancel()

	attrs := []any{
		"exchange_id", task.id,
		"request_id", outcome.RequestID,
		"outcome", string(outcome.Kind),
		"duration_ms", outcome.Duration().Milliseconds(),
	}
	if outcome.Err != nil {
		attrs = append(attrs, "error", outcome.Err.Error())
		c.logger.Warn("Exchange failed", attrs...)
	} else {
		c.logger.Info("Exchange settled", attrs...)
	}

	defer task.resolve(outcome)
	for _, hook := range c.hooks {
		c.runHook(hook, outcome)
	}
}

func (c *Controller) runHook(hook SettleHook, outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Settle hook panicked", "exchange_id", outcome.ExchangeID, "panic", r)
		}
	}()
	hook(outcome)
}

func (c *Controller) apply(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyLocked(e)
}

func (c *Controller) applyLocked(e Event) {
	c.state = Reduce(c.state, e)
	for _, ch := range c.subs {
		publish(ch, c.state)
	}
}

// publish never blocks: when ch is full the oldest snapshot is dropped.
func publish(ch chan State, s State) {
	select {
	case ch <- s:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- s:
	default:
	}
}
