// Package form implements the query form: the per-tab state of one
// question/answer exchange and the controller that drives it.
package form

// User-visible messages.
const (
	MsgEmptyQuestion = "Please enter a question."
	MsgNoAnswer      = "Sorry, I could not generate a response. Please try again."
	MsgFailedAnswer  = "An error occurred. Please check the server logs for details."
)

// Markup is answer text that may contain HTML meant to be rendered, not
// escaped. It is kept distinct from plain strings so that every place which
// hands it to a page has to go through an explicit conversion.
type Markup string

// TrustGenerated marks text produced by the remote answer service as markup.
// The service output is untrusted input; callers render it through a policy.
func TrustGenerated(text string) Markup {
	return Markup(text)
}

// Phase is the controller's position in the exchange state machine:
// idle -> validating -> (rejected | submitting) -> (succeeded | failed) -> idle.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseValidating Phase = "validating"
	PhaseRejected   Phase = "rejected"
	PhaseSubmitting Phase = "submitting"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// State is everything the render surface shows for one tab.
type State struct {
	Draft      string
	LastAsked  string
	Answer     Markup
	Error      string
	InFlight   bool
	Phase      Phase
	ExchangeID string
	// Version increases with every applied event.
	Version uint64
}

// NewState returns the initial state, showing greeting as the answer.
func NewState(greeting string) State {
	return State{
		Answer: Markup(greeting),
		Phase:  PhaseIdle,
	}
}

// Event is an input to Reduce.
type Event interface {
	event()
}

// DraftEdited replaces the draft text.
type DraftEdited struct{ Text string }

// SubmitRequested begins validation of Text.
type SubmitRequested struct{ Text string }

// Rejected records a validation failure.
type Rejected struct{ Message string }

// Acknowledged ends a rejected submission. The phase returns to idle, or
// to submitting when an earlier exchange is still in flight.
type Acknowledged struct{}

// Started opens an exchange for Question.
type Started struct {
	ExchangeID string
	Question   string
}

// Answered carries generated text.
type Answered struct {
	ExchangeID string
	Answer     Markup
}

// Unanswerable reports a well-formed response without generated text.
type Unanswerable struct{ ExchangeID string }

// Failed reports a transport or API failure.
type Failed struct {
	ExchangeID string
	Err        error
}

// Settled closes an exchange. It is applied exactly once per exchange.
type Settled struct{ ExchangeID string }

func (DraftEdited) event()     {}
func (SubmitRequested) event() {}
func (Rejected) event()        {}
func (Acknowledged) event()    {}
func (Started) event()         {}
func (Answered) event()        {}
func (Unanswerable) event()    {}
func (Failed) event()          {}
func (Settled) event()         {}

// Reduce applies e to s and returns the new state. It has no side effects.
func Reduce(s State, e Event) State {
	switch e := e.(type) {
	case DraftEdited:
		s.Draft = e.Text
	case SubmitRequested:
		s.Draft = e.Text
		s.Phase = PhaseValidating
	case Rejected:
		s.Error = e.Message
		s.Phase = PhaseRejected
	case Acknowledged:
		s.Phase = PhaseIdle
		if s.InFlight {
			s.Phase = PhaseSubmitting
		}
	case Started:
		s.LastAsked = e.Question
		s.Draft = ""
		s.Answer = ""
		s.Error = ""
		s.InFlight = true
		s.Phase = PhaseSubmitting
		s.ExchangeID = e.ExchangeID
	case Answered:
		s.Answer = e.Answer
		s.Phase = PhaseSucceeded
	case Unanswerable:
		s.Answer = MsgNoAnswer
		s.Phase = PhaseSucceeded
	case Failed:
		s.Error = FailureMessage(e.Err)
		s.Answer = MsgFailedAnswer
		s.Phase = PhaseFailed
	case Settled:
		s.InFlight = false
		s.Phase = PhaseIdle
	default:
		return s
	}
	s.Version++
	return s
}

// FailureMessage formats the error line shown for a failed exchange.
func FailureMessage(err error) string {
	reason := "unknown failure"
	if err != nil {
		reason = err.Error()
	}
	return "Failed to get a response: " + reason + ". Please try again later."
}
