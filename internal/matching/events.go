package matching

import "github.com/openvolunteer/volmatch/internal/store"

// Event is an immutable fact fed into the run state machine. Request events
// come from the trigger; the remaining fact events are produced by the
// effect handlers executing commands.
type Event interface {
	eventName() string
}

// RequestedEvent starts a claimed run for a need.
type RequestedEvent struct {
	Need store.Need
}

func (RequestedEvent) eventName() string { return "requested" }

// CandidatesRetrievedEvent carries the ranked candidate list.
type CandidatesRetrievedEvent struct {
	Candidates []Candidate
}

func (CandidatesRetrievedEvent) eventName() string { return "candidates_retrieved" }

// RetrievalFailedEvent aborts the run as retryable.
type RetrievalFailedEvent struct {
	Err error
}

func (RetrievalFailedEvent) eventName() string { return "retrieval_failed" }

// AssessedEvent records the gate's verdict for one candidate. Skipped is set
// when the gate was unavailable; such candidates are dropped without
// affecting the rest of the run.
type AssessedEvent struct {
	Candidate     Candidate
	Relevant      bool
	Justification string
	Skipped       bool
}

func (AssessedEvent) eventName() string { return "assessed" }

// DispatchOutcome classifies the result of one notification attempt.
type DispatchOutcome int

const (
	// DispatchSent means the provider accepted the push and the
	// notification row was recorded.
	DispatchSent DispatchOutcome = iota
	// DispatchAlreadySent means the (need, member) pair was already
	// notified; it still consumes run budget but sends nothing.
	DispatchAlreadySent
	// DispatchCapReached means the member's weekly budget is exhausted.
	DispatchCapReached
	// DispatchFailed means the provider rejected or the attempt errored;
	// the run moves on to the next candidate.
	DispatchFailed
)

// DispatchedEvent records the outcome of notifying one gated candidate.
type DispatchedEvent struct {
	Candidate Candidate
	Outcome   DispatchOutcome
}

func (DispatchedEvent) eventName() string { return "dispatched" }

// DeadlineExceededEvent terminates the run early with whatever has already
// committed. Partial completion is a valid terminal state.
type DeadlineExceededEvent struct{}

func (DeadlineExceededEvent) eventName() string { return "deadline_exceeded" }
