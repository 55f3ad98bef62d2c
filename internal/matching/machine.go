package matching

import "github.com/openvolunteer/volmatch/internal/store"

// Phase is the run's position in the pipeline.
type Phase string

const (
	PhaseRequested  Phase = "REQUESTED"
	PhaseRetrieving Phase = "RETRIEVING"
	PhaseGating     Phase = "GATING"
	PhaseNotifying  Phase = "NOTIFYING"
	PhaseCompleted  Phase = "COMPLETED"
)

// gated pairs a relevant candidate with the gate's justification.
type gated struct {
	candidate     Candidate
	justification string
}

// RunState is the in-memory state of one matching run. It is advanced only
// through Next, which is pure: every side effect lives behind a Command.
type RunState struct {
	Phase Phase
	Need  store.Need

	// Budget is the per-need notification budget (the best matches consume
	// it first).
	Budget int

	// Err is set when the run aborted before a terminal event; the
	// orchestrator releases the claim and surfaces it as retryable.
	Err error

	candidates []Candidate
	gateIdx    int
	gatedList  []gated
	notifyIdx  int
	notified   []string
}

// NewRunState seeds a run at the Requested phase.
func NewRunState(need store.Need, budget int) RunState {
	return RunState{Phase: PhaseRequested, Need: need, Budget: budget}
}

// NotifiedMemberIDs returns the members notified (or already notified) so
// far, in similarity-descending order.
func (s RunState) NotifiedMemberIDs() []string {
	return s.notified
}

// Next is the pure transition function: (state, event) -> (state, commands).
// Events that do not apply to the current phase are ignored, which makes
// duplicate or late events harmless by construction.
func Next(s RunState, ev Event) (RunState, []Command) {
	if s.Phase == PhaseCompleted {
		return s, nil
	}

	if _, ok := ev.(DeadlineExceededEvent); ok {
		return complete(s)
	}

	switch e := ev.(type) {
	case RequestedEvent:
		if s.Phase != PhaseRequested {
			return s, nil
		}
		s.Phase = PhaseRetrieving
		return s, []Command{RetrieveCandidatesCommand{Need: s.Need}}

	case RetrievalFailedEvent:
		if s.Phase != PhaseRetrieving {
			return s, nil
		}
		s.Phase = PhaseCompleted
		s.Err = e.Err
		return s, nil

	case CandidatesRetrievedEvent:
		if s.Phase != PhaseRetrieving {
			return s, nil
		}
		if len(e.Candidates) == 0 {
			return complete(s)
		}
		s.Phase = PhaseGating
		s.candidates = e.Candidates
		s.gateIdx = 0
		return s, []Command{AssessCandidateCommand{Need: s.Need, Candidate: s.candidates[0]}}

	case AssessedEvent:
		if s.Phase != PhaseGating {
			return s, nil
		}
		if e.Relevant && !e.Skipped {
			s.gatedList = append(s.gatedList, gated{candidate: e.Candidate, justification: e.Justification})
		}
		s.gateIdx++
		if s.gateIdx < len(s.candidates) {
			return s, []Command{AssessCandidateCommand{Need: s.Need, Candidate: s.candidates[s.gateIdx]}}
		}
		if len(s.gatedList) == 0 {
			return complete(s)
		}
		s.Phase = PhaseNotifying
		s.notifyIdx = 0
		return s, []Command{notifyCommand(s)}

	case DispatchedEvent:
		if s.Phase != PhaseNotifying {
			return s, nil
		}
		switch e.Outcome {
		case DispatchSent, DispatchAlreadySent:
			s.notified = append(s.notified, e.Candidate.Member.ID)
		case DispatchCapReached, DispatchFailed:
			// candidate degraded, run continues
		}
		s.notifyIdx++
		if len(s.notified) >= s.Budget || s.notifyIdx >= len(s.gatedList) {
			return complete(s)
		}
		return s, []Command{notifyCommand(s)}
	}

	return s, nil
}

func notifyCommand(s RunState) Command {
	g := s.gatedList[s.notifyIdx]
	return NotifyCandidateCommand{
		Need:          s.Need,
		Candidate:     g.candidate,
		Justification: g.justification,
	}
}

func complete(s RunState) (RunState, []Command) {
	s.Phase = PhaseCompleted
	return s, []Command{PublishResultCommand{
		Need:              s.Need,
		NotifiedMemberIDs: s.notified,
	}}
}
