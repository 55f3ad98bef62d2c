package matching

import "github.com/openvolunteer/volmatch/internal/store"

// Command is a side effect the state machine asks the executor to perform.
// Executing a command yields fact events that are fed back into the machine.
type Command interface {
	commandName() string
}

// RetrieveCandidatesCommand asks for the ranked candidate list, geocoding
// the need first when it has only free-text location input.
type RetrieveCandidatesCommand struct {
	Need store.Need
}

func (RetrieveCandidatesCommand) commandName() string { return "retrieve_candidates" }

// AssessCandidateCommand runs the relevance gate for one candidate.
type AssessCandidateCommand struct {
	Need      store.Need
	Candidate Candidate
}

func (AssessCandidateCommand) commandName() string { return "assess_candidate" }

// NotifyCandidateCommand reserves a throttle slot and dispatches the push
// for one gated candidate.
type NotifyCandidateCommand struct {
	Need          store.Need
	Candidate     Candidate
	Justification string
}

func (NotifyCandidateCommand) commandName() string { return "notify_candidate" }

// PublishResultCommand emits the terminal MatchesFound/NoMatchesFound event
// and records the completed run.
type PublishResultCommand struct {
	Need              store.Need
	NotifiedMemberIDs []string
}

func (PublishResultCommand) commandName() string { return "publish_result" }
