package matching

import (
	"errors"
	"testing"

	"github.com/openvolunteer/volmatch/internal/store"
)

func candidate(id string, similarity float64) Candidate {
	return Candidate{Member: store.Member{ID: id}, Similarity: similarity}
}

func testNeed() store.Need {
	return store.Need{ID: "need-1", State: "MN"}
}

// drive feeds one event and asserts the resulting phase.
func drive(t *testing.T, s RunState, ev Event, wantPhase Phase) (RunState, []Command) {
	t.Helper()
	next, cmds := Next(s, ev)
	if next.Phase != wantPhase {
		t.Fatalf("after %T: phase = %s, want %s", ev, next.Phase, wantPhase)
	}
	return next, cmds
}

func TestNextRequestedStartsRetrieval(t *testing.T) {
	s := NewRunState(testNeed(), 5)
	s, cmds := drive(t, s, RequestedEvent{Need: testNeed()}, PhaseRetrieving)

	if len(cmds) != 1 {
		t.Fatalf("got %d commands, want 1", len(cmds))
	}
	if _, ok := cmds[0].(RetrieveCandidatesCommand); !ok {
		t.Fatalf("command = %T, want RetrieveCandidatesCommand", cmds[0])
	}
	_ = s
}

func TestNextEmptyRetrievalCompletesWithPublish(t *testing.T) {
	s := NewRunState(testNeed(), 5)
	s, _ = Next(s, RequestedEvent{Need: testNeed()})

	s, cmds := drive(t, s, CandidatesRetrievedEvent{}, PhaseCompleted)

	if len(cmds) != 1 {
		t.Fatalf("got %d commands, want 1", len(cmds))
	}
	pub, ok := cmds[0].(PublishResultCommand)
	if !ok {
		t.Fatalf("command = %T, want PublishResultCommand", cmds[0])
	}
	if len(pub.NotifiedMemberIDs) != 0 {
		t.Errorf("notified = %v, want empty", pub.NotifiedMemberIDs)
	}
	_ = s
}

func TestNextRetrievalFailureSetsErrWithoutPublish(t *testing.T) {
	cause := errors.New("store down")
	s := NewRunState(testNeed(), 5)
	s, _ = Next(s, RequestedEvent{Need: testNeed()})

	s, cmds := Next(s, RetrievalFailedEvent{Err: cause})
	if s.Phase != PhaseCompleted {
		t.Fatalf("phase = %s, want COMPLETED", s.Phase)
	}
	if !errors.Is(s.Err, cause) {
		t.Errorf("Err = %v, want the retrieval error", s.Err)
	}
	if len(cmds) != 0 {
		t.Errorf("got %d commands, want none (no terminal event on retryable abort)", len(cmds))
	}
}

func TestNextGatesEveryCandidateInOrder(t *testing.T) {
	candidates := []Candidate{candidate("m-1", 0.9), candidate("m-2", 0.7), candidate("m-3", 0.5)}

	s := NewRunState(testNeed(), 5)
	s, _ = Next(s, RequestedEvent{Need: testNeed()})
	s, cmds := drive(t, s, CandidatesRetrievedEvent{Candidates: candidates}, PhaseGating)

	for i := range candidates {
		assess, ok := cmds[0].(AssessCandidateCommand)
		if !ok {
			t.Fatalf("command %d = %T, want AssessCandidateCommand", i, cmds[0])
		}
		if assess.Candidate.Member.ID != candidates[i].Member.ID {
			t.Fatalf("assessed %s at position %d, want %s", assess.Candidate.Member.ID, i, candidates[i].Member.ID)
		}
		s, cmds = Next(s, AssessedEvent{Candidate: assess.Candidate, Relevant: false})
	}

	// Everything gated out: terminal publish with nobody notified.
	if s.Phase != PhaseCompleted {
		t.Fatalf("phase = %s, want COMPLETED", s.Phase)
	}
	pub, ok := cmds[0].(PublishResultCommand)
	if !ok {
		t.Fatalf("command = %T, want PublishResultCommand", cmds[0])
	}
	if len(pub.NotifiedMemberIDs) != 0 {
		t.Errorf("notified = %v, want empty", pub.NotifiedMemberIDs)
	}
}

func TestNextNotifiesRelevantCandidatesBestFirst(t *testing.T) {
	candidates := []Candidate{candidate("m-1", 0.9), candidate("m-2", 0.7), candidate("m-3", 0.5)}

	s := NewRunState(testNeed(), 5)
	s, _ = Next(s, RequestedEvent{Need: testNeed()})
	s, cmds := Next(s, CandidatesRetrievedEvent{Candidates: candidates})

	// m-1 and m-2 pass, m-3 does not.
	verdicts := map[string]bool{"m-1": true, "m-2": true, "m-3": false}
	for range candidates {
		assess := cmds[0].(AssessCandidateCommand)
		s, cmds = Next(s, AssessedEvent{
			Candidate:     assess.Candidate,
			Relevant:      verdicts[assess.Candidate.Member.ID],
			Justification: "matched",
		})
	}

	if s.Phase != PhaseNotifying {
		t.Fatalf("phase = %s, want NOTIFYING", s.Phase)
	}

	// Retrieval order is similarity-descending, so notifications proceed
	// best-first.
	for _, wantID := range []string{"m-1", "m-2"} {
		notify, ok := cmds[0].(NotifyCandidateCommand)
		if !ok {
			t.Fatalf("command = %T, want NotifyCandidateCommand", cmds[0])
		}
		if notify.Candidate.Member.ID != wantID {
			t.Fatalf("notifying %s, want %s", notify.Candidate.Member.ID, wantID)
		}
		if notify.Justification != "matched" {
			t.Errorf("justification = %q, want the gate's", notify.Justification)
		}
		s, cmds = Next(s, DispatchedEvent{Candidate: notify.Candidate, Outcome: DispatchSent})
	}

	pub := cmds[0].(PublishResultCommand)
	if got := pub.NotifiedMemberIDs; len(got) != 2 || got[0] != "m-1" || got[1] != "m-2" {
		t.Errorf("notified = %v, want [m-1 m-2]", got)
	}
}

func TestNextStopsAtNotifyBudget(t *testing.T) {
	var candidates []Candidate
	ids := []string{"m-1", "m-2", "m-3", "m-4", "m-5", "m-6", "m-7"}
	for i, id := range ids {
		candidates = append(candidates, candidate(id, 0.9-float64(i)*0.01))
	}

	s := NewRunState(testNeed(), 5)
	s, _ = Next(s, RequestedEvent{Need: testNeed()})
	s, cmds := Next(s, CandidatesRetrievedEvent{Candidates: candidates})

	for range candidates {
		assess := cmds[0].(AssessCandidateCommand)
		s, cmds = Next(s, AssessedEvent{Candidate: assess.Candidate, Relevant: true})
	}

	sent := 0
	for s.Phase == PhaseNotifying {
		notify := cmds[0].(NotifyCandidateCommand)
		sent++
		s, cmds = Next(s, DispatchedEvent{Candidate: notify.Candidate, Outcome: DispatchSent})
	}

	if sent != 5 {
		t.Errorf("dispatched %d notifications, want exactly the budget of 5", sent)
	}
	pub := cmds[0].(PublishResultCommand)
	if len(pub.NotifiedMemberIDs) != 5 {
		t.Errorf("published %d notified members, want 5", len(pub.NotifiedMemberIDs))
	}
}

func TestNextDegradedDispatchDoesNotConsumeBudget(t *testing.T) {
	candidates := []Candidate{candidate("m-1", 0.9), candidate("m-2", 0.8), candidate("m-3", 0.7)}

	s := NewRunState(testNeed(), 2)
	s, _ = Next(s, RequestedEvent{Need: testNeed()})
	s, cmds := Next(s, CandidatesRetrievedEvent{Candidates: candidates})

	for range candidates {
		assess := cmds[0].(AssessCandidateCommand)
		s, cmds = Next(s, AssessedEvent{Candidate: assess.Candidate, Relevant: true})
	}

	// m-1 hits the weekly cap, m-2 fails at the provider: neither consumes
	// budget, so m-3 still gets its attempt.
	outcomes := []DispatchOutcome{DispatchCapReached, DispatchFailed, DispatchSent}
	for _, outcome := range outcomes {
		notify := cmds[0].(NotifyCandidateCommand)
		s, cmds = Next(s, DispatchedEvent{Candidate: notify.Candidate, Outcome: outcome})
	}

	pub := cmds[0].(PublishResultCommand)
	if len(pub.NotifiedMemberIDs) != 1 || pub.NotifiedMemberIDs[0] != "m-3" {
		t.Errorf("notified = %v, want [m-3]", pub.NotifiedMemberIDs)
	}
}

func TestNextAlreadySentConsumesBudget(t *testing.T) {
	candidates := []Candidate{candidate("m-1", 0.9), candidate("m-2", 0.8)}

	s := NewRunState(testNeed(), 1)
	s, _ = Next(s, RequestedEvent{Need: testNeed()})
	s, cmds := Next(s, CandidatesRetrievedEvent{Candidates: candidates})

	for range candidates {
		assess := cmds[0].(AssessCandidateCommand)
		s, cmds = Next(s, AssessedEvent{Candidate: assess.Candidate, Relevant: true})
	}

	notify := cmds[0].(NotifyCandidateCommand)
	s, cmds = Next(s, DispatchedEvent{Candidate: notify.Candidate, Outcome: DispatchAlreadySent})

	// An idempotent replay counts as delivered, so the budget of 1 is spent
	// and m-2 never gets a command.
	if s.Phase != PhaseCompleted {
		t.Fatalf("phase = %s, want COMPLETED", s.Phase)
	}
	pub := cmds[0].(PublishResultCommand)
	if len(pub.NotifiedMemberIDs) != 1 || pub.NotifiedMemberIDs[0] != "m-1" {
		t.Errorf("notified = %v, want [m-1]", pub.NotifiedMemberIDs)
	}
}

func TestNextSkippedAssessmentIsNotGated(t *testing.T) {
	candidates := []Candidate{candidate("m-1", 0.9)}

	s := NewRunState(testNeed(), 5)
	s, _ = Next(s, RequestedEvent{Need: testNeed()})
	s, cmds := Next(s, CandidatesRetrievedEvent{Candidates: candidates})

	assess := cmds[0].(AssessCandidateCommand)
	s, cmds = Next(s, AssessedEvent{Candidate: assess.Candidate, Relevant: true, Skipped: true})

	if s.Phase != PhaseCompleted {
		t.Fatalf("phase = %s, want COMPLETED", s.Phase)
	}
	pub := cmds[0].(PublishResultCommand)
	if len(pub.NotifiedMemberIDs) != 0 {
		t.Errorf("notified = %v, want empty when the only candidate was skipped", pub.NotifiedMemberIDs)
	}
}

func TestNextDeadlinePublishesPartialResult(t *testing.T) {
	candidates := []Candidate{candidate("m-1", 0.9), candidate("m-2", 0.8)}

	s := NewRunState(testNeed(), 5)
	s, _ = Next(s, RequestedEvent{Need: testNeed()})
	s, cmds := Next(s, CandidatesRetrievedEvent{Candidates: candidates})

	for range candidates {
		assess := cmds[0].(AssessCandidateCommand)
		s, cmds = Next(s, AssessedEvent{Candidate: assess.Candidate, Relevant: true})
	}

	notify := cmds[0].(NotifyCandidateCommand)
	s, _ = Next(s, DispatchedEvent{Candidate: notify.Candidate, Outcome: DispatchSent})

	s, cmds = Next(s, DeadlineExceededEvent{})
	if s.Phase != PhaseCompleted {
		t.Fatalf("phase = %s, want COMPLETED", s.Phase)
	}
	pub := cmds[0].(PublishResultCommand)
	if len(pub.NotifiedMemberIDs) != 1 || pub.NotifiedMemberIDs[0] != "m-1" {
		t.Errorf("notified = %v, want the partial [m-1]", pub.NotifiedMemberIDs)
	}
}

func TestNextCompletedAbsorbsLateEvents(t *testing.T) {
	s := NewRunState(testNeed(), 5)
	s, _ = Next(s, RequestedEvent{Need: testNeed()})
	s, _ = Next(s, CandidatesRetrievedEvent{})

	for _, ev := range []Event{
		RequestedEvent{Need: testNeed()},
		CandidatesRetrievedEvent{Candidates: []Candidate{candidate("m-1", 0.9)}},
		DispatchedEvent{Candidate: candidate("m-1", 0.9), Outcome: DispatchSent},
		DeadlineExceededEvent{},
	} {
		next, cmds := Next(s, ev)
		if next.Phase != PhaseCompleted || len(cmds) != 0 {
			t.Errorf("completed run reacted to %T: phase=%s cmds=%d", ev, next.Phase, len(cmds))
		}
	}
}

func TestNextIgnoresOutOfPhaseEvents(t *testing.T) {
	s := NewRunState(testNeed(), 5)

	// A dispatch event while still in Requested does nothing.
	next, cmds := Next(s, DispatchedEvent{Candidate: candidate("m-1", 0.9), Outcome: DispatchSent})
	if next.Phase != PhaseRequested || len(cmds) != 0 {
		t.Errorf("out-of-phase event advanced the run: phase=%s cmds=%d", next.Phase, len(cmds))
	}
}
