package matching

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/openvolunteer/volmatch/internal/ai"
	"github.com/openvolunteer/volmatch/internal/store"
)

func TestThresholdGateAssess(t *testing.T) {
	tests := []struct {
		name       string
		similarity float64
		want       bool
	}{
		{"well above", 0.9, true},
		{"just above", 0.7, true},
		{"exactly at threshold is not relevant", 0.6, false},
		{"below", 0.5, false},
		{"negative", -0.2, false},
	}

	gate := &ThresholdGate{Threshold: 0.6}
	need := &store.Need{ID: "need-1"}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relevant, justification, err := gate.Assess(context.Background(), need, Candidate{Similarity: tt.similarity})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if relevant != tt.want {
				t.Errorf("relevant = %v, want %v", relevant, tt.want)
			}
			if justification == "" {
				t.Error("justification is empty")
			}
		})
	}
}

type stubJudge struct {
	assessment *ai.Assessment
	err        error

	gotNeed      ai.NeedSummary
	gotCandidate ai.CandidateProfile
	calls        int
}

func (s *stubJudge) Assess(_ context.Context, need ai.NeedSummary, candidate ai.CandidateProfile) (*ai.Assessment, error) {
	s.calls++
	s.gotNeed = need
	s.gotCandidate = candidate
	return s.assessment, s.err
}

func TestJudgeGateAssess(t *testing.T) {
	judge := &stubJudge{assessment: &ai.Assessment{
		Relevant: true,
		Score:    0.85,
		Reason:   "gardening experience matches the community garden need",
	}}

	gate := NewJudgeGate(judge, zap.NewNop())

	need := &store.Need{ID: "need-1", Title: "Community garden", Description: "Weekend planting help"}
	candidate := Candidate{
		Member:     store.Member{ID: "m-1", SearchableText: "avid gardener"},
		Similarity: 0.72,
	}

	relevant, justification, err := gate.Assess(context.Background(), need, candidate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !relevant {
		t.Error("relevant = false, want true")
	}
	if justification != judge.assessment.Reason {
		t.Errorf("justification = %q, want the judge's reason", justification)
	}

	if judge.gotNeed.Title != need.Title {
		t.Errorf("judge saw title %q, want %q", judge.gotNeed.Title, need.Title)
	}
	if judge.gotCandidate.MemberID != "m-1" {
		t.Errorf("judge saw member %q, want m-1", judge.gotCandidate.MemberID)
	}
}

func TestJudgeGateAssessUnavailable(t *testing.T) {
	judge := &stubJudge{err: errors.New("quota exceeded")}
	gate := NewJudgeGate(judge, zap.NewNop())

	_, _, err := gate.Assess(context.Background(), &store.Need{ID: "need-1"}, Candidate{Member: store.Member{ID: "m-1"}})
	if !errors.Is(err, ErrGateUnavailable) {
		t.Errorf("error = %v, want ErrGateUnavailable", err)
	}
}
