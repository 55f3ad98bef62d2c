package matching

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/openvolunteer/volmatch/internal/ai"
	"github.com/openvolunteer/volmatch/internal/store"
)

// ErrGateUnavailable marks a gate failure for one candidate. The candidate
// is skipped for the run, never retried within it, and never blocks the
// rest of the run.
var ErrGateUnavailable = errors.New("relevance gate unavailable")

// Gate decides whether a geographically eligible candidate is worth a
// notification, with a human-readable justification.
type Gate interface {
	Assess(ctx context.Context, need *store.Need, candidate Candidate) (bool, string, error)
}

// ThresholdGate is the default gate: relevant when embedding similarity
// clears the threshold.
type ThresholdGate struct {
	Threshold float64
}

// Assess applies the similarity threshold.
func (g *ThresholdGate) Assess(_ context.Context, _ *store.Need, candidate Candidate) (bool, string, error) {
	if candidate.Similarity > g.Threshold {
		return true, fmt.Sprintf("profile similarity %.2f is above the %.2f relevance threshold", candidate.Similarity, g.Threshold), nil
	}
	return false, fmt.Sprintf("profile similarity %.2f is at or below the %.2f relevance threshold", candidate.Similarity, g.Threshold), nil
}

// JudgeGate delegates the relevance decision to a reasoning provider. The
// surrounding run calls Assess at most once per candidate.
type JudgeGate struct {
	judge  ai.Judge
	logger *zap.Logger
}

// NewJudgeGate wraps an ai.Judge into a Gate.
func NewJudgeGate(judge ai.Judge, logger *zap.Logger) *JudgeGate {
	return &JudgeGate{judge: judge, logger: logger}
}

// Assess asks the judge for a verdict on one candidate.
func (g *JudgeGate) Assess(ctx context.Context, need *store.Need, candidate Candidate) (bool, string, error) {
	assessment, err := g.judge.Assess(ctx,
		ai.NeedSummary{
			ID:          need.ID,
			Title:       need.Title,
			Description: need.Description,
		},
		ai.CandidateProfile{
			MemberID:       candidate.Member.ID,
			SearchableText: candidate.Member.SearchableText,
			Similarity:     candidate.Similarity,
		},
	)
	if err != nil {
		return false, "", fmt.Errorf("%w: %w", ErrGateUnavailable, err)
	}

	g.logger.Debug("judge verdict",
		zap.String("need_id", need.ID),
		zap.String("member_id", candidate.Member.ID),
		zap.Bool("relevant", assessment.Relevant),
		zap.Float64("score", assessment.Score),
	)

	return assessment.Relevant, assessment.Reason, nil
}
