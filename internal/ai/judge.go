// Package ai defines the relevance-judgment contract implemented by
// reasoning providers.
package ai

import "context"

// NeedSummary is the slice of a need a judge sees.
type NeedSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// CandidateProfile is the slice of a member a judge sees, together with the
// embedding similarity the retriever computed.
type CandidateProfile struct {
	MemberID       string  `json:"memberId"`
	SearchableText string  `json:"profile"`
	Similarity     float64 `json:"similarity"`
}

// Assessment is a judge's verdict for one (need, candidate) pair.
type Assessment struct {
	Relevant bool
	Score    float64
	Reason   string
	Raw      string
}

// Judge decides whether a geographically eligible candidate is topically
// relevant enough to notify. Implementations are called at most once per
// candidate per run.
type Judge interface {
	Assess(ctx context.Context, need NeedSummary, candidate CandidateProfile) (*Assessment, error)
}
