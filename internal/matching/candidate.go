// Package matching implements the match-and-notify pipeline: candidate
// retrieval, the relevance gate, and the event-sourced run orchestration.
package matching

import (
	"math"

	"github.com/openvolunteer/volmatch/internal/store"
)

// Candidate is a member under consideration for one need. Candidates are
// produced by the retriever, consumed within a single run and never
// persisted.
type Candidate struct {
	Member     store.Member
	Similarity float64
	// DistanceKm is -1 when the statewide fallback skipped the distance
	// filter.
	DistanceKm float64
}

// CosineSimilarity returns 1 - cosine distance between two embeddings.
// Mismatched or zero-magnitude vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
