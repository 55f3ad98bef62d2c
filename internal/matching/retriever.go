package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/openvolunteer/volmatch/internal/geo"
	"github.com/openvolunteer/volmatch/internal/store"
)

// ErrRetrievalUnavailable is returned when the member store cannot be
// queried. The orchestrator treats the whole run as retryable.
var ErrRetrievalUnavailable = errors.New("candidate retrieval unavailable")

// MemberSource yields members eligible for notification: active, with an
// embedding, under the weekly cap, in the given state.
type MemberSource interface {
	EligibleMembers(ctx context.Context, state string, weeklyCap int) ([]store.Member, error)
}

// step mirrors one filtering stage's bookkeeping for logs.
type step struct {
	initial int
	dropped int
	left    int
}

// Retriever builds the ranked, distance-bounded candidate list for a need.
// Distance is strictly a cutoff and never a ranking weight: once geographic
// eligibility is established, relevance wins on content alone.
type Retriever struct {
	source    MemberSource
	logger    *zap.Logger
	radiusKm  float64
	weeklyCap int
	topK      int
}

// NewRetriever constructs a Retriever.
func NewRetriever(source MemberSource, logger *zap.Logger, radiusKm float64, weeklyCap, topK int) *Retriever {
	return &Retriever{
		source:    source,
		logger:    logger,
		radiusKm:  radiusKm,
		weeklyCap: weeklyCap,
		topK:      topK,
	}
}

// FindCandidates runs the filter stages in order: eligibility (delegated to
// the store), hard distance cutoff (skipped when the need has no location),
// similarity ranking, and the top-k cap.
func (r *Retriever) FindCandidates(ctx context.Context, need *store.Need) ([]Candidate, error) {
	members, err := r.source.EligibleMembers(ctx, need.State, r.weeklyCap)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrievalUnavailable, err)
	}

	r.logger.Debug("eligible members loaded",
		zap.String("need_id", need.ID),
		zap.String("state", need.State),
		zap.Int("count", len(members)),
	)

	candidates, distStep := r.applyDistanceFilter(need, members)
	r.logStep("distance", need.ID, distStep)

	sortCandidates(candidates)

	capStep := step{initial: len(candidates), left: len(candidates)}
	if len(candidates) > r.topK {
		candidates = candidates[:r.topK]
		capStep.dropped = capStep.initial - r.topK
		capStep.left = r.topK
	}
	r.logStep("top_k", need.ID, capStep)

	return candidates, nil
}

// applyDistanceFilter excludes members beyond the radius. When the need has
// no resolvable location the statewide fallback keeps every eligible member
// in the state, location or not.
func (r *Retriever) applyDistanceFilter(need *store.Need, members []store.Member) ([]Candidate, step) {
	info := step{initial: len(members)}
	candidates := make([]Candidate, 0, len(members))

	statewide := !need.HasLocation()
	for _, m := range members {
		if statewide {
			candidates = append(candidates, Candidate{
				Member:     m,
				Similarity: CosineSimilarity(need.Embedding, m.Embedding),
				DistanceKm: -1,
			})
			continue
		}

		if !m.HasLocation() {
			info.dropped++
			continue
		}

		d := geo.Haversine(*need.Latitude, *need.Longitude, *m.Latitude, *m.Longitude)
		if d > r.radiusKm {
			info.dropped++
			continue
		}

		candidates = append(candidates, Candidate{
			Member:     m,
			Similarity: CosineSimilarity(need.Embedding, m.Embedding),
			DistanceKm: d,
		})
	}

	if statewide {
		r.logger.Info("need has no location, statewide fallback active",
			zap.String("need_id", need.ID),
			zap.String("state", need.State),
		)
	}

	info.left = len(candidates)
	return candidates, info
}

// sortCandidates orders by similarity descending, breaking ties by member id
// so runs are reproducible.
func sortCandidates(candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].Member.ID < candidates[j].Member.ID
	})
}

func (r *Retriever) logStep(name, needID string, info step) {
	r.logger.Info("retrieval step",
		zap.String("need_id", needID),
		zap.String("name", name),
		zap.Int("initial", info.initial),
		zap.Int("dropped", info.dropped),
		zap.Int("left", info.left),
	)
}
