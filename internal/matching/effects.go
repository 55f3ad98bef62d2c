package matching

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/openvolunteer/volmatch/internal/geo"
	"github.com/openvolunteer/volmatch/internal/store"
)

// CandidateSource produces the ranked candidate list for a need.
type CandidateSource interface {
	FindCandidates(ctx context.Context, need *store.Need) ([]Candidate, error)
}

// Geocoder resolves free-text city/region into coarsened coordinates.
type Geocoder interface {
	Resolve(ctx context.Context, city, region string) (*geo.Location, error)
}

// NeedLocations persists freshly resolved coordinates, best effort.
type NeedLocations interface {
	SetNeedLocation(ctx context.Context, needID string, lat, lng float64) error
}

// Throttle reserves and releases weekly notification slots.
type Throttle interface {
	TryReserve(ctx context.Context, memberID string) (bool, error)
	Release(ctx context.Context, memberID string) error
}

// Dispatcher sends one push and records it idempotently.
type Dispatcher interface {
	Dispatch(ctx context.Context, need *store.Need, member *store.Member, justification string) (DispatchOutcome, error)
}

// Publisher emits the terminal events consumed by external collaborators.
type Publisher interface {
	PublishMatchesFound(ctx context.Context, needID string, memberIDs []string) error
	PublishNoMatchesFound(ctx context.Context, needID string) error
}

// RunLog records run claims and terminal states. The (need, approval) pair
// is the deduplication key for at-least-once triggers.
type RunLog interface {
	ClaimRun(ctx context.Context, needID string, approvedAt time.Time) (bool, error)
	CompleteRun(ctx context.Context, needID string, approvedAt time.Time, state string, notified int) error
	ReleaseRun(ctx context.Context, needID string, approvedAt time.Time) error
}

// Executor runs commands against the injected collaborators and returns the
// fact events to feed back into the machine. Every per-candidate failure is
// absorbed here: a command yields an event, never an error that would abort
// the run.
type Executor struct {
	source     CandidateSource
	geocoder   Geocoder
	locations  NeedLocations
	gate       Gate
	throttle   Throttle
	dispatcher Dispatcher
	publisher  Publisher
	runs       RunLog
	logger     *zap.Logger
}

// NewExecutor wires the effect handlers.
func NewExecutor(
	source CandidateSource,
	geocoder Geocoder,
	locations NeedLocations,
	gate Gate,
	throttle Throttle,
	dispatcher Dispatcher,
	publisher Publisher,
	runs RunLog,
	logger *zap.Logger,
) *Executor {
	return &Executor{
		source:     source,
		geocoder:   geocoder,
		locations:  locations,
		gate:       gate,
		throttle:   throttle,
		dispatcher: dispatcher,
		publisher:  publisher,
		runs:       runs,
		logger:     logger,
	}
}

// Execute performs one command and returns the resulting fact events.
func (x *Executor) Execute(ctx context.Context, cmd Command) []Event {
	switch c := cmd.(type) {
	case RetrieveCandidatesCommand:
		return x.retrieve(ctx, c)
	case AssessCandidateCommand:
		return x.assess(ctx, c)
	case NotifyCandidateCommand:
		return x.notify(ctx, c)
	case PublishResultCommand:
		return x.publish(ctx, c)
	}
	return nil
}

func (x *Executor) retrieve(ctx context.Context, c RetrieveCandidatesCommand) []Event {
	need := c.Need

	// Geocode lazily when the need only has free-text location input.
	// Provider failure means "no location": the statewide fallback applies.
	if !need.HasLocation() && need.City != "" {
		loc, err := x.geocoder.Resolve(ctx, need.City, need.Region)
		if err != nil {
			x.logger.Warn("geocoding failed, falling back to statewide matching",
				zap.String("need_id", need.ID),
				zap.Error(err),
			)
		} else {
			need.Latitude = &loc.Lat
			need.Longitude = &loc.Lng
			if err := x.locations.SetNeedLocation(ctx, need.ID, loc.Lat, loc.Lng); err != nil {
				x.logger.Warn("persisting resolved need location failed",
					zap.String("need_id", need.ID),
					zap.Error(err),
				)
			}
		}
	}

	candidates, err := x.source.FindCandidates(ctx, &need)
	if err != nil {
		return []Event{RetrievalFailedEvent{Err: err}}
	}
	return []Event{CandidatesRetrievedEvent{Candidates: candidates}}
}

func (x *Executor) assess(ctx context.Context, c AssessCandidateCommand) []Event {
	relevant, justification, err := x.gate.Assess(ctx, &c.Need, c.Candidate)
	if err != nil {
		x.logger.Warn("relevance gate failed, skipping candidate",
			zap.String("need_id", c.Need.ID),
			zap.String("member_id", c.Candidate.Member.ID),
			zap.Error(err),
		)
		return []Event{AssessedEvent{Candidate: c.Candidate, Skipped: true}}
	}

	if !relevant {
		x.logger.Info("candidate gated out",
			zap.String("need_id", c.Need.ID),
			zap.String("member_id", c.Candidate.Member.ID),
			zap.Float64("similarity", c.Candidate.Similarity),
			zap.String("reason", justification),
		)
	}

	return []Event{AssessedEvent{
		Candidate:     c.Candidate,
		Relevant:      relevant,
		Justification: justification,
	}}
}

func (x *Executor) notify(ctx context.Context, c NotifyCandidateCommand) []Event {
	memberID := c.Candidate.Member.ID

	reserved, err := x.throttle.TryReserve(ctx, memberID)
	if err != nil {
		x.logger.Warn("throttle reservation failed, treating as cap reached",
			zap.String("need_id", c.Need.ID),
			zap.String("member_id", memberID),
			zap.Error(err),
		)
		return []Event{DispatchedEvent{Candidate: c.Candidate, Outcome: DispatchCapReached}}
	}
	if !reserved {
		x.logger.Info("weekly cap reached, skipping member",
			zap.String("need_id", c.Need.ID),
			zap.String("member_id", memberID),
		)
		return []Event{DispatchedEvent{Candidate: c.Candidate, Outcome: DispatchCapReached}}
	}

	outcome, err := x.dispatcher.Dispatch(ctx, &c.Need, &c.Candidate.Member, c.Justification)
	if err != nil {
		x.logger.Warn("notification dispatch failed",
			zap.String("need_id", c.Need.ID),
			zap.String("member_id", memberID),
			zap.Error(err),
		)
	}

	// A reservation is only kept when it is backed by a new notification
	// row; otherwise the counter would drift from the rows.
	if outcome != DispatchSent {
		if err := x.throttle.Release(ctx, memberID); err != nil {
			x.logger.Warn("throttle release failed",
				zap.String("member_id", memberID),
				zap.Error(err),
			)
		}
	}

	return []Event{DispatchedEvent{Candidate: c.Candidate, Outcome: outcome}}
}

func (x *Executor) publish(ctx context.Context, c PublishResultCommand) []Event {
	// The terminal event must go out even when the run deadline fired.
	ctx = context.WithoutCancel(ctx)

	needID := c.Need.ID
	notified := c.NotifiedMemberIDs

	runState := store.RunStateNoMatchesFound
	var err error
	if len(notified) > 0 {
		runState = store.RunStateMatchesFound
		err = x.publisher.PublishMatchesFound(ctx, needID, notified)
	} else {
		err = x.publisher.PublishNoMatchesFound(ctx, needID)
	}
	if err != nil {
		x.logger.Warn("publishing terminal event failed",
			zap.String("need_id", needID),
			zap.Error(err),
		)
	}

	if err := x.runs.CompleteRun(ctx, needID, c.Need.ApprovedAt, runState, len(notified)); err != nil {
		x.logger.Warn("recording completed run failed",
			zap.String("need_id", needID),
			zap.Error(err),
		)
	}

	x.logger.Info("matching run completed",
		zap.String("need_id", needID),
		zap.String("result", runState),
		zap.Int("notified", len(notified)),
	)

	return nil
}

// IsRetryable reports whether the error aborting a run should be retried by
// a later trigger delivery.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetrievalUnavailable)
}
