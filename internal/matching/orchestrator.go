package matching

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/openvolunteer/volmatch/internal/store"
)

// Orchestrator drives one matching run per approved need: claim the run,
// loop the state machine until it completes, honoring the overall run
// deadline. Runs for different needs are independent; the only cross-run
// shared state is the per-member weekly counter behind the Throttle.
type Orchestrator struct {
	runs    RunLog
	exec    *Executor
	logger  *zap.Logger
	budget  int
	timeout time.Duration
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(runs RunLog, exec *Executor, logger *zap.Logger, budget int, timeout time.Duration) *Orchestrator {
	return &Orchestrator{
		runs:    runs,
		exec:    exec,
		logger:  logger,
		budget:  budget,
		timeout: timeout,
	}
}

// HandleFindMatchesRequested processes one FindMatchesRequested trigger.
// Duplicate deliveries for an already running or already completed need lose
// the claim and are silently ignored. A retryable abort (retrieval
// unavailable) releases the claim and returns the error so a redelivered
// trigger can retry; every other path reaches a terminal event.
func (o *Orchestrator) HandleFindMatchesRequested(ctx context.Context, need *store.Need) error {
	claimed, err := o.runs.ClaimRun(ctx, need.ID, need.ApprovedAt)
	if err != nil {
		return err
	}
	if !claimed {
		o.logger.Info("duplicate matching trigger ignored",
			zap.String("need_id", need.ID),
			zap.Time("approved_at", need.ApprovedAt),
		)
		return nil
	}

	o.logger.Info("matching run claimed", zap.String("need_id", need.ID))

	runCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	state := o.loop(runCtx, NewRunState(*need, o.budget))

	if state.Err != nil {
		if err := o.runs.ReleaseRun(context.WithoutCancel(ctx), need.ID, need.ApprovedAt); err != nil {
			o.logger.Warn("releasing aborted run failed",
				zap.String("need_id", need.ID),
				zap.Error(err),
			)
		}
		return state.Err
	}

	return nil
}

// loop feeds events through the pure transition and executes the commands
// it emits, until the run completes. When the deadline fires mid-run, fact
// events already earned by executed commands are still applied, so a
// notification that committed just before the deadline reaches the terminal
// event; only then does a DeadlineExceededEvent complete the run. No new
// side effects start after the deadline except the terminal publish.
func (o *Orchestrator) loop(ctx context.Context, state RunState) RunState {
	queue := []Event{RequestedEvent{Need: state.Need}}
	deadlineFired := false

	for len(queue) > 0 && state.Phase != PhaseCompleted {
		if ctx.Err() != nil && !deadlineFired {
			deadlineFired = true
			o.logger.Warn("run deadline exceeded, completing with partial progress",
				zap.String("need_id", state.Need.ID),
				zap.Int("notified_so_far", len(state.NotifiedMemberIDs())),
			)
			queue = append(queue, DeadlineExceededEvent{})
		}

		ev := queue[0]
		queue = queue[1:]

		var cmds []Command
		state, cmds = Next(state, ev)

		for _, cmd := range cmds {
			if deadlineFired {
				if _, ok := cmd.(PublishResultCommand); !ok {
					continue
				}
			}
			queue = append(queue, o.exec.Execute(ctx, cmd)...)
		}
	}

	return state
}
