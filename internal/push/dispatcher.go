package push

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/openvolunteer/volmatch/internal/matching"
	"github.com/openvolunteer/volmatch/internal/store"
)

// NotificationStore is the durable idempotency boundary for dispatch.
type NotificationStore interface {
	NotificationExists(ctx context.Context, needID, memberID string) (bool, error)
	RecordNotification(ctx context.Context, needID, memberID, whyRelevant string) (bool, error)
}

// Sender delivers one push message to the provider.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

// Dispatcher sends at most one notification per (need, member) pair. An
// existing row short-circuits to AlreadySent before anything leaves the
// process; the row is written once the provider accepts. A crash between
// those two steps leaves a sent-but-unrecorded push, an accepted
// at-least-once delivery gap that the dispatcher does not try to close.
type Dispatcher struct {
	store  NotificationStore
	sender Sender
	logger *zap.Logger
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(store NotificationStore, sender Sender, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{store: store, sender: sender, logger: logger}
}

// Dispatch notifies one member about one need.
func (d *Dispatcher) Dispatch(ctx context.Context, need *store.Need, member *store.Member, justification string) (matching.DispatchOutcome, error) {
	exists, err := d.store.NotificationExists(ctx, need.ID, member.ID)
	if err != nil {
		return matching.DispatchFailed, fmt.Errorf("check existing notification: %w", err)
	}
	if exists {
		d.logger.Info("notification already sent, skipping",
			zap.String("need_id", need.ID),
			zap.String("member_id", member.ID),
		)
		return matching.DispatchAlreadySent, nil
	}

	msg := &Message{
		To:    member.PushToken,
		Title: fmt.Sprintf("A volunteer need near you: %s", need.Title),
		Body:  justification,
		Data: map[string]string{
			"needId": need.ID,
		},
	}

	if err := d.sender.Send(ctx, msg); err != nil {
		return matching.DispatchFailed, fmt.Errorf("send push: %w", err)
	}

	inserted, err := d.store.RecordNotification(ctx, need.ID, member.ID, justification)
	if err != nil {
		// The push went out; surface the recording failure but do not
		// pretend nothing was sent.
		return matching.DispatchFailed, fmt.Errorf("record notification after send: %w", err)
	}
	if !inserted {
		// Lost the race against a concurrent run; the unique constraint
		// kept a single row.
		return matching.DispatchAlreadySent, nil
	}

	d.logger.Info("notification sent",
		zap.String("need_id", need.ID),
		zap.String("member_id", member.ID),
	)

	return matching.DispatchSent, nil
}
