// Package events carries the pipeline's inbound trigger and terminal fact
// events over redis pub/sub.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Channel names shared with the services that approve needs and display
// results.
const (
	ChannelFindMatchesRequested = "EVENT_FIND_MATCHES_REQUESTED"
	ChannelMatchesFound         = "EVENT_MATCHES_FOUND"
	ChannelNoMatchesFound       = "EVENT_NO_MATCHES_FOUND"
)

// FindMatchesRequested is the inbound trigger, delivered at least once per
// need approval.
type FindMatchesRequested struct {
	NeedID string `json:"needId"`
}

// MatchesFound is the terminal event for a run that notified someone.
type MatchesFound struct {
	NeedID            string   `json:"needId"`
	NotifiedMemberIDs []string `json:"notifiedMemberIds"`
}

// NoMatchesFound is the terminal event for a run that notified no one.
type NoMatchesFound struct {
	NeedID string `json:"needId"`
}

// Bus publishes and consumes pipeline events. Consumers of the terminal
// events display them; nothing here blocks on their consumption.
type Bus struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewBus wraps a redis client.
func NewBus(rdb *redis.Client, logger *zap.Logger) *Bus {
	return &Bus{rdb: rdb, logger: logger}
}

// PublishMatchesFound emits MatchesFound for a need.
func (b *Bus) PublishMatchesFound(ctx context.Context, needID string, memberIDs []string) error {
	return b.publish(ctx, ChannelMatchesFound, MatchesFound{
		NeedID:            needID,
		NotifiedMemberIDs: memberIDs,
	})
}

// PublishNoMatchesFound emits NoMatchesFound for a need.
func (b *Bus) PublishNoMatchesFound(ctx context.Context, needID string) error {
	return b.publish(ctx, ChannelNoMatchesFound, NoMatchesFound{NeedID: needID})
}

func (b *Bus) publish(ctx context.Context, channel string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", channel, err)
	}
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// SubscribeFindMatchesRequested consumes triggers until ctx is canceled,
// invoking handler once per delivery. Each handler call runs in its own
// goroutine so concurrent runs for different needs do not serialize.
func (b *Bus) SubscribeFindMatchesRequested(ctx context.Context, handler func(ctx context.Context, needID string)) error {
	sub := b.rdb.Subscribe(ctx, ChannelFindMatchesRequested)
	defer sub.Close()

	// Force the subscription to establish before reporting readiness.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", ChannelFindMatchesRequested, err)
	}

	b.logger.Info("listening for matching triggers", zap.String("channel", ChannelFindMatchesRequested))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var trigger FindMatchesRequested
			if err := json.Unmarshal([]byte(msg.Payload), &trigger); err != nil {
				b.logger.Warn("dropping malformed trigger",
					zap.String("payload", msg.Payload),
					zap.Error(err),
				)
				continue
			}
			if trigger.NeedID == "" {
				b.logger.Warn("dropping trigger without need id", zap.String("payload", msg.Payload))
				continue
			}

			go handler(ctx, trigger.NeedID)
		}
	}
}
