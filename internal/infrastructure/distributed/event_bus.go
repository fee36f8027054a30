package distributed

import (
	"context"
	"errors"
	"fmt"

	"spacegate/internal/core/domain"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const eventsChannel = "spacegate:events"

// ErrSubscriptionClosed is returned when the underlying subscription ends
// without the context being cancelled. Callers usually resubscribe.
var ErrSubscriptionClosed = errors.New("event subscription closed")

// EventHandler receives one participation event. An error is logged and the
// subscription continues.
type EventHandler func(event *domain.ParticipationEvent) error

// EventSource is what the feed consumes: the Redis bus across instances or
// the local hub inside one process.
type EventSource interface {
	Subscribe(ctx context.Context, handler EventHandler) error
}

// EventBus carries participation events between instances over Redis pub/sub.
type EventBus struct {
	client     *redis.Client
	instanceID string
	channel    string
	logger     *zap.SugaredLogger
}

func NewEventBus(client *redis.Client, instanceID string, logger *zap.SugaredLogger) *EventBus {
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		channel:    eventsChannel,
		logger:     logger,
	}
}

func (eb *EventBus) Publish(ctx context.Context, event *domain.ParticipationEvent) error {
	if event.InstanceID == "" {
		event.InstanceID = eb.instanceID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := eb.client.Publish(ctx, eb.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published event",
		"type", event.Type,
		"space_id", event.SpaceID,
	)
	return nil
}

// Subscribe blocks, delivering every event on the channel to handler until
// ctx is done or the subscription closes.
func (eb *EventBus) Subscribe(ctx context.Context, handler EventHandler) error {
	pubsub := eb.client.Subscribe(ctx, eb.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	eb.logger.Infow("subscribed to participation events", "channel", eb.channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return ErrSubscriptionClosed
			}
			var event domain.ParticipationEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				eb.logger.Warnw("failed to unmarshal event", "error", err)
				continue
			}
			if err := handler(&event); err != nil {
				eb.logger.Warnw("error handling event",
					"type", event.Type,
					"error", err,
				)
			}
		}
	}
}
