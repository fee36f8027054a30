package distributed

import (
	"context"
	"sync"

	"spacegate/internal/core/domain"

	"go.uber.org/zap"
)

const hubBufferSize = 64

// LocalHub fans participation events out to subscribers in the same process.
// It is used when Redis is disabled. A subscriber that falls behind loses
// events rather than blocking publishers.
type LocalHub struct {
	mu          sync.RWMutex
	subscribers map[chan *domain.ParticipationEvent]struct{}
	instanceID  string
	logger      *zap.SugaredLogger
}

func NewLocalHub(instanceID string, logger *zap.SugaredLogger) *LocalHub {
	return &LocalHub{
		subscribers: make(map[chan *domain.ParticipationEvent]struct{}),
		instanceID:  instanceID,
		logger:      logger,
	}
}

func (h *LocalHub) Publish(_ context.Context, event *domain.ParticipationEvent) error {
	if event.InstanceID == "" {
		event.InstanceID = h.instanceID
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
			h.logger.Warnw("dropping event for slow subscriber",
				"type", event.Type,
				"space_id", event.SpaceID,
			)
		}
	}
	return nil
}

func (h *LocalHub) Subscribe(ctx context.Context, handler EventHandler) error {
	ch := make(chan *domain.ParticipationEvent, hubBufferSize)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.subscribers, ch)
		h.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-ch:
			if err := handler(event); err != nil {
				h.logger.Warnw("error handling event",
					"type", event.Type,
					"error", err,
				)
			}
		}
	}
}

func (h *LocalHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
