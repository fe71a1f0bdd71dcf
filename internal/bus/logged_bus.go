package bus

import (
	"context"

	"github.com/campusqa/campusqa/internal/pkg/logger"
)

// LoggedBus wraps another Bus and writes every published event to the
// structured log at debug level, keyed by the request id in ctx.
type LoggedBus struct {
	inner Bus
	log   *logger.Logger
}

// NewLoggedBus creates a new logged bus that wraps an inner bus.
func NewLoggedBus(inner Bus, log *logger.Logger) *LoggedBus {
	if log == nil {
		log = logger.Default()
	}
	return &LoggedBus{
		inner: inner,
		log:   log,
	}
}

// Publish logs the event and then delegates to the inner bus.
func (b *LoggedBus) Publish(ctx context.Context, topic string, event Event) error {
	log := b.log.WithContext(ctx)
	log.Debug("Publishing event",
		"topic", topic,
		"event_id", event.ID,
		"type", event.Type,
		"payload", event.Payload,
	)

	err := b.inner.Publish(ctx, topic, event)
	if err != nil {
		log.Warn("Failed to publish event", "topic", topic, "event_id", event.ID, "error", err)
	}
	return err
}

// Subscribe delegates to the inner bus.
func (b *LoggedBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	return b.inner.Subscribe(ctx, topic, handler)
}

// Close closes the inner bus.
func (b *LoggedBus) Close() error {
	return b.inner.Close()
}
