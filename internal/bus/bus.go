// Package bus provides event bus implementations for publishing service events.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Bus defines the interface for event bus implementations.
type Bus interface {
	// Publish publishes an event to a topic.
	Publish(ctx context.Context, topic string, event Event) error

	// Subscribe subscribes to events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close closes the bus and releases resources.
	Close() error
}

// Event represents a bus event.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the event type (e.g., "answer.generated").
	Type string `json:"type"`

	// Source is the service that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created (unix milliseconds).
	Timestamp int64 `json:"timestamp"`

	// CorrelationID links the event to the request that caused it.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Payload contains the event data.
	Payload any `json:"payload"`
}

// NewEvent creates an event with a fresh id and the current timestamp.
func NewEvent(eventType, source, correlationID string, payload any) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UnixMilli(),
		CorrelationID: correlationID,
		Payload:       payload,
	}
}

// Topics.
const (
	// TopicAnswerGenerated carries an AnswerGenerated payload after a fresh
	// answer has been cached.
	TopicAnswerGenerated = "answer.generated"
)

// AnswerGenerated describes a freshly generated answer.
type AnswerGenerated struct {
	RequestID int    `json:"request_id"`
	QueryHash string `json:"query_hash"`
	Namespace string `json:"namespace"`
	Model     string `json:"model"`
	Degraded  bool   `json:"degraded"`
	HasAnswer bool   `json:"has_answer"`
	Sources   int    `json:"sources"`
	LatencyMS int64  `json:"latency_ms"`
}
