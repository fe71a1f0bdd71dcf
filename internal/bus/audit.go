package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/campusqa/campusqa/internal/pkg/logger"
)

// AnswerStats counts generated answers.
type AnswerStats interface {
	RecordAnswerGenerated(namespace string, degraded bool)
}

// DecodeAnswerGenerated extracts the payload of an answer.generated event.
// In-process buses deliver the struct itself; Kafka delivers decoded JSON.
func DecodeAnswerGenerated(event Event) (AnswerGenerated, error) {
	switch p := event.Payload.(type) {
	case AnswerGenerated:
		return p, nil
	case *AnswerGenerated:
		if p == nil {
			return AnswerGenerated{}, fmt.Errorf("event %s: nil payload", event.ID)
		}
		return *p, nil
	}

	raw, err := json.Marshal(event.Payload)
	if err != nil {
		return AnswerGenerated{}, fmt.Errorf("event %s: encoding payload: %w", event.ID, err)
	}
	var out AnswerGenerated
	if err := json.Unmarshal(raw, &out); err != nil {
		return AnswerGenerated{}, fmt.Errorf("event %s: decoding payload: %w", event.ID, err)
	}
	return out, nil
}

// NewAnswerAuditHandler returns a Handler for TopicAnswerGenerated that
// writes one audit line per answer and feeds stats when it is non-nil.
func NewAnswerAuditHandler(stats AnswerStats, log *logger.Logger) Handler {
	if log == nil {
		log = logger.Default()
	}
	return func(ctx context.Context, event Event) error {
		a, err := DecodeAnswerGenerated(event)
		if err != nil {
			return err
		}

		if stats != nil {
			stats.RecordAnswerGenerated(a.Namespace, a.Degraded)
		}
		log.WithContext(ctx).Info("Answer generated",
			"event_id", event.ID,
			"correlation_id", event.CorrelationID,
			"request_id", a.RequestID,
			"query_hash", a.QueryHash,
			"namespace", a.Namespace,
			"model", a.Model,
			"degraded", a.Degraded,
			"has_answer", a.HasAnswer,
			"sources", a.Sources,
			"latency_ms", a.LatencyMS,
		)
		return nil
	}
}
