package assessment

import (
	"context"

	"github.com/ahrav/go-examen/internal/domain"
	"github.com/ahrav/go-examen/pkg/events"
)

// EventSource is the Source stamped on envelopes emitted by the service.
const EventSource = "assessment-service"

// Envelope wraps a lifecycle event for an events.EventSink.
func Envelope(ev domain.LifecycleEvent) (events.Envelope, error) {
	payload, err := ev.MarshalPayload()
	if err != nil {
		return events.Envelope{}, err
	}
	return events.NewEnvelope(
		string(ev.Type),
		EventSource,
		ev.Payload.AnswerID,
		ev.IdempotencyKey(),
		ev.OccurredAt,
		payload,
	), nil
}

// publish drains the answer's pending events into the sink. Delivery is best
// effort: the answer is already saved, so failures are logged and dropped.
func (s *Service) publish(ctx context.Context, a *domain.Answer) {
	for _, ev := range a.PullEvents() {
		env, err := Envelope(ev)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to build lifecycle event",
				"answer_id", a.ID().String(), "event_type", string(ev.Type), "error", err)
			continue
		}
		if err := s.sink.Append(ctx, env); err != nil {
			s.logger.WarnContext(ctx, "failed to emit lifecycle event",
				"answer_id", a.ID().String(), "event_type", env.Type, "error", err)
		}
	}
}
