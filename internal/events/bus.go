package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/storefront-api/internal/obs"
)

// Event is a domain fact emitted after a committed state change.
type Event struct {
	ID          uuid.UUID       `json:"id"`
	Topic       string          `json:"topic"`
	AggregateID uuid.UUID       `json:"aggregate_id"`
	UserID      uuid.UUID       `json:"user_id"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// Sink receives emitted events, e.g. the asynq queue in the API or Kafka in the worker.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, event Event) error
}

// Emitter is what services depend on to publish events.
type Emitter interface {
	Emit(ctx context.Context, topic string, aggregateID, userID uuid.UUID, payload any) (Event, error)
}

// Bus builds events and fans them out to its sinks.
type Bus struct {
	Sinks []Sink
	Now   func() time.Time
}

// Emit encodes the payload and hands the event to every sink. Sink failures are joined and
// returned after all sinks have been tried.
func (b *Bus) Emit(ctx context.Context, topic string, aggregateID, userID uuid.UUID, payload any) (Event, error) {
	if b == nil {
		return Event{}, errors.New("events: bus not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Event{}, errors.New("events: topic is required")
	}
	if aggregateID == uuid.Nil {
		return Event{}, errors.New("events: aggregate id is required")
	}
	encoded, err := encodePayload(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: encode payload: %w", err)
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	ev := Event{
		ID:          uuid.New(),
		Topic:       topic,
		AggregateID: aggregateID,
		UserID:      userID,
		Payload:     encoded,
		OccurredAt:  now().UTC(),
	}
	var joined error
	for _, sink := range b.Sinks {
		if sink == nil {
			continue
		}
		if err := sink.Deliver(ctx, ev); err != nil {
			obs.IncCounter(obs.EventsPublishedTotal, sink.Name(), topic, "error")
			joined = errors.Join(joined, fmt.Errorf("events: %s: %w", sink.Name(), err))
			continue
		}
		obs.IncCounter(obs.EventsPublishedTotal, sink.Name(), topic, "ok")
	}
	return ev, joined
}

// EmitAfterCommit publishes an event for a change that is already durable. Delivery failures are
// logged, not returned, so callers never report a committed write as failed.
func EmitAfterCommit(ctx context.Context, e Emitter, topic string, aggregateID, userID uuid.UUID, payload any) {
	if e == nil {
		return
	}
	if _, err := e.Emit(ctx, topic, aggregateID, userID, payload); err != nil {
		obs.Logger(ctx).Warn().Err(err).Str("topic", topic).Str("aggregate_id", aggregateID.String()).Msg("event delivery failed")
	}
}

func encodePayload(payload any) (json.RawMessage, error) {
	if payload == nil {
		return json.RawMessage("{}"), nil
	}
	switch v := payload.(type) {
	case json.RawMessage:
		return validJSON(v)
	case []byte:
		return validJSON(v)
	case string:
		return validJSON([]byte(v))
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return data, nil
	}
}

func validJSON(data []byte) (json.RawMessage, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(data) {
		return nil, errors.New("payload is not valid json")
	}
	return append(json.RawMessage(nil), data...), nil
}
