package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-detailing/internal/db"
)

// Event is a persisted domain event.
type Event struct {
	ID          uuid.UUID       `json:"id"`
	Topic       string          `json:"topic"`
	AggregateID string          `json:"aggregateId"`
	Payload     json.RawMessage `json:"payload"`
	OccurredAt  time.Time       `json:"occurredAt"`
}

// EventStore defines the persistence operations required by the event bus.
type EventStore interface {
	InsertDomainEvent(ctx context.Context, ev Event) error
}

// DeliveryScheduler hands emitted events to asynchronous delivery.
type DeliveryScheduler interface {
	Schedule(ctx context.Context, ev Event) error
}

// Notifier reacts to emitted events.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Bus persists domain events and fans them out to downstream handlers. When a
// Scheduler is configured notifiers run from the worker instead of inline.
type Bus struct {
	Store     EventStore
	Scheduler DeliveryScheduler
	Notifiers []Notifier
	Now       func() time.Time
}

// Emit records the event and dispatches it. The returned event is valid whenever
// it was persisted, even if a downstream handler failed.
func (b *Bus) Emit(ctx context.Context, topic, aggregateID string, payload any) (Event, error) {
	if b == nil || b.Store == nil {
		return Event{}, errors.New("events: store not configured")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Event{}, errors.New("events: topic is required")
	}
	aggregateID = strings.TrimSpace(aggregateID)
	if aggregateID == "" {
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
		Payload:     encoded,
		OccurredAt:  now().UTC(),
	}
	if err := b.Store.InsertDomainEvent(ctx, ev); err != nil {
		return Event{}, fmt.Errorf("events: persist event: %w", err)
	}
	if b.Scheduler != nil {
		if err := b.Scheduler.Schedule(ctx, ev); err != nil {
			return ev, fmt.Errorf("events: schedule delivery: %w", err)
		}
		return ev, nil
	}
	return ev, b.Dispatch(ctx, ev)
}

// Dispatch runs every notifier for ev and joins their errors.
func (b *Bus) Dispatch(ctx context.Context, ev Event) error {
	var joined error
	for _, notifier := range b.Notifiers {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, ev); err != nil {
			joined = errors.Join(joined, fmt.Errorf("events: notifier: %w", err))
		}
	}
	return joined
}

// PGStore writes events to the domain_events table.
type PGStore struct {
	DB db.DBTX
}

// InsertDomainEvent implements EventStore.
func (s *PGStore) InsertDomainEvent(ctx context.Context, ev Event) error {
	_, err := s.DB.Exec(ctx,
		`INSERT INTO domain_events (id, topic, aggregate_id, payload, occurred_at) VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.Topic, ev.AggregateID, []byte(ev.Payload), ev.OccurredAt)
	return err
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
		return validJSON([]byte(strings.TrimSpace(v)))
	default:
		return json.Marshal(v)
	}
}

func validJSON(data []byte) (json.RawMessage, error) {
	if len(data) == 0 {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(data) {
		return nil, errors.New("payload is not valid json")
	}
	return append(json.RawMessage(nil), data...), nil
}
