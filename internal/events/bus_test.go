package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-detailing/internal/events"
)

type stubStore struct {
	events []events.Event
	err    error
}

func (s *stubStore) InsertDomainEvent(_ context.Context, ev events.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

type captureScheduler struct {
	events []events.Event
}

func (c *captureScheduler) Schedule(_ context.Context, ev events.Event) error {
	c.events = append(c.events, ev)
	return nil
}

type captureNotifier struct {
	events []events.Event
	err    error
}

func (c *captureNotifier) Notify(_ context.Context, ev events.Event) error {
	c.events = append(c.events, ev)
	return c.err
}

func TestEmitPersistsAndNotifies(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	fixed := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{notifier}, Now: func() time.Time { return fixed }}

	ev, err := bus.Emit(context.Background(), events.TopicInvoiceSent, "inv-1", events.InvoiceSent{InvoiceID: "inv-1", Total: 217})
	require.NoError(t, err)
	require.Len(t, store.events, 1)
	require.Equal(t, ev.ID, store.events[0].ID)
	require.Equal(t, fixed, ev.OccurredAt)
	require.Len(t, notifier.events, 1)

	var decoded events.InvoiceSent
	require.NoError(t, json.Unmarshal(ev.Payload, &decoded))
	require.Equal(t, 217.0, decoded.Total)
}

func TestEmitPrefersScheduler(t *testing.T) {
	scheduler := &captureScheduler{}
	notifier := &captureNotifier{}
	bus := events.Bus{Store: &stubStore{}, Scheduler: scheduler, Notifiers: []events.Notifier{notifier}}

	_, err := bus.Emit(context.Background(), events.TopicLoyaltyAwarded, "0812", nil)
	require.NoError(t, err)
	require.Len(t, scheduler.events, 1)
	require.Empty(t, notifier.events)
	require.JSONEq(t, `{}`, string(scheduler.events[0].Payload))
}

func TestEmitValidation(t *testing.T) {
	bus := events.Bus{Store: &stubStore{}}
	ctx := context.Background()

	_, err := bus.Emit(ctx, " ", "inv-1", nil)
	require.Error(t, err)
	_, err = bus.Emit(ctx, events.TopicInvoiceSent, "", nil)
	require.Error(t, err)
	_, err = bus.Emit(ctx, events.TopicInvoiceSent, "inv-1", "{not json")
	require.Error(t, err)

	var nilBus *events.Bus
	_, err = nilBus.Emit(ctx, events.TopicInvoiceSent, "inv-1", nil)
	require.Error(t, err)
}

func TestEmitReturnsEventWhenNotifierFails(t *testing.T) {
	store := &stubStore{}
	bus := events.Bus{Store: store, Notifiers: []events.Notifier{&captureNotifier{err: errors.New("webhook down")}}}

	ev, err := bus.Emit(context.Background(), events.TopicInvoiceSent, "inv-2", map[string]any{"total": 1})
	require.Error(t, err)
	require.Equal(t, "inv-2", ev.AggregateID)
	require.Len(t, store.events, 1)
}

func TestEmitFailsWhenStoreFails(t *testing.T) {
	bus := events.Bus{Store: &stubStore{err: errors.New("db down")}}
	_, err := bus.Emit(context.Background(), events.TopicInvoiceSent, "inv-3", nil)
	require.ErrorContains(t, err, "persist event")
}
