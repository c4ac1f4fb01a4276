package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-detailing/internal/events"
	"github.com/noah-isme/backend-detailing/internal/loyalty"
)

// Task types and the queues they run on.
const (
	TypeLoyaltyAward  = "loyalty:award"
	TypeEventDelivery = "event:deliver"

	QueueLoyalty = "loyalty"
	QueueEvents  = "events"
)

// Queues returns the worker queue priorities.
func Queues() map[string]int {
	return map[string]int{QueueLoyalty: 6, QueueEvents: 3}
}

// TaskClient is the subset of *asynq.Client used to enqueue.
type TaskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer publishes background tasks. Task IDs make enqueueing idempotent per
// invoice and per event.
type Enqueuer struct {
	Client    TaskClient
	MaxRetry  int
	Retention time.Duration
}

// LoyaltyTaskID is the de-duplication key of an invoice's award task.
func LoyaltyTaskID(invoiceID string) string {
	return "loyalty-award:" + invoiceID
}

// ScheduleAward enqueues the loyalty award for an invoice.
func (e Enqueuer) ScheduleAward(ctx context.Context, req loyalty.AwardRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("queue: encode award: %w", err)
	}
	return e.enqueue(ctx, asynq.NewTask(TypeLoyaltyAward, payload), QueueLoyalty, LoyaltyTaskID(req.InvoiceID))
}

// Schedule implements events.DeliveryScheduler.
func (e Enqueuer) Schedule(ctx context.Context, ev events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("queue: encode event: %w", err)
	}
	return e.enqueue(ctx, asynq.NewTask(TypeEventDelivery, payload), QueueEvents, "event-deliver:"+ev.ID.String())
}

func (e Enqueuer) enqueue(ctx context.Context, task *asynq.Task, queueName, taskID string) error {
	if e.Client == nil {
		return errors.New("queue: client not configured")
	}
	opts := []asynq.Option{asynq.Queue(queueName), asynq.TaskID(taskID)}
	if e.MaxRetry > 0 {
		opts = append(opts, asynq.MaxRetry(e.MaxRetry))
	}
	if e.Retention > 0 {
		opts = append(opts, asynq.Retention(e.Retention))
	}
	_, err := e.Client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		countEnqueued(task.Type(), "duplicate")
		return nil
	}
	if err != nil {
		countEnqueued(task.Type(), "error")
		return fmt.Errorf("queue: enqueue %s: %w", task.Type(), err)
	}
	countEnqueued(task.Type(), "enqueued")
	return nil
}
