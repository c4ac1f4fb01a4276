package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-detailing/internal/common"
	"github.com/noah-isme/backend-detailing/internal/events"
	"github.com/noah-isme/backend-detailing/internal/loyalty"
	"github.com/noah-isme/backend-detailing/internal/obs"
)

// Awarder grants loyalty points.
type Awarder interface {
	Award(ctx context.Context, req loyalty.AwardRequest) (loyalty.AwardResult, error)
}

// Dispatcher hands an event to its notifiers.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev events.Event) error
}

// NewMux routes task types to their handlers.
func NewMux(logger zerolog.Logger, awarder Awarder, dispatcher Dispatcher) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(observe(logger))
	if awarder != nil {
		mux.HandleFunc(TypeLoyaltyAward, HandleLoyaltyAward(awarder))
	}
	if dispatcher != nil {
		mux.HandleFunc(TypeEventDelivery, HandleEventDelivery(dispatcher))
	}
	return mux
}

// HandleLoyaltyAward processes TypeLoyaltyAward tasks. Malformed or invalid
// requests are not retried.
func HandleLoyaltyAward(awarder Awarder) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var req loyalty.AwardRequest
		if err := json.Unmarshal(task.Payload(), &req); err != nil {
			return fmt.Errorf("decode award payload: %v: %w", err, asynq.SkipRetry)
		}
		result, err := awarder.Award(ctx, req)
		if err != nil {
			var appErr *common.AppError
			if errors.As(err, &appErr) && appErr.HTTPStatus < 500 {
				return fmt.Errorf("award rejected: %v: %w", err, asynq.SkipRetry)
			}
			return err
		}
		obs.Logger(ctx).Info().
			Str("invoice_id", req.InvoiceID).
			Bool("awarded", result.Success).
			Int64("points", result.Points).
			Msg("loyalty task processed")
		return nil
	}
}

// HandleEventDelivery processes TypeEventDelivery tasks.
func HandleEventDelivery(dispatcher Dispatcher) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var ev events.Event
		if err := json.Unmarshal(task.Payload(), &ev); err != nil {
			return fmt.Errorf("decode event payload: %v: %w", err, asynq.SkipRetry)
		}
		return dispatcher.Dispatch(ctx, ev)
	}
}

// observe attaches a task-scoped logger and records the outcome.
func observe(logger zerolog.Logger) asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			taskID, _ := asynq.GetTaskID(ctx)
			retry, _ := asynq.GetRetryCount(ctx)
			scoped := logger.With().Str("task_type", task.Type()).Str("task_id", taskID).Int("retry", retry).Logger()
			ctx = scoped.WithContext(ctx)

			start := time.Now()
			err := next.ProcessTask(ctx, task)
			status := "ok"
			if err != nil {
				status = "error"
				scoped.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("task failed")
			}
			countProcessed(task.Type(), status)
			return err
		})
	}
}
