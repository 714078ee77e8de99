package worker

import (
	"context"
	"errors"
	"log"

	"enrollment-service/internal/broker"
	"enrollment-service/internal/models"
	"enrollment-service/internal/service"
	"enrollment-service/internal/store"
)

// RetryWorker replays reconciliations that failed on store unavailability.
// Reconciliation is idempotent per orderId, so replaying an event that
// actually succeeded is harmless.
type RetryWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	reconciler   *service.Reconciler
}

// NewRetryWorker creates a new retry worker
func NewRetryWorker(consumer *broker.Consumer, reconciler *service.Reconciler) *RetryWorker {
	eventHandler := broker.NewEventHandler()

	w := &RetryWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		reconciler:   reconciler,
	}
	eventHandler.OnEnrollmentRetry(w.handleRetry)

	return w
}

func (w *RetryWorker) handleRetry(ctx context.Context, event *models.EnrollmentRetryEvent) error {
	log.Printf("Retrying enrollment: order_id=%s attempt=%d", event.Payment.OrderID, event.Attempts)

	_, err := w.reconciler.Reconcile(ctx, event.Payment, event.Attempts)
	if errors.Is(err, store.ErrUnavailable) {
		// Already re-queued by the reconciler (bounded); commit this message.
		return nil
	}
	if errors.Is(err, store.ErrUserNotFound) {
		// Retrying will not create the account; drop for manual reconciliation.
		log.Printf("Dropping retry, user not found: order_id=%s email=%s",
			event.Payment.OrderID, event.Payment.Email)
		return nil
	}
	return err
}

// Start starts the worker
func (w *RetryWorker) Start(ctx context.Context) error {
	log.Println("Starting enrollment retry worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *RetryWorker) Stop() error {
	log.Println("Stopping enrollment retry worker...")
	return w.consumer.Close()
}
