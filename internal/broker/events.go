package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"enrollment-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing domain events. Completed events and
// retry events go to separate topics; the retry topic is consumed by this
// service's own retry worker.
type EventPublisher struct {
	events *Producer
	retry  *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(events, retry *Producer) *EventPublisher {
	return &EventPublisher{events: events, retry: retry}
}

// PublishEnrollmentCompleted publishes EnrollmentCompleted event
func (ep *EventPublisher) PublishEnrollmentCompleted(ctx context.Context, event *models.EnrollmentCompletedEvent) error {
	key := fmt.Sprintf("enrollment-%s", event.Email)
	return ep.events.PublishEvent(ctx, key, event)
}

// PublishEnrollmentRetry publishes EnrollmentRetry event
func (ep *EventPublisher) PublishEnrollmentRetry(ctx context.Context, event *models.EnrollmentRetryEvent) error {
	key := fmt.Sprintf("order-%s", event.Payment.OrderID)
	return ep.retry.PublishEvent(ctx, key, event)
}

// EventHandler routes consumed events to registered handlers
type EventHandler struct {
	onEnrollmentRetry func(context.Context, *models.EnrollmentRetryEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnEnrollmentRetry registers a handler for EnrollmentRetry events
func (eh *EventHandler) OnEnrollmentRetry(handler func(context.Context, *models.EnrollmentRetryEvent) error) {
	eh.onEnrollmentRetry = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeEnrollmentRetry:
		if eh.onEnrollmentRetry != nil {
			var event models.EnrollmentRetryEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal EnrollmentRetry event: %w", err)
			}
			return eh.onEnrollmentRetry(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
