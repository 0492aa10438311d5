package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"retail-service/internal/models"
	"retail-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderEvent publishes an order lifecycle event keyed by order,
// so every event of one order lands on the same partition
func (ep *EventPublisher) PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	return ep.producer.PublishEvent(ctx, OrderKey(event.OrderID), event)
}

// OrderKey is the message key of an order's events
func OrderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

// EventHandler handles incoming events
type EventHandler struct {
	onOrderEvent func(context.Context, *models.OrderEvent) error
	logger       *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnOrderEvent registers a handler for every order lifecycle event
func (eh *EventHandler) OnOrderEvent(handler func(context.Context, *models.OrderEvent) error) {
	eh.onOrderEvent = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeOrderCreated,
		models.EventTypeOrderProductIncluded,
		models.EventTypeOrderProductRemoved,
		models.EventTypeOrderStatusChanged,
		models.EventTypeOrderCancelled,
		models.EventTypeOrderDeleted:
		if eh.onOrderEvent != nil {
			var event models.OrderEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal order event: %w", err)
			}
			return eh.onOrderEvent(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
