package worker

import (
	"context"

	"retail-service/internal/broker"
	"retail-service/internal/service"
	"retail-service/internal/util"

	"go.uber.org/zap"
)

// TimelineWorker consumes order events and records them on the order timeline
type TimelineWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewTimelineWorker creates a new timeline worker
func NewTimelineWorker(
	consumer *broker.Consumer,
	projector *service.TimelineProjector,
) *TimelineWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderEvent(projector.HandleOrderEvent)

	return &TimelineWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start starts the worker
func (w *TimelineWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting timeline worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *TimelineWorker) Stop() error {
	w.logger.Info("Stopping timeline worker")
	return w.consumer.Close()
}
