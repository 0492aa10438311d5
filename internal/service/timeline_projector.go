package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"retail-service/internal/models"
	"retail-service/internal/store"
	"retail-service/internal/util"

	"go.uber.org/zap"
)

// TimelineProjector records consumed order events as the order's timeline
type TimelineProjector struct {
	store  store.Gateway
	logger *zap.Logger
}

// NewTimelineProjector creates a new timeline projector
func NewTimelineProjector(gw store.Gateway) *TimelineProjector {
	return &TimelineProjector{
		store:  gw,
		logger: util.GetLogger(),
	}
}

// HandleOrderEvent appends the event to the timeline once per event id
func (tp *TimelineProjector) HandleOrderEvent(ctx context.Context, event *models.OrderEvent) error {
	ctx, span := util.StartSpan(ctx, "TimelineProjector.HandleOrderEvent")
	defer span.End()

	duplicate := false
	err := tp.store.WithTx(ctx, func(tx store.Repository) error {
		processed, err := tx.IsEventProcessed(ctx, event.EventID)
		if err != nil {
			return fmt.Errorf("failed to check event processed: %w", err)
		}
		if processed {
			duplicate = true
			return nil
		}

		entry := &models.TimelineEntry{
			OrderID:    event.OrderID,
			EventID:    event.EventID,
			EventType:  event.EventType,
			Detail:     describeEvent(event),
			OccurredAt: event.Timestamp,
		}
		if err := tx.AppendTimeline(ctx, entry); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				duplicate = true
				return nil
			}
			return fmt.Errorf("failed to append timeline: %w", err)
		}

		return tx.MarkEventProcessed(ctx, event.EventID, event.EventType)
	})
	if err != nil {
		util.RecordError(span, err)
		return err
	}

	if duplicate {
		tp.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}
	util.TimelineEventsTotal.WithLabelValues(event.EventType).Inc()
	tp.logger.Debug("Timeline entry recorded",
		zap.Int64("order_id", event.OrderID),
		zap.String("event_type", event.EventType))
	return nil
}

func describeEvent(event *models.OrderEvent) string {
	var parts []string
	if event.Status != "" {
		parts = append(parts, "status: "+event.Status)
	}
	if len(event.Items) > 0 {
		items := make([]string, len(event.Items))
		for i, it := range event.Items {
			items[i] = fmt.Sprintf("%dx #%d", it.Quantity, it.ProductID)
		}
		parts = append(parts, "items: "+strings.Join(items, ", "))
	}
	return strings.Join(parts, "; ")
}
