package store

import (
	"context"

	"retail-service/internal/models"
)

// IsEventProcessed checks if an event has been processed
func (q *Queries) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := q.get(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = ?)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (q *Queries) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := q.db.ExecContext(ctx,
		q.db.Rebind("INSERT INTO processed_events (event_id, event_type) VALUES (?, ?) ON CONFLICT (event_id) DO NOTHING"),
		eventID, eventType)
	return err
}

// AppendTimeline records a lifecycle event of an order
func (q *Queries) AppendTimeline(ctx context.Context, e *models.TimelineEntry) error {
	query := `
		INSERT INTO order_timeline (order_id, event_id, event_type, detail, occurred_at)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`

	err := q.db.GetContext(ctx, &e.ID, q.db.Rebind(query),
		e.OrderID, e.EventID, e.EventType, e.Detail, e.OccurredAt)
	return translate(err)
}

// ListTimeline retrieves the lifecycle of an order, oldest first
func (q *Queries) ListTimeline(ctx context.Context, orderID int64) ([]models.TimelineEntry, error) {
	var entries []models.TimelineEntry
	err := q.selectAll(ctx, &entries,
		"SELECT id, order_id, event_id, event_type, detail, occurred_at FROM order_timeline WHERE order_id = ? ORDER BY occurred_at, id",
		orderID)
	return entries, err
}
