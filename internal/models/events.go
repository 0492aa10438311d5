package models

import "time"

// Event types
const (
	EventTypeOrderCreated         = "ORDER_CREATED"
	EventTypeOrderProductIncluded = "ORDER_PRODUCT_INCLUDED"
	EventTypeOrderProductRemoved  = "ORDER_PRODUCT_REMOVED"
	EventTypeOrderStatusChanged   = "ORDER_STATUS_CHANGED"
	EventTypeOrderCancelled       = "ORDER_CANCELLED"
	EventTypeOrderDeleted         = "ORDER_DELETED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderEvent is published after every committed order mutation
type OrderEvent struct {
	BaseEvent
	OrderID  int64           `json:"order_id"`
	ClientID int64           `json:"client_id,omitempty"`
	Status   string          `json:"status,omitempty"`
	Items    []OrderItemData `json:"items,omitempty"`
}

// OrderItemData represents item data in events
type OrderItemData struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}
