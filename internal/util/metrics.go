package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of rejected order mutations",
	}, []string{"operation", "reason"})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of cancelled orders",
	})

	OrdersDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_deleted_total",
		Help: "Total number of deleted orders",
	})

	OrderStatusChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_status_changes_total",
		Help: "Total number of order status transitions by target status",
	}, []string{"status"})

	IdempotentReplaysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_idempotent_replays_total",
		Help: "Total number of order creations answered from an idempotency key",
	})

	StockUnitsMovedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_units_moved_total",
		Help: "Units of stock reserved by or released from orders",
	}, []string{"direction"})

	OrderTxLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "order_tx_latency_seconds",
		Help:    "Latency of order engine transactions",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	ProductsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "products_created_total",
		Help: "Total number of products created",
	})

	ProductImagesFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "product_images_failed_total",
		Help: "Total number of product images that could not be stored",
	})

	ClientsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clients_created_total",
		Help: "Total number of clients created",
	})

	LoginAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "login_attempts_total",
		Help: "Total number of login attempts by result",
	}, []string{"result"})

	TimelineEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_events_total",
		Help: "Total number of order events projected into the timeline",
	}, []string{"event_type"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
