package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"retail-service/internal/models"
	"retail-service/internal/store"
	"retail-service/internal/util"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// OrderEvents publishes order lifecycle events after a mutation commits
type OrderEvents interface {
	PublishOrderEvent(ctx context.Context, event *models.OrderEvent) error
}

// IdempotencyStore remembers which order a client request key produced.
// The lock keeps two requests with the same key from both creating an order.
type IdempotencyStore interface {
	GetOrderForKey(ctx context.Context, key string) (int64, bool, error)
	SetOrderForKey(ctx context.Context, key string, orderID int64, ttl time.Duration) error
	// AcquireLock returns the owner token to hand back to ReleaseLock
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, key, token string) error
}

const idempotencyLockTTL = 30 * time.Second

// MaxLineQuantity is the largest quantity a line item column can hold
const MaxLineQuantity = math.MaxInt32

// OrderConfig tunes the order engine
type OrderConfig struct {
	// StrictTransitions only allows moving forward in the status sequence
	StrictTransitions bool
	IdempotencyTTL    time.Duration
	PageSize          int
	AdminRoleID       int64
	// Location bounds the day filters of order listings
	Location *time.Location
}

// OrderService owns the order lifecycle and the stock reserved by orders
type OrderService struct {
	store  store.Gateway
	events OrderEvents
	idem   IdempotencyStore
	cfg    OrderConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewOrderService creates a new order service. events and idem may be nil.
func NewOrderService(gw store.Gateway, events OrderEvents, idem IdempotencyStore, cfg OrderConfig) *OrderService {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = store.DefaultPageSize
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = 24 * time.Hour
	}
	return &OrderService{
		store:  gw,
		events: events,
		idem:   idem,
		cfg:    cfg,
		logger: util.GetLogger(),
		now:    time.Now,
	}
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	ClientID int64                    `json:"client_id" binding:"required"`
	Products []models.LineItemRequest `json:"products"`
}

// UpdateOrderRequest carries the optional parts of an order update
type UpdateOrderRequest struct {
	Status            *string                  `json:"status"`
	ProductsToInclude []models.LineItemRequest `json:"products_to_include"`
	ProductsToRemove  []models.LineItemRequest `json:"products_to_remove"`
}

func (r UpdateOrderRequest) empty() bool {
	return r.Status == nil && len(r.ProductsToInclude) == 0 && len(r.ProductsToRemove) == 0
}

// productIDs lists every product the update touches, in ascending id order
func (r UpdateOrderRequest) productIDs() []int64 {
	ids := make([]int64, 0, len(r.ProductsToInclude)+len(r.ProductsToRemove))
	for _, it := range r.ProductsToInclude {
		ids = append(ids, it.ProductID)
	}
	for _, it := range r.ProductsToRemove {
		ids = append(ids, it.ProductID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// UpdateOrderResult is either a cancellation or the refreshed order detail
type UpdateOrderResult struct {
	Cancelled bool
	Detail    *models.OrderDetail
}

// ListOrdersRequest holds the raw filters of an order listing
type ListOrdersRequest struct {
	Offset      int
	StartDate   string
	EndDate     string
	Section     string
	OrderID     int64
	OrderStatus string
	ClientID    int64
}

// pendingEvent is published once the transaction that produced it commits
type pendingEvent struct {
	eventType string
	order     models.Order
	status    string
	items     []models.OrderItemData
}

// Create creates an order reserving stock for every line, all or nothing.
// A non-empty idempotencyKey makes retries return the first order id.
func (s *OrderService) Create(ctx context.Context, req CreateOrderRequest, idempotencyKey string) (int64, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Create")
	defer span.End()

	if len(req.Products) == 0 {
		return 0, invalid("Ao menos um item obrigatório")
	}
	items, err := mergeLineItems(req.Products)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("create", "invalid_quantity").Inc()
		return 0, err
	}

	if idempotencyKey != "" && s.idem != nil {
		orderID, found, err := s.idem.GetOrderForKey(ctx, idempotencyKey)
		if err != nil {
			s.logger.Warn("Idempotency lookup failed", zap.String("key", idempotencyKey), zap.Error(err))
		} else if found {
			util.IdempotentReplaysTotal.Inc()
			s.logger.Info("Duplicate order request detected",
				zap.String("idempotency_key", idempotencyKey),
				zap.Int64("order_id", orderID))
			return orderID, nil
		}
		if err == nil {
			token, acquired, err := s.idem.AcquireLock(ctx, idempotencyKey, idempotencyLockTTL)
			switch {
			case err != nil:
				s.logger.Warn("Idempotency lock failed", zap.String("key", idempotencyKey), zap.Error(err))
			case !acquired:
				return 0, ErrRequestInProgress
			default:
				defer func() {
					if err := s.idem.ReleaseLock(ctx, idempotencyKey, token); err != nil {
						s.logger.Warn("Failed to release idempotency lock", zap.String("key", idempotencyKey), zap.Error(err))
					}
				}()
				// the holder may have finished between the lookup and the lock
				if orderID, found, err := s.idem.GetOrderForKey(ctx, idempotencyKey); err == nil && found {
					util.IdempotentReplaysTotal.Inc()
					return orderID, nil
				}
			}
		}
	}

	var order models.Order
	start := time.Now()
	err = s.store.WithTx(ctx, func(tx store.Repository) error {
		if _, err := tx.GetClient(ctx, req.ClientID); err != nil {
			return notFound(err, ErrClientNotFound)
		}

		ids := make([]int64, len(items))
		for i, it := range items {
			ids[i] = it.ProductID
		}
		products, err := tx.LockProducts(ctx, ids)
		if err != nil {
			return fmt.Errorf("failed to lock products: %w", err)
		}
		if len(products) != len(ids) {
			return ErrProductNotFound
		}
		byID := make(map[int64]models.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		var shortages []StockShortage
		for _, it := range items {
			p := byID[it.ProductID]
			if it.Quantity > p.Stock {
				shortages = append(shortages, shortage(p.ID, p.Description, p.Stock, it.Quantity))
			}
		}
		if len(shortages) > 0 {
			return &InsufficientStockError{Items: shortages}
		}

		initial, err := tx.GetStatusByDescription(ctx, models.StatusNew)
		if err != nil {
			return fmt.Errorf("failed to resolve initial status: %w", err)
		}
		order = models.Order{ClientID: req.ClientID, StatusID: initial.ID}
		if err := tx.CreateOrder(ctx, &order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		for _, it := range items {
			if err := s.reserve(ctx, tx, order.ID, it.ProductID, it.Quantity, byID[it.ProductID]); err != nil {
				return err
			}
		}
		return nil
	})
	util.OrderTxLatency.WithLabelValues("create").Observe(time.Since(start).Seconds())
	if err != nil {
		util.RecordError(span, err)
		s.countFailure("create", err)
		return 0, err
	}

	util.OrdersCreatedTotal.Inc()
	s.logger.Info("Order created", zap.Int64("order_id", order.ID), zap.Int("lines", len(items)))

	if idempotencyKey != "" && s.idem != nil {
		if err := s.idem.SetOrderForKey(ctx, idempotencyKey, order.ID, s.cfg.IdempotencyTTL); err != nil {
			s.logger.Warn("Failed to store idempotency key", zap.String("key", idempotencyKey), zap.Error(err))
		}
	}

	s.publish(ctx, pendingEvent{
		eventType: models.EventTypeOrderCreated,
		order:     order,
		status:    models.StatusNew,
		items:     eventItems(items),
	})
	return order.ID, nil
}

// IncludeProduct adds quantity of a product to an open order
func (s *OrderService) IncludeProduct(ctx context.Context, orderID, productID int64, quantity int) error {
	ctx, span := util.StartSpan(ctx, "OrderService.IncludeProduct")
	defer span.End()

	return s.mutate(ctx, span, "include_product", func(tx store.Repository) ([]pendingEvent, error) {
		order, _, err := s.loadOpenOrder(ctx, tx, orderID)
		if err != nil {
			return nil, err
		}
		ev, err := s.includeTx(ctx, tx, order, productID, quantity)
		if err != nil {
			return nil, err
		}
		return []pendingEvent{ev}, nil
	})
}

// RemoveProduct returns quantity of a product from an open order to stock
func (s *OrderService) RemoveProduct(ctx context.Context, orderID, productID int64, quantity int) error {
	ctx, span := util.StartSpan(ctx, "OrderService.RemoveProduct")
	defer span.End()

	return s.mutate(ctx, span, "remove_product", func(tx store.Repository) ([]pendingEvent, error) {
		order, _, err := s.loadOpenOrder(ctx, tx, orderID)
		if err != nil {
			return nil, err
		}
		ev, err := s.removeTx(ctx, tx, order, productID, quantity)
		if err != nil {
			return nil, err
		}
		return []pendingEvent{ev}, nil
	})
}

// Cancel returns every reserved unit to stock and closes the order
func (s *OrderService) Cancel(ctx context.Context, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "OrderService.Cancel")
	defer span.End()

	err := s.mutate(ctx, span, "cancel", func(tx store.Repository) ([]pendingEvent, error) {
		order, _, err := s.loadOpenOrder(ctx, tx, orderID)
		if err != nil {
			return nil, err
		}
		ev, err := s.cancelTx(ctx, tx, order)
		if err != nil {
			return nil, err
		}
		return []pendingEvent{ev}, nil
	})
	if err == nil {
		util.OrdersCancelledTotal.Inc()
	}
	return err
}

// ChangeStatus moves an open order to another status. Cancellation is
// refused here because it has to give the stock back.
func (s *OrderService) ChangeStatus(ctx context.Context, orderID int64, status string) error {
	ctx, span := util.StartSpan(ctx, "OrderService.ChangeStatus")
	defer span.End()

	return s.mutate(ctx, span, "change_status", func(tx store.Repository) ([]pendingEvent, error) {
		order, current, err := s.loadOpenOrder(ctx, tx, orderID)
		if err != nil {
			return nil, err
		}
		target, err := s.resolveStatus(ctx, tx, status)
		if err != nil {
			return nil, err
		}
		if target.Description == models.StatusCancelled {
			return nil, ErrCancelViaStatus
		}
		ev, changed, err := s.changeStatusTx(ctx, tx, order, current, target)
		if err != nil || !changed {
			return nil, err
		}
		return []pendingEvent{ev}, nil
	})
}

// Update applies an order update in one transaction. A status resolving to
// the cancelled status cancels the order and ignores the product lists.
func (s *OrderService) Update(ctx context.Context, orderID int64, req UpdateOrderRequest) (*UpdateOrderResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Update")
	defer span.End()

	if req.empty() {
		return nil, invalid("Necessita de ao menos uma informação para atualizar")
	}

	cancelled := false
	err := s.mutate(ctx, span, "update", func(tx store.Repository) ([]pendingEvent, error) {
		order, current, err := s.loadOpenOrder(ctx, tx, orderID)
		if err != nil {
			return nil, err
		}

		var target *models.OrderStatus
		if req.Status != nil {
			if target, err = s.resolveStatus(ctx, tx, *req.Status); err != nil {
				return nil, err
			}
			if target.Description == models.StatusCancelled {
				ev, err := s.cancelTx(ctx, tx, order)
				if err != nil {
					return nil, err
				}
				cancelled = true
				return []pendingEvent{ev}, nil
			}
		}

		if _, err := tx.LockProducts(ctx, req.productIDs()); err != nil {
			return nil, fmt.Errorf("failed to lock products: %w", err)
		}

		var events []pendingEvent
		for _, it := range req.ProductsToInclude {
			ev, err := s.includeTx(ctx, tx, order, it.ProductID, it.Quantity)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
		for _, it := range req.ProductsToRemove {
			ev, err := s.removeTx(ctx, tx, order, it.ProductID, it.Quantity)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
		if target != nil {
			ev, changed, err := s.changeStatusTx(ctx, tx, order, current, target)
			if err != nil {
				return nil, err
			}
			if changed {
				events = append(events, ev)
			}
		}
		return events, nil
	})
	if err != nil {
		return nil, err
	}

	if cancelled {
		util.OrdersCancelledTotal.Inc()
		return &UpdateOrderResult{Cancelled: true}, nil
	}
	detail, err := s.GetDetail(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &UpdateOrderResult{Detail: detail}, nil
}

// Delete cancels the order when it is still open, then removes it.
// Only admins may delete orders.
func (s *OrderService) Delete(ctx context.Context, caller *models.User, orderID int64) error {
	ctx, span := util.StartSpan(ctx, "OrderService.Delete")
	defer span.End()

	if !isAdmin(caller, s.cfg.AdminRoleID) {
		return forbidden("Apenas Admins podem deletar ordens")
	}

	err := s.mutate(ctx, span, "delete", func(tx store.Repository) ([]pendingEvent, error) {
		order, err := tx.GetOrder(ctx, orderID)
		if err != nil {
			return nil, notFound(err, ErrOrderNotFound)
		}
		status, err := tx.GetStatus(ctx, order.StatusID)
		if err != nil {
			return nil, fmt.Errorf("failed to get order status: %w", err)
		}

		var events []pendingEvent
		if !status.Closed {
			ev, err := s.cancelTx(ctx, tx, order)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}
		if err := tx.DeleteOrder(ctx, orderID); err != nil {
			return nil, fmt.Errorf("failed to delete order: %w", err)
		}
		return append(events, pendingEvent{eventType: models.EventTypeOrderDeleted, order: *order}), nil
	})
	if err == nil {
		util.OrdersDeletedTotal.Inc()
		s.logger.Info("Order deleted", zap.Int64("order_id", orderID), zap.Int64("user_id", caller.ID))
	}
	return err
}

// GetDetail composes the order header, its status and the current data of its products
func (s *OrderService) GetDetail(ctx context.Context, orderID int64) (*models.OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetDetail")
	defer span.End()

	return s.detail(ctx, s.store.Repo(), orderID)
}

func (s *OrderService) detail(ctx context.Context, repo store.Repository, orderID int64) (*models.OrderDetail, error) {
	order, err := repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, notFound(err, ErrOrderNotFound)
	}
	status, err := repo.GetStatus(ctx, order.StatusID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order status: %w", err)
	}
	items, err := repo.ListLineItemDetails(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order items: %w", err)
	}
	if items == nil {
		items = []models.LineItemDetail{}
	}
	for i := range items {
		raw, err := repo.ListProductImages(ctx, items[i].ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to list product images: %w", err)
		}
		items[i].Images = encodeImages(raw)
	}
	return &models.OrderDetail{
		ID:        order.ID,
		CreatedAt: order.CreatedAt,
		ClientID:  order.ClientID,
		Status:    status.Description,
		Products:  items,
	}, nil
}

// List returns the details of the orders matching the filters, one page at a time
func (s *OrderService) List(ctx context.Context, req ListOrdersRequest) ([]models.OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.List")
	defer span.End()

	repo := s.store.Repo()
	filter := store.OrderFilter{Offset: req.Offset, Limit: s.cfg.PageSize}

	from := time.Date(1900, 1, 1, 0, 0, 0, 0, s.cfg.Location)
	if req.StartDate != "" {
		d, err := models.ParseDate(req.StartDate)
		if err != nil {
			return nil, invalid("Data de início inválida")
		}
		from = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, s.cfg.Location)
	}
	to := s.now().In(s.cfg.Location)
	if req.EndDate != "" {
		d, err := models.ParseDate(req.EndDate)
		if err != nil {
			return nil, invalid("Data de fim inválida")
		}
		to = d.Time
	}
	to = time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), s.cfg.Location)
	if from.After(to) {
		return nil, invalid("Data de início não pode ser maior que data de fim")
	}
	filter.From, filter.To = from, to

	if req.Section != "" {
		id, err := repo.FindSectionID(ctx, req.Section)
		if err != nil {
			return nil, lookupFailed(err, "Categoria não localizada, por favor redefina o filtro")
		}
		filter.SectionID = &id
	}
	if req.OrderID > 0 {
		filter.OrderID = &req.OrderID
	}
	if req.OrderStatus != "" {
		id, err := repo.FindStatusID(ctx, req.OrderStatus)
		if err != nil {
			return nil, lookupFailed(err, "Status não localizado, por favor redefina o filtro")
		}
		filter.StatusID = &id
	}
	if req.ClientID > 0 {
		if _, err := repo.GetClient(ctx, req.ClientID); err != nil {
			return nil, lookupFailed(err, "Cliente não localizado, por favor redefina o filtro")
		}
		filter.ClientID = &req.ClientID
	}

	ids, err := repo.ListOrderIDs(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	orders := make([]models.OrderDetail, 0, len(ids))
	for _, id := range ids {
		d, err := s.detail(ctx, repo, id)
		if errors.Is(err, ErrOrderNotFound) {
			// deleted between the listing and the read
			continue
		}
		if err != nil {
			return nil, err
		}
		orders = append(orders, *d)
	}
	return orders, nil
}

// Timeline lists the recorded lifecycle events of an order
func (s *OrderService) Timeline(ctx context.Context, orderID int64) ([]models.TimelineEntry, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Timeline")
	defer span.End()

	repo := s.store.Repo()
	entries, err := repo.ListTimeline(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list timeline: %w", err)
	}
	if len(entries) == 0 {
		if _, err := repo.GetOrder(ctx, orderID); err != nil {
			return nil, notFound(err, ErrOrderNotFound)
		}
	}
	if entries == nil {
		entries = []models.TimelineEntry{}
	}
	return entries, nil
}

// mutate runs fn in a transaction and publishes its events after commit
func (s *OrderService) mutate(ctx context.Context, span trace.Span, operation string, fn func(tx store.Repository) ([]pendingEvent, error)) error {
	var events []pendingEvent
	start := time.Now()
	err := s.store.WithTx(ctx, func(tx store.Repository) error {
		var err error
		events, err = fn(tx)
		return err
	})
	util.OrderTxLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if err != nil {
		util.RecordError(span, err)
		s.countFailure(operation, err)
		return err
	}
	for _, ev := range events {
		s.publish(ctx, ev)
	}
	return nil
}

// loadOpenOrder locks the order row and rejects closed orders
func (s *OrderService) loadOpenOrder(ctx context.Context, tx store.Repository, orderID int64) (*models.Order, *models.OrderStatus, error) {
	order, err := tx.GetOrder(ctx, orderID)
	if err != nil {
		return nil, nil, notFound(err, ErrOrderNotFound)
	}
	status, err := tx.GetStatus(ctx, order.StatusID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get order status: %w", err)
	}
	if status.Closed {
		return nil, nil, ErrOrderClosed
	}
	return order, status, nil
}

func (s *OrderService) includeTx(ctx context.Context, tx store.Repository, order *models.Order, productID int64, quantity int) (pendingEvent, error) {
	if quantity <= 0 || quantity > MaxLineQuantity {
		return pendingEvent{}, ErrInvalidQuantity
	}
	product, err := tx.GetProduct(ctx, productID)
	if err != nil {
		return pendingEvent{}, notFound(err, ErrProductNotFound)
	}
	if quantity > product.Stock {
		return pendingEvent{}, &InsufficientStockError{
			Items: []StockShortage{shortage(product.ID, product.Description, product.Stock, quantity)},
		}
	}
	if err := s.reserve(ctx, tx, order.ID, productID, quantity, *product); err != nil {
		return pendingEvent{}, err
	}
	return pendingEvent{
		eventType: models.EventTypeOrderProductIncluded,
		order:     *order,
		items:     []models.OrderItemData{{ProductID: productID, Quantity: quantity}},
	}, nil
}

// reserve writes the line item and the matching stock decrement
func (s *OrderService) reserve(ctx context.Context, tx store.Repository, orderID, productID int64, quantity int, product models.Product) error {
	if err := tx.AddLineItem(ctx, orderID, productID, quantity); err != nil {
		return fmt.Errorf("failed to add line item: %w", err)
	}
	if err := tx.AdjustStock(ctx, productID, -quantity); err != nil {
		if errors.Is(err, store.ErrStockConflict) {
			return &InsufficientStockError{
				Items: []StockShortage{shortage(productID, product.Description, product.Stock, quantity)},
			}
		}
		return fmt.Errorf("failed to reserve stock: %w", err)
	}
	util.StockUnitsMovedTotal.WithLabelValues("reserve").Add(float64(quantity))
	return nil
}

func (s *OrderService) removeTx(ctx context.Context, tx store.Repository, order *models.Order, productID int64, quantity int) (pendingEvent, error) {
	if quantity <= 0 || quantity > MaxLineQuantity {
		return pendingEvent{}, ErrInvalidQuantity
	}
	if _, err := tx.GetProduct(ctx, productID); err != nil {
		return pendingEvent{}, notFound(err, ErrProductNotFound)
	}
	item, err := tx.GetLineItem(ctx, order.ID, productID)
	if err != nil {
		return pendingEvent{}, notFound(err, ErrItemNotInOrder)
	}
	if quantity > item.Quantity {
		return pendingEvent{}, ErrInvalidQuantity
	}

	if quantity == item.Quantity {
		err = tx.DeleteLineItem(ctx, order.ID, productID)
	} else {
		err = tx.SetLineItemQuantity(ctx, order.ID, productID, item.Quantity-quantity)
	}
	if err != nil {
		return pendingEvent{}, fmt.Errorf("failed to update line item: %w", err)
	}
	if err := s.release(ctx, tx, productID, quantity); err != nil {
		return pendingEvent{}, err
	}
	return pendingEvent{
		eventType: models.EventTypeOrderProductRemoved,
		order:     *order,
		items:     []models.OrderItemData{{ProductID: productID, Quantity: quantity}},
	}, nil
}

func (s *OrderService) release(ctx context.Context, tx store.Repository, productID int64, quantity int) error {
	if err := tx.AdjustStock(ctx, productID, quantity); err != nil {
		return fmt.Errorf("failed to release stock for product %d: %w", productID, err)
	}
	util.StockUnitsMovedTotal.WithLabelValues("release").Add(float64(quantity))
	return nil
}

// cancelTx releases the stock of every line item in product id order and
// marks the order cancelled. Line items are kept as the order's history.
func (s *OrderService) cancelTx(ctx context.Context, tx store.Repository, order *models.Order) (pendingEvent, error) {
	items, err := tx.ListLineItems(ctx, order.ID)
	if err != nil {
		return pendingEvent{}, fmt.Errorf("failed to get order items: %w", err)
	}
	released := make([]models.OrderItemData, 0, len(items))
	for _, it := range items {
		if err := s.release(ctx, tx, it.ProductID, it.Quantity); err != nil {
			return pendingEvent{}, err
		}
		released = append(released, models.OrderItemData{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	cancelled, err := tx.GetStatusByDescription(ctx, models.StatusCancelled)
	if err != nil {
		return pendingEvent{}, fmt.Errorf("failed to resolve cancelled status: %w", err)
	}
	if err := tx.SetOrderStatus(ctx, order.ID, cancelled.ID); err != nil {
		return pendingEvent{}, fmt.Errorf("failed to cancel order: %w", err)
	}
	s.logger.Info("Order cancelled", zap.Int64("order_id", order.ID), zap.Int("lines", len(items)))

	return pendingEvent{
		eventType: models.EventTypeOrderCancelled,
		order:     *order,
		status:    models.StatusCancelled,
		items:     released,
	}, nil
}

func (s *OrderService) changeStatusTx(ctx context.Context, tx store.Repository, order *models.Order, current, target *models.OrderStatus) (pendingEvent, bool, error) {
	if target.ID == current.ID {
		return pendingEvent{}, false, nil
	}
	if s.cfg.StrictTransitions && target.ID < current.ID {
		return pendingEvent{}, false, ErrInvalidTransition
	}
	if err := tx.SetOrderStatus(ctx, order.ID, target.ID); err != nil {
		return pendingEvent{}, false, fmt.Errorf("failed to update order status: %w", err)
	}
	util.OrderStatusChangesTotal.WithLabelValues(target.Description).Inc()
	s.logger.Info("Order status changed",
		zap.Int64("order_id", order.ID),
		zap.String("from", current.Description),
		zap.String("to", target.Description))

	return pendingEvent{
		eventType: models.EventTypeOrderStatusChanged,
		order:     *order,
		status:    target.Description,
	}, true, nil
}

// resolveStatus matches a status description as a case-insensitive substring
func (s *OrderService) resolveStatus(ctx context.Context, repo store.Repository, name string) (*models.OrderStatus, error) {
	id, err := repo.FindStatusID(ctx, name)
	if err != nil {
		return nil, notFound(err, ErrStatusNotFound)
	}
	status, err := repo.GetStatus(ctx, id)
	if err != nil {
		return nil, notFound(err, ErrStatusNotFound)
	}
	return status, nil
}

func (s *OrderService) publish(ctx context.Context, ev pendingEvent) {
	if s.events == nil {
		return
	}
	event := &models.OrderEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: ev.eventType,
			Timestamp: s.now().UTC(),
		},
		OrderID:  ev.order.ID,
		ClientID: ev.order.ClientID,
		Status:   ev.status,
		Items:    ev.items,
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish order event",
			zap.String("event_type", ev.eventType),
			zap.Int64("order_id", ev.order.ID),
			zap.Error(err))
	}
}

func (s *OrderService) countFailure(operation string, err error) {
	reason := "error"
	switch {
	case errors.Is(err, ErrInsufficientStock):
		reason = "insufficient_stock"
	case errors.Is(err, ErrOrderClosed):
		reason = "order_closed"
	case errors.Is(err, ErrInvalidQuantity):
		reason = "invalid_quantity"
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrProductNotFound),
		errors.Is(err, ErrClientNotFound), errors.Is(err, ErrItemNotInOrder), errors.Is(err, ErrStatusNotFound):
		reason = "not_found"
	}
	util.OrdersFailedTotal.WithLabelValues(operation, reason).Inc()
}

// mergeLineItems sums repeated products, keeping first-seen order
func mergeLineItems(items []models.LineItemRequest) ([]models.LineItemRequest, error) {
	merged := make([]models.LineItemRequest, 0, len(items))
	index := make(map[int64]int, len(items))
	for _, it := range items {
		if it.Quantity <= 0 || it.Quantity > MaxLineQuantity {
			return nil, ErrInvalidQuantity
		}
		if i, ok := index[it.ProductID]; ok {
			if merged[i].Quantity > MaxLineQuantity-it.Quantity {
				return nil, ErrInvalidQuantity
			}
			merged[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(merged)
		merged = append(merged, it)
	}
	return merged, nil
}

func eventItems(items []models.LineItemRequest) []models.OrderItemData {
	out := make([]models.OrderItemData, len(items))
	for i, it := range items {
		out[i] = models.OrderItemData{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return out
}

// notFound replaces store.ErrNotFound with a domain error and wraps everything else
func notFound(err, domainErr error) error {
	if errors.Is(err, store.ErrNotFound) {
		return domainErr
	}
	return fmt.Errorf("%v: %w", domainErr, err)
}

// lookupFailed turns a missing filter reference into a validation error
func lookupFailed(err error, msg string) error {
	if errors.Is(err, store.ErrNotFound) {
		return invalid(msg)
	}
	return err
}
