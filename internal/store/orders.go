package store

import (
	"context"

	"retail-service/internal/models"
)

// CreateOrder creates a new order
func (q *Queries) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (client_id, status)
		VALUES (?, ?)
		RETURNING id, created_at`

	return translate(q.db.GetContext(ctx, order, q.db.Rebind(query), order.ClientID, order.StatusID))
}

// GetOrder retrieves an order by ID
func (q *Queries) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	if err := q.get(ctx, &order,
		"SELECT id, created_at, status, client_id FROM orders WHERE id = ?"+q.forUpdate(), id); err != nil {
		return nil, err
	}
	return &order, nil
}

// SetOrderStatus updates order status
func (q *Queries) SetOrderStatus(ctx context.Context, id, statusID int64) error {
	return q.exec(ctx, "UPDATE orders SET status = ? WHERE id = ?", statusID, id)
}

// DeleteOrder deletes an order; its line items go with it (ON DELETE CASCADE)
func (q *Queries) DeleteOrder(ctx context.Context, id int64) error {
	return q.exec(ctx, "DELETE FROM orders WHERE id = ?", id)
}

// ListOrderIDs lists the ids of the orders matching the filter
func (q *Queries) ListOrderIDs(ctx context.Context, f OrderFilter) ([]int64, error) {
	query, args := orderListQuery(f)
	var ids []int64
	err := q.selectAll(ctx, &ids, query, args...)
	return ids, err
}

func orderListQuery(f OrderFilter) (string, []interface{}) {
	var p predicates
	p.add("o.created_at BETWEEN ? AND ?", f.From, f.To)
	if f.SectionID != nil {
		p.add("p.section_id = ?", *f.SectionID)
	}
	if f.OrderID != nil {
		p.add("o.id = ?", *f.OrderID)
	}
	if f.StatusID != nil {
		p.add("o.status = ?", *f.StatusID)
	}
	if f.ClientID != nil {
		p.add("o.client_id = ?", *f.ClientID)
	}
	query := "SELECT o.id FROM orders o" +
		" LEFT JOIN orders_products op ON o.id = op.order_id" +
		" LEFT JOIN products p ON op.product_id = p.id" +
		p.where() +
		" GROUP BY o.id ORDER BY o.id"
	return page(query, p.args, f.Limit, f.Offset)
}

// GetLineItem retrieves the line item of a product in an order
func (q *Queries) GetLineItem(ctx context.Context, orderID, productID int64) (*models.OrderLineItem, error) {
	var item models.OrderLineItem
	if err := q.get(ctx, &item,
		"SELECT order_id, product_id, quantity FROM orders_products WHERE order_id = ? AND product_id = ?"+q.forUpdate(),
		orderID, productID); err != nil {
		return nil, err
	}
	return &item, nil
}

// AddLineItem inserts a line item or adds to the quantity of the existing one
func (q *Queries) AddLineItem(ctx context.Context, orderID, productID int64, quantity int) error {
	query := `
		INSERT INTO orders_products (order_id, product_id, quantity)
		VALUES (?, ?, ?)
		ON CONFLICT (order_id, product_id)
		DO UPDATE SET quantity = orders_products.quantity + EXCLUDED.quantity`

	return q.exec(ctx, query, orderID, productID, quantity)
}

// SetLineItemQuantity overwrites the quantity of a line item
func (q *Queries) SetLineItemQuantity(ctx context.Context, orderID, productID int64, quantity int) error {
	return q.exec(ctx,
		"UPDATE orders_products SET quantity = ? WHERE order_id = ? AND product_id = ?",
		quantity, orderID, productID)
}

// DeleteLineItem removes a line item
func (q *Queries) DeleteLineItem(ctx context.Context, orderID, productID int64) error {
	return q.exec(ctx,
		"DELETE FROM orders_products WHERE order_id = ? AND product_id = ?", orderID, productID)
}

// ListLineItems retrieves all line items for an order
func (q *Queries) ListLineItems(ctx context.Context, orderID int64) ([]models.OrderLineItem, error) {
	var items []models.OrderLineItem
	err := q.selectAll(ctx, &items,
		"SELECT order_id, product_id, quantity FROM orders_products WHERE order_id = ? ORDER BY product_id", orderID)
	return items, err
}

// ListLineItemDetails retrieves the line items joined with current product data
func (q *Queries) ListLineItemDetails(ctx context.Context, orderID int64) ([]models.LineItemDetail, error) {
	query := `
		SELECT p.id AS product_id, p.description, p.sell_value, p.barcode, s.name AS section_name,
		       p.stock, p.expiration_date, op.quantity
		FROM orders_products op
		JOIN products p ON op.product_id = p.id
		JOIN sections s ON p.section_id = s.id
		WHERE op.order_id = ?
		ORDER BY p.id`

	var items []models.LineItemDetail
	err := q.selectAll(ctx, &items, query, orderID)
	return items, err
}
