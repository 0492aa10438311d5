package store

import (
	"context"
	"errors"
	"fmt"

	"retail-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const productColumns = "id, description, sell_value, barcode, section_id, stock, expiration_date"

// GetProduct retrieves a product by ID
func (q *Queries) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	if err := q.get(ctx, &product,
		"SELECT "+productColumns+" FROM products WHERE id = ?"+q.forUpdate(), id); err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProductByBarcode retrieves a product by barcode
func (q *Queries) GetProductByBarcode(ctx context.Context, barcode string) (*models.Product, error) {
	var product models.Product
	if err := q.get(ctx, &product,
		"SELECT "+productColumns+" FROM products WHERE barcode = ?", barcode); err != nil {
		return nil, err
	}
	return &product, nil
}

// LockProducts retrieves multiple products by IDs in id order
func (q *Queries) LockProducts(ctx context.Context, ids []int64) ([]models.Product, error) {
	if len(ids) == 0 {
		return []models.Product{}, nil
	}

	query, args, err := sqlx.In(
		"SELECT "+productColumns+" FROM products WHERE id IN (?) ORDER BY id"+q.forUpdate(), ids)
	if err != nil {
		return nil, err
	}

	var products []models.Product
	err = q.selectAll(ctx, &products, query, args...)
	return products, err
}

// AdjustStock moves the stock by delta, refusing to go below zero
func (q *Queries) AdjustStock(ctx context.Context, id int64, delta int) error {
	err := q.exec(ctx,
		"UPDATE products SET stock = stock + ? WHERE id = ? AND stock + ? >= 0",
		delta, id, delta)
	if errors.Is(err, ErrNotFound) {
		if _, getErr := q.GetProduct(ctx, id); getErr != nil {
			return getErr
		}
		return ErrStockConflict
	}
	return err
}

// ListProducts lists products matching the filter
func (q *Queries) ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, error) {
	query, args := productListQuery(f)
	var products []models.Product
	err := q.selectAll(ctx, &products, query, args...)
	return products, err
}

func productListQuery(f ProductFilter) (string, []interface{}) {
	var p predicates
	if f.SectionID != nil {
		p.add("section_id = ?", *f.SectionID)
	}
	if f.MaxSellValue != nil {
		p.add("sell_value <= ?", *f.MaxSellValue)
	}
	if f.OnlyAvailable {
		p.add("stock > 0")
	}
	query := "SELECT " + productColumns + " FROM products" + p.where() + " ORDER BY id"
	return page(query, p.args, f.Limit, f.Offset)
}

// CreateProduct inserts a product and sets its ID
func (q *Queries) CreateProduct(ctx context.Context, p *models.Product) error {
	query := `
		INSERT INTO products (description, sell_value, barcode, section_id, stock, expiration_date)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id`

	err := q.db.GetContext(ctx, &p.ID, q.db.Rebind(query),
		p.Description, p.SellValue, p.Barcode, p.SectionID, p.Stock, p.ExpirationDate)
	return translate(err)
}

// UpdateProduct applies a partial update
func (q *Queries) UpdateProduct(ctx context.Context, id int64, u ProductUpdate) error {
	query, args, err := productUpdateQuery(id, u)
	if err != nil {
		return err
	}
	return q.exec(ctx, query, args...)
}

func productUpdateQuery(id int64, u ProductUpdate) (string, []interface{}, error) {
	var a assignments
	if u.Description != nil {
		a.set("description", *u.Description)
	}
	if u.SellValue != nil {
		a.set("sell_value", *u.SellValue)
	}
	if u.Barcode != nil {
		a.set("barcode", *u.Barcode)
	}
	if u.SectionID != nil {
		a.set("section_id", *u.SectionID)
	}
	if u.Stock != nil {
		a.set("stock", *u.Stock)
	}
	if u.ExpirationDate != nil {
		a.set("expiration_date", *u.ExpirationDate)
	}
	if a.empty() {
		return "", nil, fmt.Errorf("empty product update")
	}
	return "UPDATE products SET " + a.clause() + " WHERE id = ?", append(a.args, id), nil
}

// DeleteProduct deletes a product
func (q *Queries) DeleteProduct(ctx context.Context, id int64) error {
	return q.exec(ctx, "DELETE FROM products WHERE id = ?", id)
}

// AddProductImage stores one image of a product
func (q *Queries) AddProductImage(ctx context.Context, productID int64, data []byte) error {
	return q.exec(ctx, "INSERT INTO product_images (product_id, data) VALUES (?, ?)", productID, data)
}

// ListProductImages retrieves the images of a product in insertion order
func (q *Queries) ListProductImages(ctx context.Context, productID int64) ([][]byte, error) {
	var images [][]byte
	err := q.selectAll(ctx, &images,
		"SELECT data FROM product_images WHERE product_id = ? ORDER BY id", productID)
	return images, err
}
