package store

import (
	"context"
	"strings"

	"retail-service/internal/models"
)

// FindSectionID resolves a section by case-insensitive substring
func (q *Queries) FindSectionID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := q.get(ctx, &id,
		"SELECT id FROM sections WHERE name ILIKE ? ORDER BY id LIMIT 1", likePattern(name))
	return id, err
}

// GetSection retrieves a section by ID
func (q *Queries) GetSection(ctx context.Context, id int64) (*models.Section, error) {
	var section models.Section
	if err := q.get(ctx, &section, "SELECT id, name FROM sections WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &section, nil
}

// FindStatusID resolves an order status by case-insensitive substring
func (q *Queries) FindStatusID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := q.get(ctx, &id,
		"SELECT id FROM order_status WHERE description ILIKE ? ORDER BY id LIMIT 1", likePattern(name))
	return id, err
}

// GetStatus retrieves an order status by ID
func (q *Queries) GetStatus(ctx context.Context, id int64) (*models.OrderStatus, error) {
	var status models.OrderStatus
	if err := q.get(ctx, &status,
		"SELECT id, description, closed FROM order_status WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetStatusByDescription retrieves an order status by its exact description
func (q *Queries) GetStatusByDescription(ctx context.Context, description string) (*models.OrderStatus, error) {
	var status models.OrderStatus
	if err := q.get(ctx, &status,
		"SELECT id, description, closed FROM order_status WHERE LOWER(description) = LOWER(?)", description); err != nil {
		return nil, err
	}
	return &status, nil
}

// likePattern escapes LIKE wildcards and wraps the term for substring matching
func likePattern(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(term)) + "%"
}
