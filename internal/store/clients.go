package store

import (
	"context"
	"fmt"

	"retail-service/internal/models"
)

const clientColumns = "id, name, email, cpf"

// GetClient retrieves a client by ID
func (q *Queries) GetClient(ctx context.Context, id int64) (*models.Client, error) {
	return q.findClient(ctx, "id = ?", id)
}

// FindClientByCPF retrieves a client by exact CPF
func (q *Queries) FindClientByCPF(ctx context.Context, cpf string) (*models.Client, error) {
	return q.findClient(ctx, "cpf = ?", cpf)
}

// FindClientByEmail retrieves a client by email, ignoring case
func (q *Queries) FindClientByEmail(ctx context.Context, email string) (*models.Client, error) {
	return q.findClient(ctx, "LOWER(email) = LOWER(?)", email)
}

func (q *Queries) findClient(ctx context.Context, clause string, arg interface{}) (*models.Client, error) {
	var client models.Client
	if err := q.get(ctx, &client, "SELECT "+clientColumns+" FROM clients WHERE "+clause, arg); err != nil {
		return nil, err
	}
	return &client, nil
}

// ListClients lists clients whose name or email contains the filter query
func (q *Queries) ListClients(ctx context.Context, f ClientFilter) ([]models.Client, error) {
	query, args := clientListQuery(f)
	var clients []models.Client
	err := q.selectAll(ctx, &clients, query, args...)
	return clients, err
}

func clientListQuery(f ClientFilter) (string, []interface{}) {
	var p predicates
	if f.Query != "" {
		pattern := likePattern(f.Query)
		p.add("(name ILIKE ? OR email ILIKE ?)", pattern, pattern)
	}
	query := "SELECT " + clientColumns + " FROM clients" + p.where() + " ORDER BY id"
	return page(query, p.args, f.Limit, f.Offset)
}

// CreateClient inserts a client and sets its ID
func (q *Queries) CreateClient(ctx context.Context, c *models.Client) error {
	err := q.db.GetContext(ctx, &c.ID,
		q.db.Rebind("INSERT INTO clients (name, email, cpf) VALUES (?, ?, ?) RETURNING id"),
		c.Name, c.Email, c.CPF)
	return translate(err)
}

// UpdateClient applies a partial update
func (q *Queries) UpdateClient(ctx context.Context, id int64, u ClientUpdate) error {
	var a assignments
	if u.Name != nil {
		a.set("name", *u.Name)
	}
	if u.Email != nil {
		a.set("email", *u.Email)
	}
	if u.CPF != nil {
		a.set("cpf", *u.CPF)
	}
	if a.empty() {
		return fmt.Errorf("empty client update")
	}
	return q.exec(ctx, "UPDATE clients SET "+a.clause()+" WHERE id = ?", append(a.args, id)...)
}

// DeleteClient deletes a client
func (q *Queries) DeleteClient(ctx context.Context, id int64) error {
	return q.exec(ctx, "DELETE FROM clients WHERE id = ?", id)
}
