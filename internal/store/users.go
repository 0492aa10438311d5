package store

import (
	"context"
	"time"

	"retail-service/internal/models"
)

const userColumns = "id, username, password_hash, role_id, disabled"

// GetUser retrieves a user by ID
func (q *Queries) GetUser(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	if err := q.get(ctx, &user, "SELECT "+userColumns+" FROM users WHERE id = ?", id); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername retrieves a user by username
func (q *Queries) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := q.get(ctx, &user, "SELECT "+userColumns+" FROM users WHERE username = ?", username); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser inserts a user and sets its ID
func (q *Queries) CreateUser(ctx context.Context, u *models.User) error {
	err := q.db.GetContext(ctx, &u.ID,
		q.db.Rebind("INSERT INTO users (username, password_hash, role_id, disabled) VALUES (?, ?, ?, ?) RETURNING id"),
		u.Username, u.PasswordHash, u.RoleID, u.Disabled)
	return translate(err)
}

// LowestRoleID returns the id of the least privileged role
func (q *Queries) LowestRoleID(ctx context.Context) (int64, error) {
	var id int64
	err := q.get(ctx, &id, "SELECT id FROM roles ORDER BY id DESC LIMIT 1")
	return id, err
}

// SaveToken stores an issued token
func (q *Queries) SaveToken(ctx context.Context, t models.Token) error {
	return q.exec(ctx,
		"INSERT INTO tokens (user_id, token, expire_at) VALUES (?, ?, ?)",
		t.UserID, t.Token, t.ExpireAt)
}

// GetUserByToken resolves the owner of a token still valid at now
func (q *Queries) GetUserByToken(ctx context.Context, token string, now time.Time) (*models.User, error) {
	query := `
		SELECT u.id, u.username, u.password_hash, u.role_id, u.disabled
		FROM tokens t
		JOIN users u ON t.user_id = u.id
		WHERE t.token = ? AND t.expire_at > ?`

	var user models.User
	if err := q.get(ctx, &user, query, token, now); err != nil {
		return nil, err
	}
	return &user, nil
}
