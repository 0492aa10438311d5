package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// dbtx is the subset of sqlx shared by *sqlx.DB and *sqlx.Tx
type dbtx interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	Rebind(query string) string
}

type Store struct {
	db *sqlx.DB
}

var _ Gateway = (*Store)(nil)

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Ping checks the database connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Repo returns a repository running each statement in its own implicit transaction
func (s *Store) Repo() Repository {
	return &Queries{db: s.db}
}

// WithTx runs fn inside a READ COMMITTED transaction. Reads of orders and
// products made through the transactional repository take row locks, so a
// read-check-write sequence on stock cannot interleave with another one.
func (s *Store) WithTx(ctx context.Context, fn func(tx Repository) error) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Queries{db: tx, locking: true}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Queries implements Repository on top of a connection or a transaction
type Queries struct {
	db      dbtx
	locking bool
}

// forUpdate returns the row lock clause when running inside a transaction
func (q *Queries) forUpdate() string {
	if q.locking {
		return " FOR UPDATE"
	}
	return ""
}

func (q *Queries) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	err := q.db.GetContext(ctx, dest, q.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (q *Queries) selectAll(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return q.db.SelectContext(ctx, dest, q.db.Rebind(query), args...)
}

// exec runs a command and fails with ErrNotFound when no row was touched
func (q *Queries) exec(ctx context.Context, query string, args ...interface{}) error {
	res, err := q.db.ExecContext(ctx, q.db.Rebind(query), args...)
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// translate maps driver errors onto store errors
func translate(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case "23505":
		return fmt.Errorf("%w: %s", ErrDuplicate, pqErr.Constraint)
	case "23503":
		return fmt.Errorf("%w: %s", ErrInUse, pqErr.Constraint)
	}
	return err
}
