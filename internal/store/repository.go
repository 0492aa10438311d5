package store

import (
	"context"
	"errors"
	"time"

	"retail-service/internal/models"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no row matches
	ErrNotFound = errors.New("not found")
	// ErrDuplicate is returned when a unique constraint rejects a write
	ErrDuplicate = errors.New("duplicate")
	// ErrStockConflict is returned when a stock adjustment would go below zero
	ErrStockConflict = errors.New("stock would become negative")
	// ErrInUse is returned when a row is still referenced by another table
	ErrInUse = errors.New("still referenced")
)

// Gateway is the persistence entry point used by the services
type Gateway interface {
	// Repo returns a non-transactional repository for plain reads and single writes
	Repo() Repository
	// WithTx groups every call made through tx into one atomic unit
	WithTx(ctx context.Context, fn func(tx Repository) error) error
	Ping(ctx context.Context) error
}

// Repository is the full set of typed queries
type Repository interface {
	CatalogRepository
	ProductRepository
	ClientRepository
	OrderRepository
	UserRepository
	TimelineRepository
}

// CatalogRepository resolves lookup rows referenced by products and orders
type CatalogRepository interface {
	// FindSectionID matches the section name as a case-insensitive substring
	FindSectionID(ctx context.Context, name string) (int64, error)
	GetSection(ctx context.Context, id int64) (*models.Section, error)
	// FindStatusID matches the status description as a case-insensitive substring
	FindStatusID(ctx context.Context, name string) (int64, error)
	GetStatus(ctx context.Context, id int64) (*models.OrderStatus, error)
	// GetStatusByDescription matches the description exactly, ignoring case
	GetStatusByDescription(ctx context.Context, description string) (*models.OrderStatus, error)
}

// ProductFilter narrows product listings
type ProductFilter struct {
	SectionID     *int64
	MaxSellValue  *decimal.Decimal
	OnlyAvailable bool
	Offset        int
	Limit         int
}

// ProductUpdate carries the fields of a partial product update; nil means unchanged
type ProductUpdate struct {
	Description    *string
	SellValue      *decimal.Decimal
	Barcode        *string
	SectionID      *int64
	Stock          *int
	ExpirationDate *models.Date
}

// Empty reports whether no field is set
func (u ProductUpdate) Empty() bool {
	return u.Description == nil && u.SellValue == nil && u.Barcode == nil &&
		u.SectionID == nil && u.Stock == nil && u.ExpirationDate == nil
}

type ProductRepository interface {
	// GetProduct locks the product row when called inside a transaction
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*models.Product, error)
	// LockProducts returns the existing products among ids ordered by id,
	// locking them when called inside a transaction
	LockProducts(ctx context.Context, ids []int64) ([]models.Product, error)
	// AdjustStock adds delta to the product stock; ErrStockConflict if the result would be negative
	AdjustStock(ctx context.Context, id int64, delta int) error
	ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, error)
	CreateProduct(ctx context.Context, p *models.Product) error
	UpdateProduct(ctx context.Context, id int64, u ProductUpdate) error
	DeleteProduct(ctx context.Context, id int64) error
	AddProductImage(ctx context.Context, productID int64, data []byte) error
	ListProductImages(ctx context.Context, productID int64) ([][]byte, error)
}

// ClientFilter narrows client listings by name or email substring
type ClientFilter struct {
	Query  string
	Offset int
	Limit  int
}

// ClientUpdate carries the fields of a partial client update; nil means unchanged
type ClientUpdate struct {
	Name  *string
	Email *string
	CPF   *string
}

type ClientRepository interface {
	GetClient(ctx context.Context, id int64) (*models.Client, error)
	FindClientByCPF(ctx context.Context, cpf string) (*models.Client, error)
	FindClientByEmail(ctx context.Context, email string) (*models.Client, error)
	ListClients(ctx context.Context, f ClientFilter) ([]models.Client, error)
	CreateClient(ctx context.Context, c *models.Client) error
	UpdateClient(ctx context.Context, id int64, u ClientUpdate) error
	DeleteClient(ctx context.Context, id int64) error
}

// OrderFilter narrows order listings. From and To bound created_at inclusively.
type OrderFilter struct {
	From      time.Time
	To        time.Time
	SectionID *int64
	OrderID   *int64
	StatusID  *int64
	ClientID  *int64
	Offset    int
	Limit     int
}

type OrderRepository interface {
	// CreateOrder inserts the header and fills ID and CreatedAt
	CreateOrder(ctx context.Context, o *models.Order) error
	// GetOrder locks the order row when called inside a transaction
	GetOrder(ctx context.Context, id int64) (*models.Order, error)
	SetOrderStatus(ctx context.Context, id, statusID int64) error
	DeleteOrder(ctx context.Context, id int64) error
	ListOrderIDs(ctx context.Context, f OrderFilter) ([]int64, error)

	GetLineItem(ctx context.Context, orderID, productID int64) (*models.OrderLineItem, error)
	// AddLineItem inserts the line item or adds quantity to the existing one
	AddLineItem(ctx context.Context, orderID, productID int64, quantity int) error
	SetLineItemQuantity(ctx context.Context, orderID, productID int64, quantity int) error
	DeleteLineItem(ctx context.Context, orderID, productID int64) error
	ListLineItems(ctx context.Context, orderID int64) ([]models.OrderLineItem, error)
	ListLineItemDetails(ctx context.Context, orderID int64) ([]models.LineItemDetail, error)
}

type UserRepository interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	// LowestRoleID returns the least privileged role (highest id)
	LowestRoleID(ctx context.Context) (int64, error)
	SaveToken(ctx context.Context, t models.Token) error
	// GetUserByToken resolves a token that has not expired at now
	GetUserByToken(ctx context.Context, token string, now time.Time) (*models.User, error)
}

type TimelineRepository interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
	AppendTimeline(ctx context.Context, e *models.TimelineEntry) error
	ListTimeline(ctx context.Context, orderID int64) ([]models.TimelineEntry, error)
}
