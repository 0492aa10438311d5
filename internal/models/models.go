package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses seeded in the order_status table
const (
	StatusNew       = "Nova"
	StatusPicking   = "Em separação"
	StatusInTransit = "Em transporte"
	StatusDelivered = "Entregue"
	StatusCancelled = "Cancelada"
)

// Section groups products on the shelf (e.g. "Bebidas", "Laticínios")
type Section struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// OrderStatus is a row of the order_status lookup table.
// Closed statuses reject every mutation of the order.
type OrderStatus struct {
	ID          int64  `db:"id" json:"id"`
	Description string `db:"description" json:"description"`
	Closed      bool   `db:"closed" json:"closed"`
}

// Product represents a product in the catalog
type Product struct {
	ID             int64           `db:"id" json:"id"`
	Description    string          `db:"description" json:"description"`
	SellValue      decimal.Decimal `db:"sell_value" json:"sell_value"`
	Barcode        string          `db:"barcode" json:"barcode"`
	SectionID      int64           `db:"section_id" json:"section_id"`
	Stock          int             `db:"stock" json:"stock"`
	ExpirationDate *Date           `db:"expiration_date" json:"expiration_date"`
}

// ProductDetail is a product resolved with its section name and images
type ProductDetail struct {
	ID             int64           `json:"id"`
	Description    string          `json:"description"`
	SellValue      decimal.Decimal `json:"sell_value"`
	Barcode        string          `json:"barcode"`
	SectionName    string          `json:"section_name"`
	Stock          int             `json:"stock"`
	ExpirationDate *Date           `json:"expiration_date"`
	Images         []string        `json:"images"`
}

// Client is a customer that places orders
type Client struct {
	ID    int64  `db:"id" json:"id"`
	Name  string `db:"name" json:"name"`
	Email string `db:"email" json:"email"`
	CPF   string `db:"cpf" json:"cpf"`
}

// Order represents a client order header
type Order struct {
	ID        int64     `db:"id" json:"id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	StatusID  int64     `db:"status" json:"status_id"`
	ClientID  int64     `db:"client_id" json:"client_id"`
}

// OrderLineItem is the quantity of one product reserved by one order
type OrderLineItem struct {
	OrderID   int64 `db:"order_id" json:"order_id"`
	ProductID int64 `db:"product_id" json:"product_id"`
	Quantity  int   `db:"quantity" json:"quantity"`
}

// LineItemDetail is a line item enriched with the current product data
type LineItemDetail struct {
	ProductID      int64           `db:"product_id" json:"id"`
	Description    string          `db:"description" json:"description"`
	SellValue      decimal.Decimal `db:"sell_value" json:"sell_value"`
	Barcode        string          `db:"barcode" json:"barcode"`
	SectionName    string          `db:"section_name" json:"section_name"`
	Stock          int             `db:"stock" json:"stock"`
	ExpirationDate *Date           `db:"expiration_date" json:"expiration_date"`
	Quantity       int             `db:"quantity" json:"quantity"`
	Images         []string        `db:"-" json:"images"`
}

// OrderDetail is the read model returned by the order endpoints
type OrderDetail struct {
	ID        int64            `json:"id"`
	CreatedAt time.Time        `json:"created_at"`
	ClientID  int64            `json:"client_id"`
	Status    string           `json:"status"`
	Products  []LineItemDetail `json:"products"`
}

// LineItemRequest is a (product, quantity) pair sent by callers
type LineItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity" binding:"required"`
}

// User is an operator of the backend
type User struct {
	ID           int64  `db:"id" json:"id"`
	Username     string `db:"username" json:"username"`
	PasswordHash string `db:"password_hash" json:"-"`
	RoleID       int64  `db:"role_id" json:"role"`
	Disabled     bool   `db:"disabled" json:"disabled"`
}

// Token is an issued bearer token
type Token struct {
	UserID   int64     `db:"user_id"`
	Token    string    `db:"token"`
	ExpireAt time.Time `db:"expire_at"`
}

// TimelineEntry is one recorded lifecycle event of an order
type TimelineEntry struct {
	ID         int64     `db:"id" json:"id"`
	OrderID    int64     `db:"order_id" json:"order_id"`
	EventID    string    `db:"event_id" json:"event_id"`
	EventType  string    `db:"event_type" json:"event_type"`
	Detail     string    `db:"detail" json:"detail"`
	OccurredAt time.Time `db:"occurred_at" json:"occurred_at"`
}
