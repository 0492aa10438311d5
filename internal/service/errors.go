package service

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrClientNotFound    = errors.New("client not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrSectionNotFound   = errors.New("section not found")
	ErrStatusNotFound    = errors.New("status not found")
	ErrOrderClosed       = errors.New("order is closed")
	ErrItemNotInOrder    = errors.New("product is not part of the order")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrCancelViaStatus   = errors.New("cancellation must go through cancel")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidInput      = errors.New("invalid input")
	ErrForbidden         = errors.New("forbidden")
	ErrUnauthorized      = errors.New("could not validate credentials")
	ErrBadCredentials    = errors.New("incorrect username or password")
	ErrInactiveUser      = errors.New("inactive user")
	ErrRequestInProgress = errors.New("a request with this idempotency key is in progress")

	// ErrInsufficientStock is matched by *InsufficientStockError
	ErrInsufficientStock = errors.New("insufficient stock")
)

// StockShortage describes one line that exceeds the available stock.
// Delta is stock minus requested and therefore negative.
type StockShortage struct {
	ProductID   int64  `json:"product_id"`
	Description string `json:"description"`
	Stock       int    `json:"stock"`
	Requested   int    `json:"requested"`
	Delta       int    `json:"delta"`
}

// InsufficientStockError lists every line of a request that cannot be served
type InsufficientStockError struct {
	Items []StockShortage
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Items))
	for _, it := range e.Items {
		parts = append(parts, fmt.Sprintf("product %d: stock %d, requested %d", it.ProductID, it.Stock, it.Requested))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

func shortage(productID int64, description string, stock, requested int) StockShortage {
	return StockShortage{
		ProductID:   productID,
		Description: description,
		Stock:       stock,
		Requested:   requested,
		Delta:       stock - requested,
	}
}

// ValidationError is a rejected input carrying the message shown to the caller
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalid(msg string) error {
	return &ValidationError{Message: msg}
}

// AccessError is a forbidden action carrying the message shown to the caller
type AccessError struct {
	Message string
}

func (e *AccessError) Error() string {
	return e.Message
}

func (e *AccessError) Is(target error) bool {
	return target == ErrForbidden
}

func forbidden(msg string) error {
	return &AccessError{Message: msg}
}
