package orders

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderExists       = errors.New("order already exists")
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrTooManyLines      = errors.New("order has too many distinct products to capture atomically")
	ErrInvalidQuantity   = errors.New("invalid line quantity")
)

// ErrStatusMismatch is returned when a conditional status update finds the order
// in a different status than expected.
var ErrStatusMismatch = errors.New("status mismatch/conditional failed")

// StockError reports the product that could not cover its line quantity.
type StockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }
