package entities

import "errors"

var (
	ErrOrderNotFound          = errors.New("order not found")
	ErrEmptyOrder             = errors.New("order has no items")
	ErrProductUnavailable     = errors.New("product unavailable")
	ErrIllegalTransition      = errors.New("illegal order status transition")
	ErrStockUnavailable       = errors.New("stock reservation failed")
	ErrReleaseFailed          = errors.New("stock release failed")
	ErrConcurrentModification = errors.New("order modified concurrently")
	ErrOrderNumberTaken       = errors.New("order number already taken")
	ErrInvalidOrder           = errors.New("invalid order data")
)
