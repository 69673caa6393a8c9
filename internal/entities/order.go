package entities

import (
	"bytes"
	"encoding/gob"
	"time"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusConfirmed OrderStatus = "CONFIRMED"
	StatusShipped   OrderStatus = "SHIPPED"
	StatusDelivered OrderStatus = "DELIVERED"
	StatusCancelled OrderStatus = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentUnpaid PaymentStatus = "UNPAID"
	PaymentPaid   PaymentStatus = "PAID"
)

// OrderItem is a snapshot of the catalog product at order-creation time.
// Name and price are never refreshed afterwards, even if the catalog changes.
type OrderItem struct {
	ProductID   int64
	ProductName string
	UnitPrice   int64 // minor units
	Quantity    int32
	Subtotal    int64
}

type Order struct {
	ID          int64
	OrderNumber string
	UserID      string

	Status        OrderStatus
	PaymentStatus PaymentStatus

	SubtotalAmount int64
	TaxAmount      int64
	TotalAmount    int64
	Currency       string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	PaidAt      *time.Time
	CancelledAt *time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time

	Items []OrderItem
}

// NewOrderItem is the create-order input contract: a cart line the caller
// wants snapshotted. Pricing is resolved from the catalog, never trusted
// from the caller.
type NewOrderItem struct {
	ProductID int64
	Quantity  int32
}

type ListFilter struct {
	Status        OrderStatus
	PaymentStatus PaymentStatus
	CreatedFrom   time.Time
	CreatedTo     time.Time
}

// transitions holds the only legal edges of the order state machine.
// Cancelled is reachable from Pending and Confirmed, everything else is
// forward-only.
var transitions = map[OrderStatus][]OrderStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered},
}

func CanTransition(from, to OrderStatus) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

func ValidateCreation(items []NewOrderItem) error {
	if len(items) == 0 {
		return ErrEmptyOrder
	}
	for _, it := range items {
		if it.Quantity <= 0 {
			return ErrEmptyOrder
		}
	}
	return nil
}

// ComputeTotals derives subtotal, tax and total from the snapshotted items.
// vatRateBP is the VAT rate in basis points (2100 = 21%), tax is rounded
// half-up in minor units.
func ComputeTotals(items []OrderItem, vatRateBP int64) (subtotal, tax, total int64) {
	for _, it := range items {
		subtotal += it.Subtotal
	}
	tax = (subtotal*vatRateBP + 5000) / 10000
	total = subtotal + tax
	return subtotal, tax, total
}

func (o *Order) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(o); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (o *Order) Unmarshal(data []byte) error {
	buf := bytes.NewBuffer(data)
	dec := gob.NewDecoder(buf)
	return dec.Decode(o)
}

func init() {
	gob.Register(Order{})
	gob.Register(OrderItem{})
}
