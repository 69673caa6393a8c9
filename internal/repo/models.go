package repo

import (
	"database/sql"
	"time"

	"github.com/storefront/order-service/internal/entities"
)

type Order struct {
	ID            int64     `db:"id"`
	OrderNumber   string    `db:"order_number"`
	UserID        string    `db:"user_id"`
	Status        string    `db:"status"`
	PaymentStatus string    `db:"payment_status"`
	Subtotal      int64     `db:"subtotal_amount"`
	Tax           int64     `db:"tax_amount"`
	Total         int64     `db:"total_amount"`
	Currency      string    `db:"currency"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`

	PaidAt      sql.NullTime `db:"paid_at"`
	CancelledAt sql.NullTime `db:"cancelled_at"`
	ShippedAt   sql.NullTime `db:"shipped_at"`
	DeliveredAt sql.NullTime `db:"delivered_at"`
}

type OrderItem struct {
	OrderID     int64  `db:"order_id"`
	ProductID   int64  `db:"product_id"`
	ProductName string `db:"product_name"`
	UnitPrice   int64  `db:"unit_price"`
	Quantity    int32  `db:"quantity"`
	Subtotal    int64  `db:"subtotal"`
}

func ItemToEntity(i OrderItem) entities.OrderItem {
	return entities.OrderItem{
		ProductID:   i.ProductID,
		ProductName: i.ProductName,
		UnitPrice:   i.UnitPrice,
		Quantity:    i.Quantity,
		Subtotal:    i.Subtotal,
	}
}

func OrderToEntity(o Order, items []OrderItem) entities.Order {
	order := entities.Order{
		ID:             o.ID,
		OrderNumber:    o.OrderNumber,
		UserID:         o.UserID,
		Status:         entities.OrderStatus(o.Status),
		PaymentStatus:  entities.PaymentStatus(o.PaymentStatus),
		SubtotalAmount: o.Subtotal,
		TaxAmount:      o.Tax,
		TotalAmount:    o.Total,
		Currency:       o.Currency,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
		PaidAt:         nullTimeToPtr(o.PaidAt),
		CancelledAt:    nullTimeToPtr(o.CancelledAt),
		ShippedAt:      nullTimeToPtr(o.ShippedAt),
		DeliveredAt:    nullTimeToPtr(o.DeliveredAt),
	}

	if len(items) > 0 {
		order.Items = make([]entities.OrderItem, 0, len(items))
		for _, it := range items {
			order.Items = append(order.Items, ItemToEntity(it))
		}
	}

	return order
}

func nullTimeToPtr(nt sql.NullTime) *time.Time {
	if nt.Valid {
		t := nt.Time
		return &t
	}
	return nil
}
