package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/storefront/order-service/internal/entities"
)

// CreateOrderRequest is the checkout payload: the cart lines to snapshot.
type CreateOrderRequest struct {
	Items []CreateOrderItem `json:"items" validate:"required,min=1,dive"`
}

type CreateOrderItem struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int32 `json:"quantity" validate:"required,gt=0"`
}

type OrderItem struct {
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int32  `json:"quantity"`
	Subtotal    int64  `json:"subtotal"`
}

type Order struct {
	ID            int64  `json:"id"`
	OrderNumber   string `json:"order_number"`
	UserID        string `json:"user_id"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`

	SubtotalAmount int64  `json:"subtotal_amount"`
	TaxAmount      int64  `json:"tax_amount"`
	TotalAmount    int64  `json:"total_amount"`
	Subtotal       string `json:"subtotal"`
	Tax            string `json:"tax"`
	Total          string `json:"total"`
	Currency       string `json:"currency"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	ShippedAt   *time.Time `json:"shipped_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`

	Items []OrderItem `json:"items"`
}

func ItemsToEntity(items []CreateOrderItem) []entities.NewOrderItem {
	out := make([]entities.NewOrderItem, 0, len(items))
	for _, it := range items {
		out = append(out, entities.NewOrderItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

func OrderEntityToJSON(o entities.Order) Order {
	items := make([]OrderItem, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, OrderItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			UnitPrice:   it.UnitPrice,
			Quantity:    it.Quantity,
			Subtotal:    it.Subtotal,
		})
	}

	return Order{
		ID:             o.ID,
		OrderNumber:    o.OrderNumber,
		UserID:         o.UserID,
		Status:         string(o.Status),
		PaymentStatus:  string(o.PaymentStatus),
		SubtotalAmount: o.SubtotalAmount,
		TaxAmount:      o.TaxAmount,
		TotalAmount:    o.TotalAmount,
		Subtotal:       formatAmount(o.SubtotalAmount),
		Tax:            formatAmount(o.TaxAmount),
		Total:          formatAmount(o.TotalAmount),
		Currency:       o.Currency,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
		PaidAt:         o.PaidAt,
		CancelledAt:    o.CancelledAt,
		ShippedAt:      o.ShippedAt,
		DeliveredAt:    o.DeliveredAt,
		Items:          items,
	}
}

// formatAmount renders minor units as a decimal string ("2420" -> "24.20").
func formatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d.%02d", sign, minor/100, minor%100)
}

func OrdersEntityToJSON(orders []entities.Order) []Order {
	out := make([]Order, 0, len(orders))
	for _, o := range orders {
		out = append(out, OrderEntityToJSON(o))
	}
	return out
}

// parseListFilter reads the optional status/payment_status/created range
// query parameters shared by the user and admin list endpoints.
func parseListFilter(r *http.Request) (entities.ListFilter, error) {
	var filter entities.ListFilter

	if v := r.URL.Query().Get("status"); v != "" {
		switch s := entities.OrderStatus(v); s {
		case entities.StatusPending, entities.StatusConfirmed, entities.StatusShipped,
			entities.StatusDelivered, entities.StatusCancelled:
			filter.Status = s
		default:
			return entities.ListFilter{}, fmt.Errorf("unknown status %q", v)
		}
	}

	if v := r.URL.Query().Get("payment_status"); v != "" {
		switch p := entities.PaymentStatus(v); p {
		case entities.PaymentUnpaid, entities.PaymentPaid:
			filter.PaymentStatus = p
		default:
			return entities.ListFilter{}, fmt.Errorf("unknown payment status %q", v)
		}
	}

	if v := r.URL.Query().Get("created_from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return entities.ListFilter{}, fmt.Errorf("invalid created_from: %w", err)
		}
		filter.CreatedFrom = t
	}

	if v := r.URL.Query().Get("created_to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return entities.ListFilter{}, fmt.Errorf("invalid created_to: %w", err)
		}
		filter.CreatedTo = t
	}

	return filter, nil
}
