package entities_test

import (
	"testing"

	"github.com/storefront/order-service/internal/entities"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	allowed := map[[2]entities.OrderStatus]bool{
		{entities.StatusPending, entities.StatusConfirmed}:   true,
		{entities.StatusPending, entities.StatusCancelled}:   true,
		{entities.StatusConfirmed, entities.StatusShipped}:   true,
		{entities.StatusConfirmed, entities.StatusCancelled}: true,
		{entities.StatusShipped, entities.StatusDelivered}:   true,
	}

	statuses := []entities.OrderStatus{
		entities.StatusPending,
		entities.StatusConfirmed,
		entities.StatusShipped,
		entities.StatusDelivered,
		entities.StatusCancelled,
	}

	// every pair outside the allowed set must be rejected, including
	// same-state pairs and anything out of a terminal state
	for _, from := range statuses {
		for _, to := range statuses {
			got := entities.CanTransition(from, to)
			want := allowed[[2]entities.OrderStatus{from, to}]
			assert.Equalf(t, want, got, "transition %s -> %s", from, to)
		}
	}
}

func TestValidateCreation(t *testing.T) {
	testCases := []struct {
		name    string
		items   []entities.NewOrderItem
		wantErr error
	}{
		{
			name:  "valid items",
			items: []entities.NewOrderItem{{ProductID: 1, Quantity: 2}},
		},
		{
			name:    "empty list",
			items:   nil,
			wantErr: entities.ErrEmptyOrder,
		},
		{
			name: "zero quantity",
			items: []entities.NewOrderItem{
				{ProductID: 1, Quantity: 2},
				{ProductID: 2, Quantity: 0},
			},
			wantErr: entities.ErrEmptyOrder,
		},
		{
			name:    "negative quantity",
			items:   []entities.NewOrderItem{{ProductID: 1, Quantity: -1}},
			wantErr: entities.ErrEmptyOrder,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := entities.ValidateCreation(tc.items)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestComputeTotals(t *testing.T) {
	testCases := []struct {
		name         string
		items        []entities.OrderItem
		wantSubtotal int64
		wantTax      int64
		wantTotal    int64
	}{
		{
			name: "single item 21 percent",
			// price 10.00 x 2 -> subtotal 20.00, tax 4.20, total 24.20
			items:        []entities.OrderItem{{UnitPrice: 1000, Quantity: 2, Subtotal: 2000}},
			wantSubtotal: 2000,
			wantTax:      420,
			wantTotal:    2420,
		},
		{
			name: "multiple items",
			items: []entities.OrderItem{
				{UnitPrice: 999, Quantity: 1, Subtotal: 999},
				{UnitPrice: 250, Quantity: 3, Subtotal: 750},
			},
			wantSubtotal: 1749,
			// 1749 * 0.21 = 367.29 -> rounds half-up to 367
			wantTax:   367,
			wantTotal: 2116,
		},
		{
			name: "rounding half up",
			// 50 * 0.21 = 10.5 -> 11
			items:        []entities.OrderItem{{UnitPrice: 50, Quantity: 1, Subtotal: 50}},
			wantSubtotal: 50,
			wantTax:      11,
			wantTotal:    61,
		},
		{
			name:         "no items",
			items:        nil,
			wantSubtotal: 0,
			wantTax:      0,
			wantTotal:    0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			subtotal, tax, total := entities.ComputeTotals(tc.items, 2100)
			assert.Equal(t, tc.wantSubtotal, subtotal)
			assert.Equal(t, tc.wantTax, tax)
			assert.Equal(t, tc.wantTotal, total)
			assert.Equal(t, subtotal+tax, total)
		})
	}
}

func TestOrderMarshalRoundTrip(t *testing.T) {
	order := entities.Order{
		ID:          42,
		OrderNumber: "ORD-20260901-A1B2C3",
		UserID:      "user-1",
		Status:      entities.StatusPending,
		Items:       []entities.OrderItem{{ProductID: 1, ProductName: "mug", UnitPrice: 1000, Quantity: 2, Subtotal: 2000}},
	}

	data, err := order.Marshal()
	require.NoError(t, err)

	var got entities.Order
	require.NoError(t, got.Unmarshal(data))
	assert.Equal(t, order, got)
}
