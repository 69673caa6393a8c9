package stock

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/storefront/order-service/internal/catalog"
	"github.com/storefront/order-service/internal/entities"
	"github.com/storefront/order-service/pkg/utils"
)

// Adjuster is the single per-product operation the inventory service
// exposes. There is no multi-item transactional endpoint; atomicity across
// items is this package's job.
type Adjuster interface {
	AdjustStock(ctx context.Context, productID int64, delta int32, idempotencyKey, reason string) error
}

// CompensationRecorder durably stores an increment that could not be
// delivered, so reconciliation can replay it later. A reservation must
// never be silently dropped.
type CompensationRecorder interface {
	RecordPendingCompensation(ctx context.Context, orderID, productID int64, quantity int32, reason string) error
}

// ReservationClient runs the reserve/release saga over the per-product
// stock adjustment call. Remote calls are issued sequentially in ascending
// productID order so that a retried saga replays the same sequence, and
// every call carries an idempotency key scoped to (order, product,
// operation) so replays never double-apply.
type ReservationClient struct {
	logger    *slog.Logger
	adjuster  Adjuster
	recorder  CompensationRecorder
	retryConf utils.RetryConfig
}

func NewReservationClient(logger *slog.Logger, adjuster Adjuster, recorder CompensationRecorder, attempts int) *ReservationClient {
	if attempts <= 0 {
		attempts = 3
	}
	return &ReservationClient{
		logger:   logger.With(slog.String("client", "stock")),
		adjuster: adjuster,
		recorder: recorder,
		retryConf: utils.RetryConfig{
			MaxAttempts:  attempts,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
			Multiplier:   2,
		},
	}
}

// Reserve decrements stock for every item of the order. Either all items
// end up reserved, or every decrement that succeeded before the failing
// one is compensated before the error is returned; the caller never sees
// a partially reserved order.
func (c *ReservationClient) Reserve(ctx context.Context, orderID int64, items []entities.OrderItem) error {
	items = sortedByProduct(items)

	for i, it := range items {
		key := reservationKey(orderID, it.ProductID, "reserve")
		err := utils.Retry(ctx, c.retryConf, func() error {
			return c.adjuster.AdjustStock(ctx, it.ProductID, -it.Quantity, key, "order reservation")
		}, catalog.ErrStockRejected)

		if err == nil {
			continue
		}

		c.logger.WarnContext(ctx, "stock reservation failed",
			slog.Int64("order_id", orderID),
			slog.Int64("product_id", it.ProductID),
			slog.Any("error", err),
		)

		c.compensate(ctx, orderID, items[:i])
		return fmt.Errorf("%w: product %d: %v", entities.ErrStockUnavailable, it.ProductID, err)
	}

	return nil
}

// compensate puts back the decrements of this invocation that already
// succeeded. An increment that cannot be delivered is recorded for
// asynchronous reconciliation instead of being re-thrown: the hard
// guarantee is that no decrement is left without a matching increment
// at least durably recorded.
func (c *ReservationClient) compensate(ctx context.Context, orderID int64, reserved []entities.OrderItem) {
	for _, it := range reserved {
		key := reservationKey(orderID, it.ProductID, "reserve/undo")
		err := utils.Retry(ctx, c.retryConf, func() error {
			return c.adjuster.AdjustStock(ctx, it.ProductID, it.Quantity, key, "reservation rollback")
		}, catalog.ErrStockRejected)
		if err == nil {
			compensationsRun.Inc()
			continue
		}

		pendingCompensations.Inc()
		c.logger.ErrorContext(ctx, "compensation increment failed, recording for reconciliation",
			slog.Int64("order_id", orderID),
			slog.Int64("product_id", it.ProductID),
			slog.Any("error", err),
		)

		if recErr := c.recorder.RecordPendingCompensation(ctx, orderID, it.ProductID, it.Quantity, "reservation rollback"); recErr != nil {
			c.logger.ErrorContext(ctx, "failed to record pending compensation",
				slog.Int64("order_id", orderID),
				slog.Int64("product_id", it.ProductID),
				slog.Any("error", recErr),
			)
		}
	}
}

// UndoReserve puts back a fully reserved order whose status transition
// lost the optimistic race and landed in Cancelled. The increments run
// through the same compensation path as a mid-saga rollback, so a failed
// increment is durably recorded instead of dropped.
func (c *ReservationClient) UndoReserve(ctx context.Context, orderID int64, items []entities.OrderItem) {
	c.compensate(ctx, orderID, sortedByProduct(items))
}

// UndoRelease re-applies the decrements of a release whose cancellation
// lost the optimistic race (the order shipped instead and owns its
// reservation again). A decrement that can no longer be applied is
// recorded with a negative quantity for reconciliation.
func (c *ReservationClient) UndoRelease(ctx context.Context, orderID int64, items []entities.OrderItem) {
	for _, it := range sortedByProduct(items) {
		key := reservationKey(orderID, it.ProductID, "release/undo")
		err := utils.Retry(ctx, c.retryConf, func() error {
			return c.adjuster.AdjustStock(ctx, it.ProductID, -it.Quantity, key, "release rollback")
		}, catalog.ErrStockRejected)
		if err == nil {
			compensationsRun.Inc()
			continue
		}

		pendingCompensations.Inc()
		c.logger.ErrorContext(ctx, "release rollback failed, recording for reconciliation",
			slog.Int64("order_id", orderID),
			slog.Int64("product_id", it.ProductID),
			slog.Any("error", err),
		)

		if recErr := c.recorder.RecordPendingCompensation(ctx, orderID, it.ProductID, -it.Quantity, "release rollback"); recErr != nil {
			c.logger.ErrorContext(ctx, "failed to record pending compensation",
				slog.Int64("order_id", orderID),
				slog.Int64("product_id", it.ProductID),
				slog.Any("error", recErr),
			)
		}
	}
}

// Release puts reserved stock back when a confirmed order is cancelled.
// It only ever increments, so partial failure needs no compensation: items
// that could not be released make the whole call fail and the caller
// retries, with idempotency keys protecting the items that already went
// through.
func (c *ReservationClient) Release(ctx context.Context, orderID int64, items []entities.OrderItem) error {
	items = sortedByProduct(items)

	var failed []int64
	for _, it := range items {
		key := reservationKey(orderID, it.ProductID, "release")
		err := utils.Retry(ctx, c.retryConf, func() error {
			return c.adjuster.AdjustStock(ctx, it.ProductID, it.Quantity, key, "order cancellation")
		}, catalog.ErrStockRejected)
		if err != nil {
			c.logger.ErrorContext(ctx, "stock release failed",
				slog.Int64("order_id", orderID),
				slog.Int64("product_id", it.ProductID),
				slog.Any("error", err),
			)
			failed = append(failed, it.ProductID)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%w: products %v", entities.ErrReleaseFailed, failed)
	}
	return nil
}

func reservationKey(orderID, productID int64, op string) string {
	return fmt.Sprintf("order/%d/product/%d/%s", orderID, productID, op)
}

func sortedByProduct(items []entities.OrderItem) []entities.OrderItem {
	sorted := make([]entities.OrderItem, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].ProductID < sorted[j].ProductID
	})
	return sorted
}
