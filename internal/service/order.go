package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/storefront/order-service/internal/catalog"
	"github.com/storefront/order-service/internal/entities"
	"github.com/storefront/order-service/internal/events"
	"github.com/storefront/order-service/pkg/trm"
	"github.com/storefront/order-service/pkg/utils"
)

// numberAttempts bounds regeneration when a freshly generated order number
// collides with an existing one.
const numberAttempts = 3

type OrderRepo interface {
	CreateOrder(ctx context.Context, o *entities.Order) error
	GetOrderByID(ctx context.Context, orderID int64) (entities.Order, error)
	GetUserOrder(ctx context.Context, orderID int64, userID string) (entities.Order, error)
	ListOrders(ctx context.Context, userID string, filter entities.ListFilter) ([]entities.Order, error)
	UpdateStatus(ctx context.Context, orderID int64, from, to entities.OrderStatus, at time.Time) error
	MarkPaid(ctx context.Context, orderID int64, at time.Time) error
}

type ProductCatalog interface {
	GetProduct(ctx context.Context, productID int64) (catalog.Product, error)
}

type StockReserver interface {
	Reserve(ctx context.Context, orderID int64, items []entities.OrderItem) error
	Release(ctx context.Context, orderID int64, items []entities.OrderItem) error
	UndoReserve(ctx context.Context, orderID int64, items []entities.OrderItem)
	UndoRelease(ctx context.Context, orderID int64, items []entities.OrderItem)
}

type EventPublisher interface {
	PublishOrderEvent(ctx context.Context, eventType string, order entities.Order) error
}

type NumberGenerator interface {
	Next() string
}

type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)
	Delete(key string)
}

type orderService struct {
	logger    *slog.Logger
	txManager trm.Manager
	repo      OrderRepo
	catalog   ProductCatalog
	stock     StockReserver
	events    EventPublisher
	numbers   NumberGenerator
	cache     Cache

	currency  string
	vatRateBP int64
}

func NewOrderService(
	logger *slog.Logger,
	txManager trm.Manager,
	repo OrderRepo,
	productCatalog ProductCatalog,
	stock StockReserver,
	events EventPublisher,
	numbers NumberGenerator,
	cache Cache,
	currency string,
	vatRateBP int64,
) *orderService {
	return &orderService{
		logger:    logger.With(slog.String("service", "order")),
		txManager: txManager,
		repo:      repo,
		catalog:   productCatalog,
		stock:     stock,
		events:    events,
		numbers:   numbers,
		cache:     cache,
		currency:  currency,
		vatRateBP: vatRateBP,
	}
}

// Create validates the cart lines, snapshots current catalog names and
// prices into immutable order items, computes the totals and persists the
// order atomically in Pending/Unpaid state. Stock is not touched here;
// reservation is deferred to Confirm.
func (s *orderService) Create(ctx context.Context, userID string, items []entities.NewOrderItem) (entities.Order, error) {
	if err := entities.ValidateCreation(items); err != nil {
		return entities.Order{}, err
	}

	orderItems := make([]entities.OrderItem, 0, len(items))
	for _, it := range items {
		product, err := s.catalog.GetProduct(ctx, it.ProductID)
		if errors.Is(err, catalog.ErrProductNotFound) {
			return entities.Order{}, fmt.Errorf("%w: product %d", entities.ErrProductUnavailable, it.ProductID)
		}
		if err != nil {
			return entities.Order{}, fmt.Errorf("failed to resolve product %d: %w", it.ProductID, err)
		}

		orderItems = append(orderItems, entities.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			UnitPrice:   product.Price,
			Quantity:    it.Quantity,
			Subtotal:    product.Price * int64(it.Quantity),
		})
	}

	subtotal, tax, total := entities.ComputeTotals(orderItems, s.vatRateBP)

	now := time.Now().UTC()
	order := entities.Order{
		UserID:         userID,
		Status:         entities.StatusPending,
		PaymentStatus:  entities.PaymentUnpaid,
		SubtotalAmount: subtotal,
		TaxAmount:      tax,
		TotalAmount:    total,
		Currency:       s.currency,
		CreatedAt:      now,
		UpdatedAt:      now,
		Items:          orderItems,
	}

	var err error
	for attempt := 0; attempt < numberAttempts; attempt++ {
		order.OrderNumber = s.numbers.Next()
		err = s.txManager.Do(ctx, func(ctx context.Context) error {
			return s.repo.CreateOrder(ctx, &order)
		})
		if !errors.Is(err, entities.ErrOrderNumberTaken) {
			break
		}
		s.logger.WarnContext(ctx, "order number collision, regenerating",
			slog.String("order_number", order.OrderNumber))
	}
	if err != nil {
		return entities.Order{}, fmt.Errorf("failed to create order: %w", err)
	}

	ordersCreated.Inc()
	s.logger.InfoContext(ctx, "order created",
		slog.Int64("order_id", order.ID),
		slog.String("order_number", order.OrderNumber),
		slog.Int64("total", order.TotalAmount),
	)

	s.cacheOrder(order)
	s.publish(ctx, events.TypeOrderCreated, order)
	return order, nil
}

// GetOrder is the unscoped admin read.
func (s *orderService) GetOrder(ctx context.Context, orderID int64) (entities.Order, error) {
	return s.getOrder(ctx, orderID)
}

// GetUserOrder hides orders of other users behind not-found.
func (s *orderService) GetUserOrder(ctx context.Context, orderID int64, userID string) (entities.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return entities.Order{}, err
	}
	if order.UserID != userID {
		return entities.Order{}, entities.ErrOrderNotFound
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter entities.ListFilter) ([]entities.Order, error) {
	return s.repo.ListOrders(ctx, "", filter)
}

func (s *orderService) ListUserOrders(ctx context.Context, userID string, filter entities.ListFilter) ([]entities.Order, error) {
	return s.repo.ListOrders(ctx, userID, filter)
}

// Confirm reserves stock for every item and only then moves the order to
// Confirmed. A failed reservation leaves the order Pending and fully
// compensated, so the caller can retry; a lost race on the status row
// fails with ErrConcurrentModification without double-reserving, because
// the saga's idempotency keys make the second reservation a no-op.
func (s *orderService) Confirm(ctx context.Context, orderID int64) (entities.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return entities.Order{}, err
	}

	if order.Status != entities.StatusPending {
		return entities.Order{}, fmt.Errorf("%w: cannot confirm %s order", entities.ErrIllegalTransition, order.Status)
	}

	if err := s.stock.Reserve(ctx, order.ID, order.Items); err != nil {
		reservationFailures.Inc()
		return entities.Order{}, err
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, order.ID, entities.StatusPending, entities.StatusConfirmed, now); err != nil {
		s.cache.Delete(cacheKey(order.ID))
		if errors.Is(err, entities.ErrConcurrentModification) {
			s.reclaimReservation(ctx, order)
		}
		return entities.Order{}, err
	}

	order.Status = entities.StatusConfirmed
	order.UpdatedAt = now

	ordersConfirmed.Inc()
	s.logger.InfoContext(ctx, "order confirmed", slog.Int64("order_id", order.ID))

	s.cacheOrder(order)
	s.publish(ctx, events.TypeOrderConfirmed, order)
	return order, nil
}

// reclaimReservation decides what happens to a completed reservation
// whose Pending->Confirmed write lost the optimistic race. A winning
// concurrent Confirm owns the reservation (its own Reserve deduplicated
// against ours on the idempotency keys); a winning Cancel does not, so
// the decrements are put back before the caller sees the conflict.
func (s *orderService) reclaimReservation(ctx context.Context, order entities.Order) {
	current, err := s.getOrder(ctx, order.ID)
	if err != nil {
		s.logger.ErrorContext(ctx, "cannot determine reservation ownership after lost race",
			slog.Int64("order_id", order.ID),
			slog.Any("error", err),
		)
		return
	}
	if current.Status == entities.StatusConfirmed {
		return
	}

	s.logger.WarnContext(ctx, "confirm lost race, returning reservation",
		slog.Int64("order_id", order.ID),
		slog.String("status", string(current.Status)),
	)
	s.stock.UndoReserve(ctx, order.ID, order.Items)
}

// Ship moves a Confirmed order to Shipped.
func (s *orderService) Ship(ctx context.Context, orderID int64) (entities.Order, error) {
	return s.transition(ctx, orderID, entities.StatusConfirmed, entities.StatusShipped, events.TypeOrderShipped)
}

// Deliver moves a Shipped order to Delivered.
func (s *orderService) Deliver(ctx context.Context, orderID int64) (entities.Order, error) {
	return s.transition(ctx, orderID, entities.StatusShipped, entities.StatusDelivered, events.TypeOrderDelivered)
}

func (s *orderService) transition(ctx context.Context, orderID int64, from, to entities.OrderStatus, eventType string) (entities.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return entities.Order{}, err
	}

	if order.Status != from {
		return entities.Order{}, fmt.Errorf("%w: cannot move %s order to %s", entities.ErrIllegalTransition, order.Status, to)
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateStatus(ctx, order.ID, from, to, now); err != nil {
		s.cache.Delete(cacheKey(order.ID))
		return entities.Order{}, err
	}

	order.Status = to
	order.UpdatedAt = now
	switch to {
	case entities.StatusShipped:
		order.ShippedAt = &now
	case entities.StatusDelivered:
		order.DeliveredAt = &now
	}

	s.logger.InfoContext(ctx, "order status changed",
		slog.Int64("order_id", order.ID),
		slog.String("status", string(to)),
	)

	s.cacheOrder(order)
	s.publish(ctx, eventType, order)
	return order, nil
}

// SetPaid flips the payment axis, independent of the order status except
// that a Cancelled order cannot be marked paid. Marking an already-paid
// order is an idempotent no-op returning the order with its original
// paidAt.
func (s *orderService) SetPaid(ctx context.Context, orderID int64) (entities.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return entities.Order{}, err
	}
	return s.setPaid(ctx, order)
}

func (s *orderService) SetUserOrderPaid(ctx context.Context, orderID int64, userID string) (entities.Order, error) {
	order, err := s.GetUserOrder(ctx, orderID, userID)
	if err != nil {
		return entities.Order{}, err
	}
	return s.setPaid(ctx, order)
}

func (s *orderService) setPaid(ctx context.Context, order entities.Order) (entities.Order, error) {
	if order.PaymentStatus == entities.PaymentPaid {
		return order, nil
	}
	if order.Status == entities.StatusCancelled {
		return entities.Order{}, fmt.Errorf("%w: cannot pay cancelled order", entities.ErrIllegalTransition)
	}

	now := time.Now().UTC()
	err := s.repo.MarkPaid(ctx, order.ID, now)
	if errors.Is(err, entities.ErrConcurrentModification) {
		s.cache.Delete(cacheKey(order.ID))
		current, readErr := s.getOrder(ctx, order.ID)
		if readErr != nil {
			return entities.Order{}, readErr
		}
		// either somebody else marked it paid in between, or a racing
		// cancellation closed the order before the payment landed
		if current.PaymentStatus == entities.PaymentPaid {
			return current, nil
		}
		return entities.Order{}, fmt.Errorf("%w: cannot pay cancelled order", entities.ErrIllegalTransition)
	}
	if err != nil {
		return entities.Order{}, err
	}

	order.PaymentStatus = entities.PaymentPaid
	order.PaidAt = &now
	order.UpdatedAt = now

	s.logger.InfoContext(ctx, "order paid", slog.Int64("order_id", order.ID))

	s.cacheOrder(order)
	s.publish(ctx, events.TypeOrderPaid, order)
	return order, nil
}

// Cancel is the user-facing variant: only the owner may cancel, and only
// while the order is still Pending. Cancelling an already-cancelled order
// returns it unchanged.
func (s *orderService) Cancel(ctx context.Context, orderID int64, userID string) (entities.Order, error) {
	order, err := s.GetUserOrder(ctx, orderID, userID)
	if err != nil {
		return entities.Order{}, err
	}

	if order.Status == entities.StatusCancelled {
		return order, nil
	}
	if order.Status != entities.StatusPending {
		return entities.Order{}, fmt.Errorf("%w: cannot cancel %s order", entities.ErrIllegalTransition, order.Status)
	}

	return s.cancel(ctx, order)
}

// AdminCancel also cancels Confirmed orders, releasing their reserved
// stock first. If the release cannot complete, the cancellation fails and
// the order stays Confirmed; declaring it cancelled while inventory is
// still held would leak the reservation.
func (s *orderService) AdminCancel(ctx context.Context, orderID int64) (entities.Order, error) {
	order, err := s.getOrder(ctx, orderID)
	if err != nil {
		return entities.Order{}, err
	}

	if order.Status == entities.StatusCancelled {
		return order, nil
	}
	if !entities.CanTransition(order.Status, entities.StatusCancelled) {
		return entities.Order{}, fmt.Errorf("%w: cannot cancel %s order", entities.ErrIllegalTransition, order.Status)
	}

	if order.Status == entities.StatusConfirmed {
		if err := s.stock.Release(ctx, order.ID, order.Items); err != nil {
			releaseFailures.Inc()
			return entities.Order{}, err
		}

		cancelled, err := s.cancel(ctx, order)
		if errors.Is(err, entities.ErrConcurrentModification) {
			// the order moved on instead of cancelling (shipped in the
			// meantime) and owns its reservation again; take back what
			// Release just returned
			s.logger.WarnContext(ctx, "cancel lost race, reclaiming released stock",
				slog.Int64("order_id", order.ID),
			)
			s.stock.UndoRelease(ctx, order.ID, order.Items)
		}
		return cancelled, err
	}

	return s.cancel(ctx, order)
}

func (s *orderService) cancel(ctx context.Context, order entities.Order) (entities.Order, error) {
	now := time.Now().UTC()
	err := s.repo.UpdateStatus(ctx, order.ID, order.Status, entities.StatusCancelled, now)
	if errors.Is(err, entities.ErrConcurrentModification) {
		s.cache.Delete(cacheKey(order.ID))
		current, readErr := s.getOrder(ctx, order.ID)
		if readErr != nil {
			return entities.Order{}, readErr
		}
		// a concurrent cancel winning the race is still a successful
		// cancellation from this caller's point of view
		if current.Status == entities.StatusCancelled {
			return current, nil
		}
		return entities.Order{}, err
	}
	if err != nil {
		return entities.Order{}, err
	}

	order.Status = entities.StatusCancelled
	order.CancelledAt = &now
	order.UpdatedAt = now

	ordersCancelled.Inc()
	s.logger.InfoContext(ctx, "order cancelled", slog.Int64("order_id", order.ID))

	s.cacheOrder(order)
	s.publish(ctx, events.TypeOrderCancelled, order)
	return order, nil
}

func (s *orderService) getOrder(ctx context.Context, orderID int64) (entities.Order, error) {
	if data, ok := s.cache.Get(cacheKey(orderID)); ok {
		var order entities.Order
		if err := order.Unmarshal(data); err == nil {
			return order, nil
		}
		s.cache.Delete(cacheKey(orderID))
	}

	var order entities.Order
	fn := func() error {
		var err error
		order, err = s.repo.GetOrderByID(ctx, orderID)
		return err
	}
	cfg := utils.RetryConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxAttempts:  3,
		Multiplier:   2,
	}
	if err := utils.Retry(ctx, cfg, fn, entities.ErrOrderNotFound); err != nil {
		return entities.Order{}, err
	}

	s.cacheOrder(order)
	return order, nil
}

func (s *orderService) cacheOrder(order entities.Order) {
	data, err := order.Marshal()
	if err != nil {
		s.logger.Error("failed to marshal order for cache", slog.Int64("order_id", order.ID), slog.Any("error", err))
		return
	}
	s.cache.Set(cacheKey(order.ID), data)
}

func (s *orderService) publish(ctx context.Context, eventType string, order entities.Order) {
	if err := s.events.PublishOrderEvent(ctx, eventType, order); err != nil {
		s.logger.WarnContext(ctx, "failed to publish order event",
			slog.String("type", eventType),
			slog.Int64("order_id", order.ID),
			slog.Any("error", err),
		)
	}
}

func cacheKey(orderID int64) string {
	return strconv.FormatInt(orderID, 10)
}
