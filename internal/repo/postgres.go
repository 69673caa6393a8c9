package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/storefront/order-service/internal/entities"
	"github.com/storefront/order-service/pkg/trm"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const uniqueViolation = "23505"

var orderColumns = []string{
	"id", "order_number", "user_id", "status", "payment_status",
	"subtotal_amount", "tax_amount", "total_amount", "currency",
	"created_at", "updated_at", "paid_at", "cancelled_at", "shipped_at", "delivered_at",
}

var itemColumns = []string{
	"order_id", "product_id", "product_name", "unit_price", "quantity", "subtotal",
}

type postgresRepo struct {
	db *sqlx.DB
	qb sq.StatementBuilderType
}

func NewPostgresRepo(db *sqlx.DB) *postgresRepo {
	return &postgresRepo{
		db: db,
		qb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// CreateOrder inserts the order and its items. Callers run it inside a
// trm transaction so the pair is atomic. A duplicate order number maps to
// entities.ErrOrderNumberTaken so the service can regenerate and retry.
func (r *postgresRepo) CreateOrder(ctx context.Context, o *entities.Order) error {
	query, args := r.qb.Insert("orders").
		Columns("order_number", "user_id", "status", "payment_status",
			"subtotal_amount", "tax_amount", "total_amount", "currency",
			"created_at", "updated_at").
		Values(o.OrderNumber, o.UserID, string(o.Status), string(o.PaymentStatus),
			o.SubtotalAmount, o.TaxAmount, o.TotalAmount, o.Currency,
			o.CreatedAt, o.UpdatedAt).
		Suffix("RETURNING id").
		MustSql()

	var id int64
	err := r.getContext(ctx, &id, query, args...)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return entities.ErrOrderNumberTaken
	}
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	o.ID = id

	q := r.qb.Insert("order_items").Columns(itemColumns...)
	for _, it := range o.Items {
		q = q.Values(id, it.ProductID, it.ProductName, it.UnitPrice, it.Quantity, it.Subtotal)
	}

	query, args = q.MustSql()
	if _, err := r.execContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert order items: %w", err)
	}
	return nil
}

func (r *postgresRepo) GetOrderByID(ctx context.Context, orderID int64) (entities.Order, error) {
	return r.getOrder(ctx, sq.Eq{"id": orderID})
}

// GetUserOrder is the ownership-scoped read: an order belonging to another
// user is indistinguishable from a missing one.
func (r *postgresRepo) GetUserOrder(ctx context.Context, orderID int64, userID string) (entities.Order, error) {
	return r.getOrder(ctx, sq.Eq{"id": orderID, "user_id": userID})
}

func (r *postgresRepo) getOrder(ctx context.Context, where sq.Eq) (entities.Order, error) {
	query, args := r.qb.Select(orderColumns...).
		From("orders").
		Where(where).
		MustSql()

	var order Order
	err := r.getContext(ctx, &order, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return entities.Order{}, entities.ErrOrderNotFound
	}
	if err != nil {
		return entities.Order{}, fmt.Errorf("failed to get order: %w", err)
	}

	query, args = r.qb.Select(itemColumns...).
		From("order_items").
		Where(sq.Eq{"order_id": order.ID}).
		OrderBy("product_id").
		MustSql()

	var items []OrderItem
	if err := r.selectContext(ctx, &items, query, args...); err != nil {
		return entities.Order{}, fmt.Errorf("failed to get order items: %w", err)
	}

	return OrderToEntity(order, items), nil
}

// ListOrders returns orders newest-first. userID scopes the list to one
// owner; an empty userID is the admin view.
func (r *postgresRepo) ListOrders(ctx context.Context, userID string, filter entities.ListFilter) ([]entities.Order, error) {
	q := r.qb.Select(orderColumns...).
		From("orders").
		OrderBy("created_at DESC")

	if userID != "" {
		q = q.Where(sq.Eq{"user_id": userID})
	}
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.PaymentStatus != "" {
		q = q.Where(sq.Eq{"payment_status": string(filter.PaymentStatus)})
	}
	if !filter.CreatedFrom.IsZero() {
		q = q.Where(sq.GtOrEq{"created_at": filter.CreatedFrom})
	}
	if !filter.CreatedTo.IsZero() {
		q = q.Where(sq.LtOrEq{"created_at": filter.CreatedTo})
	}

	query, args := q.MustSql()

	var orders []Order
	if err := r.selectContext(ctx, &orders, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select orders: %w", err)
	}

	if len(orders) == 0 {
		return []entities.Order{}, nil
	}

	ids := make([]int64, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}

	query, args = r.qb.Select(itemColumns...).
		From("order_items").
		Where(sq.Eq{"order_id": ids}).
		OrderBy("product_id").
		MustSql()

	var items []OrderItem
	if err := r.selectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select order items: %w", err)
	}

	itemsMap := make(map[int64][]OrderItem, len(ids))
	for _, it := range items {
		itemsMap[it.OrderID] = append(itemsMap[it.OrderID], it)
	}

	result := make([]entities.Order, 0, len(orders))
	for _, o := range orders {
		result = append(result, OrderToEntity(o, itemsMap[o.ID]))
	}
	return result, nil
}

// transitionStamps maps a target status to the timestamp column it sets
// exactly once. Confirmed has no dedicated column, only updated_at moves.
var transitionStamps = map[entities.OrderStatus]string{
	entities.StatusCancelled: "cancelled_at",
	entities.StatusShipped:   "shipped_at",
	entities.StatusDelivered: "delivered_at",
}

// UpdateStatus performs the optimistic status transition: the update only
// applies while the row still holds the expected prior status. Zero rows
// affected means the order changed underneath the caller (or does not
// exist); the caller re-reads to tell those apart.
func (r *postgresRepo) UpdateStatus(ctx context.Context, orderID int64, from, to entities.OrderStatus, at time.Time) error {
	q := r.qb.Update("orders").
		Set("status", string(to)).
		Set("updated_at", at).
		Where(sq.Eq{"id": orderID, "status": string(from)})

	if col, ok := transitionStamps[to]; ok {
		q = q.Set(col, at)
	}

	query, args := q.MustSql()

	res, err := r.execContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return entities.ErrConcurrentModification
	}
	return nil
}

// MarkPaid flips the payment axis once. Cancelled orders are excluded so
// a payment racing a cancellation cannot mark a dead order paid. Zero rows
// affected reports ErrConcurrentModification; the caller re-reads and
// treats an already-paid order as the idempotent no-op.
func (r *postgresRepo) MarkPaid(ctx context.Context, orderID int64, at time.Time) error {
	query, args := r.qb.Update("orders").
		Set("payment_status", string(entities.PaymentPaid)).
		Set("paid_at", at).
		Set("updated_at", at).
		Where(sq.Eq{"id": orderID, "payment_status": string(entities.PaymentUnpaid)}).
		Where(sq.NotEq{"status": string(entities.StatusCancelled)}).
		MustSql()

	res, err := r.execContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to mark order paid: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return entities.ErrConcurrentModification
	}
	return nil
}

// RecordPendingCompensation stores an inventory increment that could not
// be delivered, for asynchronous reconciliation.
func (r *postgresRepo) RecordPendingCompensation(ctx context.Context, orderID, productID int64, quantity int32, reason string) error {
	query, args := r.qb.Insert("pending_compensations").
		Columns("order_id", "product_id", "quantity", "reason", "created_at").
		Values(orderID, productID, quantity, reason, time.Now().UTC()).
		MustSql()

	if _, err := r.execContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record pending compensation: %w", err)
	}
	return nil
}

func (r *postgresRepo) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	tx := trm.ExtractTx(ctx)
	if tx != nil {
		return tx.ExecContext(ctx, query, args...)
	}
	return r.db.ExecContext(ctx, query, args...)
}

func (r *postgresRepo) getContext(ctx context.Context, dest any, query string, args ...any) error {
	tx := trm.ExtractTx(ctx)
	if tx != nil {
		return tx.GetContext(ctx, dest, query, args...)
	}
	return r.db.GetContext(ctx, dest, query, args...)
}

func (r *postgresRepo) selectContext(ctx context.Context, dest any, query string, args ...any) error {
	tx := trm.ExtractTx(ctx)
	if tx != nil {
		return tx.SelectContext(ctx, dest, query, args...)
	}
	return r.db.SelectContext(ctx, dest, query, args...)
}
