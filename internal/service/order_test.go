package service_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/storefront/order-service/internal/catalog"
	"github.com/storefront/order-service/internal/entities"
	"github.com/storefront/order-service/internal/service"
	"github.com/storefront/order-service/pkg/cache"
	"github.com/storefront/order-service/pkg/trm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes -----------------------------------------------------------------

type nopTx struct{}

func (nopTx) Commit() error   { return nil }
func (nopTx) Rollback() error { return nil }

type fakeTxManager struct{}

func (fakeTxManager) BeginTx(ctx context.Context, _ *sql.TxOptions) (context.Context, trm.Transaction, error) {
	return ctx, nopTx{}, nil
}

func (fakeTxManager) Do(ctx context.Context, cb func(ctx context.Context) error) error {
	return cb(ctx)
}

// fakeRepo is an in-memory order store with the same conditional-update
// semantics as the Postgres repo.
type fakeRepo struct {
	mu      sync.Mutex
	nextID  int64
	orders  map[int64]entities.Order
	numbers map[string]struct{}

	createErr error

	// beforeUpdate runs once before the next UpdateStatus call, letting
	// tests interleave a competing write between a read and its
	// conditional update.
	beforeUpdate func()
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		nextID:  1,
		orders:  make(map[int64]entities.Order),
		numbers: make(map[string]struct{}),
	}
}

func (r *fakeRepo) CreateOrder(_ context.Context, o *entities.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	if _, taken := r.numbers[o.OrderNumber]; taken {
		return entities.ErrOrderNumberTaken
	}
	o.ID = r.nextID
	r.nextID++
	r.numbers[o.OrderNumber] = struct{}{}
	r.orders[o.ID] = *o
	return nil
}

func (r *fakeRepo) GetOrderByID(_ context.Context, orderID int64) (entities.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return entities.Order{}, entities.ErrOrderNotFound
	}
	return o, nil
}

func (r *fakeRepo) GetUserOrder(_ context.Context, orderID int64, userID string) (entities.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok || o.UserID != userID {
		return entities.Order{}, entities.ErrOrderNotFound
	}
	return o, nil
}

func (r *fakeRepo) ListOrders(_ context.Context, userID string, filter entities.ListFilter) ([]entities.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entities.Order
	for _, o := range r.orders {
		if userID != "" && o.UserID != userID {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if filter.PaymentStatus != "" && o.PaymentStatus != filter.PaymentStatus {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (r *fakeRepo) UpdateStatus(_ context.Context, orderID int64, from, to entities.OrderStatus, at time.Time) error {
	if hook := r.beforeUpdate; hook != nil {
		r.beforeUpdate = nil
		hook()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok || o.Status != from {
		return entities.ErrConcurrentModification
	}
	o.Status = to
	o.UpdatedAt = at
	switch to {
	case entities.StatusCancelled:
		o.CancelledAt = &at
	case entities.StatusShipped:
		o.ShippedAt = &at
	case entities.StatusDelivered:
		o.DeliveredAt = &at
	}
	r.orders[orderID] = o
	return nil
}

func (r *fakeRepo) MarkPaid(_ context.Context, orderID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok || o.PaymentStatus != entities.PaymentUnpaid || o.Status == entities.StatusCancelled {
		return entities.ErrConcurrentModification
	}
	o.PaymentStatus = entities.PaymentPaid
	o.PaidAt = &at
	o.UpdatedAt = at
	r.orders[orderID] = o
	return nil
}

func (r *fakeRepo) setStatus(orderID int64, status entities.OrderStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := r.orders[orderID]
	o.Status = status
	now := time.Now().UTC()
	o.UpdatedAt = now
	if status == entities.StatusCancelled {
		o.CancelledAt = &now
	}
	r.orders[orderID] = o
}

func (r *fakeRepo) stored(t *testing.T, orderID int64) entities.Order {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	require.True(t, ok, "order %d not stored", orderID)
	return o
}

func (r *fakeRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

type fakeCatalog struct {
	products map[int64]catalog.Product
}

func (c *fakeCatalog) GetProduct(_ context.Context, productID int64) (catalog.Product, error) {
	p, ok := c.products[productID]
	if !ok {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return p, nil
}

type stockOp struct {
	OrderID int64
	Items   []entities.OrderItem
}

type fakeStock struct {
	mu           sync.Mutex
	reserves     []stockOp
	releases     []stockOp
	undoReserves []stockOp
	undoReleases []stockOp
	reserveErr   error
	releaseErr   error
}

func (s *fakeStock) Reserve(_ context.Context, orderID int64, items []entities.OrderItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserves = append(s.reserves, stockOp{OrderID: orderID, Items: items})
	if s.reserveErr != nil {
		return s.reserveErr
	}
	return nil
}

func (s *fakeStock) Release(_ context.Context, orderID int64, items []entities.OrderItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases = append(s.releases, stockOp{OrderID: orderID, Items: items})
	if s.releaseErr != nil {
		return s.releaseErr
	}
	return nil
}

func (s *fakeStock) UndoReserve(_ context.Context, orderID int64, items []entities.OrderItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.undoReserves = append(s.undoReserves, stockOp{OrderID: orderID, Items: items})
}

func (s *fakeStock) UndoRelease(_ context.Context, orderID int64, items []entities.OrderItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.undoReleases = append(s.undoReleases, stockOp{OrderID: orderID, Items: items})
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *fakePublisher) PublishOrderEvent(_ context.Context, eventType string, _ entities.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

type fakeNumbers struct {
	mu    sync.Mutex
	queue []string
}

func (n *fakeNumbers) Next() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.queue) == 0 {
		return "ORD-20260901-ZZZZZZ"
	}
	next := n.queue[0]
	n.queue = n.queue[1:]
	return next
}

// --- harness ---------------------------------------------------------------

type orderService interface {
	Create(ctx context.Context, userID string, items []entities.NewOrderItem) (entities.Order, error)
	GetOrder(ctx context.Context, orderID int64) (entities.Order, error)
	GetUserOrder(ctx context.Context, orderID int64, userID string) (entities.Order, error)
	ListOrders(ctx context.Context, filter entities.ListFilter) ([]entities.Order, error)
	ListUserOrders(ctx context.Context, userID string, filter entities.ListFilter) ([]entities.Order, error)
	Confirm(ctx context.Context, orderID int64) (entities.Order, error)
	Ship(ctx context.Context, orderID int64) (entities.Order, error)
	Deliver(ctx context.Context, orderID int64) (entities.Order, error)
	SetPaid(ctx context.Context, orderID int64) (entities.Order, error)
	SetUserOrderPaid(ctx context.Context, orderID int64, userID string) (entities.Order, error)
	Cancel(ctx context.Context, orderID int64, userID string) (entities.Order, error)
	AdminCancel(ctx context.Context, orderID int64) (entities.Order, error)
}

type fixture struct {
	repo      *fakeRepo
	catalog   *fakeCatalog
	stock     *fakeStock
	publisher *fakePublisher
	numbers   *fakeNumbers
	svc       orderService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo: newFakeRepo(),
		catalog: &fakeCatalog{products: map[int64]catalog.Product{
			1: {ID: 1, Name: "ceramic mug", Price: 1000},
			2: {ID: 2, Name: "tea towel", Price: 499},
		}},
		stock:     &fakeStock{},
		publisher: &fakePublisher{},
		numbers:   &fakeNumbers{queue: []string{"ORD-20260901-AAAAAA", "ORD-20260901-BBBBBB", "ORD-20260901-CCCCCC"}},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.svc = service.NewOrderService(
		logger, fakeTxManager{}, f.repo, f.catalog, f.stock, f.publisher,
		f.numbers, cache.NewLRUCache(100, time.Minute),
		"EUR", 2100,
	)
	return f
}

func (f *fixture) createPending(t *testing.T, userID string) entities.Order {
	t.Helper()
	order, err := f.svc.Create(context.Background(), userID, []entities.NewOrderItem{
		{ProductID: 1, Quantity: 2},
	})
	require.NoError(t, err)
	return order
}

// --- tests -----------------------------------------------------------------

func TestCreate(t *testing.T) {
	t.Run("snapshots catalog prices and computes totals", func(t *testing.T) {
		f := newFixture(t)

		order, err := f.svc.Create(context.Background(), "user-1", []entities.NewOrderItem{
			{ProductID: 1, Quantity: 2},
			{ProductID: 2, Quantity: 1},
		})
		require.NoError(t, err)

		assert.Equal(t, entities.StatusPending, order.Status)
		assert.Equal(t, entities.PaymentUnpaid, order.PaymentStatus)
		assert.Equal(t, "EUR", order.Currency)
		assert.Equal(t, "ORD-20260901-AAAAAA", order.OrderNumber)

		require.Len(t, order.Items, 2)
		assert.Equal(t, "ceramic mug", order.Items[0].ProductName)
		assert.Equal(t, int64(1000), order.Items[0].UnitPrice)
		assert.Equal(t, int64(2000), order.Items[0].Subtotal)

		assert.Equal(t, int64(2499), order.SubtotalAmount)
		assert.Equal(t, int64(525), order.TaxAmount) // 2499 * 0.21 = 524.79 -> 525
		assert.Equal(t, order.SubtotalAmount+order.TaxAmount, order.TotalAmount)

		// stock is untouched at creation; reservation happens on confirm
		assert.Empty(t, f.stock.reserves)
		assert.Equal(t, []string{"order.created"}, f.publisher.events)
	})

	t.Run("empty order never persists", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Create(context.Background(), "user-1", nil)
		assert.ErrorIs(t, err, entities.ErrEmptyOrder)
		assert.Zero(t, f.repo.count())
	})

	t.Run("zero quantity never persists", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Create(context.Background(), "user-1", []entities.NewOrderItem{{ProductID: 1, Quantity: 0}})
		assert.ErrorIs(t, err, entities.ErrEmptyOrder)
		assert.Zero(t, f.repo.count())
	})

	t.Run("unknown product fails", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Create(context.Background(), "user-1", []entities.NewOrderItem{{ProductID: 99, Quantity: 1}})
		assert.ErrorIs(t, err, entities.ErrProductUnavailable)
		assert.Zero(t, f.repo.count())
	})

	t.Run("regenerates order number on collision", func(t *testing.T) {
		f := newFixture(t)
		f.createPending(t, "user-1") // takes ORD-...-AAAAAA
		f.numbers.queue = []string{"ORD-20260901-AAAAAA", "ORD-20260901-DDDDDD"}

		order, err := f.svc.Create(context.Background(), "user-1", []entities.NewOrderItem{{ProductID: 2, Quantity: 1}})
		require.NoError(t, err)
		assert.Equal(t, "ORD-20260901-DDDDDD", order.OrderNumber)
	})

	t.Run("gives up after bounded collision retries", func(t *testing.T) {
		f := newFixture(t)
		f.createPending(t, "user-1")
		f.numbers.queue = []string{"ORD-20260901-AAAAAA", "ORD-20260901-AAAAAA", "ORD-20260901-AAAAAA", "ORD-20260901-AAAAAA"}

		_, err := f.svc.Create(context.Background(), "user-1", []entities.NewOrderItem{{ProductID: 2, Quantity: 1}})
		assert.ErrorIs(t, err, entities.ErrOrderNumberTaken)
	})
}

func TestConfirm(t *testing.T) {
	t.Run("reserves stock then confirms", func(t *testing.T) {
		f := newFixture(t)
		order := f.createPending(t, "user-1")

		confirmed, err := f.svc.Confirm(context.Background(), order.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.StatusConfirmed, confirmed.Status)

		require.Len(t, f.stock.reserves, 1)
		assert.Equal(t, order.ID, f.stock.reserves[0].OrderID)
		assert.Equal(t, entities.StatusConfirmed, f.repo.stored(t, order.ID).Status)
	})

	t.Run("reservation failure leaves order pending and retryable", func(t *testing.T) {
		f := newFixture(t)
		order := f.createPending(t, "user-1")
		f.stock.reserveErr = entities.ErrStockUnavailable

		_, err := f.svc.Confirm(context.Background(), order.ID)
		assert.ErrorIs(t, err, entities.ErrStockUnavailable)
		assert.Equal(t, entities.StatusPending, f.repo.stored(t, order.ID).Status)

		// retry succeeds once stock is available again
		f.stock.reserveErr = nil
		confirmed, err := f.svc.Confirm(context.Background(), order.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.StatusConfirmed, confirmed.Status)
	})

	t.Run("confirming a confirmed order is illegal", func(t *testing.T) {
		f := newFixture(t)
		order := f.createPending(t, "user-1")
		_, err := f.svc.Confirm(context.Background(), order.ID)
		require.NoError(t, err)

		_, err = f.svc.Confirm(context.Background(), order.ID)
		assert.ErrorIs(t, err, entities.ErrIllegalTransition)
	})

	t.Run("unknown order", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Confirm(context.Background(), 404)
		assert.ErrorIs(t, err, entities.ErrOrderNotFound)
	})

	t.Run("losing the race to a cancellation returns the reservation", func(t *testing.T) {
		f := newFixture(t)
		order := f.createPending(t, "user-1")

		// a user cancel commits between Confirm's read and its
		// conditional update
		f.repo.beforeUpdate = func() {
			f.repo.setStatus(order.ID, entities.StatusCancelled)
		}

		_, err := f.svc.Confirm(context.Background(), order.ID)
		assert.ErrorIs(t, err, entities.ErrConcurrentModification)

		// the completed decrements are put back; a cancelled order must
		// not keep holding stock
		require.Len(t, f.stock.reserves, 1)
		require.Len(t, f.stock.undoReserves, 1)
		assert.Equal(t, order.ID, f.stock.undoReserves[0].OrderID)
		require.Len(t, f.stock.undoReserves[0].Items, 1)
		assert.Equal(t, int32(2), f.stock.undoReserves[0].Items[0].Quantity)
		assert.Equal(t, entities.StatusCancelled, f.repo.stored(t, order.ID).Status)
	})

	t.Run("concurrent confirms: one winner, one conflict", func(t *testing.T) {
		f := newFixture(t)
		order := f.createPending(t, "user-1")

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = f.svc.Confirm(context.Background(), order.ID)
			}(i)
		}
		wg.Wait()

		var confirmed, conflicted int
		for _, err := range errs {
			switch {
			case err == nil:
				confirmed++
			case errors.Is(err, entities.ErrConcurrentModification),
				errors.Is(err, entities.ErrIllegalTransition):
				// the loser fails either at the optimistic write or,
				// when it reads after the winner committed, at the
				// transition check
				conflicted++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		assert.Equal(t, 1, confirmed)
		assert.Equal(t, 1, conflicted)
		assert.Equal(t, entities.StatusConfirmed, f.repo.stored(t, order.ID).Status)
		// the winner owns the reservation; losing to another confirm
		// must not give it back
		assert.Empty(t, f.stock.undoReserves)
	})
}

func TestShipDeliver(t *testing.T) {
	f := newFixture(t)
	order := f.createPending(t, "user-1")

	// pending orders cannot ship
	_, err := f.svc.Ship(context.Background(), order.ID)
	assert.ErrorIs(t, err, entities.ErrIllegalTransition)

	_, err = f.svc.Confirm(context.Background(), order.ID)
	require.NoError(t, err)

	shipped, err := f.svc.Ship(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusShipped, shipped.Status)
	require.NotNil(t, shipped.ShippedAt)

	// delivered requires shipped; shipping again is illegal
	_, err = f.svc.Ship(context.Background(), order.ID)
	assert.ErrorIs(t, err, entities.ErrIllegalTransition)

	delivered, err := f.svc.Deliver(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusDelivered, delivered.Status)
	require.NotNil(t, delivered.DeliveredAt)

	// delivered is terminal
	_, err = f.svc.Deliver(context.Background(), order.ID)
	assert.ErrorIs(t, err, entities.ErrIllegalTransition)
	_, err = f.svc.AdminCancel(context.Background(), order.ID)
	assert.ErrorIs(t, err, entities.ErrIllegalTransition)
}

func TestSetPaid(t *testing.T) {
	t.Run("marks paid once, second call is a no-op", func(t *testing.T) {
		f := newFixture(t)
		order := f.createPending(t, "user-1")

		paid, err := f.svc.SetPaid(context.Background(), order.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.PaymentPaid, paid.PaymentStatus)
		require.NotNil(t, paid.PaidAt)

		again, err := f.svc.SetPaid(context.Background(), order.ID)
		require.NoError(t, err)
		assert.Equal(t, paid.PaidAt, again.PaidAt)
		// order status axis is untouched
		assert.Equal(t, entities.StatusPending, again.Status)
	})

	t.Run("user variant requires ownership", func(t *testing.T) {
		f := newFixture(t)
		order := f.createPending(t, "user-1")

		_, err := f.svc.SetUserOrderPaid(context.Background(), order.ID, "user-2")
		assert.ErrorIs(t, err, entities.ErrOrderNotFound)

		paid, err := f.svc.SetUserOrderPaid(context.Background(), order.ID, "user-1")
		require.NoError(t, err)
		assert.Equal(t, entities.PaymentPaid, paid.PaymentStatus)
	})

	t.Run("cancelled orders cannot be paid", func(t *testing.T) {
		f := newFixture(t)
		order := f.createPending(t, "user-1")
		_, err := f.svc.Cancel(context.Background(), order.ID, "user-1")
		require.NoError(t, err)

		_, err = f.svc.SetPaid(context.Background(), order.ID)
		assert.ErrorIs(t, err, entities.ErrIllegalTransition)
	})
}

func TestCancel(t *testing.T) {
	t.Run("owner cancels pending order", func(t *testing.T) {
		f := newFixture(t)
		order := f.createPending(t, "user-1")

		cancelled, err := f.svc.Cancel(context.Background(), order.ID, "user-1")
		require.NoError(t, err)
		assert.Equal(t, entities.StatusCancelled, cancelled.Status)
		require.NotNil(t, cancelled.CancelledAt)
		// nothing was reserved, nothing to release
		assert.Empty(t, f.stock.releases)
	})

	t.Run("cancelling twice returns the order unchanged", func(t *testing.T) {
		f := newFixture(t)
		order := f.createPending(t, "user-1")

		first, err := f.svc.Cancel(context.Background(), order.ID, "user-1")
		require.NoError(t, err)

		second, err := f.svc.Cancel(context.Background(), order.ID, "user-1")
		require.NoError(t, err)
		assert.Equal(t, first.Status, second.Status)
		assert.Equal(t, first.CancelledAt, second.CancelledAt)
	})

	t.Run("non-owner sees not found", func(t *testing.T) {
		f := newFixture(t)
		order := f.createPending(t, "user-1")

		_, err := f.svc.Cancel(context.Background(), order.ID, "user-2")
		assert.ErrorIs(t, err, entities.ErrOrderNotFound)
	})

	t.Run("owner cannot cancel a confirmed order", func(t *testing.T) {
		f := newFixture(t)
		order := f.createPending(t, "user-1")
		_, err := f.svc.Confirm(context.Background(), order.ID)
		require.NoError(t, err)

		_, err = f.svc.Cancel(context.Background(), order.ID, "user-1")
		assert.ErrorIs(t, err, entities.ErrIllegalTransition)
	})

	t.Run("admin cancel of confirmed order releases stock", func(t *testing.T) {
		f := newFixture(t)
		order := f.createPending(t, "user-1")
		_, err := f.svc.Confirm(context.Background(), order.ID)
		require.NoError(t, err)

		cancelled, err := f.svc.AdminCancel(context.Background(), order.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.StatusCancelled, cancelled.Status)

		require.Len(t, f.stock.releases, 1)
		assert.Equal(t, order.ID, f.stock.releases[0].OrderID)
		require.Len(t, f.stock.releases[0].Items, 1)
		assert.Equal(t, int32(2), f.stock.releases[0].Items[0].Quantity)
	})

	t.Run("admin cancel losing the race to a ship reclaims the release", func(t *testing.T) {
		f := newFixture(t)
		order := f.createPending(t, "user-1")
		_, err := f.svc.Confirm(context.Background(), order.ID)
		require.NoError(t, err)

		// the order ships between AdminCancel's release and its
		// conditional update
		f.repo.beforeUpdate = func() {
			f.repo.setStatus(order.ID, entities.StatusShipped)
		}

		_, err = f.svc.AdminCancel(context.Background(), order.ID)
		assert.ErrorIs(t, err, entities.ErrConcurrentModification)

		// the shipped order owns its reservation again, so the released
		// stock is taken back
		require.Len(t, f.stock.releases, 1)
		require.Len(t, f.stock.undoReleases, 1)
		assert.Equal(t, order.ID, f.stock.undoReleases[0].OrderID)
		assert.Equal(t, entities.StatusShipped, f.repo.stored(t, order.ID).Status)
	})

	t.Run("failed release keeps the order confirmed", func(t *testing.T) {
		f := newFixture(t)
		order := f.createPending(t, "user-1")
		_, err := f.svc.Confirm(context.Background(), order.ID)
		require.NoError(t, err)

		f.stock.releaseErr = entities.ErrReleaseFailed
		_, err = f.svc.AdminCancel(context.Background(), order.ID)
		assert.ErrorIs(t, err, entities.ErrReleaseFailed)
		assert.Equal(t, entities.StatusConfirmed, f.repo.stored(t, order.ID).Status)

		// retry once the inventory service recovers
		f.stock.releaseErr = nil
		cancelled, err := f.svc.AdminCancel(context.Background(), order.ID)
		require.NoError(t, err)
		assert.Equal(t, entities.StatusCancelled, cancelled.Status)
	})
}

func TestReads(t *testing.T) {
	t.Run("user reads are ownership scoped", func(t *testing.T) {
		f := newFixture(t)
		order := f.createPending(t, "user-1")

		got, err := f.svc.GetUserOrder(context.Background(), order.ID, "user-1")
		require.NoError(t, err)
		assert.Equal(t, order.OrderNumber, got.OrderNumber)

		_, err = f.svc.GetUserOrder(context.Background(), order.ID, "user-2")
		assert.ErrorIs(t, err, entities.ErrOrderNotFound)
	})

	t.Run("list filters by status", func(t *testing.T) {
		f := newFixture(t)
		first := f.createPending(t, "user-1")
		f.createPending(t, "user-2")
		_, err := f.svc.Confirm(context.Background(), first.ID)
		require.NoError(t, err)

		pending, err := f.svc.ListOrders(context.Background(), entities.ListFilter{Status: entities.StatusPending})
		require.NoError(t, err)
		require.Len(t, pending, 1)

		mine, err := f.svc.ListUserOrders(context.Background(), "user-1", entities.ListFilter{})
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, first.ID, mine[0].ID)
	})
}

// TestLifecycleEndToEnd follows the order through the whole happy path the
// storefront exercises: checkout, confirmation with reservation, admin
// cancellation with release, and the idempotent duplicate cancel.
func TestLifecycleEndToEnd(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	order, err := f.svc.Create(ctx, "user-1", []entities.NewOrderItem{{ProductID: 1, Quantity: 2}})
	require.NoError(t, err)
	assert.Equal(t, int64(2000), order.SubtotalAmount)
	assert.Equal(t, int64(420), order.TaxAmount)
	assert.Equal(t, int64(2420), order.TotalAmount)

	confirmed, err := f.svc.Confirm(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusConfirmed, confirmed.Status)

	cancelled, err := f.svc.AdminCancel(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.StatusCancelled, cancelled.Status)
	require.Len(t, f.stock.releases, 1)

	again, err := f.svc.AdminCancel(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, cancelled.Status, again.Status)
	assert.Equal(t, cancelled.CancelledAt, again.CancelledAt)

	assert.Equal(t, []string{
		"order.created", "order.confirmed", "order.cancelled",
	}, f.publisher.events)
}

var errBoom = fmt.Errorf("boom")

func TestCreateStorageFailure(t *testing.T) {
	f := newFixture(t)
	f.repo.createErr = errBoom

	_, err := f.svc.Create(context.Background(), "user-1", []entities.NewOrderItem{{ProductID: 1, Quantity: 1}})
	assert.ErrorIs(t, err, errBoom)
}
