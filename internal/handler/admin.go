package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/storefront/order-service/internal/entities"
	"github.com/storefront/order-service/pkg/utils"

	"github.com/go-chi/chi/v5"
)

// AdminOrderService is the privileged slice of the lifecycle service:
// unscoped reads and the transitions only back-office staff may trigger.
type AdminOrderService interface {
	GetOrder(ctx context.Context, orderID int64) (entities.Order, error)
	ListOrders(ctx context.Context, filter entities.ListFilter) ([]entities.Order, error)
	Confirm(ctx context.Context, orderID int64) (entities.Order, error)
	Ship(ctx context.Context, orderID int64) (entities.Order, error)
	Deliver(ctx context.Context, orderID int64) (entities.Order, error)
	AdminCancel(ctx context.Context, orderID int64) (entities.Order, error)
	SetPaid(ctx context.Context, orderID int64) (entities.Order, error)
}

type AdminHandler struct {
	logger *slog.Logger
	svc    AdminOrderService
}

func NewAdminHandler(logger *slog.Logger, svc AdminOrderService) *AdminHandler {
	return &AdminHandler{
		logger: logger.With(slog.String("handler", "admin")),
		svc:    svc,
	}
}

func (h *AdminHandler) Init(r chi.Router) {
	r.Route("/admin/orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Get("/{order_id}", h.GetOrder)
		r.Post("/{order_id}/confirm", h.transitionHandler(h.svc.Confirm))
		r.Post("/{order_id}/ship", h.transitionHandler(h.svc.Ship))
		r.Post("/{order_id}/deliver", h.transitionHandler(h.svc.Deliver))
		r.Post("/{order_id}/cancel", h.transitionHandler(h.svc.AdminCancel))
		r.Post("/{order_id}/pay", h.transitionHandler(h.svc.SetPaid))
	})
}

func (h *AdminHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderID, err := orderIDParam(r)
	if err != nil {
		utils.WriteError(w, "invalid order id", http.StatusBadRequest)
		return
	}

	order, err := h.svc.GetOrder(ctx, orderID)
	if err != nil {
		writeServiceError(ctx, h.logger, w, err)
		return
	}

	utils.WriteJSON(w, OrderEntityToJSON(order), http.StatusOK)
}

func (h *AdminHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := parseListFilter(r)
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	orders, err := h.svc.ListOrders(ctx, filter)
	if err != nil {
		writeServiceError(ctx, h.logger, w, err)
		return
	}

	utils.WriteJSON(w, OrdersEntityToJSON(orders), http.StatusOK)
}

// transitionHandler wraps the confirm/ship/deliver/cancel/pay operations,
// which all share the same request and response shape.
func (h *AdminHandler) transitionHandler(op func(ctx context.Context, orderID int64) (entities.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		orderID, err := orderIDParam(r)
		if err != nil {
			utils.WriteError(w, "invalid order id", http.StatusBadRequest)
			return
		}

		order, err := op(ctx, orderID)
		if err != nil {
			writeServiceError(ctx, h.logger, w, err)
			return
		}

		utils.WriteJSON(w, OrderEntityToJSON(order), http.StatusOK)
	}
}
