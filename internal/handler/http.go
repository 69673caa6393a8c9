package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/storefront/order-service/internal/entities"
	"github.com/storefront/order-service/internal/middleware"
	"github.com/storefront/order-service/pkg/utils"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// OrderService is the user-facing slice of the lifecycle service: every
// operation is scoped to the calling user's own orders.
type OrderService interface {
	Create(ctx context.Context, userID string, items []entities.NewOrderItem) (entities.Order, error)
	GetUserOrder(ctx context.Context, orderID int64, userID string) (entities.Order, error)
	ListUserOrders(ctx context.Context, userID string, filter entities.ListFilter) ([]entities.Order, error)
	Cancel(ctx context.Context, orderID int64, userID string) (entities.Order, error)
	SetUserOrderPaid(ctx context.Context, orderID int64, userID string) (entities.Order, error)
}

type HTTPHandler struct {
	logger   *slog.Logger
	validate *validator.Validate
	svc      OrderService
}

func NewHTTPHandler(logger *slog.Logger, svc OrderService) *HTTPHandler {
	return &HTTPHandler{
		logger:   logger.With(slog.String("handler", "http")),
		validate: validator.New(),
		svc:      svc,
	}
}

func (h *HTTPHandler) Init(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.CreateOrder)
		r.Get("/", h.ListOrders)
		r.Get("/{order_id}", h.GetOrder)
		r.Post("/{order_id}/cancel", h.CancelOrder)
		r.Post("/{order_id}/pay", h.PayOrder)
	})
}

func (h *HTTPHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, ok := middleware.ClaimsFromContext(ctx)
	if !ok {
		utils.WriteError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateOrderRequest
	if err := utils.DecodeBody(r, &req); err != nil {
		utils.WriteError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		utils.WriteValidationError(w, err)
		return
	}

	order, err := h.svc.Create(ctx, claims.UserID, ItemsToEntity(req.Items))
	if err != nil {
		writeServiceError(ctx, h.logger, w, err)
		return
	}

	utils.WriteJSON(w, OrderEntityToJSON(order), http.StatusCreated)
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, ok := middleware.ClaimsFromContext(ctx)
	if !ok {
		utils.WriteError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	orderID, err := orderIDParam(r)
	if err != nil {
		utils.WriteError(w, "invalid order id", http.StatusBadRequest)
		return
	}

	order, err := h.svc.GetUserOrder(ctx, orderID, claims.UserID)
	if err != nil {
		writeServiceError(ctx, h.logger, w, err)
		return
	}

	utils.WriteJSON(w, OrderEntityToJSON(order), http.StatusOK)
}

func (h *HTTPHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, ok := middleware.ClaimsFromContext(ctx)
	if !ok {
		utils.WriteError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	filter, err := parseListFilter(r)
	if err != nil {
		utils.WriteError(w, err.Error(), http.StatusBadRequest)
		return
	}

	orders, err := h.svc.ListUserOrders(ctx, claims.UserID, filter)
	if err != nil {
		writeServiceError(ctx, h.logger, w, err)
		return
	}

	utils.WriteJSON(w, OrdersEntityToJSON(orders), http.StatusOK)
}

func (h *HTTPHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, ok := middleware.ClaimsFromContext(ctx)
	if !ok {
		utils.WriteError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	orderID, err := orderIDParam(r)
	if err != nil {
		utils.WriteError(w, "invalid order id", http.StatusBadRequest)
		return
	}

	order, err := h.svc.Cancel(ctx, orderID, claims.UserID)
	if err != nil {
		writeServiceError(ctx, h.logger, w, err)
		return
	}

	utils.WriteJSON(w, OrderEntityToJSON(order), http.StatusOK)
}

func (h *HTTPHandler) PayOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, ok := middleware.ClaimsFromContext(ctx)
	if !ok {
		utils.WriteError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	orderID, err := orderIDParam(r)
	if err != nil {
		utils.WriteError(w, "invalid order id", http.StatusBadRequest)
		return
	}

	order, err := h.svc.SetUserOrderPaid(ctx, orderID, claims.UserID)
	if err != nil {
		writeServiceError(ctx, h.logger, w, err)
		return
	}

	utils.WriteJSON(w, OrderEntityToJSON(order), http.StatusOK)
}

// writeServiceError translates the error taxonomy of the lifecycle
// service into the HTTP contract. Conflict-class failures (lost races,
// failed reservations/releases) are reported retryable with 409.
func writeServiceError(ctx context.Context, logger *slog.Logger, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entities.ErrOrderNotFound):
		utils.WriteError(w, "order not found", http.StatusNotFound)
	case errors.Is(err, entities.ErrEmptyOrder):
		utils.WriteError(w, "order has no items", http.StatusBadRequest)
	case errors.Is(err, entities.ErrProductUnavailable):
		utils.WriteError(w, "product unavailable", http.StatusUnprocessableEntity)
	case errors.Is(err, entities.ErrIllegalTransition):
		utils.WriteError(w, "illegal order status transition", http.StatusConflict)
	case errors.Is(err, entities.ErrStockUnavailable):
		utils.WriteError(w, "insufficient stock, order left pending", http.StatusConflict)
	case errors.Is(err, entities.ErrReleaseFailed):
		utils.WriteError(w, "stock release failed, retry cancellation", http.StatusConflict)
	case errors.Is(err, entities.ErrConcurrentModification):
		utils.WriteError(w, "order modified concurrently, retry", http.StatusConflict)
	default:
		logger.ErrorContext(ctx, "unexpected service error", slog.Any("error", err))
		utils.WriteError(w, "internal server error", http.StatusInternalServerError)
	}
}

func orderIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "order_id"), 10, 64)
}
