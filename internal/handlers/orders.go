package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/botanicashop/botanica/internal/catalog"
	"github.com/botanicashop/botanica/internal/db"
	"github.com/botanicashop/botanica/internal/models"
	"github.com/botanicashop/botanica/internal/services"
	"github.com/botanicashop/botanica/internal/session"
)

const maxOrderBodyBytes = 64 << 10 // 64 KB

type createOrderRequest struct {
	Items []struct {
		ID       uuid.UUID `json:"id"`
		Quantity int       `json:"quantity"`
		Price    float64   `json:"price"`
	} `json:"items"`
	ShippingAddress *models.Address `json:"shippingAddress"`
	BillingAddress  *models.Address `json:"billingAddress"`
}

type paymentIntentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"clientSecret"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Status       string `json:"status"`
}

type createOrderResponse struct {
	OrderID       uuid.UUID             `json:"orderId"`
	OrderNumber   string                `json:"orderNumber"`
	PaymentIntent paymentIntentResponse `json:"paymentIntent"`
	EphemeralKey  string                `json:"ephemeralKey,omitempty"`
	CustomerID    string                `json:"customerId,omitempty"`
}

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	sess, ok := session.FromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxOrderBodyBytes)
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	input := services.CreateOrderInput{
		UserID:           sess.UserID,
		CustomerEmail:    sess.Email,
		CustomerName:     sess.Name,
		StripeCustomerID: sess.StripeCustomerID,
		ShippingAddress:  req.ShippingAddress,
		BillingAddress:   req.BillingAddress,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, catalog.RequestedItem{
			ProductID: item.ID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}

	out, err := h.orderService.CreateOrder(ctx, input)
	if err != nil {
		var validationErr *catalog.ValidationError
		switch {
		case errors.As(err, &validationErr):
			respondError(ctx, w, http.StatusBadRequest, validationErr.Error())
		case errors.Is(err, services.ErrPaymentGateway):
			logger.Error("payment gateway failure during order creation", "error", err)
			respondError(ctx, w, http.StatusBadGateway, "payment could not be initialized")
		default:
			logger.Error("failed to create order", "error", err)
			respondError(ctx, w, http.StatusInternalServerError, "failed to create order")
		}
		return
	}

	respondJSON(ctx, w, http.StatusCreated, createOrderResponse{
		OrderID:     out.Order.ID,
		OrderNumber: out.Order.OrderNumber,
		PaymentIntent: paymentIntentResponse{
			ID:           out.Intent.ID,
			ClientSecret: out.Intent.ClientSecret,
			Amount:       out.Intent.Amount,
			Currency:     string(out.Intent.Currency),
			Status:       string(out.Intent.Status),
		},
		EphemeralKey: out.EphemeralKey,
		CustomerID:   out.CustomerID,
	})
}

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, ok := session.FromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	orders, err := h.orderService.ListOrders(ctx, sess.UserID)
	if err != nil {
		h.loggerFromContext(ctx).Error("failed to list orders", "error", err, "user_id", sess.UserID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	if orders == nil {
		orders = []*models.Order{}
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{"orders": orders})
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, ok := session.FromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	orderID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(ctx, w, http.StatusNotFound, "order not found")
		return
	}

	order, err := h.orderService.GetOrder(ctx, sess.UserID, orderID)
	if err != nil {
		if errors.Is(err, db.ErrOrderNotFound) {
			respondError(ctx, w, http.StatusNotFound, "order not found")
			return
		}
		h.loggerFromContext(ctx).Error("failed to get order", "error", err, "order_id", orderID)
		respondError(ctx, w, http.StatusInternalServerError, "failed to get order")
		return
	}

	respondJSON(ctx, w, http.StatusOK, order)
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	sess, ok := session.FromContext(ctx)
	if !ok {
		respondError(ctx, w, http.StatusUnauthorized, "authentication required")
		return
	}

	orderID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(ctx, w, http.StatusNotFound, "order not found")
		return
	}

	order, err := h.orderService.CancelOrder(ctx, sess.UserID, orderID)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrOrderNotFound):
			respondError(ctx, w, http.StatusNotFound, "order not found")
		case errors.Is(err, db.ErrInvalidStatusTransition):
			respondError(ctx, w, http.StatusConflict, "order can no longer be cancelled")
		case errors.Is(err, services.ErrPaymentGateway):
			logger.Error("payment gateway failure during cancel", "error", err, "order_id", orderID)
			respondError(ctx, w, http.StatusBadGateway, "payment cancellation failed, order unchanged")
		default:
			logger.Error("failed to cancel order", "error", err, "order_id", orderID)
			respondError(ctx, w, http.StatusInternalServerError, "failed to cancel order")
		}
		return
	}

	respondJSON(ctx, w, http.StatusOK, order)
}
