package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-payments/internal/auth"
	"ms-payments/internal/logger"
	"ms-payments/internal/models"
	"ms-payments/internal/order"
	orderdb "ms-payments/internal/order/db"
	"ms-payments/internal/utils"
)

type Handler struct {
	OrderService *order.OrderService
	Logger       *logger.Logger
}

// CreateOrder places a pending order for the authenticated buyer.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	userID := auth.UserID(r.Context())
	if userID == "" {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", "missing user identity"))
		return
	}

	created, err := h.OrderService.PlaceOrder(r.Context(), userID, req)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CreateOrder: %v", err))
		status := http.StatusInternalServerError
		if errors.Is(err, order.ErrInvalidQuantity) || errors.Is(err, order.ErrInvalidAmount) ||
			errors.Is(err, order.ErrQuotaExceeded) {
			status = http.StatusBadRequest
		}
		utils.WriteJSON(w, status, utils.ErrorResponse("Failed to place order", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Order created", models.OrderResponse{
		OrderID:     created.ID,
		OrderNumber: created.OrderNumber,
		Status:      created.Status,
		GrossAmount: created.GrossAmount,
		FinalAmount: created.FinalAmount,
		Quantity:    created.Quantity,
	}))
}

// PaymentToken returns a gateway session token for the caller's order.
func (h *Handler) PaymentToken(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")

	ord, err := h.OrderService.GetOrderByNumber(r.Context(), orderNumber)
	if errors.Is(err, orderdb.ErrNotFound) {
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Order not found", orderNumber))
		return
	}
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to load order", err.Error()))
		return
	}

	if ord.UserID != auth.UserID(r.Context()) {
		utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("Forbidden", "order belongs to another user"))
		return
	}

	token, err := h.OrderService.PaymentToken(r.Context(), ord.ID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("PaymentToken: order %s: %v", orderNumber, err))
		status := http.StatusBadGateway
		if errors.Is(err, order.ErrNotPending) {
			status = http.StatusConflict
		}
		utils.WriteJSON(w, status, utils.ErrorResponse("Failed to create payment token", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Payment token ready", token))
}
