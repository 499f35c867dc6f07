package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-payments/internal/auth"
	"ms-payments/internal/codes"
	"ms-payments/internal/gateway"
	"ms-payments/internal/logger"
	"ms-payments/internal/models"
	"ms-payments/internal/order"
	orderdb "ms-payments/internal/order/db"
	"ms-payments/internal/recon"
	"ms-payments/internal/utils"
)

type Handler struct {
	Recon        *recon.Service
	OrderService *order.OrderService
	Usage        *codes.UsageService
	Codes        *codes.DB
	Sweeper      *recon.Sweeper
	AdminRole    string
	Logger       *logger.Logger
}

// Notification receives the gateway's webhook push. Duplicates and
// no-ops still acknowledge with 200 so the gateway stops redelivering.
func (h *Handler) Notification(w http.ResponseWriter, r *http.Request) {
	var payload models.GatewayNotification
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid notification payload", err.Error()))
		return
	}

	processed, err := h.Recon.HandleNotification(r.Context(), payload)
	if err != nil {
		var webhookErr *recon.WebhookError
		if errors.As(err, &webhookErr) {
			h.Logger.Warn("API", fmt.Sprintf("Notification: category=%s order=%s", webhookErr.Category, payload.OrderID))
			utils.WriteJSON(w, webhookErr.StatusCode, utils.ErrorResponse("Notification rejected", webhookErr.PublicError))
			return
		}
		h.Logger.Error("API", fmt.Sprintf("Notification: order %s: %v", payload.OrderID, err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Notification processing error", "internal error"))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Notification processed", map[string]interface{}{
		"order_number": processed.OrderNumber,
		"status":       processed.Status,
	}))
}

// OrderStatus is the poll endpoint. It reconciles against the gateway
// before answering, so the reply reflects the freshest known state.
func (h *Handler) OrderStatus(w http.ResponseWriter, r *http.Request) {
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

	caller := auth.UserID(r.Context())
	if ord.UserID != caller && !auth.HasRole(r.Context(), h.AdminRole) {
		utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("Forbidden", "order belongs to another user"))
		return
	}

	status, err := h.Recon.PollStatus(r.Context(), orderNumber)
	if err != nil {
		if errors.Is(err, gateway.ErrGatewayUnavailable) {
			// Retryable: nothing was mutated, the client may poll again.
			utils.WriteJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("Payment gateway unavailable", "try again later"))
			return
		}
		h.Logger.Error("API", fmt.Sprintf("OrderStatus: order %s: %v", orderNumber, err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to resolve order status", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Order status", status))
}

// AdminSetStatus applies an explicit status override. It bypasses the
// sync lock; pair it with a lock to pin an order against automation.
func (h *Handler) AdminSetStatus(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}

	target, err := models.ParseStatus(req.Status)
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid status", err.Error()))
		return
	}

	ord, err := h.Recon.AdminSetStatus(r.Context(), orderNumber, target)
	if errors.Is(err, orderdb.ErrNotFound) {
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Order not found", orderNumber))
		return
	}
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("AdminSetStatus: order %s: %v", orderNumber, err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to set status", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Status updated", map[string]interface{}{
		"order_number": ord.OrderNumber,
		"status":       ord.Status,
	}))
}

func (h *Handler) AdminLock(w http.ResponseWriter, r *http.Request) {
	h.setLock(w, r, true)
}

func (h *Handler) AdminUnlock(w http.ResponseWriter, r *http.Request) {
	h.setLock(w, r, false)
}

func (h *Handler) setLock(w http.ResponseWriter, r *http.Request, locked bool) {
	orderNumber := chi.URLParam(r, "orderNumber")

	err := h.OrderService.SetSyncLocked(r.Context(), orderNumber, locked)
	if errors.Is(err, orderdb.ErrNotFound) {
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Order not found", orderNumber))
		return
	}
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to update lock", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Lock updated", map[string]interface{}{
		"order_number": orderNumber,
		"sync_locked":  locked,
	}))
}

// RecalculateReferral recomputes one referral code's usage from ground
// truth.
func (h *Handler) RecalculateReferral(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	rc, err := h.Codes.GetReferralByCode(r.Context(), code)
	if errors.Is(err, codes.ErrNotFound) {
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Referral code not found", code))
		return
	}
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to load referral code", err.Error()))
		return
	}

	uses, err := h.Usage.RecalculateReferral(r.Context(), rc.ID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("RecalculateReferral: code %s: %v", code, err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Recalculation failed", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Usage recalculated", map[string]interface{}{
		"code": code,
		"uses": uses,
	}))
}

// RecalculateAll recomputes every discount and referral code.
func (h *Handler) RecalculateAll(w http.ResponseWriter, r *http.Request) {
	recalculated, failed, err := h.Usage.RecalculateAll(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("RecalculateAll: %v", err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Recalculation failed", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Usage recalculated", map[string]interface{}{
		"recalculated": recalculated,
		"failed":       failed,
	}))
}

// Sweep expires stale pending orders on demand. The production
// scheduler hits this endpoint; it is also handy operationally.
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	expired, err := h.Sweeper.Sweep(r.Context())
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("Sweep: %v", err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Sweep failed", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Sweep complete", map[string]interface{}{
		"expired": expired,
	}))
}
