package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-payments/internal/auth"
	"ms-payments/internal/logger"
	"ms-payments/internal/models"
	orderdb "ms-payments/internal/order/db"
	ticketdb "ms-payments/internal/tickets/db"
	tickets "ms-payments/internal/tickets/service"
	"ms-payments/internal/utils"
)

type OrderLoader interface {
	GetOrder(ctx context.Context, id string) (*models.Order, error)
}

type Handler struct {
	Tickets   *tickets.TicketService
	Orders    OrderLoader
	AdminRole string
	Logger    *logger.Logger
}

// MarkUsed checks a ticket in at the venue.
func (h *Handler) MarkUsed(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")

	err := h.Tickets.MarkUsed(r.Context(), ticketID)
	if errors.Is(err, ticketdb.ErrNotFound) {
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Ticket not found", ticketID))
		return
	}
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("MarkUsed: ticket %s: %v", ticketID, err))
		utils.WriteJSON(w, http.StatusConflict, utils.ErrorResponse("Failed to use ticket", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket used", map[string]interface{}{
		"ticket_id": ticketID,
	}))
}

// CancelTicket voids a ticket and recounts the owning order's codes.
func (h *Handler) CancelTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketId")

	err := h.Tickets.CancelTicket(r.Context(), ticketID)
	if errors.Is(err, ticketdb.ErrNotFound) {
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Ticket not found", ticketID))
		return
	}
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("CancelTicket: ticket %s: %v", ticketID, err))
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to cancel ticket", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Ticket cancelled", map[string]interface{}{
		"ticket_id": ticketID,
	}))
}

// OrderTickets lists the tickets belonging to an order. Only the
// order's buyer or an admin may read them.
func (h *Handler) OrderTickets(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	ord, err := h.Orders.GetOrder(r.Context(), orderID)
	if errors.Is(err, orderdb.ErrNotFound) {
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Order not found", orderID))
		return
	}
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to load order", err.Error()))
		return
	}

	if ord.UserID != auth.UserID(r.Context()) && !auth.HasRole(r.Context(), h.AdminRole) {
		utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("Forbidden", "order belongs to another user"))
		return
	}

	list, err := h.Tickets.GetTicketsByOrder(r.Context(), orderID)
	if err != nil {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to load tickets", err.Error()))
		return
	}

	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Order tickets", list))
}
