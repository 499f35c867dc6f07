package tickets

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-payments/internal/logger"
	"ms-payments/internal/models"
	"ms-payments/internal/utils"
)

type TicketDBLayer interface {
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	GetTicketByID(ctx context.Context, ticketID string) (*models.Ticket, error)
	GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error)
	MarkUsed(ctx context.Context, ticketID string, usedAt time.Time) error
	DeleteTicket(ctx context.Context, ticketID string) error
}

type OrderGetter interface {
	GetByID(ctx context.Context, id string) (*models.Order, error)
}

type UsageRecalculator interface {
	RecalculateReferral(ctx context.Context, codeID string) (int, error)
	RecalculateDiscount(ctx context.Context, codeID string) (int, error)
}

// TicketService wraps the ticket store and fires usage recomputation on
// every lifecycle mutation. Recomputation is a full recount, so firing
// it redundantly is safe.
type TicketService struct {
	DB     TicketDBLayer
	Orders OrderGetter
	Usage  UsageRecalculator
	Logger *logger.Logger
}

func NewTicketService(db TicketDBLayer, orders OrderGetter, usage UsageRecalculator, log *logger.Logger) *TicketService {
	return &TicketService{DB: db, Orders: orders, Usage: usage, Logger: log}
}

// IssueTickets creates the order's admission units in pending status.
// They become valid through the payment side-effect pipeline, never
// here.
func (s *TicketService) IssueTickets(ctx context.Context, order *models.Order) ([]models.Ticket, error) {
	issued := make([]models.Ticket, 0, order.Quantity)
	for i := 0; i < order.Quantity; i++ {
		ticket := models.Ticket{
			TicketID: uuid.NewString(),
			OrderID:  order.ID,
			Serial:   utils.GenerateTicketSerial(),
			Status:   models.TicketPending,
			IssuedAt: time.Now(),
		}
		if err := s.DB.CreateTicket(ctx, &ticket); err != nil {
			return issued, fmt.Errorf("create ticket %d/%d for order %s: %w", i+1, order.Quantity, order.OrderNumber, err)
		}
		issued = append(issued, ticket)
	}

	s.recomputeUsage(ctx, order)
	return issued, nil
}

// MarkUsed checks a ticket in at the venue.
func (s *TicketService) MarkUsed(ctx context.Context, ticketID string) error {
	ticket, err := s.DB.GetTicketByID(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("ticket %s not found: %w", ticketID, err)
	}
	if ticket.Status != models.TicketValid {
		return fmt.Errorf("ticket %s is %s, only valid tickets can be used", ticketID, ticket.Status)
	}

	if err := s.DB.MarkUsed(ctx, ticketID, time.Now()); err != nil {
		return fmt.Errorf("mark ticket %s used: %w", ticketID, err)
	}

	s.recomputeForOrder(ctx, ticket.OrderID)
	return nil
}

// CancelTicket removes a ticket and recounts the owning order's codes.
func (s *TicketService) CancelTicket(ctx context.Context, ticketID string) error {
	ticket, err := s.DB.GetTicketByID(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("ticket %s not found: %w", ticketID, err)
	}

	if err := s.DB.DeleteTicket(ctx, ticketID); err != nil {
		return fmt.Errorf("delete ticket %s: %w", ticketID, err)
	}

	s.recomputeForOrder(ctx, ticket.OrderID)
	return nil
}

func (s *TicketService) GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error) {
	return s.DB.GetTicketsByOrder(ctx, orderID)
}

func (s *TicketService) recomputeForOrder(ctx context.Context, orderID string) {
	order, err := s.Orders.GetByID(ctx, orderID)
	if err != nil {
		s.Logger.Error("TICKET", fmt.Sprintf("usage recompute: load order %s: %v", orderID, err))
		return
	}
	s.recomputeUsage(ctx, order)
}

func (s *TicketService) recomputeUsage(ctx context.Context, order *models.Order) {
	if order.ReferralCodeID != "" {
		if _, err := s.Usage.RecalculateReferral(ctx, order.ReferralCodeID); err != nil {
			s.Logger.Error("TICKET", fmt.Sprintf("recalculate referral %s: %v", order.ReferralCodeID, err))
		}
	}
	if order.DiscountCodeID != "" {
		if _, err := s.Usage.RecalculateDiscount(ctx, order.DiscountCodeID); err != nil {
			s.Logger.Error("TICKET", fmt.Sprintf("recalculate discount %s: %v", order.DiscountCodeID, err))
		}
	}
}
