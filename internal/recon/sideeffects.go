package recon

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-payments/internal/logger"
	"ms-payments/internal/models"
	"ms-payments/internal/utils"
)

type TicketStore interface {
	CountByOrder(ctx context.Context, orderID string) (int, error)
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	ActivateForOrder(ctx context.Context, orderID string) (int, error)
	GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error)
}

type UsageRecalculator interface {
	RecalculateReferral(ctx context.Context, codeID string) (int, error)
	RecalculateDiscount(ctx context.Context, codeID string) (int, error)
}

type CodeLoader interface {
	GetReferralByID(ctx context.Context, id string) (*models.ReferralCode, error)
	GetDiscountByID(ctx context.Context, id string) (*models.DiscountCode, error)
}

type PaidPublisher interface {
	PublishOrderPaid(ctx context.Context, event models.OrderPaidEvent) error
}

// Pipeline runs the payment-success side effects. It executes at most
// once per order (gated by the conditional status update in Apply), and
// every step is individually idempotent so a retried dispatch is
// harmless.
type Pipeline struct {
	Tickets   TicketStore
	Usage     UsageRecalculator
	Codes     CodeLoader
	Publisher PaidPublisher
	Logger    *logger.Logger
}

func NewPipeline(tickets TicketStore, usage UsageRecalculator, codes CodeLoader, publisher PaidPublisher, log *logger.Logger) *Pipeline {
	return &Pipeline{Tickets: tickets, Usage: usage, Codes: codes, Publisher: publisher, Logger: log}
}

// Run activates the order's tickets, recounts code usage and hands the
// fully-loaded order to the downstream consumer. A dispatch failure is
// returned but must not undo the earlier steps: the tickets stay valid
// and delivery is retried outside this service.
func (p *Pipeline) Run(ctx context.Context, order *models.Order) error {
	if err := p.ensureTickets(ctx, order); err != nil {
		return err
	}

	changed, err := p.Tickets.ActivateForOrder(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("activate tickets for order %s: %w", order.OrderNumber, err)
	}
	p.Logger.LogOrder("ACTIVATE", order.OrderNumber, fmt.Sprintf("%d ticket(s) normalized to valid", changed))

	if order.ReferralCodeID != "" {
		if _, err := p.Usage.RecalculateReferral(ctx, order.ReferralCodeID); err != nil {
			return fmt.Errorf("recalculate referral %s: %w", order.ReferralCodeID, err)
		}
	}
	if order.DiscountCodeID != "" {
		if _, err := p.Usage.RecalculateDiscount(ctx, order.DiscountCodeID); err != nil {
			return fmt.Errorf("recalculate discount %s: %w", order.DiscountCodeID, err)
		}
	}

	event, err := p.buildEvent(ctx, order)
	if err != nil {
		return err
	}
	if err := p.Publisher.PublishOrderPaid(ctx, *event); err != nil {
		return fmt.Errorf("dispatch paid order %s: %w", order.OrderNumber, err)
	}

	p.Logger.LogOrder("DISPATCH", order.OrderNumber, "paid order handed to notification consumer")
	return nil
}

// ensureTickets issues the order's admission units when checkout never
// created them (admin-created orders). The normal path finds them
// already present in pending status.
func (p *Pipeline) ensureTickets(ctx context.Context, order *models.Order) error {
	count, err := p.Tickets.CountByOrder(ctx, order.ID)
	if err != nil {
		return fmt.Errorf("count tickets for order %s: %w", order.OrderNumber, err)
	}
	if count > 0 {
		return nil
	}

	for i := 0; i < order.Quantity; i++ {
		ticket := models.Ticket{
			TicketID: uuid.NewString(),
			OrderID:  order.ID,
			Serial:   utils.GenerateTicketSerial(),
			Status:   models.TicketValid,
			IssuedAt: time.Now(),
		}
		if err := p.Tickets.CreateTicket(ctx, &ticket); err != nil {
			return fmt.Errorf("issue ticket %d/%d for order %s: %w", i+1, order.Quantity, order.OrderNumber, err)
		}
	}
	p.Logger.LogOrder("ISSUE", order.OrderNumber, fmt.Sprintf("%d ticket(s) issued", order.Quantity))
	return nil
}

func (p *Pipeline) buildEvent(ctx context.Context, order *models.Order) (*models.OrderPaidEvent, error) {
	tickets, err := p.Tickets.GetTicketsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("load tickets for order %s: %w", order.OrderNumber, err)
	}

	event := &models.OrderPaidEvent{
		Order:   *order,
		Tickets: tickets,
		PaidAt:  order.PaidAt,
	}

	if order.ReferralCodeID != "" {
		rc, err := p.Codes.GetReferralByID(ctx, order.ReferralCodeID)
		if err != nil {
			return nil, fmt.Errorf("load referral code %s: %w", order.ReferralCodeID, err)
		}
		event.ReferralCode = rc
	}
	if order.DiscountCodeID != "" {
		dc, err := p.Codes.GetDiscountByID(ctx, order.DiscountCodeID)
		if err != nil {
			return nil, fmt.Errorf("load discount code %s: %w", order.DiscountCodeID, err)
		}
		event.DiscountCode = dc
	}

	return event, nil
}
