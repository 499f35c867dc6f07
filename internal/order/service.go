package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-payments/internal/gateway"
	"ms-payments/internal/logger"
	"ms-payments/internal/models"
	"ms-payments/internal/utils"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrInvalidAmount   = errors.New("unit price must be positive")
	ErrQuotaExceeded   = errors.New("code quota exceeded")
	ErrNotPending      = errors.New("order is not pending")
)

type DBLayer interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	SavePaymentToken(ctx context.Context, id, token string, createdAt time.Time) error
	SetSyncLocked(ctx context.Context, id string, locked bool) error
}

type CodeResolver interface {
	GetDiscountByCode(ctx context.Context, code string) (*models.DiscountCode, error)
	GetReferralByCode(ctx context.Context, code string) (*models.ReferralCode, error)
}

type TicketIssuer interface {
	IssueTickets(ctx context.Context, order *models.Order) ([]models.Ticket, error)
}

type TokenCreator interface {
	CreateToken(ctx context.Context, req gateway.TokenRequest) (*gateway.TokenResponse, error)
}

// OrderService owns checkout: pending order creation, code resolution
// and payment session tokens. Status transitions after checkout belong
// to the reconciliation engine, never to this service.
type OrderService struct {
	DB            DBLayer
	Codes         CodeResolver
	Tickets       TicketIssuer
	Gateway       TokenCreator
	TokenValidity time.Duration
	Logger        *logger.Logger
}

func NewOrderService(db DBLayer, codes CodeResolver, tickets TicketIssuer, gw TokenCreator,
	tokenValidity time.Duration, log *logger.Logger) *OrderService {
	return &OrderService{
		DB:            db,
		Codes:         codes,
		Tickets:       tickets,
		Gateway:       gw,
		TokenValidity: tokenValidity,
		Logger:        log,
	}
}

// PlaceOrder creates a pending order with its pending tickets. The
// final amount is fixed here; the gateway signature later binds the
// webhook to this exact gross amount.
func (s *OrderService) PlaceOrder(ctx context.Context, userID string, req models.OrderRequest) (*models.Order, error) {
	if req.Quantity < 1 {
		return nil, ErrInvalidQuantity
	}
	if req.UnitPrice <= 0 {
		return nil, ErrInvalidAmount
	}

	gross := req.UnitPrice * float64(req.Quantity)
	final := gross

	order := &models.Order{
		ID:          uuid.NewString(),
		OrderNumber: utils.GenerateOrderNumber(),
		UserID:      userID,
		BuyerName:   req.BuyerName,
		BuyerEmail:  req.BuyerEmail,
		BuyerPhone:  req.BuyerPhone,
		Quantity:    req.Quantity,
		GrossAmount: gross,
		Status:      models.StatusPending,
		CreatedAt:   time.Now(),
	}

	if req.DiscountCode != "" {
		dc, err := s.Codes.GetDiscountByCode(ctx, req.DiscountCode)
		if err != nil {
			return nil, fmt.Errorf("resolve discount code %s: %w", req.DiscountCode, err)
		}
		if dc.UsedCount+req.Quantity > dc.Quota {
			return nil, fmt.Errorf("discount code %s: %w", req.DiscountCode, ErrQuotaExceeded)
		}
		order.DiscountCodeID = dc.ID
		final = gross * (1 - dc.PercentOff/100)
	}

	if req.ReferralCode != "" {
		rc, err := s.Codes.GetReferralByCode(ctx, req.ReferralCode)
		if err != nil {
			return nil, fmt.Errorf("resolve referral code %s: %w", req.ReferralCode, err)
		}
		if rc.Uses+req.Quantity > rc.Quota {
			return nil, fmt.Errorf("referral code %s: %w", req.ReferralCode, ErrQuotaExceeded)
		}
		order.ReferralCodeID = rc.ID
	}

	order.FinalAmount = final

	if err := s.DB.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	if _, err := s.Tickets.IssueTickets(ctx, order); err != nil {
		// The order stays pending; the expiry sweeper reaps it if the
		// buyer never completes checkout.
		return nil, fmt.Errorf("issue tickets for order %s: %w", order.OrderNumber, err)
	}

	s.Logger.LogOrder("CREATE", order.OrderNumber, fmt.Sprintf("qty=%d gross=%.2f final=%.2f", order.Quantity, gross, final))
	return order, nil
}

type TokenResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PaymentToken returns a gateway session token for the order, reusing
// the cached one while it is younger than the gateway's validity
// window.
func (s *OrderService) PaymentToken(ctx context.Context, orderID string) (*TokenResult, error) {
	order, err := s.DB.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.IsPending() {
		return nil, fmt.Errorf("order %s: %w", order.OrderNumber, ErrNotPending)
	}

	if order.PaymentToken != "" && time.Since(order.PaymentTokenCreatedAt) < s.TokenValidity {
		s.Logger.LogOrder("TOKEN", order.OrderNumber, "reusing cached payment token")
		return &TokenResult{
			Token:     order.PaymentToken,
			ExpiresAt: order.PaymentTokenCreatedAt.Add(s.TokenValidity),
		}, nil
	}

	resp, err := s.Gateway.CreateToken(ctx, gateway.TokenRequest{
		OrderNumber:   order.OrderNumber,
		GrossAmount:   order.FinalAmount,
		CustomerName:  order.BuyerName,
		CustomerEmail: order.BuyerEmail,
		CustomerPhone: order.BuyerPhone,
	})
	if err != nil {
		return nil, err
	}

	createdAt := time.Now()
	if err := s.DB.SavePaymentToken(ctx, order.ID, resp.Token, createdAt); err != nil {
		return nil, fmt.Errorf("save payment token for order %s: %w", order.OrderNumber, err)
	}

	return &TokenResult{
		Token:     resp.Token,
		ExpiresAt: createdAt.Add(s.TokenValidity),
	}, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return s.DB.GetByID(ctx, id)
}

func (s *OrderService) GetOrderByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	return s.DB.GetByOrderNumber(ctx, orderNumber)
}

// SetSyncLocked flips the cooperative lock. Admin-only; automated
// paths check the flag but never change it.
func (s *OrderService) SetSyncLocked(ctx context.Context, orderNumber string, locked bool) error {
	order, err := s.DB.GetByOrderNumber(ctx, orderNumber)
	if err != nil {
		return err
	}
	if err := s.DB.SetSyncLocked(ctx, order.ID, locked); err != nil {
		return fmt.Errorf("set sync_locked=%v on order %s: %w", locked, orderNumber, err)
	}
	s.Logger.LogOrder("LOCK", orderNumber, fmt.Sprintf("sync_locked=%v", locked))
	return nil
}
