package recon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-payments/internal/gateway"
	"ms-payments/internal/logger"
	"ms-payments/internal/models"
	orderdb "ms-payments/internal/order/db"
)

// Trigger identifies who asked for a transition. Automated triggers
// respect sync_locked; only TriggerAdmin may move a locked order.
type Trigger string

const (
	TriggerWebhook Trigger = "webhook"
	TriggerPoll    Trigger = "poll"
	TriggerSweeper Trigger = "sweeper"
	TriggerAdmin   Trigger = "admin"
)

type OrderStore interface {
	GetByID(ctx context.Context, id string) (*models.Order, error)
	GetByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	MarkSucceeded(ctx context.Context, id string, target models.OrderStatus, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, id string, target models.OrderStatus, now time.Time) (bool, error)
	ForceStatus(ctx context.Context, id string, target models.OrderStatus, now time.Time) error
	SetStatusIfDiffers(ctx context.Context, id string, target models.OrderStatus, now time.Time) (bool, error)
}

type GatewayClient interface {
	TransactionStatus(ctx context.Context, orderNumber string) (*gateway.TransactionStatusResponse, error)
}

// EffectRunner is the side-effect pipeline invoked once per order, on
// the first successful transition.
type EffectRunner interface {
	Run(ctx context.Context, order *models.Order) error
}

// StatusCache shields the gateway from repeated polls for the same
// order. Implementations must fail open: a broken cache is a miss.
type StatusCache interface {
	Get(ctx context.Context, orderNumber string) (string, bool)
	Set(ctx context.Context, orderNumber, transactionStatus string)
}

// Service is the reconciliation engine. Webhook and poll events funnel
// into the same transition rules; correctness under concurrent delivery
// comes from the store's conditional updates, not from locks.
type Service struct {
	Orders  OrderStore
	Gateway GatewayClient
	Effects EffectRunner
	Cache   StatusCache
	Logger  *logger.Logger

	ServerKey     string
	TokenValidity time.Duration
	NotFoundGrace time.Duration

	Now func() time.Time
}

func NewService(orders OrderStore, gw GatewayClient, effects EffectRunner, cache StatusCache,
	serverKey string, tokenValidity, notFoundGrace time.Duration, log *logger.Logger) *Service {
	return &Service{
		Orders:        orders,
		Gateway:       gw,
		Effects:       effects,
		Cache:         cache,
		Logger:        log,
		ServerKey:     serverKey,
		TokenValidity: tokenValidity,
		NotFoundGrace: notFoundGrace,
		Now:           time.Now,
	}
}

// HandleNotification is the webhook entry point. Any verification
// failure rejects the notification before a single row is touched.
func (s *Service) HandleNotification(ctx context.Context, n models.GatewayNotification) (*models.Order, error) {
	if !n.Complete() {
		return nil, errIncompletePayload()
	}

	if !gateway.ValidSignature(n.OrderID, n.StatusCode, n.GrossAmount, n.SignatureKey, s.ServerKey) {
		s.Logger.LogSecurity("SIGNATURE", fmt.Sprintf("rejected notification for order %s", n.OrderID))
		return nil, errInvalidSignature()
	}

	target, known := gateway.MapStatus(n.TransactionStatus)
	if !known {
		s.Logger.Warn("RECON", fmt.Sprintf("unknown transaction status %q for order %s, treating as pending", n.TransactionStatus, n.OrderID))
	}

	order, err := s.Orders.GetByOrderNumber(ctx, n.OrderID)
	if errors.Is(err, orderdb.ErrNotFound) {
		s.Logger.Warn("RECON", fmt.Sprintf("notification for unknown order %s", n.OrderID))
		return nil, errOrderNotFound(n.OrderID)
	}
	if err != nil {
		return nil, errProcessing(err)
	}

	if err := s.Apply(ctx, order, target, TriggerWebhook); err != nil {
		return nil, errProcessing(err)
	}
	return order, nil
}

// PollStatus is the poll entry point, triggered by a client status
// check. Locked orders short-circuit to the stored status; gateway
// errors surface as retryable without mutating anything.
func (s *Service) PollStatus(ctx context.Context, orderNumber string) (*models.StatusResponse, error) {
	order, err := s.Orders.GetByOrderNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}

	if order.SyncLocked {
		s.Logger.Info("RECON", fmt.Sprintf("order %s is sync-locked, returning stored status", orderNumber))
		return s.statusResponse(order), nil
	}

	transactionStatus := ""
	if s.Cache != nil {
		if cached, ok := s.Cache.Get(ctx, orderNumber); ok {
			transactionStatus = cached
		}
	}

	if transactionStatus == "" {
		tx, txErr := s.Gateway.TransactionStatus(ctx, orderNumber)
		switch {
		case errors.Is(txErr, gateway.ErrTransactionNotFound):
			// No transaction registered yet. Expected for a fresh
			// order; past the payment window plus grace it means the
			// buyer never opened the session, so the order expires.
			if s.Now().Sub(order.TokenReferenceTime()) > s.TokenValidity+s.NotFoundGrace {
				if err := s.Apply(ctx, order, models.StatusExpire, TriggerPoll); err != nil {
					return nil, err
				}
				order = s.refresh(ctx, order)
			}
			return s.statusResponse(order), nil
		case txErr != nil:
			return nil, fmt.Errorf("poll order %s: %w", orderNumber, txErr)
		}
		transactionStatus = tx.TransactionStatus
		if s.Cache != nil {
			s.Cache.Set(ctx, orderNumber, transactionStatus)
		}
	}

	target, known := gateway.MapStatus(transactionStatus)
	if !known {
		s.Logger.Warn("RECON", fmt.Sprintf("unknown transaction status %q for order %s, treating as pending", transactionStatus, orderNumber))
	}

	if err := s.Apply(ctx, order, target, TriggerPoll); err != nil {
		return nil, err
	}
	return s.statusResponse(s.refresh(ctx, order)), nil
}

// Apply is the core transition routine shared by every entry point.
// Rules, in order:
//  1. successful -> successful is a no-op (exactly-once guard)
//  2. first successful transition persists status and paid_at, then
//     runs the side-effect pipeline
//  3. failure statuses apply only when not already failed
//  4. pending/authorize apply only when the status actually changes
//  5. corrections (refund, chargeback) always overwrite
//
// A sync-locked order skips every automated transition.
func (s *Service) Apply(ctx context.Context, order *models.Order, target models.OrderStatus, trigger Trigger) error {
	if order.SyncLocked && trigger != TriggerAdmin {
		s.Logger.Info("RECON", fmt.Sprintf("order %s is sync-locked, skipping %s transition to %s", order.OrderNumber, trigger, target))
		return nil
	}

	now := s.Now()

	switch {
	case target.IsSuccessful():
		if order.Status.IsSuccessful() {
			s.Logger.LogOrder("DUPLICATE", order.OrderNumber, "already successful, ignoring repeated success event")
			return nil
		}
		applied, err := s.Orders.MarkSucceeded(ctx, order.ID, target, now)
		if err != nil {
			return fmt.Errorf("mark order %s succeeded: %w", order.OrderNumber, err)
		}
		if !applied {
			// A concurrent writer won the conditional update; the
			// pipeline is theirs to run.
			s.Logger.LogOrder("DUPLICATE", order.OrderNumber, "success already applied by concurrent event")
			return nil
		}

		order.Status = target
		if order.PaidAt.IsZero() {
			order.PaidAt = now
		}
		s.Logger.LogOrder("PAID", order.OrderNumber, fmt.Sprintf("status=%s via %s", target, trigger))

		// Status is committed before side effects run, so a concurrent
		// duplicate observes "already successful" while effects are
		// still in flight. Effect failures are logged, never rolled
		// back; ticket delivery retries are the consumer's job.
		if err := s.Effects.Run(ctx, order); err != nil {
			s.Logger.Error("RECON", fmt.Sprintf("side effects for order %s: %v", order.OrderNumber, err))
		}
		return nil

	case target.IsFailed():
		if order.Status.IsFailed() {
			return nil
		}
		applied, err := s.Orders.MarkFailed(ctx, order.ID, target, now)
		if err != nil {
			return fmt.Errorf("mark order %s failed: %w", order.OrderNumber, err)
		}
		if applied {
			order.Status = target
			s.Logger.LogOrder("FAILED", order.OrderNumber, fmt.Sprintf("status=%s via %s", target, trigger))
		}
		return nil

	case target.IsCorrection():
		if err := s.Orders.ForceStatus(ctx, order.ID, target, now); err != nil {
			return fmt.Errorf("force order %s to %s: %w", order.OrderNumber, target, err)
		}
		order.Status = target
		s.Logger.LogOrder("CORRECTION", order.OrderNumber, fmt.Sprintf("status=%s via %s", target, trigger))
		return nil

	default:
		if target == order.Status {
			return nil
		}
		applied, err := s.Orders.SetStatusIfDiffers(ctx, order.ID, target, now)
		if err != nil {
			return fmt.Errorf("set order %s to %s: %w", order.OrderNumber, target, err)
		}
		if applied {
			order.Status = target
			s.Logger.LogOrder("UPDATE", order.OrderNumber, fmt.Sprintf("status=%s via %s", target, trigger))
		}
		return nil
	}
}

// AdminSetStatus applies an explicit admin override. It bypasses
// sync_locked and never clears it.
func (s *Service) AdminSetStatus(ctx context.Context, orderNumber string, target models.OrderStatus) (*models.Order, error) {
	order, err := s.Orders.GetByOrderNumber(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	if err := s.Apply(ctx, order, target, TriggerAdmin); err != nil {
		return nil, err
	}
	return s.refresh(ctx, order), nil
}

func (s *Service) refresh(ctx context.Context, order *models.Order) *models.Order {
	fresh, err := s.Orders.GetByID(ctx, order.ID)
	if err != nil {
		s.Logger.Error("RECON", fmt.Sprintf("reload order %s: %v", order.OrderNumber, err))
		return order
	}
	return fresh
}

func (s *Service) statusResponse(order *models.Order) *models.StatusResponse {
	return &models.StatusResponse{
		Status:       order.Status,
		Description:  order.Status.Description(),
		IsSuccessful: order.Status.IsSuccessful(),
		IsFailed:     order.Status.IsFailed(),
		IsPending:    order.Status.IsPending(),
		PaidAt:       order.PaidAt,
		UpdatedAt:    order.UpdatedAt,
		ExpiresAt:    order.TokenReferenceTime().Add(s.TokenValidity),
	}
}
