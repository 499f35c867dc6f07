package recon

import (
	"context"
	"fmt"
	"time"

	"ms-payments/internal/logger"
	"ms-payments/internal/models"
)

type ExpiryLister interface {
	ListExpiryCandidates(ctx context.Context, cutoff time.Time) ([]models.Order, error)
}

// Sweeper expires stale pending orders. It holds the policy only; the
// scheduling host (cron, admin endpoint) decides when to run it.
type Sweeper struct {
	Orders    ExpiryLister
	Recon     *Service
	Threshold time.Duration
	Logger    *logger.Logger
	Now       func() time.Time
}

func NewSweeper(orders ExpiryLister, recon *Service, threshold time.Duration, log *logger.Logger) *Sweeper {
	return &Sweeper{
		Orders:    orders,
		Recon:     recon,
		Threshold: threshold,
		Logger:    log,
		Now:       time.Now,
	}
}

// Expired reports whether an order qualifies for expiry at the given
// instant. Locked orders never qualify; the payment window is measured
// from token creation when a token exists, order creation otherwise.
func Expired(order *models.Order, now time.Time, threshold time.Duration) bool {
	if order.SyncLocked {
		return false
	}
	if order.Status == models.StatusExpire {
		return true
	}
	if order.Status != models.StatusPending {
		return false
	}
	return now.Sub(order.TokenReferenceTime()) > threshold
}

// Sweep expires every qualifying order and returns how many changed.
// Individual failures are logged and skipped so one bad order cannot
// stall the sweep.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.Now()
	candidates, err := s.Orders.ListExpiryCandidates(ctx, now.Add(-s.Threshold))
	if err != nil {
		return 0, fmt.Errorf("list expiry candidates: %w", err)
	}

	expired := 0
	for i := range candidates {
		order := &candidates[i]
		if !Expired(order, now, s.Threshold) {
			continue
		}
		if err := s.Recon.Apply(ctx, order, models.StatusExpire, TriggerSweeper); err != nil {
			s.Logger.Error("SWEEP", fmt.Sprintf("expire order %s: %v", order.OrderNumber, err))
			continue
		}
		expired++
	}

	s.Logger.LogSweep(fmt.Sprintf("%d candidate(s), %d expired", len(candidates), expired))
	return expired, nil
}
