package codes

import (
	"context"
	"fmt"

	"ms-payments/internal/logger"
)

// UsageStore is the subset of the code store the recomputation service
// needs.
type UsageStore interface {
	ListDiscountIDs(ctx context.Context) ([]string, error)
	ListReferralIDs(ctx context.Context) ([]string, error)
	CountReferralUsage(ctx context.Context, codeID string) (int, error)
	CountDiscountUsage(ctx context.Context, codeID string) (int, error)
	SetReferralUses(ctx context.Context, codeID string, uses int) error
	SetDiscountUsedCount(ctx context.Context, codeID string, usedCount int) error
	GetReferralUses(ctx context.Context, codeID string) (int, error)
	GetDiscountUsedCount(ctx context.Context, codeID string) (int, error)
}

// UsageService owns the derived usage counters. Counters are never
// incremented: every correction is a full recomputation from source
// rows, so redundant calls from ticket lifecycle hooks, the side-effect
// pipeline and the admin bulk endpoint need no coordination.
type UsageService struct {
	Store  UsageStore
	Logger *logger.Logger
}

func NewUsageService(store UsageStore, log *logger.Logger) *UsageService {
	return &UsageService{Store: store, Logger: log}
}

// RecalculateReferral recomputes one referral code's uses and writes
// the counter only when it drifted. Returns the ground-truth value.
func (s *UsageService) RecalculateReferral(ctx context.Context, codeID string) (int, error) {
	truth, err := s.Store.CountReferralUsage(ctx, codeID)
	if err != nil {
		return 0, fmt.Errorf("count referral usage for %s: %w", codeID, err)
	}

	stored, err := s.Store.GetReferralUses(ctx, codeID)
	if err != nil {
		return 0, fmt.Errorf("load referral code %s: %w", codeID, err)
	}

	if stored != truth {
		s.Logger.Warn("USAGE", fmt.Sprintf("referral code %s drifted: stored=%d truth=%d", codeID, stored, truth))
		if err := s.Store.SetReferralUses(ctx, codeID, truth); err != nil {
			return 0, fmt.Errorf("update referral uses for %s: %w", codeID, err)
		}
	}
	return truth, nil
}

// RecalculateDiscount is the discount-code counterpart.
func (s *UsageService) RecalculateDiscount(ctx context.Context, codeID string) (int, error) {
	truth, err := s.Store.CountDiscountUsage(ctx, codeID)
	if err != nil {
		return 0, fmt.Errorf("count discount usage for %s: %w", codeID, err)
	}

	stored, err := s.Store.GetDiscountUsedCount(ctx, codeID)
	if err != nil {
		return 0, fmt.Errorf("load discount code %s: %w", codeID, err)
	}

	if stored != truth {
		s.Logger.Warn("USAGE", fmt.Sprintf("discount code %s drifted: stored=%d truth=%d", codeID, stored, truth))
		if err := s.Store.SetDiscountUsedCount(ctx, codeID, truth); err != nil {
			return 0, fmt.Errorf("update discount used_count for %s: %w", codeID, err)
		}
	}
	return truth, nil
}

// RecalculateAll recomputes every code. Individual failures are logged
// and counted, not fatal, so one bad row cannot abort a bulk repair.
func (s *UsageService) RecalculateAll(ctx context.Context) (recalculated, failed int, err error) {
	referralIDs, err := s.Store.ListReferralIDs(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list referral codes: %w", err)
	}
	for _, id := range referralIDs {
		if _, recalcErr := s.RecalculateReferral(ctx, id); recalcErr != nil {
			s.Logger.Error("USAGE", fmt.Sprintf("recalculate referral %s: %v", id, recalcErr))
			failed++
			continue
		}
		recalculated++
	}

	discountIDs, err := s.Store.ListDiscountIDs(ctx)
	if err != nil {
		return recalculated, failed, fmt.Errorf("list discount codes: %w", err)
	}
	for _, id := range discountIDs {
		if _, recalcErr := s.RecalculateDiscount(ctx, id); recalcErr != nil {
			s.Logger.Error("USAGE", fmt.Sprintf("recalculate discount %s: %v", id, recalcErr))
			failed++
			continue
		}
		recalculated++
	}

	return recalculated, failed, nil
}
