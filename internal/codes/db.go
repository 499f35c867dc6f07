package codes

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"ms-payments/internal/models"
)

var (
	ErrNotFound  = errors.New("code not found")
	ErrCodeInUse = errors.New("code has nonzero usage")
)

type DB struct {
	Bun *bun.DB
}

// Orders in these statuses contribute to the derived usage counters.
var successfulOrderStatuses = []string{
	string(models.StatusCapture),
	string(models.StatusSettlement),
	string(models.StatusLegacyPaid),
}

var usageTicketStatuses = []string{
	string(models.TicketValid),
	string(models.TicketUsed),
}

func (d *DB) GetDiscountByCode(ctx context.Context, code string) (*models.DiscountCode, error) {
	var dc models.DiscountCode
	err := d.Bun.NewSelect().
		Model(&dc).
		Where("code = ?", code).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &dc, nil
}

func (d *DB) GetDiscountByID(ctx context.Context, id string) (*models.DiscountCode, error) {
	var dc models.DiscountCode
	err := d.Bun.NewSelect().
		Model(&dc).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &dc, nil
}

func (d *DB) GetReferralByCode(ctx context.Context, code string) (*models.ReferralCode, error) {
	var rc models.ReferralCode
	err := d.Bun.NewSelect().
		Model(&rc).
		Where("code = ?", code).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rc, nil
}

func (d *DB) GetReferralByID(ctx context.Context, id string) (*models.ReferralCode, error) {
	var rc models.ReferralCode
	err := d.Bun.NewSelect().
		Model(&rc).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rc, nil
}

func (d *DB) CreateDiscount(ctx context.Context, dc *models.DiscountCode) error {
	_, err := d.Bun.NewInsert().Model(dc).Exec(ctx)
	return err
}

func (d *DB) CreateReferral(ctx context.Context, rc *models.ReferralCode) error {
	_, err := d.Bun.NewInsert().Model(rc).Exec(ctx)
	return err
}

func (d *DB) ListDiscountIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := d.Bun.NewSelect().
		Model((*models.DiscountCode)(nil)).
		Column("id").
		Scan(ctx, &ids)
	return ids, err
}

func (d *DB) ListReferralIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := d.Bun.NewSelect().
		Model((*models.ReferralCode)(nil)).
		Column("id").
		Scan(ctx, &ids)
	return ids, err
}

// CountReferralUsage computes the ground-truth usage of a referral
// code: tickets in {valid, used} joined through their order, where the
// order is in a successful status and references the code.
func (d *DB) CountReferralUsage(ctx context.Context, codeID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Join("JOIN orders AS o ON o.id = ticket.order_id").
		Where("ticket.status IN (?)", bun.In(usageTicketStatuses)).
		Where("o.status IN (?)", bun.In(successfulOrderStatuses)).
		Where("o.referral_code_id = ?", codeID).
		Count(ctx)
}

// CountDiscountUsage is the discount-code counterpart of
// CountReferralUsage.
func (d *DB) CountDiscountUsage(ctx context.Context, codeID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Join("JOIN orders AS o ON o.id = ticket.order_id").
		Where("ticket.status IN (?)", bun.In(usageTicketStatuses)).
		Where("o.status IN (?)", bun.In(successfulOrderStatuses)).
		Where("o.discount_code_id = ?", codeID).
		Count(ctx)
}

func (d *DB) GetReferralUses(ctx context.Context, codeID string) (int, error) {
	rc, err := d.GetReferralByID(ctx, codeID)
	if err != nil {
		return 0, err
	}
	return rc.Uses, nil
}

func (d *DB) GetDiscountUsedCount(ctx context.Context, codeID string) (int, error) {
	dc, err := d.GetDiscountByID(ctx, codeID)
	if err != nil {
		return 0, err
	}
	return dc.UsedCount, nil
}

// SetReferralUses overwrites the stored counter. Only the usage
// recomputation service calls this; there is deliberately no increment.
func (d *DB) SetReferralUses(ctx context.Context, codeID string, uses int) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.ReferralCode)(nil)).
		Set("uses = ?", uses).
		Where("id = ?", codeID).
		Exec(ctx)
	return err
}

func (d *DB) SetDiscountUsedCount(ctx context.Context, codeID string, usedCount int) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.DiscountCode)(nil)).
		Set("used_count = ?", usedCount).
		Where("id = ?", codeID).
		Exec(ctx)
	return err
}

// DeleteReferral removes a referral code. Codes with nonzero
// ground-truth usage are refused.
func (d *DB) DeleteReferral(ctx context.Context, codeID string) error {
	usage, err := d.CountReferralUsage(ctx, codeID)
	if err != nil {
		return err
	}
	if usage > 0 {
		return ErrCodeInUse
	}
	_, err = d.Bun.NewDelete().
		Model((*models.ReferralCode)(nil)).
		Where("id = ?", codeID).
		Exec(ctx)
	return err
}
