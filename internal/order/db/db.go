package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-payments/internal/models"
)

var ErrNotFound = errors.New("order not found")

type DB struct {
	Bun *bun.DB
}

// Status sets used in conditional UPDATE guards. The legacy aliases are
// included so historical rows arbitrate transitions the same way as
// canonical ones.
var (
	successfulStatuses = []string{
		string(models.StatusCapture),
		string(models.StatusSettlement),
		string(models.StatusLegacyPaid),
	}
	failedStatuses = []string{
		string(models.StatusDeny),
		string(models.StatusCancel),
		string(models.StatusExpire),
		string(models.StatusFailure),
		string(models.StatusLegacyFailed),
		string(models.StatusLegacyCancelled),
	}
)

func (d *DB) CreateOrder(ctx context.Context, order *models.Order) error {
	_, err := d.Bun.NewInsert().Model(order).Exec(ctx)
	return err
}

func (d *DB) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (d *DB) GetByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("order_number = ?", orderNumber).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// MarkSucceeded moves the order into a successful status unless it is
// already in one. The conditional UPDATE is the serialization point:
// exactly one concurrent writer observes rows-affected == 1, and only
// that writer runs the side-effect pipeline. paid_at is set only when
// still null, so it is written exactly once.
func (d *DB) MarkSucceeded(ctx context.Context, id string, target models.OrderStatus, now time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", string(target)).
		Set("paid_at = COALESCE(paid_at, ?)", now).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status NOT IN (?)", bun.In(successfulStatuses)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// MarkFailed moves the order into a terminal failure unless it is
// already in one.
func (d *DB) MarkFailed(ctx context.Context, id string, target models.OrderStatus, now time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", string(target)).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status NOT IN (?)", bun.In(failedStatuses)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ForceStatus overwrites the status unconditionally. Used for the
// correction statuses (refund, chargeback) which must always take
// effect. paid_at is left untouched.
func (d *DB) ForceStatus(ctx context.Context, id string, target models.OrderStatus, now time.Time) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", string(target)).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// SetStatusIfDiffers writes the status only when it actually changes.
// Used for the pending/authorize transitions.
func (d *DB) SetStatusIfDiffers(ctx context.Context, id string, target models.OrderStatus, now time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", string(target)).
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Where("status <> ?", string(target)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (d *DB) SavePaymentToken(ctx context.Context, id, token string, createdAt time.Time) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("payment_token = ?", token).
		Set("payment_token_created_at = ?", createdAt).
		Set("updated_at = ?", createdAt).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (d *DB) SetSyncLocked(ctx context.Context, id string, locked bool) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("sync_locked = ?", locked).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

// ListExpiryCandidates returns unlocked pending orders whose payment
// window opened before the cutoff. The window is measured from token
// creation when a token exists, order creation otherwise.
func (d *DB) ListExpiryCandidates(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("sync_locked = ?", false).
		Where("status = ?", string(models.StatusPending)).
		Where("COALESCE(payment_token_created_at, created_at) <= ?", cutoff).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}
