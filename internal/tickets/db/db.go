package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"ms-payments/internal/models"
)

var ErrNotFound = errors.New("ticket not found")

type DB struct {
	Bun *bun.DB
}

func (d *DB) CreateTicket(ctx context.Context, ticket *models.Ticket) error {
	_, err := d.Bun.NewInsert().Model(ticket).Exec(ctx)
	return err
}

func (d *DB) GetTicketByID(ctx context.Context, ticketID string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where("ticket_id = ?", ticketID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) GetTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("order_id = ?", orderID).
		Order("issued_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) CountByOrder(ctx context.Context, orderID string) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("order_id = ?", orderID).
		Count(ctx)
}

// ActivateForOrder normalizes every non-active ticket of the order to
// valid and returns how many rows changed. Used tickets stay used, so
// a repeated invocation after check-in cannot demote them.
func (d *DB) ActivateForOrder(ctx context.Context, orderID string) (int, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", string(models.TicketValid)).
		Where("order_id = ?", orderID).
		Where("status NOT IN (?)", bun.In([]string{
			string(models.TicketValid),
			string(models.TicketUsed),
		})).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (d *DB) MarkUsed(ctx context.Context, ticketID string, usedAt time.Time) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", string(models.TicketUsed)).
		Set("used_at = ?", usedAt).
		Where("ticket_id = ?", ticketID).
		Where("status = ?", string(models.TicketValid)).
		Exec(ctx)
	return err
}

func (d *DB) DeleteTicket(ctx context.Context, ticketID string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.Ticket)(nil)).
		Where("ticket_id = ?", ticketID).
		Exec(ctx)
	return err
}
