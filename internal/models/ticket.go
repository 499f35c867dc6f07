package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketPending TicketStatus = "pending"
	TicketValid   TicketStatus = "valid"
	TicketUsed    TicketStatus = "used"
)

// CountsTowardUsage reports whether the ticket contributes to the
// derived usage counters on discount/referral codes.
func (s TicketStatus) CountsTowardUsage() bool {
	return s == TicketValid || s == TicketUsed
}

type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	TicketID string       `bun:"ticket_id,pk" json:"ticket_id"`
	OrderID  string       `bun:"order_id,notnull" json:"order_id"`
	Serial   string       `bun:"serial,notnull,unique" json:"serial"`
	Status   TicketStatus `bun:"status,notnull" json:"status"`
	IssuedAt time.Time    `bun:"issued_at,notnull" json:"issued_at"`
	UsedAt   time.Time    `bun:"used_at,nullzero" json:"used_at,omitempty"`
}
