package models

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

type OrderStatus string

// Canonical order statuses. The gateway vocabulary is mapped onto these
// in internal/gateway; nothing else writes status strings directly.
const (
	StatusPending           OrderStatus = "pending"
	StatusAuthorize         OrderStatus = "authorize"
	StatusCapture           OrderStatus = "capture"
	StatusSettlement        OrderStatus = "settlement"
	StatusDeny              OrderStatus = "deny"
	StatusCancel            OrderStatus = "cancel"
	StatusExpire            OrderStatus = "expire"
	StatusRefund            OrderStatus = "refund"
	StatusPartialRefund     OrderStatus = "partial_refund"
	StatusChargeback        OrderStatus = "chargeback"
	StatusPartialChargeback OrderStatus = "partial_chargeback"
	StatusFailure           OrderStatus = "failure"
)

// Legacy aliases still present in historical rows. Read-only: the
// reconciliation engine recognises them but never writes them.
const (
	StatusLegacyPaid      OrderStatus = "paid"
	StatusLegacyFailed    OrderStatus = "failed"
	StatusLegacyCancelled OrderStatus = "cancelled"
)

// IsSuccessful reports whether the status means the order has been paid.
func (s OrderStatus) IsSuccessful() bool {
	switch s {
	case StatusCapture, StatusSettlement, StatusLegacyPaid:
		return true
	}
	return false
}

// IsFailed reports whether the status is a terminal failure.
func (s OrderStatus) IsFailed() bool {
	switch s {
	case StatusDeny, StatusCancel, StatusExpire, StatusFailure,
		StatusLegacyFailed, StatusLegacyCancelled:
		return true
	}
	return false
}

// IsCorrection reports whether the status is a post-settlement
// correction that must always overwrite the stored status.
func (s OrderStatus) IsCorrection() bool {
	switch s {
	case StatusRefund, StatusPartialRefund, StatusChargeback, StatusPartialChargeback:
		return true
	}
	return false
}

func (s OrderStatus) IsPending() bool {
	return s == StatusPending || s == StatusAuthorize
}

// Description returns the human-readable text used by the status endpoint.
func (s OrderStatus) Description() string {
	switch s {
	case StatusPending:
		return "Waiting for payment"
	case StatusAuthorize:
		return "Payment authorized, awaiting capture"
	case StatusCapture, StatusSettlement, StatusLegacyPaid:
		return "Payment received"
	case StatusDeny:
		return "Payment was denied by the provider"
	case StatusCancel, StatusLegacyCancelled:
		return "Payment was cancelled"
	case StatusExpire:
		return "Payment window expired"
	case StatusRefund:
		return "Payment fully refunded"
	case StatusPartialRefund:
		return "Payment partially refunded"
	case StatusChargeback:
		return "Payment charged back"
	case StatusPartialChargeback:
		return "Payment partially charged back"
	case StatusFailure, StatusLegacyFailed:
		return "Payment failed"
	}
	return "Unknown payment status"
}

// ParseStatus validates an externally supplied status string against
// the canonical set. Legacy aliases are readable but not writable, so
// they are rejected here along with unknown strings.
func ParseStatus(s string) (OrderStatus, error) {
	switch status := OrderStatus(s); status {
	case StatusPending, StatusAuthorize, StatusCapture, StatusSettlement,
		StatusDeny, StatusCancel, StatusExpire, StatusRefund,
		StatusPartialRefund, StatusChargeback, StatusPartialChargeback,
		StatusFailure:
		return status, nil
	}
	return "", fmt.Errorf("not a canonical order status: %q", s)
}

type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID          string `bun:"id,pk" json:"id"`
	OrderNumber string `bun:"order_number,notnull,unique" json:"order_number"`
	UserID      string `bun:"user_id,notnull" json:"user_id"`
	BuyerName   string `bun:"buyer_name" json:"buyer_name"`
	BuyerEmail  string `bun:"buyer_email" json:"buyer_email"`
	BuyerPhone  string `bun:"buyer_phone" json:"buyer_phone"`

	Quantity    int     `bun:"quantity,notnull" json:"quantity"`
	GrossAmount float64 `bun:"gross_amount,notnull" json:"gross_amount"`
	FinalAmount float64 `bun:"final_amount,notnull" json:"final_amount"`

	DiscountCodeID string `bun:"discount_code_id,nullzero" json:"discount_code_id,omitempty"`
	ReferralCodeID string `bun:"referral_code_id,nullzero" json:"referral_code_id,omitempty"`

	Status OrderStatus `bun:"status,notnull" json:"status"`

	// PaidAt is written exactly once, on the first successful
	// transition, and is never cleared by automation.
	PaidAt time.Time `bun:"paid_at,nullzero" json:"paid_at,omitempty"`

	// SyncLocked suppresses every automated transition (webhook, poll,
	// sweeper). Only explicit admin action may move a locked order.
	SyncLocked bool `bun:"sync_locked,notnull,default:false" json:"sync_locked"`

	PaymentToken          string    `bun:"payment_token,nullzero" json:"-"`
	PaymentTokenCreatedAt time.Time `bun:"payment_token_created_at,nullzero" json:"-"`

	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// TokenReferenceTime is the timestamp the payment window is measured
// from: token creation when a token exists, order creation otherwise.
func (o *Order) TokenReferenceTime() time.Time {
	if !o.PaymentTokenCreatedAt.IsZero() {
		return o.PaymentTokenCreatedAt
	}
	return o.CreatedAt
}

type OrderRequest struct {
	Quantity     int     `json:"quantity"`
	UnitPrice    float64 `json:"unit_price"`
	BuyerName    string  `json:"buyer_name"`
	BuyerEmail   string  `json:"buyer_email"`
	BuyerPhone   string  `json:"buyer_phone"`
	DiscountCode string  `json:"discount_code,omitempty"`
	ReferralCode string  `json:"referral_code,omitempty"`
}

type OrderResponse struct {
	OrderID     string      `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	Status      OrderStatus `json:"status"`
	GrossAmount float64     `json:"gross_amount"`
	FinalAmount float64     `json:"final_amount"`
	Quantity    int         `json:"quantity"`
}
