package models

import "time"

// GatewayNotification is the webhook payload pushed by the payment
// gateway. OrderID carries the gateway-facing order number.
type GatewayNotification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	TransactionID     string `json:"transaction_id,omitempty"`
	PaymentType       string `json:"payment_type,omitempty"`
}

// Complete reports whether every field required for signature
// verification is present. Incomplete notifications fail closed.
func (n GatewayNotification) Complete() bool {
	return n.OrderID != "" && n.StatusCode != "" && n.GrossAmount != "" && n.SignatureKey != ""
}

// StatusResponse is the poll endpoint reply.
type StatusResponse struct {
	Status       OrderStatus `json:"status"`
	Description  string      `json:"description"`
	IsSuccessful bool        `json:"is_successful"`
	IsFailed     bool        `json:"is_failed"`
	IsPending    bool        `json:"is_pending"`
	PaidAt       time.Time   `json:"paid_at,omitempty"`
	UpdatedAt    time.Time   `json:"updated_at,omitempty"`
	ExpiresAt    time.Time   `json:"expires_at"`
}

// OrderPaidEvent is handed to the downstream notification consumer
// once, on the first successful transition. The consumer owns ticket
// delivery (documents, email); this service only guarantees the event
// carries committed data.
type OrderPaidEvent struct {
	Order        Order         `json:"order"`
	Tickets      []Ticket      `json:"tickets"`
	DiscountCode *DiscountCode `json:"discount_code,omitempty"`
	ReferralCode *ReferralCode `json:"referral_code,omitempty"`
	PaidAt       time.Time     `json:"paid_at"`
}
