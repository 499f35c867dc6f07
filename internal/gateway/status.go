package gateway

import "ms-payments/internal/models"

// statusTable maps every transaction status the gateway integration
// supports onto one canonical order status. Kept as a single table so
// new vendor statuses land in exactly one place.
var statusTable = map[string]models.OrderStatus{
	"pending":            models.StatusPending,
	"authorize":          models.StatusAuthorize,
	"capture":            models.StatusCapture,
	"settlement":         models.StatusSettlement,
	"deny":               models.StatusDeny,
	"cancel":             models.StatusCancel,
	"expire":             models.StatusExpire,
	"refund":             models.StatusRefund,
	"partial_refund":     models.StatusPartialRefund,
	"chargeback":         models.StatusChargeback,
	"partial_chargeback": models.StatusPartialChargeback,
	"failure":            models.StatusFailure,
}

// MapStatus translates a gateway-reported transaction status into the
// canonical order status. Unrecognized strings degrade to pending and
// return false so the caller can log a warning; mapping never fails.
func MapStatus(transactionStatus string) (models.OrderStatus, bool) {
	if mapped, ok := statusTable[transactionStatus]; ok {
		return mapped, true
	}
	return models.StatusPending, false
}
