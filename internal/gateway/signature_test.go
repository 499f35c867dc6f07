package gateway_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ms-payments/internal/gateway"
)

const testServerKey = "SB-server-key-for-tests"

func TestValidSignature(t *testing.T) {
	orderID := "ORD-1693526400-000123"
	statusCode := "200"
	grossAmount := "100000.00"

	signature := gateway.Signature(orderID, statusCode, grossAmount, testServerKey)

	assert.True(t, gateway.ValidSignature(orderID, statusCode, grossAmount, signature, testServerKey))
}

func TestValidSignatureRejectsTampering(t *testing.T) {
	orderID := "ORD-1693526400-000123"
	statusCode := "200"
	grossAmount := "100000.00"
	signature := gateway.Signature(orderID, statusCode, grossAmount, testServerKey)

	tests := []struct {
		name                                string
		orderID, statusCode, gross, sig, key string
	}{
		{"tampered gross amount", orderID, statusCode, "1.00", signature, testServerKey},
		{"tampered order id", "ORD-other", statusCode, grossAmount, signature, testServerKey},
		{"tampered status code", orderID, "201", grossAmount, signature, testServerKey},
		{"tampered signature", orderID, statusCode, grossAmount, signature + "ff", testServerKey},
		{"wrong server key", orderID, statusCode, grossAmount, signature, "other-key"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.False(t, gateway.ValidSignature(tc.orderID, tc.statusCode, tc.gross, tc.sig, tc.key))
		})
	}
}

func TestValidSignatureFailsClosedOnMissingFields(t *testing.T) {
	orderID := "ORD-1693526400-000123"
	signature := gateway.Signature(orderID, "200", "100000.00", testServerKey)

	assert.False(t, gateway.ValidSignature("", "200", "100000.00", signature, testServerKey))
	assert.False(t, gateway.ValidSignature(orderID, "", "100000.00", signature, testServerKey))
	assert.False(t, gateway.ValidSignature(orderID, "200", "", signature, testServerKey))
	assert.False(t, gateway.ValidSignature(orderID, "200", "100000.00", "", testServerKey))
}
