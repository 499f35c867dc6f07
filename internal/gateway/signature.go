package gateway

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
)

// Signature recomputes the notification signature:
// sha512(orderID || statusCode || grossAmount || serverKey), hex-encoded.
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// ValidSignature verifies a webhook notification's authenticity. Any
// missing field fails closed without computing anything; the comparison
// is constant-time.
func ValidSignature(orderID, statusCode, grossAmount, signature, serverKey string) bool {
	if orderID == "" || statusCode == "" || grossAmount == "" || signature == "" {
		return false
	}
	expected := Signature(orderID, statusCode, grossAmount, serverKey)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
