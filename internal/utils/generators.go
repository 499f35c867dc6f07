package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GenerateOrderNumber builds the gateway-facing order number. It is the
// correlation key with the gateway, so it must be unique and immutable.
func GenerateOrderNumber() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999))
	return fmt.Sprintf("ORD-%d-%06d", timestamp, randomNum.Int64())
}

// GenerateTicketSerial builds a human-facing ticket serial.
func GenerateTicketSerial() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999999))
	return fmt.Sprintf("TKT-%d-%09d", timestamp, randomNum.Int64())
}
