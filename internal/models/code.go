package models

import (
	"time"

	"github.com/uptrace/bun"
)

// DiscountCode lowers the final amount of an order. UsedCount is a
// derived value: it is always recomputed from tickets of successful
// orders that reference the code, never incremented in place.
type DiscountCode struct {
	bun.BaseModel `bun:"table:discount_codes"`

	ID         string    `bun:"id,pk" json:"id"`
	Code       string    `bun:"code,notnull,unique" json:"code"`
	PercentOff float64   `bun:"percent_off,notnull" json:"percent_off"`
	Quota      int       `bun:"quota,notnull" json:"quota"`
	UsedCount  int       `bun:"used_count,notnull,default:0" json:"used_count"`
	CreatedAt  time.Time `bun:"created_at,notnull" json:"created_at"`
}

// ReferralCode credits a referrer for tickets sold through their code.
// Uses is derived the same way as DiscountCode.UsedCount.
type ReferralCode struct {
	bun.BaseModel `bun:"table:referral_codes"`

	ID        string    `bun:"id,pk" json:"id"`
	Code      string    `bun:"code,notnull,unique" json:"code"`
	OwnerName string    `bun:"owner_name" json:"owner_name"`
	Quota     int       `bun:"quota,notnull" json:"quota"`
	Uses      int       `bun:"uses,notnull,default:0" json:"uses"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"created_at"`
}
