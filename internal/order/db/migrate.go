package db

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"ms-payments/internal/models"
)

// Migrate creates the payment tables. Tables are created in dependency
// order; existing tables are left alone.
func Migrate(db *bun.DB) {
	ctx := context.Background()

	tables := []interface{}{
		(*models.DiscountCode)(nil),
		(*models.ReferralCode)(nil),
		(*models.Order)(nil),
		(*models.Ticket)(nil),
	}

	for _, model := range tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			log.Fatalf("create table failed: %v", err)
		}
	}

	log.Println("payment tables ready")
}
