package db

import (
	"context"
	"fmt"

	"ms-checkout/internal/models"

	"github.com/uptrace/bun"
)

// Tables lists every model the ledger persists, parents first.
var Tables = []interface{}{
	(*models.Order)(nil),
	(*models.OrderItem)(nil),
	(*models.Coupon)(nil),
	(*models.Event)(nil),
	(*models.EventTicket)(nil),
	(*models.LoyaltyAccount)(nil),
	(*models.LoyaltyTransaction)(nil),
	(*models.ProcessedWebhookEvent)(nil),
}

// CreateSchema creates the ledger tables from the models. Production schemas come
// from the SQL migrations; this is for tests and local SQLite runs.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, model := range Tables {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", model, err)
		}
	}
	if _, err := db.NewCreateIndex().
		Model((*models.Order)(nil)).
		Unique().
		IfNotExists().
		Index("orders_external_reference_idx").
		Column("external_reference").
		Where("external_reference IS NOT NULL").
		Exec(ctx); err != nil {
		return fmt.Errorf("create external reference index: %w", err)
	}
	return nil
}
