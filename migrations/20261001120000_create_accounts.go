package migrations

import (
	"context"

	"github.com/blagoySimandov/careerpilot/internal/models"
	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.NewCreateTable().
				Model((*models.AccountDB)(nil)).
				IfNotExists().
				Exec(ctx); err != nil {
				return err
			}
			if _, err := tx.NewCreateIndex().
				Model((*models.AccountDB)(nil)).
				Index("idx_accounts_billing_customer_id").
				Column("billing_customer_id").
				IfNotExists().
				Exec(ctx); err != nil {
				return err
			}
			_, err := tx.NewCreateIndex().
				Model((*models.AccountDB)(nil)).
				Index("idx_accounts_billing_subscription_id").
				Column("billing_subscription_id").
				IfNotExists().
				Exec(ctx)
			return err
		})
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewDropTable().
			Model((*models.AccountDB)(nil)).
			IfExists().
			Exec(ctx)
		return err
	})
}
