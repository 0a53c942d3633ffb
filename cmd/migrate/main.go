package main

import (
	"context"
	"log"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"ticketing-commerce/pkg/config"
	"ticketing-commerce/pkg/db"
	"ticketing-commerce/pkg/logger"
	"ticketing-commerce/services/discount"
	"ticketing-commerce/services/ledger"
	"ticketing-commerce/services/order"
	"ticketing-commerce/services/org"
	"ticketing-commerce/services/rep"
	"ticketing-commerce/services/reward"
	"ticketing-commerce/services/task"
)

// models lists every table. Unique indexes declared on them back the identifier,
// ledger source and claim guarantees.
var models = []any{
	&org.Org{},
	&rep.Rep{},
	&ledger.PointsLedgerEntry{},
	&discount.Discount{},
	&order.TicketType{},
	&order.Customer{},
	&order.Order{},
	&order.OrderItem{},
	&order.Ticket{},
	&reward.RepReward{},
	&reward.RepMilestone{},
	&reward.RepRewardClaim{},
	&task.Job{},
}

func migrate(lc fx.Lifecycle, shutdowner fx.Shutdowner, conn *gorm.DB) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := conn.WithContext(ctx).AutoMigrate(models...); err != nil {
				zap.L().Error("migration failed", zap.Error(err))
				return err
			}
			zap.L().Info("migration finished", zap.Int("models", len(models)))
			return shutdowner.Shutdown()
		},
	})
}

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		db.Module,
		fx.Invoke(migrate),
		logger.FxLogger,
	)

	if err := app.Err(); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	app.Run()
}
