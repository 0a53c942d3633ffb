package main

import (
	"log"

	"go.uber.org/fx"

	"ticketing-commerce/pkg/config"
	"ticketing-commerce/pkg/db"
	"ticketing-commerce/pkg/gen"
	"ticketing-commerce/pkg/logger"
	"ticketing-commerce/pkg/otelcol"
	"ticketing-commerce/pkg/profiling"
	pkgtask "ticketing-commerce/pkg/task"
	"ticketing-commerce/services/ledger"
	"ticketing-commerce/services/org"
	"ticketing-commerce/services/reconcile"
	"ticketing-commerce/services/task"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		gen.Module,
		otelcol.Module,
		pkgtask.Client,
		pkgtask.Server,
		org.Module,
		ledger.Module,
		reconcile.Module,
		task.Module,
		profiling.Module,
		logger.FxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}
