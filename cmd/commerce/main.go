package main

import (
	"log"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"

	"ticketing-commerce/pkg/authz"
	"ticketing-commerce/pkg/config"
	"ticketing-commerce/pkg/db"
	"ticketing-commerce/pkg/featureflags"
	"ticketing-commerce/pkg/gen"
	"ticketing-commerce/pkg/hashistack/secretmanager"
	"ticketing-commerce/pkg/hashistack/servicediscover"
	"ticketing-commerce/pkg/health"
	"ticketing-commerce/pkg/httpapi"
	"ticketing-commerce/pkg/logger"
	"ticketing-commerce/pkg/otelcol"
	"ticketing-commerce/pkg/profiling"
	"ticketing-commerce/pkg/redis"
	"ticketing-commerce/pkg/sequence"
	"ticketing-commerce/pkg/server"
	"ticketing-commerce/pkg/task"
	"ticketing-commerce/services/discount"
	"ticketing-commerce/services/leaderboard"
	"ticketing-commerce/services/ledger"
	"ticketing-commerce/services/orchestrator"
	"ticketing-commerce/services/order"
	"ticketing-commerce/services/org"
	"ticketing-commerce/services/reconcile"
	"ticketing-commerce/services/rep"
	"ticketing-commerce/services/reward"
)

func main() {
	opts := []fx.Option{
		configModule(),
		logger.Module,
		db.Module,
		redis.Module,
		task.Client,
		gen.Module,
		sequence.Module,
		featureflags.Module,
		authz.Module,
		otelcol.Module,
		health.Module,
		fx.Provide(provideMeterProvider),
		httpapi.Module,

		org.Server,
		rep.Server,
		ledger.Server,
		discount.Server,
		order.Server,
		reconcile.Module,
		reward.Server,
		leaderboard.Server,
		orchestrator.Server,

		server.ProvideGRPCServer,
		fx.Invoke(health.RegisterGRPC),
		server.ProvideHTTPServer,
		servicediscover.Module,
		profiling.Module,
		logger.FxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

// configModule reads secrets from vault when VAULT_ADDR is set, and the whole
// configuration from a remote provider when REMOTE_CONFIG_PROVIDER is set as well.
func configModule() fx.Option {
	if _, ok := os.LookupEnv("VAULT_ADDR"); !ok {
		return config.Module
	}
	if _, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER"); ok {
		return fx.Options(secretmanager.Module, config.RemoteModule)
	}
	return fx.Options(secretmanager.Module, config.Module)
}

func provideMeterProvider() metric.MeterProvider {
	return otel.GetMeterProvider()
}
