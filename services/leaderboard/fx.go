package leaderboard

import (
	"ticketing-commerce/services/org"
	"ticketing-commerce/services/rep"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

var Module = fx.Module("leaderboard.module",
	fx.Provide(
		NewService,
		func(r *rep.Service) RepSource { return r },
		func(o *org.Service) SettingsSource { return o },
	),
	fx.Invoke(func() error { return RegisterMetrics(prometheus.DefaultRegisterer) }),
)

var Server = fx.Module("leaderboard.server",
	Module,
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
