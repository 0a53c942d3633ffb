package reward

import (
	"ticketing-commerce/services/ledger"

	"go.uber.org/fx"
)

var Module = fx.Module("reward.module",
	fx.Provide(
		NewService,
		func(l *ledger.Service) PointsSpender { return l },
	),
)

var Server = fx.Module("reward.server",
	Module,
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
