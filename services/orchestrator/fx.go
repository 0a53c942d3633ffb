package orchestrator

import (
	"ticketing-commerce/services/discount"
	"ticketing-commerce/services/leaderboard"
	"ticketing-commerce/services/ledger"
	"ticketing-commerce/services/org"

	"go.uber.org/fx"
)

var Module = fx.Module("orchestrator.module",
	fx.Provide(
		NewService,
		func(l *ledger.Service) PointsLedger { return l },
		func(d *discount.Service) DiscountSource { return d },
		func(o *org.Service) OrgSource { return o },
		func(l *leaderboard.Service) LeaderboardInvalidator { return l },
	),
)

var Server = fx.Module("orchestrator.server",
	Module,
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
