package ledger

import "go.uber.org/fx"

var Module = fx.Module("ledger.service",
	fx.Provide(NewService),
)

var Server = fx.Module("ledger.server",
	Module,
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
