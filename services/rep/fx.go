package rep

import "go.uber.org/fx"

var Module = fx.Module("rep.module",
	fx.Provide(
		NewService,
	),
)

var Server = fx.Module("rep.server",
	Module,
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
