package org

import "go.uber.org/fx"

var Module = fx.Module("org.module",
	fx.Provide(
		NewService,
	),
)

var Server = fx.Module("org.server",
	Module,
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
