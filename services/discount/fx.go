package discount

import (
	"ticketing-commerce/services/org"

	"go.uber.org/fx"
)

var Module = fx.Module("discount.module",
	fx.Provide(
		NewService,
		func(o *org.Service) SettingsSource { return o },
	),
)

var Server = fx.Module("discount.server",
	Module,
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
