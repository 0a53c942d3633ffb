package order

import (
	"ticketing-commerce/services/discount"
	"ticketing-commerce/services/org"

	"go.uber.org/fx"
)

var Module = fx.Module("order.module",
	fx.Provide(
		NewService,
		func(o *org.Service) PrefixSource { return o },
		func(d *discount.Service) DiscountResolver { return d },
	),
)

var Server = fx.Module("order.server",
	Module,
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
