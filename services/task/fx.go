package task

import (
	"ticketing-commerce/services/ledger"
	"ticketing-commerce/services/org"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
)

var Module = fx.Module("task.service",
	fx.Provide(
		NewService,
		NewNotifier,
		NewScheduler,
		func(l *ledger.Service) BalanceHealer { return l },
		func(o *org.Service) OrgLister { return o },
	),
	fx.Invoke(
		func(mux *asynq.ServeMux, s *Service) { s.Register(mux) },
		StartScheduler,
	),
)
