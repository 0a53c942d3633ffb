package reconcile

import (
	"context"
	"errors"

	"ticketing-commerce/pkg/db/option"
	"ticketing-commerce/pkg/errutil"
	"ticketing-commerce/pkg/logger"
	"ticketing-commerce/pkg/repository"
	"ticketing-commerce/pkg/task"
	"ticketing-commerce/services/discount"
	"ticketing-commerce/services/order"
	"ticketing-commerce/services/rep"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CustomerAggregates is the recomputed pair written to a customer.
type CustomerAggregates struct {
	TotalOrders int64           `json:"total_orders"`
	TotalSpent  decimal.Decimal `json:"total_spent"`
}

type RepAggregates struct {
	TotalSales   int64           `json:"total_sales"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
}

// Service recomputes cached counters from their source rows. Every method overwrites
// the counter, so running one twice leaves the same result.
type Service struct {
	asynq    task.Enqueuer
	failures metric.Int64Counter

	orders      repository.Repository[order.Order]
	tickets     repository.Repository[order.Ticket]
	ticketTypes repository.Repository[order.TicketType]
	customers   repository.Repository[order.Customer]
	reps        repository.Repository[rep.Rep]
	discounts   repository.Repository[discount.Discount]
}

type ServiceParams struct {
	fx.In
	DB    *gorm.DB
	Asynq task.Enqueuer `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	failures, err := otel.Meter("ticketing-commerce/reconcile").Int64Counter("reconciliation_failures_total",
		metric.WithDescription("aggregate recomputes that failed and were deferred"))
	if err != nil {
		zap.L().Warn("failed to create reconciliation counter", zap.Error(err))
	}

	return &Service{
		asynq:    p.Asynq,
		failures: failures,

		orders:      repository.ProvideStore[order.Order](p.DB),
		tickets:     repository.ProvideStore[order.Ticket](p.DB),
		ticketTypes: repository.ProvideStore[order.TicketType](p.DB),
		customers:   repository.ProvideStore[order.Customer](p.DB),
		reps:        repository.ProvideStore[rep.Rep](p.DB),
		discounts:   repository.ProvideStore[discount.Discount](p.DB),
	}
}

// ReconcileTicketTypeSold sets sold to the count of the type's non-cancelled tickets.
func (s *Service) ReconcileTicketTypeSold(ctx context.Context, ticketTypeID string) (int64, error) {
	sold, err := s.tickets.Count(ctx, &order.Ticket{TicketTypeID: ticketTypeID},
		option.ApplyOperator("status <> ?", order.TicketCancelled))
	if err != nil {
		return 0, errutil.Unavailable("failed to count tickets", err)
	}

	if _, err := s.ticketTypes.UpdateWhere(ctx, map[string]any{"sold": sold},
		option.ApplyOperator("id = ?", ticketTypeID)); err != nil {
		return 0, errutil.Unavailable("failed to update ticket type", err)
	}
	return sold, nil
}

// ReconcileCustomerAggregates recomputes total_orders and total_spent over the
// customer's completed orders.
func (s *Service) ReconcileCustomerAggregates(ctx context.Context, customerID string) (CustomerAggregates, error) {
	completed, err := s.orders.Find(ctx, &order.Order{CustomerID: customerID, Status: order.Completed})
	if err != nil {
		return CustomerAggregates{}, errutil.Unavailable("failed to load customer orders", err)
	}

	agg := CustomerAggregates{TotalSpent: decimal.Zero}
	for _, o := range completed {
		agg.TotalOrders++
		agg.TotalSpent = agg.TotalSpent.Add(o.Total)
	}

	if _, err := s.customers.UpdateWhere(ctx,
		map[string]any{"total_orders": agg.TotalOrders, "total_spent": agg.TotalSpent},
		option.ApplyOperator("id = ?", customerID)); err != nil {
		return CustomerAggregates{}, errutil.Unavailable("failed to update customer aggregates", err)
	}
	return agg, nil
}

// ReconcileRepAggregates recomputes total_sales and total_revenue over the completed
// orders attributed to the rep.
func (s *Service) ReconcileRepAggregates(ctx context.Context, repID string) (RepAggregates, error) {
	completed, err := s.orders.Find(ctx, &order.Order{Status: order.Completed},
		option.ApplyOperator("rep_id = ?", repID))
	if err != nil {
		return RepAggregates{}, errutil.Unavailable("failed to load rep orders", err)
	}

	agg := RepAggregates{TotalRevenue: decimal.Zero}
	for _, o := range completed {
		agg.TotalSales++
		agg.TotalRevenue = agg.TotalRevenue.Add(o.Total)
	}

	if _, err := s.reps.UpdateWhere(ctx,
		map[string]any{"total_sales": agg.TotalSales, "total_revenue": agg.TotalRevenue},
		option.ApplyOperator("id = ?", repID)); err != nil {
		return RepAggregates{}, errutil.Unavailable("failed to update rep aggregates", err)
	}
	return agg, nil
}

// ReconcileDiscountUsage sets used_count to the number of completed orders carrying
// the discount.
func (s *Service) ReconcileDiscountUsage(ctx context.Context, discountID string) (int64, error) {
	used, err := s.orders.Count(ctx, &order.Order{Status: order.Completed},
		option.ApplyOperator("discount_id = ?", discountID))
	if err != nil {
		return 0, errutil.Unavailable("failed to count discount usage", err)
	}

	if _, err := s.discounts.UpdateWhere(ctx, map[string]any{"used_count": used},
		option.ApplyOperator("id = ?", discountID)); err != nil {
		return 0, errutil.Unavailable("failed to update discount usage", err)
	}
	return used, nil
}

// SweepReport counts what a full pass over an org recomputed.
type SweepReport struct {
	TicketTypes int      `json:"ticket_types"`
	Customers   int      `json:"customers"`
	Reps        int      `json:"reps"`
	Discounts   int      `json:"discounts"`
	Failed      int      `json:"failed"`
	RepIDs      []string `json:"-"`
}

// SweepOrg recomputes every cached counter of orgID. Individual failures are counted
// and the pass continues; the error reports only a failure to list the org's rows.
func (s *Service) SweepOrg(ctx context.Context, orgID string) (SweepReport, error) {
	var report SweepReport
	zapLog := logger.FromContext(ctx).With(zap.String("org_id", orgID))

	ticketTypes, err := s.ticketTypes.Find(ctx, &order.TicketType{OrgID: orgID})
	if err != nil {
		return report, errutil.Unavailable("failed to list ticket types", err)
	}
	customers, err := s.customers.Find(ctx, &order.Customer{OrgID: orgID})
	if err != nil {
		return report, errutil.Unavailable("failed to list customers", err)
	}
	reps, err := s.reps.Find(ctx, &rep.Rep{OrgID: orgID})
	if err != nil {
		return report, errutil.Unavailable("failed to list reps", err)
	}
	discounts, err := s.discounts.Find(ctx, &discount.Discount{OrgID: orgID})
	if err != nil {
		return report, errutil.Unavailable("failed to list discounts", err)
	}

	fail := func(kind, id string, err error) {
		report.Failed++
		zapLog.Warn("sweep step failed", zap.String("kind", kind), zap.String("entity_id", id), zap.Error(err))
	}

	for _, tt := range ticketTypes {
		if _, err := s.ReconcileTicketTypeSold(ctx, tt.ID); err != nil {
			fail("ticket_type", tt.ID, err)
			continue
		}
		report.TicketTypes++
	}
	for _, c := range customers {
		if _, err := s.ReconcileCustomerAggregates(ctx, c.ID); err != nil {
			fail("customer", c.ID, err)
			continue
		}
		report.Customers++
	}
	for _, r := range reps {
		report.RepIDs = append(report.RepIDs, r.ID)
		if _, err := s.ReconcileRepAggregates(ctx, r.ID); err != nil {
			fail("rep", r.ID, err)
			continue
		}
		report.Reps++
	}
	for _, d := range discounts {
		if _, err := s.ReconcileDiscountUsage(ctx, d.ID); err != nil {
			fail("discount", d.ID, err)
			continue
		}
		report.Discounts++
	}

	return report, nil
}

// Settle runs fn and never fails the caller. A failure is logged, counted and handed
// to the worker as a retry task of taskType.
func (s *Service) Settle(ctx context.Context, taskType string, payload task.ReconcilePayload, fn func(ctx context.Context) error) {
	err := fn(ctx)
	if err == nil {
		return
	}

	zapLog := logger.FromContext(ctx).With(
		zap.String("task", taskType),
		zap.String("entity_id", payload.EntityID),
	)
	zapLog.Error("reconciliation failed, deferring", zap.Error(err))

	if s.failures != nil {
		s.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", taskType)))
	}

	if s.asynq == nil {
		return
	}
	t, terr := task.NewReconcileTask(taskType, payload)
	if terr == nil {
		_, terr = s.asynq.Enqueue(context.WithoutCancel(ctx), t)
	}
	if terr != nil && !errors.Is(terr, asynq.ErrDuplicateTask) {
		zapLog.Error("failed to enqueue reconciliation retry", zap.Error(terr))
	}
}
