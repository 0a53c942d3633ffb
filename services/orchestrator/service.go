package orchestrator

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"ticketing-commerce/pkg/config"
	"ticketing-commerce/pkg/errutil"
	"ticketing-commerce/pkg/featureflags"
	"ticketing-commerce/pkg/logger"
	"ticketing-commerce/pkg/redis"
	"ticketing-commerce/pkg/rediskey"
	"ticketing-commerce/pkg/repository"
	"ticketing-commerce/pkg/sequence"
	"ticketing-commerce/pkg/task"
	"ticketing-commerce/pkg/taskname"
	"ticketing-commerce/services/discount"
	"ticketing-commerce/services/ledger"
	"ticketing-commerce/services/order"
	"ticketing-commerce/services/reconcile"
	"ticketing-commerce/services/rep"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultLockTTL = 30 * time.Second

var ErrOperationInProgress = errutil.BaseError{Code: errutil.StatusConflict, Message: "order operation in progress"}

// ErrRefundedDuringCompletion reports a refund that moved the order while completion
// was still applying side effects. What completion applied has been reversed.
var ErrRefundedDuringCompletion = errutil.BaseError{Code: errutil.StatusConflict, Message: "order refunded during completion"}

type PointsLedger interface {
	Award(ctx context.Context, req ledger.AwardRequest) (int64, error)
	FindBySource(ctx context.Context, repID string, sourceType ledger.SourceType, ref string) (*ledger.PointsLedgerEntry, error)
}

type DiscountSource interface {
	Get(ctx context.Context, orgID, discountID string) (*discount.Discount, error)
}

type OrgSource interface {
	Prefix(ctx context.Context, orgID string) (string, error)
	RepSettings(ctx context.Context, orgID string) (rep.Settings, error)
}

// LeaderboardInvalidator drops a cached ranking after rep revenue changes.
type LeaderboardInvalidator interface {
	Invalidate(ctx context.Context, orgID string)
}

// Service drives an order through draft → completed → refunded and applies the side
// effects of each transition. Every step after the status guard is idempotent, so a
// failed call is repaired by calling it again.
type Service struct {
	orders     *order.Service
	reconciler *reconcile.Service
	issuer     *sequence.Issuer
	points     PointsLedger
	discounts  DiscountSource
	orgs       OrgSource

	locker      redis.Locker
	asynq       task.Enqueuer
	flags       featureflags.FeatureFlag
	leaderboard LeaderboardInvalidator
	lockTTL     time.Duration
	now         func() time.Time
}

type Params struct {
	fx.In

	Orders     *order.Service
	Reconciler *reconcile.Service
	Issuer     *sequence.Issuer
	Points     PointsLedger
	Discounts  DiscountSource
	Orgs       OrgSource

	Locker      redis.Locker             `optional:"true"`
	Asynq       task.Enqueuer            `optional:"true"`
	Flags       featureflags.FeatureFlag `optional:"true"`
	Leaderboard LeaderboardInvalidator   `optional:"true"`
	Config      *config.Config           `optional:"true"`
}

func NewService(p Params) *Service {
	ttl := defaultLockTTL
	if p.Config != nil && p.Config.Commerce.IdempotencyTTL > 0 {
		ttl = p.Config.Commerce.IdempotencyTTL
	}

	return &Service{
		orders:      p.Orders,
		reconciler:  p.Reconciler,
		issuer:      p.Issuer,
		points:      p.Points,
		discounts:   p.Discounts,
		orgs:        p.Orgs,
		locker:      p.Locker,
		asynq:       p.Asynq,
		flags:       p.Flags,
		leaderboard: p.Leaderboard,
		lockTTL:     ttl,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// lock holds the per-order mutation key for the duration of a call. Complete and
// Refund share the key. When redis is unreachable the call proceeds unlocked and the
// status guards keep it correct.
func (s *Service) lock(ctx context.Context, orderID string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}

	release, ok, err := s.locker.Acquire(ctx, rediskey.BuildOrderOperationKey(orderID, "mutate"), s.lockTTL)
	if err != nil {
		logger.FromContext(ctx).Warn("order lock unavailable, continuing without it",
			zap.String("order_id", orderID), zap.Error(err))
		return func() {}, nil
	}
	if !ok {
		return nil, ErrOperationInProgress
	}
	return func() { release(context.WithoutCancel(ctx)) }, nil
}

// Complete moves a draft order to completed, issues one ticket per unit, attributes
// the order to the discount's rep, awards the rep sale points and reconciles the
// affected aggregates. Completing an already completed order replays the side effects
// and returns the existing tickets.
func (s *Service) Complete(ctx context.Context, orgID, orderID string) (*CompleteResult, error) {
	zapLog := logger.FromContext(ctx).With(zap.String("org_id", orgID), zap.String("order_id", orderID))

	release, err := s.lock(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer release()

	o, err := s.orders.Get(ctx, orgID, orderID)
	if err != nil {
		return nil, err
	}

	replayed := false
	switch o.Status {
	case order.Completed:
		replayed = true
	case order.Draft:
		now := s.now()
		moved, err := s.orders.Transition(ctx, orgID, orderID, order.Draft, order.Completed,
			map[string]any{"completed_at": now})
		if err != nil {
			return nil, err
		}
		if !moved {
			if o, err = s.orders.Get(ctx, orgID, orderID); err != nil {
				return nil, err
			}
			if o.Status != order.Completed {
				return nil, notCompletable(o.Status)
			}
			replayed = true
		} else {
			o.Status = order.Completed
			o.CompletedAt = &now
		}
	default:
		return nil, notCompletable(o.Status)
	}

	items, err := s.orders.Items(ctx, o.ID)
	if err != nil {
		return nil, err
	}

	codes, err := s.issueTickets(ctx, o, items)
	if err != nil {
		zapLog.Error("ticket issuance incomplete", zap.Error(err))
		return nil, err
	}
	if err := s.stillCompleted(ctx, o, items); err != nil {
		return nil, err
	}

	repID, err := s.attribute(ctx, o)
	if err != nil {
		return nil, err
	}
	if repID != "" {
		if err := s.awardSale(ctx, o, repID); err != nil {
			zapLog.Error("failed to award sale points", zap.String("rep_id", repID), zap.Error(err))
			return nil, err
		}
	}
	if err := s.stillCompleted(ctx, o, items); err != nil {
		return nil, err
	}

	s.settle(ctx, o, items, "completed")

	customer, err := s.orders.Customer(ctx, orgID, o.CustomerID)
	if err != nil {
		return nil, err
	}

	s.notify(ctx, o, customer.Email, codes)

	zapLog.Info("order completed", zap.Int("tickets", len(codes)), zap.Bool("replayed", replayed))
	return &CompleteResult{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Status:      o.Status,
		TicketCodes: codes,
		Customer:    Aggregates{TotalOrders: customer.TotalOrders, TotalSpent: customer.TotalSpent},
		Replayed:    replayed,
	}, nil
}

// stillCompleted re-reads the order after a side effect of completion. Without the
// order lock a refund can land between the steps; in that case everything applied so
// far is reversed and the refund stands.
func (s *Service) stillCompleted(ctx context.Context, o *order.Order, items []*order.OrderItem) error {
	current, err := s.orders.Get(ctx, o.OrgID, o.ID)
	if err != nil {
		return err
	}
	if current.Status == order.Completed {
		return nil
	}
	if current.RepID == nil {
		current.RepID = o.RepID
	}

	logger.FromContext(ctx).Warn("order left completed while completing, reversing",
		zap.String("order_id", o.ID), zap.String("status", string(current.Status)))
	if _, _, err := s.reverse(ctx, current); err != nil {
		return err
	}
	s.settle(ctx, current, items, "refunded")
	return ErrRefundedDuringCompletion
}

// reverse cancels the order's tickets and revokes its sale points. Both steps are
// idempotent.
func (s *Service) reverse(ctx context.Context, o *order.Order) (int64, int64, error) {
	cancelled, err := s.orders.CancelTickets(ctx, o.ID)
	if err != nil {
		return 0, 0, err
	}
	revoked, err := s.revokeSale(ctx, o)
	if err != nil {
		logger.FromContext(ctx).Error("failed to revoke sale points", zap.String("order_id", o.ID), zap.Error(err))
		return cancelled, 0, err
	}
	return cancelled, revoked, nil
}

// notCompletable reports the status that blocked completion.
func notCompletable(status order.Status) error {
	return errutil.Conflict(order.ErrNotCompletable.Message, nil,
		errutil.WithDetails(errutil.Detail{Field: "status", Message: string(status)}))
}

// issueTickets walks the order's units in item order and makes sure each line number
// has a ticket. Lines that already have one keep their code.
func (s *Service) issueTickets(ctx context.Context, o *order.Order, items []*order.OrderItem) ([]string, error) {
	prefix, err := s.orgs.Prefix(ctx, o.OrgID)
	if err != nil {
		return nil, err
	}

	codes := make([]string, 0, order.Units(items))
	lineNo := 0
	for _, item := range items {
		for range item.Qty {
			lineNo++
			code, err := s.issueLine(ctx, o, item, lineNo, prefix)
			if err != nil {
				return nil, err
			}
			codes = append(codes, code)
		}
	}
	return codes, nil
}

func (s *Service) issueLine(ctx context.Context, o *order.Order, item *order.OrderItem, lineNo int, prefix string) (string, error) {
	existing, err := s.orders.TicketAt(ctx, o.ID, lineNo)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.TicketCode, nil
	}

	var code string
	_, err = s.issuer.IssueTicketCode(ctx, prefix, func(ctx context.Context, candidate string) error {
		err := s.orders.CreateTicket(ctx, &order.Ticket{
			OrgID:        o.OrgID,
			TicketCode:   candidate,
			OrderID:      o.ID,
			LineNo:       lineNo,
			TicketTypeID: item.TicketTypeID,
			Status:       order.TicketValid,
			MerchItem:    item.MerchItem,
			MerchSize:    item.MerchSize,
		})
		if err == nil {
			code = candidate
			return nil
		}
		if !repository.IsDuplicate(err) {
			return err
		}

		// A concurrent replay may have filled the line.
		existing, lerr := s.orders.TicketAt(ctx, o.ID, lineNo)
		if lerr != nil {
			return lerr
		}
		if existing != nil {
			code = existing.TicketCode
			return nil
		}
		return err
	})
	if err != nil {
		if errutil.StatusOf(err) != errutil.StatusUnknown {
			return "", err
		}
		return "", errutil.Unavailable("failed to issue ticket", err)
	}
	return code, nil
}

// attribute returns the rep the order is credited to, linking it through the
// order's discount code when not yet attributed.
func (s *Service) attribute(ctx context.Context, o *order.Order) (string, error) {
	if o.RepID != nil {
		return *o.RepID, nil
	}
	if o.DiscountID == nil {
		return "", nil
	}

	d, err := s.discounts.Get(ctx, o.OrgID, *o.DiscountID)
	if err != nil {
		if errors.Is(err, discount.ErrDiscountNotFound) {
			return "", nil
		}
		return "", err
	}
	if d.RepID == nil {
		return "", nil
	}

	if _, err := s.orders.AttributeRep(ctx, o.ID, *d.RepID); err != nil {
		return "", err
	}
	o.RepID = d.RepID
	return *d.RepID, nil
}

// awardSale credits the rep once per order. The order id is the ledger source ref.
func (s *Service) awardSale(ctx context.Context, o *order.Order, repID string) error {
	if s.flags != nil && !s.flags.Enabled(ctx, o.OrgID, featureflags.RepPointsOnSale, true) {
		return nil
	}

	settings, err := s.orgs.RepSettings(ctx, o.OrgID)
	if err != nil {
		return err
	}
	points := settings.PointsFor(o.Total)
	if points <= 0 {
		return nil
	}

	_, err = s.points.Award(ctx, ledger.AwardRequest{
		RepID:       repID,
		OrgID:       o.OrgID,
		Points:      points,
		SourceType:  ledger.SourceSale,
		Description: "Sale " + o.OrderNumber,
		SourceRef:   ledger.Ref(o.ID),
	})
	if errors.Is(err, ledger.ErrDuplicateSource) {
		return nil
	}
	return err
}

// revokeSale appends the negative of the order's sale entry, if there was one.
func (s *Service) revokeSale(ctx context.Context, o *order.Order) (int64, error) {
	if o.RepID == nil {
		return 0, nil
	}

	sale, err := s.points.FindBySource(ctx, *o.RepID, ledger.SourceSale, o.ID)
	if err != nil {
		return 0, err
	}
	if sale == nil || sale.Points <= 0 {
		return 0, nil
	}

	_, err = s.points.Award(ctx, ledger.AwardRequest{
		RepID:       *o.RepID,
		OrgID:       o.OrgID,
		Points:      -sale.Points,
		SourceType:  ledger.SourceSale,
		Description: "Refund " + o.OrderNumber,
		SourceRef:   ledger.Ref(o.ID + ":refund"),
	})
	if err != nil && !errors.Is(err, ledger.ErrDuplicateSource) {
		return 0, err
	}
	return sale.Points, nil
}

// settle recomputes every aggregate the order touches. Failures are deferred to the
// worker and never fail the caller.
func (s *Service) settle(ctx context.Context, o *order.Order, items []*order.OrderItem, reason string) {
	payload := func(id string) task.ReconcilePayload {
		return task.ReconcilePayload{OrgID: o.OrgID, EntityID: id, Reason: reason + ":" + o.ID}
	}

	var g errgroup.Group
	for _, id := range ticketTypeIDs(items) {
		g.Go(func() error {
			s.reconciler.Settle(ctx, taskname.ReconcileTicketType, payload(id), func(ctx context.Context) error {
				_, err := s.reconciler.ReconcileTicketTypeSold(ctx, id)
				return err
			})
			return nil
		})
	}

	g.Go(func() error {
		s.reconciler.Settle(ctx, taskname.ReconcileCustomer, payload(o.CustomerID), func(ctx context.Context) error {
			_, err := s.reconciler.ReconcileCustomerAggregates(ctx, o.CustomerID)
			return err
		})
		return nil
	})

	if o.RepID != nil {
		repID := *o.RepID
		g.Go(func() error {
			s.reconciler.Settle(ctx, taskname.ReconcileRep, payload(repID), func(ctx context.Context) error {
				if _, err := s.reconciler.ReconcileRepAggregates(ctx, repID); err != nil {
					return err
				}
				if s.leaderboard != nil {
					s.leaderboard.Invalidate(ctx, o.OrgID)
				}
				return nil
			})
			return nil
		})
	}

	if o.DiscountID != nil {
		discountID := *o.DiscountID
		g.Go(func() error {
			s.reconciler.Settle(ctx, taskname.ReconcileDiscount, payload(discountID), func(ctx context.Context) error {
				_, err := s.reconciler.ReconcileDiscountUsage(ctx, discountID)
				return err
			})
			return nil
		})
	}

	_ = g.Wait()
}

func ticketTypeIDs(items []*order.OrderItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if !slices.Contains(ids, item.TicketTypeID) {
			ids = append(ids, item.TicketTypeID)
		}
	}
	return ids
}

// notify hands the finalized tickets to the notification worker. The task id makes
// replays a no-op.
func (s *Service) notify(ctx context.Context, o *order.Order, email string, codes []string) {
	if s.asynq == nil {
		return
	}

	completedAt := s.now()
	if o.CompletedAt != nil {
		completedAt = *o.CompletedAt
	}

	t, err := task.NewOrderNotifyTask(task.OrderNotifyPayload{
		OrgID:         o.OrgID,
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		CustomerEmail: email,
		TicketCodes:   codes,
		CompletedAt:   completedAt,
	})
	if err == nil {
		_, err = s.asynq.Enqueue(context.WithoutCancel(ctx), t, asynq.TaskID("notify:"+o.ID))
	}
	if err != nil && !errors.Is(err, asynq.ErrDuplicateTask) && !errors.Is(err, asynq.ErrTaskIDConflict) {
		logger.FromContext(ctx).Error("failed to enqueue order notification", zap.String("order_id", o.ID), zap.Error(err))
	}
}

// Refund reverses a completed order. Tickets are cancelled and the sale points
// revoked before the status guard moves the order, so a retry after a partial
// failure finishes the job. A second refund of a refunded order is rejected after
// re-applying the reversal, which changes nothing once it is complete.
func (s *Service) Refund(ctx context.Context, orgID, orderID string, req RefundRequest) (*RefundResult, error) {
	zapLog := logger.FromContext(ctx).With(zap.String("org_id", orgID), zap.String("order_id", orderID))

	release, err := s.lock(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer release()

	o, err := s.orders.Get(ctx, orgID, orderID)
	if err != nil {
		return nil, err
	}
	switch o.Status {
	case order.Completed:
	case order.Refunded:
		if _, _, err := s.reverse(ctx, o); err != nil {
			return nil, err
		}
		return nil, order.ErrAlreadyRefunded
	default:
		return nil, order.ErrNotRefundable
	}

	cancelled, revoked, err := s.reverse(ctx, o)
	if err != nil {
		return nil, err
	}

	now := s.now()
	moved, err := s.orders.Transition(ctx, orgID, orderID, order.Completed, order.Refunded, map[string]any{
		"refunded_at":   now,
		"refund_reason": strings.TrimSpace(req.Reason),
	})
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, order.ErrAlreadyRefunded
	}

	// A completion running unlocked may have issued tickets, attributed the order or
	// awarded points after the first pass.
	if latest, err := s.orders.Get(ctx, orgID, orderID); err == nil {
		o = latest
	}
	o.Status = order.Refunded
	more, lateRevoked, err := s.reverse(ctx, o)
	if err != nil {
		return nil, err
	}
	cancelled += more
	if revoked == 0 {
		revoked = lateRevoked
	}

	items, err := s.orders.Items(ctx, o.ID)
	if err != nil {
		zapLog.Error("refund applied but items unavailable, scheduling org sweep", zap.Error(err))
		s.scheduleSweep(ctx, o.OrgID)
	}
	s.settle(ctx, o, items, "refunded")

	zapLog.Info("order refunded", zap.Int64("tickets_cancelled", cancelled), zap.Int64("points_revoked", revoked))
	return &RefundResult{
		Success:          true,
		OrderID:          o.ID,
		TicketsCancelled: cancelled,
		PointsRevoked:    revoked,
		RefundedAt:       now,
	}, nil
}

// scheduleSweep hands the org to the worker's full reconciliation pass. Used when the
// ticket types an order touched cannot be determined.
func (s *Service) scheduleSweep(ctx context.Context, orgID string) {
	if s.asynq == nil {
		return
	}
	t, err := task.NewSweepTask(task.SweepPayload{OrgID: orgID})
	if err == nil {
		_, err = s.asynq.Enqueue(context.WithoutCancel(ctx), t, asynq.Unique(time.Minute))
	}
	if err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
		logger.FromContext(ctx).Error("failed to enqueue org sweep", zap.String("org_id", orgID), zap.Error(err))
	}
}
