package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pkgtask "ticketing-commerce/pkg/task"
	"ticketing-commerce/pkg/taskname"
	"ticketing-commerce/services/org"
	"ticketing-commerce/services/reconcile"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const sweepJob = "reconcile_sweep"

type BalanceHealer interface {
	Heal(ctx context.Context, orgID, repID string) (int64, error)
}

type OrgLister interface {
	List(ctx context.Context) ([]*org.Org, error)
}

// Service runs the worker side of reconciliation: retries deferred by the API, ledger
// heals, order notifications and the periodic sweep.
type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	asynq pkgtask.Enqueuer

	reconciler *reconcile.Service
	ledger     BalanceHealer
	orgs       OrgLister
	notifier   Notifier
}

type Params struct {
	fx.In
	DB    *gorm.DB
	Node  *snowflake.Node
	Asynq pkgtask.Enqueuer

	Reconciler *reconcile.Service
	Ledger     BalanceHealer
	Orgs       OrgLister
	Notifier   Notifier
}

func NewService(p Params) *Service {
	return &Service{
		db:    p.DB,
		node:  p.Node,
		asynq: p.Asynq,

		reconciler: p.Reconciler,
		ledger:     p.Ledger,
		orgs:       p.Orgs,
		notifier:   p.Notifier,
	}
}

// Register mounts every handler on mux.
func (s *Service) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(taskname.ReconcileTicketType, s.HandleReconcile)
	mux.HandleFunc(taskname.ReconcileCustomer, s.HandleReconcile)
	mux.HandleFunc(taskname.ReconcileRep, s.HandleReconcile)
	mux.HandleFunc(taskname.ReconcileDiscount, s.HandleReconcile)
	mux.HandleFunc(taskname.LedgerHeal, s.HandleLedgerHeal)
	mux.HandleFunc(taskname.OrderNotify, s.HandleOrderNotify)
	mux.HandleFunc(taskname.SweepOrg, s.HandleSweep)
}

func decode[T any](t *asynq.Task) (T, error) {
	var payload T
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		zap.L().Error("invalid task payload", zap.String("task_type", t.Type()), zap.Error(err))
		return payload, fmt.Errorf("decode %s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return payload, nil
}

// HandleReconcile recomputes the aggregate named by the task type. A returned error
// makes asynq retry with backoff.
func (s *Service) HandleReconcile(ctx context.Context, t *asynq.Task) error {
	p, err := decode[pkgtask.ReconcilePayload](t)
	if err != nil {
		return err
	}

	zapLog := zap.L().With(zap.String("task_type", t.Type()), zap.String("entity_id", p.EntityID), zap.String("reason", p.Reason))

	switch t.Type() {
	case taskname.ReconcileTicketType:
		_, err = s.reconciler.ReconcileTicketTypeSold(ctx, p.EntityID)
	case taskname.ReconcileCustomer:
		_, err = s.reconciler.ReconcileCustomerAggregates(ctx, p.EntityID)
	case taskname.ReconcileRep:
		_, err = s.reconciler.ReconcileRepAggregates(ctx, p.EntityID)
	case taskname.ReconcileDiscount:
		_, err = s.reconciler.ReconcileDiscountUsage(ctx, p.EntityID)
	default:
		return fmt.Errorf("unknown reconcile task %q: %w", t.Type(), asynq.SkipRetry)
	}
	if err != nil {
		zapLog.Error("reconcile retry failed", zap.Error(err))
		return err
	}

	zapLog.Info("reconcile retry succeeded")
	return nil
}

func (s *Service) HandleLedgerHeal(ctx context.Context, t *asynq.Task) error {
	p, err := decode[pkgtask.ReconcilePayload](t)
	if err != nil {
		return err
	}

	balance, err := s.ledger.Heal(ctx, p.OrgID, p.EntityID)
	if err != nil {
		zap.L().Error("ledger heal failed", zap.String("rep_id", p.EntityID), zap.Error(err))
		return err
	}

	zap.L().Info("ledger heal finished", zap.String("rep_id", p.EntityID), zap.Int64("balance", balance))
	return nil
}

func (s *Service) HandleOrderNotify(ctx context.Context, t *asynq.Task) error {
	p, err := decode[pkgtask.OrderNotifyPayload](t)
	if err != nil {
		return err
	}

	if err := s.notifier.OrderCompleted(ctx, p); err != nil {
		zap.L().Error("order notification failed", zap.String("order_id", p.OrderID), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) HandleSweep(ctx context.Context, t *asynq.Task) error {
	p, err := decode[pkgtask.SweepPayload](t)
	if err != nil {
		return err
	}

	zap.L().Info("Processing sweep task", zap.String("org_id", p.OrgID))
	return s.RunSweep(ctx, p.OrgID)
}

// RunSweep recomputes every aggregate of orgID and heals every rep balance, recording
// the run as a Job.
func (s *Service) RunSweep(ctx context.Context, orgID string) error {
	now := time.Now()
	job := Job{
		ID:        s.node.Generate().String(),
		Kind:      sweepJob,
		OrgID:     orgID,
		Status:    JobRunning,
		StartedAt: &now,
	}
	if err := s.db.WithContext(ctx).Create(&job).Error; err != nil {
		return err
	}

	report, err := s.reconciler.SweepOrg(ctx, orgID)
	if err == nil {
		for _, repID := range report.RepIDs {
			if _, herr := s.ledger.Heal(ctx, orgID, repID); herr != nil {
				report.Failed++
				zap.L().Warn("sweep heal failed", zap.String("org_id", orgID), zap.String("rep_id", repID), zap.Error(herr))
			}
		}
	}

	updates := map[string]any{
		"status":       JobSuccess,
		"completed_at": time.Now(),
	}
	if meta, merr := json.Marshal(report); merr == nil {
		updates["metadata"] = datatypes.JSON(meta)
	}
	if err != nil {
		updates["status"] = JobFailed
		updates["error_msg"] = err.Error()
	}
	if uerr := s.db.WithContext(ctx).Model(&Job{}).Where("id = ?", job.ID).Updates(updates).Error; uerr != nil {
		zap.L().Warn("failed to record sweep job", zap.String("job_id", job.ID), zap.Error(uerr))
	}

	if err != nil {
		zap.L().Error("sweep failed", zap.String("org_id", orgID), zap.Error(err))
		return err
	}

	zap.L().Info("sweep finished",
		zap.String("org_id", orgID),
		zap.Int("ticket_types", report.TicketTypes),
		zap.Int("customers", report.Customers),
		zap.Int("reps", report.Reps),
		zap.Int("discounts", report.Discounts),
		zap.Int("failed", report.Failed),
	)
	return nil
}

// EnqueueAllOrgSweeps queues one sweep per active org.
func (s *Service) EnqueueAllOrgSweeps(ctx context.Context) error {
	orgs, err := s.orgs.List(ctx)
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(8)
	for _, o := range orgs {
		g.Go(func() error {
			t, err := pkgtask.NewSweepTask(pkgtask.SweepPayload{OrgID: o.ID})
			if err != nil {
				return err
			}
			_, err = s.asynq.Enqueue(ctx, t, asynq.Unique(time.Minute))
			if err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
				zap.L().Error("failed enqueue sweep", zap.String("org_id", o.ID), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("finished enqueue all sweeps", zap.Int("total_orgs", len(orgs)))
	return nil
}
