package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"ticketing-commerce/pkg/db/option"
	"ticketing-commerce/pkg/db/pagination"
	"ticketing-commerce/pkg/errutil"
	"ticketing-commerce/pkg/logger"
	"ticketing-commerce/pkg/repository"
	"ticketing-commerce/pkg/sequence"
	"ticketing-commerce/pkg/task"
	"ticketing-commerce/pkg/taskname"
	"ticketing-commerce/services/rep"

	"github.com/bwmarrin/snowflake"
	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrDuplicateSource    = errutil.BaseError{Code: errutil.StatusConflict, Message: "points already awarded for this source"}
	ErrInsufficientPoints = errutil.BaseError{Code: errutil.StatusConflict, Message: "insufficient points"}
)

type Service struct {
	db    *gorm.DB
	node  *snowflake.Node
	asynq task.Enqueuer

	ledger repository.Repository[PointsLedgerEntry]
	reps   repository.Repository[rep.Rep]
}

type ServiceParams struct {
	fx.In
	DB    *gorm.DB
	Node  *snowflake.Node
	Asynq task.Enqueuer
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:    p.DB,
		node:  p.Node,
		asynq: p.Asynq,

		ledger: repository.ProvideStore[PointsLedgerEntry](p.DB),
		reps:   repository.ProvideStore[rep.Rep](p.DB),
	}
}

func validateAward(req AwardRequest) error {
	var details []errutil.Detail
	if req.RepID == "" {
		details = append(details, errutil.Detail{Field: "rep_id", Message: "is required"})
	}
	if req.Points == 0 {
		details = append(details, errutil.Detail{Field: "points", Message: "must be non-zero"})
	}
	if strings.TrimSpace(req.Description) == "" {
		details = append(details, errutil.Detail{Field: "description", Message: "is required"})
	}
	if !req.SourceType.Valid() {
		details = append(details, errutil.Detail{Field: "source_type", Message: "is invalid"})
	}
	if req.SourceRef != nil && *req.SourceRef == "" {
		details = append(details, errutil.Detail{Field: "source_ref", Message: "must not be empty"})
	}
	if len(details) > 0 {
		return errutil.ValidationFailed("invalid points award", nil, errutil.WithDetails(details...))
	}
	return nil
}

// Award appends a ledger entry and then moves the cached balance by the same amount.
// The entry is written first; when the balance update fails the entry stands, a heal
// task is queued and the balance derived from the ledger is returned.
func (s *Service) Award(ctx context.Context, req AwardRequest) (int64, error) {
	zapLog := logger.FromContext(ctx).With(zap.String("rep_id", req.RepID), zap.String("source_type", string(req.SourceType)))

	if err := validateAward(req); err != nil {
		return 0, err
	}

	if _, err := s.getRep(ctx, req.OrgID, req.RepID); err != nil {
		return 0, err
	}

	if req.SourceRef != nil {
		exist, err := s.ledger.FindOne(ctx, &PointsLedgerEntry{RepID: req.RepID, SourceType: req.SourceType, SourceRef: req.SourceRef})
		if err != nil {
			zapLog.Error("failed to check ledger source", zap.Error(err))
			return 0, errutil.Unavailable("failed to check ledger source", err)
		}
		if exist != nil {
			return 0, ErrDuplicateSource
		}
	}

	if err := s.append(ctx, req); err != nil {
		if repository.IsDuplicate(err) {
			return 0, ErrDuplicateSource.Wrap(err)
		}
		zapLog.Error("failed to insert ledger entry", zap.Error(err))
		return 0, errutil.Unavailable("failed to insert ledger entry", err)
	}

	return s.applyDelta(ctx, req.OrgID, req.RepID, req.Points)
}

func (s *Service) append(ctx context.Context, req AwardRequest) error {
	correlationID, err := sequence.NewCorrelationID(time.Now())
	if err != nil {
		return err
	}

	return s.ledger.Create(ctx, &PointsLedgerEntry{
		ID:            s.node.Generate().String(),
		OrgID:         req.OrgID,
		RepID:         req.RepID,
		Points:        req.Points,
		SourceType:    req.SourceType,
		SourceRef:     req.SourceRef,
		Description:   strings.TrimSpace(req.Description),
		CreatedBy:     req.CreatedBy,
		CorrelationID: correlationID,
	})
}

func (s *Service) applyDelta(ctx context.Context, orgID, repID string, delta int64) (int64, error) {
	zapLog := logger.FromContext(ctx).With(zap.String("rep_id", repID))

	n, err := s.reps.UpdateWhere(ctx,
		map[string]any{"points_balance": gorm.Expr("points_balance + ?", delta)},
		option.ApplyOperator("id = ? AND org_id = ?", repID, orgID),
	)
	if err != nil || n == 0 {
		zapLog.Error("ledger entry written but balance update failed", zap.Int64("rows", n), zap.Error(err))
		s.scheduleHeal(ctx, orgID, repID, "balance_update_failed")
		return s.Sum(ctx, repID)
	}

	r, err := s.getRep(ctx, orgID, repID)
	if err != nil {
		return 0, err
	}
	return r.PointsBalance, nil
}

// Spend debits points for a redemption. The debit entry is written first, then the
// balance is decremented under a points_balance >= cost guard. When the guard rejects
// the decrement a compensating entry cancels the debit.
func (s *Service) Spend(ctx context.Context, req SpendRequest) (int64, error) {
	zapLog := logger.FromContext(ctx).With(zap.String("rep_id", req.RepID), zap.String("source_ref", req.SourceRef))

	if req.Points <= 0 {
		return 0, errutil.ValidationFailed("invalid points spend", nil,
			errutil.WithDetails(errutil.Detail{Field: "points", Message: "must be positive"}))
	}
	if req.SourceRef == "" {
		return 0, errutil.BadRequest("source_ref is required", nil)
	}

	debit := AwardRequest{
		RepID:       req.RepID,
		OrgID:       req.OrgID,
		Points:      -req.Points,
		SourceType:  SourceRedemption,
		Description: req.Description,
		SourceRef:   Ref(req.SourceRef),
	}
	if err := validateAward(debit); err != nil {
		return 0, err
	}

	if err := s.append(ctx, debit); err != nil {
		if repository.IsDuplicate(err) {
			return 0, ErrDuplicateSource.Wrap(err)
		}
		zapLog.Error("failed to insert redemption entry", zap.Error(err))
		return 0, errutil.Unavailable("failed to insert redemption entry", err)
	}

	n, err := s.reps.UpdateWhere(ctx,
		map[string]any{"points_balance": gorm.Expr("points_balance - ?", req.Points)},
		option.ApplyOperator("id = ? AND org_id = ? AND points_balance >= ?", req.RepID, req.OrgID, req.Points),
	)
	if err == nil && n == 1 {
		r, err := s.getRep(ctx, req.OrgID, req.RepID)
		if err != nil {
			return 0, err
		}
		return r.PointsBalance, nil
	}

	s.compensate(ctx, debit)
	if err != nil {
		zapLog.Error("failed to debit balance", zap.Error(err))
		return 0, errutil.Unavailable("failed to debit balance", err)
	}
	return 0, ErrInsufficientPoints
}

func (s *Service) compensate(ctx context.Context, debit AwardRequest) {
	reversal := AwardRequest{
		RepID:       debit.RepID,
		OrgID:       debit.OrgID,
		Points:      -debit.Points,
		SourceType:  SourceRedemption,
		Description: "reversal: " + debit.Description,
		SourceRef:   Ref(*debit.SourceRef + ":reversal"),
	}
	if err := s.append(ctx, reversal); err != nil {
		logger.FromContext(ctx).Error("failed to write compensating entry",
			zap.String("rep_id", debit.RepID), zap.String("source_ref", *debit.SourceRef), zap.Error(err))
		s.scheduleHeal(ctx, debit.OrgID, debit.RepID, "compensation_failed")
	}
}

// History lists entries newest first. It fetches one extra row to report has_more.
func (s *Service) History(ctx context.Context, orgID, repID string, page pagination.Pagination) ([]*PointsLedgerEntry, pagination.PageInfo, error) {
	page = page.Normalize()

	if _, err := s.getRep(ctx, orgID, repID); err != nil {
		return nil, pagination.PageInfo{}, err
	}

	entries, err := s.ledger.Find(ctx, &PointsLedgerEntry{OrgID: orgID, RepID: repID},
		option.WithSortBy("created_at", option.DESC),
		option.WithSortBy("id", option.DESC),
		option.ApplyPagination(pagination.Pagination{Limit: page.Limit + 1, Offset: page.Offset}),
	)
	if err != nil {
		return nil, pagination.PageInfo{}, errutil.Unavailable("failed to list ledger entries", err)
	}

	entries, info := pagination.BuildPageInfo(entries, page)
	return entries, info, nil
}

// Sum derives a rep's balance from the ledger.
func (s *Service) Sum(ctx context.Context, repID string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, repository.DefaultTimeout)
	defer cancel()

	var sum int64
	err := s.db.WithContext(ctx).
		Model(&PointsLedgerEntry{}).
		Where("rep_id = ?", repID).
		Select("COALESCE(SUM(points), 0)").
		Scan(&sum).Error
	if err != nil {
		return 0, errutil.Unavailable("failed to sum ledger", err)
	}
	return sum, nil
}

// FindBySource returns the entry recorded for (rep, source type, ref), or nil.
func (s *Service) FindBySource(ctx context.Context, repID string, sourceType SourceType, ref string) (*PointsLedgerEntry, error) {
	e, err := s.ledger.FindOne(ctx, &PointsLedgerEntry{RepID: repID, SourceType: sourceType, SourceRef: Ref(ref)})
	if err != nil {
		return nil, errutil.Unavailable("failed to load ledger entry", err)
	}
	return e, nil
}

// Heal overwrites the cached balance with the ledger sum.
func (s *Service) Heal(ctx context.Context, orgID, repID string) (int64, error) {
	sum, err := s.Sum(ctx, repID)
	if err != nil {
		return 0, err
	}

	n, err := s.reps.UpdateWhere(ctx, map[string]any{"points_balance": sum},
		option.ApplyOperator("id = ? AND org_id = ?", repID, orgID))
	if err != nil {
		return 0, errutil.Unavailable("failed to heal balance", err)
	}
	if n == 0 {
		return 0, rep.ErrRepNotFound
	}

	logger.FromContext(ctx).Info("rep balance healed", zap.String("rep_id", repID), zap.Int64("balance", sum))
	return sum, nil
}

func (s *Service) scheduleHeal(ctx context.Context, orgID, repID, reason string) {
	if s.asynq == nil {
		return
	}

	t, err := task.NewReconcileTask(taskname.LedgerHeal, task.ReconcilePayload{OrgID: orgID, EntityID: repID, Reason: reason})
	if err == nil {
		_, err = s.asynq.Enqueue(ctx, t)
	}
	if err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
		logger.FromContext(ctx).Error("failed to enqueue ledger heal", zap.String("rep_id", repID), zap.Error(err))
	}
}

func (s *Service) getRep(ctx context.Context, orgID, repID string) (*rep.Rep, error) {
	r, err := s.reps.FindOne(ctx, &rep.Rep{ID: repID, OrgID: orgID})
	if err != nil {
		return nil, errutil.Unavailable("failed to get rep", err)
	}
	if r == nil {
		return nil, rep.ErrRepNotFound
	}
	return r, nil
}
