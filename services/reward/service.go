package reward

import (
	"context"
	"strings"
	"time"

	"ticketing-commerce/pkg/celengine"
	"ticketing-commerce/pkg/db/option"
	"ticketing-commerce/pkg/errutil"
	"ticketing-commerce/pkg/logger"
	"ticketing-commerce/pkg/redis"
	"ticketing-commerce/pkg/rediskey"
	"ticketing-commerce/pkg/repository"
	"ticketing-commerce/services/ledger"
	"ticketing-commerce/services/rep"

	"github.com/bwmarrin/snowflake"
	"github.com/google/cel-go/cel"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const claimLockTTL = 10 * time.Second

var (
	ErrRewardNotFound  = errutil.BaseError{Code: errutil.StatusNotFound, Message: "reward not found"}
	ErrAlreadyClaimed  = errutil.BaseError{Code: errutil.StatusConflict, Message: "reward already claimed"}
	ErrCapExceeded     = errutil.BaseError{Code: errutil.StatusConflict, Message: "reward cap exceeded"}
	ErrNotAchieved     = errutil.BaseError{Code: errutil.StatusConflict, Message: "milestone not achieved"}
	ErrRewardInactive  = errutil.BaseError{Code: errutil.StatusConflict, Message: "reward is not active"}
	ErrConditionNotMet = errutil.BaseError{Code: errutil.StatusConflict, Message: "reward condition not met"}
	ErrClaimInProgress = errutil.BaseError{Code: errutil.StatusConflict, Message: "claim already in progress"}
)

// PointsSpender debits a rep's points for a redemption.
type PointsSpender interface {
	Spend(ctx context.Context, req ledger.SpendRequest) (int64, error)
}

type Service struct {
	node   *snowflake.Node
	points PointsSpender
	locker redis.Locker
	rules  *celengine.Evaluator

	rewards    repository.Repository[RepReward]
	milestones repository.Repository[RepMilestone]
	claims     repository.Repository[RepRewardClaim]
	reps       repository.Repository[rep.Rep]
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Points PointsSpender
	Locker redis.Locker `optional:"true"`
}

// NewRuleEvaluator declares the rep aggregates a reward condition may reference.
func NewRuleEvaluator() (*celengine.Evaluator, error) {
	return celengine.NewEvaluator(
		celengine.Variable{Name: "total_sales", Type: cel.IntType},
		celengine.Variable{Name: "total_revenue", Type: cel.DoubleType},
		celengine.Variable{Name: "points_balance", Type: cel.IntType},
		celengine.Variable{Name: "level", Type: cel.IntType},
	)
}

func NewService(p ServiceParams) (*Service, error) {
	rules, err := NewRuleEvaluator()
	if err != nil {
		return nil, err
	}

	return &Service{
		node:   p.Node,
		points: p.Points,
		locker: p.Locker,
		rules:  rules,

		rewards:    repository.ProvideStore[RepReward](p.DB),
		milestones: repository.ProvideStore[RepMilestone](p.DB),
		claims:     repository.ProvideStore[RepRewardClaim](p.DB),
		reps:       repository.ProvideStore[rep.Rep](p.DB),
	}, nil
}

func ruleInput(r *rep.Rep) map[string]any {
	revenue, _ := r.TotalRevenue.Float64()
	return map[string]any{
		"total_sales":    r.TotalSales,
		"total_revenue":  revenue,
		"points_balance": r.PointsBalance,
		"level":          int64(r.Level),
	}
}

func (s *Service) conditionMet(ctx context.Context, r *rep.Rep, reward *RepReward) bool {
	if strings.TrimSpace(reward.Condition) == "" {
		return true
	}
	ok, err := s.rules.Evaluate(reward.Condition, ruleInput(r))
	if err != nil {
		logger.FromContext(ctx).Warn("reward condition failed to evaluate",
			zap.String("reward_id", reward.ID), zap.Error(err))
		return false
	}
	return ok
}

func (s *Service) CreateReward(ctx context.Context, orgID string, req CreateRewardRequest) (*RepReward, *RepMilestone, error) {
	var details []errutil.Detail
	if req.RewardType == TypeMilestone && req.MilestoneType == "" {
		details = append(details, errutil.Detail{Field: "milestone_type", Message: "is required for milestone rewards"})
	}
	if req.RewardType == TypePointsShop && req.PointsCost <= 0 {
		details = append(details, errutil.Detail{Field: "points_cost", Message: "must be positive for points shop rewards"})
	}
	if req.Condition != "" {
		if err := s.rules.Validate(req.Condition); err != nil {
			details = append(details, errutil.Detail{Field: "condition", Message: err.Error()})
		}
	}
	if len(details) > 0 {
		return nil, nil, errutil.ValidationFailed("invalid reward", nil, errutil.WithDetails(details...))
	}

	reward := &RepReward{
		ID:             s.node.Generate().String(),
		OrgID:          orgID,
		Name:           strings.TrimSpace(req.Name),
		Description:    req.Description,
		RewardType:     req.RewardType,
		Status:         StatusActive,
		PointsCost:     req.PointsCost,
		TotalAvailable: req.TotalAvailable,
		Condition:      req.Condition,
	}
	if req.RewardType == TypeMilestone {
		reward.PointsCost = 0
	}

	var milestone *RepMilestone
	if req.RewardType == TypeMilestone {
		milestone = &RepMilestone{
			ID:            s.node.Generate().String(),
			OrgID:         orgID,
			RewardID:      reward.ID,
			MilestoneType: req.MilestoneType,
			Threshold:     req.Threshold,
		}
		// milestone first: a reward row without its milestone would be claimable by nobody
		if err := s.milestones.Create(ctx, milestone); err != nil {
			return nil, nil, errutil.Unavailable("failed to create milestone", err)
		}
	}

	if err := s.rewards.Create(ctx, reward); err != nil {
		return nil, nil, errutil.Unavailable("failed to create reward", err)
	}
	return reward, milestone, nil
}

func (s *Service) ListRewards(ctx context.Context, orgID string) ([]*RepReward, error) {
	rewards, err := s.rewards.Find(ctx, &RepReward{OrgID: orgID}, option.WithSortBy("id", option.ASC))
	if err != nil {
		return nil, errutil.Unavailable("failed to list rewards", err)
	}
	return rewards, nil
}

// Eligibility evaluates every active reward of the org for repID.
func (s *Service) Eligibility(ctx context.Context, orgID, repID string) ([]Eligibility, error) {
	r, err := s.getRep(ctx, orgID, repID)
	if err != nil {
		return nil, err
	}

	rewards, err := s.rewards.Find(ctx, &RepReward{OrgID: orgID, Status: StatusActive}, option.WithSortBy("id", option.ASC))
	if err != nil {
		return nil, errutil.Unavailable("failed to list rewards", err)
	}

	milestones, err := s.milestones.Find(ctx, &RepMilestone{OrgID: orgID})
	if err != nil {
		return nil, errutil.Unavailable("failed to list milestones", err)
	}
	byReward := make(map[string]*RepMilestone, len(milestones))
	for _, m := range milestones {
		byReward[m.RewardID] = m
	}

	claims, err := s.claims.Find(ctx, &RepRewardClaim{RepID: repID, Status: ClaimClaimed})
	if err != nil {
		return nil, errutil.Unavailable("failed to list claims", err)
	}

	out := make([]Eligibility, 0, len(rewards))
	for _, reward := range rewards {
		out = append(out, s.evaluate(ctx, r, reward, byReward[reward.ID], claims))
	}
	return out, nil
}

func (s *Service) evaluate(ctx context.Context, r *rep.Rep, reward *RepReward, milestone *RepMilestone, claims []*RepRewardClaim) Eligibility {
	e := Eligibility{
		RewardID:   reward.ID,
		Name:       reward.Name,
		RewardType: reward.RewardType,
		PointsCost: reward.PointsCost,
	}

	switch reward.RewardType {
	case TypeMilestone:
		if milestone != nil {
			p := MilestoneProgress(r, milestone, claims)
			e.Achieved = p.Achieved
			e.ProgressPercent = p.ProgressPercent
			e.Claimed = p.Claimed
		}
	case TypePointsShop:
		e.Achieved = r.PointsBalance >= reward.PointsCost
		e.ProgressPercent = Percent(decimal.NewFromInt(r.PointsBalance), decimal.NewFromInt(reward.PointsCost))
		e.Claimed = hasClaim(claims, func(c *RepRewardClaim) bool { return c.RewardID == reward.ID })
		e.CanPurchase = CanPurchase(r, reward)
	}

	e.CanClaim = CanClaim(r, reward, milestone, claims)
	if !s.conditionMet(ctx, r, reward) {
		e.CanClaim = false
		e.CanPurchase = false
	}
	return e
}

// Claim grants rewardID to repID. A redis lock collapses duplicate submissions; the
// invariants are kept by the conditional reserve on total_claimed and the unique
// (rep, milestone) index.
func (s *Service) Claim(ctx context.Context, orgID, repID, rewardID string) (*ClaimResult, error) {
	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, rediskey.BuildRewardClaimKey(repID, rewardID), claimLockTTL)
		if err != nil {
			logger.FromContext(ctx).Warn("claim lock unavailable, continuing without it", zap.Error(err))
		} else if !ok {
			return nil, ErrClaimInProgress
		} else {
			defer release(context.WithoutCancel(ctx))
		}
	}

	r, err := s.getRep(ctx, orgID, repID)
	if err != nil {
		return nil, err
	}
	if !r.IsActive() {
		return nil, errutil.Conflict("rep is inactive", nil)
	}

	reward, err := s.rewards.FindOne(ctx, &RepReward{ID: rewardID, OrgID: orgID})
	if err != nil {
		return nil, errutil.Unavailable("failed to get reward", err)
	}
	if reward == nil {
		return nil, ErrRewardNotFound
	}
	if reward.Status != StatusActive {
		return nil, ErrRewardInactive
	}

	switch reward.RewardType {
	case TypeMilestone:
		return s.claimMilestone(ctx, r, reward)
	case TypePointsShop:
		return s.purchase(ctx, r, reward)
	default:
		return nil, errutil.Internal("unknown reward type", nil)
	}
}

func (s *Service) claimMilestone(ctx context.Context, r *rep.Rep, reward *RepReward) (*ClaimResult, error) {
	milestone, err := s.milestones.FindOne(ctx, &RepMilestone{RewardID: reward.ID})
	if err != nil {
		return nil, errutil.Unavailable("failed to get milestone", err)
	}
	if milestone == nil {
		return nil, ErrRewardNotFound
	}

	claims, err := s.claims.Find(ctx, &RepRewardClaim{RepID: r.ID, MilestoneID: &milestone.ID})
	if err != nil {
		return nil, errutil.Unavailable("failed to list claims", err)
	}
	if len(claims) > 0 {
		return nil, ErrAlreadyClaimed
	}

	if !MilestoneProgress(r, milestone, claims).Achieved {
		return nil, ErrNotAchieved
	}
	if !s.conditionMet(ctx, r, reward) {
		return nil, ErrConditionNotMet
	}

	if err := s.reserve(ctx, reward); err != nil {
		return nil, err
	}

	claim := &RepRewardClaim{
		ID:          s.node.Generate().String(),
		OrgID:       r.OrgID,
		RepID:       r.ID,
		RewardID:    reward.ID,
		MilestoneID: &milestone.ID,
		ClaimType:   TypeMilestone,
		Status:      ClaimClaimed,
	}
	if err := s.claims.Create(ctx, claim); err != nil {
		s.releaseSlot(ctx, reward.ID)
		if repository.IsDuplicate(err) {
			return nil, ErrAlreadyClaimed.Wrap(err)
		}
		return nil, errutil.Unavailable("failed to record claim", err)
	}

	logger.FromContext(ctx).Info("milestone claimed",
		zap.String("rep_id", r.ID), zap.String("reward_id", reward.ID), zap.String("claim_id", claim.ID))
	return &ClaimResult{ClaimID: claim.ID}, nil
}

func (s *Service) purchase(ctx context.Context, r *rep.Rep, reward *RepReward) (*ClaimResult, error) {
	zapLog := logger.FromContext(ctx).With(zap.String("rep_id", r.ID), zap.String("reward_id", reward.ID))

	if reward.SoldOut() {
		return nil, ErrCapExceeded
	}
	if r.PointsBalance < reward.PointsCost {
		return nil, ledger.ErrInsufficientPoints
	}
	if !s.conditionMet(ctx, r, reward) {
		return nil, ErrConditionNotMet
	}

	if err := s.reserve(ctx, reward); err != nil {
		return nil, err
	}

	claim := &RepRewardClaim{
		ID:          s.node.Generate().String(),
		OrgID:       r.OrgID,
		RepID:       r.ID,
		RewardID:    reward.ID,
		ClaimType:   TypePointsShop,
		PointsSpent: reward.PointsCost,
		Status:      ClaimClaimed,
	}
	if err := s.claims.Create(ctx, claim); err != nil {
		s.releaseSlot(ctx, reward.ID)
		zapLog.Error("failed to record claim", zap.Error(err))
		return nil, errutil.Unavailable("failed to record claim", err)
	}

	balance, err := s.points.Spend(ctx, ledger.SpendRequest{
		RepID:       r.ID,
		OrgID:       r.OrgID,
		Points:      reward.PointsCost,
		Description: "redeemed " + reward.Name,
		SourceRef:   "claim:" + claim.ID,
	})
	if err != nil {
		zapLog.Warn("points debit failed, cancelling claim", zap.String("claim_id", claim.ID), zap.Error(err))
		s.releaseSlot(ctx, reward.ID)
		if _, cerr := s.claims.UpdateWhere(ctx, map[string]any{"status": ClaimCancelled},
			option.ApplyOperator("id = ? AND status = ?", claim.ID, ClaimClaimed)); cerr != nil {
			zapLog.Error("failed to cancel claim", zap.String("claim_id", claim.ID), zap.Error(cerr))
		}
		return nil, err
	}

	zapLog.Info("points shop reward claimed", zap.String("claim_id", claim.ID), zap.Int64("balance", balance))
	return &ClaimResult{ClaimID: claim.ID, NewBalance: &balance}, nil
}

// reserve takes one unit of the reward's cap in a single conditional update.
func (s *Service) reserve(ctx context.Context, reward *RepReward) error {
	n, err := s.rewards.UpdateWhere(ctx,
		map[string]any{"total_claimed": gorm.Expr("total_claimed + 1")},
		option.ApplyOperator("id = ? AND status = ? AND (total_available IS NULL OR total_claimed < total_available)",
			reward.ID, StatusActive),
	)
	if err != nil {
		return errutil.Unavailable("failed to reserve reward", err)
	}
	if n == 0 {
		return ErrCapExceeded
	}
	return nil
}

func (s *Service) releaseSlot(ctx context.Context, rewardID string) {
	_, err := s.rewards.UpdateWhere(context.WithoutCancel(ctx),
		map[string]any{"total_claimed": gorm.Expr("total_claimed - 1")},
		option.ApplyOperator("id = ? AND total_claimed > 0", rewardID),
	)
	if err != nil {
		logger.FromContext(ctx).Error("failed to release reward slot", zap.String("reward_id", rewardID), zap.Error(err))
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
