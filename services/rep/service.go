package rep

import (
	"context"
	"strings"

	"ticketing-commerce/pkg/db/option"
	"ticketing-commerce/pkg/errutil"
	"ticketing-commerce/pkg/logger"
	"ticketing-commerce/pkg/repository"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrRepNotFound = errutil.BaseError{Code: errutil.StatusNotFound, Message: "rep not found"}

type CreateRepRequest struct {
	UserID    string `json:"user_id" binding:"omitempty,max=64"`
	FirstName string `json:"first_name" binding:"required,max=80"`
	LastName  string `json:"last_name" binding:"omitempty,max=80"`
	Email     string `json:"email" binding:"required,email"`
}

type Service struct {
	node *snowflake.Node
	repo repository.Repository[Rep]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		node: p.Node,
		repo: repository.ProvideStore[Rep](p.DB),
	}
}

func (s *Service) Create(ctx context.Context, orgID string, req CreateRepRequest) (*Rep, error) {
	if strings.TrimSpace(req.FirstName) == "" {
		return nil, errutil.BadRequest("first_name is required", nil)
	}

	r := &Rep{
		ID:        s.node.Generate().String(),
		OrgID:     orgID,
		UserID:    req.UserID,
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Status:    StatusActive,
		Level:     1,
	}
	if err := s.repo.Create(ctx, r); err != nil {
		logger.FromContext(ctx).Error("failed to create rep", zap.String("org_id", orgID), zap.Error(err))
		return nil, errutil.Unavailable("failed to create rep", err)
	}
	return r, nil
}

// Get returns the rep only when it belongs to orgID.
func (s *Service) Get(ctx context.Context, orgID, repID string) (*Rep, error) {
	if repID == "" {
		return nil, errutil.BadRequest("rep_id is required", nil)
	}

	r, err := s.repo.FindOne(ctx, &Rep{ID: repID, OrgID: orgID})
	if err != nil {
		logger.FromContext(ctx).Error("failed to get rep", zap.String("rep_id", repID), zap.Error(err))
		return nil, errutil.Unavailable("failed to get rep", err)
	}
	if r == nil {
		return nil, ErrRepNotFound
	}
	return r, nil
}

func (s *Service) ListActive(ctx context.Context, orgID string) ([]*Rep, error) {
	reps, err := s.repo.Find(ctx, &Rep{OrgID: orgID, Status: StatusActive}, option.WithSortBy("id", option.ASC))
	if err != nil {
		return nil, errutil.Unavailable("failed to list reps", err)
	}
	return reps, nil
}

// SetStatus toggles a rep between active and inactive.
func (s *Service) SetStatus(ctx context.Context, orgID, repID, status string) (*Rep, error) {
	if status != StatusActive && status != StatusInactive {
		return nil, errutil.ValidationFailed("invalid status", nil,
			errutil.WithDetails(errutil.Detail{Field: "status", Message: "must be active or inactive"}))
	}

	n, err := s.repo.UpdateWhere(ctx, map[string]any{"status": status},
		option.ApplyOperator("id = ? AND org_id = ?", repID, orgID))
	if err != nil {
		return nil, errutil.Unavailable("failed to update rep", err)
	}
	if n == 0 {
		return nil, ErrRepNotFound
	}
	return s.Get(ctx, orgID, repID)
}
