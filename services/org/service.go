package org

import (
	"context"
	"encoding/json"
	"strings"

	"ticketing-commerce/pkg/errutil"
	"ticketing-commerce/pkg/logger"
	"ticketing-commerce/pkg/repository"
	"ticketing-commerce/pkg/sequence"
	"ticketing-commerce/services/rep"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const codeMaxLength = 8

var (
	ErrOrgNotFound = errutil.BaseError{Code: errutil.StatusNotFound, Message: "org not found"}
	ErrOrgExists   = errutil.BaseError{Code: errutil.StatusConflict, Message: "org already exists"}
)

type Service struct {
	node *snowflake.Node
	repo repository.Repository[Org]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	return &Service{
		node: p.Node,
		repo: repository.ProvideStore[Org](p.DB),
	}
}

// CodeFromSlug derives the identifier prefix of an org from its slug.
func CodeFromSlug(s string) string {
	code := sequence.NormalizePrefix(strings.ReplaceAll(s, "-", ""))
	if len(code) > codeMaxLength {
		code = code[:codeMaxLength]
	}
	return code
}

func (s *Service) Create(ctx context.Context, req CreateOrgRequest) (*Org, error) {
	zapLog := logger.FromContext(ctx)

	if strings.TrimSpace(req.Name) == "" {
		return nil, errutil.BadRequest("name is required", nil)
	}

	slugName := slug.Make(req.Slug)
	if slugName == "" {
		slugName = slug.Make(req.Name)
	}

	code := sequence.NormalizePrefix(req.Code)
	if code == "" {
		code = CodeFromSlug(slugName)
	}
	if code == "" || len(code) > codeMaxLength {
		return nil, errutil.ValidationFailed("invalid org code", nil,
			errutil.WithDetails(errutil.Detail{Field: "code", Message: "must be 1-8 letters or digits"}))
	}

	exist, err := s.repo.FindOne(ctx, &Org{Slug: slugName})
	if err != nil {
		zapLog.Error("failed query get org by slug", zap.Error(err))
		return nil, errutil.Unavailable("failed to check existing org", err)
	}
	if exist != nil {
		return nil, ErrOrgExists
	}

	org := &Org{
		ID:     s.node.Generate().String(),
		Name:   strings.TrimSpace(req.Name),
		Slug:   slugName,
		Code:   code,
		Status: Active,
	}
	if err := s.repo.Create(ctx, org); err != nil {
		if repository.IsDuplicate(err) {
			return nil, ErrOrgExists.Wrap(err)
		}
		zapLog.Error("failed to create org", zap.Error(err))
		return nil, errutil.Unavailable("failed to create org", err)
	}

	zapLog.Info("org created", zap.String("org_id", org.ID), zap.String("code", org.Code))
	return org, nil
}

func (s *Service) Get(ctx context.Context, orgID string) (*Org, error) {
	if orgID == "" {
		return nil, errutil.BadRequest("org_id is required", nil)
	}

	org, err := s.repo.FindOne(ctx, &Org{ID: orgID})
	if err != nil {
		logger.FromContext(ctx).Error("failed to get org", zap.String("org_id", orgID), zap.Error(err))
		return nil, errutil.Unavailable("failed to get org", err)
	}
	if org == nil {
		return nil, ErrOrgNotFound
	}
	return org, nil
}

func (s *Service) List(ctx context.Context) ([]*Org, error) {
	orgs, err := s.repo.Find(ctx, &Org{Status: Active})
	if err != nil {
		return nil, errutil.Unavailable("failed to list orgs", err)
	}
	return orgs, nil
}

// Prefix returns the identifier prefix of orgID.
func (s *Service) Prefix(ctx context.Context, orgID string) (string, error) {
	org, err := s.Get(ctx, orgID)
	if err != nil {
		return "", err
	}
	return org.Code, nil
}

// RepSettings returns the rep program settings of orgID with defaults filled in.
func (s *Service) RepSettings(ctx context.Context, orgID string) (rep.Settings, error) {
	org, err := s.Get(ctx, orgID)
	if err != nil {
		return rep.Settings{}, err
	}

	partial, err := rep.ParseSettings(org.RepSettings)
	if err != nil {
		// stored settings predate a validation rule; serve defaults rather than fail sales
		logger.FromContext(ctx).Warn("invalid stored rep settings", zap.String("org_id", orgID), zap.Error(err))
		return rep.DefaultSettings(), nil
	}
	return rep.MergeWithDefaults(partial), nil
}

// UpdateRepSettings merges the keys present in raw over the stored settings.
func (s *Service) UpdateRepSettings(ctx context.Context, orgID string, raw []byte) (rep.Settings, error) {
	zapLog := logger.FromContext(ctx).With(zap.String("org_id", orgID))

	patch, err := rep.ParseSettings(raw)
	if err != nil {
		return rep.Settings{}, err
	}

	org, err := s.Get(ctx, orgID)
	if err != nil {
		return rep.Settings{}, err
	}

	stored, err := rep.ParseSettings(org.RepSettings)
	if err != nil {
		zapLog.Warn("discarding invalid stored rep settings", zap.Error(err))
		stored = rep.PartialSettings{}
	}

	merged := stored.Overlay(patch)
	doc, err := json.Marshal(merged)
	if err != nil {
		return rep.Settings{}, errutil.Internal("failed to encode rep settings", err)
	}

	if err := s.repo.Update(ctx, orgID, map[string]any{"rep_settings": datatypes.JSON(doc)}); err != nil {
		zapLog.Error("failed to update rep settings", zap.Error(err))
		return rep.Settings{}, errutil.Unavailable("failed to update rep settings", err)
	}

	return rep.MergeWithDefaults(merged), nil
}
