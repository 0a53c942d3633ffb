package discount

import (
	"context"
	"strings"

	"ticketing-commerce/pkg/db/option"
	"ticketing-commerce/pkg/errutil"
	"ticketing-commerce/pkg/logger"
	"ticketing-commerce/pkg/repository"
	"ticketing-commerce/pkg/sequence"
	"ticketing-commerce/services/rep"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrDiscountNotFound = errutil.BaseError{Code: errutil.StatusNotFound, Message: "discount code not found"}

// SettingsSource resolves the rep program settings of an org.
type SettingsSource interface {
	RepSettings(ctx context.Context, orgID string) (rep.Settings, error)
}

type Service struct {
	node     *snowflake.Node
	issuer   *sequence.Issuer
	settings SettingsSource

	repo repository.Repository[Discount]
	reps repository.Repository[rep.Rep]
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Issuer   *sequence.Issuer
	Settings SettingsSource
}

func NewService(p ServiceParams) *Service {
	return &Service{
		node:     p.Node,
		issuer:   p.Issuer,
		settings: p.Settings,

		repo: repository.ProvideStore[Discount](p.DB),
		reps: repository.ProvideStore[rep.Rep](p.DB),
	}
}

// IssueRepDiscount returns the rep's active discount, creating one with a fresh code
// when the rep has none.
func (s *Service) IssueRepDiscount(ctx context.Context, orgID, repID string, req IssueDiscountRequest) (*Discount, error) {
	zapLog := logger.FromContext(ctx).With(zap.String("org_id", orgID), zap.String("rep_id", repID))

	r, err := s.reps.FindOne(ctx, &rep.Rep{ID: repID, OrgID: orgID})
	if err != nil {
		return nil, errutil.Unavailable("failed to get rep", err)
	}
	if r == nil {
		return nil, rep.ErrRepNotFound
	}
	if !r.IsActive() {
		return nil, errutil.Conflict("rep is inactive", nil)
	}

	exist, err := s.repo.FindOne(ctx, &Discount{OrgID: orgID, RepID: &repID, Status: StatusActive}, option.WithSortBy("created_at", option.ASC))
	if err != nil {
		return nil, errutil.Unavailable("failed to check rep discount", err)
	}
	if exist != nil {
		return exist, nil
	}

	settings, err := s.settings.RepSettings(ctx, orgID)
	if err != nil {
		return nil, err
	}

	var created *Discount
	_, err = s.issuer.IssueDiscountCode(ctx, settings.DiscountPrefix, r.FirstName, func(ctx context.Context, code string) error {
		d := &Discount{
			ID:                 s.node.Generate().String(),
			OrgID:              orgID,
			Code:               code,
			RepID:              &repID,
			Type:               settings.DiscountType,
			Value:              settings.DiscountValue,
			ApplicableEventIDs: datatypes.JSONSlice[string](req.ApplicableEventIDs),
			Status:             StatusActive,
		}
		if err := s.repo.Create(ctx, d); err != nil {
			return err
		}
		created = d
		return nil
	})
	if err != nil {
		zapLog.Error("failed to issue discount code", zap.Error(err))
		if errutil.StatusOf(err) != errutil.StatusUnknown {
			return nil, err
		}
		return nil, errutil.Unavailable("failed to issue discount code", err)
	}

	zapLog.Info("rep discount issued", zap.String("code", created.Code))
	return created, nil
}

// Resolve looks up an active discount by code, case-insensitively.
func (s *Service) Resolve(ctx context.Context, orgID, code string) (*Discount, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, errutil.BadRequest("discount code is required", nil)
	}

	d, err := s.repo.FindOne(ctx, &Discount{OrgID: orgID, Code: code})
	if err != nil {
		return nil, errutil.Unavailable("failed to resolve discount code", err)
	}
	if d == nil || d.Status != StatusActive {
		return nil, ErrDiscountNotFound
	}
	return d, nil
}

func (s *Service) Get(ctx context.Context, orgID, discountID string) (*Discount, error) {
	d, err := s.repo.FindOne(ctx, &Discount{ID: discountID, OrgID: orgID})
	if err != nil {
		return nil, errutil.Unavailable("failed to get discount", err)
	}
	if d == nil {
		return nil, ErrDiscountNotFound
	}
	return d, nil
}
