package featureflags

import (
	"context"

	"ticketing-commerce/pkg/config"

	"github.com/Flagsmith/flagsmith-go-client/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Flag names evaluated by the commerce services.
const (
	RepPointsOnSale = "rep_points_on_sale"
)

var Module = fx.Module("featureflags", fx.Provide(ProvideFeatureFlag))

type FeatureFlag interface {
	// Enabled evaluates flag for identifier (an org id) and returns fallback when
	// flags are not configured or cannot be fetched.
	Enabled(ctx context.Context, identifier, flag string, fallback bool) bool
}

type featureflag struct {
	client *flagsmith.Client
}

type FeatureParams struct {
	fx.In
	Config *config.Config
}

func ProvideFeatureFlag(p FeatureParams) FeatureFlag {
	if p.Config.Flagsmith.ApiKey == "" {
		return &featureflag{}
	}

	opts := []flagsmith.Option{
		flagsmith.WithAnalytics(),
	}
	if p.Config.Flagsmith.Addr != "" {
		opts = append(opts, flagsmith.WithBaseURL(p.Config.Flagsmith.Addr))
	}

	return &featureflag{
		client: flagsmith.NewClient(p.Config.Flagsmith.ApiKey, opts...),
	}
}

func (s *featureflag) Enabled(ctx context.Context, identifier, flag string, fallback bool) bool {
	if s.client == nil {
		return fallback
	}

	flags, err := s.client.GetIdentityFlags(identifier, nil)
	if err != nil {
		zap.L().Warn("failed to fetch feature flags", zap.String("identifier", identifier), zap.Error(err))
		return fallback
	}

	enabled, err := flags.IsFeatureEnabled(flag)
	if err != nil {
		return fallback
	}
	return enabled
}

// Static is a fixed flag set, used when flagsmith is not wired and in tests.
type Static map[string]bool

func (s Static) Enabled(_ context.Context, _, flag string, fallback bool) bool {
	if v, ok := s[flag]; ok {
		return v
	}
	return fallback
}
