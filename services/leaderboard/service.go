package leaderboard

import (
	"context"
	"encoding/json"
	"time"

	"ticketing-commerce/pkg/config"
	"ticketing-commerce/pkg/errutil"
	"ticketing-commerce/pkg/logger"
	"ticketing-commerce/pkg/redis"
	"ticketing-commerce/pkg/rediskey"
	"ticketing-commerce/services/rep"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const defaultTTL = 15 * time.Second

var (
	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{Name: "leaderboard_cache_hits_total"})
	cacheMiss = prometheus.NewCounter(prometheus.CounterOpts{Name: "leaderboard_cache_miss_total"})
)

var ErrLeaderboardDisabled = errutil.BaseError{Code: errutil.StatusNotFound, Message: "leaderboard is disabled"}

type RepSource interface {
	ListActive(ctx context.Context, orgID string) ([]*rep.Rep, error)
}

type SettingsSource interface {
	RepSettings(ctx context.Context, orgID string) (rep.Settings, error)
}

type Service struct {
	reps     RepSource
	settings SettingsSource
	cache    redis.Cache
	ttl      time.Duration
	group    singleflight.Group
}

type ServiceParams struct {
	fx.In
	Reps     RepSource
	Settings SettingsSource
	Cache    redis.Cache    `optional:"true"`
	Config   *config.Config `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	ttl := defaultTTL
	if p.Config != nil && p.Config.Commerce.LeaderboardTTL > 0 {
		ttl = p.Config.Commerce.LeaderboardTTL
	}
	return &Service{
		reps:     p.Reps,
		settings: p.Settings,
		cache:    p.Cache,
		ttl:      ttl,
	}
}

// RegisterMetrics exposes the cache counters on reg.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{cacheHits, cacheMiss} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}

func (s *Service) Leaderboard(ctx context.Context, orgID string) ([]Entry, error) {
	settings, err := s.settings.RepSettings(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if !settings.LeaderboardEnabled {
		return nil, ErrLeaderboardDisabled
	}

	key := rediskey.BuildLeaderboardKey(orgID)
	if ranked, ok := s.cached(ctx, key); ok {
		cacheHits.Inc()
		return ranked, nil
	}
	cacheMiss.Inc()

	v, err, _ := s.group.Do(key, func() (any, error) {
		reps, err := s.reps.ListActive(ctx, orgID)
		if err != nil {
			return nil, err
		}
		ranked := Rank(reps)
		s.store(ctx, key, ranked)
		return ranked, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Entry), nil
}

// Position returns the rep's entry, or ok=false when the rep is not ranked.
func (s *Service) Position(ctx context.Context, orgID, repID string) (Entry, bool, error) {
	ranked, err := s.Leaderboard(ctx, orgID)
	if err != nil {
		return Entry{}, false, err
	}
	pos, ok := PositionOf(repID, ranked)
	if !ok {
		return Entry{}, false, nil
	}
	return ranked[pos-1], true, nil
}

func (s *Service) cached(ctx context.Context, key string) ([]Entry, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil || !ok {
		if err != nil {
			logger.FromContext(ctx).Warn("leaderboard cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var ranked []Entry
	if err := json.Unmarshal(raw, &ranked); err != nil {
		return nil, false
	}
	return ranked, true
}

func (s *Service) store(ctx context.Context, key string, ranked []Entry) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(ranked)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
		logger.FromContext(ctx).Warn("leaderboard cache write failed", zap.Error(err))
	}
}

// Invalidate drops the cached ranking of orgID.
func (s *Service) Invalidate(ctx context.Context, orgID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, rediskey.BuildLeaderboardKey(orgID)); err != nil {
		logger.FromContext(ctx).Warn("leaderboard cache delete failed", zap.Error(err))
	}
}
