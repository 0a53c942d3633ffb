package task

import (
	"context"
	"time"

	"ticketing-commerce/pkg/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultSweepInterval = time.Hour

type Scheduler struct {
	service  *Service
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewScheduler(svc *Service, cfg *config.Config) *Scheduler {
	interval := defaultSweepInterval
	if cfg != nil && cfg.Commerce.SweepInterval > 0 {
		interval = cfg.Commerce.SweepInterval
	}
	return &Scheduler{service: svc, interval: interval}
}

// StartScheduler runs the sweep loop for the lifetime of the fx app.
func StartScheduler(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			s.cancel = cancel
			s.done = make(chan struct{})
			go s.run(ctx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			s.cancel()
			select {
			case <-s.done:
			case <-ctx.Done():
			}
			return nil
		},
	})
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	zap.L().Info("[Scheduler] started reconciliation sweep scheduler", zap.Duration("interval", s.interval))

	for {
		now := time.Now()
		next := nextRunTime(now, s.interval)

		sleepDuration := next.Sub(now)
		zap.L().Info("[Scheduler] next run scheduled",
			zap.Time("next_run", next),
			zap.Duration("sleep_for", sleepDuration),
		)
		select {
		case <-time.After(sleepDuration):
			s.runOnce(ctx)
		case <-ctx.Done():
			zap.L().Warn("[Scheduler] stopped")
			return
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()
	zap.L().Info("[Scheduler] Running sweep enqueue job")

	if err := s.service.EnqueueAllOrgSweeps(ctx); err != nil {
		zap.L().Error("[Scheduler] failed enqueue all orgs", zap.Error(err))
		return
	}

	zap.L().Info("[Scheduler] Finished enqueue all orgs",
		zap.Duration("duration", time.Since(start)),
	)
}

// nextRunTime returns the next boundary of interval after now.
func nextRunTime(now time.Time, interval time.Duration) time.Time {
	return now.Truncate(interval).Add(interval)
}
