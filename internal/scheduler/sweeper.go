// Package scheduler runs periodic maintenance jobs on gocron.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-booking/internal/activity"
)

// Expirer cancels stale pending bookings.
type Expirer interface {
	ExpirePending(ctx context.Context, olderThan time.Duration) (int, error)
}

// TokenPruner deletes refresh tokens that can no longer be used.
type TokenPruner interface {
	PruneStale(ctx context.Context, cutoff time.Time) (int, error)
}

// Sweeper cancels pending bookings whose payment window has passed and,
// when configured, prunes dead refresh tokens.
type Sweeper struct {
	expirer  Expirer
	pruner   TokenPruner
	grace    time.Duration
	ttl      time.Duration
	interval time.Duration
	timeout  time.Duration
	activity *activity.Logger
	log      *zap.Logger

	sched gocron.Scheduler
}

func NewSweeper(expirer Expirer, ttl, interval time.Duration, act *activity.Logger, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		expirer:  expirer,
		ttl:      ttl,
		interval: interval,
		timeout:  interval,
		activity: act,
		log:      log.Named("sweeper"),
	}
}

// PruneTokens adds an hourly job deleting refresh tokens expired or revoked
// for longer than grace. Call before Start.
func (s *Sweeper) PruneTokens(p TokenPruner, grace time.Duration) {
	s.pruner, s.grace = p, grace
}

// Start schedules the sweep every interval. Runs never overlap.
func (s *Sweeper) Start() error {
	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return fmt.Errorf("new scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.RunOnce),
		gocron.WithName("expire-pending-bookings"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("schedule sweep: %w", err)
	}
	if s.pruner != nil {
		_, err = sched.NewJob(
			gocron.DurationJob(time.Hour),
			gocron.NewTask(s.PruneOnce),
			gocron.WithName("prune-refresh-tokens"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = sched.Shutdown()
			return fmt.Errorf("schedule token prune: %w", err)
		}
	}
	sched.Start()
	s.sched = sched
	s.log.Info("pending booking sweeper started",
		zap.Duration("interval", s.interval), zap.Duration("ttl", s.ttl))
	return nil
}

// RunOnce performs a single sweep.
func (s *Sweeper) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	n, err := s.expirer.ExpirePending(ctx, s.ttl)
	if err != nil {
		s.log.Error("sweep failed", zap.Error(err))
		s.activity.LogError(activity.ActionSweepFailed, activity.Actor{}, err, activity.Details{})
		return
	}
	if n > 0 {
		s.log.Info("expired pending bookings", zap.Int("count", n))
		s.activity.LogSystem(activity.ActionSweep, map[string]any{"expired": n, "ttlSeconds": int64(s.ttl / time.Second)})
	}
}

// PruneOnce deletes stale refresh tokens once.
func (s *Sweeper) PruneOnce() {
	if s.pruner == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := s.pruner.PruneStale(ctx, time.Now().UTC().Add(-s.grace))
	if err != nil {
		s.log.Warn("token prune failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.log.Info("pruned refresh tokens", zap.Int("count", n))
	}
}

// Stop waits for a running sweep and shuts the scheduler down.
func (s *Sweeper) Stop() error {
	if s.sched == nil {
		return nil
	}
	return s.sched.Shutdown()
}
