// Package jobs runs the service's periodic maintenance.
package jobs

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/dukerupert/freelancequest/internal/level"
)

const rateLimitCleanupInterval = 5 * time.Minute

// LevelRepairer raises stored levels that lag behind the curve.
type LevelRepairer interface {
	RepairLevels(curve level.Table) (int, error)
}

// Cleaner drops expired rate limiter windows.
type Cleaner interface {
	Cleanup() int
}

type Config struct {
	Curve               level.Table
	LevelRepairInterval time.Duration
}

// Scheduler owns the gocron scheduler and its jobs.
type Scheduler struct {
	sched  gocron.Scheduler
	logger *slog.Logger
}

// New registers the level repair and rate limiter cleanup jobs. The
// scheduler does not run until Start.
func New(cfg Config, profiles LevelRepairer, limiter Cleaner, logger *slog.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	s := &Scheduler{sched: sched, logger: logger}

	if _, err := sched.NewJob(
		gocron.DurationJob(cfg.LevelRepairInterval),
		gocron.NewTask(s.repairLevels, profiles, cfg.Curve),
		gocron.WithName("level_repair"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	); err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule level repair: %w", err)
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(rateLimitCleanupInterval),
		gocron.NewTask(s.cleanupRateLimits, limiter),
		gocron.WithName("rate_limit_cleanup"),
	); err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule rate limit cleanup: %w", err)
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
	s.logger.Info("scheduler started", "jobs", len(s.sched.Jobs()))
}

// Shutdown stops the scheduler and waits for running jobs.
func (s *Scheduler) Shutdown() error {
	return s.sched.Shutdown()
}

func (s *Scheduler) repairLevels(profiles LevelRepairer, curve level.Table) {
	n, err := profiles.RepairLevels(curve)
	if err != nil {
		s.logger.Error("level repair failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("levels repaired", "profiles", n)
	}
}

func (s *Scheduler) cleanupRateLimits(limiter Cleaner) {
	if n := limiter.Cleanup(); n > 0 {
		s.logger.Debug("rate limit windows expired", "removed", n)
	}
}
