// Package maintenance runs periodic housekeeping for the API process
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RunPruner defines methods for removing old pipeline runs
type RunPruner interface {
	// DeleteFinishedBefore removes finished runs older than before
	//
	// Returns the number of removed runs.
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}

// CachePurger is implemented by caches that keep expired entries in memory
type CachePurger interface {
	Purge() int
}

// Scheduler manages periodic housekeeping
type Scheduler struct {
	cron      *cron.Cron
	runs      RunPruner
	cache     CachePurger
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewScheduler creates a scheduler that runs housekeeping on the given cron schedule.
// cache may be nil when the configured cache expires entries by itself.
func NewScheduler(schedule string, retention time.Duration, runs RunPruner, cache CachePurger, logger *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:      cron.New(),
		runs:      runs,
		cache:     cache,
		retention: retention,
		logger:    logger,
		now:       time.Now,
	}

	if _, err := s.cron.AddFunc(schedule, func() { s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid maintenance schedule %q: %w", schedule, err)
	}

	return s, nil
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("Maintenance scheduler started")
}

// Stop stops the scheduler and waits for a running pass to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Maintenance scheduler stopped")
}

// RunOnce executes one housekeeping pass
func (s *Scheduler) RunOnce(ctx context.Context) {
	if s.cache != nil {
		if removed := s.cache.Purge(); removed > 0 {
			s.logger.Debug("Purged expired cache entries", zap.Int("count", removed))
		}
	}

	if s.retention <= 0 {
		return
	}
	deleted, err := s.runs.DeleteFinishedBefore(ctx, s.now().Add(-s.retention))
	if err != nil {
		s.logger.Error("Failed to prune pipeline runs", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.logger.Info("Pruned pipeline runs", zap.Int64("count", deleted))
	}
}
