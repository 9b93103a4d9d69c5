package scheduler

import (
	"log"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/aqwatch/air-quality-aggregation/internal/cache"
	"github.com/aqwatch/air-quality-aggregation/internal/geo"
)

// Scheduler runs the background maintenance jobs: the cache sweep that
// bounds memory and the wholesale site registry refresh. Neither job is
// needed for correctness; both only keep long-running processes tidy.
type Scheduler struct {
	scheduler *gocron.Scheduler

	cache      *cache.Cache
	sweepEvery time.Duration
	sweepGrace time.Duration

	registry     *geo.Registry
	refreshEvery time.Duration
}

// New creates a Scheduler. A zero interval disables the matching job.
func New(c *cache.Cache, sweepEvery, sweepGrace time.Duration, registry *geo.Registry, refreshEvery time.Duration) *Scheduler {
	return &Scheduler{
		scheduler:    gocron.NewScheduler(time.UTC),
		cache:        c,
		sweepEvery:   sweepEvery,
		sweepGrace:   sweepGrace,
		registry:     registry,
		refreshEvery: refreshEvery,
	}
}

// Start schedules the jobs and starts the underlying scheduler.
func (s *Scheduler) Start() error {
	if s.cache != nil && s.sweepEvery > 0 {
		_, err := s.scheduler.Every(s.sweepEvery).Do(func() {
			if removed := s.cache.Sweep(s.sweepGrace); removed > 0 {
				log.Printf("scheduler: swept %d expired cache entries", removed)
			}
		})
		if err != nil {
			return err
		}
	}

	if s.registry != nil && s.refreshEvery > 0 {
		_, err := s.scheduler.Every(s.refreshEvery).Do(func() {
			if err := s.registry.Refresh(); err != nil {
				log.Printf("scheduler: site registry refresh failed: %v", err)
			}
		})
		if err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
