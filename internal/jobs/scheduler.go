package jobs

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const DefaultPurgeSchedule = "@every 10m"

// Purger removes expired client states.
type Purger interface {
	Purge(ctx context.Context) (int64, error)
}

// Scheduler runs the periodic maintenance jobs.
type Scheduler struct {
	cron     *cron.Cron
	schedule string
	purger   Purger
	log      logrus.FieldLogger
}

func NewScheduler(purger Purger, schedule string, logger logrus.FieldLogger) (*Scheduler, error) {
	if purger == nil {
		return nil, fmt.Errorf("purger is required")
	}
	if schedule == "" {
		schedule = DefaultPurgeSchedule
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("parse purge schedule %q: %w", schedule, err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scheduler{
		cron:     cron.New(),
		schedule: schedule,
		purger:   purger,
		log:      logger.WithField("component", "jobs"),
	}, nil
}

func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunPurge(ctx) }); err != nil {
		return fmt.Errorf("schedule purge: %w", err)
	}
	s.cron.Start()
	s.log.WithField("schedule", s.schedule).Info("scheduler started")
	return nil
}

// RunPurge runs one purge pass and returns the number of removed states.
func (s *Scheduler) RunPurge(ctx context.Context) int64 {
	n, err := s.purger.Purge(ctx)
	if err != nil {
		s.log.WithError(err).Error("purge expired client states failed")
		return 0
	}
	if n > 0 {
		s.log.WithField("purged", n).Info("expired client states purged")
	}
	return n
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}
