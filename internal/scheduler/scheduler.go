// Package scheduler wires the periodic jobs: weekly universe refresh, the
// gate expiry sweep, and WAL maintenance.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a named unit of periodic work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

const jobTimeout = 30 * time.Minute

// Scheduler runs registered jobs on cron schedules.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  log.With().Str("module", "scheduler").Logger(),
	}
}

// Register schedules a job on a standard cron expression.
func (s *Scheduler) Register(spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.runJob(job)
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("job", job.Name()).Str("spec", spec).Msg("job registered")
	return nil
}

func (s *Scheduler) runJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	s.log.Info().Str("job", job.Name()).Msg("job started")

	if err := job.Run(ctx); err != nil {
		s.log.Error().Err(err).Str("job", job.Name()).
			Dur("duration", time.Since(start)).Msg("job failed")
		return
	}
	s.log.Info().Str("job", job.Name()).
		Dur("duration", time.Since(start)).Msg("job finished")
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")
}

// Stop halts the scheduler and waits for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("scheduler stopped")
}
