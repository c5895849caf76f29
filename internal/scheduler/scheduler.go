// Package scheduler runs the engine's periodic background jobs (the
// engine registers one, a query-cache sweep) on robfig/cron, independent of the request-path suspension points
// spec.md §5 enumerates.
package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/nexusmem/memengine/infrastructure/logging"
)

// Job is a named periodic task.
type Job struct {
	Name string
	Spec string // 5-field cron expression or a descriptor such as "@every 10m"
	Run  func(ctx context.Context) error
}

// Scheduler wraps a cron.Cron, logging each job's outcome.
type Scheduler struct {
	cron *cron.Cron
	log  *logging.Logger
}

// New creates a Scheduler.
func New(log *logging.Logger) *Scheduler {
	return &Scheduler{cron: cron.New(), log: log}
}

// AddJob registers j with the scheduler. It returns an error if j.Spec
// is not a valid cron expression.
func (s *Scheduler) AddJob(ctx context.Context, j Job) error {
	_, err := s.cron.AddFunc(j.Spec, func() {
		if err := j.Run(ctx); err != nil && s.log != nil {
			s.log.WithError(err).WithField("job", j.Name).Warn("scheduled job failed")
		}
	})
	return err
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler, blocking until any in-flight job finishes.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
