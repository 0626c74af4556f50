// Package scheduler runs recurring maintenance jobs aligned to wall-clock
// boundaries.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"
)

// Job is one scheduled unit of work.
type Job struct {
	Name string
	// Hour and Minute give the local time of day for daily jobs. Interval
	// jobs leave them at -1 and set Every instead.
	Hour   int
	Minute int
	Every  time.Duration
	// RunAtStartup runs the job once immediately when the scheduler
	// starts, before its first scheduled occurrence.
	RunAtStartup bool
	Run          func(ctx context.Context) error
}

// Scheduler owns a set of jobs and runs each on its own timer.
type Scheduler struct {
	loc  *time.Location
	jobs []*Job
	wg   sync.WaitGroup
}

// New creates a Scheduler resolving daily times in the given location.
func New(loc *time.Location) *Scheduler {
	return &Scheduler{loc: loc}
}

// Daily registers a job that runs every day at the given local time.
func (s *Scheduler) Daily(name string, hour, minute int, runAtStartup bool, run func(ctx context.Context) error) {
	s.jobs = append(s.jobs, &Job{
		Name: name, Hour: hour, Minute: minute,
		RunAtStartup: runAtStartup, Run: run,
	})
}

// Every registers a job that runs on a fixed interval, aligned so the first
// run lands on an interval boundary.
func (s *Scheduler) Every(name string, interval time.Duration, run func(ctx context.Context) error) {
	s.jobs = append(s.jobs, &Job{Name: name, Hour: -1, Minute: -1, Every: interval, Run: run})
}

// Start launches a goroutine per job. Jobs stop when the context is
// cancelled; Wait blocks until they all return.
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go func(job *Job) {
			defer s.wg.Done()
			s.runLoop(ctx, job)
		}(job)
	}
}

// Wait blocks until every job goroutine has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, job *Job) {
	if job.RunAtStartup {
		s.runOnce(ctx, job)
	}

	for {
		next := s.nextRun(job, time.Now().In(s.loc))
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job *Job) {
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		log.Printf("Job %s failed: %v", job.Name, err)
		return
	}
	log.Printf("Job %s completed in %v", job.Name, time.Since(start).Round(time.Millisecond))
}

// nextRun returns the first occurrence of the job strictly after now.
func (s *Scheduler) nextRun(job *Job, now time.Time) time.Time {
	if job.Every > 0 {
		return now.Truncate(job.Every).Add(job.Every)
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), job.Hour, job.Minute, 0, 0, s.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
