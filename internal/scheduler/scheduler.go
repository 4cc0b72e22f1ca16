// Package scheduler turns declarative time specs into recurring jobs. Each
// bot instance owns one Scheduler; stopping it cancels every job it holds.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// Scheduler manages the recurring jobs of one bot instance using gocron.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
	clock     clockwork.Clock

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	jobs    []gocron.Job
	running bool
	stopped bool
}

// JobInfo describes a registered job.
type JobInfo struct {
	Name    string    `json:"name"`
	NextRun time.Time `json:"next_run"`
}

// New creates a stopped scheduler. A nil clock uses the real clock and a nil
// location uses time.Local.
func New(logger *slog.Logger, clock clockwork.Clock, loc *time.Location) (*Scheduler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if loc == nil {
		loc = time.Local
	}
	log := logger.With("component", "scheduler")

	s, err := gocron.NewScheduler(
		gocron.WithClock(clock),
		gocron.WithLocation(loc),
		gocron.WithLogger(NewGocronLogger(log)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		scheduler: s,
		logger:    log,
		clock:     clock,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Add registers a job. The task receives a context that is cancelled when
// the scheduler stops. Every firing runs on its own goroutine, so a slow run
// never delays the next one.
func (s *Scheduler) Add(name string, def gocron.JobDefinition, task func(ctx context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}

	job, err := s.scheduler.NewJob(
		def,
		gocron.NewTask(func(jobName string) {
			ctx := s.ctx
			if ctx.Err() != nil {
				return
			}
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("Recovered from panic in scheduled job", "job_name", jobName, "panic", r)
				}
			}()
			s.logger.Debug("Running scheduled job", "job_name", jobName)
			startTime := s.clock.Now()
			task(ctx)
			s.logger.Debug("Finished scheduled job", "job_name", jobName, "duration", s.clock.Since(startTime))
		}, name),
		gocron.WithName(name),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	s.jobs = append(s.jobs, job)
	return nil
}

// AddDaily registers a job firing every day at hour:minute, or only on the
// given weekdays when any are set.
func (s *Scheduler) AddDaily(name string, hour, minute int, days []time.Weekday, task func(ctx context.Context)) error {
	at := gocron.NewAtTimes(gocron.NewAtTime(uint(hour), uint(minute), 0))

	def := gocron.DailyJob(1, at)
	if len(days) > 0 {
		def = gocron.WeeklyJob(1, gocron.NewWeekdays(days[0], days[1:]...), at)
	}
	return s.Add(name, def, task)
}

// AddCron registers a job on a five-field cron expression.
func (s *Scheduler) AddCron(name, expr string, task func(ctx context.Context)) error {
	return s.Add(name, gocron.CronJob(expr, false), task)
}

// Start begins firing jobs.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return fmt.Errorf("scheduler is stopped")
	}
	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	s.scheduler.Start()
	s.running = true
	s.logger.Info("Scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop cancels every job and waits for running ones to return. After Stop
// returns no job fires again. It is safe to call more than once.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return nil
	}
	s.stopped = true
	s.cancel()

	err := s.scheduler.Shutdown()
	if err != nil {
		s.logger.Error("Error during scheduler shutdown", "error", err)
	} else {
		s.logger.Info("Scheduler stopped", "jobs", len(s.jobs))
	}
	s.running = false
	return err
}

// Jobs lists the registered jobs and their next run.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		info := JobInfo{Name: j.Name()}
		if next, err := j.NextRun(); err == nil {
			info.NextRun = next
		}
		out = append(out, info)
	}
	return out
}
