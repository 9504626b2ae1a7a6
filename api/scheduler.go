/*
scheduler.go - Cron scheduler for engine jobs

PURPOSE:
  Runs the registered jobs (challenge generation, decay, king
  recalculation, reward and challenge expiry) on cron schedules.

DESIGN:
  - One gocron job per registry job, named after it
  - Singleton mode: a run that is still going when the next tick fires
    is rescheduled rather than started twice in this process
  - Cron expressions are evaluated in the engine's timezone
  - An empty expression leaves the job unscheduled (still runnable via
    POST /api/jobs/{name})

  Singleton mode does not coordinate across processes. Run a single
  scheduler per database.

USAGE:
  s, err := NewScheduler(handler.Jobs, specs, loc)
  s.Start()
  // ... later
  s.Stop()

SEE ALSO:
  - jobs/registry.go: Job definitions
  - config/config.go: CAPTURE_CRON_* defaults
*/
package api

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/warp/capture-engine/config"
	"github.com/warp/capture-engine/jobs"
)

// Scheduler runs registry jobs on cron schedules.
type Scheduler struct {
	registry *jobs.Registry
	sched    gocron.Scheduler
	specs    map[string]string
	jobs     map[string]gocron.Job
}

// SpecsFromConfig maps job names to their configured cron expressions.
func SpecsFromConfig(c config.Schedules) map[string]string {
	return map[string]string{
		jobs.GenerateDaily:   c.DailyChallenges,
		jobs.GenerateWeekly:  c.WeeklyChallenges,
		jobs.GenerateMonthly: c.MonthlyChallenges,
		jobs.ApplyDecay:      c.Decay,
		jobs.RecalcKings:     c.Kings,
		jobs.ExpireRewards:   c.ExpireRewards,
		jobs.ExpireSeason:    c.ExpireSeason,
		jobs.ExpireChallenge: c.ExpireChallenges,
	}
}

// NewScheduler registers every job that has a non-empty spec.
func NewScheduler(registry *jobs.Registry, specs map[string]string, loc *time.Location) (*Scheduler, error) {
	if loc == nil {
		loc = time.Local
	}
	sched, err := gocron.NewScheduler(gocron.WithLocation(loc))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	s := &Scheduler{
		registry: registry,
		sched:    sched,
		specs:    make(map[string]string),
		jobs:     make(map[string]gocron.Job),
	}

	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := specs[name]
		if spec == "" {
			continue
		}
		if _, ok := registry.Get(name); !ok {
			sched.Shutdown()
			return nil, fmt.Errorf("unknown job %q", name)
		}
		j, err := sched.NewJob(
			gocron.CronJob(spec, false),
			gocron.NewTask(s.task(name)),
			gocron.WithName(name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			sched.Shutdown()
			return nil, fmt.Errorf("failed to schedule %s (%q): %w", name, spec, err)
		}
		s.specs[name] = spec
		s.jobs[name] = j
	}
	return s, nil
}

func (s *Scheduler) task(name string) func() {
	return func() {
		start := time.Now()
		res := s.registry.Run(context.Background(), name, jobs.Input{})
		if res.Failed() {
			log.Printf("[Scheduler] %s failed after %v: %s", name, time.Since(start), res.ErrorMessage)
			return
		}
		log.Printf("[Scheduler] %s done in %v: processed=%d affected=%d errors=%d",
			name, time.Since(start), res.Output.Processed, res.Output.Affected, res.Output.Errors)
	}
}

// Start begins running scheduled jobs.
func (s *Scheduler) Start() {
	s.sched.Start()
	log.Printf("[Scheduler] Started with %d jobs", len(s.jobs))
}

// Stop waits for running jobs and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	if err := s.sched.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	log.Println("[Scheduler] Stopped")
	return nil
}

// Spec returns the cron expression of a scheduled job, or "".
func (s *Scheduler) Spec(name string) string {
	return s.specs[name]
}

// NextRun reports when a scheduled job fires next.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	j, ok := s.jobs[name]
	if !ok {
		return time.Time{}, false
	}
	next, err := j.NextRun()
	if err != nil || next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}
