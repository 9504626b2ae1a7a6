package jobs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/warp/capture-engine/challenges"
	"github.com/warp/capture-engine/engine"
	"github.com/warp/capture-engine/rewards"
	"github.com/warp/capture-engine/rules"
	"github.com/warp/capture-engine/territory"
)

const (
	GenerateDaily   = "generate-daily-challenges"
	GenerateWeekly  = "generate-weekly-challenges"
	GenerateMonthly = "generate-monthly-challenges"
	ApplyDecay      = "apply-decay"
	RecalcKings     = "recalculate-kings"
	ExpireRewards   = "expire-rewards"
	ExpireSeason    = "expire-season-rewards"
	ExpireChallenge = "expire-challenges"
)

// Deps are the components jobs run on.
type Deps struct {
	Store    engine.Store
	Resolver *rules.Resolver
	Issuer   *challenges.Issuer
	Sweeper  *rewards.Sweeper
	Kings    *territory.KingRecalculator
	Decay    *territory.DecayEngine
	// Location is used for period boundaries when Input.Now is zero.
	Location *time.Location
	PageSize int
}

type Registry struct {
	jobs map[string]Job
}

// NewRegistry builds every job from its dependencies.
func NewRegistry(d Deps) *Registry {
	loc := d.Location
	if loc == nil {
		loc = time.Local
	}
	clock := func(in Input) time.Time {
		if in.Now.IsZero() {
			return time.Now().In(loc)
		}
		return in.Now.In(loc)
	}

	r := &Registry{jobs: make(map[string]Job)}
	for _, p := range engine.Periods {
		r.add(&generateJob{period: p, issuer: d.Issuer, resolver: d.Resolver, clock: clock})
	}
	r.add(jobFunc{name: ApplyDecay, run: func(ctx context.Context, in Input) (engine.Report, error) {
		settings, err := d.Resolver.GameSettings(ctx)
		if err != nil {
			return engine.Report{}, err
		}
		return d.Decay.Run(ctx, settings, clock(in))
	}})
	r.add(jobFunc{name: RecalcKings, run: func(ctx context.Context, _ Input) (engine.Report, error) {
		return d.Kings.Run(ctx)
	}})
	r.add(jobFunc{name: ExpireRewards, run: func(ctx context.Context, in Input) (engine.Report, error) {
		return d.Sweeper.ExpireRewards(ctx, clock(in))
	}})
	r.add(jobFunc{name: ExpireSeason, run: func(ctx context.Context, in Input) (engine.Report, error) {
		return d.Sweeper.ExpireSeason(ctx, clock(in))
	}})
	r.add(jobFunc{name: ExpireChallenge, run: func(ctx context.Context, in Input) (engine.Report, error) {
		return challenges.ExpireChallenges(ctx, d.Store, clock(in), d.PageSize)
	}})
	return r
}

func (r *Registry) add(j Job) { r.jobs[j.Name()] = j }

// Get returns the named job.
func (r *Registry) Get(name string) (Job, bool) {
	j, ok := r.jobs[name]
	return j, ok
}

// Names returns every job name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes the named job. Unknown names produce a failed result.
func (r *Registry) Run(ctx context.Context, name string, in Input) Result {
	j, ok := r.Get(name)
	if !ok {
		return Failed(fmt.Errorf("unknown job %q", name))
	}
	return Execute(ctx, j, in)
}

// =============================================================================
// JOB IMPLEMENTATIONS
// =============================================================================

type jobFunc struct {
	name string
	run  func(ctx context.Context, in Input) (engine.Report, error)
}

func (j jobFunc) Name() string { return j.name }
func (j jobFunc) Run(ctx context.Context, in Input) (engine.Report, error) {
	return j.run(ctx, in)
}

type generateJob struct {
	period   engine.Period
	issuer   *challenges.Issuer
	resolver *rules.Resolver
	clock    func(Input) time.Time
}

func (g *generateJob) Name() string {
	switch g.period {
	case engine.PeriodWeekly:
		return GenerateWeekly
	case engine.PeriodMonthly:
		return GenerateMonthly
	}
	return GenerateDaily
}

// Run loads challenge rules first: a missing config fails the job before
// any user is touched.
func (g *generateJob) Run(ctx context.Context, in Input) (engine.Report, error) {
	r, err := g.resolver.ChallengeRules(ctx)
	if err != nil {
		return engine.Report{}, err
	}
	now := g.clock(in)
	if g.period.Shared() {
		return g.issuer.IssueShared(ctx, r, g.period, now)
	}
	return g.issuer.IssueAllPersonal(ctx, r, g.period, now)
}
