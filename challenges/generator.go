/*
Package challenges generates, tracks and completes periodic challenges.

PURPOSE:
  - Generator: candidate batches per period (personal or shared mode)
  - AssignRewards: catalog lookup by reward difficulty
  - Issuer: guarded creation of challenge records
  - Tracker: progress updates on session-created events
  - Buyout: coin-paid completion
  - ExpireChallenges: deletion of expired open challenges

GENERATION MODES:
  Personal (daily) draws challenge types without replacement, so one batch
  never repeats a type. Shared (weekly, monthly) draws with replacement per
  slot. Both modes are kept explicit; unifying them is a product decision.

IDEMPOTENCY:
  Generate is not idempotent. Issuer checks that the user has no live
  challenge of the period before creating anything.

SEE ALSO:
  - rules/resolver.go: Targets, counts, costs, categories
  - rules/difficulty.go: Reward difficulty brackets
  - rules/templates.go: Titles and descriptions
*/
package challenges

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/warp/capture-engine/engine"
	"github.com/warp/capture-engine/rules"
)

const (
	// MaxLongestSessionTarget caps longest_session in every period.
	MaxLongestSessionTarget int64 = 3600
	// MaxDailyDurationTarget caps session_duration for daily challenges.
	MaxDailyDurationTarget int64 = 3600
)

// Candidate is a generated challenge before reward assignment.
type Candidate struct {
	Period           engine.Period
	Type             engine.ChallengeType
	Tier             engine.Tier
	TargetValue      int64
	TargetCategory   *string
	RewardDifficulty int
	Cost             int64
	Title            string
	Description      string
	ExpiresAt        time.Time
}

// Request describes one generation call.
type Request struct {
	Period engine.Period
	// SampleWithReplacement lets a batch repeat challenge types. Set for
	// shared generation.
	SampleWithReplacement bool
	Now                   time.Time
}

// PersonalRequest is the daily per-user request.
func PersonalRequest(p engine.Period, now time.Time) Request {
	return Request{Period: p, Now: now}
}

// SharedRequest is the weekly/monthly pool request.
func SharedRequest(p engine.Period, now time.Time) Request {
	return Request{Period: p, SampleWithReplacement: true, Now: now}
}

// Generator produces candidate batches. Safe for concurrent use.
type Generator struct {
	templates *rules.Templates

	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator creates a generator with a seeded source. Tests pass a fixed
// seed for reproducible batches.
func NewGenerator(templates *rules.Templates, seed uint64) *Generator {
	return &Generator{
		templates: templates,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Generate returns up to GenerationCount candidates for the period. Slots
// whose (type, period, tier) target is not configured are skipped.
func (g *Generator) Generate(r *rules.ChallengeRules, req Request) ([]Candidate, error) {
	if !req.Period.Valid() {
		return nil, &engine.ValidationError{Field: "period", Message: fmt.Sprintf("unknown period %q", req.Period)}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	tiers := g.pickTiers(r.GenerationCount(req.Period))
	types := g.pickTypes(len(tiers), req.SampleWithReplacement)
	categories := r.Categories()

	var out []Candidate
	for i, tier := range tiers {
		if i >= len(types) {
			break
		}
		typ := types[i]

		target, ok := r.Target(req.Period, typ, tier)
		if !ok {
			continue
		}
		target = capTarget(typ, req.Period, target)

		// For entry_count the category is a difficulty input only.
		var category *rules.Category
		if typ.UsesCategory() && len(categories) > 0 {
			c := categories[g.rng.IntN(len(categories))]
			category = &c
		}
		if typ == engine.ChallengeCategorySimilarity && category == nil {
			// No category to match against; the challenge could never progress.
			continue
		}

		adjustment := 0
		var targetCategory *string
		displayCategory := ""
		if category != nil {
			adjustment = category.DifficultyAdjustment
			key := category.Key()
			targetCategory = &key
			displayCategory = category.Name
		}

		title, desc, err := g.templates.Render(typ, target, req.Period, displayCategory)
		if err != nil {
			return nil, err
		}

		out = append(out, Candidate{
			Period:           req.Period,
			Type:             typ,
			Tier:             tier,
			TargetValue:      target,
			TargetCategory:   targetCategory,
			RewardDifficulty: rules.RewardDifficulty(g.rng, req.Period, adjustment),
			Cost:             r.Cost(req.Period, tier),
			Title:            title,
			Description:      desc,
			ExpiresAt:        engine.ExpiresAt(req.Period, req.Now),
		})
	}
	return out, nil
}

// pickTiers returns one of each tier shuffled when count >= 3, else count
// tiers drawn with replacement.
func (g *Generator) pickTiers(count int) []engine.Tier {
	if count <= 0 {
		return nil
	}
	if count >= len(engine.Tiers) {
		tiers := append([]engine.Tier(nil), engine.Tiers...)
		g.rng.Shuffle(len(tiers), func(i, j int) { tiers[i], tiers[j] = tiers[j], tiers[i] })
		return tiers
	}
	tiers := make([]engine.Tier, count)
	for i := range tiers {
		tiers[i] = engine.Tiers[g.rng.IntN(len(engine.Tiers))]
	}
	return tiers
}

func (g *Generator) pickTypes(n int, withReplacement bool) []engine.ChallengeType {
	if withReplacement {
		types := make([]engine.ChallengeType, n)
		for i := range types {
			types[i] = engine.ChallengeTypes[g.rng.IntN(len(engine.ChallengeTypes))]
		}
		return types
	}
	types := append([]engine.ChallengeType(nil), engine.ChallengeTypes...)
	g.rng.Shuffle(len(types), func(i, j int) { types[i], types[j] = types[j], types[i] })
	if n < len(types) {
		types = types[:n]
	}
	return types
}

// capTarget clamps targets that would be unreachable in one session or day.
func capTarget(typ engine.ChallengeType, p engine.Period, target int64) int64 {
	switch {
	case typ == engine.ChallengeLongestSession && target > MaxLongestSessionTarget:
		return MaxLongestSessionTarget
	case typ == engine.ChallengeSessionDuration && p == engine.PeriodDaily && target > MaxDailyDurationTarget:
		return MaxDailyDurationTarget
	}
	return target
}

// intn draws from the generator's source under its lock.
func (g *Generator) intn(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.IntN(n)
}
