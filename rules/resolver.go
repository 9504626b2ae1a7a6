package rules

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/capture-engine/engine"
)

//go:embed defaults.toml
var defaultsTOML []byte

// Defaults returns the shipped rules.
func Defaults() (*File, error) {
	return ParseTOML(defaultsTOML)
}

// =============================================================================
// CHALLENGE RULES - Validated, indexed view of ChallengeSettings
// =============================================================================

type targetKey struct {
	Period engine.Period
	Type   engine.ChallengeType
}

// ChallengeRules answers every lookup the generator makes.
type ChallengeRules struct {
	counts      map[engine.Period]int
	baseCosts   map[engine.Period]int64
	targets     map[targetKey]TierTargets
	multipliers TierCostMultipliers
	categories  []Category
}

// NewChallengeRules validates the settings and builds the lookup index.
func NewChallengeRules(cs ChallengeSettings) (*ChallengeRules, error) {
	if err := cs.Validate(); err != nil {
		return nil, err
	}
	r := &ChallengeRules{
		counts:      make(map[engine.Period]int),
		baseCosts:   make(map[engine.Period]int64),
		targets:     make(map[targetKey]TierTargets),
		multipliers: cs.TierCostMultipliers,
		categories:  append([]Category(nil), cs.Categories...),
	}
	for name, ps := range cs.Periods {
		p := engine.Period(name)
		if ps.GenerationCount != nil {
			r.counts[p] = *ps.GenerationCount
		}
		r.baseCosts[p] = ps.BaseCost
		for typ, tiers := range ps.Targets {
			r.targets[targetKey{Period: p, Type: engine.ChallengeType(typ)}] = tiers
		}
	}
	return r, nil
}

// GenerationCount returns the configured count for the period, default 3.
func (r *ChallengeRules) GenerationCount(p engine.Period) int {
	if n, ok := r.counts[p]; ok {
		return n
	}
	return DefaultGenerationCount
}

// Target returns the configured target. ok is false when the bracket is not
// configured; callers skip the slot rather than substituting a default.
func (r *ChallengeRules) Target(p engine.Period, t engine.ChallengeType, tier engine.Tier) (int64, bool) {
	tiers, ok := r.targets[targetKey{Period: p, Type: t}]
	if !ok {
		return 0, false
	}
	return tiers.For(tier)
}

// Cost is round(baseCost[period] * multiplier[tier]).
func (r *ChallengeRules) Cost(p engine.Period, tier engine.Tier) int64 {
	base := decimal.NewFromInt(r.baseCosts[p])
	return base.Mul(decimal.NewFromFloat(r.multipliers.For(tier))).Round(0).IntPart()
}

func (r *ChallengeRules) Categories() []Category {
	return append([]Category(nil), r.categories...)
}

// =============================================================================
// RESOLVER - Loads documents from the globals store
// =============================================================================

type Resolver struct {
	store engine.GlobalStore
}

func NewResolver(store engine.GlobalStore) *Resolver {
	return &Resolver{store: store}
}

// ChallengeRules loads challenge-settings. A missing document is a
// ConfigError, fatal for the generation job.
func (r *Resolver) ChallengeRules(ctx context.Context) (*ChallengeRules, error) {
	doc, err := r.store.GetGlobal(ctx, SlugChallengeSettings)
	if errors.Is(err, engine.ErrGlobalNotFound) {
		return nil, &engine.ConfigError{Slug: SlugChallengeSettings}
	}
	if err != nil {
		return nil, err
	}
	cs, err := ParseChallengeSettings(doc)
	if err != nil {
		return nil, err
	}
	return NewChallengeRules(*cs)
}

// GameSettings loads game-settings. A missing document yields empty settings
// so the decay defaults apply; RequireDailyLimit still fails on it.
func (r *Resolver) GameSettings(ctx context.Context) (GameSettings, error) {
	doc, err := r.store.GetGlobal(ctx, SlugGameSettings)
	if errors.Is(err, engine.ErrGlobalNotFound) {
		return GameSettings{}, nil
	}
	if err != nil {
		return GameSettings{}, err
	}
	gs, err := ParseGameSettings(doc)
	if err != nil {
		return GameSettings{}, err
	}
	if err := gs.Validate(); err != nil {
		return GameSettings{}, err
	}
	return *gs, nil
}

// Seed writes both documents from a rules file.
func Seed(ctx context.Context, store engine.GlobalStore, f *File) error {
	if err := f.Challenges.Validate(); err != nil {
		return err
	}
	if err := f.Game.Validate(); err != nil {
		return err
	}
	cs, err := json.Marshal(f.Challenges)
	if err != nil {
		return err
	}
	if err := store.SaveGlobal(ctx, SlugChallengeSettings, cs); err != nil {
		return fmt.Errorf("failed to seed %s: %w", SlugChallengeSettings, err)
	}
	gs, err := json.Marshal(f.Game)
	if err != nil {
		return err
	}
	if err := store.SaveGlobal(ctx, SlugGameSettings, gs); err != nil {
		return fmt.Errorf("failed to seed %s: %w", SlugGameSettings, err)
	}
	return nil
}
