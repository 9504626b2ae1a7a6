/*
Package rules resolves the tunable game presets consumed by the engine.

PURPOSE:
  Challenge generation needs target values, generation counts, tier costs
  and categories. Sessions and decay need the game settings. All of them
  live in the globals store as JSON documents and are loaded into typed,
  validated structures before any job uses them.

DOCUMENTS:
  challenge-settings: ChallengeSettings
  game-settings:      GameSettings

SHAPE:
  Targets are keyed period -> challenge type -> tier. The nested maps are
  validated once at load time and flattened into a (period, type) index,
  so a misspelled period or type fails the load instead of silently
  resolving to "not configured".

  {
    "periods": {
      "daily": {
        "generation_count": 3,
        "base_cost": 50,
        "targets": {"longest_session": {"easy": 600, "medium": 1200, "hard": 1800}}
      }
    },
    "tier_cost_multipliers": {"easy": 1, "medium": 1.5, "hard": 2},
    "categories": [{"name": "cafe", "difficulty_adjustment": 0}]
  }

SEE ALSO:
  - resolver.go: Loading from the globals store
  - defaults.toml: Shipped defaults
  - difficulty.go: Reward difficulty brackets
*/
package rules

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/gosimple/slug"
	"github.com/warp/capture-engine/engine"
)

const (
	SlugChallengeSettings = "challenge-settings"
	SlugGameSettings      = "game-settings"

	DefaultGenerationCount   = 3
	DefaultDecayPercent      = 5.0
	DefaultMaxDecayReduction = 3.0
	MaxDecayPercent          = 20.0
)

// =============================================================================
// DOCUMENT TYPES
// =============================================================================

// TierTargets holds the target per tier. A nil tier is not configured.
type TierTargets struct {
	Easy   *int64 `toml:"easy" json:"easy,omitempty"`
	Medium *int64 `toml:"medium" json:"medium,omitempty"`
	Hard   *int64 `toml:"hard" json:"hard,omitempty"`
}

func (t TierTargets) For(tier engine.Tier) (int64, bool) {
	var v *int64
	switch tier {
	case engine.TierEasy:
		v = t.Easy
	case engine.TierMedium:
		v = t.Medium
	case engine.TierHard:
		v = t.Hard
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

type PeriodSettings struct {
	GenerationCount *int                   `toml:"generation_count" json:"generation_count,omitempty"`
	BaseCost        int64                  `toml:"base_cost" json:"base_cost"`
	Targets         map[string]TierTargets `toml:"targets" json:"targets"`
}

type TierCostMultipliers struct {
	Easy   *float64 `toml:"easy" json:"easy,omitempty"`
	Medium *float64 `toml:"medium" json:"medium,omitempty"`
	Hard   *float64 `toml:"hard" json:"hard,omitempty"`
}

// For returns the multiplier for the tier, 1 when unset.
func (m TierCostMultipliers) For(tier engine.Tier) float64 {
	var v *float64
	switch tier {
	case engine.TierEasy:
		v = m.Easy
	case engine.TierMedium:
		v = m.Medium
	case engine.TierHard:
		v = m.Hard
	}
	if v == nil {
		return 1
	}
	return *v
}

type Category struct {
	Name                 string `toml:"name" json:"name"`
	DifficultyAdjustment int    `toml:"difficulty_adjustment" json:"difficulty_adjustment"`
}

// Key is the normalized category used for matching against POI categories.
func (c Category) Key() string { return CategoryKey(c.Name) }

// CategoryKey normalizes free-text categories ("Coffee Shop", "coffee-shop").
func CategoryKey(name string) string { return slug.Make(name) }

type ChallengeSettings struct {
	Periods             map[string]PeriodSettings `toml:"periods" json:"periods"`
	TierCostMultipliers TierCostMultipliers       `toml:"tier_cost_multipliers" json:"tier_cost_multipliers"`
	Categories          []Category                `toml:"categories" json:"categories"`
}

// GameSettings carries the non-challenge tunables. DailySecondsLimit is
// required by session recording and is never defaulted.
type GameSettings struct {
	DailySecondsLimit *int64   `toml:"daily_seconds_limit" json:"daily_seconds_limit,omitempty"`
	DecayPercent      *float64 `toml:"decay_percent" json:"decay_percent,omitempty"`
	MaxDecayReduction *float64 `toml:"max_decay_reduction" json:"max_decay_reduction,omitempty"`
}

// File is the TOML layout of defaults.toml and CAPTURE_RULES_FILE.
type File struct {
	Challenges ChallengeSettings `toml:"challenges"`
	Game       GameSettings      `toml:"game"`
}

// =============================================================================
// PARSING
// =============================================================================

// ParseTOML decodes a rules file. Unknown keys are rejected.
func ParseTOML(data []byte) (*File, error) {
	var f File
	md, err := toml.Decode(string(data), &f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown rules keys: %v", undecoded)
	}
	return &f, nil
}

// ParseChallengeSettings decodes the challenge-settings document.
func ParseChallengeSettings(data []byte) (*ChallengeSettings, error) {
	var cs ChallengeSettings
	if err := decodeStrict(data, &cs); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", SlugChallengeSettings, err)
	}
	return &cs, nil
}

// ParseGameSettings decodes the game-settings document.
func ParseGameSettings(data []byte) (*GameSettings, error) {
	var gs GameSettings
	if err := decodeStrict(data, &gs); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", SlugGameSettings, err)
	}
	return &gs, nil
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate rejects unknown periods or challenge types and malformed values.
func (cs ChallengeSettings) Validate() error {
	for name, ps := range cs.Periods {
		if !engine.Period(name).Valid() {
			return &engine.ValidationError{Field: "periods", Message: fmt.Sprintf("unknown period %q", name)}
		}
		if ps.GenerationCount != nil && *ps.GenerationCount < 0 {
			return &engine.ValidationError{Field: "periods." + name + ".generation_count", Message: "must be >= 0"}
		}
		if ps.BaseCost < 0 {
			return &engine.ValidationError{Field: "periods." + name + ".base_cost", Message: "must be >= 0"}
		}
		for typ, tiers := range ps.Targets {
			if !engine.ChallengeType(typ).Valid() {
				return &engine.ValidationError{
					Field:   "periods." + name + ".targets",
					Message: fmt.Sprintf("unknown challenge type %q", typ),
				}
			}
			for _, tier := range engine.Tiers {
				if v, ok := tiers.For(tier); ok && v <= 0 {
					return &engine.ValidationError{
						Field:   fmt.Sprintf("periods.%s.targets.%s.%s", name, typ, tier),
						Message: "must be > 0",
					}
				}
			}
		}
	}
	for _, tier := range engine.Tiers {
		if cs.TierCostMultipliers.For(tier) < 0 {
			return &engine.ValidationError{Field: "tier_cost_multipliers." + string(tier), Message: "must be >= 0"}
		}
	}
	seen := make(map[string]bool)
	for _, c := range cs.Categories {
		key := c.Key()
		if key == "" {
			return &engine.ValidationError{Field: "categories", Message: "category name is empty"}
		}
		if seen[key] {
			return &engine.ValidationError{Field: "categories", Message: fmt.Sprintf("duplicate category %q", c.Name)}
		}
		seen[key] = true
	}
	return nil
}

// Validate checks ranges only. Presence of DailySecondsLimit is checked by
// the consumer via RequireDailyLimit.
func (gs GameSettings) Validate() error {
	if gs.DailySecondsLimit != nil && *gs.DailySecondsLimit <= 0 {
		return &engine.ValidationError{Field: "daily_seconds_limit", Message: "must be > 0"}
	}
	if gs.DecayPercent != nil && (*gs.DecayPercent < 0 || *gs.DecayPercent > MaxDecayPercent) {
		return &engine.ValidationError{Field: "decay_percent", Message: "must be within [0,20]"}
	}
	if gs.MaxDecayReduction != nil && *gs.MaxDecayReduction < 0 {
		return &engine.ValidationError{Field: "max_decay_reduction", Message: "must be >= 0"}
	}
	return nil
}

// RequireDailyLimit returns the daily seconds limit or a ConfigError.
func (gs GameSettings) RequireDailyLimit() (int64, error) {
	if gs.DailySecondsLimit == nil {
		return 0, &engine.ConfigError{Slug: SlugGameSettings, Field: "daily_seconds_limit"}
	}
	return *gs.DailySecondsLimit, nil
}

func (gs GameSettings) Decay() float64 {
	if gs.DecayPercent == nil {
		return DefaultDecayPercent
	}
	return *gs.DecayPercent
}

func (gs GameSettings) MaxReduction() float64 {
	if gs.MaxDecayReduction == nil {
		return DefaultMaxDecayReduction
	}
	return *gs.MaxDecayReduction
}
