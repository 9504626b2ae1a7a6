package rules

import (
	"math/rand/v2"

	"github.com/warp/capture-engine/engine"
)

// Bracket is an inclusive reward-difficulty range.
type Bracket struct {
	Min int
	Max int
}

var periodBrackets = map[engine.Period]Bracket{
	engine.PeriodDaily:   {Min: 1, Max: 4},
	engine.PeriodWeekly:  {Min: 2, Max: 8},
	engine.PeriodMonthly: {Min: 6, Max: 9},
}

// BracketFor returns the sampling range for the period.
func BracketFor(p engine.Period) Bracket {
	if b, ok := periodBrackets[p]; ok {
		return b
	}
	return periodBrackets[engine.PeriodDaily]
}

// RewardDifficulty samples uniformly from the period bracket, adds the
// category adjustment and clamps to [1,9]. Tier does not shift the bracket.
func RewardDifficulty(rng *rand.Rand, p engine.Period, adjustment int) int {
	b := BracketFor(p)
	d := b.Min + rng.IntN(b.Max-b.Min+1) + adjustment
	return clamp(d, engine.MinDifficulty, engine.MaxDifficulty)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
