package challenges_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/capture-engine/challenges"
	"github.com/warp/capture-engine/engine"
	"github.com/warp/capture-engine/engine/store"
	"github.com/warp/capture-engine/rules"
)

// =============================================================================
// GENERATOR TESTS
// =============================================================================

func TestGenerate_Personal_OneOfEachTierNoRepeatedTypes(t *testing.T) {
	r := testRules(t, 3, rules.Category{Name: "cafe"})

	for seed := uint64(1); seed <= 50; seed++ {
		cands, err := newGenerator(seed).Generate(r, challenges.PersonalRequest(engine.PeriodDaily, now))
		require.NoError(t, err)
		require.Len(t, cands, 3, "seed %d", seed)

		tiers := make(map[engine.Tier]int)
		types := make(map[engine.ChallengeType]int)
		for _, c := range cands {
			tiers[c.Tier]++
			types[c.Type]++
		}
		assert.Equal(t, map[engine.Tier]int{engine.TierEasy: 1, engine.TierMedium: 1, engine.TierHard: 1}, tiers)
		for typ, n := range types {
			assert.Equal(t, 1, n, "seed %d repeated %s", seed, typ)
		}
	}
}

func TestGenerate_CountAboveThree_StillThreeTiers(t *testing.T) {
	r := testRules(t, 5, rules.Category{Name: "cafe"})

	cands, err := newGenerator(7).Generate(r, challenges.PersonalRequest(engine.PeriodDaily, now))

	require.NoError(t, err)
	assert.Len(t, cands, 3)
}

func TestGenerate_CountBelowThree(t *testing.T) {
	r := testRules(t, 2, rules.Category{Name: "cafe"})

	cands, err := newGenerator(7).Generate(r, challenges.PersonalRequest(engine.PeriodDaily, now))
	require.NoError(t, err)
	assert.Len(t, cands, 2)

	r = testRules(t, 0)
	cands, err = newGenerator(7).Generate(r, challenges.PersonalRequest(engine.PeriodDaily, now))
	require.NoError(t, err)
	assert.Empty(t, cands)
}

func TestGenerate_FieldsFromRules(t *testing.T) {
	r := testRules(t, 3, rules.Category{Name: "Coffee Shop", DifficultyAdjustment: 1})

	for seed := uint64(1); seed <= 30; seed++ {
		cands, err := newGenerator(seed).Generate(r, challenges.SharedRequest(engine.PeriodWeekly, now))
		require.NoError(t, err)

		for _, c := range cands {
			target, ok := r.Target(engine.PeriodWeekly, c.Type, c.Tier)
			require.True(t, ok)
			assert.Equal(t, target, c.TargetValue)
			assert.Equal(t, r.Cost(engine.PeriodWeekly, c.Tier), c.Cost)
			assert.Equal(t, engine.ExpiresAt(engine.PeriodWeekly, now), c.ExpiresAt)
			assert.GreaterOrEqual(t, c.RewardDifficulty, engine.MinDifficulty)
			assert.LessOrEqual(t, c.RewardDifficulty, engine.MaxDifficulty)
			assert.NotEmpty(t, c.Title)
			assert.NotEmpty(t, c.Description)

			if c.Type.UsesCategory() {
				require.NotNil(t, c.TargetCategory, "%s needs a category", c.Type)
				assert.Equal(t, "coffee-shop", *c.TargetCategory)
			} else {
				assert.Nil(t, c.TargetCategory)
			}
		}
	}
}

func TestGenerate_CapsUnreachableTargets(t *testing.T) {
	cs := rules.ChallengeSettings{Periods: map[string]rules.PeriodSettings{
		"daily": {GenerationCount: intPtr(3), Targets: map[string]rules.TierTargets{
			"longest_session":  {Easy: int64Ptr(7200), Medium: int64Ptr(7200), Hard: int64Ptr(7200)},
			"session_duration": {Easy: int64Ptr(9000), Medium: int64Ptr(9000), Hard: int64Ptr(9000)},
		}},
		"weekly": {GenerationCount: intPtr(3), Targets: map[string]rules.TierTargets{
			"session_duration": {Easy: int64Ptr(9000), Medium: int64Ptr(9000), Hard: int64Ptr(9000)},
		}},
	}}
	r, err := rules.NewChallengeRules(cs)
	require.NoError(t, err)

	for seed := uint64(1); seed <= 40; seed++ {
		daily, err := newGenerator(seed).Generate(r, challenges.PersonalRequest(engine.PeriodDaily, now))
		require.NoError(t, err)
		for _, c := range daily {
			assert.Equal(t, int64(3600), c.TargetValue, "%s capped", c.Type)
		}

		weekly, err := newGenerator(seed).Generate(r, challenges.SharedRequest(engine.PeriodWeekly, now))
		require.NoError(t, err)
		for _, c := range weekly {
			assert.Equal(t, int64(9000), c.TargetValue, "weekly duration is not capped")
		}
	}
}

func TestGenerate_SkipsUnconfiguredSlots(t *testing.T) {
	// Only one type is configured; every other drawn type is skipped.
	cs := rules.ChallengeSettings{Periods: map[string]rules.PeriodSettings{
		"weekly": {GenerationCount: intPtr(3), Targets: map[string]rules.TierTargets{
			"entry_count": {Easy: int64Ptr(3), Medium: int64Ptr(6), Hard: int64Ptr(9)},
		}},
	}}
	r, err := rules.NewChallengeRules(cs)
	require.NoError(t, err)

	for seed := uint64(1); seed <= 40; seed++ {
		cands, err := newGenerator(seed).Generate(r, challenges.SharedRequest(engine.PeriodWeekly, now))
		require.NoError(t, err)
		assert.LessOrEqual(t, len(cands), 3)
		for _, c := range cands {
			assert.Equal(t, engine.ChallengeEntryCount, c.Type)
		}
	}
}

func TestGenerate_NoCategories_NeverEmitsCategorySimilarity(t *testing.T) {
	r := testRules(t, 3)

	for seed := uint64(1); seed <= 100; seed++ {
		cands, err := newGenerator(seed).Generate(r, challenges.SharedRequest(engine.PeriodMonthly, now))
		require.NoError(t, err)
		for _, c := range cands {
			assert.NotEqual(t, engine.ChallengeCategorySimilarity, c.Type)
		}
	}
}

func TestGenerate_SameSeedSameBatch(t *testing.T) {
	r := testRules(t, 3, rules.Category{Name: "park"}, rules.Category{Name: "museum", DifficultyAdjustment: 1})

	a, err := newGenerator(42).Generate(r, challenges.PersonalRequest(engine.PeriodDaily, now))
	require.NoError(t, err)
	b, err := newGenerator(42).Generate(r, challenges.PersonalRequest(engine.PeriodDaily, now))
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestGenerate_InvalidPeriod(t *testing.T) {
	r := testRules(t, 3)

	_, err := newGenerator(1).Generate(r, challenges.PersonalRequest("yearly", now))

	assert.ErrorIs(t, err, engine.ErrValidation)
}

// =============================================================================
// REWARD ASSIGNMENT TESTS
// =============================================================================

func TestAssignRewards_MatchesDifficultyAndDrops(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.SaveReward(ctx, engine.Reward{ID: "easy", Type: engine.RewardCoins, Value: 5, Difficulty: 2, IsActive: true}))
	require.NoError(t, s.SaveReward(ctx, engine.Reward{ID: "retired", Type: engine.RewardCoins, Value: 5, Difficulty: 3, IsActive: false}))

	cands := []challenges.Candidate{
		{Type: engine.ChallengeEntryCount, RewardDifficulty: 2, Cost: 50},
		{Type: engine.ChallengeEntryCount, RewardDifficulty: 3, Cost: 50},
		{Type: engine.ChallengeEntryCount, RewardDifficulty: 3, Cost: 0},
	}

	assigned, dropped, err := newGenerator(1).AssignRewards(ctx, s, cands)

	require.NoError(t, err)
	assert.Equal(t, 1, dropped, "inactive rewards never match")
	require.Len(t, assigned, 2)
	require.NotNil(t, assigned[0].RewardID)
	assert.Equal(t, engine.RewardID("easy"), *assigned[0].RewardID)
	assert.Nil(t, assigned[1].RewardID, "free challenge kept without a reward")
}
