package rewards_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/capture-engine/engine"
	"github.com/warp/capture-engine/engine/store"
	"github.com/warp/capture-engine/rewards"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var now = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func intPtr(i int) *int { return &i }

func newTestManager(t *testing.T) (*rewards.Manager, *store.Memory, *time.Time) {
	s := store.NewMemory()
	require.NoError(t, s.SaveUser(context.Background(), engine.User{ID: "u1"}))
	require.NoError(t, rewards.SeedCatalog(context.Background(), s, rewards.DefaultCatalog()))

	clock := now
	m := rewards.NewManager(s)
	m.Clock = func() time.Time { return clock }
	return m, s, &clock
}

func listAll(t *testing.T, s *store.Memory, user engine.UserID) []engine.Activation {
	out, err := s.ListActivations(context.Background(), engine.ActivationFilter{UserID: &user})
	require.NoError(t, err)
	return out
}

// =============================================================================
// CATALOG TESTS
// =============================================================================

func TestDefaultCatalog_CoversEveryDifficulty(t *testing.T) {
	seen := make(map[int]bool)
	for _, r := range rewards.DefaultCatalog() {
		assert.True(t, r.Type.Valid(), r.ID)
		if r.IsActive {
			seen[r.Difficulty] = true
		}
		if r.Type == engine.RewardBonusCrowns {
			assert.Nil(t, r.DurationHours, "%s: crowns are season-scoped", r.ID)
			assert.Nil(t, r.Uses, "%s: crowns are season-scoped", r.ID)
		}
	}
	for d := engine.MinDifficulty; d <= engine.MaxDifficulty; d++ {
		assert.True(t, seen[d], "difficulty %d", d)
	}
}

func TestSeedCatalog_RejectsBadRewards(t *testing.T) {
	s := store.NewMemory()

	err := rewards.SeedCatalog(context.Background(), s, []engine.Reward{{ID: "bad", Type: "xp", Difficulty: 1}})
	assert.ErrorIs(t, err, engine.ErrValidation)

	err = rewards.SeedCatalog(context.Background(), s, []engine.Reward{{ID: "bad", Type: engine.RewardCoins, Difficulty: 10}})
	assert.ErrorIs(t, err, engine.ErrValidation)
}

// =============================================================================
// ACTIVATION TESTS
// =============================================================================

func TestActivate_CopiesCatalogFields(t *testing.T) {
	m, s, _ := newTestManager(t)
	ctx := context.Background()
	origin := engine.ChallengeID("c1")

	a, err := m.Activate(ctx, "u1", "extended-capture-3", &origin)
	require.NoError(t, err)

	assert.Equal(t, engine.RewardExtendedCapture, a.RewardType)
	assert.Equal(t, 300.0, a.RewardValue)
	require.NotNil(t, a.UsesRemaining)
	assert.Equal(t, 3, *a.UsesRemaining)
	assert.Equal(t, engine.ExpiryUses, a.Policy())
	require.NotNil(t, a.ChallengeID)
	assert.Equal(t, origin, *a.ChallengeID)

	// Later catalog edits do not reach the stored activation.
	require.NoError(t, s.SaveReward(ctx, engine.Reward{ID: "extended-capture-3", Type: engine.RewardCoins, Value: 1, Difficulty: 5, IsActive: true}))
	stored, err := s.GetActivation(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.RewardExtendedCapture, stored.RewardType)
	assert.Equal(t, 300.0, stored.RewardValue)
}

func TestActivate_BonusCrownsGetSeason(t *testing.T) {
	m, _, _ := newTestManager(t)

	a, err := m.Activate(context.Background(), "u1", "bonus-crowns-1", nil)

	require.NoError(t, err)
	require.NotNil(t, a.Season)
	assert.Equal(t, "2026-03", *a.Season)
	assert.Nil(t, a.DurationHours)
	assert.Nil(t, a.UsesRemaining)
	assert.Equal(t, engine.ExpirySeason, a.Policy())
}

func TestActivate_UnknownUserOrReward(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	_, err := m.Activate(ctx, "ghost", "coins-small", nil)
	assert.ErrorIs(t, err, engine.ErrUserNotFound)

	_, err = m.Activate(ctx, "u1", "nope", nil)
	assert.ErrorIs(t, err, engine.ErrRewardNotFound)
}

func TestActivate_SweepsElapsedActivations(t *testing.T) {
	// GIVEN: Three 1h activations: plain, with uses left, with uses spent
	// WHEN: A new reward is activated two hours later
	// THEN: The spent one is deleted, the other two go inactive
	m, s, clock := newTestManager(t)
	ctx := context.Background()

	plain, err := m.Activate(ctx, "u1", "entry-boost-1h", nil)
	require.NoError(t, err)
	require.NoError(t, s.AppendActivation(ctx, engine.Activation{
		ID: "with-uses", UserID: "u1", RewardID: "custom", RewardType: engine.RewardLargerRadius,
		ActivatedAt: now, DurationHours: intPtr(1), UsesRemaining: intPtr(2), IsActive: true,
	}))
	require.NoError(t, s.AppendActivation(ctx, engine.Activation{
		ID: "spent", UserID: "u1", RewardID: "custom", RewardType: engine.RewardLargerRadius,
		ActivatedAt: now, DurationHours: intPtr(1), UsesRemaining: intPtr(0), IsActive: true,
	}))

	*clock = now.Add(2 * time.Hour)
	fresh, err := m.Activate(ctx, "u1", "coins-small", nil)
	require.NoError(t, err)

	stale, err := s.GetActivation(ctx, "u1", plain.ID)
	require.NoError(t, err)
	assert.False(t, stale.IsActive, "elapsed without uses: kept inactive")
	_, err = s.GetActivation(ctx, "u1", "spent")
	assert.ErrorIs(t, err, engine.ErrActivationNotFound, "elapsed, uses exhausted: deleted")

	kept, err := s.GetActivation(ctx, "u1", "with-uses")
	require.NoError(t, err)
	assert.False(t, kept.IsActive)
	assert.Equal(t, 2, *kept.UsesRemaining)

	ids := make([]engine.ActivationID, 0)
	for _, a := range listAll(t, s, "u1") {
		ids = append(ids, a.ID)
	}
	assert.ElementsMatch(t, []engine.ActivationID{plain.ID, "with-uses", fresh.ID}, ids)
}

func TestActiveFor_OnlyEffective(t *testing.T) {
	m, s, clock := newTestManager(t)
	ctx := context.Background()

	_, err := m.Activate(ctx, "u1", "radius-3h", nil)
	require.NoError(t, err)
	_, err = m.Activate(ctx, "u1", "coins-small", nil)
	require.NoError(t, err)
	require.NoError(t, s.AppendActivation(ctx, engine.Activation{
		ID: "off", UserID: "u1", RewardID: "x", RewardType: engine.RewardCoins, ActivatedAt: now, IsActive: false,
	}))

	*clock = now.Add(4 * time.Hour)
	active, err := m.ActiveFor(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, engine.RewardID("coins-small"), active[0].RewardID)

	all, err := m.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// =============================================================================
// USE CONSUMPTION TESTS
// =============================================================================

func TestConsumeUse_DecrementsThenDeletes(t *testing.T) {
	m, s, _ := newTestManager(t)
	ctx := context.Background()

	a, err := m.Activate(ctx, "u1", "extended-capture-3", nil)
	require.NoError(t, err)

	left, err := m.ConsumeUse(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, left)
	left, err = m.ConsumeUse(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, left)

	left, err = m.ConsumeUse(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Zero(t, left)
	_, err = s.GetActivation(ctx, "u1", a.ID)
	assert.ErrorIs(t, err, engine.ErrActivationNotFound, "deleted as soon as the last use is spent")

	_, err = m.ConsumeUse(ctx, "u1", a.ID)
	assert.ErrorIs(t, err, engine.ErrActivationNotFound)
}

func TestConsumeUse_NotUseBound(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	a, err := m.Activate(ctx, "u1", "decay-shield-24h", nil)
	require.NoError(t, err)

	_, err = m.ConsumeUse(ctx, "u1", a.ID)
	assert.ErrorIs(t, err, engine.ErrNoUsesRemaining)
}

func TestConsumeUse_OtherUsersActivation(t *testing.T) {
	m, s, _ := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, s.SaveUser(ctx, engine.User{ID: "u2"}))

	a, err := m.Activate(ctx, "u1", "bonus-seconds-60", nil)
	require.NoError(t, err)

	_, err = m.ConsumeUse(ctx, "u2", a.ID)
	assert.ErrorIs(t, err, engine.ErrActivationNotFound)
}

// =============================================================================
// SWEEP TESTS
// =============================================================================

func TestExpireRewards_DeletesRetiredOnly(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seed := []engine.Activation{
		{ID: "a-inactive", UserID: "u1", RewardType: engine.RewardCoins, ActivatedAt: now, IsActive: false},
		{ID: "b-elapsed", UserID: "u1", RewardType: engine.RewardDecayReduction, ActivatedAt: now.Add(-25 * time.Hour), DurationHours: intPtr(24), IsActive: true},
		{ID: "c-exhausted", UserID: "u2", RewardType: engine.RewardExtendedCapture, ActivatedAt: now, UsesRemaining: intPtr(0), IsActive: true},
		{ID: "d-live", UserID: "u2", RewardType: engine.RewardDecayReduction, ActivatedAt: now, DurationHours: intPtr(24), IsActive: true},
		{ID: "e-permanent", UserID: "u3", RewardType: engine.RewardCoins, ActivatedAt: now.Add(-1000 * time.Hour), IsActive: true},
	}
	for _, a := range seed {
		require.NoError(t, s.AppendActivation(ctx, a))
	}
	sweeper := rewards.NewSweeper(s)
	sweeper.PageSize = 2

	report, err := sweeper.ExpireRewards(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Processed)
	assert.Equal(t, 3, report.Affected)

	remaining, err := s.ListActivations(ctx, engine.ActivationFilter{})
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, engine.ActivationID("d-live"), remaining[0].ID)
	assert.Equal(t, engine.ActivationID("e-permanent"), remaining[1].ID)

	again, err := sweeper.ExpireRewards(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, again.Affected, "idempotent")
}

func TestExpireSeason_PreviousMonthOnly(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	feb, mar := "2026-02", "2026-03"
	for _, a := range []engine.Activation{
		{ID: "feb-1", UserID: "u1", RewardType: engine.RewardBonusCrowns, Season: &feb, IsActive: true},
		{ID: "feb-2", UserID: "u2", RewardType: engine.RewardBonusCrowns, Season: &feb, IsActive: true},
		{ID: "mar-1", UserID: "u1", RewardType: engine.RewardBonusCrowns, Season: &mar, IsActive: true},
		{ID: "coins", UserID: "u1", RewardType: engine.RewardCoins, IsActive: true},
	} {
		require.NoError(t, s.AppendActivation(ctx, a))
	}
	sweeper := rewards.NewSweeper(s)
	runAt := time.Date(2026, time.March, 1, 0, 10, 0, 0, time.UTC)

	report, err := sweeper.ExpireSeason(ctx, runAt)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Affected)
	assert.Equal(t, 2, report.Details["season_2026-02"])

	remaining, err := s.ListActivations(ctx, engine.ActivationFilter{})
	require.NoError(t, err)
	assert.Len(t, remaining, 2)

	again, err := sweeper.ExpireSeason(ctx, runAt)
	require.NoError(t, err)
	assert.Zero(t, again.Affected)
}
