// Package storetest holds the behavioral contract every engine.Store
// implementation must satisfy. Implementations call Run from their tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/capture-engine/engine"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) engine.Store

// Run executes the contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s engine.Store)
	}{
		{"UserUpsertAndFilter", testUsers},
		{"POIDuplicateAndKing", testPOIs},
		{"SessionsOrdered", testSessions},
		{"ChallengeCompletionSetOnce", testChallengeCAS},
		{"ChallengeFilters", testChallengeFilters},
		{"RewardCatalog", testRewards},
		{"ActivationsScopedByUser", testActivations},
		{"Globals", testGlobals},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

var base = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func intPtr(i int) *int { return &i }

// =============================================================================
// USERS & POIS
// =============================================================================

func testUsers(t *testing.T, s engine.Store) {
	ctx := context.Background()

	_, err := s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, engine.ErrUserNotFound)

	for i, id := range []engine.UserID{"u3", "u1", "u2"} {
		require.NoError(t, s.SaveUser(ctx, engine.User{ID: id, TotalSeconds: int64(i), CreatedAt: base}))
	}

	// Upsert overwrites.
	active := base.Add(time.Hour)
	require.NoError(t, s.SaveUser(ctx, engine.User{ID: "u1", TotalSeconds: 50, Coins: 7, LastActive: &active, CreatedAt: base}))
	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(50), u.TotalSeconds)
	assert.Equal(t, int64(7), u.Coins)
	require.NotNil(t, u.LastActive)
	assert.True(t, active.Equal(*u.LastActive))

	all, err := s.ListUsers(ctx, engine.UserFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, engine.UserID("u1"), all[0].ID, "ordered by id")

	page, err := s.ListUsers(ctx, engine.UserFilter{AfterID: "u1", Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, engine.UserID("u2"), page[0].ID)

	// u3 was saved with 0 seconds and must be excluded by the strict filter.
	var zero int64
	positive, err := s.ListUsers(ctx, engine.UserFilter{MinTotalSeconds: &zero})
	require.NoError(t, err)
	ids := make([]engine.UserID, len(positive))
	for i, p := range positive {
		ids[i] = p.ID
	}
	assert.Equal(t, []engine.UserID{"u1", "u2"}, ids)
}

func testPOIs(t *testing.T, s engine.Store) {
	ctx := context.Background()

	p := engine.POI{ID: "p1", Name: "Fountain", Category: "landmark", Latitude: 1.5, Longitude: -2.5}
	require.NoError(t, s.SavePOI(ctx, p))
	assert.ErrorIs(t, s.SavePOI(ctx, p), engine.ErrDuplicate)
	require.NoError(t, s.SavePOI(ctx, engine.POI{ID: "p2", Name: "Cafe"}))

	king := engine.UserID("u1")
	require.NoError(t, s.SetPOIKing(ctx, "p1", &king))
	assert.ErrorIs(t, s.SetPOIKing(ctx, "nope", &king), engine.ErrPOINotFound)

	got, err := s.GetPOI(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, got.IsKing("u1"))
	assert.Equal(t, 1.5, got.Latitude)

	held, err := s.ListPOIs(ctx, engine.POIFilter{KingID: &king})
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, engine.POIID("p1"), held[0].ID)

	require.NoError(t, s.SetPOIKing(ctx, "p1", nil))
	got, err = s.GetPOI(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, got.CurrentKing)
}

// =============================================================================
// SESSIONS
// =============================================================================

func testSessions(t *testing.T, s engine.Store) {
	ctx := context.Background()

	mk := func(id engine.SessionID, user engine.UserID, poi engine.POIID, offset time.Duration) engine.Session {
		start := base.Add(offset)
		return engine.Session{
			ID: id, UserID: user, POIID: poi,
			StartTime: start, EndTime: start.Add(time.Minute),
			SecondsEarned: 60, Month: engine.MonthKey(start), CreatedAt: start,
		}
	}
	require.NoError(t, s.AppendSession(ctx, mk("s2", "u1", "p1", time.Hour)))
	require.NoError(t, s.AppendSession(ctx, mk("s1", "u1", "p2", 0)))
	require.NoError(t, s.AppendSession(ctx, mk("s3", "u2", "p1", 2*time.Hour)))
	assert.ErrorIs(t, s.AppendSession(ctx, mk("s3", "u2", "p1", 0)), engine.ErrDuplicate)

	byUser, err := s.ListSessionsByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, byUser, 2)
	assert.Equal(t, engine.SessionID("s1"), byUser[0].ID, "ordered by start time")
	assert.True(t, base.Equal(byUser[0].StartTime))
	assert.Equal(t, "2026-03", byUser[0].Month)

	byPOI, err := s.ListSessionsByPOI(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, byPOI, 2)
	assert.Equal(t, engine.SessionID("s2"), byPOI[0].ID)
}

// =============================================================================
// CHALLENGES
// =============================================================================

func challenge(id engine.ChallengeID, user engine.UserID, p engine.Period, expires time.Time) engine.Challenge {
	return engine.Challenge{
		ID: id, UserID: user, Period: p,
		Type: engine.ChallengeEntryCount, Tier: engine.TierEasy,
		Title: "Make 3 entries today", TargetValue: 3,
		RewardDifficulty: 2, Cost: 50,
		ExpiresAt: expires, CreatedAt: base,
	}
}

func testChallengeCAS(t *testing.T, s engine.Store) {
	ctx := context.Background()

	require.NoError(t, s.CreateChallenge(ctx, challenge("c1", "u1", engine.PeriodDaily, engine.EndOfDay(base))))
	assert.ErrorIs(t, s.CreateChallenge(ctx, challenge("c1", "u1", engine.PeriodDaily, base)), engine.ErrDuplicate)

	ok, err := s.UpdateChallengeProgress(ctx, "c1", 2, nil)
	require.NoError(t, err)
	assert.True(t, ok)

	done := base.Add(time.Minute)
	ok, err = s.UpdateChallengeProgress(ctx, "c1", 3, &done)
	require.NoError(t, err)
	assert.True(t, ok)

	// A second completer loses.
	later := base.Add(time.Hour)
	ok, err = s.UpdateChallengeProgress(ctx, "c1", 9, &later)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetChallenge(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Progress)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, done.Equal(*got.CompletedAt))

	_, err = s.UpdateChallengeProgress(ctx, "missing", 1, nil)
	assert.ErrorIs(t, err, engine.ErrChallengeNotFound)

	require.NoError(t, s.DeleteChallenge(ctx, "c1"))
	assert.ErrorIs(t, s.DeleteChallenge(ctx, "c1"), engine.ErrChallengeNotFound)
}

func testChallengeFilters(t *testing.T, s engine.Store) {
	ctx := context.Background()

	eod := engine.EndOfDay(base)
	require.NoError(t, s.CreateChallenge(ctx, challenge("c1", "u1", engine.PeriodDaily, eod)))
	require.NoError(t, s.CreateChallenge(ctx, challenge("c2", "u1", engine.PeriodWeekly, eod.AddDate(0, 0, 5))))
	require.NoError(t, s.CreateChallenge(ctx, challenge("c3", "u2", engine.PeriodDaily, eod.AddDate(0, 0, -1))))
	done := base
	_, err := s.UpdateChallengeProgress(ctx, "c2", 3, &done)
	require.NoError(t, err)

	u1 := engine.UserID("u1")
	daily := engine.PeriodDaily
	live, err := s.ListChallenges(ctx, engine.ChallengeFilter{UserID: &u1, Period: &daily, ExpiresAfter: &base, Limit: 1})
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, engine.ChallengeID("c1"), live[0].ID)

	// Strict: expiring exactly at the bound is not "after" it.
	atBound, err := s.ListChallenges(ctx, engine.ChallengeFilter{UserID: &u1, Period: &daily, ExpiresAfter: &eod})
	require.NoError(t, err)
	assert.Empty(t, atBound)

	open, err := s.ListChallenges(ctx, engine.ChallengeFilter{UserID: &u1, OpenOnly: true})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, engine.ChallengeID("c1"), open[0].ID)

	expired, err := s.ListChallenges(ctx, engine.ChallengeFilter{OpenOnly: true, ExpiredBefore: &base})
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, engine.ChallengeID("c3"), expired[0].ID)
}

// =============================================================================
// REWARDS & ACTIVATIONS
// =============================================================================

func testRewards(t *testing.T, s engine.Store) {
	ctx := context.Background()

	require.NoError(t, s.SaveReward(ctx, engine.Reward{ID: "r1", Name: "Coins", Type: engine.RewardCoins, Value: 10, Difficulty: 3, IsActive: true}))
	require.NoError(t, s.SaveReward(ctx, engine.Reward{ID: "r2", Name: "Shield", Type: engine.RewardDecayReduction, Value: 1, DurationHours: intPtr(24), Difficulty: 3, IsActive: false}))
	require.NoError(t, s.SaveReward(ctx, engine.Reward{ID: "r3", Name: "Radius", Type: engine.RewardLargerRadius, Value: 5, Uses: intPtr(2), Difficulty: 4, IsActive: true}))

	d := 3
	active, err := s.ListRewards(ctx, engine.RewardFilter{Difficulty: &d, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, engine.RewardID("r1"), active[0].ID)

	r, err := s.GetReward(ctx, "r2")
	require.NoError(t, err)
	require.NotNil(t, r.DurationHours)
	assert.Equal(t, 24, *r.DurationHours)
	assert.Nil(t, r.Uses)

	_, err = s.GetReward(ctx, "nope")
	assert.ErrorIs(t, err, engine.ErrRewardNotFound)
}

func testActivations(t *testing.T, s engine.Store) {
	ctx := context.Background()

	season := "2026-03"
	origin := engine.ChallengeID("c1")
	require.NoError(t, s.AppendActivation(ctx, engine.Activation{
		ID: "a2", UserID: "u1", RewardID: "r1", RewardType: engine.RewardLargerRadius, RewardValue: 5,
		ActivatedAt: base.Add(time.Hour), UsesRemaining: intPtr(2), IsActive: true, ChallengeID: &origin,
	}))
	require.NoError(t, s.AppendActivation(ctx, engine.Activation{
		ID: "a1", UserID: "u1", RewardID: "r2", RewardType: engine.RewardBonusCrowns, RewardValue: 1,
		ActivatedAt: base, Season: &season, IsActive: true,
	}))
	// Same id under another user is a different record.
	require.NoError(t, s.AppendActivation(ctx, engine.Activation{
		ID: "a1", UserID: "u2", RewardID: "r2", RewardType: engine.RewardCoins, RewardValue: 9,
		ActivatedAt: base, IsActive: true,
	}))
	assert.ErrorIs(t, s.AppendActivation(ctx, engine.Activation{ID: "a1", UserID: "u1"}), engine.ErrDuplicate)

	u1 := engine.UserID("u1")
	mine, err := s.ListActivations(ctx, engine.ActivationFilter{UserID: &u1})
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, engine.ActivationID("a1"), mine[0].ID, "ordered by activated_at")
	require.NotNil(t, mine[1].ChallengeID)
	assert.Equal(t, origin, *mine[1].ChallengeID)

	crowns := engine.RewardBonusCrowns
	seasonal, err := s.ListActivations(ctx, engine.ActivationFilter{RewardType: &crowns, Season: &season})
	require.NoError(t, err)
	require.Len(t, seasonal, 1)
	assert.Equal(t, engine.UserID("u1"), seasonal[0].UserID)

	a, err := s.GetActivation(ctx, "u1", "a2")
	require.NoError(t, err)
	a.UsesRemaining = intPtr(1)
	a.IsActive = false
	require.NoError(t, s.UpdateActivation(ctx, *a))
	a, err = s.GetActivation(ctx, "u1", "a2")
	require.NoError(t, err)
	assert.Equal(t, 1, *a.UsesRemaining)
	assert.False(t, a.IsActive)

	require.NoError(t, s.DeleteActivation(ctx, "u1", "a1"))
	_, err = s.GetActivation(ctx, "u1", "a1")
	assert.ErrorIs(t, err, engine.ErrActivationNotFound)
	_, err = s.GetActivation(ctx, "u2", "a1")
	assert.NoError(t, err, "other user's activation untouched")
	assert.ErrorIs(t, s.DeleteActivation(ctx, "u1", "a1"), engine.ErrActivationNotFound)
}

func testGlobals(t *testing.T, s engine.Store) {
	ctx := context.Background()

	_, err := s.GetGlobal(ctx, "game-settings")
	assert.ErrorIs(t, err, engine.ErrGlobalNotFound)

	require.NoError(t, s.SaveGlobal(ctx, "game-settings", []byte(`{"a":1}`)))
	require.NoError(t, s.SaveGlobal(ctx, "game-settings", []byte(`{"a":2}`)))
	doc, err := s.GetGlobal(ctx, "game-settings")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":2}`, string(doc))
}
