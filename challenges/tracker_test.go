package challenges_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/capture-engine/challenges"
	"github.com/warp/capture-engine/engine"
)

func newTracker(w *world, rewards *fakeActivator) *challenges.Tracker {
	tr := challenges.NewTracker(w.store, rewards)
	tr.Clock = func() time.Time { return now.Add(6 * time.Hour) }
	return tr
}

// =============================================================================
// COMPLETION TESTS
// =============================================================================

func TestTracker_DurationCompletesOnThirdSession(t *testing.T) {
	// GIVEN: A 1200-second session_duration challenge
	// WHEN: Three 400-second sessions are recorded
	// THEN: It completes on the third, and the reward is granted once
	ctx := context.Background()
	w := newWorld(t)
	w.user("u1", 0)
	w.poi("p1", "cafe", nil)
	w.challenge("c1", "u1", engine.ChallengeSessionDuration, 1200)
	rewards := &fakeActivator{}
	tr := newTracker(w, rewards)

	for i := 0; i < 2; i++ {
		require.NoError(t, tr.HandleSessionCreated(ctx, w.session("u1", "p1", time.Duration(i)*time.Hour, 400)))
	}
	c := w.get("c1")
	assert.Equal(t, int64(800), c.Progress)
	assert.Nil(t, c.CompletedAt)
	assert.Zero(t, rewards.count())

	require.NoError(t, tr.HandleSessionCreated(ctx, w.session("u1", "p1", 2*time.Hour, 400)))
	c = w.get("c1")
	assert.Equal(t, int64(1200), c.Progress)
	require.NotNil(t, c.CompletedAt)
	assert.True(t, now.Add(6*time.Hour).Equal(*c.CompletedAt))
	require.Equal(t, 1, rewards.count())
	assert.Equal(t, grant{User: "u1", Reward: "reward-2", Origin: "c1"}, rewards.grants[0])

	// A fourth session neither moves progress nor grants again.
	require.NoError(t, tr.HandleSessionCreated(ctx, w.session("u1", "p1", 3*time.Hour, 400)))
	after := w.get("c1")
	assert.Equal(t, int64(1200), after.Progress)
	assert.True(t, c.CompletedAt.Equal(*after.CompletedAt))
	assert.Equal(t, 1, rewards.count())
}

func TestTracker_UpdatesUserStats(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	w.user("u1", 0)
	w.poi("p1", "cafe", nil)
	w.poi("p2", "park", nil)
	tr := newTracker(w, &fakeActivator{})

	require.NoError(t, tr.HandleSessionCreated(ctx, w.session("u1", "p1", 0, 300)))
	require.NoError(t, tr.HandleSessionCreated(ctx, w.session("u1", "p2", time.Hour, 200)))
	require.NoError(t, tr.HandleSessionCreated(ctx, w.session("u1", "p1", 2*time.Hour, 100)))

	u, err := w.store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(600), u.TotalSeconds)
	assert.Equal(t, 2, u.TotalPOIsClaimed)
	require.NotNil(t, u.LastActive)
}

func TestTracker_MissingUser_ReturnsError(t *testing.T) {
	w := newWorld(t)
	tr := newTracker(w, &fakeActivator{})

	err := tr.HandleSessionCreated(context.Background(), engine.Session{ID: "s1", UserID: "ghost", POIID: "p1"})

	assert.ErrorIs(t, err, engine.ErrUserNotFound)
}

func TestTracker_RewardFailureDoesNotFailEvent(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	w.user("u1", 0)
	w.poi("p1", "cafe", nil)
	w.challenge("c1", "u1", engine.ChallengeEntryCount, 1)
	tr := newTracker(w, &fakeActivator{err: errors.New("catalog down")})

	err := tr.HandleSessionCreated(ctx, w.session("u1", "p1", 0, 60))

	require.NoError(t, err)
	assert.NotNil(t, w.get("c1").CompletedAt, "completion stands")
}

func TestTracker_ExpiredButOpenStillCompletes(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	w.user("u1", 0)
	w.poi("p1", "cafe", nil)
	w.challenge("c1", "u1", engine.ChallengeEntryCount, 1, func(c *engine.Challenge) {
		c.ExpiresAt = now.Add(-time.Hour)
	})
	rewards := &fakeActivator{}

	require.NoError(t, newTracker(w, rewards).HandleSessionCreated(ctx, w.session("u1", "p1", 0, 60)))

	assert.NotNil(t, w.get("c1").CompletedAt)
	assert.Equal(t, 1, rewards.count())
}

func TestTracker_OtherUsersChallengesUntouched(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	w.user("u1", 0)
	w.user("u2", 0)
	w.poi("p1", "cafe", nil)
	w.challenge("c2", "u2", engine.ChallengeEntryCount, 5)

	require.NoError(t, newTracker(w, &fakeActivator{}).HandleSessionCreated(ctx, w.session("u1", "p1", 0, 60)))

	assert.Zero(t, w.get("c2").Progress)
}

// =============================================================================
// FORMULA TESTS
// =============================================================================

func TestTracker_LongestSession_Monotonic(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	w.user("u1", 0)
	w.poi("p1", "cafe", nil)
	w.challenge("c1", "u1", engine.ChallengeLongestSession, 3600)
	tr := newTracker(w, &fakeActivator{})

	require.NoError(t, tr.HandleSessionCreated(ctx, w.session("u1", "p1", 0, 900)))
	require.NoError(t, tr.HandleSessionCreated(ctx, w.session("u1", "p1", time.Hour, 300)))

	assert.Equal(t, int64(900), w.get("c1").Progress)
}

func TestTracker_UniquePOIs_CountsHistory(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	w.user("u1", 0)
	w.poi("p1", "cafe", nil)
	w.poi("p2", "cafe", nil)
	// A visit from before the challenge existed still counts.
	w.session("u1", "p1", -24*time.Hour, 60)
	w.challenge("c1", "u1", engine.ChallengeUniquePOIs, 3)
	tr := newTracker(w, &fakeActivator{})

	require.NoError(t, tr.HandleSessionCreated(ctx, w.session("u1", "p1", 0, 60)))
	assert.Equal(t, int64(1), w.get("c1").Progress)

	require.NoError(t, tr.HandleSessionCreated(ctx, w.session("u1", "p2", time.Hour, 60)))
	assert.Equal(t, int64(2), w.get("c1").Progress)
}

func TestTracker_CrownClaim_OnlyAsKing(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	w.user("u1", 0)
	king := engine.UserID("u1")
	other := engine.UserID("u2")
	w.poi("mine", "cafe", &king)
	w.poi("theirs", "cafe", &other)
	w.challenge("c1", "u1", engine.ChallengeCrownClaim, 5)
	tr := newTracker(w, &fakeActivator{})

	require.NoError(t, tr.HandleSessionCreated(ctx, w.session("u1", "theirs", 0, 60)))
	assert.Zero(t, w.get("c1").Progress)

	require.NoError(t, tr.HandleSessionCreated(ctx, w.session("u1", "mine", time.Hour, 60)))
	assert.Equal(t, int64(1), w.get("c1").Progress)
}

func TestTracker_CategoryVariety(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	w.user("u1", 0)
	w.poi("p1", "Coffee Shop", nil)
	w.poi("p2", "coffee-shop", nil)
	w.poi("p3", "park", nil)
	w.challenge("c1", "u1", engine.ChallengeCategoryVariety, 3)
	tr := newTracker(w, &fakeActivator{})

	require.NoError(t, tr.HandleSessionCreated(ctx, w.session("u1", "p1", 0, 60)))
	require.NoError(t, tr.HandleSessionCreated(ctx, w.session("u1", "p2", time.Hour, 60)))
	assert.Equal(t, int64(1), w.get("c1").Progress, "same category after normalization")

	require.NoError(t, tr.HandleSessionCreated(ctx, w.session("u1", "p3", 2*time.Hour, 60)))
	assert.Equal(t, int64(2), w.get("c1").Progress)
}

func TestTracker_CategorySimilarity_MatchingPOIOnly(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	w.user("u1", 0)
	w.poi("cafe-1", "Cafe", nil)
	w.poi("park-1", "park", nil)
	w.challenge("c1", "u1", engine.ChallengeCategorySimilarity, 3, func(c *engine.Challenge) {
		c.TargetCategory = strPtr("cafe")
	})
	tr := newTracker(w, &fakeActivator{})

	require.NoError(t, tr.HandleSessionCreated(ctx, w.session("u1", "park-1", 0, 60)))
	assert.Zero(t, w.get("c1").Progress)

	require.NoError(t, tr.HandleSessionCreated(ctx, w.session("u1", "cafe-1", time.Hour, 60)))
	require.NoError(t, tr.HandleSessionCreated(ctx, w.session("u1", "cafe-1", 2*time.Hour, 60)))
	assert.Equal(t, int64(2), w.get("c1").Progress)
}

func TestTracker_NewLocation_FirstVisitOnly(t *testing.T) {
	ctx := context.Background()
	w := newWorld(t)
	w.user("u1", 0)
	w.poi("p1", "cafe", nil)
	w.poi("p2", "cafe", nil)
	w.challenge("c1", "u1", engine.ChallengeNewLocation, 5)
	tr := newTracker(w, &fakeActivator{})

	require.NoError(t, tr.HandleSessionCreated(ctx, w.session("u1", "p1", 0, 60)))
	require.NoError(t, tr.HandleSessionCreated(ctx, w.session("u1", "p1", time.Hour, 60)))
	require.NoError(t, tr.HandleSessionCreated(ctx, w.session("u1", "p2", 2*time.Hour, 60)))

	assert.Equal(t, int64(2), w.get("c1").Progress)
}
