package challenges_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/warp/capture-engine/challenges"
	"github.com/warp/capture-engine/engine"
	"github.com/warp/capture-engine/engine/store"
	"github.com/warp/capture-engine/rules"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var now = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int       { return &v }
func strPtr(s string) *string { return &s }

// allTargets configures every type and tier for the period with the same
// target per tier.
func allTargets(easy, medium, hard int64) map[string]rules.TierTargets {
	out := make(map[string]rules.TierTargets)
	for _, typ := range engine.ChallengeTypes {
		out[string(typ)] = rules.TierTargets{Easy: int64Ptr(easy), Medium: int64Ptr(medium), Hard: int64Ptr(hard)}
	}
	return out
}

func testRules(t *testing.T, count int, categories ...rules.Category) *rules.ChallengeRules {
	t.Helper()
	cs := rules.ChallengeSettings{
		Periods: map[string]rules.PeriodSettings{
			"daily":   {GenerationCount: intPtr(count), BaseCost: 50, Targets: allTargets(2, 4, 6)},
			"weekly":  {GenerationCount: intPtr(count), BaseCost: 150, Targets: allTargets(3, 6, 9)},
			"monthly": {GenerationCount: intPtr(count), BaseCost: 400, Targets: allTargets(5, 10, 20)},
		},
		Categories: categories,
	}
	r, err := rules.NewChallengeRules(cs)
	require.NoError(t, err)
	return r
}

// seedCatalog stores one active reward per difficulty.
func seedCatalog(t *testing.T, s engine.RewardCatalog) {
	t.Helper()
	for d := engine.MinDifficulty; d <= engine.MaxDifficulty; d++ {
		require.NoError(t, s.SaveReward(context.Background(), engine.Reward{
			ID:         engine.RewardID("reward-" + string(rune('0'+d))),
			Name:       "Reward",
			Type:       engine.RewardCoins,
			Value:      float64(d * 10),
			Difficulty: d,
			IsActive:   true,
		}))
	}
}

func newGenerator(seed uint64) *challenges.Generator {
	return challenges.NewGenerator(rules.MustTemplates(), seed)
}

// fakeActivator records every grant.
type fakeActivator struct {
	mu     sync.Mutex
	grants []grant
	err    error
}

type grant struct {
	User   engine.UserID
	Reward engine.RewardID
	Origin engine.ChallengeID
}

func (f *fakeActivator) Activate(_ context.Context, user engine.UserID, reward engine.RewardID, origin *engine.ChallengeID) (*engine.Activation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	g := grant{User: user, Reward: reward}
	if origin != nil {
		g.Origin = *origin
	}
	f.grants = append(f.grants, g)
	return &engine.Activation{ID: engine.NewActivationID(), UserID: user, RewardID: reward, IsActive: true}, nil
}

func (f *fakeActivator) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.grants)
}

// world is a memory store with users and POIs.
type world struct {
	t     *testing.T
	store *store.Memory
	seq   int
}

func newWorld(t *testing.T) *world {
	return &world{t: t, store: store.NewMemory()}
}

func (w *world) user(id engine.UserID, coins int64) {
	require.NoError(w.t, w.store.SaveUser(context.Background(), engine.User{ID: id, Coins: coins, CreatedAt: now}))
}

func (w *world) poi(id engine.POIID, category string, king *engine.UserID) {
	require.NoError(w.t, w.store.SavePOI(context.Background(), engine.POI{ID: id, Name: string(id), Category: category, CurrentKing: king}))
}

func (w *world) challenge(id engine.ChallengeID, user engine.UserID, typ engine.ChallengeType, target int64, opts ...func(*engine.Challenge)) {
	c := engine.Challenge{
		ID: id, UserID: user, Period: engine.PeriodDaily, Type: typ, Tier: engine.TierEasy,
		TargetValue: target, RewardDifficulty: 2, Cost: 50, RewardID: rewardID("reward-2"),
		ExpiresAt: engine.EndOfDay(now), CreatedAt: now,
	}
	for _, o := range opts {
		o(&c)
	}
	require.NoError(w.t, w.store.CreateChallenge(context.Background(), c))
}

// session appends a session starting offset after now and returns it.
func (w *world) session(user engine.UserID, poi engine.POIID, offset time.Duration, seconds int64) engine.Session {
	w.seq++
	start := now.Add(offset)
	s := engine.Session{
		ID:            engine.SessionID("s-" + string(rune('a'+w.seq))),
		UserID:        user,
		POIID:         poi,
		StartTime:     start,
		EndTime:       start.Add(time.Duration(seconds) * time.Second),
		SecondsEarned: seconds,
		Month:         engine.MonthKey(start),
		CreatedAt:     start,
	}
	require.NoError(w.t, w.store.AppendSession(context.Background(), s))
	return s
}

func (w *world) get(id engine.ChallengeID) engine.Challenge {
	c, err := w.store.GetChallenge(context.Background(), id)
	require.NoError(w.t, err)
	return *c
}

func rewardID(id string) *engine.RewardID {
	r := engine.RewardID(id)
	return &r
}
