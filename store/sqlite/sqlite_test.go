package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/capture-engine/engine"
	"github.com/warp/capture-engine/engine/storetest"
	"github.com/warp/capture-engine/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLite_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) engine.Store { return newTestStore(t) })
}

func TestSQLite_TimesRoundTripAcrossZones(t *testing.T) {
	// GIVEN: A challenge whose expiry was computed in a non-UTC zone
	// WHEN: It is stored and read back
	// THEN: The instant is preserved and range filters compare instants
	store := newTestStore(t)
	ctx := context.Background()

	loc := time.FixedZone("UTC-5", -5*3600)
	expires := engine.EndOfDay(time.Date(2026, time.March, 10, 20, 0, 0, 0, loc))
	require.NoError(t, store.CreateChallenge(ctx, engine.Challenge{
		ID: "c1", UserID: "u1", Period: engine.PeriodDaily, Type: engine.ChallengeSessionDuration,
		Tier: engine.TierHard, TargetValue: 1800, ExpiresAt: expires,
	}))

	got, err := store.GetChallenge(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, expires.Equal(got.ExpiresAt))

	// 04:59 UTC on the 11th is still before 23:59:59.999 on the 10th in UTC-5.
	before := time.Date(2026, time.March, 11, 4, 59, 0, 0, time.UTC)
	live, err := store.ListChallenges(ctx, engine.ChallengeFilter{ExpiresAfter: &before})
	require.NoError(t, err)
	assert.Len(t, live, 1)
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.db")
	ctx := context.Background()

	store, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, store.SaveUser(ctx, engine.User{ID: "u1", Coins: 42}))
	require.NoError(t, store.Close())

	store, err = sqlite.New(path)
	require.NoError(t, err)
	defer store.Close()

	u, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(42), u.Coins)
}

func TestSQLite_Reset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveUser(ctx, engine.User{ID: "u1"}))
	require.NoError(t, store.SaveGlobal(ctx, "game-settings", []byte(`{}`)))

	require.NoError(t, store.Reset(ctx))

	_, err := store.GetUser(ctx, "u1")
	assert.ErrorIs(t, err, engine.ErrUserNotFound)
	_, err = store.GetGlobal(ctx, "game-settings")
	assert.ErrorIs(t, err, engine.ErrGlobalNotFound)
}
