package sessions_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/capture-engine/engine"
	"github.com/warp/capture-engine/engine/store"
	"github.com/warp/capture-engine/rules"
	"github.com/warp/capture-engine/sessions"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var start = time.Date(2026, time.March, 10, 9, 0, 0, 0, time.UTC)

type recorded struct {
	events []engine.Session
}

func (r *recorded) HandleSessionCreated(_ context.Context, s engine.Session) error {
	r.events = append(r.events, s)
	return nil
}

func newTestRecorder(t *testing.T, limit string) (*sessions.Recorder, *store.Memory, *recorded) {
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.SaveUser(ctx, engine.User{ID: "u1"}))
	require.NoError(t, s.SavePOI(ctx, engine.POI{ID: "p1", Name: "Cafe", Category: "cafe"}))
	if limit != "" {
		require.NoError(t, s.SaveGlobal(ctx, rules.SlugGameSettings, []byte(`{"daily_seconds_limit": `+limit+`}`)))
	}

	sink := &recorded{}
	r := sessions.NewRecorder(s, rules.NewResolver(s), sessions.NewDispatcher(sink))
	r.Clock = func() time.Time { return start.Add(12 * time.Hour) }
	return r, s, sink
}

func req(at time.Time, seconds int64) sessions.NewSession {
	return sessions.NewSession{UserID: "u1", POIID: "p1", StartTime: at, SecondsEarned: seconds}
}

// =============================================================================
// RECORDER TESTS
// =============================================================================

func TestRecord_StoresAndDispatches(t *testing.T) {
	ctx := context.Background()
	r, s, sink := newTestRecorder(t, "3600")

	got, err := r.Record(ctx, req(start, 600))

	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "2026-03", got.Month)
	assert.True(t, start.Add(10*time.Minute).Equal(got.EndTime), "end time defaults to start + seconds")

	history, err := s.ListSessionsByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, got.ID, history[0].ID)

	require.Len(t, sink.events, 1)
	assert.Equal(t, got.ID, sink.events[0].ID)
}

func TestRecord_Validation(t *testing.T) {
	tests := []struct {
		name  string
		input sessions.NewSession
		field string
	}{
		{name: "no user", input: sessions.NewSession{POIID: "p1", StartTime: start, SecondsEarned: 1}, field: "user_id"},
		{name: "no poi", input: sessions.NewSession{UserID: "u1", StartTime: start, SecondsEarned: 1}, field: "poi_id"},
		{name: "no start", input: sessions.NewSession{UserID: "u1", POIID: "p1", SecondsEarned: 1}, field: "start_time"},
		{name: "end before start", input: sessions.NewSession{UserID: "u1", POIID: "p1", StartTime: start, EndTime: start.Add(-time.Second), SecondsEarned: 1}, field: "end_time"},
		{name: "zero seconds", input: req(start, 0), field: "seconds_earned"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, sink := newTestRecorder(t, "3600")

			_, err := r.Record(context.Background(), tt.input)

			var ve *engine.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.Empty(t, sink.events)
		})
	}
}

func TestRecord_UnknownUserOrPOI(t *testing.T) {
	r, _, _ := newTestRecorder(t, "3600")
	ctx := context.Background()

	_, err := r.Record(ctx, sessions.NewSession{UserID: "ghost", POIID: "p1", StartTime: start, SecondsEarned: 10})
	assert.ErrorIs(t, err, engine.ErrUserNotFound)

	_, err = r.Record(ctx, sessions.NewSession{UserID: "u1", POIID: "nowhere", StartTime: start, SecondsEarned: 10})
	assert.ErrorIs(t, err, engine.ErrPOINotFound)
}

func TestRecord_MissingDailyLimit(t *testing.T) {
	r, s, sink := newTestRecorder(t, "")

	_, err := r.Record(context.Background(), req(start, 10))

	var ce *engine.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "daily_seconds_limit", ce.Field)
	assert.Empty(t, sink.events)
	history, err := s.ListSessionsByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, history, "nothing written")
}

func TestRecord_DailyLimit(t *testing.T) {
	// GIVEN: A 1000 second daily limit and 800 seconds already recorded today
	// WHEN: A 300 second session starts the same day
	// THEN: It is rejected, but a 200 second one and tomorrow's session pass
	ctx := context.Background()
	r, _, _ := newTestRecorder(t, "1000")

	_, err := r.Record(ctx, req(start, 800))
	require.NoError(t, err)

	_, err = r.Record(ctx, req(start.Add(time.Hour), 300))
	var dle *engine.DailyLimitError
	require.ErrorAs(t, err, &dle)
	assert.Equal(t, int64(1000), dle.Limit)
	assert.Equal(t, int64(800), dle.Used)
	assert.Equal(t, int64(300), dle.Requested)

	_, err = r.Record(ctx, req(start.Add(2*time.Hour), 200))
	require.NoError(t, err, "exactly at the limit is allowed")

	_, err = r.Record(ctx, req(start.AddDate(0, 0, 1), 900))
	require.NoError(t, err)
}

// =============================================================================
// DISPATCHER TESTS
// =============================================================================

func TestDispatch_RetriesRetryableErrors(t *testing.T) {
	calls := 0
	flaky := sessions.HandlerFunc(func(context.Context, engine.Session) error {
		calls++
		if calls < 3 {
			return errors.New("store busy")
		}
		return nil
	})
	d := sessions.NewDispatcher(flaky)
	d.Backoff = 0

	failed := d.Dispatch(context.Background(), engine.Session{ID: "s1"})

	assert.Zero(t, failed)
	assert.Equal(t, 3, calls)
}

func TestDispatch_DoesNotRetryPermanentErrors(t *testing.T) {
	calls := 0
	broken := sessions.HandlerFunc(func(context.Context, engine.Session) error {
		calls++
		return fmt.Errorf("lookup: %w", engine.ErrUserNotFound)
	})
	after := &recorded{}
	d := sessions.NewDispatcher(broken)
	d.Register(after)
	d.Backoff = 0

	failed := d.Dispatch(context.Background(), engine.Session{ID: "s1"})

	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, calls)
	assert.Len(t, after.events, 1, "later handlers still run")
}

func TestDispatch_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	down := sessions.HandlerFunc(func(context.Context, engine.Session) error {
		calls++
		return errors.New("timeout")
	})
	d := sessions.NewDispatcher(down)
	d.MaxAttempts = 2
	d.Backoff = 0

	failed := d.Dispatch(context.Background(), engine.Session{ID: "s1"})

	assert.Equal(t, 1, failed)
	assert.Equal(t, 2, calls)
}
