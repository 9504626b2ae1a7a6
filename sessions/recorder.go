package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/capture-engine/engine"
	"github.com/warp/capture-engine/rules"
)

// NewSession is the input to Record.
type NewSession struct {
	UserID        engine.UserID `json:"user_id"`
	POIID         engine.POIID  `json:"poi_id"`
	StartTime     time.Time     `json:"start_time"`
	EndTime       time.Time     `json:"end_time"`
	SecondsEarned int64         `json:"seconds_earned"`
}

// Validate checks the request shape without touching the store.
func (n NewSession) Validate() error {
	switch {
	case n.UserID == "":
		return &engine.ValidationError{Field: "user_id", Message: "required"}
	case n.POIID == "":
		return &engine.ValidationError{Field: "poi_id", Message: "required"}
	case n.StartTime.IsZero():
		return &engine.ValidationError{Field: "start_time", Message: "required"}
	case !n.EndTime.IsZero() && n.EndTime.Before(n.StartTime):
		return &engine.ValidationError{Field: "end_time", Message: "before start_time"}
	case n.SecondsEarned <= 0:
		return &engine.ValidationError{Field: "seconds_earned", Message: "must be > 0"}
	}
	return nil
}

type Recorder struct {
	store      engine.Store
	resolver   *rules.Resolver
	dispatcher *Dispatcher
	Clock      func() time.Time
}

func NewRecorder(store engine.Store, resolver *rules.Resolver, dispatcher *Dispatcher) *Recorder {
	return &Recorder{store: store, resolver: resolver, dispatcher: dispatcher, Clock: time.Now}
}

// Record validates and stores a session, then dispatches SessionCreated.
// Rejections (validation, unknown user or POI, daily cap, missing config)
// happen before the write; nothing after the write can fail the call.
func (r *Recorder) Record(ctx context.Context, req NewSession) (*engine.Session, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.EndTime.IsZero() {
		req.EndTime = req.StartTime.Add(time.Duration(req.SecondsEarned) * time.Second)
	}
	if _, err := r.store.GetUser(ctx, req.UserID); err != nil {
		return nil, err
	}
	if _, err := r.store.GetPOI(ctx, req.POIID); err != nil {
		return nil, err
	}

	settings, err := r.resolver.GameSettings(ctx)
	if err != nil {
		return nil, err
	}
	limit, err := settings.RequireDailyLimit()
	if err != nil {
		return nil, err
	}
	used, err := r.secondsOnDay(ctx, req.UserID, req.StartTime)
	if err != nil {
		return nil, err
	}
	if used+req.SecondsEarned > limit {
		return nil, &engine.DailyLimitError{UserID: req.UserID, Limit: limit, Used: used, Requested: req.SecondsEarned}
	}

	s := engine.Session{
		ID:            engine.NewSessionID(),
		UserID:        req.UserID,
		POIID:         req.POIID,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		SecondsEarned: req.SecondsEarned,
		Month:         engine.MonthKey(req.StartTime),
		CreatedAt:     r.Clock(),
	}
	if err := r.store.AppendSession(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	if r.dispatcher != nil {
		r.dispatcher.Dispatch(ctx, s)
	}
	return &s, nil
}

// secondsOnDay sums the user's seconds for sessions starting on the same
// calendar day as at, in at's location.
func (r *Recorder) secondsOnDay(ctx context.Context, user engine.UserID, at time.Time) (int64, error) {
	history, err := r.store.ListSessionsByUser(ctx, user)
	if err != nil {
		return 0, err
	}
	day := engine.StartOfDay(at)
	var total int64
	for _, s := range history {
		if engine.StartOfDay(s.StartTime.In(at.Location())).Equal(day) {
			total += s.SecondsEarned
		}
	}
	return total, nil
}
