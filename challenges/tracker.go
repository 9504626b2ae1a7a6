/*
tracker.go - Progress tracking driven by session-created events

PURPOSE:
  After a session is persisted, updates the owner's stats and advances
  every open challenge the user holds. Expired-but-open challenges are
  included: a requirement met just after expiry still completes.

PROGRESS FORMULAS:
  longest_session:     max(progress, secondsEarned)
  session_duration:    progress + secondsEarned
  entry_count:         progress + 1 (any category)
  unique_pois:         distinct POIs across all the user's sessions
  crown_claim:         progress + 1 when the user is king of the POI now
  category_variety:    distinct POI categories across all sessions
  category_similarity: sessions at this POI, when its category matches
  new_location:        progress + 1 when no earlier session at this POI

COMPLETION:
  Progress and completion are written in one compare-and-set that only
  applies while completedAt is null. The reward is activated only when
  that write transitions the challenge, so it fires exactly once.

FAILURE SEMANTICS:
  HandleSessionCreated returns an error only before its first write, so
  a dispatcher may retry it. After that every failure is logged and the
  loop moves on to the next challenge.

SEE ALSO:
  - sessions/dispatch.go: Invokes the tracker with bounded retry
  - rewards/manager.go: Activate
*/
package challenges

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/warp/capture-engine/engine"
	"github.com/warp/capture-engine/rules"
)

// RewardActivator grants a catalog reward to a user.
type RewardActivator interface {
	Activate(ctx context.Context, user engine.UserID, reward engine.RewardID, origin *engine.ChallengeID) (*engine.Activation, error)
}

type Tracker struct {
	store   engine.Store
	rewards RewardActivator
	Clock   func() time.Time
}

func NewTracker(store engine.Store, rewards RewardActivator) *Tracker {
	return &Tracker{store: store, rewards: rewards, Clock: time.Now}
}

// HandleSessionCreated applies one persisted session.
func (t *Tracker) HandleSessionCreated(ctx context.Context, sess engine.Session) error {
	now := t.Clock()

	user, err := t.store.GetUser(ctx, sess.UserID)
	if err != nil {
		return fmt.Errorf("failed to load user %s: %w", sess.UserID, err)
	}
	history, err := t.store.ListSessionsByUser(ctx, sess.UserID)
	if err != nil {
		return fmt.Errorf("failed to load sessions for %s: %w", sess.UserID, err)
	}

	ev := &event{session: sess, history: history, pois: t.store, cache: make(map[engine.POIID]*engine.POI)}

	user.TotalSeconds += sess.SecondsEarned
	user.TotalPOIsClaimed = ev.distinctPOIs()
	user.LastActive = &now
	if err := t.store.SaveUser(ctx, *user); err != nil {
		return fmt.Errorf("failed to update user %s: %w", sess.UserID, err)
	}

	open, err := t.store.ListChallenges(ctx, engine.ChallengeFilter{UserID: &sess.UserID, OpenOnly: true})
	if err != nil {
		log.Printf("[Progress] Error listing challenges for %s: %v", sess.UserID, err)
		return nil
	}

	for _, c := range open {
		if err := t.advance(ctx, ev, c, now); err != nil {
			log.Printf("[Progress] Error updating challenge %s for %s: %v", c.ID, sess.UserID, err)
		}
	}
	return nil
}

func (t *Tracker) advance(ctx context.Context, ev *event, c engine.Challenge, now time.Time) error {
	progress, applies, err := ev.progressFor(ctx, c)
	if err != nil {
		return err
	}
	if !applies {
		return nil
	}

	completing := progress >= c.TargetValue
	if progress == c.Progress && !completing {
		return nil
	}

	var completedAt *time.Time
	if completing {
		completedAt = &now
	}
	applied, err := t.store.UpdateChallengeProgress(ctx, c.ID, progress, completedAt)
	if err != nil {
		return err
	}
	if !applied || !completing {
		return nil
	}

	log.Printf("[Progress] Challenge %s (%s) completed by %s", c.ID, c.Type, c.UserID)
	if c.RewardID == nil {
		return nil
	}
	id := c.ID
	if _, err := t.rewards.Activate(ctx, c.UserID, *c.RewardID, &id); err != nil {
		return fmt.Errorf("failed to activate reward %s: %w", *c.RewardID, err)
	}
	return nil
}

// =============================================================================
// EVENT CONTEXT - Lazily loaded data shared by all challenges of one event
// =============================================================================

type event struct {
	session engine.Session
	history []engine.Session
	pois    engine.POIStore
	cache   map[engine.POIID]*engine.POI
}

func (ev *event) poi(ctx context.Context, id engine.POIID) (*engine.POI, error) {
	if p, ok := ev.cache[id]; ok {
		return p, nil
	}
	p, err := ev.pois.GetPOI(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load poi %s: %w", id, err)
	}
	ev.cache[id] = p
	return p, nil
}

func (ev *event) distinctPOIs() int {
	seen := make(map[engine.POIID]bool)
	for _, s := range ev.history {
		seen[s.POIID] = true
	}
	return len(seen)
}

func (ev *event) distinctCategories(ctx context.Context) (int, error) {
	seenPOI := make(map[engine.POIID]bool)
	categories := make(map[string]bool)
	for _, s := range ev.history {
		if seenPOI[s.POIID] {
			continue
		}
		seenPOI[s.POIID] = true
		p, err := ev.poi(ctx, s.POIID)
		if err != nil {
			return 0, err
		}
		if key := rules.CategoryKey(p.Category); key != "" {
			categories[key] = true
		}
	}
	return len(categories), nil
}

func (ev *event) sessionsAt(id engine.POIID) int64 {
	var n int64
	for _, s := range ev.history {
		if s.POIID == id {
			n++
		}
	}
	return n
}

// firstVisit reports that no other session by the user at this POI started
// at or before this one.
func (ev *event) firstVisit() bool {
	for _, s := range ev.history {
		if s.ID == ev.session.ID || s.POIID != ev.session.POIID {
			continue
		}
		if !s.StartTime.After(ev.session.StartTime) {
			return false
		}
	}
	return true
}

// progressFor returns the new progress and whether the event touches the
// challenge at all.
func (ev *event) progressFor(ctx context.Context, c engine.Challenge) (int64, bool, error) {
	s := ev.session
	switch c.Type {
	case engine.ChallengeLongestSession:
		return max(c.Progress, s.SecondsEarned), true, nil

	case engine.ChallengeSessionDuration:
		return c.Progress + s.SecondsEarned, true, nil

	case engine.ChallengeEntryCount:
		return c.Progress + 1, true, nil

	case engine.ChallengeUniquePOIs:
		return int64(ev.distinctPOIs()), true, nil

	case engine.ChallengeCrownClaim:
		p, err := ev.poi(ctx, s.POIID)
		if err != nil {
			return 0, false, err
		}
		if !p.IsKing(s.UserID) {
			return c.Progress, false, nil
		}
		return c.Progress + 1, true, nil

	case engine.ChallengeCategoryVariety:
		n, err := ev.distinctCategories(ctx)
		if err != nil {
			return 0, false, err
		}
		return int64(n), true, nil

	case engine.ChallengeCategorySimilarity:
		if c.TargetCategory == nil {
			return c.Progress, false, nil
		}
		p, err := ev.poi(ctx, s.POIID)
		if err != nil {
			return 0, false, err
		}
		if rules.CategoryKey(p.Category) != *c.TargetCategory {
			return c.Progress, false, nil
		}
		return ev.sessionsAt(s.POIID), true, nil

	case engine.ChallengeNewLocation:
		if !ev.firstVisit() {
			return c.Progress, false, nil
		}
		return c.Progress + 1, true, nil
	}
	return 0, false, fmt.Errorf("unknown challenge type %q", c.Type)
}
