/*
Package rewards manages the lifecycle of rewards granted to users.

PURPOSE:
  Catalog rewards are immutable. Granting one creates an Activation row
  keyed by (user, activation id) carrying a copy of the reward's type and
  value. Activations are then retired by expiry rules.

EXPIRY POLICIES (derived from which fields are set):
  season:    bonus_crowns only, scoped to the calendar month of activation
  duration:  activatedAt + duration hours
  uses:      usesRemaining reaches 0
  permanent: none of the above

LIFECYCLE:
  active --duration elapsed, uses left--> inactive (kept, still consumable)
  active --duration elapsed, no uses----> deleted
  any    --last use consumed------------> deleted immediately
  inactive/expired/exhausted --sweep----> deleted

  Sweep-on-write runs on every activation for the user being granted, in
  addition to the scheduled sweeps in sweeps.go.

SEE ALSO:
  - engine/types.go: Activation and ExpiryPolicy
  - sweeps.go: Scheduled time/use and season sweeps
*/
package rewards

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/warp/capture-engine/engine"
)

// Store is the persistence the manager needs.
type Store interface {
	engine.UserStore
	engine.RewardCatalog
	engine.ActivationStore
}

type Manager struct {
	store Store
	Clock func() time.Time
}

func NewManager(store Store) *Manager {
	return &Manager{store: store, Clock: time.Now}
}

// Activate grants a catalog reward to a user. origin links the activation to
// the challenge that earned it and may be nil.
func (m *Manager) Activate(ctx context.Context, user engine.UserID, rewardID engine.RewardID, origin *engine.ChallengeID) (*engine.Activation, error) {
	now := m.Clock()

	if _, err := m.store.GetUser(ctx, user); err != nil {
		return nil, err
	}
	reward, err := m.store.GetReward(ctx, rewardID)
	if err != nil {
		return nil, err
	}

	if err := m.sweepOnWrite(ctx, user, now); err != nil {
		// Stale entries are retried by the next activation or the scheduled sweep.
		log.Printf("[Rewards] Error sweeping activations for %s: %v", user, err)
	}

	a := NewActivation(user, *reward, origin, now)
	if err := m.store.AppendActivation(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to store activation: %w", err)
	}
	log.Printf("[Rewards] Activated %s (%s=%v) for %s", reward.ID, a.RewardType, a.RewardValue, user)
	return &a, nil
}

// NewActivation builds the activation record for a reward granted at now.
// bonus_crowns are season-scoped and never carry duration or uses.
func NewActivation(user engine.UserID, reward engine.Reward, origin *engine.ChallengeID, now time.Time) engine.Activation {
	a := engine.Activation{
		ID:          engine.NewActivationID(),
		UserID:      user,
		RewardID:    reward.ID,
		RewardType:  reward.Type,
		RewardValue: reward.Value,
		ActivatedAt: now,
		IsActive:    true,
	}
	if origin != nil {
		id := *origin
		a.ChallengeID = &id
	}
	if reward.Type == engine.RewardBonusCrowns {
		season := engine.MonthKey(now)
		a.Season = &season
		return a
	}
	if reward.DurationHours != nil {
		d := *reward.DurationHours
		a.DurationHours = &d
	}
	if reward.Uses != nil {
		u := *reward.Uses
		a.UsesRemaining = &u
	}
	return a
}

// sweepOnWrite retires the user's elapsed duration-bound activations.
func (m *Manager) sweepOnWrite(ctx context.Context, user engine.UserID, now time.Time) error {
	existing, err := m.store.ListActivations(ctx, engine.ActivationFilter{UserID: &user})
	if err != nil {
		return err
	}
	for _, a := range existing {
		if !a.IsActive || !a.DurationElapsed(now) {
			continue
		}
		if a.UsesRemaining == nil || *a.UsesRemaining > 0 {
			a.IsActive = false
			if err := m.store.UpdateActivation(ctx, a); err != nil {
				return err
			}
			continue
		}
		if err := m.store.DeleteActivation(ctx, a.UserID, a.ID); err != nil {
			return err
		}
	}
	return nil
}

// ConsumeUse spends one use of a use-bound activation and returns what is
// left. The activation is deleted as soon as its last use is spent; inactive
// activations with uses left can still be consumed.
func (m *Manager) ConsumeUse(ctx context.Context, user engine.UserID, id engine.ActivationID) (int, error) {
	a, err := m.store.GetActivation(ctx, user, id)
	if err != nil {
		return 0, err
	}
	if a.UsesRemaining == nil || *a.UsesRemaining <= 0 {
		return 0, engine.ErrNoUsesRemaining
	}

	left := *a.UsesRemaining - 1
	if left == 0 {
		if err := m.store.DeleteActivation(ctx, user, id); err != nil {
			return 0, err
		}
		return 0, nil
	}
	a.UsesRemaining = &left
	if err := m.store.UpdateActivation(ctx, *a); err != nil {
		return 0, err
	}
	return left, nil
}

// ActiveFor returns the user's activations that currently grant a benefit.
func (m *Manager) ActiveFor(ctx context.Context, user engine.UserID) ([]engine.Activation, error) {
	all, err := m.store.ListActivations(ctx, engine.ActivationFilter{UserID: &user})
	if err != nil {
		return nil, err
	}
	now := m.Clock()
	var out []engine.Activation
	for _, a := range all {
		if a.Effective(now) {
			out = append(out, a)
		}
	}
	return out, nil
}

// List returns every stored activation of the user, oldest first.
func (m *Manager) List(ctx context.Context, user engine.UserID) ([]engine.Activation, error) {
	return m.store.ListActivations(ctx, engine.ActivationFilter{UserID: &user})
}
