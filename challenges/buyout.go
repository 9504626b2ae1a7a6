package challenges

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/warp/capture-engine/engine"
)

// =============================================================================
// BUYOUT - Coin-paid completion regardless of progress
// =============================================================================

type Buyout struct {
	store   engine.Store
	rewards RewardActivator
	Clock   func() time.Time
}

func NewBuyout(store engine.Store, rewards RewardActivator) *Buyout {
	return &Buyout{store: store, rewards: rewards, Clock: time.Now}
}

type BuyoutResult struct {
	Challenge  engine.Challenge   `json:"challenge"`
	CoinsLeft  int64              `json:"coins_left"`
	Activation *engine.Activation `json:"activation,omitempty"`
}

// Complete marks an open, unexpired challenge completed for its owner and
// deducts its cost. The completion write is the same compare-and-set the
// tracker uses, so a buyout racing a natural completion loses cleanly.
func (b *Buyout) Complete(ctx context.Context, user engine.UserID, id engine.ChallengeID) (*BuyoutResult, error) {
	now := b.Clock()

	c, err := b.store.GetChallenge(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.UserID != user {
		return nil, engine.ErrNotOwner
	}
	if c.IsCompleted() {
		return nil, engine.ErrChallengeCompleted
	}
	if c.IsExpired(now) {
		return nil, engine.ErrChallengeExpired
	}

	u, err := b.store.GetUser(ctx, user)
	if err != nil {
		return nil, err
	}
	if u.Coins < c.Cost {
		return nil, &engine.InsufficientCoinsError{UserID: user, Available: u.Coins, Cost: c.Cost}
	}

	applied, err := b.store.UpdateChallengeProgress(ctx, id, c.Progress, &now)
	if err != nil {
		return nil, fmt.Errorf("failed to complete challenge %s: %w", id, err)
	}
	if !applied {
		return nil, engine.ErrChallengeCompleted
	}
	c.CompletedAt = &now

	u.Coins -= c.Cost
	if err := b.store.SaveUser(ctx, *u); err != nil {
		return nil, fmt.Errorf("challenge %s completed but coin deduction failed: %w", id, err)
	}

	result := &BuyoutResult{Challenge: *c, CoinsLeft: u.Coins}
	if c.RewardID != nil {
		a, err := b.rewards.Activate(ctx, user, *c.RewardID, &c.ID)
		if err != nil {
			log.Printf("[Rewards] Error activating reward %s for bought-out challenge %s: %v", *c.RewardID, id, err)
		} else {
			result.Activation = a
		}
	}
	log.Printf("[Progress] Challenge %s bought out by %s for %d coins", id, user, c.Cost)
	return result, nil
}
