/*
types.go - Core domain types for the capture engine

PURPOSE:
  Defines the entities every subsystem reads and writes: users, points of
  interest, capture sessions, challenges, catalog rewards and reward
  activations. These are plain structs; behaviour lives in the component
  packages (challenges, rewards, territory, sessions).

ENTITIES:
  User:       Player aggregate (seconds, kings held, coins)
  POI:        Capturable location with an optional current king
  Session:    Append-only record of time spent at a POI
  Challenge:  Periodic goal with progress and a set-once completion
  Reward:     Read-only catalog entry
  Activation: A reward granted to a user, stored in its own table

SEE ALSO:
  - store.go: Persistence interfaces
  - time.go: Period and season helpers
*/
package engine

import (
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type POIID string
type SessionID string
type ChallengeID string
type RewardID string
type ActivationID string

// =============================================================================
// ENUMERATIONS
// =============================================================================

// Period is the challenge cadence.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// Periods lists every period in generation order.
var Periods = []Period{PeriodDaily, PeriodWeekly, PeriodMonthly}

func (p Period) Valid() bool {
	switch p {
	case PeriodDaily, PeriodWeekly, PeriodMonthly:
		return true
	}
	return false
}

// Shared reports whether challenges of this period are issued to every user
// from one candidate batch rather than generated per user.
func (p Period) Shared() bool {
	return p == PeriodWeekly || p == PeriodMonthly
}

// ChallengeType selects the progress formula.
type ChallengeType string

const (
	ChallengeLongestSession     ChallengeType = "longest_session"
	ChallengeSessionDuration    ChallengeType = "session_duration"
	ChallengeEntryCount         ChallengeType = "entry_count"
	ChallengeUniquePOIs         ChallengeType = "unique_pois"
	ChallengeCrownClaim         ChallengeType = "crown_claim"
	ChallengeCategoryVariety    ChallengeType = "category_variety"
	ChallengeCategorySimilarity ChallengeType = "category_similarity"
	ChallengeNewLocation        ChallengeType = "new_location"
)

// ChallengeTypes is the canonical ordering of all eight kinds.
var ChallengeTypes = []ChallengeType{
	ChallengeLongestSession,
	ChallengeSessionDuration,
	ChallengeEntryCount,
	ChallengeUniquePOIs,
	ChallengeCrownClaim,
	ChallengeCategoryVariety,
	ChallengeCategorySimilarity,
	ChallengeNewLocation,
}

func (t ChallengeType) Valid() bool {
	for _, ct := range ChallengeTypes {
		if ct == t {
			return true
		}
	}
	return false
}

// UsesCategory reports whether a target category is sampled for this type.
func (t ChallengeType) UsesCategory() bool {
	return t == ChallengeCategorySimilarity || t == ChallengeEntryCount
}

// Tier is the generation difficulty bucket, distinct from reward difficulty.
type Tier string

const (
	TierEasy   Tier = "easy"
	TierMedium Tier = "medium"
	TierHard   Tier = "hard"
)

var Tiers = []Tier{TierEasy, TierMedium, TierHard}

// RewardType is what an activation grants.
type RewardType string

const (
	RewardEntryTimeReduction RewardType = "entry_time_reduction"
	RewardBonusSeconds       RewardType = "bonus_seconds"
	RewardLargerRadius       RewardType = "larger_radius"
	RewardExtendedCapture    RewardType = "extended_capture"
	RewardBonusCrowns        RewardType = "bonus_crowns"
	RewardDecayReduction     RewardType = "decay_reduction"
	RewardCoins              RewardType = "coins"
)

func (t RewardType) Valid() bool {
	switch t {
	case RewardEntryTimeReduction, RewardBonusSeconds, RewardLargerRadius,
		RewardExtendedCapture, RewardBonusCrowns, RewardDecayReduction, RewardCoins:
		return true
	}
	return false
}

const (
	MinDifficulty = 1
	MaxDifficulty = 9
)

// =============================================================================
// ENTITIES
// =============================================================================

type User struct {
	ID               UserID     `json:"id"`
	Name             string     `json:"name"`
	TotalSeconds     int64      `json:"total_seconds"`
	TotalPOIsClaimed int        `json:"total_pois_claimed"`
	CurrentKingOf    int        `json:"current_king_of"`
	Coins            int64      `json:"coins"`
	LastActive       *time.Time `json:"last_active,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type POI struct {
	ID          POIID   `json:"id"`
	Name        string  `json:"name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Type        string  `json:"type"`
	Category    string  `json:"category"`
	CurrentKing *UserID `json:"current_king,omitempty"`
}

// IsKing reports whether the user holds the POI.
func (p POI) IsKing(user UserID) bool {
	return p.CurrentKing != nil && *p.CurrentKing == user
}

type Session struct {
	ID            SessionID `json:"id"`
	UserID        UserID    `json:"user_id"`
	POIID         POIID     `json:"poi_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	SecondsEarned int64     `json:"seconds_earned"`
	Month         string    `json:"month"` // YYYY-MM
	CreatedAt     time.Time `json:"created_at"`
}

type Challenge struct {
	ID               ChallengeID   `json:"id"`
	UserID           UserID        `json:"user_id"`
	Period           Period        `json:"period"`
	Type             ChallengeType `json:"challenge_type"`
	Tier             Tier          `json:"tier"`
	Title            string        `json:"title"`
	Description      string        `json:"description"`
	TargetValue      int64         `json:"target_value"`
	TargetCategory   *string       `json:"target_category,omitempty"`
	RewardDifficulty int           `json:"reward_difficulty"`
	Cost             int64         `json:"cost"`
	RewardID         *RewardID     `json:"reward_id,omitempty"`
	Progress         int64         `json:"progress"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	ExpiresAt        time.Time     `json:"expires_at"`
	Shared           bool          `json:"shared"`
	CreatedAt        time.Time     `json:"created_at"`
}

func (c Challenge) IsCompleted() bool { return c.CompletedAt != nil }

// IsExpired uses a strict comparison: a challenge expiring exactly at now is
// still live.
func (c Challenge) IsExpired(now time.Time) bool { return c.ExpiresAt.Before(now) }

type Reward struct {
	ID            RewardID   `json:"id"`
	Name          string     `json:"name"`
	Type          RewardType `json:"reward_type"`
	Value         float64    `json:"reward_value"`
	DurationHours *int       `json:"reward_duration,omitempty"`
	Uses          *int       `json:"reward_uses,omitempty"`
	Difficulty    int        `json:"difficulty"`
	IsActive      bool       `json:"is_active"`
}

// Activation is a reward granted to a user. Type and Value are copied from
// the catalog at grant time and never re-read.
type Activation struct {
	ID            ActivationID `json:"id"`
	UserID        UserID       `json:"user_id"`
	RewardID      RewardID     `json:"reward_id"`
	RewardType    RewardType   `json:"reward_type"`
	RewardValue   float64      `json:"reward_value"`
	ActivatedAt   time.Time    `json:"activated_at"`
	DurationHours *int         `json:"duration,omitempty"`
	UsesRemaining *int         `json:"uses_remaining,omitempty"`
	Season        *string      `json:"season,omitempty"`
	IsActive      bool         `json:"is_active"`
	ChallengeID   *ChallengeID `json:"challenge_id,omitempty"`
}

// ExpiryPolicy names the rule that retires an activation.
type ExpiryPolicy string

const (
	ExpirySeason    ExpiryPolicy = "season"
	ExpiryDuration  ExpiryPolicy = "duration"
	ExpiryUses      ExpiryPolicy = "uses"
	ExpiryPermanent ExpiryPolicy = "permanent"
)

// Policy is derived from which fields are set. Season wins over duration,
// duration over uses.
func (a Activation) Policy() ExpiryPolicy {
	switch {
	case a.Season != nil:
		return ExpirySeason
	case a.DurationHours != nil:
		return ExpiryDuration
	case a.UsesRemaining != nil:
		return ExpiryUses
	}
	return ExpiryPermanent
}

// ExpiresAt returns activatedAt + duration for duration-bound activations.
func (a Activation) ExpiresAt() (time.Time, bool) {
	if a.DurationHours == nil {
		return time.Time{}, false
	}
	return a.ActivatedAt.Add(time.Duration(*a.DurationHours) * time.Hour), true
}

// DurationElapsed reports activatedAt + duration <= now.
func (a Activation) DurationElapsed(now time.Time) bool {
	exp, ok := a.ExpiresAt()
	return ok && !exp.After(now)
}

// UsesExhausted reports a use counter at or below zero.
func (a Activation) UsesExhausted() bool {
	return a.UsesRemaining != nil && *a.UsesRemaining <= 0
}

// Effective reports whether the activation currently grants its benefit.
func (a Activation) Effective(now time.Time) bool {
	return a.IsActive && !a.DurationElapsed(now) && !a.UsesExhausted()
}
