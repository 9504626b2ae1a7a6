/*
store.go - Persistence interfaces for the capture engine

PURPOSE:
  The engine treats persistence as a document store with typed collections.
  Filters carry equality, comparison and existence predicates as struct
  fields; setting several fields composes them with AND.

PAGING:
  List calls are keyset paged: results are ordered by ID, AfterID skips
  everything up to and including that ID, and Limit bounds the page. Batch
  jobs walk pages until a short page is returned.

IMPLEMENTATIONS:
  - engine/store: In-memory (tests, dev)
  - store/sqlite: SQLite (production)

SEE ALSO:
  - types.go: Entity definitions
*/
package engine

import (
	"context"
	"time"
)

// =============================================================================
// FILTERS
// =============================================================================

type UserFilter struct {
	AfterID UserID
	Limit   int
	// MinTotalSeconds keeps users with TotalSeconds strictly greater.
	MinTotalSeconds *int64
}

type POIFilter struct {
	AfterID POIID
	Limit   int
	KingID  *UserID
}

type ChallengeFilter struct {
	UserID *UserID
	Period *Period
	// OpenOnly keeps challenges whose CompletedAt is null.
	OpenOnly bool
	// ExpiresAfter keeps challenges with ExpiresAt strictly after the time.
	ExpiresAfter *time.Time
	// ExpiredBefore keeps challenges with ExpiresAt strictly before the time.
	ExpiredBefore *time.Time
	AfterID       ChallengeID
	Limit         int
}

type RewardFilter struct {
	Difficulty *int
	ActiveOnly bool
}

type ActivationFilter struct {
	UserID     *UserID
	RewardType *RewardType
	Season     *string
	AfterID    ActivationID
	Limit      int
}

// =============================================================================
// STORE INTERFACES
// =============================================================================

type UserStore interface {
	GetUser(ctx context.Context, id UserID) (*User, error)
	// SaveUser inserts or replaces the user record.
	SaveUser(ctx context.Context, u User) error
	ListUsers(ctx context.Context, filter UserFilter) ([]User, error)
}

type POIStore interface {
	GetPOI(ctx context.Context, id POIID) (*POI, error)
	// SavePOI inserts a new POI. Returns ErrDuplicate if the ID exists.
	SavePOI(ctx context.Context, p POI) error
	ListPOIs(ctx context.Context, filter POIFilter) ([]POI, error)
	SetPOIKing(ctx context.Context, id POIID, king *UserID) error
}

type SessionStore interface {
	// AppendSession is append-only. Returns ErrDuplicate if the ID exists.
	AppendSession(ctx context.Context, s Session) error
	// ListSessionsByUser returns sessions ordered by StartTime then ID.
	ListSessionsByUser(ctx context.Context, user UserID) ([]Session, error)
	// ListSessionsByPOI returns sessions ordered by StartTime then ID.
	ListSessionsByPOI(ctx context.Context, poi POIID) ([]Session, error)
}

type ChallengeStore interface {
	CreateChallenge(ctx context.Context, c Challenge) error
	GetChallenge(ctx context.Context, id ChallengeID) (*Challenge, error)
	ListChallenges(ctx context.Context, filter ChallengeFilter) ([]Challenge, error)
	// UpdateChallengeProgress persists progress and completion in one write,
	// and only while the stored CompletedAt is null. Returns false when the
	// challenge was already completed and nothing was written.
	UpdateChallengeProgress(ctx context.Context, id ChallengeID, progress int64, completedAt *time.Time) (bool, error)
	DeleteChallenge(ctx context.Context, id ChallengeID) error
}

// RewardCatalog is read-only to the engine. SaveReward exists for seeding.
type RewardCatalog interface {
	GetReward(ctx context.Context, id RewardID) (*Reward, error)
	ListRewards(ctx context.Context, filter RewardFilter) ([]Reward, error)
	SaveReward(ctx context.Context, r Reward) error
}

// ActivationStore keeps one row per (UserID, ID).
type ActivationStore interface {
	AppendActivation(ctx context.Context, a Activation) error
	GetActivation(ctx context.Context, user UserID, id ActivationID) (*Activation, error)
	// ListActivations orders by ActivatedAt then ID when UserID is set,
	// otherwise by ID for paging.
	ListActivations(ctx context.Context, filter ActivationFilter) ([]Activation, error)
	UpdateActivation(ctx context.Context, a Activation) error
	DeleteActivation(ctx context.Context, user UserID, id ActivationID) error
}

// GlobalStore holds singleton config documents keyed by slug.
type GlobalStore interface {
	// GetGlobal returns ErrGlobalNotFound when the slug has no document.
	GetGlobal(ctx context.Context, slug string) ([]byte, error)
	SaveGlobal(ctx context.Context, slug string, doc []byte) error
}

// Store is the full persistence surface.
type Store interface {
	UserStore
	POIStore
	SessionStore
	ChallengeStore
	RewardCatalog
	ActivationStore
	GlobalStore
}
