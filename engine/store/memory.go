// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/capture-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	users       map[engine.UserID]engine.User
	pois        map[engine.POIID]engine.POI
	sessions    map[engine.SessionID]engine.Session
	challenges  map[engine.ChallengeID]engine.Challenge
	rewards     map[engine.RewardID]engine.Reward
	activations map[activationKey]engine.Activation
	globals     map[string][]byte
}

type activationKey struct {
	UserID engine.UserID
	ID     engine.ActivationID
}

var _ engine.Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		users:       make(map[engine.UserID]engine.User),
		pois:        make(map[engine.POIID]engine.POI),
		sessions:    make(map[engine.SessionID]engine.Session),
		challenges:  make(map[engine.ChallengeID]engine.Challenge),
		rewards:     make(map[engine.RewardID]engine.Reward),
		activations: make(map[activationKey]engine.Activation),
		globals:     make(map[string][]byte),
	}
}

// Reset clears all data.
func (m *Memory) Reset(_ context.Context) error {
	fresh := NewMemory()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = fresh.users
	m.pois = fresh.pois
	m.sessions = fresh.sessions
	m.challenges = fresh.challenges
	m.rewards = fresh.rewards
	m.activations = fresh.activations
	m.globals = fresh.globals
	return nil
}

// =============================================================================
// USERS
// =============================================================================

func (m *Memory) GetUser(_ context.Context, id engine.UserID) (*engine.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, engine.ErrUserNotFound
	}
	u.LastActive = cloneTime(u.LastActive)
	return &u, nil
}

func (m *Memory) SaveUser(_ context.Context, u engine.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.LastActive = cloneTime(u.LastActive)
	m.users[u.ID] = u
	return nil
}

func (m *Memory) ListUsers(_ context.Context, f engine.UserFilter) ([]engine.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.User
	for _, u := range m.users {
		if f.AfterID != "" && u.ID <= f.AfterID {
			continue
		}
		if f.MinTotalSeconds != nil && u.TotalSeconds <= *f.MinTotalSeconds {
			continue
		}
		u.LastActive = cloneTime(u.LastActive)
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return limit(out, f.Limit), nil
}

// =============================================================================
// POIS
// =============================================================================

func (m *Memory) GetPOI(_ context.Context, id engine.POIID) (*engine.POI, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pois[id]
	if !ok {
		return nil, engine.ErrPOINotFound
	}
	p.CurrentKing = cloneUserID(p.CurrentKing)
	return &p, nil
}

func (m *Memory) SavePOI(_ context.Context, p engine.POI) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pois[p.ID]; ok {
		return engine.ErrDuplicate
	}
	p.CurrentKing = cloneUserID(p.CurrentKing)
	m.pois[p.ID] = p
	return nil
}

func (m *Memory) ListPOIs(_ context.Context, f engine.POIFilter) ([]engine.POI, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.POI
	for _, p := range m.pois {
		if f.AfterID != "" && p.ID <= f.AfterID {
			continue
		}
		if f.KingID != nil && !p.IsKing(*f.KingID) {
			continue
		}
		p.CurrentKing = cloneUserID(p.CurrentKing)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return limit(out, f.Limit), nil
}

func (m *Memory) SetPOIKing(_ context.Context, id engine.POIID, king *engine.UserID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pois[id]
	if !ok {
		return engine.ErrPOINotFound
	}
	p.CurrentKing = cloneUserID(king)
	m.pois[id] = p
	return nil
}

// =============================================================================
// SESSIONS
// =============================================================================

// AppendSession adds a session. Append-only.
func (m *Memory) AppendSession(_ context.Context, s engine.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; ok {
		return engine.ErrDuplicate
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *Memory) ListSessionsByUser(_ context.Context, user engine.UserID) ([]engine.Session, error) {
	return m.filterSessions(func(s engine.Session) bool { return s.UserID == user }), nil
}

func (m *Memory) ListSessionsByPOI(_ context.Context, poi engine.POIID) ([]engine.Session, error) {
	return m.filterSessions(func(s engine.Session) bool { return s.POIID == poi }), nil
}

func (m *Memory) filterSessions(keep func(engine.Session) bool) []engine.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.Session
	for _, s := range m.sessions {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// =============================================================================
// CHALLENGES
// =============================================================================

func (m *Memory) CreateChallenge(_ context.Context, c engine.Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.challenges[c.ID]; ok {
		return engine.ErrDuplicate
	}
	m.challenges[c.ID] = cloneChallenge(c)
	return nil
}

func (m *Memory) GetChallenge(_ context.Context, id engine.ChallengeID) (*engine.Challenge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.challenges[id]
	if !ok {
		return nil, engine.ErrChallengeNotFound
	}
	c = cloneChallenge(c)
	return &c, nil
}

func (m *Memory) ListChallenges(_ context.Context, f engine.ChallengeFilter) ([]engine.Challenge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.Challenge
	for _, c := range m.challenges {
		if f.UserID != nil && c.UserID != *f.UserID {
			continue
		}
		if f.Period != nil && c.Period != *f.Period {
			continue
		}
		if f.OpenOnly && c.CompletedAt != nil {
			continue
		}
		if f.ExpiresAfter != nil && !c.ExpiresAt.After(*f.ExpiresAfter) {
			continue
		}
		if f.ExpiredBefore != nil && !c.ExpiresAt.Before(*f.ExpiredBefore) {
			continue
		}
		if f.AfterID != "" && c.ID <= f.AfterID {
			continue
		}
		out = append(out, cloneChallenge(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return limit(out, f.Limit), nil
}

func (m *Memory) UpdateChallengeProgress(_ context.Context, id engine.ChallengeID, progress int64, completedAt *time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[id]
	if !ok {
		return false, engine.ErrChallengeNotFound
	}
	if c.CompletedAt != nil {
		return false, nil
	}
	c.Progress = progress
	c.CompletedAt = cloneTime(completedAt)
	m.challenges[id] = c
	return true, nil
}

func (m *Memory) DeleteChallenge(_ context.Context, id engine.ChallengeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.challenges[id]; !ok {
		return engine.ErrChallengeNotFound
	}
	delete(m.challenges, id)
	return nil
}

// =============================================================================
// REWARD CATALOG
// =============================================================================

func (m *Memory) GetReward(_ context.Context, id engine.RewardID) (*engine.Reward, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rewards[id]
	if !ok {
		return nil, engine.ErrRewardNotFound
	}
	r.DurationHours = cloneInt(r.DurationHours)
	r.Uses = cloneInt(r.Uses)
	return &r, nil
}

func (m *Memory) ListRewards(_ context.Context, f engine.RewardFilter) ([]engine.Reward, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.Reward
	for _, r := range m.rewards {
		if f.Difficulty != nil && r.Difficulty != *f.Difficulty {
			continue
		}
		if f.ActiveOnly && !r.IsActive {
			continue
		}
		r.DurationHours = cloneInt(r.DurationHours)
		r.Uses = cloneInt(r.Uses)
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SaveReward(_ context.Context, r engine.Reward) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.DurationHours = cloneInt(r.DurationHours)
	r.Uses = cloneInt(r.Uses)
	m.rewards[r.ID] = r
	return nil
}

// =============================================================================
// ACTIVATIONS
// =============================================================================

func (m *Memory) AppendActivation(_ context.Context, a engine.Activation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := activationKey{UserID: a.UserID, ID: a.ID}
	if _, ok := m.activations[k]; ok {
		return engine.ErrDuplicate
	}
	m.activations[k] = cloneActivation(a)
	return nil
}

func (m *Memory) GetActivation(_ context.Context, user engine.UserID, id engine.ActivationID) (*engine.Activation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.activations[activationKey{UserID: user, ID: id}]
	if !ok {
		return nil, engine.ErrActivationNotFound
	}
	a = cloneActivation(a)
	return &a, nil
}

func (m *Memory) ListActivations(_ context.Context, f engine.ActivationFilter) ([]engine.Activation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.Activation
	for _, a := range m.activations {
		if f.UserID != nil && a.UserID != *f.UserID {
			continue
		}
		if f.RewardType != nil && a.RewardType != *f.RewardType {
			continue
		}
		if f.Season != nil && (a.Season == nil || *a.Season != *f.Season) {
			continue
		}
		if f.AfterID != "" && a.ID <= f.AfterID {
			continue
		}
		out = append(out, cloneActivation(a))
	}
	if f.UserID != nil {
		sort.Slice(out, func(i, j int) bool {
			if !out[i].ActivatedAt.Equal(out[j].ActivatedAt) {
				return out[i].ActivatedAt.Before(out[j].ActivatedAt)
			}
			return out[i].ID < out[j].ID
		})
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}
	return limit(out, f.Limit), nil
}

func (m *Memory) UpdateActivation(_ context.Context, a engine.Activation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := activationKey{UserID: a.UserID, ID: a.ID}
	if _, ok := m.activations[k]; !ok {
		return engine.ErrActivationNotFound
	}
	m.activations[k] = cloneActivation(a)
	return nil
}

func (m *Memory) DeleteActivation(_ context.Context, user engine.UserID, id engine.ActivationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := activationKey{UserID: user, ID: id}
	if _, ok := m.activations[k]; !ok {
		return engine.ErrActivationNotFound
	}
	delete(m.activations, k)
	return nil
}

// =============================================================================
// GLOBALS
// =============================================================================

func (m *Memory) GetGlobal(_ context.Context, slug string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.globals[slug]
	if !ok {
		return nil, engine.ErrGlobalNotFound
	}
	return append([]byte(nil), doc...), nil
}

func (m *Memory) SaveGlobal(_ context.Context, slug string, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.globals[slug] = append([]byte(nil), doc...)
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneInt(i *int) *int {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneUserID(u *engine.UserID) *engine.UserID {
	if u == nil {
		return nil
	}
	v := *u
	return &v
}

func cloneChallenge(c engine.Challenge) engine.Challenge {
	c.TargetCategory = cloneString(c.TargetCategory)
	c.CompletedAt = cloneTime(c.CompletedAt)
	if c.RewardID != nil {
		v := *c.RewardID
		c.RewardID = &v
	}
	return c
}

func cloneActivation(a engine.Activation) engine.Activation {
	a.DurationHours = cloneInt(a.DurationHours)
	a.UsesRemaining = cloneInt(a.UsesRemaining)
	a.Season = cloneString(a.Season)
	if a.ChallengeID != nil {
		v := *a.ChallengeID
		a.ChallengeID = &v
	}
	return a
}
