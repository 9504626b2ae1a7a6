package challenges

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/warp/capture-engine/engine"
	"github.com/warp/capture-engine/rules"
)

// =============================================================================
// REWARD ASSIGNMENT
// =============================================================================

// Assigned is a candidate with its catalog reward. RewardID is nil only for
// free (cost 0) challenges.
type Assigned struct {
	Candidate
	RewardID *engine.RewardID
}

// AssignRewards picks a reward uniformly among active catalog entries whose
// difficulty equals the candidate's reward difficulty. Candidates with no
// match are dropped unless their cost is 0. Returns the drop count.
func (g *Generator) AssignRewards(ctx context.Context, catalog engine.RewardCatalog, candidates []Candidate) ([]Assigned, int, error) {
	pools := make(map[int][]engine.Reward)
	var out []Assigned
	dropped := 0

	for _, c := range candidates {
		pool, ok := pools[c.RewardDifficulty]
		if !ok {
			d := c.RewardDifficulty
			rewards, err := catalog.ListRewards(ctx, engine.RewardFilter{Difficulty: &d, ActiveOnly: true})
			if err != nil {
				return nil, 0, fmt.Errorf("failed to list rewards for difficulty %d: %w", d, err)
			}
			pools[d] = rewards
			pool = rewards
		}

		if len(pool) == 0 {
			if c.Cost == 0 {
				out = append(out, Assigned{Candidate: c})
				continue
			}
			dropped++
			continue
		}
		id := pool[g.intn(len(pool))].ID
		out = append(out, Assigned{Candidate: c, RewardID: &id})
	}
	return out, dropped, nil
}

// =============================================================================
// ISSUER - Guarded creation of challenge records
// =============================================================================

type Issuer struct {
	store     engine.Store
	generator *Generator
	PageSize  int
}

func NewIssuer(store engine.Store, generator *Generator) *Issuer {
	return &Issuer{store: store, generator: generator, PageSize: engine.DefaultPageSize}
}

// HasLive reports whether the user holds a challenge of the period that has
// not expired yet, completed or not.
func (is *Issuer) HasLive(ctx context.Context, user engine.UserID, p engine.Period, now time.Time) (bool, error) {
	existing, err := is.store.ListChallenges(ctx, engine.ChallengeFilter{
		UserID:       &user,
		Period:       &p,
		ExpiresAfter: &now,
		Limit:        1,
	})
	if err != nil {
		return false, err
	}
	return len(existing) > 0, nil
}

// IssuePersonal generates and stores a fresh batch for one user. Returns
// ErrDuplicate when the user already holds a live challenge of the period.
func (is *Issuer) IssuePersonal(ctx context.Context, r *rules.ChallengeRules, user engine.UserID, p engine.Period, now time.Time) ([]engine.Challenge, int, error) {
	live, err := is.HasLive(ctx, user, p, now)
	if err != nil {
		return nil, 0, err
	}
	if live {
		return nil, 0, engine.ErrDuplicate
	}

	candidates, err := is.generator.Generate(r, PersonalRequest(p, now))
	if err != nil {
		return nil, 0, err
	}
	assigned, dropped, err := is.generator.AssignRewards(ctx, is.store, candidates)
	if err != nil {
		return nil, 0, err
	}

	var created []engine.Challenge
	for _, a := range assigned {
		c := a.challengeFor(user, now, false)
		if err := is.store.CreateChallenge(ctx, c); err != nil {
			return created, dropped, fmt.Errorf("failed to create challenge for %s: %w", user, err)
		}
		created = append(created, c)
	}
	return created, dropped, nil
}

// IssueAllPersonal runs IssuePersonal for every user, page by page.
func (is *Issuer) IssueAllPersonal(ctx context.Context, r *rules.ChallengeRules, p engine.Period, now time.Time) (engine.Report, error) {
	var report engine.Report
	err := is.eachUser(ctx, func(u engine.User) {
		report.Processed++
		created, dropped, err := is.IssuePersonal(ctx, r, u.ID, p, now)
		report.Affected += len(created)
		report.Add("dropped_no_reward", dropped)
		switch {
		case errors.Is(err, engine.ErrDuplicate):
			report.Duplicates++
		case err != nil:
			report.Errors++
			log.Printf("[Jobs] Error issuing %s challenges for %s: %v", p, u.ID, err)
		}
	})
	return report, err
}

// IssueShared generates one batch and copies it to every user without a
// live challenge of the period. Rewards are assigned once so every user
// gets the same pool.
func (is *Issuer) IssueShared(ctx context.Context, r *rules.ChallengeRules, p engine.Period, now time.Time) (engine.Report, error) {
	var report engine.Report

	candidates, err := is.generator.Generate(r, SharedRequest(p, now))
	if err != nil {
		return report, err
	}
	assigned, dropped, err := is.generator.AssignRewards(ctx, is.store, candidates)
	if err != nil {
		return report, err
	}
	report.Add("dropped_no_reward", dropped)
	if len(assigned) == 0 {
		log.Printf("[Jobs] No %s challenges generated (%d dropped)", p, dropped)
		return report, nil
	}

	err = is.eachUser(ctx, func(u engine.User) {
		report.Processed++
		live, err := is.HasLive(ctx, u.ID, p, now)
		if err != nil {
			report.Errors++
			log.Printf("[Jobs] Error checking %s challenges for %s: %v", p, u.ID, err)
			return
		}
		if live {
			report.Duplicates++
			return
		}
		for _, a := range assigned {
			if err := is.store.CreateChallenge(ctx, a.challengeFor(u.ID, now, true)); err != nil {
				report.Errors++
				log.Printf("[Jobs] Error creating %s challenge for %s: %v", p, u.ID, err)
				return
			}
			report.Affected++
		}
	})
	return report, err
}

func (is *Issuer) eachUser(ctx context.Context, fn func(engine.User)) error {
	var after engine.UserID
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		users, err := is.store.ListUsers(ctx, engine.UserFilter{AfterID: after, Limit: is.PageSize})
		if err != nil {
			return fmt.Errorf("failed to list users: %w", err)
		}
		for _, u := range users {
			fn(u)
		}
		if len(users) < is.PageSize || len(users) == 0 {
			return nil
		}
		after = users[len(users)-1].ID
	}
}

func (a Assigned) challengeFor(user engine.UserID, now time.Time, shared bool) engine.Challenge {
	c := engine.Challenge{
		ID:               engine.NewChallengeID(),
		UserID:           user,
		Period:           a.Period,
		Type:             a.Type,
		Tier:             a.Tier,
		Title:            a.Title,
		Description:      a.Description,
		TargetValue:      a.TargetValue,
		RewardDifficulty: a.RewardDifficulty,
		Cost:             a.Cost,
		ExpiresAt:        a.ExpiresAt,
		Shared:           shared,
		CreatedAt:        now,
	}
	if a.TargetCategory != nil {
		cat := *a.TargetCategory
		c.TargetCategory = &cat
	}
	if a.RewardID != nil {
		id := *a.RewardID
		c.RewardID = &id
	}
	return c
}
