/*
Package territory recomputes POI ownership and applies seconds decay.

KING RECALCULATION:
  For every POI, sums secondsEarned per user over all of its sessions.
  The strict maximum becomes the king. Ties go to the lowest user ID so
  repeated runs over the same data never flip the king. A POI with no
  sessions has no king. Afterwards every user's currentKingOf is set to
  the number of POIs they hold, written only when it changed.

DECAY:
  Daily multiplicative reduction of totalSeconds, softened by active
  decay_reduction rewards and floored at 1. See decay.go.

IDEMPOTENCY:
  The king recompute is a pure function of the session table, so a second
  run without new sessions writes nothing. Decay is NOT idempotent: the
  scheduler must run it at most once per day.
*/
package territory

import (
	"context"
	"fmt"
	"log"

	"github.com/warp/capture-engine/engine"
)

type KingRecalculator struct {
	store    engine.Store
	PageSize int
}

func NewKingRecalculator(store engine.Store) *KingRecalculator {
	return &KingRecalculator{store: store, PageSize: engine.DefaultPageSize}
}

// KingOf returns the user with the most seconds across the sessions, or nil
// when there are none. Ties go to the lowest user ID.
func KingOf(sessions []engine.Session) *engine.UserID {
	totals := make(map[engine.UserID]int64)
	for _, s := range sessions {
		totals[s.UserID] += s.SecondsEarned
	}

	var king *engine.UserID
	var best int64
	for user, total := range totals {
		if king == nil || total > best || (total == best && user < *king) {
			u := user
			king = &u
			best = total
		}
	}
	return king
}

// Run recomputes every POI's king then every user's crown count.
// Details: pois_updated, users_updated.
func (k *KingRecalculator) Run(ctx context.Context) (engine.Report, error) {
	var report engine.Report
	held := make(map[engine.UserID]int)

	pageSize := k.pageSize()
	var after engine.POIID
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		pois, err := k.store.ListPOIs(ctx, engine.POIFilter{AfterID: after, Limit: pageSize})
		if err != nil {
			return report, fmt.Errorf("failed to list pois: %w", err)
		}
		for _, p := range pois {
			report.Processed++
			king, changed, err := k.recalculate(ctx, p)
			if err != nil {
				report.Errors++
				log.Printf("[Kings] Error recalculating %s: %v", p.ID, err)
				king = p.CurrentKing
			}
			if changed {
				report.Affected++
				report.Add("pois_updated", 1)
			}
			if king != nil {
				held[*king]++
			}
		}
		if len(pois) < pageSize {
			break
		}
		after = pois[len(pois)-1].ID
	}

	if err := k.reconcileUsers(ctx, held, &report); err != nil {
		return report, err
	}
	log.Printf("[Kings] Completed: %d pois, %d updated, %d errors", report.Processed, report.Details["pois_updated"], report.Errors)
	return report, nil
}

func (k *KingRecalculator) recalculate(ctx context.Context, p engine.POI) (*engine.UserID, bool, error) {
	sessions, err := k.store.ListSessionsByPOI(ctx, p.ID)
	if err != nil {
		return nil, false, err
	}
	king := KingOf(sessions)
	if sameKing(king, p.CurrentKing) {
		return king, false, nil
	}
	if err := k.store.SetPOIKing(ctx, p.ID, king); err != nil {
		return nil, false, err
	}
	return king, true, nil
}

func (k *KingRecalculator) reconcileUsers(ctx context.Context, held map[engine.UserID]int, report *engine.Report) error {
	pageSize := k.pageSize()
	var after engine.UserID
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		users, err := k.store.ListUsers(ctx, engine.UserFilter{AfterID: after, Limit: pageSize})
		if err != nil {
			return fmt.Errorf("failed to list users: %w", err)
		}
		for _, u := range users {
			count := held[u.ID]
			if u.CurrentKingOf == count {
				continue
			}
			u.CurrentKingOf = count
			if err := k.store.SaveUser(ctx, u); err != nil {
				report.Errors++
				log.Printf("[Kings] Error updating crown count for %s: %v", u.ID, err)
				continue
			}
			report.Affected++
			report.Add("users_updated", 1)
		}
		if len(users) < pageSize {
			return nil
		}
		after = users[len(users)-1].ID
	}
}

func (k *KingRecalculator) pageSize() int {
	if k.PageSize <= 0 {
		return engine.DefaultPageSize
	}
	return k.PageSize
}

func sameKing(a, b *engine.UserID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
