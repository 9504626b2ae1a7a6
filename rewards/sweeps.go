package rewards

import (
	"context"
	"log"
	"time"

	"github.com/warp/capture-engine/engine"
)

// =============================================================================
// SCHEDULED SWEEPS
// =============================================================================

type Sweeper struct {
	store    engine.ActivationStore
	PageSize int
}

func NewSweeper(store engine.ActivationStore) *Sweeper {
	return &Sweeper{store: store, PageSize: engine.DefaultPageSize}
}

// ShouldExpire reports whether the time/use sweep removes the activation.
func ShouldExpire(a engine.Activation, now time.Time) bool {
	return !a.IsActive || a.DurationElapsed(now) || a.UsesExhausted()
}

// ExpireRewards deletes inactive, duration-elapsed and use-exhausted
// activations across all users. Rows that survive are never rewritten.
func (s *Sweeper) ExpireRewards(ctx context.Context, now time.Time) (engine.Report, error) {
	var report engine.Report
	err := s.walk(ctx, engine.ActivationFilter{}, func(a engine.Activation) {
		report.Processed++
		if !ShouldExpire(a, now) {
			return
		}
		if err := s.store.DeleteActivation(ctx, a.UserID, a.ID); err != nil {
			report.Errors++
			log.Printf("[Rewards] Error expiring activation %s for %s: %v", a.ID, a.UserID, err)
			return
		}
		report.Affected++
	})
	return report, err
}

// ExpireSeason deletes bonus_crowns activations stamped with the month
// before now's month.
func (s *Sweeper) ExpireSeason(ctx context.Context, now time.Time) (engine.Report, error) {
	var report engine.Report
	season := engine.PreviousMonthKey(now)
	crowns := engine.RewardBonusCrowns

	err := s.walk(ctx, engine.ActivationFilter{Season: &season, RewardType: &crowns}, func(a engine.Activation) {
		report.Processed++
		if err := s.store.DeleteActivation(ctx, a.UserID, a.ID); err != nil {
			report.Errors++
			log.Printf("[Rewards] Error expiring season %s activation %s for %s: %v", season, a.ID, a.UserID, err)
			return
		}
		report.Affected++
	})
	report.Add("season_"+season, report.Affected)
	return report, err
}

// walk pages through activations matching the filter by ID.
func (s *Sweeper) walk(ctx context.Context, filter engine.ActivationFilter, fn func(engine.Activation)) error {
	pageSize := s.PageSize
	if pageSize <= 0 {
		pageSize = engine.DefaultPageSize
	}
	filter.Limit = pageSize
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		page, err := s.store.ListActivations(ctx, filter)
		if err != nil {
			return err
		}
		for _, a := range page {
			fn(a)
		}
		if len(page) < pageSize {
			return nil
		}
		filter.AfterID = page[len(page)-1].ID
	}
}
