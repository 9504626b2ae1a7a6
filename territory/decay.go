package territory

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/capture-engine/engine"
	"github.com/warp/capture-engine/rules"
)

var hundred = decimal.NewFromInt(100)

// DecayStore is the persistence the decay engine needs.
type DecayStore interface {
	engine.UserStore
	engine.ActivationStore
}

type DecayEngine struct {
	store    DecayStore
	PageSize int
}

func NewDecayEngine(store DecayStore) *DecayEngine {
	return &DecayEngine{store: store, PageSize: engine.DefaultPageSize}
}

// EffectiveDecayPercent lowers the default rate by the active reduction but
// never below max(0, default - maxReduction).
func EffectiveDecayPercent(defaultPct, maxReduction, reduction decimal.Decimal) decimal.Decimal {
	floor := decimal.Max(decimal.Zero, defaultPct.Sub(maxReduction))
	return decimal.Max(floor, defaultPct.Sub(reduction))
}

// Decayed returns max(1, floor(total * (1 - pct/100))).
func Decayed(total int64, pct decimal.Decimal) int64 {
	factor := decimal.NewFromInt(1).Sub(pct.Div(hundred))
	next := decimal.NewFromInt(total).Mul(factor).Floor().IntPart()
	if next < 1 {
		return 1
	}
	return next
}

// Run decays every user with totalSeconds > 0.
func (d *DecayEngine) Run(ctx context.Context, settings rules.GameSettings, now time.Time) (engine.Report, error) {
	var report engine.Report
	defaultPct := decimal.NewFromFloat(settings.Decay())
	maxReduction := decimal.NewFromFloat(settings.MaxReduction())

	pageSize := d.PageSize
	if pageSize <= 0 {
		pageSize = engine.DefaultPageSize
	}
	var zero int64
	var after engine.UserID
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		users, err := d.store.ListUsers(ctx, engine.UserFilter{AfterID: after, Limit: pageSize, MinTotalSeconds: &zero})
		if err != nil {
			return report, fmt.Errorf("failed to list users: %w", err)
		}
		for _, u := range users {
			report.Processed++
			changed, err := d.decayUser(ctx, u, defaultPct, maxReduction, now)
			if err != nil {
				report.Errors++
				log.Printf("[Decay] Error decaying %s: %v", u.ID, err)
				continue
			}
			if changed {
				report.Affected++
			}
		}
		if len(users) < pageSize {
			break
		}
		after = users[len(users)-1].ID
	}

	log.Printf("[Decay] Completed: %d users, %d decayed, %d errors", report.Processed, report.Affected, report.Errors)
	return report, nil
}

func (d *DecayEngine) decayUser(ctx context.Context, u engine.User, defaultPct, maxReduction decimal.Decimal, now time.Time) (bool, error) {
	reduction, err := d.activeReduction(ctx, u.ID, now)
	if err != nil {
		return false, err
	}
	next := Decayed(u.TotalSeconds, EffectiveDecayPercent(defaultPct, maxReduction, reduction))
	if next == u.TotalSeconds {
		return false, nil
	}
	u.TotalSeconds = next
	if err := d.store.SaveUser(ctx, u); err != nil {
		return false, err
	}
	return true, nil
}

// activeReduction sums the values of effective decay_reduction activations.
func (d *DecayEngine) activeReduction(ctx context.Context, user engine.UserID, now time.Time) (decimal.Decimal, error) {
	kind := engine.RewardDecayReduction
	activations, err := d.store.ListActivations(ctx, engine.ActivationFilter{UserID: &user, RewardType: &kind})
	if err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, a := range activations {
		if a.Effective(now) {
			sum = sum.Add(decimal.NewFromFloat(a.RewardValue))
		}
	}
	return sum, nil
}
