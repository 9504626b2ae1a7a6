package challenges

import (
	"context"
	"log"
	"time"

	"github.com/warp/capture-engine/engine"
)

// ExpireChallenges deletes every challenge with expiresAt < now that was
// never completed. Completed challenges are kept as history. Pages are
// bounded and per-item failures are counted, not fatal.
func ExpireChallenges(ctx context.Context, store engine.ChallengeStore, now time.Time, pageSize int) (engine.Report, error) {
	var report engine.Report
	if pageSize <= 0 {
		pageSize = engine.DefaultPageSize
	}

	var after engine.ChallengeID
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		expired, err := store.ListChallenges(ctx, engine.ChallengeFilter{
			OpenOnly:      true,
			ExpiredBefore: &now,
			AfterID:       after,
			Limit:         pageSize,
		})
		if err != nil {
			return report, err
		}
		for _, c := range expired {
			report.Processed++
			if err := store.DeleteChallenge(ctx, c.ID); err != nil {
				report.Errors++
				log.Printf("[Jobs] Error deleting expired challenge %s: %v", c.ID, err)
				continue
			}
			report.Affected++
		}
		if len(expired) < pageSize {
			return report, nil
		}
		after = expired[len(expired)-1].ID
	}
}
