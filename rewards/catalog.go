package rewards

import (
	"context"
	"fmt"

	"github.com/warp/capture-engine/engine"
)

func intPtr(i int) *int { return &i }

// DefaultCatalog is the seed catalog. Every difficulty from 1 to 9 has at
// least one active reward so generated challenges are never dropped for
// lack of a match.
func DefaultCatalog() []engine.Reward {
	return []engine.Reward{
		{ID: "coins-small", Name: "Pocket Change", Type: engine.RewardCoins, Value: 25, Difficulty: 1, IsActive: true},
		{ID: "entry-boost-1h", Name: "Quick Entry", Type: engine.RewardEntryTimeReduction, Value: 10, DurationHours: intPtr(1), Difficulty: 1, IsActive: true},
		{ID: "bonus-seconds-60", Name: "Minute Bonus", Type: engine.RewardBonusSeconds, Value: 60, Uses: intPtr(1), Difficulty: 2, IsActive: true},
		{ID: "radius-3h", Name: "Wide Net", Type: engine.RewardLargerRadius, Value: 25, DurationHours: intPtr(3), Difficulty: 3, IsActive: true},
		{ID: "coins-medium", Name: "Coin Purse", Type: engine.RewardCoins, Value: 75, Difficulty: 4, IsActive: true},
		{ID: "extended-capture-3", Name: "Long Hold", Type: engine.RewardExtendedCapture, Value: 300, Uses: intPtr(3), Difficulty: 5, IsActive: true},
		{ID: "decay-shield-24h", Name: "Decay Shield", Type: engine.RewardDecayReduction, Value: 1, DurationHours: intPtr(24), Difficulty: 6, IsActive: true},
		{ID: "bonus-crowns-1", Name: "Seasonal Crown", Type: engine.RewardBonusCrowns, Value: 1, Difficulty: 7, IsActive: true},
		{ID: "decay-shield-72h", Name: "Decay Ward", Type: engine.RewardDecayReduction, Value: 2, DurationHours: intPtr(72), Difficulty: 8, IsActive: true},
		{ID: "bonus-crowns-3", Name: "Royal Decree", Type: engine.RewardBonusCrowns, Value: 3, Difficulty: 9, IsActive: true},
		{ID: "coins-large", Name: "Treasure Chest", Type: engine.RewardCoins, Value: 300, Difficulty: 9, IsActive: true},
	}
}

// SeedCatalog writes the rewards to the catalog, replacing existing IDs.
func SeedCatalog(ctx context.Context, catalog engine.RewardCatalog, rewards []engine.Reward) error {
	for _, r := range rewards {
		if !r.Type.Valid() {
			return &engine.ValidationError{Field: "reward_type", Message: fmt.Sprintf("unknown reward type %q", r.Type)}
		}
		if r.Difficulty < engine.MinDifficulty || r.Difficulty > engine.MaxDifficulty {
			return &engine.ValidationError{Field: "difficulty", Message: fmt.Sprintf("%d outside [1,9]", r.Difficulty)}
		}
		if err := catalog.SaveReward(ctx, r); err != nil {
			return fmt.Errorf("failed to seed reward %s: %w", r.ID, err)
		}
	}
	return nil
}
