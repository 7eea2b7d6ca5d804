package service

import (
	"testing"

	"github.com/perkhub/perkstore/internal/perkstore/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLevelConfig() []models.LevelTier {
	return []models.LevelTier{
		{Level: 1, MinPoints: 0, Multiplier: 1.0, Label: "bronze"},
		{Level: 2, MinPoints: 5000, Multiplier: 1.25, Label: "silver"},
		{Level: 3, MinPoints: 20000, Multiplier: 1.5, Label: "gold"},
	}
}

func TestResolveLevel(t *testing.T) {
	config := testLevelConfig()

	tests := []struct {
		name        string
		totalEarned int64
		wantLabel   string
	}{
		{"zero earned", 0, "bronze"},
		{"just below silver", 4999, "bronze"},
		{"exactly silver", 5000, "silver"},
		{"between silver and gold", 19999, "silver"},
		{"gold and beyond", 1000000, "gold"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier := ResolveLevel(tt.totalEarned, config)
			assert.Equal(t, tt.wantLabel, tier.Label)
		})
	}
}

func TestResolveLevelCreditCrossesThreshold(t *testing.T) {
	config := testLevelConfig()

	before := ResolveLevel(4999, config)
	after := ResolveLevel(5000, config)

	assert.Equal(t, "bronze", before.Label)
	assert.Equal(t, "silver", after.Label)
}

func TestResolveLevelTieBreakLaterWins(t *testing.T) {
	config := []models.LevelTier{
		{Level: 1, MinPoints: 0, Multiplier: 1.0, Label: "first"},
		{Level: 2, MinPoints: 100, Multiplier: 1.1, Label: "dup-a"},
		{Level: 3, MinPoints: 100, Multiplier: 1.2, Label: "dup-b"},
	}

	tier := ResolveLevel(150, config)
	assert.Equal(t, "dup-b", tier.Label)
}

func TestResolveLevelMonotonic(t *testing.T) {
	config := testLevelConfig()

	prev := ResolveLevel(0, config).Level
	for earned := int64(0); earned <= 30000; earned += 77 {
		level := ResolveLevel(earned, config).Level
		require.GreaterOrEqual(t, level, prev, "level regressed at totalEarned=%d", earned)
		prev = level
	}
}

func TestResolveLevelEmptyConfig(t *testing.T) {
	tier := ResolveLevel(1000, nil)
	assert.Zero(t, tier.Level)
}

func TestValidateLevelConfig(t *testing.T) {
	require.NoError(t, ValidateLevelConfig(testLevelConfig()))

	var configErr *models.ConfigurationError

	err := ValidateLevelConfig(nil)
	require.ErrorAs(t, err, &configErr)

	err = ValidateLevelConfig([]models.LevelTier{{Level: 1, MinPoints: 100, Multiplier: 1}})
	require.ErrorAs(t, err, &configErr, "first tier must start at 0")

	err = ValidateLevelConfig([]models.LevelTier{
		{Level: 1, MinPoints: 0, Multiplier: 1},
		{Level: 2, MinPoints: 100, Multiplier: 1},
		{Level: 3, MinPoints: 100, Multiplier: 1},
	})
	require.ErrorAs(t, err, &configErr, "duplicate thresholds are rejected at save time")

	err = ValidateLevelConfig([]models.LevelTier{
		{Level: 1, MinPoints: 0, Multiplier: 0},
	})
	require.ErrorAs(t, err, &configErr, "multiplier must be positive")
}

func TestSortLevelConfigStable(t *testing.T) {
	config := []models.LevelTier{
		{Level: 3, MinPoints: 100, Label: "authored-first"},
		{Level: 1, MinPoints: 0, Label: "base"},
		{Level: 2, MinPoints: 100, Label: "authored-second"},
	}

	SortLevelConfig(config)

	assert.Equal(t, "base", config[0].Label)
	assert.Equal(t, "authored-first", config[1].Label)
	assert.Equal(t, "authored-second", config[2].Label)
}
