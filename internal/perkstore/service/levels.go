package service

import (
	"sort"

	"github.com/perkhub/perkstore/internal/perkstore/models"
)

// ResolveLevel maps a lifetime-earned total to the highest configured tier
// whose threshold has been reached. The config must be sorted ascending by
// MinPoints; when two tiers share a threshold the later one wins, so the
// function stays total even on sloppy configs. For a fixed config the result
// is non-decreasing in totalEarned: spending points never demotes a user,
// because debits never touch the lifetime-earned counter.
func ResolveLevel(totalEarned int64, config []models.LevelTier) models.LevelTier {
	var current models.LevelTier
	if len(config) > 0 {
		current = config[0]
	}
	for _, tier := range config {
		if tier.MinPoints <= totalEarned {
			current = tier
		}
	}
	return current
}

// SortLevelConfig orders tiers ascending by MinPoints. The sort is stable so
// that tiers sharing a threshold keep their authored order, which is what the
// tie-break in ResolveLevel relies on.
func SortLevelConfig(config []models.LevelTier) {
	sort.SliceStable(config, func(i, j int) bool {
		return config[i].MinPoints < config[j].MinPoints
	})
}

// ValidateLevelConfig checks a level configuration before it is saved.
// Gapped or descending thresholds never reach checkout.
func ValidateLevelConfig(config []models.LevelTier) error {
	if len(config) == 0 {
		return &models.ConfigurationError{Msg: "level config must have at least one tier"}
	}
	if config[0].MinPoints != 0 {
		return &models.ConfigurationError{Msg: "first level tier must start at 0 points"}
	}
	for i, tier := range config {
		if tier.MinPoints < 0 {
			return &models.ConfigurationError{Msg: "level thresholds must be non-negative"}
		}
		if tier.Multiplier <= 0 {
			return &models.ConfigurationError{Msg: "level multipliers must be positive"}
		}
		if i > 0 && tier.MinPoints <= config[i-1].MinPoints {
			return &models.ConfigurationError{Msg: "level thresholds must be strictly ascending"}
		}
	}
	return nil
}
