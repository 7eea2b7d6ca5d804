package service

import (
	"math/rand"
	"testing"

	"github.com/perkhub/perkstore/internal/perkstore/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func threeTiers() []models.PriceTier {
	return []models.PriceTier{
		{MinQuantity: 1, MaxQuantity: intPtr(9), Price: decimal.NewFromInt(100), Discount: 0},
		{MinQuantity: 10, MaxQuantity: intPtr(49), Price: decimal.NewFromInt(95), Discount: 5},
		{MinQuantity: 50, MaxQuantity: nil, Price: decimal.NewFromInt(90), Discount: 10},
	}
}

func TestResolvePriceBoundaries(t *testing.T) {
	tiers := threeTiers()

	tier, err := ResolvePrice(49, tiers)
	require.NoError(t, err)
	assert.True(t, tier.Price.Equal(decimal.NewFromInt(95)))
	assert.Equal(t, 5, tier.Discount)

	tier, err = ResolvePrice(50, tiers)
	require.NoError(t, err)
	assert.True(t, tier.Price.Equal(decimal.NewFromInt(90)))
	assert.Equal(t, 10, tier.Discount)

	tier, err = ResolvePrice(1, tiers)
	require.NoError(t, err)
	assert.Equal(t, 0, tier.Discount)

	tier, err = ResolvePrice(100000, tiers)
	require.NoError(t, err)
	assert.Equal(t, 10, tier.Discount)
}

func TestResolvePriceRejectsBadQuantity(t *testing.T) {
	var validationErr *models.ValidationError
	_, err := ResolvePrice(0, threeTiers())
	require.ErrorAs(t, err, &validationErr)

	_, err = ResolvePrice(-3, threeTiers())
	require.ErrorAs(t, err, &validationErr)
}

func TestResolvePriceReturnsStoredDiscountVerbatim(t *testing.T) {
	// Discount authored independently of the price; the resolver must not
	// recompute it.
	tiers := []models.PriceTier{
		{MinQuantity: 1, MaxQuantity: nil, Price: decimal.NewFromInt(100), Discount: 42},
	}
	tier, err := ResolvePrice(7, tiers)
	require.NoError(t, err)
	assert.Equal(t, 42, tier.Discount)
}

func TestGenerateTiers(t *testing.T) {
	tiers := GenerateTiers(decimal.RequireFromString("19.99"))
	require.Len(t, tiers, 6)

	require.NoError(t, ValidatePriceTiers(tiers))

	assert.Equal(t, 1, tiers[0].MinQuantity)
	assert.Equal(t, 0, tiers[0].Discount)
	assert.True(t, tiers[0].Price.Equal(decimal.RequireFromString("19.99")))

	// 19.99 * 0.95 = 18.9905, floored to 18.99
	assert.Equal(t, 10, tiers[1].MinQuantity)
	assert.True(t, tiers[1].Price.Equal(decimal.RequireFromString("18.99")), "got %s", tiers[1].Price)

	// 19.99 * 0.75 = 14.9925, floored to 14.99
	last := tiers[5]
	assert.Equal(t, 1000, last.MinQuantity)
	assert.Nil(t, last.MaxQuantity)
	assert.Equal(t, 25, last.Discount)
	assert.True(t, last.Price.Equal(decimal.RequireFromString("14.99")), "got %s", last.Price)
}

func TestValidatePriceTiers(t *testing.T) {
	var configErr *models.ConfigurationError

	require.NoError(t, ValidatePriceTiers(threeTiers()))

	err := ValidatePriceTiers(nil)
	require.ErrorAs(t, err, &configErr)

	// gap before first tier
	err = ValidatePriceTiers([]models.PriceTier{
		{MinQuantity: 2, MaxQuantity: nil, Price: decimal.NewFromInt(10)},
	})
	require.ErrorAs(t, err, &configErr)

	// closed top tier
	err = ValidatePriceTiers([]models.PriceTier{
		{MinQuantity: 1, MaxQuantity: intPtr(10), Price: decimal.NewFromInt(10)},
	})
	require.ErrorAs(t, err, &configErr)

	// gap between tiers
	err = ValidatePriceTiers([]models.PriceTier{
		{MinQuantity: 1, MaxQuantity: intPtr(9), Price: decimal.NewFromInt(10)},
		{MinQuantity: 11, MaxQuantity: nil, Price: decimal.NewFromInt(9)},
	})
	require.ErrorAs(t, err, &configErr)

	// overlap between tiers
	err = ValidatePriceTiers([]models.PriceTier{
		{MinQuantity: 1, MaxQuantity: intPtr(10), Price: decimal.NewFromInt(10)},
		{MinQuantity: 10, MaxQuantity: nil, Price: decimal.NewFromInt(9)},
	})
	require.ErrorAs(t, err, &configErr)

	// negative price
	err = ValidatePriceTiers([]models.PriceTier{
		{MinQuantity: 1, MaxQuantity: nil, Price: decimal.NewFromInt(-1)},
	})
	require.ErrorAs(t, err, &configErr)
}

// randomValidTiers builds a random contiguous tier set starting at 1.
func randomValidTiers(rng *rand.Rand) []models.PriceTier {
	n := 1 + rng.Intn(6)
	tiers := make([]models.PriceTier, 0, n)
	min := 1
	for i := 0; i < n; i++ {
		price := decimal.NewFromInt(int64(1 + rng.Intn(1000)))
		if i == n-1 {
			tiers = append(tiers, models.PriceTier{MinQuantity: min, Price: price})
			break
		}
		max := min + rng.Intn(100)
		tiers = append(tiers, models.PriceTier{MinQuantity: min, MaxQuantity: intPtr(max), Price: price})
		min = max + 1
	}
	return tiers
}

func TestTierCoverageProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 200; i++ {
		tiers := randomValidTiers(rng)
		require.NoError(t, ValidatePriceTiers(tiers))

		for j := 0; j < 50; j++ {
			quantity := 1 + rng.Intn(2000)

			matches := 0
			for _, tier := range tiers {
				if tier.MinQuantity <= quantity && (tier.MaxQuantity == nil || quantity <= *tier.MaxQuantity) {
					matches++
				}
			}
			require.Equal(t, 1, matches, "quantity %d matched %d tiers", quantity, matches)

			_, err := ResolvePrice(quantity, tiers)
			require.NoError(t, err)
		}
	}
}
