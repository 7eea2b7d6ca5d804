package service

import (
	"github.com/perkhub/perkstore/internal/perkstore/models"
	"github.com/shopspring/decimal"
)

// Auto-generated tier breakpoints and their discounts. An administrator can
// always author tiers by hand; these are only the defaults.
var (
	autoTierBreakpoints = []int{1, 10, 50, 100, 500, 1000}
	autoTierDiscounts   = []int{0, 5, 10, 15, 20, 25}
)

// ResolvePrice returns the tier covering the requested quantity. It assumes
// the tiers were validated at save time and form a partition of [1, inf);
// the stored discount is returned verbatim, never recomputed.
func ResolvePrice(quantity int, tiers []models.PriceTier) (models.PriceTier, error) {
	if quantity < 1 {
		return models.PriceTier{}, models.NewValidationError("quantity must be at least 1, got %d", quantity)
	}
	for _, t := range tiers {
		if t.MinQuantity <= quantity && (t.MaxQuantity == nil || quantity <= *t.MaxQuantity) {
			return t, nil
		}
	}
	return models.PriceTier{}, &models.ConfigurationError{Msg: "no price tier covers the requested quantity"}
}

// GenerateTiers builds the default tier ladder from a base price. Each
// tier's unit price is floor-rounded to two decimal places so a discount
// never rounds up past the advertised percentage.
func GenerateTiers(basePrice decimal.Decimal) []models.PriceTier {
	hundred := decimal.NewFromInt(100)
	tiers := make([]models.PriceTier, 0, len(autoTierBreakpoints))
	for i, min := range autoTierBreakpoints {
		discount := autoTierDiscounts[i]
		price := basePrice.
			Mul(decimal.NewFromInt(int64(100 - discount))).
			Div(hundred).
			RoundFloor(2)

		var max *int
		if i+1 < len(autoTierBreakpoints) {
			m := autoTierBreakpoints[i+1] - 1
			max = &m
		}
		tiers = append(tiers, models.PriceTier{
			MinQuantity: min,
			MaxQuantity: max,
			Price:       price,
			Discount:    discount,
		})
	}
	return tiers
}

// ValidatePriceTiers checks that tiers partition [1, inf) with no gaps or
// overlaps: the first tier starts at quantity 1, each tier picks up exactly
// where the previous one ended, and only the last tier is open-ended.
func ValidatePriceTiers(tiers []models.PriceTier) error {
	if len(tiers) == 0 {
		return &models.ConfigurationError{Msg: "at least one price tier is required"}
	}
	if tiers[0].MinQuantity != 1 {
		return &models.ConfigurationError{Msg: "first price tier must start at quantity 1"}
	}
	for i, t := range tiers {
		if t.Price.IsNegative() {
			return &models.ConfigurationError{Msg: "tier prices must be non-negative"}
		}
		if t.Discount < 0 || t.Discount > 100 {
			return &models.ConfigurationError{Msg: "tier discounts must be between 0 and 100"}
		}

		last := i == len(tiers)-1
		if last {
			if t.MaxQuantity != nil {
				return &models.ConfigurationError{Msg: "top price tier must be open-ended"}
			}
			continue
		}
		if t.MaxQuantity == nil {
			return &models.ConfigurationError{Msg: "only the top price tier may be open-ended"}
		}
		if *t.MaxQuantity < t.MinQuantity {
			return &models.ConfigurationError{Msg: "tier max quantity must not be below its min quantity"}
		}
		if tiers[i+1].MinQuantity != *t.MaxQuantity+1 {
			return &models.ConfigurationError{Msg: "price tiers must be contiguous with no gaps or overlaps"}
		}
	}
	return nil
}
