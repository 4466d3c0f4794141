package pricing

import (
	"sort"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Evaluate returns the lowest unit price produced by any rule matching qty.
// A rule's candidate price is never below zero and ties keep the earlier rule.
// When nothing matches the base price is returned unchanged.
func Evaluate(base decimal.Decimal, qty int, rules []Rule) decimal.Decimal {
	best := base
	for _, rule := range rules {
		if !rule.Valid() || !rule.Matches(qty) {
			continue
		}
		candidate := discounted(base, rule.Amount)
		if candidate.LessThan(best) {
			best = candidate
		}
	}
	return best
}

// Tier describes the discount unlocked at a quantity threshold.
type Tier struct {
	Quantity           int             `json:"quantity"`
	DiscountPercentage int64           `json:"discount"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	FinalPrice         decimal.Decimal `json:"final_price"`
}

// Summarize lists one tier per distinct rule threshold, ascending by quantity.
// Rules sharing a threshold resolve to the lowest final price.
func Summarize(base decimal.Decimal, rules []Rule) []Tier {
	byQty := make(map[int]Tier, len(rules))
	for _, rule := range rules {
		if !rule.Valid() {
			continue
		}
		tier := Tier{
			Quantity:           rule.MinQuantity,
			DiscountPercentage: Percentage(rule.Amount, base),
			DiscountAmount:     rule.Amount,
			FinalPrice:         discounted(base, rule.Amount),
		}
		if existing, ok := byQty[tier.Quantity]; ok && !tier.FinalPrice.LessThan(existing.FinalPrice) {
			continue
		}
		byQty[tier.Quantity] = tier
	}
	tiers := make([]Tier, 0, len(byQty))
	for _, tier := range byQty {
		tiers = append(tiers, tier)
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Quantity < tiers[j].Quantity })
	return tiers
}

// NextTier returns the first tier whose threshold is above qty.
func NextTier(qty int, tiers []Tier) (Tier, bool) {
	for _, tier := range tiers {
		if qty < tier.Quantity {
			return tier, true
		}
	}
	return Tier{}, false
}

// Percentage returns round(part / whole * 100); zero when whole is not positive.
func Percentage(part, whole decimal.Decimal) int64 {
	if !whole.IsPositive() {
		return 0
	}
	return part.Div(whole).Mul(hundred).Round(0).IntPart()
}

func discounted(base, amount decimal.Decimal) decimal.Decimal {
	price := base.Sub(amount)
	if price.IsNegative() {
		return decimal.Zero
	}
	return price
}
