package pricing

import "github.com/shopspring/decimal"

// Quote is the computed pricing result for one (product, quantity) pair.
type Quote struct {
	ProductID         int64           `json:"product_id"`
	Quantity          int             `json:"quantity"`
	BasePrice         decimal.Decimal `json:"base_price"`
	DiscountedPrice   decimal.Decimal `json:"discounted_price"`
	HasDiscount       bool            `json:"has_discount"`
	Savings           decimal.Decimal `json:"savings"`
	SavingsPercentage int64           `json:"savings_percentage"`
	TotalOriginal     decimal.Decimal `json:"total_original"`
	TotalDiscounted   decimal.Decimal `json:"total_discounted"`
	TotalSavings      decimal.Decimal `json:"total_savings"`
	Tiers             []Tier          `json:"tiers"`
}

// NewQuote evaluates rules for qty and assembles the derived totals.
func NewQuote(productID int64, qty int, base decimal.Decimal, rules []Rule) Quote {
	unit := Evaluate(base, qty, rules)
	return assemble(productID, qty, base, unit, Summarize(base, rules))
}

func assemble(productID int64, qty int, base, unit decimal.Decimal, tiers []Tier) Quote {
	if tiers == nil {
		tiers = []Tier{}
	}
	q := decimal.NewFromInt(int64(qty))
	hasDiscount := unit.LessThan(base)
	if !hasDiscount {
		unit = base
	}
	savings := base.Sub(unit)
	totalOriginal := base.Mul(q)
	totalDiscounted := unit.Mul(q)
	return Quote{
		ProductID:         productID,
		Quantity:          qty,
		BasePrice:         base,
		DiscountedPrice:   unit,
		HasDiscount:       hasDiscount,
		Savings:           savings,
		SavingsPercentage: Percentage(savings, base),
		TotalOriginal:     totalOriginal,
		TotalDiscounted:   totalDiscounted,
		TotalSavings:      totalOriginal.Sub(totalDiscounted),
		Tiers:             tiers,
	}
}
