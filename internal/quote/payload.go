package quote

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-tierprice/internal/pricing"
)

// MoneyFormatter renders amounts for display. catalog.Formatter satisfies it.
type MoneyFormatter interface {
	FormatMoney(amount decimal.Decimal) string
}

// TierView is a discount tier as sent to the widget. Amounts are plain
// numbers so the client can compute progress without parsing display strings.
type TierView struct {
	Quantity       int         `json:"quantity"`
	Discount       int64       `json:"discount"`
	DiscountAmount json.Number `json:"discount_amount"`
	FinalPrice     json.Number `json:"final_price"`
}

// Payload is the data member of a successful quote response.
type Payload struct {
	OriginalPrice     string     `json:"original_price"`
	DiscountedPrice   string     `json:"discounted_price"`
	TotalOriginal     string     `json:"total_original"`
	TotalDiscounted   string     `json:"total_discounted"`
	Savings           string     `json:"savings"`
	TotalSavings      string     `json:"total_savings"`
	SavingsPercentage int64      `json:"savings_percentage"`
	Quantity          int        `json:"quantity"`
	HasDiscount       bool       `json:"has_discount"`
	DiscountTiers     []TierView `json:"discount_tiers"`
	Debug             Debug      `json:"debug"`
	FromCache         bool       `json:"from_cache"`
}

// BuildPayload renders res for the wire using f for money fields.
func BuildPayload(res Result, f MoneyFormatter) Payload {
	q := res.Quote
	return Payload{
		OriginalPrice:     f.FormatMoney(q.BasePrice),
		DiscountedPrice:   f.FormatMoney(q.DiscountedPrice),
		TotalOriginal:     f.FormatMoney(q.TotalOriginal),
		TotalDiscounted:   f.FormatMoney(q.TotalDiscounted),
		Savings:           f.FormatMoney(q.Savings),
		TotalSavings:      f.FormatMoney(q.TotalSavings),
		SavingsPercentage: q.SavingsPercentage,
		Quantity:          q.Quantity,
		HasDiscount:       q.HasDiscount,
		DiscountTiers:     tierViews(q.Tiers),
		Debug:             res.Debug,
		FromCache:         res.FromCache,
	}
}

func tierViews(tiers []pricing.Tier) []TierView {
	out := make([]TierView, 0, len(tiers))
	for _, t := range tiers {
		out = append(out, TierView{
			Quantity:       t.Quantity,
			Discount:       t.DiscountPercentage,
			DiscountAmount: json.Number(t.DiscountAmount.String()),
			FinalPrice:     json.Number(t.FinalPrice.String()),
		})
	}
	return out
}
