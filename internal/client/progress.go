package client

import "github.com/noah-isme/toko-tierprice/internal/quote"

// Step is one rung of a discount progression.
type Step struct {
	Quantity int   `json:"quantity"`
	Discount int64 `json:"discount"`
}

// DefaultProgression is shown when the server sent no tiers at all.
var DefaultProgression = []Step{
	{Quantity: 2, Discount: 10},
	{Quantity: 3, Discount: 15},
	{Quantity: 5, Discount: 20},
	{Quantity: 10, Discount: 25},
	{Quantity: 20, Discount: 30},
}

// ProgressView describes how far the shopper is from the next tier.
type ProgressView struct {
	Next           *Step `json:"next,omitempty"`
	Remaining      int   `json:"remaining"`
	Percent        int   `json:"percent"`
	MaximumReached bool  `json:"maximum_reached"`
	// Visible is false when there is neither a discount nor a tier to reach.
	Visible     bool `json:"visible"`
	FirstReward bool `json:"first_reward"`
}

// Progress computes the progress summary for payload.
func Progress(payload quote.Payload) ProgressView {
	steps := DefaultProgression
	if len(payload.DiscountTiers) > 0 {
		steps = make([]Step, 0, len(payload.DiscountTiers))
		for _, t := range payload.DiscountTiers {
			steps = append(steps, Step{Quantity: t.Quantity, Discount: t.Discount})
		}
	}

	qty := payload.Quantity
	for i := range steps {
		if qty < steps[i].Quantity {
			next := steps[i]
			percent := 100
			if next.Quantity > 0 {
				percent = qty * 100 / next.Quantity
			}
			if percent > 100 {
				percent = 100
			}
			return ProgressView{
				Next:        &next,
				Remaining:   next.Quantity - qty,
				Percent:     percent,
				Visible:     true,
				FirstReward: !payload.HasDiscount,
			}
		}
	}
	if payload.HasDiscount {
		return ProgressView{Percent: 100, MaximumReached: true, Visible: true}
	}
	return ProgressView{}
}
