package client

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-tierprice/internal/quote"
)

func TestProgressTowardsNextServerTier(t *testing.T) {
	payload := quote.Payload{
		Quantity:    3,
		HasDiscount: true,
		DiscountTiers: []quote.TierView{
			{Quantity: 2, Discount: 10},
			{Quantity: 5, Discount: 25},
		},
	}
	view := Progress(payload)
	require.True(t, view.Visible)
	require.NotNil(t, view.Next)
	require.Equal(t, Step{Quantity: 5, Discount: 25}, *view.Next)
	require.Equal(t, 2, view.Remaining)
	require.Equal(t, 60, view.Percent)
	require.False(t, view.FirstReward)
}

func TestProgressMaximumReached(t *testing.T) {
	payload := quote.Payload{
		Quantity:      9,
		HasDiscount:   true,
		DiscountTiers: []quote.TierView{{Quantity: 2, Discount: 10}, {Quantity: 5, Discount: 25}},
	}
	view := Progress(payload)
	require.True(t, view.MaximumReached)
	require.Equal(t, 100, view.Percent)
	require.Nil(t, view.Next)
}

func TestProgressHiddenWithoutDiscountOrTiersAhead(t *testing.T) {
	payload := quote.Payload{
		Quantity:      9,
		DiscountTiers: []quote.TierView{{Quantity: 2, Discount: 10}},
	}
	require.Equal(t, ProgressView{}, Progress(payload))
}

func TestProgressFallsBackToDefaultProgression(t *testing.T) {
	view := Progress(quote.Payload{Quantity: 1})
	require.True(t, view.Visible)
	require.True(t, view.FirstReward)
	require.Equal(t, DefaultProgression[0], *view.Next)
	require.Equal(t, 1, view.Remaining)
	require.Equal(t, 50, view.Percent)

	view = Progress(quote.Payload{Quantity: 20, HasDiscount: true})
	require.True(t, view.MaximumReached)
}
