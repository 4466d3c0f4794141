package pricing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewQuoteScenario(t *testing.T) {
	base := dec(t, "20.00")
	rules := scenarioRules(t)

	t.Run("quantity 1 has no discount", func(t *testing.T) {
		q := NewQuote(7, 1, base, rules)
		require.False(t, q.HasDiscount)
		require.True(t, q.DiscountedPrice.Equal(base))
		require.Equal(t, "20", q.TotalDiscounted.String())
		require.Equal(t, int64(0), q.SavingsPercentage)
		require.True(t, q.TotalSavings.IsZero())
	})

	t.Run("quantity 3 uses the first tier", func(t *testing.T) {
		q := NewQuote(7, 3, base, rules)
		require.True(t, q.HasDiscount)
		require.Equal(t, "18", q.DiscountedPrice.String())
		require.Equal(t, "54", q.TotalDiscounted.String())
		require.Equal(t, "60", q.TotalOriginal.String())
		require.Equal(t, "6", q.TotalSavings.String())
		require.Equal(t, int64(10), q.SavingsPercentage)
	})

	t.Run("quantity 10 uses the open ended tier", func(t *testing.T) {
		q := NewQuote(7, 10, base, rules)
		require.Equal(t, "15", q.DiscountedPrice.String())
		require.Equal(t, "150", q.TotalDiscounted.String())
		require.Equal(t, int64(25), q.SavingsPercentage)
		require.Len(t, q.Tiers, 2)
	})

	t.Run("boundary between 4 and 5", func(t *testing.T) {
		four := NewQuote(7, 4, base, rules)
		five := NewQuote(7, 5, base, rules)
		require.Equal(t, "18", four.DiscountedPrice.String())
		require.Equal(t, "15", five.DiscountedPrice.String())
	})
}

func TestNewQuoteInvariants(t *testing.T) {
	base := dec(t, "9.99")
	rules := []Rule{amountOff(t, 1, Unbounded, "0"), amountOff(t, 3, 3, "12")}
	for qty := 1; qty <= 6; qty++ {
		q := NewQuote(1, qty, base, rules)
		require.True(t, q.DiscountedPrice.LessThanOrEqual(q.BasePrice))
		require.Equal(t, q.DiscountedPrice.LessThan(q.BasePrice), q.HasDiscount)
		require.NotNil(t, q.Tiers)
	}
}
