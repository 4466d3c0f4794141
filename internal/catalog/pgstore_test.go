package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	value any
	err   error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	switch d := dest[0].(type) {
	case **string:
		s, _ := r.value.(*string)
		*d = s
	case *[]byte:
		*d = []byte(r.value.(string))
	default:
		return fmt.Errorf("unexpected scan target %T", dest[0])
	}
	return nil
}

type fakeQuerier struct {
	prices map[int64]*string
	rules  map[string]string
	fail   error
}

func (q *fakeQuerier) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	if q.fail != nil {
		return fakeRow{err: q.fail}
	}
	id := args[0].(int64)
	if sql == basePriceSQL {
		price, ok := q.prices[id]
		if !ok {
			return fakeRow{err: pgx.ErrNoRows}
		}
		return fakeRow{value: price}
	}
	payload, ok := q.rules[fmt.Sprintf("%d/%s", id, args[1])]
	if !ok {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{value: payload}
}

func strPtr(s string) *string { return &s }

func TestPGStoreBasePrice(t *testing.T) {
	store := NewPGStore(&fakeQuerier{prices: map[int64]*string{1: strPtr("20.0000"), 2: nil}})
	ctx := context.Background()

	price, err := store.BasePrice(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "20", price.String())

	price, err = store.BasePrice(ctx, 2)
	require.NoError(t, err)
	require.True(t, price.IsZero())

	_, err = store.BasePrice(ctx, 3)
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestPGStoreRuleGroupsFallsBackToLegacyKey(t *testing.T) {
	q := &fakeQuerier{
		prices: map[int64]*string{1: strPtr("20"), 2: strPtr("20"), 3: strPtr("5")},
		rules: map[string]string{
			"1/_pricing_rules":            `[{"rules":[{"type":"price_discount","from":"2","to":"4","amount":"2"}]}]`,
			"1/_wc_dynamic_pricing_rules": `[{"rules":[{"type":"price_discount","from":"9","amount":"9"}]}]`,
			"2/_pricing_rules":            `[]`,
			"2/_wc_dynamic_pricing_rules": `[{"rules":[{"type":"price_discount","from":"5","amount":"5"}]}]`,
		},
	}
	store := NewPGStore(q)
	ctx := context.Background()

	groups, err := store.RuleGroups(ctx, 1)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.Equal(t, "2", string(groups[0].Rules[0].From))

	groups, err = store.RuleGroups(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, "5", string(groups[0].Rules[0].From))

	groups, err = store.RuleGroups(ctx, 3)
	require.NoError(t, err)
	require.NotNil(t, groups)
	require.Empty(t, groups)

	ok, err := store.HasRules(ctx, 3)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = store.HasRules(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = store.HasRules(ctx, 99)
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestPGStoreWrapsDriverErrors(t *testing.T) {
	boom := errors.New("conn reset")
	store := NewPGStore(&fakeQuerier{fail: boom})
	_, err := store.RuleGroups(context.Background(), 1)
	require.ErrorIs(t, err, boom)
	_, err = store.BasePrice(context.Background(), 1)
	require.ErrorIs(t, err, boom)
	require.NotErrorIs(t, err, ErrProductNotFound)
}
