package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-tierprice/internal/pricing"
)

const (
	basePriceSQL = `SELECT price::text FROM products WHERE id = $1`
	ruleGroupSQL = `SELECT rules FROM product_pricing_rules WHERE product_id = $1 AND meta_key = $2`
)

// Querier is the subset of pgxpool.Pool used by PGStore.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGStore reads products and their pricing rules from Postgres.
type PGStore struct {
	db Querier
}

// NewPGStore constructs a PGStore.
func NewPGStore(db Querier) *PGStore {
	return &PGStore{db: db}
}

// BasePrice returns the product's current unit price.
func (s *PGStore) BasePrice(ctx context.Context, productID int64) (decimal.Decimal, error) {
	var raw *string
	if err := s.db.QueryRow(ctx, basePriceSQL, productID).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrProductNotFound
		}
		return decimal.Zero, fmt.Errorf("catalog: base price %d: %w", productID, err)
	}
	if raw == nil || *raw == "" {
		return decimal.Zero, nil
	}
	price, err := decimal.NewFromString(*raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("catalog: base price %d: %w", productID, err)
	}
	return price, nil
}

// RuleGroups returns the first non-empty rule set found under RuleMetaKeys.
// A product without rules yields an empty slice.
func (s *PGStore) RuleGroups(ctx context.Context, productID int64) ([]pricing.RuleGroup, error) {
	for _, key := range RuleMetaKeys {
		var payload []byte
		err := s.db.QueryRow(ctx, ruleGroupSQL, productID, key).Scan(&payload)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("catalog: rules %d/%s: %w", productID, key, err)
		}
		var groups []pricing.RuleGroup
		if err := json.Unmarshal(payload, &groups); err != nil {
			return nil, fmt.Errorf("catalog: decode rules %d/%s: %w", productID, key, err)
		}
		if hasAnyRule(groups) {
			return groups, nil
		}
	}
	return []pricing.RuleGroup{}, nil
}

// HasRules reports whether any rule group with at least one rule exists.
func (s *PGStore) HasRules(ctx context.Context, productID int64) (bool, error) {
	if _, err := s.BasePrice(ctx, productID); err != nil {
		return false, err
	}
	groups, err := s.RuleGroups(ctx, productID)
	if err != nil {
		return false, err
	}
	return hasAnyRule(groups), nil
}
