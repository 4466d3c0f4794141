package catalog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-tierprice/internal/pricing"
)

// Meta keys under which rule groups may be stored, in lookup order.
const (
	MetaKeyPricingRules       = "_pricing_rules"
	MetaKeyLegacyPricingRules = "_wc_dynamic_pricing_rules"
)

// RuleMetaKeys lists the meta keys consulted by RuleGroups.
var RuleMetaKeys = []string{MetaKeyPricingRules, MetaKeyLegacyPricingRules}

// ErrProductNotFound is returned when the product id is unknown.
var ErrProductNotFound = errors.New("catalog: product not found")

// Products is the read-only view of the product store used by pricing.
type Products interface {
	BasePrice(ctx context.Context, productID int64) (decimal.Decimal, error)
	RuleGroups(ctx context.Context, productID int64) ([]pricing.RuleGroup, error)
	HasRules(ctx context.Context, productID int64) (bool, error)
}

func hasAnyRule(groups []pricing.RuleGroup) bool {
	for _, group := range groups {
		if len(group.Rules) > 0 {
			return true
		}
	}
	return false
}
