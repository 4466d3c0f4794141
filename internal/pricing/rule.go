package pricing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Unbounded marks a rule without an upper quantity limit.
const Unbounded = math.MaxInt

var (
	// ErrMalformedRule is returned when a raw rule cannot be turned into a usable Rule.
	ErrMalformedRule = errors.New("pricing: malformed rule")
	// ErrUnknownKind is returned for rule types the engine does not evaluate.
	ErrUnknownKind = errors.New("pricing: unknown rule kind")
)

// Kind enumerates the rule kinds understood by the engine.
type Kind int

const (
	// KindUnknown covers every wire type the engine does not support.
	KindUnknown Kind = iota
	// KindAmountOff subtracts a fixed amount from the unit price.
	KindAmountOff
)

func (k Kind) String() string {
	switch k {
	case KindAmountOff:
		return "amount_off"
	default:
		return "unknown"
	}
}

// ParseKind maps a wire rule type onto a Kind.
func ParseKind(value string) Kind {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "price_discount", "amount_off":
		return KindAmountOff
	default:
		return KindUnknown
	}
}

// Rule is a validated quantity-range discount.
type Rule struct {
	Kind        Kind            `json:"kind"`
	MinQuantity int             `json:"min_quantity"`
	MaxQuantity int             `json:"max_quantity"`
	Amount      decimal.Decimal `json:"amount"`
}

// Valid reports whether the rule can take part in evaluation.
func (r Rule) Valid() bool {
	if r.Kind != KindAmountOff {
		return false
	}
	if r.MinQuantity < 1 || r.MaxQuantity < r.MinQuantity {
		return false
	}
	return !r.Amount.IsNegative()
}

// Matches reports whether qty falls inside the rule's inclusive range.
func (r Rule) Matches(qty int) bool {
	return qty >= r.MinQuantity && qty <= r.MaxQuantity
}

// RuleGroup is one independently ordered set of rules as stored per product.
type RuleGroup struct {
	Rules []RawRule `json:"rules"`
}

// UnmarshalJSON decodes the group leniently: a "rules" value that is not a
// list yields an empty group instead of failing the whole set.
func (g *RuleGroup) UnmarshalJSON(data []byte) error {
	var wire struct {
		Rules json.RawMessage `json:"rules"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		*g = RuleGroup{}
		return nil
	}
	var rules []RawRule
	if len(wire.Rules) > 0 {
		if err := json.Unmarshal(wire.Rules, &rules); err != nil {
			rules = nil
		}
	}
	*g = RuleGroup{Rules: rules}
	return nil
}

// RawRule is the loosely typed rule shape found in the product store.
type RawRule struct {
	Type   string  `json:"type"`
	From   FlexStr `json:"from"`
	To     FlexStr `json:"to"`
	Amount FlexStr `json:"amount"`

	malformed string
}

// UnmarshalJSON decodes a single rule. Elements that are not objects are kept
// as malformed rules so Parse rejects them individually.
func (r *RawRule) UnmarshalJSON(data []byte) error {
	var wire struct {
		Type   FlexStr `json:"type"`
		From   FlexStr `json:"from"`
		To     FlexStr `json:"to"`
		Amount FlexStr `json:"amount"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		*r = RawRule{malformed: string(bytes.TrimSpace(data))}
		return nil
	}
	*r = RawRule{Type: string(wire.Type), From: wire.From, To: wire.To, Amount: wire.Amount}
	return nil
}

// FlexStr accepts any JSON value and keeps its textual form. Strings are
// unquoted, null becomes empty and anything else (numbers, booleans, objects)
// is kept verbatim so Parse can reject the rule without failing its siblings.
type FlexStr string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexStr) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexStr(s)
		return nil
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, data); err != nil {
		return err
	}
	*f = FlexStr(compact.String())
	return nil
}

// ParseAmount converts a rule amount to a decimal, accepting a comma as the
// fractional separator.
func ParseAmount(value string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return decimal.Zero, fmt.Errorf("%w: amount is required", ErrMalformedRule)
	}
	normalised := strings.ReplaceAll(trimmed, ",", ".")
	amount, err := decimal.NewFromString(normalised)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q: %v", ErrMalformedRule, value, err)
	}
	return amount, nil
}

// parseQuantity reads a quantity bound, dropping any fractional part so "2.0"
// and "2,5" both mean 2.
func parseQuantity(value string) (int, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(value, ",", "."))
	if err != nil {
		return 0, err
	}
	return int(d.IntPart()), nil
}

// Parse validates a raw rule.
func (raw RawRule) Parse() (Rule, error) {
	if raw.malformed != "" {
		return Rule{}, fmt.Errorf("%w: %s", ErrMalformedRule, raw.malformed)
	}
	kind := ParseKind(raw.Type)
	if kind == KindUnknown {
		return Rule{}, fmt.Errorf("%w: %q", ErrUnknownKind, raw.Type)
	}
	minQty := 1
	if from := strings.TrimSpace(string(raw.From)); from != "" {
		parsed, err := parseQuantity(from)
		if err != nil {
			return Rule{}, fmt.Errorf("%w: from %q", ErrMalformedRule, raw.From)
		}
		if parsed < 0 {
			return Rule{}, fmt.Errorf("%w: negative from %d", ErrMalformedRule, parsed)
		}
		if parsed > 0 {
			minQty = parsed
		}
	}
	maxQty := Unbounded
	if to := strings.TrimSpace(string(raw.To)); to != "" {
		parsed, err := parseQuantity(to)
		if err != nil {
			return Rule{}, fmt.Errorf("%w: to %q", ErrMalformedRule, raw.To)
		}
		if parsed > 0 {
			maxQty = parsed
		}
	}
	if maxQty < minQty {
		return Rule{}, fmt.Errorf("%w: to %d below from %d", ErrMalformedRule, maxQty, minQty)
	}
	amount, err := ParseAmount(string(raw.Amount))
	if err != nil {
		return Rule{}, err
	}
	if amount.IsNegative() {
		return Rule{}, fmt.Errorf("%w: negative amount %s", ErrMalformedRule, amount)
	}
	return Rule{Kind: kind, MinQuantity: minQty, MaxQuantity: maxQty, Amount: amount}, nil
}

// Flatten parses every rule of every group in order. Rules that fail to parse
// are skipped and reported through the returned error slice so callers can log
// them without failing the request.
func Flatten(groups []RuleGroup) ([]Rule, []error) {
	var (
		rules   []Rule
		skipped []error
	)
	for gi, group := range groups {
		for ri, raw := range group.Rules {
			rule, err := raw.Parse()
			if err != nil {
				skipped = append(skipped, fmt.Errorf("group %d rule %d: %w", gi, ri, err))
				continue
			}
			rules = append(rules, rule)
		}
	}
	return rules, skipped
}
