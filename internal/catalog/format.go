package catalog

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Currency positions.
const (
	PositionLeft       = "left"
	PositionRight      = "right"
	PositionLeftSpace  = "left_space"
	PositionRightSpace = "right_space"
)

// Formatter renders money amounts for display.
type Formatter struct {
	Symbol      string
	Position    string
	DecimalSep  string
	ThousandSep string
	Decimals    int32
}

// FormatMoney renders amount with fixed decimals, grouped thousands and the
// currency symbol placed according to Position.
func (f Formatter) FormatMoney(amount decimal.Decimal) string {
	fixed := amount.StringFixed(f.Decimals)
	negative := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	whole, frac, _ := strings.Cut(fixed, ".")
	var b strings.Builder
	if negative {
		b.WriteByte('-')
	}
	b.WriteString(group(whole, f.ThousandSep))
	if frac != "" {
		b.WriteString(f.DecimalSep)
		b.WriteString(frac)
	}
	return f.place(b.String())
}

func (f Formatter) place(number string) string {
	switch f.Position {
	case PositionRight:
		return number + f.Symbol
	case PositionLeftSpace:
		return f.Symbol + " " + number
	case PositionRightSpace:
		return number + " " + f.Symbol
	default:
		return f.Symbol + number
	}
}

func group(digits, sep string) string {
	if sep == "" || len(digits) <= 3 {
		return digits
	}
	head := len(digits) % 3
	var b strings.Builder
	if head > 0 {
		b.WriteString(digits[:head])
	}
	for i := head; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
