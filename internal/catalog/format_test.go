package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFormatMoney(t *testing.T) {
	euro := Formatter{Symbol: "€", Position: PositionLeft, DecimalSep: ",", ThousandSep: ".", Decimals: 2}
	cases := []struct {
		name   string
		f      Formatter
		amount string
		want   string
	}{
		{name: "plain", f: euro, amount: "18", want: "€18,00"},
		{name: "grouped", f: euro, amount: "1234567.5", want: "€1.234.567,50"},
		{name: "rounded", f: euro, amount: "16.555", want: "€16,56"},
		{name: "negative", f: euro, amount: "-1200", want: "€-1.200,00"},
		{name: "right space", f: Formatter{Symbol: "kr", Position: PositionRightSpace, DecimalSep: ".", Decimals: 2}, amount: "1000", want: "1000.00 kr"},
		{name: "no decimals", f: Formatter{Symbol: "Rp", Position: PositionLeftSpace, ThousandSep: ".", Decimals: 0}, amount: "150000", want: "Rp 150.000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.f.FormatMoney(decimal.RequireFromString(tc.amount)))
		})
	}
}

func TestPgxURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@localhost/db", pgxURL("postgres://u:p@localhost/db"))
	require.Equal(t, "pgx5://localhost/db", pgxURL("postgresql://localhost/db"))
	require.Equal(t, "pgx5://localhost/db", pgxURL("pgx5://localhost/db"))
}
