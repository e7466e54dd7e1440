package currency

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisplayPrice(t *testing.T) {
	tests := []struct {
		name   string
		amount decimal.NullDecimal
		code   string
		rate   decimal.Decimal
		want   string
	}{
		{
			name:   "base currency with separators",
			amount: decimal.NewNullDecimal(decimal.NewFromInt(1500000)),
			code:   "IDR",
			rate:   decimal.NewFromInt(1),
			want:   "IDR 1,500,000",
		},
		{
			name:   "converted and rounded up",
			amount: decimal.NewNullDecimal(decimal.NewFromInt(1000000)),
			code:   "usd",
			rate:   decimal.RequireFromString("0.0000645"),
			want:   "USD 65",
		},
		{
			name:   "rounded down",
			amount: decimal.NewNullDecimal(decimal.NewFromInt(1000)),
			code:   "EUR",
			rate:   decimal.RequireFromString("1.2344"),
			want:   "EUR 1,234",
		},
		{
			name:   "invalid amount",
			amount: decimal.NullDecimal{},
			code:   "IDR",
			rate:   decimal.NewFromInt(1),
			want:   Placeholder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayPrice(tt.amount, tt.code, tt.rate))
		})
	}
}

func TestDisplayRaw_NonNumeric(t *testing.T) {
	assert.Equal(t, Placeholder, DisplayRaw("n/a", "IDR", decimal.NewFromInt(1)))
	assert.Equal(t, "IDR 2,500", DisplayRaw(" 2500 ", "IDR", decimal.NewFromInt(1)))
}

func TestConverter(t *testing.T) {
	c := NewConverter("idr", map[string]decimal.Decimal{
		"usd": decimal.RequireFromString("0.000064"),
	})

	assert.Equal(t, "IDR", c.Base())
	assert.True(t, c.IsBase("IDR"))
	assert.Equal(t, []string{"IDR", "USD"}, c.Supported())

	got, err := c.Convert(decimal.NewFromInt(1000000), "USD")
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(64)))

	_, err = c.Rate("JPY")
	assert.ErrorIs(t, err, ErrUnknownCurrency)
	assert.Equal(t, Placeholder, c.Display(decimal.NewNullDecimal(decimal.NewFromInt(1)), "JPY"))
}
