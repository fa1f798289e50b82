package values

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMoney(t *testing.T) {
	tests := []struct {
		name     string
		amount   decimal.Decimal
		currency string
		wantErr  bool
	}{
		{
			name:     "valid USD amount",
			amount:   decimal.NewFromFloat(123456.78),
			currency: USD,
			wantErr:  false,
		},
		{
			name:     "valid SAR amount",
			amount:   decimal.NewFromFloat(1000000),
			currency: SAR,
			wantErr:  false,
		},
		{
			name:     "lowercase currency is normalized",
			amount:   decimal.NewFromFloat(50),
			currency: "eur",
			wantErr:  false,
		},
		{
			name:     "zero amount",
			amount:   decimal.Zero,
			currency: USD,
			wantErr:  false,
		},
		{
			name:     "empty currency",
			amount:   decimal.NewFromFloat(100),
			currency: "",
			wantErr:  true,
		},
		{
			name:     "two letter currency",
			amount:   decimal.NewFromFloat(100),
			currency: "US",
			wantErr:  true,
		},
		{
			name:     "unsupported currency",
			amount:   decimal.NewFromFloat(100),
			currency: "XXX",
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			money, err := NewMoney(tt.amount, tt.currency)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.True(t, money.Amount().Equal(tt.amount))
			assert.Len(t, money.Currency(), 3)
		})
	}
}

func TestNewMoneyFromString(t *testing.T) {
	m, err := NewMoneyFromString("123456.78", USD)
	require.NoError(t, err)
	assert.Equal(t, "123456.78 USD", m.String())

	_, err = NewMoneyFromString("not-a-number", USD)
	assert.Error(t, err)
}

func TestMoney_Compare(t *testing.T) {
	lower := MustNewMoneyFromFloat(100000, USD)
	higher := MustNewMoneyFromFloat(120000, USD)

	cmp, err := lower.Compare(higher)
	require.NoError(t, err)
	assert.Equal(t, -1, cmp)

	cmp, err = higher.Compare(lower)
	require.NoError(t, err)
	assert.Equal(t, 1, cmp)

	cmp, err = lower.Compare(MustNewMoneyFromFloat(100000, USD))
	require.NoError(t, err)
	assert.Equal(t, 0, cmp)

	_, err = lower.Compare(MustNewMoneyFromFloat(100000, EUR))
	assert.ErrorContains(t, err, "different currencies")
}

func TestMoney_Add(t *testing.T) {
	base := MustNewMoneyFromFloat(100000, USD)
	extra := MustNewMoneyFromFloat(5000, USD)

	sum, err := base.Add(extra)
	require.NoError(t, err)
	assert.True(t, sum.Amount().Equal(decimal.NewFromInt(105000)))

	_, err = base.Add(MustNewMoneyFromFloat(5000, GBP))
	assert.ErrorContains(t, err, "different currencies")
}

func TestMoney_Ratio(t *testing.T) {
	lowest := MustNewMoneyFromFloat(100000, USD)
	this := MustNewMoneyFromFloat(120000, USD)

	ratio, err := lowest.Ratio(this)
	require.NoError(t, err)
	expected := decimal.NewFromInt(100000).Div(decimal.NewFromInt(120000))
	assert.True(t, ratio.Equal(expected))

	// Same price yields exactly 1.
	ratio, err = lowest.Ratio(MustNewMoneyFromFloat(100000, USD))
	require.NoError(t, err)
	assert.True(t, ratio.Equal(decimal.NewFromInt(1)))

	_, err = lowest.Ratio(Zero(USD))
	assert.ErrorContains(t, err, "division by zero")

	_, err = lowest.Ratio(MustNewMoneyFromFloat(120000, EUR))
	assert.ErrorContains(t, err, "different currencies")
}

func TestMoney_Predicates(t *testing.T) {
	assert.True(t, Zero(USD).IsZero())
	assert.True(t, MustNewMoneyFromFloat(1, USD).IsPositive())
	assert.True(t, MustNewMoneyFromFloat(-1, USD).IsNegative())
	assert.True(t, MustNewMoneyFromFloat(10, USD).Equal(MustNewMoneyFromFloat(10, USD)))
	assert.False(t, MustNewMoneyFromFloat(10, USD).Equal(MustNewMoneyFromFloat(10, EUR)))
}
