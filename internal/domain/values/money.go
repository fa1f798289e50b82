package values

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value with currency and precision handling.
// Bid totals are compared with decimal arithmetic; float64 never enters a
// price comparison.
type Money struct {
	amount   decimal.Decimal
	currency string
}

// Common currency codes (ISO 4217)
const (
	USD = "USD"
	EUR = "EUR"
	GBP = "GBP"
	SAR = "SAR"
	AED = "AED"
)

var validCurrencies = map[string]bool{
	USD: true, EUR: true, GBP: true, SAR: true, AED: true,
	"JPY": true, "CAD": true, "AUD": true, "CHF": true, "KWD": true,
}

// NewMoney creates a new Money value object
func NewMoney(amount decimal.Decimal, currency string) (Money, error) {
	currency = strings.ToUpper(currency)
	if err := validateCurrency(currency); err != nil {
		return Money{}, err
	}
	return Money{amount: amount, currency: currency}, nil
}

// NewMoneyFromString creates Money from string amount and currency
func NewMoneyFromString(amount, currency string) (Money, error) {
	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount: %w", err)
	}
	return NewMoney(dec, currency)
}

// NewMoneyFromFloat creates Money from float64 amount and currency.
// Note: use with caution due to floating point precision issues.
func NewMoneyFromFloat(amount float64, currency string) (Money, error) {
	return NewMoney(decimal.NewFromFloat(amount), currency)
}

// MustNewMoney creates Money and panics on error (for constants/tests)
func MustNewMoney(amount decimal.Decimal, currency string) Money {
	m, err := NewMoney(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// MustNewMoneyFromFloat creates Money from float and panics on error (for constants/tests)
func MustNewMoneyFromFloat(amount float64, currency string) Money {
	m, err := NewMoneyFromFloat(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns a zero Money value in the given currency
func Zero(currency string) Money {
	return MustNewMoney(decimal.Zero, currency)
}

// Amount returns the decimal amount
func (m Money) Amount() decimal.Decimal {
	return m.amount
}

// Currency returns the currency code
func (m Money) Currency() string {
	return m.currency
}

// String returns the amount with its currency code (e.g., "123.45 USD")
func (m Money) String() string {
	return m.amount.StringFixed(2) + " " + m.currency
}

// IsZero checks if the amount is zero
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// IsPositive checks if the amount is positive
func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// IsNegative checks if the amount is negative
func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

// Equal checks if two Money values are equal (same amount and currency)
func (m Money) Equal(other Money) bool {
	return m.amount.Equal(other.amount) && m.currency == other.currency
}

// Compare returns -1, 0, or 1 based on comparison with other Money.
// Returns an error if currencies don't match.
func (m Money) Compare(other Money) (int, error) {
	if m.currency != other.currency {
		return 0, fmt.Errorf("cannot compare different currencies: %s vs %s", m.currency, other.currency)
	}
	return m.amount.Cmp(other.amount), nil
}

// Add adds two Money values (must have same currency)
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("cannot add different currencies: %s and %s", m.currency, other.currency)
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

// Sub subtracts other Money from this Money (must have same currency)
func (m Money) Sub(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("cannot subtract different currencies: %s and %s", m.currency, other.currency)
	}
	return Money{amount: m.amount.Sub(other.amount), currency: m.currency}, nil
}

// Ratio returns m / other as a plain decimal. Used for price-derived
// scoring where lowest/this produces a dimensionless factor.
func (m Money) Ratio(other Money) (decimal.Decimal, error) {
	if m.currency != other.currency {
		return decimal.Zero, fmt.Errorf("cannot divide different currencies: %s and %s", m.currency, other.currency)
	}
	if other.amount.IsZero() {
		return decimal.Zero, fmt.Errorf("division by zero amount")
	}
	return m.amount.Div(other.amount), nil
}

// ToFloat64 converts to float64 (use with caution for precision)
func (m Money) ToFloat64() float64 {
	f, _ := m.amount.Float64()
	return f
}

// JSON marshaling
func (m Money) MarshalJSON() ([]byte, error) {
	data := struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	}{
		Amount:   m.amount.String(),
		Currency: m.currency,
	}
	return json.Marshal(data)
}

// JSON unmarshaling
func (m *Money) UnmarshalJSON(data []byte) error {
	var temp struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}

	amount, err := decimal.NewFromString(temp.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount: %w", err)
	}

	money, err := NewMoney(amount, temp.Currency)
	if err != nil {
		return err
	}

	*m = money
	return nil
}

// Database scanning (implements sql.Scanner)
func (m *Money) Scan(value interface{}) error {
	if value == nil {
		*m = Money{}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return m.UnmarshalJSON(v)
	case string:
		return m.UnmarshalJSON([]byte(v))
	default:
		return fmt.Errorf("cannot scan %T into Money", value)
	}
}

// Database value (implements driver.Valuer)
func (m Money) Value() (driver.Value, error) {
	if m.amount.IsZero() && m.currency == "" {
		return nil, nil
	}
	// Stored as JSON for PostgreSQL JSONB compatibility
	return m.MarshalJSON()
}

func validateCurrency(currency string) error {
	if currency == "" {
		return fmt.Errorf("currency cannot be empty")
	}
	if len(currency) != 3 {
		return fmt.Errorf("currency code must be 3 characters")
	}
	if !validCurrencies[currency] {
		return fmt.Errorf("unsupported currency: %s", currency)
	}
	return nil
}
