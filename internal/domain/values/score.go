package values

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Raw evaluator marks are bounded 0-10. Marks inside the safe band need no
// written justification; marks outside it do.
const (
	MinScore = 0.0
	MaxScore = 10.0

	SafeBandLow  = 3.0
	SafeBandHigh = 8.0
)

// Score is a single evaluator mark for one criterion on one bid.
type Score struct {
	value decimal.Decimal
}

// NewScore creates a Score, rejecting values outside [0, 10].
func NewScore(value float64) (Score, error) {
	if value < MinScore || value > MaxScore {
		return Score{}, fmt.Errorf("score %.2f out of range [%v, %v]", value, MinScore, MaxScore)
	}
	return Score{value: decimal.NewFromFloat(value)}, nil
}

// MustNewScore creates a Score and panics on error (for tests)
func MustNewScore(value float64) Score {
	s, err := NewScore(value)
	if err != nil {
		panic(err)
	}
	return s
}

// Value returns the decimal mark
func (s Score) Value() decimal.Decimal {
	return s.value
}

// Float64 returns the mark as a float64
func (s Score) Float64() float64 {
	f, _ := s.value.Float64()
	return f
}

// RequiresJustification reports whether the mark falls outside the safe
// band and therefore needs a comment from the evaluator.
func (s Score) RequiresJustification() bool {
	return s.value.LessThan(decimal.NewFromFloat(SafeBandLow)) ||
		s.value.GreaterThan(decimal.NewFromFloat(SafeBandHigh))
}

func (s Score) String() string {
	return s.value.StringFixed(2)
}

func (s Score) MarshalJSON() ([]byte, error) {
	f, _ := s.value.Float64()
	return json.Marshal(f)
}

func (s *Score) UnmarshalJSON(data []byte) error {
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	score, err := NewScore(f)
	if err != nil {
		return err
	}
	*s = score
	return nil
}
