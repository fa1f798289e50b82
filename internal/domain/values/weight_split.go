package values

import (
	"encoding/json"
	"fmt"
)

// WeightSplit is the tender's technical/commercial weighting. The two
// integers must sum to exactly 100; there is no rounding tolerance.
type WeightSplit struct {
	technical  int
	commercial int
}

// NewWeightSplit creates a WeightSplit, enforcing the sum-to-100 invariant.
func NewWeightSplit(technical, commercial int) (WeightSplit, error) {
	if technical < 0 || commercial < 0 {
		return WeightSplit{}, fmt.Errorf("weights cannot be negative: %d/%d", technical, commercial)
	}
	if technical+commercial != 100 {
		return WeightSplit{}, fmt.Errorf("weights must sum to 100, got %d", technical+commercial)
	}
	return WeightSplit{technical: technical, commercial: commercial}, nil
}

// MustNewWeightSplit creates a WeightSplit and panics on error (for tests)
func MustNewWeightSplit(technical, commercial int) WeightSplit {
	ws, err := NewWeightSplit(technical, commercial)
	if err != nil {
		panic(err)
	}
	return ws
}

// Technical returns the technical weight percentage
func (w WeightSplit) Technical() int {
	return w.technical
}

// Commercial returns the commercial weight percentage
func (w WeightSplit) Commercial() int {
	return w.commercial
}

func (w WeightSplit) Equal(other WeightSplit) bool {
	return w.technical == other.technical && w.commercial == other.commercial
}

func (w WeightSplit) String() string {
	return fmt.Sprintf("%d/%d", w.technical, w.commercial)
}

func (w WeightSplit) MarshalJSON() ([]byte, error) {
	data := struct {
		Technical  int `json:"technical"`
		Commercial int `json:"commercial"`
	}{w.technical, w.commercial}
	return json.Marshal(data)
}

func (w *WeightSplit) UnmarshalJSON(data []byte) error {
	var temp struct {
		Technical  int `json:"technical"`
		Commercial int `json:"commercial"`
	}
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}
	ws, err := NewWeightSplit(temp.Technical, temp.Commercial)
	if err != nil {
		return err
	}
	*w = ws
	return nil
}
