package values

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWeightSplit(t *testing.T) {
	tests := []struct {
		name       string
		technical  int
		commercial int
		wantErr    string
	}{
		{name: "standard 70/30", technical: 70, commercial: 30},
		{name: "price only", technical: 0, commercial: 100},
		{name: "technical only", technical: 100, commercial: 0},
		{name: "sums below 100", technical: 60, commercial: 30, wantErr: "must sum to 100"},
		{name: "sums above 100", technical: 70, commercial: 40, wantErr: "must sum to 100"},
		{name: "negative weight", technical: -10, commercial: 110, wantErr: "cannot be negative"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			split, err := NewWeightSplit(tt.technical, tt.commercial)

			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.technical, split.Technical())
			assert.Equal(t, tt.commercial, split.Commercial())
		})
	}
}

func TestWeightSplit_Equal(t *testing.T) {
	assert.True(t, MustNewWeightSplit(70, 30).Equal(MustNewWeightSplit(70, 30)))
	assert.False(t, MustNewWeightSplit(70, 30).Equal(MustNewWeightSplit(60, 40)))
	assert.Equal(t, "70/30", MustNewWeightSplit(70, 30).String())
}
