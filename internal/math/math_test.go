package math

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFit(t *testing.T) {

	type test struct {
		x      []float64
		y      []float64
		degree int
		c      []float64
	}

	tests := map[string]test{
		"line": {
			x:      []float64{0, 1, 2, 3},
			y:      []float64{1, 3, 5, 7},
			degree: 1,
			c:      []float64{1, 2},
		},
		"parabola": {
			x:      []float64{-2, -1, 0, 1, 2},
			y:      []float64{4, 1, 0, 1, 4},
			degree: 2,
			c:      []float64{0, 0, 1},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			c, err := Fit(tt.x, tt.y, tt.degree)
			require.NoError(t, err)
			require.Equal(t, len(tt.c), len(c))
			for i := range c {
				assert.InDelta(t, tt.c[i], c[i], 1e-9)
			}
		})
	}
}

func TestTrend(t *testing.T) {
	slope, err := Trend([]float64{10, 8, 6, 4})
	require.NoError(t, err)
	assert.InDelta(t, -2, slope, 1e-9)

	_, err = Trend([]float64{1})
	assert.Error(t, err)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "1.23", Format(1.2345, 2))
	assert.Equal(t, "-", Format(math.NaN(), 2))
}

func TestFit_Errors(t *testing.T) {
	_, err := Fit([]float64{1, 2}, []float64{1}, 1)
	assert.Error(t, err)
	_, err = Fit([]float64{1, 2}, []float64{1, 2}, 2)
	assert.Error(t, err)
}
