package math

import (
	"fmt"
	"math"
	"strconv"
)

// Format formats a float with the given precision.
func Format(f float64, precision int) string {
	if math.IsNaN(f) {
		return "-"
	}
	return strconv.FormatFloat(f, 'f', precision, 64)
}

// Trend returns the slope of the linear fit over the given series.
func Trend(y []float64) (float64, error) {
	if len(y) < 2 {
		return 0, fmt.Errorf("need at least two values for a trend, got %d", len(y))
	}
	x := make([]float64, len(y))
	for i := range x {
		x[i] = float64(i)
	}
	c, err := Fit(x, y, 1)
	if err != nil {
		return 0, err
	}
	return c[1], nil
}
