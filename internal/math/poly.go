package math

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Fit fits the series of x and y into a polynomial of the given degree.
// The result holds the coefficients of the increasing powers of x,
// c[0] + c[1]x + c[2]x^2 + ...
func Fit(x, y []float64, degree int) ([]float64, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("series of different length %d != %d", len(x), len(y))
	}
	if degree < 0 || len(x) <= degree {
		return nil, fmt.Errorf("cannot fit degree %d on %d points", degree, len(x))
	}

	a := vandermonde(x, degree)
	b := mat.NewDense(len(y), 1, y)
	var c mat.Dense

	var qr mat.QR
	qr.Factorize(a)
	if err := qr.SolveTo(&c, false, b); err != nil {
		return nil, fmt.Errorf("could not fit series: %w", err)
	}
	return mat.Col(nil, 0, &c), nil
}

// vandermonde builds the matrix of the powers of x up to the given degree.
func vandermonde(x []float64, degree int) *mat.Dense {
	v := mat.NewDense(len(x), degree+1, nil)
	for i := range x {
		p := 1.
		for j := 0; j <= degree; j++ {
			v.Set(i, j, p)
			p *= x[i]
		}
	}
	return v
}
