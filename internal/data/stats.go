package data

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarises a column, missing values are skipped.
type Stats struct {
	Column string  `json:"column"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Stats computes the statistics of every column in file order.
func (d *Dataset) Stats() []Stats {
	ss := make([]Stats, 0, len(d.columns))
	for _, c := range d.columns {
		values := make([]float64, 0, len(d.values[c]))
		for _, v := range d.values[c] {
			if !math.IsNaN(v) {
				values = append(values, v)
			}
		}
		s := Stats{
			Column: c,
			Count:  len(values),
		}
		if len(values) > 0 {
			s.Mean, s.Std = stat.MeanStdDev(values, nil)
			s.Min = floats.Min(values)
			s.Max = floats.Max(values)
		}
		if len(values) < 2 {
			s.Std = 0
		}
		ss = append(ss, s)
	}
	return ss
}
