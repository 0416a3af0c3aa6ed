package nn

import (
	"math"

	"github.com/drakos74/free-model/internal/model"
	"gonum.org/v1/gonum/mat"
)

const huberDelta = 1.0

// loss returns the mean loss over all elements and its gradient with respect to the prediction.
func loss(kind model.LossKind, predicted, expected mat.Matrix) (float64, *mat.Dense) {
	r, c := predicted.Dims()
	size := float64(r * c)
	grad := mat.NewDense(r, c, nil)
	var total float64
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			p := predicted.At(i, j)
			y := expected.At(i, j)
			d := p - y
			var l, g float64
			switch kind {
			case model.MeanSquaredError:
				l = d * d
				g = 2 * d
			case model.MeanAbsoluteError:
				l = math.Abs(d)
				g = sign(d)
			case model.BinaryCrossentropy:
				p = clip(p)
				l = -(y*math.Log(p) + (1-y)*math.Log(1-p))
				g = (p - y) / (p * (1 - p))
			case model.Huber:
				a := math.Abs(d)
				if a <= huberDelta {
					l = 0.5 * d * d
					g = d
				} else {
					l = huberDelta * (a - 0.5*huberDelta)
					g = huberDelta * sign(d)
				}
			}
			total += l
			grad.Set(i, j, g/size)
		}
	}
	return total / size, grad
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

func clip(p float64) float64 {
	return math.Max(epsilon, math.Min(1-epsilon, p))
}

// tally accumulates the element-wise errors of an output over several batches.
type tally struct {
	loss  float64
	rows  float64
	sq    float64
	abs   float64
	hits  float64
	count float64
}

func (t *tally) add(l float64, predicted, expected mat.Matrix) {
	r, c := predicted.Dims()
	t.loss += l * float64(r)
	t.rows += float64(r)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			p := predicted.At(i, j)
			y := expected.At(i, j)
			d := p - y
			t.sq += d * d
			t.abs += math.Abs(d)
			if (p > 0.5) == (y > 0.5) {
				t.hits++
			}
			t.count++
		}
	}
}

func (t *tally) mean() float64 {
	if t.rows == 0 {
		return 0
	}
	return t.loss / t.rows
}

func (t *tally) metric(kind model.MetricKind) float64 {
	if t.count == 0 {
		return 0
	}
	switch kind {
	case model.MSEMetric:
		return t.sq / t.count
	case model.MAEMetric:
		return t.abs / t.count
	case model.RMSEMetric:
		return math.Sqrt(t.sq / t.count)
	case model.BinaryAccuracyMetric:
		return t.hits / t.count
	}
	return 0
}
