package nn

import (
	"fmt"
	"math"

	"github.com/drakos74/free-model/internal/model"
)

const epsilon = 1e-7

// param is a flat view on a trainable parameter and its gradient.
type param struct {
	value []float64
	grad  []float64
}

type optimizer interface {
	update(params []param)
}

func newOptimizer(cfg model.OptimizerParams) (optimizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch p := cfg.(type) {
	case model.SGDParams:
		return &sgd{cfg: p}, nil
	case model.AdamParams:
		return &adam{cfg: p}, nil
	case model.RMSpropParams:
		return &rmsprop{cfg: p}, nil
	}
	return nil, fmt.Errorf("unsupported optimizer '%s': %w", cfg.Kind(), model.InvalidParamsErr)
}

// slots allocates one zero buffer per parameter, matching the parameter sizes.
func slots(params []param) [][]float64 {
	ss := make([][]float64, len(params))
	for i, p := range params {
		ss[i] = make([]float64, len(p.value))
	}
	return ss
}

type sgd struct {
	cfg      model.SGDParams
	velocity [][]float64
}

func (o *sgd) update(params []param) {
	if len(o.velocity) != len(params) {
		o.velocity = slots(params)
	}
	for i, p := range params {
		v := o.velocity[i]
		for k := range p.value {
			v[k] = o.cfg.Momentum*v[k] - o.cfg.LearningRate*p.grad[k]
			p.value[k] += v[k]
		}
	}
}

type adam struct {
	cfg  model.AdamParams
	m    [][]float64
	v    [][]float64
	step int
}

func (o *adam) update(params []param) {
	if len(o.m) != len(params) {
		o.m = slots(params)
		o.v = slots(params)
		o.step = 0
	}
	o.step++
	c1 := 1 - math.Pow(o.cfg.Beta1, float64(o.step))
	c2 := 1 - math.Pow(o.cfg.Beta2, float64(o.step))
	for i, p := range params {
		m := o.m[i]
		v := o.v[i]
		for k, g := range p.grad {
			m[k] = o.cfg.Beta1*m[k] + (1-o.cfg.Beta1)*g
			v[k] = o.cfg.Beta2*v[k] + (1-o.cfg.Beta2)*g*g
			p.value[k] -= o.cfg.LearningRate * (m[k] / c1) / (math.Sqrt(v[k]/c2) + epsilon)
		}
	}
}

type rmsprop struct {
	cfg model.RMSpropParams
	ms  [][]float64
	mom [][]float64
}

func (o *rmsprop) update(params []param) {
	if len(o.ms) != len(params) {
		o.ms = slots(params)
		o.mom = slots(params)
	}
	for i, p := range params {
		ms := o.ms[i]
		mom := o.mom[i]
		for k, g := range p.grad {
			ms[k] = o.cfg.Rho*ms[k] + (1-o.cfg.Rho)*g*g
			step := o.cfg.LearningRate * g / (math.Sqrt(ms[k]) + epsilon)
			if o.cfg.Momentum > 0 {
				mom[k] = o.cfg.Momentum*mom[k] + step
				step = mom[k]
			}
			p.value[k] -= step
		}
	}
}
