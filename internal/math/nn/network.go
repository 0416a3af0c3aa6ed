package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/drakos74/free-model/internal/framework"
	"github.com/drakos74/free-model/internal/model"
	"gonum.org/v1/gonum/mat"
)

// Network is a trainable model over a sub-graph of layers.
type Network struct {
	name    string
	inputs  []*node
	outputs []*node
	order   []*node

	compiled  bool
	optimizer optimizer
	losses    map[string]model.LossKind
	metrics   map[string][]model.MetricKind

	rand *rand.Rand
}

// Model builds a network from the given inputs to the given outputs.
// Every entry layer the outputs depend on must be one of the inputs.
func (b *Backend) Model(name string, inputs []framework.Tensor, outputs []framework.Tensor) (framework.Model, error) {
	return b.model(name, inputs, outputs)
}

func (b *Backend) model(name string, inputs []framework.Tensor, outputs []framework.Tensor) (*Network, error) {
	if name == "" {
		return nil, fmt.Errorf("model name is empty: %w", model.InvalidNameErr)
	}
	ins, err := nodes(inputs)
	if err != nil {
		return nil, fmt.Errorf("invalid inputs for model '%s': %w", name, err)
	}
	outs, err := nodes(outputs)
	if err != nil {
		return nil, fmt.Errorf("invalid outputs for model '%s': %w", name, err)
	}

	entries := make(map[*node]struct{}, len(ins))
	names := make(map[string]*node)
	order := make([]*node, 0)
	for _, in := range ins {
		if in.Kind() != model.EntryLayer {
			return nil, fmt.Errorf("model input '%s' is not an input layer: %w", in.name, model.InvalidParamsErr)
		}
		if _, ok := entries[in]; ok {
			continue
		}
		if other, ok := names[in.name]; ok && other != in {
			return nil, fmt.Errorf("layer name '%s' is used twice: %w", in.name, model.DuplicateNameErr)
		}
		entries[in] = struct{}{}
		names[in.name] = in
		order = append(order, in)
	}

	visited := make(map[*node]bool)
	for _, in := range ins {
		visited[in] = true
	}
	var visit func(n *node) error
	visit = func(n *node) error {
		if visited[n] {
			return nil
		}
		if n.Kind() == model.EntryLayer {
			return fmt.Errorf("input layer '%s' is not a model input: %w", n.name, model.UnknownLayerErr)
		}
		visited[n] = true
		for _, in := range n.inputs {
			if err := visit(in); err != nil {
				return err
			}
		}
		if other, ok := names[n.name]; ok && other != n {
			return fmt.Errorf("layer name '%s' is used twice: %w", n.name, model.DuplicateNameErr)
		}
		names[n.name] = n
		order = append(order, n)
		return nil
	}

	seen := make(map[*node]struct{})
	uniqueOuts := make([]*node, 0, len(outs))
	for _, out := range outs {
		if err := visit(out); err != nil {
			return nil, fmt.Errorf("could not build model '%s': %w", name, err)
		}
		if _, ok := seen[out]; ok {
			continue
		}
		seen[out] = struct{}{}
		uniqueOuts = append(uniqueOuts, out)
	}

	return &Network{
		name:    name,
		inputs:  append([]*node{}, order[:len(entries)]...),
		outputs: uniqueOuts,
		order:   order,
		rand:    b.rand,
	}, nil
}

func nodes(tt []framework.Tensor) ([]*node, error) {
	nn := make([]*node, len(tt))
	for i, t := range tt {
		n, ok := t.(*node)
		if !ok || n == nil {
			return nil, fmt.Errorf("tensor %d is not a backend tensor: %w", i, model.InvalidParamsErr)
		}
		nn[i] = n
	}
	return nn, nil
}

func tensors(nn []*node) []framework.Tensor {
	tt := make([]framework.Tensor, len(nn))
	for i, n := range nn {
		tt[i] = n
	}
	return tt
}

func (n *Network) Name() string {
	return n.name
}

func (n *Network) Inputs() []framework.Tensor {
	return tensors(n.inputs)
}

func (n *Network) Outputs() []framework.Tensor {
	return tensors(n.outputs)
}

func (n *Network) Layers() []framework.Tensor {
	return tensors(n.order)
}

func (n *Network) Compiled() bool {
	return n.compiled
}

// Compile prepares the network for training.
func (n *Network) Compile(cfg framework.Compilation) error {
	if len(n.outputs) == 0 {
		return fmt.Errorf("model '%s' has no outputs: %w", n.name, model.InvalidParamsErr)
	}
	if cfg.Optimizer == nil {
		return fmt.Errorf("model '%s': %w", n.name, model.NoOptimizerErr)
	}
	opt, err := newOptimizer(cfg.Optimizer)
	if err != nil {
		return err
	}
	losses := make(map[string]model.LossKind, len(n.outputs))
	metrics := make(map[string][]model.MetricKind, len(n.outputs))
	for _, out := range n.outputs {
		loss, ok := cfg.Losses[out.name]
		if !ok || loss == "" {
			return fmt.Errorf("output '%s' has no loss: %w", out.name, model.MissingLossErr)
		}
		if err := loss.Validate(); err != nil {
			return err
		}
		losses[out.name] = loss
		for _, m := range cfg.Metrics[out.name] {
			if err := m.Validate(); err != nil {
				return err
			}
		}
		metrics[out.name] = append([]model.MetricKind{}, cfg.Metrics[out.name]...)
	}
	n.optimizer = opt
	n.losses = losses
	n.metrics = metrics
	n.compiled = true
	return nil
}

// pass holds the values of a forward pass needed for the backward one.
type pass struct {
	training bool
	out      map[*node]*mat.Dense
	xhat     map[*node]*mat.Dense
	invstd   map[*node][]float64
	mask     map[*node]*mat.Dense
}

func (n *Network) forward(x framework.Batch, training bool) (*pass, error) {
	p := &pass{
		training: training,
		out:      make(map[*node]*mat.Dense, len(n.order)),
		xhat:     make(map[*node]*mat.Dense),
		invstd:   make(map[*node][]float64),
		mask:     make(map[*node]*mat.Dense),
	}
	for _, nd := range n.order {
		switch params := nd.params.(type) {
		case model.EntryParams:
			in, ok := x[nd.name]
			if !ok {
				return nil, fmt.Errorf("no data for input '%s': %w", nd.name, model.UnknownLayerErr)
			}
			p.out[nd] = in
		case model.DenseParams:
			in := p.out[nd.inputs[0]]
			r, _ := in.Dims()
			act := activations[params.Activation]
			z := mat.NewDense(r, nd.width, nil)
			z.Mul(in, nd.w)
			z.Apply(func(i, j int, v float64) float64 {
				return act.f(v + nd.b[j])
			}, z)
			p.out[nd] = z
		case model.BatchNormalizationParams:
			p.out[nd] = p.normalize(nd, params)
		case model.DropoutParams:
			in := p.out[nd.inputs[0]]
			if !training || params.Rate == 0 {
				p.out[nd] = in
				continue
			}
			r, c := in.Dims()
			scale := 1 / (1 - params.Rate)
			mask := mat.NewDense(r, c, nil)
			mask.Apply(func(i, j int, v float64) float64 {
				if n.rand.Float64() < params.Rate {
					return 0
				}
				return scale
			}, mask)
			out := mat.NewDense(r, c, nil)
			out.MulElem(in, mask)
			p.mask[nd] = mask
			p.out[nd] = out
		case model.ConcatenateParams:
			r, _ := p.out[nd.inputs[0]].Dims()
			out := mat.NewDense(r, nd.width, nil)
			offset := 0
			for _, in := range nd.inputs {
				_, c := p.out[in].Dims()
				out.Slice(0, r, offset, offset+c).(*mat.Dense).Copy(p.out[in])
				offset += c
			}
			p.out[nd] = out
		}
	}
	return p, nil
}

func (p *pass) normalize(nd *node, params model.BatchNormalizationParams) *mat.Dense {
	in := p.out[nd.inputs[0]]
	r, c := in.Dims()
	mean := nd.mean
	variance := nd.variance
	if p.training {
		mean = make([]float64, c)
		variance = make([]float64, c)
		for j := 0; j < c; j++ {
			col := mat.Col(nil, j, in)
			for _, v := range col {
				mean[j] += v
			}
			mean[j] /= float64(r)
			for _, v := range col {
				variance[j] += (v - mean[j]) * (v - mean[j])
			}
			variance[j] /= float64(r)
			nd.mean[j] = params.Momentum*nd.mean[j] + (1-params.Momentum)*mean[j]
			nd.variance[j] = params.Momentum*nd.variance[j] + (1-params.Momentum)*variance[j]
		}
	}
	invstd := make([]float64, c)
	for j := range invstd {
		invstd[j] = 1 / math.Sqrt(variance[j]+params.Epsilon)
	}
	xhat := mat.NewDense(r, c, nil)
	xhat.Apply(func(i, j int, v float64) float64 {
		return (v - mean[j]) * invstd[j]
	}, in)
	out := mat.NewDense(r, c, nil)
	out.Apply(func(i, j int, v float64) float64 {
		return nd.gamma[j]*v + nd.beta[j]
	}, xhat)
	p.xhat[nd] = xhat
	p.invstd[nd] = invstd
	return out
}

// backward propagates the output gradients through the graph, accumulating the parameter gradients.
func (n *Network) backward(p *pass, grads map[*node]*mat.Dense) {
	for i := len(n.order) - 1; i >= 0; i-- {
		nd := n.order[i]
		g, ok := grads[nd]
		if !ok {
			continue
		}
		switch params := nd.params.(type) {
		case model.DenseParams:
			act := activations[params.Activation]
			out := p.out[nd]
			r, c := out.Dims()
			dz := mat.NewDense(r, c, nil)
			dz.Apply(func(i, j int, v float64) float64 {
				return g.At(i, j) * act.d(v)
			}, out)
			in := p.out[nd.inputs[0]]
			_, ic := in.Dims()
			gw := mat.NewDense(ic, c, nil)
			gw.Mul(in.T(), dz)
			nd.gw.Add(nd.gw, gw)
			for j := 0; j < c; j++ {
				nd.gb[j] += mat.Sum(dz.ColView(j))
			}
			din := mat.NewDense(r, ic, nil)
			din.Mul(dz, nd.w.T())
			accumulate(grads, nd.inputs[0], din)
		case model.BatchNormalizationParams:
			xhat := p.xhat[nd]
			invstd := p.invstd[nd]
			r, c := xhat.Dims()
			din := mat.NewDense(r, c, nil)
			for j := 0; j < c; j++ {
				var sumDy, sumDyXhat float64
				for i := 0; i < r; i++ {
					sumDy += g.At(i, j)
					sumDyXhat += g.At(i, j) * xhat.At(i, j)
				}
				nd.ggamma[j] += sumDyXhat
				nd.gbeta[j] += sumDy
				if !p.training {
					for i := 0; i < r; i++ {
						din.Set(i, j, g.At(i, j)*nd.gamma[j]*invstd[j])
					}
					continue
				}
				k := nd.gamma[j] * invstd[j] / float64(r)
				for i := 0; i < r; i++ {
					din.Set(i, j, k*(float64(r)*g.At(i, j)-sumDy-xhat.At(i, j)*sumDyXhat))
				}
			}
			accumulate(grads, nd.inputs[0], din)
		case model.DropoutParams:
			mask, ok := p.mask[nd]
			if !ok {
				accumulate(grads, nd.inputs[0], g)
				continue
			}
			r, c := g.Dims()
			din := mat.NewDense(r, c, nil)
			din.MulElem(g, mask)
			accumulate(grads, nd.inputs[0], din)
		case model.ConcatenateParams:
			r, _ := g.Dims()
			offset := 0
			for _, in := range nd.inputs {
				c := in.width
				din := mat.DenseCopyOf(g.Slice(0, r, offset, offset+c))
				accumulate(grads, in, din)
				offset += c
			}
		}
	}
}

func accumulate(grads map[*node]*mat.Dense, n *node, g *mat.Dense) {
	if existing, ok := grads[n]; ok {
		r, c := existing.Dims()
		sum := mat.NewDense(r, c, nil)
		sum.Add(existing, g)
		grads[n] = sum
		return
	}
	grads[n] = g
}

// weights lists the trainable parameters with their gradients, in a stable order.
func (n *Network) weights() []param {
	pp := make([]param, 0)
	for _, nd := range n.order {
		switch nd.params.(type) {
		case model.DenseParams:
			pp = append(pp,
				param{value: nd.w.RawMatrix().Data, grad: nd.gw.RawMatrix().Data},
				param{value: nd.b, grad: nd.gb})
		case model.BatchNormalizationParams:
			pp = append(pp,
				param{value: nd.gamma, grad: nd.ggamma},
				param{value: nd.beta, grad: nd.gbeta})
		}
	}
	return pp
}

func (n *Network) zeroGrads() {
	for _, nd := range n.order {
		nd.zeroGrads()
	}
}
