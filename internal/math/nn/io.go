package nn

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/drakos74/free-model/internal/framework"
	"github.com/drakos74/free-model/internal/model"
	"gonum.org/v1/gonum/mat"
)

type document struct {
	Name    string     `json:"name"`
	Layers  []layerDoc `json:"layers"`
	Inputs  []string   `json:"inputs"`
	Outputs []string   `json:"outputs"`
}

type layerDoc struct {
	Name     string      `json:"name"`
	Layer    model.Spec  `json:"layer"`
	Inputs   []string    `json:"inputs,omitempty"`
	Weights  [][]float64 `json:"weights,omitempty"`
	Bias     []float64   `json:"bias,omitempty"`
	Gamma    []float64   `json:"gamma,omitempty"`
	Beta     []float64   `json:"beta,omitempty"`
	Mean     []float64   `json:"mean,omitempty"`
	Variance []float64   `json:"variance,omitempty"`
}

func names(nn []*node) []string {
	ss := make([]string, len(nn))
	for i, n := range nn {
		ss[i] = n.name
	}
	return ss
}

// Save writes the architecture and the weights of the network as json.
func (n *Network) Save(w io.Writer) error {
	doc := document{
		Name:    n.name,
		Layers:  make([]layerDoc, len(n.order)),
		Inputs:  names(n.inputs),
		Outputs: names(n.outputs),
	}
	for i, nd := range n.order {
		spec, err := model.EncodeLayer(nd.params)
		if err != nil {
			return fmt.Errorf("could not encode layer '%s': %w", nd.name, err)
		}
		l := layerDoc{
			Name:     nd.name,
			Layer:    spec,
			Inputs:   names(nd.inputs),
			Bias:     nd.b,
			Gamma:    nd.gamma,
			Beta:     nd.beta,
			Mean:     nd.mean,
			Variance: nd.variance,
		}
		if nd.w != nil {
			r, _ := nd.w.Dims()
			l.Weights = make([][]float64, r)
			for j := 0; j < r; j++ {
				l.Weights[j] = mat.Row(nil, j, nd.w)
			}
		}
		doc.Layers[i] = l
	}
	return json.NewEncoder(w).Encode(doc)
}

// Load reads a network written by Save.
func (b *Backend) Load(r io.Reader) (framework.Model, error) {
	var doc document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("could not decode model: %w", err)
	}
	layers := make(map[string]*node, len(doc.Layers))
	for _, l := range doc.Layers {
		if _, ok := layers[l.Name]; ok {
			return nil, fmt.Errorf("layer '%s' is defined twice: %w", l.Name, model.DuplicateNameErr)
		}
		params, err := model.DecodeLayer(model.LayerKind(l.Layer.Kind), model.JSONDecoder(l.Layer.Params))
		if err != nil {
			return nil, fmt.Errorf("could not decode layer '%s': %w", l.Name, err)
		}
		connect := make([]framework.Tensor, len(l.Inputs))
		for i, in := range l.Inputs {
			upstream, ok := layers[in]
			if !ok {
				return nil, fmt.Errorf("layer '%s' refers to '%s': %w", l.Name, in, model.UnknownLayerErr)
			}
			connect[i] = upstream
		}
		t, err := b.Layer(l.Name, params, connect...)
		if err != nil {
			return nil, err
		}
		nd := t.(*node)
		if err := nd.restore(l); err != nil {
			return nil, err
		}
		layers[l.Name] = nd
	}
	pick := func(nn []string) ([]framework.Tensor, error) {
		tt := make([]framework.Tensor, len(nn))
		for i, name := range nn {
			nd, ok := layers[name]
			if !ok {
				return nil, fmt.Errorf("model refers to '%s': %w", name, model.UnknownLayerErr)
			}
			if err := model.ValidateShape(nd.Shape()); err != nil {
				return nil, fmt.Errorf("invalid layer '%s': %w", name, err)
			}
			tt[i] = nd
		}
		return tt, nil
	}
	inputs, err := pick(doc.Inputs)
	if err != nil {
		return nil, err
	}
	outputs, err := pick(doc.Outputs)
	if err != nil {
		return nil, err
	}
	return b.model(doc.Name, inputs, outputs)
}

// restore copies the stored weights into the freshly created layer.
func (n *node) restore(l layerDoc) error {
	fill := func(what string, dst, src []float64) error {
		if src == nil {
			return nil
		}
		if len(src) != len(dst) {
			return fmt.Errorf("%s of layer '%s' has size %d instead of %d: %w",
				what, n.name, len(src), len(dst), model.ValidateShapeErr)
		}
		copy(dst, src)
		return nil
	}
	if n.w != nil && l.Weights != nil {
		r, c := n.w.Dims()
		if len(l.Weights) != r {
			return fmt.Errorf("weights of layer '%s' have %d rows instead of %d: %w",
				n.name, len(l.Weights), r, model.ValidateShapeErr)
		}
		for i, row := range l.Weights {
			if len(row) != c {
				return fmt.Errorf("weights of layer '%s' have %d columns instead of %d: %w",
					n.name, len(row), c, model.ValidateShapeErr)
			}
			n.w.SetRow(i, row)
		}
	}
	for _, f := range []struct {
		what     string
		dst, src []float64
	}{
		{"bias", n.b, l.Bias},
		{"gamma", n.gamma, l.Gamma},
		{"beta", n.beta, l.Beta},
		{"mean", n.mean, l.Mean},
		{"variance", n.variance, l.Variance},
	} {
		if err := fill(f.what, f.dst, f.src); err != nil {
			return err
		}
	}
	return nil
}
