package nn

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/drakos74/free-model/internal/framework"
	"github.com/drakos74/free-model/internal/model"
	xml "github.com/drakos74/go-ex-machina/xmachina/ml"
	"github.com/drakos74/go-ex-machina/xmath"
	"gonum.org/v1/gonum/mat"
)

// activation holds the function and its derivative expressed on the output value.
type activation struct {
	f func(x float64) float64
	d func(y float64) float64
}

var activations = map[model.Activation]activation{
	model.Linear: {
		f: xml.Void{}.F,
		d: func(y float64) float64 { return 1 },
	},
	model.Tanh: {
		f: xml.TanH.F,
		d: xml.TanH.D,
	},
	model.Sigmoid: {
		f: xml.Sigmoid.F,
		d: xml.Sigmoid.D,
	},
	model.ReLU: {
		f: xml.ReLU.F,
		// the relu derivative is zero for the negative side
		d: func(y float64) float64 {
			if y > 0 {
				return 1
			}
			return 0
		},
	},
}

// node is a layer of the graph along with its trainable state.
type node struct {
	name   string
	params model.LayerParams
	inputs []*node
	width  int

	// dense
	w  *mat.Dense
	b  []float64
	gw *mat.Dense
	gb []float64

	// batch normalization
	gamma    []float64
	beta     []float64
	mean     []float64
	variance []float64
	ggamma   []float64
	gbeta    []float64
}

func (n *node) Name() string {
	return n.name
}

func (n *node) Kind() model.LayerKind {
	return n.params.Kind()
}

func (n *node) Shape() model.Shape {
	return model.Shape{model.None, n.width}
}

func (n *node) Inputs() []framework.Tensor {
	tt := make([]framework.Tensor, len(n.inputs))
	for i, in := range n.inputs {
		tt[i] = in
	}
	return tt
}

func (n *node) Params() int {
	switch n.params.(type) {
	case model.DenseParams:
		r, c := n.w.Dims()
		return r*c + len(n.b)
	case model.BatchNormalizationParams:
		return len(n.gamma) + len(n.beta)
	}
	return 0
}

func (n *node) zeroGrads() {
	if n.gw != nil {
		n.gw.Zero()
	}
	zero(n.gb)
	zero(n.ggamma)
	zero(n.gbeta)
}

func zero(v []float64) {
	for i := range v {
		v[i] = 0
	}
}

func constant(size int, value float64) []float64 {
	v := make([]float64, size)
	for i := range v {
		v[i] = value
	}
	return v
}

// Backend is a dense graph engine for tabular models.
type Backend struct {
	rand *rand.Rand
}

// New creates a new backend.
func New() *Backend {
	return WithSeed(time.Now().UnixNano())
}

// WithSeed creates a new backend with a fixed seed for the dropout masks.
func WithSeed(seed int64) *Backend {
	return &Backend{
		rand: rand.New(rand.NewSource(seed)),
	}
}

// Input creates a new entry layer.
func (b *Backend) Input(name string, params model.EntryParams) (framework.Tensor, error) {
	if name == "" {
		return nil, fmt.Errorf("layer name is empty: %w", model.InvalidNameErr)
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid input layer '%s': %w", name, err)
	}
	return &node{
		name:   name,
		params: params,
		width:  params.Shape[0],
	}, nil
}

// Layer creates a new layer connected to the given tensors.
func (b *Backend) Layer(name string, params model.LayerParams, connect ...framework.Tensor) (framework.Tensor, error) {
	if params == nil {
		return nil, fmt.Errorf("no params for layer '%s': %w", name, model.InvalidParamsErr)
	}
	if entry, ok := params.(model.EntryParams); ok {
		if len(connect) > 0 {
			return nil, fmt.Errorf("input layer '%s' cannot be connected: %w", name, model.InvalidParamsErr)
		}
		return b.Input(name, entry)
	}
	if name == "" {
		return nil, fmt.Errorf("layer name is empty: %w", model.InvalidNameErr)
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid layer '%s': %w", name, err)
	}

	kind := params.Kind()
	if min := model.MinConnections(kind); len(connect) < min {
		return nil, fmt.Errorf("layer '%s' of kind '%s' needs %d connections but got %d: %w",
			name, kind, min, len(connect), model.InsufficientConnectionsErr)
	}
	if kind != model.ConcatenateLayer && len(connect) > 1 {
		return nil, fmt.Errorf("layer '%s' of kind '%s' accepts a single connection but got %d: %w",
			name, kind, len(connect), model.InvalidParamsErr)
	}

	inputs := make([]*node, len(connect))
	for i, t := range connect {
		in, ok := t.(*node)
		if !ok || in == nil {
			return nil, fmt.Errorf("connection %d of layer '%s' is not a backend tensor: %w", i, name, model.InvalidParamsErr)
		}
		inputs[i] = in
	}

	n := &node{
		name:   name,
		params: params,
		inputs: inputs,
	}

	switch p := params.(type) {
	case model.DenseParams:
		n.params = p.WithDefaults()
		in := inputs[0].width
		n.width = p.Units
		n.w = mat.NewDense(in, p.Units, nil)
		n.gw = mat.NewDense(in, p.Units, nil)
		n.b = make([]float64, p.Units)
		n.gb = make([]float64, p.Units)
		gen := xmath.Rand(-1, 1, math.Sqrt)
		for j := 0; j < p.Units; j++ {
			n.w.SetCol(j, gen(in, j))
		}
	case model.BatchNormalizationParams:
		n.width = inputs[0].width
		n.gamma = constant(n.width, 1)
		n.beta = make([]float64, n.width)
		n.mean = make([]float64, n.width)
		n.variance = constant(n.width, 1)
		n.ggamma = make([]float64, n.width)
		n.gbeta = make([]float64, n.width)
	case model.DropoutParams:
		n.width = inputs[0].width
	case model.ConcatenateParams:
		for _, in := range inputs {
			n.width += in.width
		}
	default:
		return nil, fmt.Errorf("unsupported layer kind '%s': %w", kind, model.InvalidParamsErr)
	}

	return n, nil
}
