// Package framework defines the surface of the ml framework the model assembly builds on.
// Layers and models are opaque handles, all the math happens behind these interfaces.
package framework

import (
	"context"
	"io"

	"github.com/drakos74/free-model/internal/model"
	"gonum.org/v1/gonum/mat"
)

// Batch holds one matrix per layer name, rows are samples and columns are features.
type Batch map[string]*mat.Dense

// Rows returns the number of samples in the batch, or -1 if the layers disagree.
func (b Batch) Rows() int {
	rows := 0
	first := true
	for _, m := range b {
		r, _ := m.Dims()
		if first {
			rows = r
			first = false
		} else if r != rows {
			return -1
		}
	}
	return rows
}

// History holds the per-epoch values of every loss and metric of a training run.
type History map[string][]float64

// Tensor is the symbolic output of a layer.
type Tensor interface {
	Name() string
	Kind() model.LayerKind
	Shape() model.Shape
	// Inputs returns the upstream tensors the layer is connected to.
	Inputs() []Tensor
	// Params returns the number of trainable parameters of the layer.
	Params() int
}

// Backend creates layers and models.
type Backend interface {
	// Input creates an entry layer.
	Input(name string, params model.EntryParams) (Tensor, error)
	// Layer creates a layer connected to the given upstream tensors.
	Layer(name string, params model.LayerParams, connect ...Tensor) (Tensor, error)
	// Model builds a trainable model from the given inputs to the given outputs.
	Model(name string, inputs []Tensor, outputs []Tensor) (Model, error)
	// Load reads a model written by Model.Save.
	Load(r io.Reader) (Model, error)
}

// Compilation is the training configuration of a model.
type Compilation struct {
	Optimizer model.OptimizerParams
	Losses    map[string]model.LossKind
	Metrics   map[string][]model.MetricKind
}

// FitOptions are the hyper-parameters of a training run.
type FitOptions struct {
	BatchSize       int
	Epochs          int
	ValidationSplit float64
	Callbacks       []model.CallbackParams
}

// Model is a trainable model.
type Model interface {
	Name() string
	Inputs() []Tensor
	Outputs() []Tensor
	// Layers returns all layers of the model in topological order.
	Layers() []Tensor
	Compile(cfg Compilation) error
	Compiled() bool
	Fit(ctx context.Context, x, y Batch, opts FitOptions) (History, error)
	Evaluate(x, y Batch, batchSize int) (map[string]float64, error)
	Predict(x Batch, batchSize int) (Batch, error)
	Save(w io.Writer) error
}
