package model

import "fmt"

// LayerKind is the type of a layer as known to the ml framework.
type LayerKind string

const (
	EntryLayer              LayerKind = "Input"
	DenseLayer              LayerKind = "Dense"
	BatchNormalizationLayer LayerKind = "BatchNormalization"
	DropoutLayer            LayerKind = "Dropout"
	ConcatenateLayer        LayerKind = "Concatenate"
)

// LayerKinds lists the supported layer kinds in display order.
var LayerKinds = []LayerKind{EntryLayer, DenseLayer, BatchNormalizationLayer, DropoutLayer, ConcatenateLayer}

// Activation is the name of an activation function.
type Activation string

const (
	Linear  Activation = "linear"
	Tanh    Activation = "tanh"
	ReLU    Activation = "relu"
	Sigmoid Activation = "sigmoid"
)

// Activations lists the supported activation functions.
var Activations = []Activation{Linear, Tanh, ReLU, Sigmoid}

func (a Activation) valid() bool {
	for _, act := range Activations {
		if a == act {
			return true
		}
	}
	return false
}

// LayerParams is the typed parameter set for the construction of a layer.
type LayerParams interface {
	Kind() LayerKind
	Validate() error
}

// MinConnections returns how many upstream layers the given kind needs.
func MinConnections(kind LayerKind) int {
	switch kind {
	case EntryLayer:
		return 0
	case ConcatenateLayer:
		return 2
	}
	return 1
}

// EntryParams defines an input layer, the shape excludes the batch dimension.
type EntryParams struct {
	Shape []int `json:"shape" yaml:"shape"`
}

func (p EntryParams) Kind() LayerKind {
	return EntryLayer
}

func (p EntryParams) Validate() error {
	if err := ValidateShape(p.Full()); err != nil {
		return err
	}
	if len(p.Shape) == 0 {
		return fmt.Errorf("input layer needs at least one dimension: %w", ValidateShapeErr)
	}
	return nil
}

// Full returns the layer shape including the batch dimension.
func (p EntryParams) Full() Shape {
	return append(Shape{None}, p.Shape...)
}

// DenseParams defines a fully connected layer.
type DenseParams struct {
	Units      int        `json:"units" yaml:"units"`
	Activation Activation `json:"activation" yaml:"activation"`
}

func (p DenseParams) Kind() LayerKind {
	return DenseLayer
}

func (p DenseParams) Validate() error {
	if p.Units < 1 {
		return fmt.Errorf("units must be positive '%d': %w", p.Units, InvalidParamsErr)
	}
	if p.Activation != "" && !p.Activation.valid() {
		return fmt.Errorf("unknown activation '%s': %w", p.Activation, InvalidParamsErr)
	}
	return nil
}

// WithDefaults fills in the linear activation when none is given.
func (p DenseParams) WithDefaults() DenseParams {
	if p.Activation == "" {
		p.Activation = Linear
	}
	return p
}

// BatchNormalizationParams defines a batch normalisation layer.
type BatchNormalizationParams struct {
	Momentum float64 `json:"momentum" yaml:"momentum"`
	Epsilon  float64 `json:"epsilon" yaml:"epsilon"`
}

// DefaultBatchNormalization returns the default normalisation parameters.
func DefaultBatchNormalization() BatchNormalizationParams {
	return BatchNormalizationParams{Momentum: 0.99, Epsilon: 1e-3}
}

func (p BatchNormalizationParams) Kind() LayerKind {
	return BatchNormalizationLayer
}

func (p BatchNormalizationParams) Validate() error {
	if p.Momentum <= 0 || p.Momentum > 1 {
		return fmt.Errorf("momentum must be in (0,1] '%v': %w", p.Momentum, InvalidParamsErr)
	}
	if p.Epsilon <= 0 {
		return fmt.Errorf("epsilon must be positive '%v': %w", p.Epsilon, InvalidParamsErr)
	}
	return nil
}

// DropoutParams defines a dropout layer.
type DropoutParams struct {
	Rate float64 `json:"rate" yaml:"rate"`
}

func (p DropoutParams) Kind() LayerKind {
	return DropoutLayer
}

func (p DropoutParams) Validate() error {
	if p.Rate < 0 || p.Rate >= 1 {
		return fmt.Errorf("rate must be in [0,1) '%v': %w", p.Rate, InvalidParamsErr)
	}
	return nil
}

// ConcatenateParams defines a merge layer joining the columns of its inputs.
type ConcatenateParams struct{}

func (p ConcatenateParams) Kind() LayerKind {
	return ConcatenateLayer
}

func (p ConcatenateParams) Validate() error {
	return nil
}
