package assembly

import (
	"github.com/drakos74/free-model/internal/framework"
	"github.com/drakos74/free-model/internal/model"
	"github.com/drakos74/free-model/internal/observe"
)

func (s *Service) Name() string {
	return s.name
}

func (s *Service) State() model.State {
	return s.state
}

func (s *Service) Compiled() bool {
	return s.compiled
}

// Bus returns the event bus of the service.
func (s *Service) Bus() *observe.Bus {
	return s.bus
}

// Model returns the trainable model, nil if none has been created.
func (s *Service) Model() framework.Model {
	return s.model
}

// Layers returns the names of all known layers.
func (s *Service) Layers() []string {
	return s.store.Layers()
}

// InputLayers returns the names of the input layers.
func (s *Service) InputLayers() []string {
	return s.store.Inputs()
}

// OutputLayers returns the names of the output layers.
func (s *Service) OutputLayers() []string {
	return s.store.Outputs()
}

func copyInts(m map[string]int) map[string]int {
	c := make(map[string]int, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// InputShapes returns the number of columns every input layer accepts.
func (s *Service) InputShapes() map[string]int {
	return copyInts(s.inputShapes)
}

// OutputShapes returns the number of columns every output layer produces.
func (s *Service) OutputShapes() map[string]int {
	return copyInts(s.outputShapes)
}

func (s *Service) Optimizer() model.OptimizerParams {
	return s.optimizer
}

func (s *Service) Losses() map[string]model.LossKind {
	c := make(map[string]model.LossKind, len(s.losses))
	for k, v := range s.losses {
		c[k] = v
	}
	return c
}

func (s *Service) Metrics() map[string][]model.MetricKind {
	c := make(map[string][]model.MetricKind, len(s.metrics))
	for k, v := range s.metrics {
		c[k] = append([]model.MetricKind{}, v...)
	}
	return c
}

func (s *Service) Callbacks() []model.CallbackParams {
	return append([]model.CallbackParams{}, s.callbacks...)
}

// History returns the training history of the last run.
func (s *Service) History() framework.History {
	if s.history == nil {
		return nil
	}
	h := make(framework.History, len(s.history))
	for k, v := range s.history {
		h[k] = append([]float64{}, v...)
	}
	return h
}

// LayerSummary describes a layer of the trainable model.
type LayerSummary struct {
	Name     string          `json:"name"`
	Kind     model.LayerKind `json:"kind"`
	Shape    string          `json:"shape"`
	Inputs   []string        `json:"inputs"`
	Params   int             `json:"params"`
	IsInput  bool            `json:"input"`
	IsOutput bool            `json:"output"`
}

// Summary lists the layers of the trainable model in topological order.
func (s *Service) Summary() ([]LayerSummary, error) {
	if s.model == nil {
		return nil, model.NoModelErr
	}
	inputs := make(map[string]bool)
	for _, in := range s.model.Inputs() {
		inputs[in.Name()] = true
	}
	outputs := make(map[string]bool)
	for _, out := range s.model.Outputs() {
		outputs[out.Name()] = true
	}
	layers := s.model.Layers()
	summary := make([]LayerSummary, len(layers))
	for i, l := range layers {
		upstream := make([]string, len(l.Inputs()))
		for j, in := range l.Inputs() {
			upstream[j] = in.Name()
		}
		summary[i] = LayerSummary{
			Name:     l.Name(),
			Kind:     l.Kind(),
			Shape:    l.Shape().String(),
			Inputs:   upstream,
			Params:   l.Params(),
			IsInput:  inputs[l.Name()],
			IsOutput: outputs[l.Name()],
		}
	}
	return summary, nil
}
