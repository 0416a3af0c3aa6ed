// Package blueprint describes a whole model assembly as a yaml document.
package blueprint

import (
	"fmt"
	"io"
	"sort"

	"github.com/drakos74/free-model/internal/assembly"
	"github.com/drakos74/free-model/internal/data"
	"github.com/drakos74/free-model/internal/model"
	"github.com/drakos74/free-model/internal/session"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBatchSize = 32
	DefaultEpochs    = 10
)

// Blueprint is the full description of a model, its data bindings and its training.
type Blueprint struct {
	Name      string                        `yaml:"name"`
	Data      Data                          `yaml:"data"`
	Layers    []Layer                       `yaml:"layers"`
	Outputs   []string                      `yaml:"outputs"`
	Optimizer Spec                          `yaml:"optimizer"`
	Losses    map[string]model.LossKind     `yaml:"losses"`
	Metrics   map[string][]model.MetricKind `yaml:"metrics"`
	Callbacks []Spec                        `yaml:"callbacks"`
	Fit       Fit                           `yaml:"fit"`
}

type Data struct {
	File     string              `yaml:"file"`
	TestSize *float64            `yaml:"test_size"`
	Inputs   map[string][]string `yaml:"inputs"`
	Outputs  map[string][]string `yaml:"outputs"`
}

type Layer struct {
	Name      string          `yaml:"name"`
	Kind      model.LayerKind `yaml:"kind"`
	Params    yaml.Node       `yaml:"params"`
	ConnectTo []string        `yaml:"connect_to"`
}

// Spec is a kind along with its parameters.
type Spec struct {
	Kind   string    `yaml:"kind"`
	Params yaml.Node `yaml:"params"`
}

type Fit struct {
	BatchSize       int     `yaml:"batch_size"`
	Epochs          int     `yaml:"epochs"`
	ValidationSplit float64 `yaml:"validation_split"`
}

// decoder decodes the given node, a missing node leaves the defaults.
func decoder(node yaml.Node) model.Decoder {
	return func(v interface{}) error {
		if node.Kind == 0 {
			return nil
		}
		return node.Decode(v)
	}
}

// Parse reads a blueprint, unknown fields are rejected.
func Parse(r io.Reader) (*Blueprint, error) {
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	var b Blueprint
	if err := d.Decode(&b); err != nil {
		return nil, fmt.Errorf("could not parse blueprint: %s: %w", err.Error(), model.InvalidParamsErr)
	}
	if b.Fit.BatchSize == 0 {
		b.Fit.BatchSize = DefaultBatchSize
	}
	if b.Fit.Epochs == 0 {
		b.Fit.Epochs = DefaultEpochs
	}
	return &b, nil
}

func sorted[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Apply builds and compiles the model of the blueprint and binds the loaded data to it.
func (b *Blueprint) Apply(service *assembly.Service, dataset *data.Dataset) error {
	if err := service.CreateModel(b.Name); err != nil {
		return err
	}
	for _, l := range b.Layers {
		params, err := model.DecodeLayer(l.Kind, decoder(l.Params))
		if err != nil {
			return fmt.Errorf("layer '%s': %w", l.Name, err)
		}
		if err := service.AddLayer(l.Name, params, l.ConnectTo...); err != nil {
			return err
		}
	}
	if err := service.SetModelOutputs(b.Outputs...); err != nil {
		return err
	}
	if err := b.bind(service, dataset); err != nil {
		return err
	}
	if b.Optimizer.Kind != "" {
		optimizer, err := model.DecodeOptimizer(model.OptimizerKind(b.Optimizer.Kind), decoder(b.Optimizer.Params))
		if err != nil {
			return err
		}
		if err := service.SelectOptimizer(optimizer); err != nil {
			return err
		}
	}
	for _, layer := range sorted(b.Losses) {
		if err := service.AddLoss(layer, b.Losses[layer]); err != nil {
			return err
		}
	}
	for _, layer := range sorted(b.Metrics) {
		for _, metric := range b.Metrics[layer] {
			if err := service.AddMetric(layer, metric); err != nil {
				return err
			}
		}
	}
	for _, cb := range b.Callbacks {
		params, err := model.DecodeCallback(model.CallbackKind(cb.Kind), decoder(cb.Params))
		if err != nil {
			return err
		}
		if err := service.AddCallback(params); err != nil {
			return err
		}
	}
	if err := service.CompileModel(); err != nil {
		return err
	}
	log.Info().
		Str("model", b.Name).
		Int("layers", len(b.Layers)).
		Strs("outputs", b.Outputs).
		Msg("blueprint applied")
	return nil
}

func (b *Blueprint) bind(service *assembly.Service, dataset *data.Dataset) error {
	if b.Data.TestSize != nil {
		if err := dataset.SetTestSize(*b.Data.TestSize); err != nil {
			return err
		}
	}
	for _, layer := range sorted(b.Data.Inputs) {
		if err := session.Bind(service, dataset, model.Input, layer, b.Data.Inputs[layer]...); err != nil {
			return err
		}
	}
	for _, layer := range sorted(b.Data.Outputs) {
		if err := session.Bind(service, dataset, model.Output, layer, b.Data.Outputs[layer]...); err != nil {
			return err
		}
	}
	return nil
}
