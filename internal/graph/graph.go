// Package graph keeps the named layers of a model under construction.
package graph

import (
	"fmt"
	"sort"

	"github.com/drakos74/free-model/internal/framework"
	"github.com/drakos74/free-model/internal/model"
)

// Store maps unique layer names to the framework layer handles.
// Layers are only ever added, upstream connections must already exist.
type Store struct {
	layers  map[string]framework.Tensor
	inputs  []string
	outputs []string
}

// New creates an empty layer store.
func New() *Store {
	return &Store{
		layers:  make(map[string]framework.Tensor),
		inputs:  make([]string, 0),
		outputs: make([]string, 0),
	}
}

// FromModel creates a store holding only the inputs and the outputs of a model.
func FromModel(m framework.Model) (*Store, error) {
	s := New()
	for _, in := range m.Inputs() {
		if err := s.AddEntryLayer(in.Name(), in); err != nil {
			return nil, fmt.Errorf("could not index model '%s': %w", m.Name(), err)
		}
	}
	outputs := make([]string, 0)
	for _, out := range m.Outputs() {
		if existing, ok := s.layers[out.Name()]; ok && existing != out {
			return nil, fmt.Errorf("could not index model '%s': layer '%s' already exists: %w",
				m.Name(), out.Name(), model.DuplicateNameErr)
		}
		s.layers[out.Name()] = out
		outputs = append(outputs, out.Name())
	}
	if err := s.DesignateOutputs(outputs...); err != nil {
		return nil, err
	}
	return s, nil
}

// AddEntryLayer adds a layer without upstream connections and marks it as an input.
func (s *Store) AddEntryLayer(name string, handle framework.Tensor) error {
	if err := s.free(name); err != nil {
		return err
	}
	s.layers[name] = handle
	s.inputs = append(s.inputs, name)
	return nil
}

// AddConnectedLayer adds a layer connected to the given existing layers.
func (s *Store) AddConnectedLayer(name string, handle framework.Tensor, connectTo ...string) error {
	if err := s.free(name); err != nil {
		return err
	}
	if len(connectTo) == 0 {
		return fmt.Errorf("layer '%s' has no connection, add it as an entry layer: %w",
			name, model.InsufficientConnectionsErr)
	}
	if _, err := s.lookup(connectTo); err != nil {
		return fmt.Errorf("could not add layer '%s': %w", name, err)
	}
	s.layers[name] = handle
	return nil
}

// ResolveConnection returns the handles of the given layers, in order, to connect a new layer of the given kind to.
func (s *Store) ResolveConnection(kind model.LayerKind, connectTo ...string) ([]framework.Tensor, error) {
	if min := model.MinConnections(kind); len(connectTo) < min {
		return nil, fmt.Errorf("layer of kind '%s' needs %d connections but got %v: %w",
			kind, min, connectTo, model.InsufficientConnectionsErr)
	}
	return s.lookup(connectTo)
}

// DesignateOutputs replaces the output layers.
func (s *Store) DesignateOutputs(names ...string) error {
	if _, err := s.lookup(names); err != nil {
		return fmt.Errorf("could not designate outputs: %w", err)
	}
	outputs := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		outputs = append(outputs, name)
	}
	s.outputs = outputs
	return nil
}

// Layer returns the handle of the given layer.
func (s *Store) Layer(name string) (framework.Tensor, bool) {
	t, ok := s.layers[name]
	return t, ok
}

// Layers returns the names of all the layers, sorted.
func (s *Store) Layers() []string {
	names := make([]string, 0, len(s.layers))
	for name := range s.layers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Inputs returns the input layer names in insertion order.
func (s *Store) Inputs() []string {
	return append([]string{}, s.inputs...)
}

// Outputs returns the output layer names in designation order.
func (s *Store) Outputs() []string {
	return append([]string{}, s.outputs...)
}

// Handles returns the handles of the given layers.
func (s *Store) Handles(names []string) ([]framework.Tensor, error) {
	return s.lookup(names)
}

// Size returns the number of layers.
func (s *Store) Size() int {
	return len(s.layers)
}

func (s *Store) free(name string) error {
	if name == "" {
		return fmt.Errorf("layer name is empty: %w", model.InvalidNameErr)
	}
	if _, ok := s.layers[name]; ok {
		return fmt.Errorf("layer '%s' already exists: %w", name, model.DuplicateNameErr)
	}
	return nil
}

func (s *Store) lookup(names []string) ([]framework.Tensor, error) {
	handles := make([]framework.Tensor, len(names))
	for i, name := range names {
		t, ok := s.layers[name]
		if !ok {
			return nil, fmt.Errorf("layer '%s' not found: %w", name, model.UnknownLayerErr)
		}
		handles[i] = t
	}
	return handles, nil
}
