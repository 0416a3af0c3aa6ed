// Package assembly builds a trainable model layer by layer on top of the ml framework.
package assembly

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/drakos74/free-model/internal/framework"
	"github.com/drakos74/free-model/internal/graph"
	"github.com/drakos74/free-model/internal/model"
	"github.com/drakos74/free-model/internal/observe"
	"github.com/rs/zerolog/log"
)

// Data provides the bound columns of the uploaded data, keyed by layer name.
type Data interface {
	InputTrainData() (framework.Batch, error)
	OutputTrainData() (framework.Batch, error)
	InputTestData() (framework.Batch, error)
	OutputTestData() (framework.Batch, error)
	// InputData returns all rows, used for the predictions.
	InputData() (framework.Batch, error)
	ColumnsPerLayer() map[string]int
	InputColumns() map[string][]string
}

// Service is the stateful assembly of one model.
// It is not safe for concurrent use, every session owns its own instance.
type Service struct {
	backend framework.Backend
	data    Data
	bus     *observe.Bus

	name         string
	model        framework.Model
	store        *graph.Store
	state        model.State
	inputShapes  map[string]int
	outputShapes map[string]int

	compiled  bool
	optimizer model.OptimizerParams
	losses    map[string]model.LossKind
	metrics   map[string][]model.MetricKind
	callbacks []model.CallbackParams
	history   framework.History
}

// New creates a new service without a model.
func New(backend framework.Backend, data Data, bus *observe.Bus) *Service {
	if bus == nil {
		bus = observe.NewBus()
	}
	s := &Service{
		backend: backend,
		data:    data,
		bus:     bus,
	}
	s.reset()
	return s
}

func (s *Service) reset() {
	s.name = ""
	s.model = nil
	s.store = graph.New()
	s.state = model.NoModel
	s.inputShapes = make(map[string]int)
	s.outputShapes = make(map[string]int)
	s.compiled = false
	s.optimizer = nil
	s.losses = make(map[string]model.LossKind)
	s.metrics = make(map[string][]model.MetricKind)
	s.callbacks = make([]model.CallbackParams, 0)
	s.history = nil
}

func (s *Service) notify(kind observe.Kind, detail string) {
	log.Debug().
		Str("model", s.name).
		Str("event", kind.String()).
		Str("detail", detail).
		Str("state", s.state.String()).
		Msg("model updated")
	s.bus.Notify(observe.Event{
		Kind:   kind,
		Model:  s.name,
		Detail: detail,
	})
}

// CreateModel replaces the current model with a new empty one.
func (s *Service) CreateModel(name string) error {
	if name == "" {
		return fmt.Errorf("model name is empty: %w", model.InvalidNameErr)
	}
	m, err := s.backend.Model(name, nil, nil)
	if err != nil {
		return fmt.Errorf("could not create model '%s': %w", name, err)
	}
	md, err := metadata(m)
	if err != nil {
		return err
	}
	s.reset()
	s.model = m
	s.apply(md)
	s.state = model.Empty
	s.notify(observe.ModelChanged, name)
	return nil
}

// UploadModel replaces the current model with one read from the given source.
func (s *Service) UploadModel(r io.Reader) error {
	m, err := s.backend.Load(r)
	if err != nil {
		log.Error().Err(err).Msg("could not load model")
		return fmt.Errorf("could not load model: %s: %w", err.Error(), model.LoadErr)
	}
	for _, t := range append(m.Inputs(), m.Outputs()...) {
		if err := model.ValidateShape(t.Shape()); err != nil {
			return fmt.Errorf("invalid layer '%s' in model '%s': %w", t.Name(), m.Name(), err)
		}
	}
	md, err := metadata(m)
	if err != nil {
		return fmt.Errorf("could not load model: %s: %w", err.Error(), model.LoadErr)
	}
	s.reset()
	s.model = m
	s.apply(md)
	switch {
	case len(md.outputShapes) > 0:
		s.state = model.OutputsSet
	case md.store.Size() > 0:
		s.state = model.Building
	default:
		s.state = model.Empty
	}
	s.notify(observe.ModelChanged, s.name)
	return nil
}

// meta is the information derived from a trainable model.
type meta struct {
	name         string
	store        *graph.Store
	inputShapes  map[string]int
	outputShapes map[string]int
	losses       map[string]model.LossKind
	metrics      map[string][]model.MetricKind
}

func metadata(m framework.Model) (meta, error) {
	store, err := graph.FromModel(m)
	if err != nil {
		return meta{}, err
	}
	md := meta{
		name:         m.Name(),
		store:        store,
		inputShapes:  make(map[string]int),
		outputShapes: make(map[string]int),
		losses:       make(map[string]model.LossKind),
		metrics:      make(map[string][]model.MetricKind),
	}
	for _, in := range m.Inputs() {
		md.inputShapes[in.Name()] = in.Shape().Width()
	}
	for _, out := range m.Outputs() {
		md.outputShapes[out.Name()] = out.Shape().Width()
		md.metrics[out.Name()] = make([]model.MetricKind, 0)
	}
	return md, nil
}

func (s *Service) apply(md meta) {
	s.name = md.name
	s.store = md.store
	s.inputShapes = md.inputShapes
	s.outputShapes = md.outputShapes
	s.losses = md.losses
	s.metrics = md.metrics
}

// RefreshMetadata recomputes the layers, the shapes and the empty losses and metrics from the trainable model.
func (s *Service) RefreshMetadata() error {
	if s.model == nil {
		return model.NoModelErr
	}
	md, err := metadata(s.model)
	if err != nil {
		return err
	}
	s.apply(md)
	return nil
}

// AddLayer creates a new layer, connected to the given layers or as an entry layer if none are given.
func (s *Service) AddLayer(name string, params model.LayerParams, connectTo ...string) error {
	if s.model == nil {
		return fmt.Errorf("could not add layer '%s': %w", name, model.NoModelErr)
	}
	if params == nil {
		return fmt.Errorf("no params for layer '%s': %w", name, model.InvalidParamsErr)
	}
	if _, ok := s.store.Layer(name); ok {
		return fmt.Errorf("layer '%s' already exists: %w", name, model.DuplicateNameErr)
	}
	kind := params.Kind()
	if len(connectTo) == 0 {
		entry, ok := params.(model.EntryParams)
		if !ok {
			return fmt.Errorf("layer '%s' of kind '%s' needs a connection: %w",
				name, kind, model.InsufficientConnectionsErr)
		}
		handle, err := s.backend.Input(name, entry)
		if err != nil {
			return fmt.Errorf("could not create layer '%s': %w", name, err)
		}
		if err := s.store.AddEntryLayer(name, handle); err != nil {
			return err
		}
	} else {
		if kind == model.EntryLayer {
			return fmt.Errorf("input layer '%s' cannot be connected: %w", name, model.InvalidParamsErr)
		}
		upstream, err := s.store.ResolveConnection(kind, connectTo...)
		if err != nil {
			return fmt.Errorf("could not connect layer '%s': %w", name, err)
		}
		handle, err := s.backend.Layer(name, params, upstream...)
		if err != nil {
			return fmt.Errorf("could not create layer '%s': %w", name, err)
		}
		if err := s.store.AddConnectedLayer(name, handle, connectTo...); err != nil {
			return err
		}
	}
	if s.state == model.Empty {
		s.state = model.Building
	}
	s.notify(observe.LayerAdded, name)
	return nil
}

// CheckLayerCapacity returns true if the given number of columns can still be bound to the layer.
func (s *Service) CheckLayerCapacity(side model.Side, layer string, columns int) (bool, error) {
	var shapes map[string]int
	switch side {
	case model.Input:
		shapes = s.inputShapes
	case model.Output:
		shapes = s.outputShapes
	default:
		return false, fmt.Errorf("unknown side '%s': %w", side, model.InvalidParamsErr)
	}
	shape, ok := shapes[layer]
	if !ok {
		return false, fmt.Errorf("no %s layer '%s': %w", side, layer, model.UnknownLayerErr)
	}
	current := 0
	if s.data != nil {
		current = s.data.ColumnsPerLayer()[layer]
	}
	return columns+current <= shape, nil
}

// SetModelOutputs rebuilds the trainable model from the input layers to the given outputs.
// Any previous compilation is discarded.
func (s *Service) SetModelOutputs(names ...string) error {
	if s.model == nil {
		return fmt.Errorf("could not set outputs: %w", model.NoModelErr)
	}
	if len(names) == 0 {
		return fmt.Errorf("no outputs given for model '%s': %w", s.name, model.InvalidParamsErr)
	}
	outputs, err := s.store.Handles(names)
	if err != nil {
		return fmt.Errorf("could not set outputs: %w", err)
	}
	inputs, err := s.store.Handles(s.store.Inputs())
	if err != nil {
		return err
	}
	m, err := s.backend.Model(s.name, inputs, outputs)
	if err != nil {
		return fmt.Errorf("could not build model '%s': %w", s.name, err)
	}
	md, err := metadata(m)
	if err != nil {
		return err
	}
	s.model = m
	s.apply(md)
	s.compiled = false
	s.state = model.OutputsSet
	s.notify(observe.OutputsSet, fmt.Sprintf("%v", s.store.Outputs()))
	return nil
}

// SelectOptimizer replaces the optimizer.
func (s *Service) SelectOptimizer(params model.OptimizerParams) error {
	if params == nil {
		return fmt.Errorf("no optimizer given: %w", model.InvalidParamsErr)
	}
	if err := params.Validate(); err != nil {
		return err
	}
	s.optimizer = params
	s.notify(observe.OptimizerSelected, string(params.Kind()))
	return nil
}

func (s *Service) output(layer string) error {
	if _, ok := s.outputShapes[layer]; !ok {
		return fmt.Errorf("'%s' is not an output of model '%s': %w", layer, s.name, model.UnknownLayerErr)
	}
	return nil
}

// AddLoss sets the loss of an output layer.
func (s *Service) AddLoss(layer string, loss model.LossKind) error {
	if err := s.output(layer); err != nil {
		return err
	}
	if err := loss.Validate(); err != nil {
		return err
	}
	s.losses[layer] = loss
	s.notify(observe.LossesSelected, layer)
	return nil
}

// AddMetric appends a metric to an output layer.
func (s *Service) AddMetric(layer string, metric model.MetricKind) error {
	if err := s.output(layer); err != nil {
		return err
	}
	if err := metric.Validate(); err != nil {
		return err
	}
	s.metrics[layer] = append(s.metrics[layer], metric)
	s.notify(observe.MetricsSelected, layer)
	return nil
}

// AddCallback appends a training callback.
func (s *Service) AddCallback(params model.CallbackParams) error {
	if params == nil {
		return fmt.Errorf("no callback given: %w", model.InvalidParamsErr)
	}
	if err := params.Validate(); err != nil {
		return err
	}
	s.callbacks = append(s.callbacks, params)
	s.notify(observe.CallbackAdded, string(params.Kind()))
	return nil
}

// trainable checks that a model with outputs exists.
func (s *Service) trainable() error {
	if s.model == nil {
		return model.NoModelErr
	}
	if len(s.outputShapes) == 0 {
		return fmt.Errorf("model '%s' has no outputs: %w", s.name, model.NoModelErr)
	}
	return nil
}

// CompileModel prepares the model for training with the selected optimizer, losses and metrics.
func (s *Service) CompileModel() error {
	if err := s.trainable(); err != nil {
		return err
	}
	if s.optimizer == nil {
		return fmt.Errorf("could not compile model '%s': %w", s.name, model.NoOptimizerErr)
	}
	for out := range s.outputShapes {
		if _, ok := s.losses[out]; !ok {
			return fmt.Errorf("could not compile model '%s': output '%s': %w", s.name, out, model.MissingLossErr)
		}
	}
	losses := make(map[string]model.LossKind, len(s.losses))
	for k, v := range s.losses {
		losses[k] = v
	}
	metrics := make(map[string][]model.MetricKind, len(s.metrics))
	for k, v := range s.metrics {
		metrics[k] = append([]model.MetricKind{}, v...)
	}
	if err := s.model.Compile(framework.Compilation{
		Optimizer: s.optimizer,
		Losses:    losses,
		Metrics:   metrics,
	}); err != nil {
		log.Error().Err(err).Str("model", s.name).Msg("could not compile model")
		return err
	}
	s.compiled = true
	s.state = model.Compiled
	s.notify(observe.ModelCompiled, s.name)
	return nil
}

// FitModel trains the compiled model on the training data and keeps the resulting history.
func (s *Service) FitModel(ctx context.Context, batchSize, epochs int, validationSplit float64) (framework.History, error) {
	if s.model == nil || !s.compiled {
		return nil, fmt.Errorf("could not fit model '%s': %w", s.name, model.NotCompiledErr)
	}
	if validationSplit < 0 || validationSplit >= 1 {
		return nil, fmt.Errorf("validation split must be in [0,1) '%v': %w", validationSplit, model.InvalidParamsErr)
	}
	if s.data == nil {
		return nil, fmt.Errorf("no data to fit model '%s': %w", s.name, model.InvalidParamsErr)
	}
	x, err := s.data.InputTrainData()
	if err != nil {
		return nil, fmt.Errorf("could not get input data: %w", err)
	}
	y, err := s.data.OutputTrainData()
	if err != nil {
		return nil, fmt.Errorf("could not get output data: %w", err)
	}
	start := time.Now()
	history, err := s.model.Fit(ctx, x, y, framework.FitOptions{
		BatchSize:       batchSize,
		Epochs:          epochs,
		ValidationSplit: validationSplit,
		Callbacks:       append([]model.CallbackParams{}, s.callbacks...),
	})
	if err != nil {
		log.Error().Err(err).Str("model", s.name).Msg("could not fit model")
		return nil, err
	}
	s.history = history
	s.state = model.Trained
	log.Info().
		Str("model", s.name).
		Int("epochs", epochs).
		Float64("duration", time.Since(start).Seconds()).
		Msg("model trained")
	s.notify(observe.ModelTrained, s.name)
	return s.History(), nil
}

// EvaluateModel computes the losses and metrics on the test data.
func (s *Service) EvaluateModel(batchSize int) (map[string]float64, error) {
	if err := s.trainable(); err != nil {
		return nil, err
	}
	if !s.compiled {
		return nil, fmt.Errorf("could not evaluate model '%s': %w", s.name, model.NotCompiledErr)
	}
	if s.data == nil {
		return nil, fmt.Errorf("no data to evaluate model '%s': %w", s.name, model.InvalidParamsErr)
	}
	x, err := s.data.InputTestData()
	if err != nil {
		return nil, fmt.Errorf("could not get input data: %w", err)
	}
	y, err := s.data.OutputTestData()
	if err != nil {
		return nil, fmt.Errorf("could not get output data: %w", err)
	}
	return s.model.Evaluate(x, y, batchSize)
}

// MakePredictions computes the outputs for all rows of the input columns.
func (s *Service) MakePredictions(batchSize int) (framework.Batch, error) {
	if err := s.trainable(); err != nil {
		return nil, err
	}
	if s.data == nil {
		return nil, fmt.Errorf("no data to predict with model '%s': %w", s.name, model.InvalidParamsErr)
	}
	x, err := s.data.InputData()
	if err != nil {
		return nil, fmt.Errorf("could not get input data: %w", err)
	}
	return s.model.Predict(x, batchSize)
}

// SaveModel writes the trainable model to the given writer.
func (s *Service) SaveModel(w io.Writer) error {
	if s.model == nil {
		return model.NoModelErr
	}
	return s.model.Save(w)
}

// ModelExists returns true once a trainable model has been created or uploaded.
func (s *Service) ModelExists() bool {
	return s.model != nil
}
