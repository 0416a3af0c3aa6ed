package nn

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/drakos74/free-model/internal/framework"
	"github.com/drakos74/free-model/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// linear creates samples for y = 2*x0 - x1 + 0.5.
func linear(samples int) (*mat.Dense, *mat.Dense) {
	r := rand.New(rand.NewSource(7))
	x := mat.NewDense(samples, 2, nil)
	y := mat.NewDense(samples, 1, nil)
	for i := 0; i < samples; i++ {
		x0 := r.Float64()*2 - 1
		x1 := r.Float64()*2 - 1
		x.Set(i, 0, x0)
		x.Set(i, 1, x1)
		y.Set(i, 0, 2*x0-x1+0.5)
	}
	return x, y
}

func regression(t *testing.T, b *Backend) *Network {
	in, err := b.Input("in", model.EntryParams{Shape: []int{2}})
	require.NoError(t, err)
	out, err := b.Layer("out", model.DenseParams{Units: 1}, in)
	require.NoError(t, err)
	n, err := b.model("regression", []framework.Tensor{in}, []framework.Tensor{out})
	require.NoError(t, err)
	return n
}

func TestBackend_Layer(t *testing.T) {

	b := WithSeed(1)
	in, err := b.Input("in", model.EntryParams{Shape: []int{4}})
	require.NoError(t, err)
	other, err := b.Input("other", model.EntryParams{Shape: []int{2}})
	require.NoError(t, err)

	type test struct {
		name    string
		params  model.LayerParams
		connect []framework.Tensor
		width   int
		err     error
	}

	tests := map[string]test{
		"dense": {
			name:    "dense",
			params:  model.DenseParams{Units: 3, Activation: model.ReLU},
			connect: []framework.Tensor{in},
			width:   3,
		},
		"dense-no-connection": {
			name:   "dense",
			params: model.DenseParams{Units: 3},
			err:    model.InsufficientConnectionsErr,
		},
		"dense-two-connections": {
			name:    "dense",
			params:  model.DenseParams{Units: 3},
			connect: []framework.Tensor{in, other},
			err:     model.InvalidParamsErr,
		},
		"concat": {
			name:    "concat",
			params:  model.ConcatenateParams{},
			connect: []framework.Tensor{in, other},
			width:   6,
		},
		"concat-single": {
			name:    "concat",
			params:  model.ConcatenateParams{},
			connect: []framework.Tensor{in},
			err:     model.InsufficientConnectionsErr,
		},
		"batch-norm": {
			name:    "bn",
			params:  model.DefaultBatchNormalization(),
			connect: []framework.Tensor{in},
			width:   4,
		},
		"dropout": {
			name:    "drop",
			params:  model.DropoutParams{Rate: 0.5},
			connect: []framework.Tensor{other},
			width:   2,
		},
		"invalid-dropout": {
			name:    "drop",
			params:  model.DropoutParams{Rate: 1},
			connect: []framework.Tensor{other},
			err:     model.InvalidParamsErr,
		},
		"no-name": {
			params:  model.DropoutParams{Rate: 0.5},
			connect: []framework.Tensor{other},
			err:     model.InvalidNameErr,
		},
		"entry": {
			name:   "entry",
			params: model.EntryParams{Shape: []int{5}},
			width:  5,
		},
		"entry-connected": {
			name:    "entry",
			params:  model.EntryParams{Shape: []int{5}},
			connect: []framework.Tensor{in},
			err:     model.InvalidParamsErr,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			l, err := b.Layer(tt.name, tt.params, tt.connect...)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.name, l.Name())
			assert.Equal(t, tt.params.Kind(), l.Kind())
			assert.Equal(t, model.Shape{model.None, tt.width}, l.Shape())
			assert.Equal(t, len(tt.connect), len(l.Inputs()))
		})
	}
}

func TestNode_Params(t *testing.T) {
	b := WithSeed(1)
	in, err := b.Input("in", model.EntryParams{Shape: []int{4}})
	require.NoError(t, err)
	dense, err := b.Layer("dense", model.DenseParams{Units: 3}, in)
	require.NoError(t, err)
	bn, err := b.Layer("bn", model.DefaultBatchNormalization(), dense)
	require.NoError(t, err)

	assert.Equal(t, 0, in.Params())
	assert.Equal(t, 4*3+3, dense.Params())
	assert.Equal(t, 2*3, bn.Params())
}

func TestBackend_Model(t *testing.T) {

	b := WithSeed(1)
	in, err := b.Input("in", model.EntryParams{Shape: []int{2}})
	require.NoError(t, err)
	side, err := b.Input("side", model.EntryParams{Shape: []int{1}})
	require.NoError(t, err)
	hidden, err := b.Layer("hidden", model.DenseParams{Units: 2}, in)
	require.NoError(t, err)
	concat, err := b.Layer("concat", model.ConcatenateParams{}, hidden, side)
	require.NoError(t, err)
	twin, err := b.Layer("hidden", model.DenseParams{Units: 1}, concat)
	require.NoError(t, err)

	t.Run("topological-order", func(t *testing.T) {
		m, err := b.Model("net", []framework.Tensor{in, side}, []framework.Tensor{concat, concat})
		require.NoError(t, err)
		layers := make([]string, 0)
		for _, l := range m.Layers() {
			layers = append(layers, l.Name())
		}
		assert.Equal(t, []string{"in", "side", "hidden", "concat"}, layers)
		assert.Equal(t, 1, len(m.Outputs()))
		assert.Equal(t, "net", m.Name())
		assert.False(t, m.Compiled())
	})

	t.Run("missing-input", func(t *testing.T) {
		_, err := b.Model("net", []framework.Tensor{in}, []framework.Tensor{concat})
		assert.ErrorIs(t, err, model.UnknownLayerErr)
	})

	t.Run("duplicate-name", func(t *testing.T) {
		_, err := b.Model("net", []framework.Tensor{in, side}, []framework.Tensor{twin})
		assert.ErrorIs(t, err, model.DuplicateNameErr)
	})

	t.Run("no-name", func(t *testing.T) {
		_, err := b.Model("", []framework.Tensor{in}, []framework.Tensor{hidden})
		assert.ErrorIs(t, err, model.InvalidNameErr)
	})

	t.Run("input-not-entry", func(t *testing.T) {
		_, err := b.Model("net", []framework.Tensor{hidden}, []framework.Tensor{hidden})
		assert.ErrorIs(t, err, model.InvalidParamsErr)
	})
}

func TestNetwork_Compile(t *testing.T) {

	type test struct {
		compilation framework.Compilation
		err         error
	}

	tests := map[string]test{
		"valid": {
			compilation: framework.Compilation{
				Optimizer: model.DefaultAdam(),
				Losses:    map[string]model.LossKind{"out": model.MeanSquaredError},
				Metrics:   map[string][]model.MetricKind{"out": {model.MAEMetric}},
			},
		},
		"no-optimizer": {
			compilation: framework.Compilation{
				Losses: map[string]model.LossKind{"out": model.MeanSquaredError},
			},
			err: model.NoOptimizerErr,
		},
		"no-loss": {
			compilation: framework.Compilation{
				Optimizer: model.DefaultSGD(),
			},
			err: model.MissingLossErr,
		},
		"unknown-loss": {
			compilation: framework.Compilation{
				Optimizer: model.DefaultSGD(),
				Losses:    map[string]model.LossKind{"out": "cosine"},
			},
			err: model.InvalidParamsErr,
		},
		"invalid-optimizer": {
			compilation: framework.Compilation{
				Optimizer: model.SGDParams{LearningRate: -1},
				Losses:    map[string]model.LossKind{"out": model.MeanSquaredError},
			},
			err: model.InvalidParamsErr,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			n := regression(t, WithSeed(1))
			err := n.Compile(tt.compilation)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.False(t, n.Compiled())
				return
			}
			require.NoError(t, err)
			assert.True(t, n.Compiled())
		})
	}
}

func TestNetwork_Fit(t *testing.T) {

	type test struct {
		optimizer model.OptimizerParams
		loss      model.LossKind
	}

	tests := map[string]test{
		"adam-mse": {
			optimizer: model.AdamParams{LearningRate: 0.05, Beta1: 0.9, Beta2: 0.999},
			loss:      model.MeanSquaredError,
		},
		"sgd-momentum-mse": {
			optimizer: model.SGDParams{LearningRate: 0.05, Momentum: 0.9},
			loss:      model.MeanSquaredError,
		},
		"rmsprop-huber": {
			optimizer: model.RMSpropParams{LearningRate: 0.01, Rho: 0.9},
			loss:      model.Huber,
		},
		"adam-mae": {
			optimizer: model.AdamParams{LearningRate: 0.05, Beta1: 0.9, Beta2: 0.999},
			loss:      model.MeanAbsoluteError,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			n := regression(t, WithSeed(1))
			require.NoError(t, n.Compile(framework.Compilation{
				Optimizer: tt.optimizer,
				Losses:    map[string]model.LossKind{"out": tt.loss},
				Metrics:   map[string][]model.MetricKind{"out": {model.MAEMetric, model.RMSEMetric}},
			}))

			x, y := linear(200)
			epochs := 40
			history, err := n.Fit(context.Background(),
				framework.Batch{"in": x},
				framework.Batch{"out": y},
				framework.FitOptions{BatchSize: 16, Epochs: epochs, ValidationSplit: 0.2})
			require.NoError(t, err)

			for _, k := range []string{"loss", "mean_absolute_error", "root_mean_squared_error",
				"val_loss", "val_mean_absolute_error", "val_root_mean_squared_error"} {
				assert.Equal(t, epochs, len(history[k]), k)
			}
			assert.Less(t, history["loss"][epochs-1], history["loss"][0])
			assert.Less(t, history["val_loss"][epochs-1], history["val_loss"][0])
		})
	}
}

func TestNetwork_FitErrors(t *testing.T) {

	x, y := linear(10)

	t.Run("not-compiled", func(t *testing.T) {
		n := regression(t, WithSeed(1))
		_, err := n.Fit(context.Background(), framework.Batch{"in": x}, framework.Batch{"out": y},
			framework.FitOptions{BatchSize: 2, Epochs: 1})
		assert.ErrorIs(t, err, model.NotCompiledErr)
		_, err = n.Evaluate(framework.Batch{"in": x}, framework.Batch{"out": y}, 2)
		assert.ErrorIs(t, err, model.NotCompiledErr)
	})

	type test struct {
		x, y framework.Batch
		opts framework.FitOptions
		err  error
	}

	tests := map[string]test{
		"missing-input": {
			x:    framework.Batch{"other": x},
			y:    framework.Batch{"out": y},
			opts: framework.FitOptions{BatchSize: 2, Epochs: 1},
			err:  model.UnknownLayerErr,
		},
		"wrong-columns": {
			x:    framework.Batch{"in": y},
			y:    framework.Batch{"out": y},
			opts: framework.FitOptions{BatchSize: 2, Epochs: 1},
			err:  model.ValidateShapeErr,
		},
		"wrong-rows": {
			x:    framework.Batch{"in": x},
			y:    framework.Batch{"out": mat.NewDense(3, 1, nil)},
			opts: framework.FitOptions{BatchSize: 2, Epochs: 1},
			err:  model.ValidateShapeErr,
		},
		"no-epochs": {
			x:    framework.Batch{"in": x},
			y:    framework.Batch{"out": y},
			opts: framework.FitOptions{BatchSize: 2},
			err:  model.InvalidParamsErr,
		},
		"validation-split": {
			x:    framework.Batch{"in": x},
			y:    framework.Batch{"out": y},
			opts: framework.FitOptions{BatchSize: 2, Epochs: 1, ValidationSplit: 1},
			err:  model.InvalidParamsErr,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			n := regression(t, WithSeed(1))
			require.NoError(t, n.Compile(framework.Compilation{
				Optimizer: model.DefaultSGD(),
				Losses:    map[string]model.LossKind{"out": model.MeanSquaredError},
			}))
			_, err := n.Fit(context.Background(), tt.x, tt.y, tt.opts)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestNetwork_FitCancelled(t *testing.T) {
	n := regression(t, WithSeed(1))
	require.NoError(t, n.Compile(framework.Compilation{
		Optimizer: model.DefaultSGD(),
		Losses:    map[string]model.LossKind{"out": model.MeanSquaredError},
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	x, y := linear(10)
	history, err := n.Fit(ctx, framework.Batch{"in": x}, framework.Batch{"out": y},
		framework.FitOptions{BatchSize: 2, Epochs: 5})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, history)
}

func TestNetwork_EarlyStopping(t *testing.T) {
	n := regression(t, WithSeed(1))
	require.NoError(t, n.Compile(framework.Compilation{
		Optimizer: model.DefaultSGD(),
		Losses:    map[string]model.LossKind{"out": model.MeanSquaredError},
	}))
	x, y := linear(50)
	// no improvement can ever be large enough
	history, err := n.Fit(context.Background(), framework.Batch{"in": x}, framework.Batch{"out": y},
		framework.FitOptions{
			BatchSize: 10,
			Epochs:    10,
			Callbacks: []model.CallbackParams{model.EarlyStoppingParams{MinDelta: 1e9, Patience: 1}},
		})
	require.NoError(t, err)
	assert.Equal(t, 2, len(history["loss"]))
	_, ok := history["val_loss"]
	assert.False(t, ok)
}

func TestStopper(t *testing.T) {

	type test struct {
		cfg    model.EarlyStoppingParams
		scores []map[string]float64
		stops  []bool
	}

	tests := map[string]test{
		"accuracy-rises": {
			cfg: model.EarlyStoppingParams{Monitor: "binary_accuracy", Patience: 1},
			scores: []map[string]float64{
				{"binary_accuracy": 0.50},
				{"binary_accuracy": 0.75},
				{"binary_accuracy": 0.70},
			},
			stops: []bool{false, false, true},
		},
		"validation-accuracy-rises": {
			cfg: model.EarlyStoppingParams{Monitor: "val_binary_accuracy", Patience: 2},
			scores: []map[string]float64{
				{"val_binary_accuracy": 0.5},
				{"val_binary_accuracy": 0.6},
				{"val_binary_accuracy": 0.7},
				{"val_binary_accuracy": 0.7},
				{"val_binary_accuracy": 0.6},
			},
			stops: []bool{false, false, false, false, true},
		},
		"loss-falls": {
			cfg: model.EarlyStoppingParams{Patience: 1},
			scores: []map[string]float64{
				{"loss": 1.0},
				{"loss": 0.5},
				{"loss": 0.6},
			},
			stops: []bool{false, false, true},
		},
		"max-mode": {
			cfg: model.EarlyStoppingParams{Monitor: "mean_absolute_error", Mode: model.MaxMode, Patience: 1},
			scores: []map[string]float64{
				{"mean_absolute_error": 1.0},
				{"mean_absolute_error": 2.0},
				{"mean_absolute_error": 1.5},
			},
			stops: []bool{false, false, true},
		},
		"min-mode-on-accuracy": {
			cfg: model.EarlyStoppingParams{Monitor: "binary_accuracy", Mode: model.MinMode, Patience: 1},
			scores: []map[string]float64{
				{"binary_accuracy": 0.50},
				{"binary_accuracy": 0.75},
			},
			stops: []bool{false, true},
		},
		"min-delta": {
			cfg: model.EarlyStoppingParams{Monitor: "binary_accuracy", MinDelta: 0.1, Patience: 1},
			scores: []map[string]float64{
				{"binary_accuracy": 0.50},
				{"binary_accuracy": 0.55},
			},
			stops: []bool{false, true},
		},
		"unknown-monitor": {
			cfg: model.EarlyStoppingParams{Monitor: "los", Patience: 1},
			scores: []map[string]float64{
				{"loss": 1.0},
				{"loss": 2.0},
				{"loss": 3.0},
			},
			stops: []bool{false, false, false},
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			s := newStopper(tt.cfg, false)
			for i, scores := range tt.scores {
				assert.Equal(t, tt.stops[i], s.stop(scores), "epoch %d", i+1)
			}
		})
	}

	t.Run("warns-once", func(t *testing.T) {
		s := newStopper(model.EarlyStoppingParams{Monitor: "los"}, false)
		assert.False(t, s.stop(map[string]float64{"loss": 1}))
		assert.True(t, s.warned)
	})
}

// branched builds a two output network exercising every layer kind.
func branched(t *testing.T, b *Backend) *Network {
	left, err := b.Input("left", model.EntryParams{Shape: []int{2}})
	require.NoError(t, err)
	right, err := b.Input("right", model.EntryParams{Shape: []int{1}})
	require.NoError(t, err)
	bn, err := b.Layer("bn", model.DefaultBatchNormalization(), left)
	require.NoError(t, err)
	concat, err := b.Layer("concat", model.ConcatenateParams{}, bn, right)
	require.NoError(t, err)
	hidden, err := b.Layer("hidden", model.DenseParams{Units: 4, Activation: model.Tanh}, concat)
	require.NoError(t, err)
	drop, err := b.Layer("drop", model.DropoutParams{Rate: 0.1}, hidden)
	require.NoError(t, err)
	value, err := b.Layer("value", model.DenseParams{Units: 1}, drop)
	require.NoError(t, err)
	class, err := b.Layer("class", model.DenseParams{Units: 1, Activation: model.Sigmoid}, drop)
	require.NoError(t, err)
	n, err := b.model("branched", []framework.Tensor{left, right}, []framework.Tensor{value, class})
	require.NoError(t, err)
	require.NoError(t, n.Compile(framework.Compilation{
		Optimizer: model.DefaultAdam(),
		Losses: map[string]model.LossKind{
			"value": model.MeanSquaredError,
			"class": model.BinaryCrossentropy,
		},
		Metrics: map[string][]model.MetricKind{
			"value": {model.MSEMetric},
			"class": {model.BinaryAccuracyMetric},
		},
	}))
	return n
}

func branchedData(samples int) (framework.Batch, framework.Batch) {
	r := rand.New(rand.NewSource(11))
	left := mat.NewDense(samples, 2, nil)
	right := mat.NewDense(samples, 1, nil)
	value := mat.NewDense(samples, 1, nil)
	class := mat.NewDense(samples, 1, nil)
	for i := 0; i < samples; i++ {
		a, b, c := r.Float64(), r.Float64(), r.Float64()
		left.Set(i, 0, a)
		left.Set(i, 1, b)
		right.Set(i, 0, c)
		value.Set(i, 0, a+b-c)
		if a > b {
			class.Set(i, 0, 1)
		}
	}
	return framework.Batch{"left": left, "right": right}, framework.Batch{"value": value, "class": class}
}

func TestNetwork_MultipleOutputs(t *testing.T) {
	n := branched(t, WithSeed(3))
	x, y := branchedData(64)

	history, err := n.Fit(context.Background(), x, y, framework.FitOptions{BatchSize: 8, Epochs: 3, ValidationSplit: 0.25})
	require.NoError(t, err)
	for _, k := range []string{"loss", "value_loss", "class_loss", "value_mean_squared_error", "class_binary_accuracy",
		"val_loss", "val_value_loss", "val_class_loss"} {
		assert.Equal(t, 3, len(history[k]), k)
	}
	assert.InDelta(t, history["value_loss"][2]+history["class_loss"][2], history["loss"][2], 1e-9)

	scores, err := n.Evaluate(x, y, 16)
	require.NoError(t, err)
	acc := scores["class_binary_accuracy"]
	assert.True(t, acc >= 0 && acc <= 1)

	predictions, err := n.Predict(x, 10)
	require.NoError(t, err)
	require.Equal(t, 2, len(predictions))
	r, c := predictions["value"].Dims()
	assert.Equal(t, 64, r)
	assert.Equal(t, 1, c)
	for i := 0; i < r; i++ {
		p := predictions["class"].At(i, 0)
		assert.True(t, p > 0 && p < 1)
	}
}

func TestNetwork_Predict(t *testing.T) {
	n := regression(t, WithSeed(1))
	x, _ := linear(5)

	p, err := n.Predict(framework.Batch{"in": x, "ignored": mat.NewDense(1, 1, nil)}, 2)
	require.NoError(t, err)
	r, c := p["out"].Dims()
	assert.Equal(t, 5, r)
	assert.Equal(t, 1, c)

	// predictions of a linear layer without training
	w := n.outputs[0].w
	for i := 0; i < r; i++ {
		expected := x.At(i, 0)*w.At(0, 0) + x.At(i, 1)*w.At(1, 0)
		assert.InDelta(t, expected, p["out"].At(i, 0), 1e-9)
	}

	_, err = n.Predict(framework.Batch{"in": x}, 0)
	assert.ErrorIs(t, err, model.InvalidParamsErr)
}

func TestNetwork_SaveLoad(t *testing.T) {
	n := branched(t, WithSeed(5))
	x, y := branchedData(32)
	_, err := n.Fit(context.Background(), x, y, framework.FitOptions{BatchSize: 8, Epochs: 2})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, n.Save(&buf))

	loaded, err := WithSeed(9).Load(&buf)
	require.NoError(t, err)
	assert.Equal(t, "branched", loaded.Name())
	assert.False(t, loaded.Compiled())
	assert.Equal(t, len(n.Layers()), len(loaded.Layers()))

	expected, err := n.Predict(x, 32)
	require.NoError(t, err)
	actual, err := loaded.Predict(x, 32)
	require.NoError(t, err)
	for name, m := range expected {
		assert.True(t, mat.EqualApprox(m, actual[name], 1e-9), name)
	}
}

func TestBackend_LoadErrors(t *testing.T) {

	type test struct {
		doc string
		err error
	}

	tests := map[string]test{
		"unknown-upstream": {
			doc: `{"name":"m","layers":[{"name":"d","layer":{"kind":"Dense","params":{"units":1}},"inputs":["x"]}],"inputs":[],"outputs":["d"]}`,
			err: model.UnknownLayerErr,
		},
		"unknown-kind": {
			doc: `{"name":"m","layers":[{"name":"d","layer":{"kind":"Conv2D"}}],"inputs":[],"outputs":["d"]}`,
			err: model.InvalidParamsErr,
		},
		"wrong-weights": {
			doc: `{"name":"m","layers":[{"name":"in","layer":{"kind":"Input","params":{"shape":[2]}}},` +
				`{"name":"d","layer":{"kind":"Dense","params":{"units":1}},"inputs":["in"],"weights":[[1]]}],` +
				`"inputs":["in"],"outputs":["d"]}`,
			err: model.ValidateShapeErr,
		},
		"duplicate": {
			doc: `{"name":"m","layers":[{"name":"in","layer":{"kind":"Input","params":{"shape":[2]}}},` +
				`{"name":"in","layer":{"kind":"Input","params":{"shape":[2]}}}],"inputs":["in"],"outputs":["in"]}`,
			err: model.DuplicateNameErr,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := WithSeed(1).Load(bytes.NewBufferString(tt.doc))
			assert.ErrorIs(t, err, tt.err)
		})
	}

	_, err := WithSeed(1).Load(bytes.NewBufferString("not json"))
	assert.Error(t, err)
}
