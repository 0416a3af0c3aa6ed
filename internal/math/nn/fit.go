package nn

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/drakos74/free-model/internal/framework"
	"github.com/drakos74/free-model/internal/model"
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

const (
	lossKey       = "loss"
	validationKey = "val_"
)

// check verifies the given data match the network inputs and outputs and returns the number of samples.
func (n *Network) check(x, y framework.Batch) (int, error) {
	samples := -1
	match := func(side string, nodes []*node, batch framework.Batch) error {
		for _, nd := range nodes {
			m, ok := batch[nd.name]
			if !ok || m == nil {
				return fmt.Errorf("no %s data for layer '%s': %w", side, nd.name, model.UnknownLayerErr)
			}
			r, c := m.Dims()
			if c != nd.width {
				return fmt.Errorf("%s data for layer '%s' has %d columns but layer expects %d: %w",
					side, nd.name, c, nd.width, model.ValidateShapeErr)
			}
			if samples >= 0 && r != samples {
				return fmt.Errorf("%s data for layer '%s' has %d rows instead of %d: %w",
					side, nd.name, r, samples, model.ValidateShapeErr)
			}
			samples = r
		}
		return nil
	}
	if err := match("input", n.inputs, x); err != nil {
		return 0, err
	}
	if y != nil {
		if err := match("output", n.outputs, y); err != nil {
			return 0, err
		}
	}
	if samples <= 0 {
		return 0, fmt.Errorf("no samples for model '%s': %w", n.name, model.ValidateShapeErr)
	}
	return samples, nil
}

// subset keeps only the data of the given layers.
func subset(b framework.Batch, nodes []*node) framework.Batch {
	s := make(framework.Batch, len(nodes))
	for _, nd := range nodes {
		s[nd.name] = b[nd.name]
	}
	return s
}

// rows returns a view on the given rows of every matrix of the batch.
func rows(b framework.Batch, from, to int) framework.Batch {
	view := make(framework.Batch, len(b))
	for name, m := range b {
		_, c := m.Dims()
		view[name] = m.Slice(from, to, 0, c).(*mat.Dense)
	}
	return view
}

// keys computes the history key for the given output and score.
func (n *Network) key(output, score string) string {
	if len(n.outputs) > 1 {
		return fmt.Sprintf("%s_%s", output, score)
	}
	return score
}

// scores turns the tallies of every output into named values.
func (n *Network) scores(tallies map[string]*tally) map[string]float64 {
	scores := make(map[string]float64)
	var total float64
	for _, out := range n.outputs {
		t := tallies[out.name]
		total += t.mean()
		if len(n.outputs) > 1 {
			scores[n.key(out.name, lossKey)] = t.mean()
		}
		for _, m := range n.metrics[out.name] {
			scores[n.key(out.name, string(m))] = t.metric(m)
		}
	}
	scores[lossKey] = total
	return scores
}

func (n *Network) tallies() map[string]*tally {
	tt := make(map[string]*tally, len(n.outputs))
	for _, out := range n.outputs {
		tt[out.name] = new(tally)
	}
	return tt
}

// step trains the network on a single batch.
func (n *Network) step(x, y framework.Batch, tallies map[string]*tally) error {
	p, err := n.forward(x, true)
	if err != nil {
		return err
	}
	n.zeroGrads()
	grads := make(map[*node]*mat.Dense, len(n.outputs))
	for _, out := range n.outputs {
		l, g := loss(n.losses[out.name], p.out[out], y[out.name])
		tallies[out.name].add(l, p.out[out], y[out.name])
		accumulate(grads, out, g)
	}
	n.backward(p, grads)
	n.optimizer.update(n.weights())
	return nil
}

// score evaluates the network on the given data without training.
func (n *Network) score(x, y framework.Batch, samples, batchSize int) (map[string]float64, error) {
	tallies := n.tallies()
	for from := 0; from < samples; from += batchSize {
		to := min(from+batchSize, samples)
		bx := rows(x, from, to)
		by := rows(y, from, to)
		p, err := n.forward(bx, false)
		if err != nil {
			return nil, err
		}
		for _, out := range n.outputs {
			l, _ := loss(n.losses[out.name], p.out[out], by[out.name])
			tallies[out.name].add(l, p.out[out], by[out.name])
		}
	}
	return n.scores(tallies), nil
}

// Fit trains the network. The validation split holds out the last rows of the data.
func (n *Network) Fit(ctx context.Context, x, y framework.Batch, opts framework.FitOptions) (framework.History, error) {
	if !n.compiled {
		return nil, fmt.Errorf("could not fit model '%s': %w", n.name, model.NotCompiledErr)
	}
	if opts.BatchSize < 1 || opts.Epochs < 1 {
		return nil, fmt.Errorf("batch size '%d' and epochs '%d' must be positive: %w",
			opts.BatchSize, opts.Epochs, model.InvalidParamsErr)
	}
	if opts.ValidationSplit < 0 || opts.ValidationSplit >= 1 {
		return nil, fmt.Errorf("validation split must be in [0,1) '%v': %w", opts.ValidationSplit, model.InvalidParamsErr)
	}
	samples, err := n.check(x, y)
	if err != nil {
		return nil, err
	}
	x, y = subset(x, n.inputs), subset(y, n.outputs)
	validation := int(float64(samples) * opts.ValidationSplit)
	training := samples - validation
	if training < 1 {
		return nil, fmt.Errorf("no training samples left after validation split '%v': %w",
			opts.ValidationSplit, model.InvalidParamsErr)
	}

	stoppers := make([]*stopper, 0)
	for _, cb := range opts.Callbacks {
		if es, ok := cb.(model.EarlyStoppingParams); ok {
			stoppers = append(stoppers, newStopper(es, validation > 0))
		}
	}

	tx, ty := rows(x, 0, training), rows(y, 0, training)
	var vx, vy framework.Batch
	if validation > 0 {
		vx, vy = rows(x, training, samples), rows(y, training, samples)
	}

	history := make(framework.History)
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return history, fmt.Errorf("training of '%s' interrupted at epoch %d: %w", n.name, epoch, err)
		}
		tallies := n.tallies()
		for from := 0; from < training; from += opts.BatchSize {
			to := min(from+opts.BatchSize, training)
			if err := n.step(rows(tx, from, to), rows(ty, from, to), tallies); err != nil {
				return history, err
			}
		}
		scores := n.scores(tallies)
		if validation > 0 {
			vs, err := n.score(vx, vy, validation, opts.BatchSize)
			if err != nil {
				return history, err
			}
			for k, v := range vs {
				scores[validationKey+k] = v
			}
		}
		for k, v := range scores {
			history[k] = append(history[k], v)
		}

		log.Debug().
			Str("model", n.name).
			Int("epoch", epoch+1).
			Float64("loss", scores[lossKey]).
			Msg("epoch completed")

		stop := false
		for _, s := range stoppers {
			if s.stop(scores) {
				stop = true
			}
		}
		if stop {
			log.Info().
				Str("model", n.name).
				Int("epoch", epoch+1).
				Msg("early stopping")
			break
		}
	}
	return history, nil
}

// Evaluate computes the loss and metrics of the network on the given data.
func (n *Network) Evaluate(x, y framework.Batch, batchSize int) (map[string]float64, error) {
	if !n.compiled {
		return nil, fmt.Errorf("could not evaluate model '%s': %w", n.name, model.NotCompiledErr)
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be positive '%d': %w", batchSize, model.InvalidParamsErr)
	}
	samples, err := n.check(x, y)
	if err != nil {
		return nil, err
	}
	return n.score(subset(x, n.inputs), subset(y, n.outputs), samples, batchSize)
}

// Predict computes the outputs of the network for the given inputs.
func (n *Network) Predict(x framework.Batch, batchSize int) (framework.Batch, error) {
	if len(n.outputs) == 0 {
		return nil, fmt.Errorf("model '%s' has no outputs: %w", n.name, model.InvalidParamsErr)
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("batch size must be positive '%d': %w", batchSize, model.InvalidParamsErr)
	}
	samples, err := n.check(x, nil)
	if err != nil {
		return nil, err
	}
	x = subset(x, n.inputs)
	predictions := make(framework.Batch, len(n.outputs))
	for _, out := range n.outputs {
		predictions[out.name] = mat.NewDense(samples, out.width, nil)
	}
	for from := 0; from < samples; from += batchSize {
		to := min(from+batchSize, samples)
		p, err := n.forward(rows(x, from, to), false)
		if err != nil {
			return nil, err
		}
		for _, out := range n.outputs {
			predictions[out.name].Slice(from, to, 0, out.width).(*mat.Dense).Copy(p.out[out])
		}
	}
	return predictions, nil
}

// stopper tracks the monitored value for early stopping.
type stopper struct {
	cfg    model.EarlyStoppingParams
	mode   model.StoppingMode
	best   float64
	wait   int
	warned bool
}

func newStopper(cfg model.EarlyStoppingParams, validation bool) *stopper {
	if cfg.Monitor == "" {
		cfg.Monitor = lossKey
		if validation {
			cfg.Monitor = validationKey + lossKey
		}
	}
	mode := cfg.Mode.Resolve(cfg.Monitor)
	best := math.Inf(1)
	if mode == model.MaxMode {
		best = math.Inf(-1)
	}
	return &stopper{
		cfg:  cfg,
		mode: mode,
		best: best,
	}
}

func (s *stopper) improved(v float64) bool {
	if s.mode == model.MaxMode {
		return v > s.best+s.cfg.MinDelta
	}
	return v < s.best-s.cfg.MinDelta
}

func (s *stopper) stop(scores map[string]float64) bool {
	v, ok := scores[s.cfg.Monitor]
	if !ok {
		if !s.warned {
			keys := make([]string, 0, len(scores))
			for k := range scores {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			log.Warn().
				Str("monitor", s.cfg.Monitor).
				Strs("available", keys).
				Msg("early stopping conditioned on unknown score, skipping")
			s.warned = true
		}
		return false
	}
	if s.improved(v) {
		s.best = v
		s.wait = 0
		return false
	}
	s.wait++
	return s.wait >= s.cfg.Patience
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
