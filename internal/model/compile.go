package model

import (
	"fmt"
	"strings"
)

// OptimizerKind is the name of an optimizer.
type OptimizerKind string

const (
	Adam    OptimizerKind = "Adam"
	RMSprop OptimizerKind = "RMSprop"
	SGD     OptimizerKind = "SGD"
)

// OptimizerParams is the typed configuration of an optimizer.
type OptimizerParams interface {
	Kind() OptimizerKind
	Validate() error
}

// AdamParams configures the Adam optimizer.
type AdamParams struct {
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate"`
	Beta1        float64 `json:"beta_1" yaml:"beta_1"`
	Beta2        float64 `json:"beta_2" yaml:"beta_2"`
}

// DefaultAdam returns the usual Adam configuration.
func DefaultAdam() AdamParams {
	return AdamParams{LearningRate: 0.001, Beta1: 0.9, Beta2: 0.999}
}

func (p AdamParams) Kind() OptimizerKind {
	return Adam
}

func (p AdamParams) Validate() error {
	if err := validRate(p.LearningRate); err != nil {
		return err
	}
	if p.Beta1 <= 0 || p.Beta1 >= 1 || p.Beta2 <= 0 || p.Beta2 >= 1 {
		return fmt.Errorf("betas must be in (0,1) '%v' '%v': %w", p.Beta1, p.Beta2, InvalidParamsErr)
	}
	return nil
}

// RMSpropParams configures the RMSprop optimizer.
type RMSpropParams struct {
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate"`
	Rho          float64 `json:"rho" yaml:"rho"`
	Momentum     float64 `json:"momentum" yaml:"momentum"`
}

// DefaultRMSprop returns the usual RMSprop configuration.
func DefaultRMSprop() RMSpropParams {
	return RMSpropParams{LearningRate: 0.001, Rho: 0.9}
}

func (p RMSpropParams) Kind() OptimizerKind {
	return RMSprop
}

func (p RMSpropParams) Validate() error {
	if err := validRate(p.LearningRate); err != nil {
		return err
	}
	if p.Rho <= 0 || p.Rho >= 1 {
		return fmt.Errorf("rho must be in (0,1) '%v': %w", p.Rho, InvalidParamsErr)
	}
	return validMomentum(p.Momentum)
}

// SGDParams configures stochastic gradient descent.
type SGDParams struct {
	LearningRate float64 `json:"learning_rate" yaml:"learning_rate"`
	Momentum     float64 `json:"momentum" yaml:"momentum"`
}

// DefaultSGD returns the usual SGD configuration.
func DefaultSGD() SGDParams {
	return SGDParams{LearningRate: 0.01}
}

func (p SGDParams) Kind() OptimizerKind {
	return SGD
}

func (p SGDParams) Validate() error {
	if err := validRate(p.LearningRate); err != nil {
		return err
	}
	return validMomentum(p.Momentum)
}

func validRate(rate float64) error {
	if rate <= 0 {
		return fmt.Errorf("learning rate must be positive '%v': %w", rate, InvalidParamsErr)
	}
	return nil
}

func validMomentum(m float64) error {
	if m < 0 || m >= 1 {
		return fmt.Errorf("momentum must be in [0,1) '%v': %w", m, InvalidParamsErr)
	}
	return nil
}

// LossKind is the name of a loss function.
type LossKind string

const (
	MeanSquaredError   LossKind = "mean_squared_error"
	MeanAbsoluteError  LossKind = "mean_absolute_error"
	BinaryCrossentropy LossKind = "binary_crossentropy"
	Huber              LossKind = "huber"
)

// Losses lists the supported loss functions.
var Losses = []LossKind{MeanSquaredError, MeanAbsoluteError, BinaryCrossentropy, Huber}

// Validate checks the loss is a known one.
func (l LossKind) Validate() error {
	for _, loss := range Losses {
		if l == loss {
			return nil
		}
	}
	return fmt.Errorf("unknown loss '%s': %w", l, InvalidParamsErr)
}

// MetricKind is the name of a metric.
type MetricKind string

const (
	MSEMetric            MetricKind = "mean_squared_error"
	MAEMetric            MetricKind = "mean_absolute_error"
	RMSEMetric           MetricKind = "root_mean_squared_error"
	BinaryAccuracyMetric MetricKind = "binary_accuracy"
)

// Metrics lists the supported metrics.
var Metrics = []MetricKind{MSEMetric, MAEMetric, RMSEMetric, BinaryAccuracyMetric}

// Validate checks the metric is a known one.
func (m MetricKind) Validate() error {
	for _, metric := range Metrics {
		if m == metric {
			return nil
		}
	}
	return fmt.Errorf("unknown metric '%s': %w", m, InvalidParamsErr)
}

// CallbackKind is the name of a training callback.
type CallbackKind string

const (
	EarlyStopping CallbackKind = "EarlyStopping"
)

// CallbackParams is the typed configuration of a training callback.
type CallbackParams interface {
	Kind() CallbackKind
	Validate() error
}

// StoppingMode is the direction in which the monitored value improves.
type StoppingMode string

const (
	// AutoMode picks Max for accuracy scores and Min for everything else.
	AutoMode StoppingMode = "auto"
	MinMode  StoppingMode = "min"
	MaxMode  StoppingMode = "max"
)

// Resolve returns the concrete mode for the given monitored score.
func (m StoppingMode) Resolve(monitor string) StoppingMode {
	switch m {
	case MinMode, MaxMode:
		return m
	}
	if strings.Contains(monitor, "accuracy") {
		return MaxMode
	}
	return MinMode
}

// EarlyStoppingParams stops training once the monitored value stops improving.
// An empty monitor watches 'val_loss', or 'loss' when there is no validation split.
// An empty mode is AutoMode.
type EarlyStoppingParams struct {
	Monitor  string       `json:"monitor,omitempty" yaml:"monitor"`
	Mode     StoppingMode `json:"mode,omitempty" yaml:"mode"`
	MinDelta float64      `json:"min_delta" yaml:"min_delta"`
	Patience int          `json:"patience" yaml:"patience"`
}

func (p EarlyStoppingParams) Kind() CallbackKind {
	return EarlyStopping
}

func (p EarlyStoppingParams) Validate() error {
	if p.MinDelta < 0 {
		return fmt.Errorf("min delta must not be negative '%v': %w", p.MinDelta, InvalidParamsErr)
	}
	if p.Patience < 0 {
		return fmt.Errorf("patience must not be negative '%d': %w", p.Patience, InvalidParamsErr)
	}
	switch p.Mode {
	case "", AutoMode, MinMode, MaxMode:
	default:
		return fmt.Errorf("unknown mode '%s': %w", p.Mode, InvalidParamsErr)
	}
	return nil
}
