package model

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// Decoder decodes a raw parameter payload into the given target.
type Decoder func(v interface{}) error

// JSONDecoder decodes the given raw json message, an empty message leaves the defaults.
func JSONDecoder(raw json.RawMessage) Decoder {
	return func(v interface{}) error {
		if len(raw) == 0 {
			return nil
		}
		return json.Unmarshal(raw, v)
	}
}

// Spec is the serialisable envelope of a typed parameter set.
type Spec struct {
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params,omitempty"`
}

func encode(kind string, params interface{}) (Spec, error) {
	b, err := json.Marshal(params)
	if err != nil {
		return Spec{}, fmt.Errorf("could not encode params for '%s': %w", kind, err)
	}
	return Spec{Kind: kind, Params: b}, nil
}

func decode(kind string, target interface{}, decoder Decoder) (interface{}, error) {
	if err := decoder(target); err != nil {
		return nil, fmt.Errorf("could not decode params for '%s': %s: %w", kind, err.Error(), InvalidParamsErr)
	}
	return reflect.ValueOf(target).Elem().Interface(), nil
}

// EncodeLayer wraps the layer params into a spec.
func EncodeLayer(p LayerParams) (Spec, error) {
	return encode(string(p.Kind()), p)
}

// DecodeLayer creates the layer params for the given kind, starting from the defaults.
func DecodeLayer(kind LayerKind, decoder Decoder) (LayerParams, error) {
	var target interface{}
	switch kind {
	case EntryLayer:
		target = &EntryParams{}
	case DenseLayer:
		target = &DenseParams{Units: 1, Activation: Linear}
	case BatchNormalizationLayer:
		p := DefaultBatchNormalization()
		target = &p
	case DropoutLayer:
		target = &DropoutParams{Rate: 0.2}
	case ConcatenateLayer:
		target = &ConcatenateParams{}
	default:
		return nil, fmt.Errorf("unknown layer kind '%s': %w", kind, InvalidParamsErr)
	}
	v, err := decode(string(kind), target, decoder)
	if err != nil {
		return nil, err
	}
	params := v.(LayerParams)
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

// EncodeOptimizer wraps the optimizer params into a spec.
func EncodeOptimizer(p OptimizerParams) (Spec, error) {
	return encode(string(p.Kind()), p)
}

// DecodeOptimizer creates the optimizer params for the given kind, starting from the defaults.
func DecodeOptimizer(kind OptimizerKind, decoder Decoder) (OptimizerParams, error) {
	var target interface{}
	switch kind {
	case Adam:
		p := DefaultAdam()
		target = &p
	case RMSprop:
		p := DefaultRMSprop()
		target = &p
	case SGD:
		p := DefaultSGD()
		target = &p
	default:
		return nil, fmt.Errorf("unknown optimizer '%s': %w", kind, InvalidParamsErr)
	}
	v, err := decode(string(kind), target, decoder)
	if err != nil {
		return nil, err
	}
	params := v.(OptimizerParams)
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

// EncodeCallback wraps the callback params into a spec.
func EncodeCallback(p CallbackParams) (Spec, error) {
	return encode(string(p.Kind()), p)
}

// DecodeCallback creates the callback params for the given kind.
func DecodeCallback(kind CallbackKind, decoder Decoder) (CallbackParams, error) {
	var target interface{}
	switch kind {
	case EarlyStopping:
		target = &EarlyStoppingParams{}
	default:
		return nil, fmt.Errorf("unknown callback '%s': %w", kind, InvalidParamsErr)
	}
	v, err := decode(string(kind), target, decoder)
	if err != nil {
		return nil, err
	}
	params := v.(CallbackParams)
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}
