package model

import "errors"

var (
	DuplicateNameErr           = errors.New("duplicate layer name")
	UnknownLayerErr            = errors.New("unknown layer")
	InsufficientConnectionsErr = errors.New("insufficient connections")
	ValidateShapeErr           = errors.New("invalid shape")
	LoadErr                    = errors.New("could not load model")
	NotCompiledErr             = errors.New("model is not compiled")
	CapacityExceededErr        = errors.New("layer capacity exceeded")
	NoModelErr                 = errors.New("no model")
	NoOptimizerErr             = errors.New("no optimizer selected")
	MissingLossErr             = errors.New("missing loss")
	InvalidParamsErr           = errors.New("invalid parameters")
	InvalidNameErr             = errors.New("invalid name")
)
