package server

import (
	"encoding/json"

	"github.com/drakos74/free-model/internal/assembly"
	"github.com/drakos74/free-model/internal/framework"
	"github.com/drakos74/free-model/internal/model"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type SessionResponse struct {
	ID string `json:"id"`
}

type NameRequest struct {
	Name string `json:"name"`
}

type BindRequest struct {
	Side    model.Side `json:"side"`
	Layer   string     `json:"layer"`
	Columns []string   `json:"columns"`
}

type SplitRequest struct {
	TestSize float64 `json:"test_size"`
}

type DataResponse struct {
	Columns []string            `json:"columns"`
	Rows    int                 `json:"rows"`
	Inputs  map[string][]string `json:"inputs"`
	Outputs map[string][]string `json:"outputs"`
}

// LayerRequest adds a layer, the params are decoded according to the kind.
type LayerRequest struct {
	Name      string          `json:"name"`
	Kind      model.LayerKind `json:"kind"`
	Params    json.RawMessage `json:"params,omitempty"`
	ConnectTo []string        `json:"connect_to,omitempty"`
}

type OutputsRequest struct {
	Outputs []string `json:"outputs"`
}

type LossRequest struct {
	Layer string         `json:"layer"`
	Loss  model.LossKind `json:"loss"`
}

type MetricRequest struct {
	Layer  string           `json:"layer"`
	Metric model.MetricKind `json:"metric"`
}

type FitRequest struct {
	BatchSize       int     `json:"batch_size"`
	Epochs          int     `json:"epochs"`
	ValidationSplit float64 `json:"validation_split"`
}

type BatchRequest struct {
	BatchSize int `json:"batch_size"`
}

type ModelResponse struct {
	Name         string                        `json:"name"`
	State        string                        `json:"state"`
	Compiled     bool                          `json:"compiled"`
	Layers       []string                      `json:"layers"`
	Inputs       []string                      `json:"inputs"`
	Outputs      []string                      `json:"outputs"`
	InputShapes  map[string]int                `json:"input_shapes"`
	OutputShapes map[string]int                `json:"output_shapes"`
	Losses       map[string]model.LossKind     `json:"losses"`
	Metrics      map[string][]model.MetricKind `json:"metrics"`
	Summary      []assembly.LayerSummary       `json:"summary,omitempty"`
}

func newModelResponse(s *assembly.Service) ModelResponse {
	summary, _ := s.Summary()
	return ModelResponse{
		Name:         s.Name(),
		State:        s.State().String(),
		Compiled:     s.Compiled(),
		Layers:       s.Layers(),
		Inputs:       s.InputLayers(),
		Outputs:      s.OutputLayers(),
		InputShapes:  s.InputShapes(),
		OutputShapes: s.OutputShapes(),
		Losses:       s.Losses(),
		Metrics:      s.Metrics(),
		Summary:      summary,
	}
}

type HistoryResponse struct {
	History framework.History `json:"history"`
}

type PredictionResponse struct {
	Predictions map[string][][]float64 `json:"predictions"`
}

func newPredictionResponse(b framework.Batch) PredictionResponse {
	predictions := make(map[string][][]float64, len(b))
	for name, m := range b {
		r, _ := m.Dims()
		rows := make([][]float64, r)
		for i := range rows {
			rows[i] = append([]float64{}, m.RawRowView(i)...)
		}
		predictions[name] = rows
	}
	return PredictionResponse{Predictions: predictions}
}
