package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"

	"github.com/drakos74/free-model/internal/assembly"
	"github.com/drakos74/free-model/internal/data"
	"github.com/drakos74/free-model/internal/model"
	"github.com/drakos74/free-model/internal/session"
)

// API exposes the model assembly operations over http.
type API struct {
	sessions *session.Manager
	debug    bool
}

func NewAPI(sessions *session.Manager, debug bool) *API {
	return &API{
		sessions: sessions,
		debug:    debug,
	}
}

// Routes lists all the api routes.
func (a *API) Routes() []Route {
	return []Route{
		Live(),
		{Action: Api, Method: POST, Path: "session", Exec: a.createSession},
		{Action: Api, Method: POST, Path: "session/delete", Exec: a.deleteSession},
		{Action: Api, Method: POST, Path: "data/upload", Exec: a.upload},
		{Action: Api, Method: GET, Path: "data", Exec: a.data},
		{Action: Api, Method: GET, Path: "data/stats", Exec: a.stats},
		{Action: Api, Method: POST, Path: "data/bind", Exec: a.bind},
		{Action: Api, Method: POST, Path: "data/unbind", Exec: a.unbind},
		{Action: Api, Method: POST, Path: "data/split", Exec: a.split},
		{Action: Api, Method: GET, Path: "model", Exec: a.model},
		{Action: Api, Method: POST, Path: "model/create", Exec: a.createModel},
		{Action: Api, Method: POST, Path: "model/upload", Exec: a.uploadModel},
		{Action: Api, Method: GET, Path: "model/download", Exec: a.downloadModel},
		{Action: Api, Method: POST, Path: "model/save", Exec: a.saveModel},
		{Action: Api, Method: POST, Path: "model/load", Exec: a.loadModel},
		{Action: Api, Method: POST, Path: "model/refresh", Exec: a.refresh},
		{Action: Api, Method: POST, Path: "model/layer", Exec: a.addLayer},
		{Action: Api, Method: POST, Path: "model/outputs", Exec: a.outputs},
		{Action: Api, Method: POST, Path: "model/optimizer", Exec: a.optimizer},
		{Action: Api, Method: POST, Path: "model/loss", Exec: a.loss},
		{Action: Api, Method: POST, Path: "model/metric", Exec: a.metric},
		{Action: Api, Method: POST, Path: "model/callback", Exec: a.callback},
		{Action: Api, Method: POST, Path: "model/compile", Exec: a.compile},
		{Action: Api, Method: POST, Path: "model/fit", Exec: a.fit},
		{Action: Api, Method: POST, Path: "model/evaluate", Exec: a.evaluate},
		{Action: Api, Method: POST, Path: "model/predict", Exec: a.predict},
		{Action: Api, Method: GET, Path: "model/history", Exec: a.history},
	}
}

func (a *API) session(r *http.Request) (*session.Session, error) {
	id := r.URL.Query().Get("session")
	if id == "" {
		return nil, fmt.Errorf("no session given: %w", BadRequestErr)
	}
	return a.sessions.Get(id)
}

func ok(v interface{}) ([]byte, int, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, 0, fmt.Errorf("could not encode response: %w", err)
	}
	return b, http.StatusOK, nil
}

// do runs the given function on the request session and responds with the model state.
func (a *API) do(r *http.Request, exec func(service *assembly.Service, dataset *data.Dataset) error) ([]byte, int, error) {
	s, err := a.session(r)
	if err != nil {
		return nil, 0, err
	}
	var response ModelResponse
	err = s.Do(func(service *assembly.Service, dataset *data.Dataset) error {
		if err := exec(service, dataset); err != nil {
			return err
		}
		response = newModelResponse(service)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return ok(response)
}

func (a *API) createSession(r *http.Request) ([]byte, int, error) {
	s := a.sessions.Create()
	return ok(SessionResponse{ID: s.ID})
}

func (a *API) deleteSession(r *http.Request) ([]byte, int, error) {
	s, err := a.session(r)
	if err != nil {
		return nil, 0, err
	}
	if err := a.sessions.Delete(s.ID); err != nil {
		return nil, 0, err
	}
	return ok(SessionResponse{ID: s.ID})
}

func (a *API) upload(r *http.Request) ([]byte, int, error) {
	s, err := a.session(r)
	if err != nil {
		return nil, 0, err
	}
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("could not read data: %w", err)
	}
	var response DataResponse
	err = s.Do(func(service *assembly.Service, dataset *data.Dataset) error {
		if err := dataset.Load(r.Context(), bytes.NewReader(body)); err != nil {
			return err
		}
		response = newDataResponse(dataset)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return ok(response)
}

func newDataResponse(d *data.Dataset) DataResponse {
	return DataResponse{
		Columns: d.Columns(),
		Rows:    d.Rows(),
		Inputs:  d.InputColumns(),
		Outputs: d.OutputColumns(),
	}
}

func (a *API) data(r *http.Request) ([]byte, int, error) {
	return a.dataset(r, func(d *data.Dataset) (interface{}, error) {
		return newDataResponse(d), nil
	})
}

func (a *API) stats(r *http.Request) ([]byte, int, error) {
	return a.dataset(r, func(d *data.Dataset) (interface{}, error) {
		if !d.Loaded() {
			return nil, data.NoDataErr
		}
		return d.Stats(), nil
	})
}

func (a *API) dataset(r *http.Request, exec func(d *data.Dataset) (interface{}, error)) ([]byte, int, error) {
	s, err := a.session(r)
	if err != nil {
		return nil, 0, err
	}
	var response interface{}
	err = s.Do(func(service *assembly.Service, dataset *data.Dataset) error {
		v, err := exec(dataset)
		response = v
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return ok(response)
}

func (a *API) bind(r *http.Request) ([]byte, int, error) {
	var request BindRequest
	if err := JsonRead(r, a.debug, &request); err != nil {
		return nil, 0, err
	}
	s, err := a.session(r)
	if err != nil {
		return nil, 0, err
	}
	var response DataResponse
	err = s.Do(func(service *assembly.Service, dataset *data.Dataset) error {
		if err := session.Bind(service, dataset, request.Side, request.Layer, request.Columns...); err != nil {
			return err
		}
		response = newDataResponse(dataset)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return ok(response)
}

func (a *API) unbind(r *http.Request) ([]byte, int, error) {
	var request BindRequest
	if err := JsonRead(r, a.debug, &request); err != nil {
		return nil, 0, err
	}
	return a.dataset(r, func(d *data.Dataset) (interface{}, error) {
		if err := d.Unbind(request.Side, request.Layer); err != nil {
			return nil, err
		}
		return newDataResponse(d), nil
	})
}

func (a *API) split(r *http.Request) ([]byte, int, error) {
	var request SplitRequest
	if err := JsonRead(r, a.debug, &request); err != nil {
		return nil, 0, err
	}
	return a.dataset(r, func(d *data.Dataset) (interface{}, error) {
		if err := d.SetTestSize(request.TestSize); err != nil {
			return nil, err
		}
		return newDataResponse(d), nil
	})
}

func (a *API) model(r *http.Request) ([]byte, int, error) {
	return a.do(r, func(service *assembly.Service, dataset *data.Dataset) error {
		return nil
	})
}

func (a *API) createModel(r *http.Request) ([]byte, int, error) {
	var request NameRequest
	if err := JsonRead(r, a.debug, &request); err != nil {
		return nil, 0, err
	}
	return a.do(r, func(service *assembly.Service, dataset *data.Dataset) error {
		return service.CreateModel(request.Name)
	})
}

func (a *API) uploadModel(r *http.Request) ([]byte, int, error) {
	return a.do(r, func(service *assembly.Service, dataset *data.Dataset) error {
		return service.UploadModel(r.Body)
	})
}

func (a *API) downloadModel(r *http.Request) ([]byte, int, error) {
	s, err := a.session(r)
	if err != nil {
		return nil, 0, err
	}
	var buf bytes.Buffer
	err = s.Do(func(service *assembly.Service, dataset *data.Dataset) error {
		return service.SaveModel(&buf)
	})
	if err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), http.StatusOK, nil
}

func (a *API) saveModel(r *http.Request) ([]byte, int, error) {
	s, err := a.session(r)
	if err != nil {
		return nil, 0, err
	}
	name, err := s.Save()
	if err != nil {
		return nil, 0, err
	}
	return ok(NameRequest{Name: name})
}

func (a *API) loadModel(r *http.Request) ([]byte, int, error) {
	var request NameRequest
	if err := JsonRead(r, a.debug, &request); err != nil {
		return nil, 0, err
	}
	s, err := a.session(r)
	if err != nil {
		return nil, 0, err
	}
	if err := s.Restore(request.Name); err != nil {
		return nil, 0, err
	}
	return a.model(r)
}

func (a *API) refresh(r *http.Request) ([]byte, int, error) {
	return a.do(r, func(service *assembly.Service, dataset *data.Dataset) error {
		return service.RefreshMetadata()
	})
}

func (a *API) addLayer(r *http.Request) ([]byte, int, error) {
	var request LayerRequest
	if err := JsonRead(r, a.debug, &request); err != nil {
		return nil, 0, err
	}
	params, err := model.DecodeLayer(request.Kind, model.JSONDecoder(request.Params))
	if err != nil {
		return nil, 0, err
	}
	return a.do(r, func(service *assembly.Service, dataset *data.Dataset) error {
		return service.AddLayer(request.Name, params, request.ConnectTo...)
	})
}

func (a *API) outputs(r *http.Request) ([]byte, int, error) {
	var request OutputsRequest
	if err := JsonRead(r, a.debug, &request); err != nil {
		return nil, 0, err
	}
	return a.do(r, func(service *assembly.Service, dataset *data.Dataset) error {
		return service.SetModelOutputs(request.Outputs...)
	})
}

func (a *API) optimizer(r *http.Request) ([]byte, int, error) {
	var request model.Spec
	if err := JsonRead(r, a.debug, &request); err != nil {
		return nil, 0, err
	}
	params, err := model.DecodeOptimizer(model.OptimizerKind(request.Kind), model.JSONDecoder(request.Params))
	if err != nil {
		return nil, 0, err
	}
	return a.do(r, func(service *assembly.Service, dataset *data.Dataset) error {
		return service.SelectOptimizer(params)
	})
}

func (a *API) loss(r *http.Request) ([]byte, int, error) {
	var request LossRequest
	if err := JsonRead(r, a.debug, &request); err != nil {
		return nil, 0, err
	}
	return a.do(r, func(service *assembly.Service, dataset *data.Dataset) error {
		return service.AddLoss(request.Layer, request.Loss)
	})
}

func (a *API) metric(r *http.Request) ([]byte, int, error) {
	var request MetricRequest
	if err := JsonRead(r, a.debug, &request); err != nil {
		return nil, 0, err
	}
	return a.do(r, func(service *assembly.Service, dataset *data.Dataset) error {
		return service.AddMetric(request.Layer, request.Metric)
	})
}

func (a *API) callback(r *http.Request) ([]byte, int, error) {
	var request model.Spec
	if err := JsonRead(r, a.debug, &request); err != nil {
		return nil, 0, err
	}
	params, err := model.DecodeCallback(model.CallbackKind(request.Kind), model.JSONDecoder(request.Params))
	if err != nil {
		return nil, 0, err
	}
	return a.do(r, func(service *assembly.Service, dataset *data.Dataset) error {
		return service.AddCallback(params)
	})
}

func (a *API) compile(r *http.Request) ([]byte, int, error) {
	return a.do(r, func(service *assembly.Service, dataset *data.Dataset) error {
		return service.CompileModel()
	})
}

func (a *API) fit(r *http.Request) ([]byte, int, error) {
	var request FitRequest
	if err := JsonRead(r, a.debug, &request); err != nil {
		return nil, 0, err
	}
	s, err := a.session(r)
	if err != nil {
		return nil, 0, err
	}
	history, err := s.Fit(r.Context(), request.BatchSize, request.Epochs, request.ValidationSplit)
	if err != nil {
		return nil, 0, err
	}
	return ok(HistoryResponse{History: history})
}

func (a *API) evaluate(r *http.Request) ([]byte, int, error) {
	var request BatchRequest
	if err := JsonRead(r, a.debug, &request); err != nil {
		return nil, 0, err
	}
	s, err := a.session(r)
	if err != nil {
		return nil, 0, err
	}
	var scores map[string]float64
	err = s.Do(func(service *assembly.Service, dataset *data.Dataset) error {
		scores, err = service.EvaluateModel(request.BatchSize)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return ok(scores)
}

func (a *API) predict(r *http.Request) ([]byte, int, error) {
	var request BatchRequest
	if err := JsonRead(r, a.debug, &request); err != nil {
		return nil, 0, err
	}
	s, err := a.session(r)
	if err != nil {
		return nil, 0, err
	}
	var response PredictionResponse
	err = s.Do(func(service *assembly.Service, dataset *data.Dataset) error {
		predictions, err := service.MakePredictions(request.BatchSize)
		if err != nil {
			return err
		}
		response = newPredictionResponse(predictions)
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return ok(response)
}

// history returns the stored history of the named model, or the last run of the session.
func (a *API) history(r *http.Request) ([]byte, int, error) {
	s, err := a.session(r)
	if err != nil {
		return nil, 0, err
	}
	if name := r.URL.Query().Get("model"); name != "" {
		h, err := s.History(name)
		if err != nil {
			return nil, 0, err
		}
		return ok(HistoryResponse{History: h})
	}
	var response HistoryResponse
	err = s.Do(func(service *assembly.Service, dataset *data.Dataset) error {
		response.History = service.History()
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return ok(response)
}
