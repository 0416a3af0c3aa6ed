package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"net/http"
	"reflect"
	"runtime"
	"time"

	"github.com/drakos74/free-model/internal/data"
	"github.com/drakos74/free-model/internal/model"
	"github.com/drakos74/free-model/internal/session"
	"github.com/drakos74/free-model/internal/storage"
	"github.com/rs/zerolog/log"
)

type Action string

type Method string

const (
	Data Action = "data"
	Api  Action = "api"

	GET  Method = "GET"
	POST Method = "POST"
)

var BadRequestErr = errors.New("bad request")

type Handler func(r *http.Request) ([]byte, int, error)

type Route struct {
	Action Action
	Path   string
	Method Method
	Exec   Handler
}

type Server struct {
	name    string
	port    int
	debug   bool
	routes  []Route
	metrics http.Handler
}

func NewServer(name string, port int) *Server {
	return &Server{
		name:   name,
		port:   port,
		routes: make([]Route, 0),
	}
}

// Debug sets the server to debug mode
func (s *Server) Debug() *Server {
	s.debug = true
	return s
}

// AddRoute adds the given route to the server
func (s *Server) AddRoute(method Method, action Action, path string, exec Handler) *Server {
	s.routes = append(s.routes, Route{
		Action: action,
		Path:   path,
		Method: method,
		Exec:   exec,
	})
	return s
}

// Add adds the given routes to the server
func (s *Server) Add(route ...Route) *Server {
	s.routes = append(s.routes, route...)
	return s
}

// WithMetrics exposes the given handler under '/metrics'.
func (s *Server) WithMetrics(handler http.Handler) *Server {
	s.metrics = handler
	return s
}

func (s *Server) handle(method Method, handler Handler) func(w http.ResponseWriter, r *http.Request) {
	name := runtime.FuncForPC(reflect.ValueOf(handler).Pointer()).Name()
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		if s.debug {
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("handler", name).
				Msg("started execution")
		}
		requestMethod := Method(r.Method)
		switch requestMethod {
		case method:
			b, code, err := handler(r)
			if err != nil {
				s.error(w, err)
			} else if code != http.StatusOK {
				s.code(w, b, code)
			} else {
				s.respond(w, b)
			}
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
		if s.debug {
			log.Debug().
				Str("path", r.URL.Path).
				Float64("duration", time.Since(start).Seconds()).
				Msg("completed execution")
		}
	}
}

// Handler routes the requests to the registered handlers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	for _, route := range s.routes {
		if route.Path != "" {
			mux.HandleFunc(fmt.Sprintf("/%s/%s", route.Action, route.Path), s.handle(route.Method, route.Exec))
		} else {
			mux.HandleFunc(fmt.Sprintf("/%s", route.Action), s.handle(route.Method, route.Exec))
		}
	}
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// Run starts the server
func (s *Server) Run() error {
	log.Warn().Str("server", s.name).Int("port", s.port).Msg("starting server")
	if err := http.ListenAndServe(fmt.Sprintf(":%d", s.port), s.Handler()); err != nil {
		return fmt.Errorf("could not start server: %w", err)
	}
	return nil
}

func (s *Server) code(w http.ResponseWriter, b []byte, code int) {
	w.WriteHeader(code)
	s.respond(w, b)
}

func (s *Server) respond(w http.ResponseWriter, b []byte) {
	_, err := w.Write(b)
	if err != nil {
		log.Error().Err(err).Msg("could not write response")
	}
}

func (s *Server) error(w http.ResponseWriter, err error) {
	code := Status(err)
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Msg("error for http request")
	} else {
		log.Warn().Err(err).Int("code", code).Msg("rejected http request")
	}
	b, _ := json.Marshal(ErrorResponse{Error: err.Error()})
	s.code(w, b, code)
}

// Status maps the error kinds to http status codes.
func Status(err error) int {
	switch {
	case errors.Is(err, model.UnknownLayerErr),
		errors.Is(err, session.NotFoundErr),
		errors.Is(err, storage.NotFoundErr):
		return http.StatusNotFound
	case errors.Is(err, model.DuplicateNameErr):
		return http.StatusConflict
	case errors.Is(err, model.InsufficientConnectionsErr),
		errors.Is(err, model.ValidateShapeErr),
		errors.Is(err, model.LoadErr),
		errors.Is(err, model.NotCompiledErr),
		errors.Is(err, model.CapacityExceededErr),
		errors.Is(err, model.NoModelErr),
		errors.Is(err, model.NoOptimizerErr),
		errors.Is(err, model.MissingLossErr),
		errors.Is(err, model.InvalidParamsErr),
		errors.Is(err, model.InvalidNameErr),
		errors.Is(err, data.NoDataErr),
		errors.Is(err, data.UnknownColumnErr),
		errors.Is(err, data.NonNumericErr),
		errors.Is(err, data.BoundColumnErr),
		errors.Is(err, BadRequestErr):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func Live() Route {
	return Route{
		Action: Data,
		Method: GET,
		Exec: func(r *http.Request) (payload []byte, code int, err error) {
			return []byte{}, 200, nil
		},
	}
}

func JsonRead(r *http.Request, debug bool, v interface{}) error {
	body, err := ioutil.ReadAll(r.Body)
	if err != nil {
		return err
	}
	if debug {
		log.Info().
			Str("url", fmt.Sprintf("%+v", r.URL)).
			Str("request", r.RequestURI).
			Str("remote-address", r.RemoteAddr).
			Str("method", r.Method).
			Str("body", string(body)).
			Msg("received payload")
	}
	if len(body) > 0 {
		err = json.Unmarshal(body, v)
		if err != nil {
			return fmt.Errorf("could not decode request: %s: %w", err.Error(), BadRequestErr)
		}
	}
	return nil
}
