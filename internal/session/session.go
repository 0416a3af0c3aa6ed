// Package session keeps the open model assembly sessions.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/drakos74/free-model/internal/assembly"
	"github.com/drakos74/free-model/internal/data"
	"github.com/drakos74/free-model/internal/framework"
	"github.com/drakos74/free-model/internal/metrics"
	"github.com/drakos74/free-model/internal/model"
	"github.com/drakos74/free-model/internal/observe"
	"github.com/drakos74/free-model/internal/storage"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	NotFoundErr = errors.New("session not found")
)

// Session owns one model assembly and the data bound to it.
// All operations of a session are serialised.
type Session struct {
	ID      string
	Created time.Time

	mutex   *sync.Mutex
	service *assembly.Service
	data    *data.Dataset
	store   storage.Persistence
	metrics *metrics.Metrics
}

// Do runs the given function with exclusive access to the session.
func (s *Session) Do(exec func(service *assembly.Service, dataset *data.Dataset) error) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return exec(s.service, s.data)
}

// Bind binds the given columns to a layer if the layer still has the capacity for them.
func (s *Session) Bind(side model.Side, layer string, columns ...string) error {
	return s.Do(func(service *assembly.Service, dataset *data.Dataset) error {
		return Bind(service, dataset, side, layer, columns...)
	})
}

// Bind checks the layer capacity before binding the columns to the dataset.
func Bind(service *assembly.Service, dataset *data.Dataset, side model.Side, layer string, columns ...string) error {
	ok, err := service.CheckLayerCapacity(side, layer, len(columns))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("layer '%s' cannot take %d more columns: %w", layer, len(columns), model.CapacityExceededErr)
	}
	return dataset.Bind(side, layer, columns...)
}

// Fit trains the model, records the run and stores the history.
func (s *Session) Fit(ctx context.Context, batchSize, epochs int, validationSplit float64) (framework.History, error) {
	var history framework.History
	err := s.Do(func(service *assembly.Service, dataset *data.Dataset) error {
		start := time.Now()
		h, err := service.FitModel(ctx, batchSize, epochs, validationSplit)
		if err != nil {
			return err
		}
		history = h
		if s.metrics != nil {
			s.metrics.Trained(service.Name(), time.Since(start), h)
		}
		k := storage.Key{Model: service.Name(), Label: storage.HistoryLabel}
		if err := s.store.Store(k, h); err != nil {
			log.Error().Err(err).Str("session", s.ID).Str("model", service.Name()).Msg("could not store history")
		}
		return nil
	})
	return history, err
}

// History loads the stored training history of the given model.
func (s *Session) History(name string) (framework.History, error) {
	var h framework.History
	if err := s.store.Load(storage.Key{Model: name, Label: storage.HistoryLabel}, &h); err != nil {
		return nil, err
	}
	return h, nil
}

// Save stores the current model.
func (s *Session) Save() (string, error) {
	var name string
	err := s.Do(func(service *assembly.Service, dataset *data.Dataset) error {
		var buf bytes.Buffer
		if err := service.SaveModel(&buf); err != nil {
			return err
		}
		name = service.Name()
		return s.store.Store(storage.Key{Model: name, Label: storage.ModelLabel}, json.RawMessage(buf.Bytes()))
	})
	return name, err
}

// Restore replaces the current model with the stored one.
func (s *Session) Restore(name string) error {
	var raw json.RawMessage
	if err := s.store.Load(storage.Key{Model: name, Label: storage.ModelLabel}, &raw); err != nil {
		return fmt.Errorf("could not restore model '%s': %w", name, err)
	}
	return s.Do(func(service *assembly.Service, dataset *data.Dataset) error {
		return service.UploadModel(bytes.NewReader(raw))
	})
}

// Manager creates and tracks the sessions.
type Manager struct {
	mutex    *sync.RWMutex
	sessions map[string]*Session
	backend  func() framework.Backend
	store    storage.Persistence
	metrics  *metrics.Metrics
}

// NewManager creates a session manager.
// Every session gets its own backend and shares the model storage.
func NewManager(backend func() framework.Backend, shard storage.Shard, m *metrics.Metrics) (*Manager, error) {
	store, err := shard("models")
	if err != nil {
		return nil, fmt.Errorf("could not create model storage: %w", err)
	}
	return &Manager{
		mutex:    new(sync.RWMutex),
		sessions: make(map[string]*Session),
		backend:  backend,
		store:    store,
		metrics:  m,
	}, nil
}

// Create opens a new session.
func (m *Manager) Create() *Session {
	bus := observe.NewBus()
	if m.metrics != nil {
		m.metrics.Subscribe(bus)
	}
	dataset := data.New()
	s := &Session{
		ID:      uuid.New().String(),
		Created: time.Now(),
		mutex:   new(sync.Mutex),
		service: assembly.New(m.backend(), dataset, bus),
		data:    dataset,
		store:   m.store,
		metrics: m.metrics,
	}
	m.mutex.Lock()
	m.sessions[s.ID] = s
	count := len(m.sessions)
	m.mutex.Unlock()
	m.track(count)
	log.Info().Str("session", s.ID).Int("sessions", count).Msg("session created")
	return s
}

// Get returns the session for the given id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session '%s': %w", id, NotFoundErr)
	}
	return s, nil
}

// Delete closes the given session.
func (m *Manager) Delete(id string) error {
	m.mutex.Lock()
	if _, ok := m.sessions[id]; !ok {
		m.mutex.Unlock()
		return fmt.Errorf("session '%s': %w", id, NotFoundErr)
	}
	delete(m.sessions, id)
	count := len(m.sessions)
	m.mutex.Unlock()
	m.track(count)
	log.Info().Str("session", id).Int("sessions", count).Msg("session closed")
	return nil
}

// Size returns the number of open sessions.
func (m *Manager) Size() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.sessions)
}

func (m *Manager) track(count int) {
	if m.metrics != nil {
		m.metrics.Sessions(count)
	}
}
