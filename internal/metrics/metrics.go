package metrics

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/drakos74/free-model/internal/framework"
	"github.com/drakos74/free-model/internal/observe"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics tracks the model events and training runs.
type Metrics struct {
	mutex      *sync.RWMutex
	prometheus Prometheus
	handler    http.Handler
}

// New creates the metrics and registers them on the given registry.
func New(registry *prometheus.Registry) (*Metrics, error) {
	p := NewPrometheusMetrics()
	for _, c := range p.collectors() {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("could not register metrics: %w", err)
		}
	}
	return &Metrics{
		mutex:      new(sync.RWMutex),
		prometheus: p,
		handler:    promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, nil
}

// Handler serves the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return m.handler
}

// Increment counts an event of the given kind.
func (m *Metrics) Increment(kind observe.Kind) {
	m.prometheus.Events.WithLabelValues(kind.String()).Inc()
}

// Subscribe counts all events of the given bus.
func (m *Metrics) Subscribe(bus *observe.Bus) {
	bus.SubscribeAll(func(e observe.Event) {
		m.Increment(e.Kind)
	})
}

// Trained records the duration and the final values of a training run.
func (m *Metrics) Trained(model string, duration time.Duration, history framework.History) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.prometheus.Training.WithLabelValues(model).Observe(duration.Seconds())
	for k, values := range history {
		if len(values) == 0 {
			continue
		}
		m.prometheus.Loss.WithLabelValues(model, k).Set(values[len(values)-1])
	}
}

// Sessions sets the number of open sessions.
func (m *Metrics) Sessions(count int) {
	m.prometheus.Sessions.Set(float64(count))
}
