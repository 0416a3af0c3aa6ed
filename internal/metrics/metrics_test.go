package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/drakos74/free-model/internal/framework"
	"github.com/drakos74/free-model/internal/observe"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Events(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	bus := observe.NewBus()
	m.Subscribe(bus)
	bus.Notify(observe.Event{Kind: observe.LayerAdded})
	bus.Notify(observe.Event{Kind: observe.LayerAdded})
	bus.Notify(observe.Event{Kind: observe.ModelCompiled})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.prometheus.Events.WithLabelValues("layer_added")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.prometheus.Events.WithLabelValues("model_compiled")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.prometheus.Events.WithLabelValues("model_trained")))
}

func TestMetrics_Trained(t *testing.T) {
	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	m.Trained("net", 2*time.Second, framework.History{
		"loss":     {3, 2, 1},
		"val_loss": {4, 3},
		"empty":    {},
	})
	m.Sessions(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.prometheus.Loss.WithLabelValues("net", "loss")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.prometheus.Loss.WithLabelValues("net", "val_loss")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.prometheus.Sessions))
	assert.Equal(t, 1, testutil.CollectAndCount(m.prometheus.Training))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "model_training_seconds_count"))
	assert.True(t, strings.Contains(rec.Body.String(), `model_final_loss{key="loss",model="net"} 1`))
}

func TestMetrics_DuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := New(registry)
	require.NoError(t, err)
	_, err = New(registry)
	assert.Error(t, err)
}
