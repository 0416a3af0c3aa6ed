package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "model"

type Prometheus struct {
	Events   *prometheus.CounterVec
	Training *prometheus.HistogramVec
	Loss     *prometheus.GaugeVec
	Sessions prometheus.Gauge
}

func NewPrometheusMetrics() Prometheus {
	return Prometheus{
		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "model events per kind",
			}, []string{"event"}),
		Training: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "training_seconds",
				Help:      "duration of the training runs",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
			}, []string{"model"}),
		Loss: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "final_loss",
				Help:      "last epoch value of every loss and metric",
			}, []string{"model", "key"}),
		Sessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions",
				Help:      "open sessions",
			}),
	}
}

func (p Prometheus) collectors() []prometheus.Collector {
	return []prometheus.Collector{p.Events, p.Training, p.Loss, p.Sessions}
}
