// Package metrics holds the Prometheus collectors for prediction traffic.
// Collectors never carry ride attributes as labels.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Predictions    *prometheus.CounterVec
	Failures       *prometheus.CounterVec
	Duration       *prometheus.HistogramVec
	Probability    prometheus.Histogram
	ModelAvailable prometheus.Gauge
	QueuePending   prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New registers every collector on reg. Pass prometheus.NewRegistry() in tests.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		Predictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rideguard_predictions_total",
				Help: "Predictions served, by verdict and source",
			},
			[]string{"verdict", "source"},
		),
		Failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rideguard_prediction_failures_total",
				Help: "Failed prediction attempts, by error kind",
			},
			[]string{"kind", "source"},
		),
		Duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rideguard_prediction_duration_seconds",
				Help:    "Time spent inside the inference service",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"source"},
		),
		Probability: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rideguard_cancellation_probability",
				Help:    "Distribution of predicted cancellation probabilities",
				Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
			},
		),
		ModelAvailable: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rideguard_model_available",
			Help: "1 when the pipeline loaded at startup, 0 when degraded",
		}),
		QueuePending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rideguard_queue_pending",
			Help: "Messages waiting in the JetStream work queue",
		}),
		gatherer: reg,
	}

	reg.MustRegister(
		m.Predictions,
		m.Failures,
		m.Duration,
		m.Probability,
		m.ModelAvailable,
		m.QueuePending,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
