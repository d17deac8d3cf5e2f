package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"laborcond/inference"
)

// Metrics provides observability for model loading, inference and HTTP.
type Metrics struct {
	registry *prometheus.Registry

	// Inference outcomes by kind ("benefit", "wage"), key and outcome
	Predictions *prometheus.CounterVec

	// Inference latency including model resolution
	PredictionLatency *prometheus.HistogramVec

	// Artifact resolutions by cache outcome ("hit", "miss", "error")
	ModelLoads *prometheus.CounterVec

	ModelLoadLatency prometheus.Histogram

	HTTPRequests *prometheus.CounterVec

	HTTPLatency *prometheus.HistogramVec
}

// New registers every metric on a fresh registry together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "laborcond_predictions_total",
			Help: "Total inference requests by kind, key and outcome",
		}, []string{"kind", "key", "outcome"}),

		PredictionLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "laborcond_prediction_duration_seconds",
			Help:    "Duration of inference requests including model resolution",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}, []string{"kind"}),

		ModelLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "laborcond_model_loads_total",
			Help: "Model artifact resolutions by cache outcome",
		}, []string{"result"}),

		ModelLoadLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "laborcond_model_load_duration_seconds",
			Help:    "Duration of model artifact reads from disk",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "laborcond_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),

		HTTPLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "laborcond_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Record implements inference.Recorder.
func (m *Metrics) Record(_ context.Context, e inference.Event) error {
	if m == nil {
		return nil
	}
	outcome := "ok"
	if e.Err != nil {
		outcome = "error"
	}
	m.Predictions.WithLabelValues(e.Kind, e.Key, outcome).Inc()
	m.PredictionLatency.WithLabelValues(e.Kind).Observe(e.Elapsed.Seconds())
	return nil
}

// ObserveModelLoad has the shape of ml.LoadObserver.
func (m *Metrics) ObserveModelLoad(_ string, cached bool, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	switch {
	case err != nil:
		m.ModelLoads.WithLabelValues("error").Inc()
	case cached:
		m.ModelLoads.WithLabelValues("hit").Inc()
	default:
		m.ModelLoads.WithLabelValues("miss").Inc()
		m.ModelLoadLatency.Observe(elapsed.Seconds())
	}
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPLatency.WithLabelValues(route).Observe(d.Seconds())
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the private registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
