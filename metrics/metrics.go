package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for pipeline activity.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	stageDuration     *prometheus.HistogramVec
	qualityIterations *prometheus.HistogramVec
	outputBytes       *prometheus.HistogramVec
}

var (
	defaultOnce sync.Once
	shared      *Metrics
)

// Default returns the instance registered with the global registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		shared = MustNew(prometheus.DefaultRegisterer)
	})
	return shared
}

// MustNew registers a fresh set of collectors with reg and panics on conflict.
func MustNew(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imagerelay",
			Name:      "requests_total",
			Help:      "Pipeline requests by route and outcome.",
		}, []string{"route", "outcome"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "imagerelay",
			Name:      "request_duration_seconds",
			Help:      "End-to-end pipeline duration.",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"route"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "imagerelay",
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Time spent per pipeline stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage", "status"}),
		qualityIterations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "imagerelay",
			Subsystem: "encoder",
			Name:      "quality_search_iterations",
			Help:      "JPEG encodes needed per variant.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}, []string{"variant"}),
		outputBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "imagerelay",
			Subsystem: "encoder",
			Name:      "output_bytes",
			Help:      "Encoded variant size.",
			Buckets:   prometheus.ExponentialBuckets(16<<10, 2, 8),
		}, []string{"variant"}),
	}
	reg.MustRegister(m.requests, m.requestDuration, m.stageDuration, m.qualityIterations, m.outputBytes)
	return m
}

func (m *Metrics) ObserveRequest(route, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, outcome).Inc()
	m.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) ObserveStage(stage, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

func (m *Metrics) ObserveVariant(variant string, iterations, size int) {
	if m == nil {
		return
	}
	m.qualityIterations.WithLabelValues(variant).Observe(float64(iterations))
	m.outputBytes.WithLabelValues(variant).Observe(float64(size))
}
