// Package metrics exposes Prometheus collectors for the transcription server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voicescribe"

// Metrics owns a registry and the collectors recorded by the HTTP handler.
// Each instance has its own registry so handlers built in tests do not
// collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	uploadBytes     prometheus.Histogram
	inFlight        prometheus.Gauge
	recognizerTotal *prometheus.CounterVec
}

// New creates a Metrics with the Go runtime and process collectors attached.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transcribe_requests_total",
				Help:      "Total number of transcription requests by HTTP status",
			},
			[]string{"status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "transcribe_duration_seconds",
				Help:      "Histogram of transcription request duration in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"status"},
		),
		uploadBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upload_bytes",
				Help:      "Size of accepted audio uploads in bytes",
				Buckets:   prometheus.ExponentialBuckets(16*1024, 4, 7), // 16KiB .. 64MiB
			},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "transcriptions_in_flight",
				Help:      "Number of transcriptions currently holding a worker slot",
			},
		),
		recognizerTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recognizer_calls_total",
				Help:      "Total number of recognizer calls by backend and outcome",
			},
			[]string{"backend", "outcome"}, // outcome: success, client_error, error
		),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.uploadBytes,
		m.inFlight,
		m.recognizerTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// ObserveRequest records one finished transcription request.
func (m *Metrics) ObserveRequest(status string, d time.Duration) {
	m.requestsTotal.WithLabelValues(status).Inc()
	m.requestDuration.WithLabelValues(status).Observe(d.Seconds())
}

// ObserveUpload records the size of an accepted upload.
func (m *Metrics) ObserveUpload(n int) {
	m.uploadBytes.Observe(float64(n))
}

// ObserveRecognizer records the outcome of a recognizer call.
func (m *Metrics) ObserveRecognizer(backend, outcome string) {
	m.recognizerTotal.WithLabelValues(backend, outcome).Inc()
}

// TrackInFlight increments the in-flight gauge and returns a func that
// decrements it.
func (m *Metrics) TrackInFlight() func() {
	m.inFlight.Inc()
	return m.inFlight.Dec
}
