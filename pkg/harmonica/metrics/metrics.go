// Package metrics exposes run counters on a private Prometheus registry.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Sentence outcome labels.
const (
	StatusExplained = "explained"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
)

// Registry holds all Prometheus metrics for a run. A nil *Registry is valid
// and records nothing.
type Registry struct {
	registry *prometheus.Registry

	Sentences   *prometheus.CounterVec
	Samples     prometheus.Counter
	MAE         *prometheus.HistogramVec
	UsedAnchors prometheus.Gauge
	FitSeconds  prometheus.Histogram
}

// New creates the metrics and registers them on a fresh registry.
func New() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		Sentences: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harmonica_sentences_total",
				Help: "Sentences processed by outcome",
			},
			[]string{"status"},
		),

		Samples: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "harmonica_classifier_samples_total",
				Help: "Masked sequences scored by the classifier",
			},
		),

		MAE: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "harmonica_faithfulness_mae",
				Help:    "Per-sentence mean absolute error of the surrogate by radius",
				Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
			},
			[]string{"radius"},
		),

		UsedAnchors: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "harmonica_used_anchors",
				Help: "Anchors with at least one routed sample in the last sentence",
			},
		),

		FitSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harmonica_fit_duration_seconds",
				Help:    "Time spent fitting the per-anchor surrogates of one sentence",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
			},
		),
	}

	r.registry.MustRegister(r.Sentences, r.Samples, r.MAE, r.UsedAnchors, r.FitSeconds)
	return r
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

func (r *Registry) RecordSentence(status string) {
	if r == nil {
		return
	}
	r.Sentences.WithLabelValues(status).Inc()
}

func (r *Registry) RecordSamples(n int) {
	if r == nil {
		return
	}
	r.Samples.Add(float64(n))
}

func (r *Registry) RecordMAE(radius int, mae float64) {
	if r == nil {
		return
	}
	r.MAE.WithLabelValues(strconv.Itoa(radius)).Observe(mae)
}

func (r *Registry) RecordUsedAnchors(n int) {
	if r == nil {
		return
	}
	r.UsedAnchors.Set(float64(n))
}

func (r *Registry) RecordFit(seconds float64) {
	if r == nil {
		return
	}
	r.FitSeconds.Observe(seconds)
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
func (r *Registry) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
