package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the engine.
type Metrics struct {
	Registry       *prometheus.Registry
	PagesTotal     *prometheus.CounterVec
	ItemsExtracted prometheus.Counter
	ItemsProcessed prometheus.Counter
	RecordsDropped prometheus.Counter
	ErrorsTotal    *prometheus.CounterVec
	RunDuration    prometheus.Histogram
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webharvest_pages_total",
			Help: "Total pages attempted, by outcome.",
		},
		[]string{"outcome"},
	)
	itemsExtracted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webharvest_items_extracted_total",
			Help: "Total raw records extracted from pages.",
		},
	)
	itemsProcessed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webharvest_items_processed_total",
			Help: "Total records emitted by the processing pipeline.",
		},
	)
	recordsDropped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webharvest_records_dropped_total",
			Help: "Total records discarded by required-field validation.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webharvest_errors_total",
			Help: "Total fetch errors by category.",
		},
		[]string{"error_type"},
	)
	runDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "webharvest_run_duration_seconds",
			Help:    "Wall time of completed runs.",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		},
	)

	registry.MustRegister(pages, itemsExtracted, itemsProcessed, recordsDropped, errorsTotal, runDuration)

	return &Metrics{
		Registry:       registry,
		PagesTotal:     pages,
		ItemsExtracted: itemsExtracted,
		ItemsProcessed: itemsProcessed,
		RecordsDropped: recordsDropped,
		ErrorsTotal:    errorsTotal,
		RunDuration:    runDuration,
	}
}

// AddPages adds to the page counter for an outcome label.
func (m *Metrics) AddPages(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.PagesTotal.WithLabelValues(outcome).Add(float64(n))
}

// AddItems records extraction and processing volume.
func (m *Metrics) AddItems(extracted, processed, dropped int) {
	if m == nil {
		return
	}
	m.ItemsExtracted.Add(float64(extracted))
	m.ItemsProcessed.Add(float64(processed))
	m.RecordsDropped.Add(float64(dropped))
}

// AddError adds to the error counter for a category label.
func (m *Metrics) AddError(category string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.ErrorsTotal.WithLabelValues(category).Add(float64(n))
}

// ObserveRun records a completed run's wall time.
func (m *Metrics) ObserveRun(d time.Duration) {
	if m == nil {
		return
	}
	m.RunDuration.Observe(d.Seconds())
}
