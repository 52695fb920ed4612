package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the importer.
// Tracks per-record outcomes, data-quality warnings and batch durations.
// A nil *Metrics records nothing.
type Metrics struct {
	Records           *prometheus.CounterVec
	Warnings          *prometheus.CounterVec
	BatchDuration     *prometheus.HistogramVec
	BackfillOutcomes  *prometheus.CounterVec
	EnrichmentFetched prometheus.Counter
}

// New creates a new Metrics instance with all importer metrics registered.
func New() *Metrics {
	return &Metrics{
		Records: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "litgraph_import_records_total",
			Help: "Harvested records by outcome (created, updated, skipped)",
		}, []string{"source", "outcome"}),
		Warnings: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "litgraph_import_warnings_total",
			Help: "Data-quality warnings raised while importing",
		}, []string{"source", "reason"}),
		BatchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "litgraph_import_batch_duration_seconds",
			Help:    "Duration of one import batch transaction",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		BackfillOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "litgraph_bibliography_backfill_total",
			Help: "Bibliography backfill records by outcome",
		}, []string{"outcome"}),
		EnrichmentFetched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "litgraph_enrichment_records_fetched_total",
			Help: "Metadata records fetched for enrichment",
		}),
	}
}

// AddRecords records n records of source ending with outcome.
func (m *Metrics) AddRecords(source, outcome string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Records.WithLabelValues(source, outcome).Add(float64(n))
}

func (m *Metrics) IncWarning(source, reason string) {
	if m == nil {
		return
	}
	m.Warnings.WithLabelValues(source, reason).Inc()
}

// ObserveBatch records the duration of one batch.
// Call with time.Now() at the start of the batch.
func (m *Metrics) ObserveBatch(source string, start time.Time) {
	if m == nil {
		return
	}
	m.BatchDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncBackfill(outcome string) {
	if m == nil {
		return
	}
	m.BackfillOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AddFetched(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EnrichmentFetched.Add(float64(n))
}
