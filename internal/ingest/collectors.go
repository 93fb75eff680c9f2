package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Row outcomes reported to Prometheus.
const (
	OutcomeInserted  = "inserted"
	OutcomeDuplicate = "duplicate"
	OutcomeError     = "error"
	OutcomeNotFound  = "not_found"
)

// Collectors holds the ingester's Prometheus metrics. It also implements
// spatial.Observer so the resolver can report lookup tiers.
type Collectors struct {
	rows          *prometheus.CounterVec
	batches       prometheus.Counter
	batchDuration prometheus.Histogram
	lookups       *prometheus.CounterVec
}

// NewCollectors creates and registers the collectors on reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aggrada_ingest_rows_total",
			Help: "Rows handled by the ingester, by outcome.",
		}, []string{"outcome"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aggrada_ingest_batches_total",
			Help: "Batches fully processed.",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "aggrada_ingest_batch_duration_seconds",
			Help:    "Wall time spent per batch.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aggrada_spatial_cache_lookups_total",
			Help: "Spatial resolutions, by the tier that answered.",
		}, []string{"result"}),
	}
	reg.MustRegister(c.rows, c.batches, c.batchDuration, c.lookups)
	return c
}

// ObserveLookup implements spatial.Observer.
func (c *Collectors) ObserveLookup(tier string) {
	c.lookups.WithLabelValues(tier).Inc()
}

func (c *Collectors) observeBatch(b BatchMetrics) {
	c.batches.Inc()
	c.batchDuration.Observe(b.Duration.Seconds())
	c.rows.WithLabelValues(OutcomeInserted).Add(float64(b.InsertedRows))
	c.rows.WithLabelValues(OutcomeDuplicate).Add(float64(b.DuplicateRows))
	c.rows.WithLabelValues(OutcomeError).Add(float64(b.ErrorRows))
	c.rows.WithLabelValues(OutcomeNotFound).Add(float64(b.NotFoundRows))
}
