package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SearchMetrics holds the Prometheus metrics of a tuning run. It satisfies
// search.Observer and is safe for concurrent use.
type SearchMetrics struct {
	// Search space metrics
	RuleApplicationsTotal *prometheus.CounterVec
	SketchesTotal         prometheus.Counter
	SketchDepth           prometheus.Histogram
	MutationsTotal        *prometheus.CounterVec

	// Tuner metrics
	GenerationsTotal prometheus.Counter
	BestCost         prometheus.Gauge

	// Cost cache metrics
	CostCacheHitRate prometheus.Gauge
}

// NewSearchMetrics registers the search metrics on reg. Passing nil
// registers on the default registry.
func NewSearchMetrics(reg prometheus.Registerer) *SearchMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &SearchMetrics{
		RuleApplicationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autotune_rule_applications_total",
				Help: "Total number of schedule rewrites applied, by rule",
			},
			[]string{"rule"},
		),

		SketchesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "autotune_sketches_total",
				Help: "Total number of initial sketches built",
			},
		),

		SketchDepth: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "autotune_sketch_depth",
				Help:    "Number of rewrites composing each initial sketch",
				Buckets: prometheus.LinearBuckets(0, 1, 10),
			},
		),

		MutationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "autotune_mutations_total",
				Help: "Total number of schedule mutations, by outcome",
			},
			[]string{"outcome"},
		),

		GenerationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "autotune_generations_total",
				Help: "Total number of evolutionary generations completed",
			},
		),

		BestCost: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "autotune_best_cost",
				Help: "Predicted cost of the best schedule found so far",
			},
		),

		CostCacheHitRate: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "autotune_cost_cache_hit_rate",
				Help: "Fraction of cost estimates served from the cache",
			},
		),
	}
}

// RuleApplied records one applied rewrite
func (m *SearchMetrics) RuleApplied(rule string) {
	m.RuleApplicationsTotal.WithLabelValues(rule).Inc()
}

// SketchBuilt records a finished initial sketch
func (m *SearchMetrics) SketchBuilt(depth int) {
	m.SketchesTotal.Inc()
	m.SketchDepth.Observe(float64(depth))
}

// Mutated records a mutation outcome
func (m *SearchMetrics) Mutated(outcome string) {
	m.MutationsTotal.WithLabelValues(outcome).Inc()
}

// RecordGeneration records a completed generation and its best cost
func (m *SearchMetrics) RecordGeneration(bestCost float64) {
	m.GenerationsTotal.Inc()
	m.BestCost.Set(bestCost)
}

// RecordCacheHitRate records the cost cache hit rate
func (m *SearchMetrics) RecordCacheHitRate(rate float64) {
	m.CostCacheHitRate.Set(rate)
}
