// Package metrics exports per-generation GA statistics to Prometheus.
package metrics

import (
	"context"
	"math"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"genetrader/internal/model"
)

const namespace = "genetrader"

// Collector observes generations and keeps gauges labelled by run id. It
// owns its registry so several collectors can coexist in one process.
type Collector struct {
	registry *prometheus.Registry

	generations    *prometheus.CounterVec
	averageFitness *prometheus.GaugeVec
	bestFitness    *prometheus.GaugeVec
	validCount     *prometheus.GaugeVec
	species        *prometheus.GaugeVec
	mutationRate   *prometheus.GaugeVec
	selections     *prometheus.CounterVec
	evaluation     *prometheus.HistogramVec
}

func NewCollector() *Collector {
	labels := []string{"run_id"}
	c := &Collector{
		registry: prometheus.NewRegistry(),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "generations_total",
			Help: "Generations completed.",
		}, labels),
		averageFitness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "average_fitness",
			Help: "Mean fitness over valid individuals of the last generation.",
		}, labels),
		bestFitness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "best_fitness",
			Help: "Best fitness of the last generation.",
		}, labels),
		validCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "valid_individuals",
			Help: "Individuals with a finite fitness in the last generation.",
		}, labels),
		species: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "species",
			Help: "Fitness clusters found by speciation.",
		}, labels),
		mutationRate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "mutation_rate",
			Help: "Mutation rate used by the last generation.",
		}, labels),
		selections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "selections_total",
			Help: "Selection operator draws by name.",
		}, []string{"run_id", "selector"}),
		evaluation: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "evaluation_seconds",
			Help:    "Wall time of population evaluation.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}, labels),
	}
	c.registry.MustRegister(
		c.generations,
		c.averageFitness,
		c.bestFitness,
		c.validCount,
		c.species,
		c.mutationRate,
		c.selections,
		c.evaluation,
	)
	return c
}

func (c *Collector) ObserveGeneration(_ context.Context, d model.GenerationDiagnostics) error {
	run := prometheus.Labels{"run_id": d.RunID}
	c.generations.With(run).Inc()
	c.averageFitness.With(run).Set(d.AverageFitness)
	best := float64(d.BestFitness)
	if math.IsNaN(best) {
		best = math.Inf(-1)
	}
	c.bestFitness.With(run).Set(best)
	c.validCount.With(run).Set(float64(d.ValidCount))
	c.species.With(run).Set(float64(d.SpeciesCount))
	c.mutationRate.With(run).Set(d.MutationRate)
	if d.Selection != "" {
		c.selections.With(prometheus.Labels{"run_id": d.RunID, "selector": d.Selection}).Inc()
	}
	c.evaluation.With(run).Observe(d.EvaluationSeconds)
	return nil
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
