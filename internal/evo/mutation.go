package evo

import (
	"math/rand"

	"gonum.org/v1/gonum/stat"

	"genetrader/internal/genotype"
)

// DefaultWeightBound limits mutated network parameters to [-bound, bound].
const DefaultWeightBound = 10.0

// VectorMutator mutates flattened network parameters element by element.
type VectorMutator struct {
	Bound         float64
	Distributions []genotype.MutationDistribution
	// Scale is the Gaussian standard deviation as a fraction of 2*Bound.
	Scale float64
}

func DefaultVectorMutator() VectorMutator {
	return VectorMutator{
		Bound:         DefaultWeightBound,
		Distributions: []genotype.MutationDistribution{genotype.DistributionUniform, genotype.DistributionNormal},
		Scale:         0.1,
	}
}

// Mutate replaces each element with probability rate and returns how many
// were replaced. Gaussian draws outside the bound are retried up to
// genotype.MaxAttempts times, then the element is redrawn uniformly.
func (m VectorMutator) Mutate(rng *rand.Rand, values []float64, rate float64) int {
	bound := m.Bound
	if bound <= 0 {
		bound = DefaultWeightBound
	}
	dists := m.Distributions
	if len(dists) == 0 {
		dists = []genotype.MutationDistribution{genotype.DistributionUniform}
	}
	scale := m.Scale
	if scale <= 0 {
		scale = 0.1
	}
	sigma := 2 * bound * scale

	mutated := 0
	for i := range values {
		if rng.Float64() >= rate {
			continue
		}
		mutated++
		if dists[rng.Intn(len(dists))] == genotype.DistributionNormal {
			if v, ok := perturbBounded(rng, values[i], sigma, bound); ok {
				values[i] = v
				continue
			}
		}
		values[i] = -bound + rng.Float64()*2*bound
	}
	return mutated
}

func perturbBounded(rng *rand.Rand, v, sigma, bound float64) (float64, bool) {
	for attempt := 0; attempt < genotype.MaxAttempts; attempt++ {
		candidate := v + rng.NormFloat64()*sigma
		if candidate >= -bound && candidate <= bound {
			return candidate, true
		}
	}
	return 0, false
}

// Dropout zeroes each element with probability rate.
func Dropout(rng *rand.Rand, values []float64, rate float64) int {
	if rate <= 0 {
		return 0
	}
	dropped := 0
	for i := range values {
		if rng.Float64() < rate {
			values[i] = 0
			dropped++
		}
	}
	return dropped
}

// MutationController chooses the mutation rate for the next generation.
type MutationController interface {
	Name() string
	Next(rate, averageFitness float64) float64
}

// FixedRate never changes the rate.
type FixedRate struct{}

func (FixedRate) Name() string { return "fixed" }

func (FixedRate) Next(rate, _ float64) float64 { return rate }

// Hypermutation raises the rate by Step while the current average fitness
// is below the mean of the last Window averages (current included) and
// lowers it by Step otherwise, clamped to [Floor, Ceiling].
type Hypermutation struct {
	Window  int
	Step    float64
	Floor   float64
	Ceiling float64

	history []float64
}

func NewHypermutation() *Hypermutation {
	return &Hypermutation{Window: 5, Step: 0.05, Floor: 0.1, Ceiling: 1.0}
}

func (*Hypermutation) Name() string { return "hypermutation" }

// Prime seeds the trailing window, used when resuming a run.
func (h *Hypermutation) Prime(averages []float64) {
	for _, avg := range averages {
		h.push(avg)
	}
}

func (h *Hypermutation) Next(rate, averageFitness float64) float64 {
	h.push(averageFitness)
	if averageFitness < stat.Mean(h.history, nil) {
		rate += h.Step
	} else {
		rate -= h.Step
	}
	if rate > h.Ceiling {
		rate = h.Ceiling
	}
	if rate < h.Floor {
		rate = h.Floor
	}
	return rate
}

func (h *Hypermutation) push(avg float64) {
	window := h.Window
	if window <= 0 {
		window = 1
	}
	h.history = append(h.history, avg)
	if over := len(h.history) - window; over > 0 {
		h.history = append(h.history[:0], h.history[over:]...)
	}
}
