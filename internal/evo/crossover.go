package evo

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"genetrader/internal/genotype"
	"genetrader/internal/model"
)

// ErrStructureMismatch reports parents that cannot be crossed because their
// layouts differ.
var ErrStructureMismatch = errors.New("parent structure mismatch")

// Crossover produces two offspring from two parents of the same structure.
// Flattened networks are crossed element-wise; gene lists gene-wise with
// type-aware value rules.
type Crossover interface {
	Name() string
	CrossVector(rng *rand.Rand, a, b []float64) ([]float64, []float64, error)
	CrossGenes(rng *rand.Rand, a, b []model.Gene) ([]model.Gene, []model.Gene, error)
}

// UniformCrossover flips a fair coin per position.
type UniformCrossover struct{}

func (UniformCrossover) Name() string { return "uniform" }

func (UniformCrossover) CrossVector(rng *rand.Rand, a, b []float64) ([]float64, []float64, error) {
	if err := checkVectors(a, b); err != nil {
		return nil, nil, err
	}
	swap := coinMask(rng, len(a))
	o1, o2 := exchange(a, b, swap, copyFloat)
	return o1, o2, nil
}

func (UniformCrossover) CrossGenes(rng *rand.Rand, a, b []model.Gene) ([]model.Gene, []model.Gene, error) {
	if err := checkGenes(a, b); err != nil {
		return nil, nil, err
	}
	swap := coinMask(rng, len(a))
	o1, o2 := exchange(a, b, swap, genotype.CloneGene)
	return o1, o2, nil
}

// SinglePointCrossover swaps the tail after one cut in [1, n-1].
type SinglePointCrossover struct{}

func (SinglePointCrossover) Name() string { return "single_point" }

func (SinglePointCrossover) CrossVector(rng *rand.Rand, a, b []float64) ([]float64, []float64, error) {
	if err := checkVectors(a, b); err != nil {
		return nil, nil, err
	}
	o1, o2 := exchange(a, b, singlePointMask(rng, len(a)), copyFloat)
	return o1, o2, nil
}

func (SinglePointCrossover) CrossGenes(rng *rand.Rand, a, b []model.Gene) ([]model.Gene, []model.Gene, error) {
	if err := checkGenes(a, b); err != nil {
		return nil, nil, err
	}
	o1, o2 := exchange(a, b, singlePointMask(rng, len(a)), genotype.CloneGene)
	return o1, o2, nil
}

// TwoPointCrossover swaps the segment [p1, p2) for cuts 1 <= p1 < p2 <= n-1.
// Cuts are redrawn until ordered; on exhaustion, or when the parents are
// too short for two cuts, it degrades to a single cut.
type TwoPointCrossover struct{}

func (TwoPointCrossover) Name() string { return "two_point" }

func (TwoPointCrossover) CrossVector(rng *rand.Rand, a, b []float64) ([]float64, []float64, error) {
	if err := checkVectors(a, b); err != nil {
		return nil, nil, err
	}
	o1, o2 := exchange(a, b, twoPointMask(rng, len(a)), copyFloat)
	return o1, o2, nil
}

func (TwoPointCrossover) CrossGenes(rng *rand.Rand, a, b []model.Gene) ([]model.Gene, []model.Gene, error) {
	if err := checkGenes(a, b); err != nil {
		return nil, nil, err
	}
	o1, o2 := exchange(a, b, twoPointMask(rng, len(a)), genotype.CloneGene)
	return o1, o2, nil
}

// LinearCrossover blends parents with two uniform weights alpha and beta:
// (alpha*a + beta*b)/(alpha+beta) and its mirror. Vectors draw fresh
// weights per element, genes per gene.
type LinearCrossover struct{}

func (LinearCrossover) Name() string { return "linear" }

func (LinearCrossover) CrossVector(rng *rand.Rand, a, b []float64) ([]float64, []float64, error) {
	if err := checkVectors(a, b); err != nil {
		return nil, nil, err
	}
	o1, o2 := make([]float64, len(a)), make([]float64, len(a))
	for i := range a {
		w := linearWeights(rng)
		o1[i], o2[i] = w.apply(a[i], b[i])
	}
	return o1, o2, nil
}

func (LinearCrossover) CrossGenes(rng *rand.Rand, a, b []model.Gene) ([]model.Gene, []model.Gene, error) {
	return blendGenes(rng, a, b, linearWeights)
}

// SBXCrossover is simulated binary crossover with a distribution index
// drawn from {2,3,4,5} per element or gene.
type SBXCrossover struct{}

func (SBXCrossover) Name() string { return "sbx" }

func (SBXCrossover) CrossVector(rng *rand.Rand, a, b []float64) ([]float64, []float64, error) {
	if err := checkVectors(a, b); err != nil {
		return nil, nil, err
	}
	o1, o2 := make([]float64, len(a)), make([]float64, len(a))
	for i := range a {
		w := sbxWeights(rng)
		o1[i], o2[i] = w.apply(a[i], b[i])
	}
	return o1, o2, nil
}

func (SBXCrossover) CrossGenes(rng *rand.Rand, a, b []model.Gene) ([]model.Gene, []model.Gene, error) {
	return blendGenes(rng, a, b, sbxWeights)
}

// SBXSpread is the polynomial spread factor for uniform draw u and
// distribution index n.
func SBXSpread(u float64, n int) float64 {
	exp := 1 / float64(n+1)
	if u <= 0.5 {
		return math.Pow(2*u, exp)
	}
	return math.Pow(1/(2*(1-u)), exp)
}

// blend holds the coefficients of both offspring over (a, b).
type blend struct {
	a1, b1, a2, b2 float64
}

func (w blend) apply(a, b float64) (float64, float64) {
	return w.a1*a + w.b1*b, w.a2*a + w.b2*b
}

// linearWeights draws alpha and beta normalised by their sum. An even
// split is used if every draw sums to zero.
func linearWeights(rng *rand.Rand) blend {
	for attempt := 0; attempt < genotype.MaxAttempts; attempt++ {
		alpha, beta := rng.Float64(), rng.Float64()
		if sum := alpha + beta; sum > 0 {
			return blend{a1: alpha / sum, b1: beta / sum, a2: beta / sum, b2: alpha / sum}
		}
	}
	return blend{a1: 0.5, b1: 0.5, a2: 0.5, b2: 0.5}
}

func sbxWeights(rng *rand.Rand) blend {
	beta := SBXSpread(rng.Float64(), 2+rng.Intn(4))
	return blend{a1: (1 + beta) / 2, b1: (1 - beta) / 2, a2: (1 - beta) / 2, b2: (1 + beta) / 2}
}

// blendGenes blends each gene pair until both offspring values are valid
// for the gene's kind. After genotype.MaxAttempts draws each offspring
// takes one parent's value whole.
func blendGenes(rng *rand.Rand, a, b []model.Gene, draw func(*rand.Rand) blend) ([]model.Gene, []model.Gene, error) {
	if err := checkGenes(a, b); err != nil {
		return nil, nil, err
	}
	o1, o2 := make([]model.Gene, len(a)), make([]model.Gene, len(a))
	for i := range a {
		kind, err := genotype.KindOf(a[i].Type)
		if err != nil {
			return nil, nil, err
		}
		o1[i], o2[i] = genotype.CloneGene(a[i]), genotype.CloneGene(a[i])
		v1, v2, ok := blendValues(rng, kind, a[i], b[i], draw)
		if !ok {
			v1, v2 = pickParent(rng, a[i], b[i]), pickParent(rng, a[i], b[i])
		}
		o1[i].Value, o2[i].Value = v1, v2
	}
	return o1, o2, nil
}

func blendValues(rng *rand.Rand, kind genotype.Kind, a, b model.Gene, draw func(*rand.Rand) blend) ([]float64, []float64, bool) {
	for attempt := 0; attempt < genotype.MaxAttempts; attempt++ {
		w := draw(rng)
		v1, v2 := make([]float64, len(a.Value)), make([]float64, len(a.Value))
		for j := range a.Value {
			v1[j], v2[j] = w.apply(a.Value[j], b.Value[j])
		}
		v1, v2 = kind.Normalize(v1), kind.Normalize(v2)
		if kind.Valid(v1, a.Lower, a.Upper) && kind.Valid(v2, a.Lower, a.Upper) {
			return v1, v2, true
		}
	}
	return nil, nil, false
}

func pickParent(rng *rand.Rand, a, b model.Gene) []float64 {
	if rng.Float64() < 0.5 {
		return append([]float64(nil), a.Value...)
	}
	return append([]float64(nil), b.Value...)
}

func checkVectors(a, b []float64) error {
	if len(a) != len(b) {
		return fmt.Errorf("%w: vector lengths %d and %d", ErrStructureMismatch, len(a), len(b))
	}
	return nil
}

func checkGenes(a, b []model.Gene) error {
	if len(a) != len(b) {
		return fmt.Errorf("%w: %d and %d genes", ErrStructureMismatch, len(a), len(b))
	}
	for i := range a {
		if !genotype.Compatible(a[i], b[i]) {
			return fmt.Errorf("%w: position %d holds %s/%s and %s/%s",
				ErrStructureMismatch, i, a[i].Name, a[i].Type, b[i].Name, b[i].Type)
		}
		if len(a[i].Value) != len(b[i].Value) {
			return fmt.Errorf("%w: gene %s has arity %d and %d", ErrStructureMismatch, a[i].Name, len(a[i].Value), len(b[i].Value))
		}
	}
	return nil
}

func coinMask(rng *rand.Rand, n int) []bool {
	swap := make([]bool, n)
	for i := range swap {
		swap[i] = rng.Float64() < 0.5
	}
	return swap
}

func singlePointMask(rng *rand.Rand, n int) []bool {
	swap := make([]bool, n)
	if n < 2 {
		return swap
	}
	for i := 1 + rng.Intn(n-1); i < n; i++ {
		swap[i] = true
	}
	return swap
}

func twoPointMask(rng *rand.Rand, n int) []bool {
	if n < 3 {
		return singlePointMask(rng, n)
	}
	for attempt := 0; attempt < genotype.MaxAttempts; attempt++ {
		p1, p2 := 1+rng.Intn(n-1), 1+rng.Intn(n-1)
		if p1 >= p2 {
			continue
		}
		swap := make([]bool, n)
		for i := p1; i < p2; i++ {
			swap[i] = true
		}
		return swap
	}
	return singlePointMask(rng, n)
}

// exchange builds both offspring: position i comes from the other parent
// where swap[i] is set.
func exchange[E any](a, b []E, swap []bool, clone func(E) E) ([]E, []E) {
	o1, o2 := make([]E, len(a)), make([]E, len(a))
	for i := range a {
		if swap[i] {
			o1[i], o2[i] = clone(b[i]), clone(a[i])
		} else {
			o1[i], o2[i] = clone(a[i]), clone(b[i])
		}
	}
	return o1, o2
}

func copyFloat(v float64) float64 { return v }
