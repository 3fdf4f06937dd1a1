package genotype

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"genetrader/internal/model"
)

// MaxAttempts caps every rejection-sampling loop over gene values.
const MaxAttempts = 100

var ErrUnknownGeneType = errors.New("unknown gene type")

// Kind holds the value rules for one gene type.
type Kind interface {
	Type() model.GeneType
	Arity() int
	// Sample draws one candidate value. The result may still be invalid.
	Sample(rng *rand.Rand, lower, upper float64) []float64
	Valid(value []float64, lower, upper float64) bool
	// Fallback returns a deterministic valid value for well-formed bounds.
	Fallback(lower, upper float64) []float64
	// Normalize snaps a blended or perturbed value onto the kind's domain.
	Normalize(value []float64) []float64
	checkBounds(lower, upper float64) error
}

var kinds = map[model.GeneType]Kind{
	model.GeneInt:                  intKind{},
	model.GeneFloat:                floatKind{},
	model.GeneLinearMembership:     orderedKind{typ: model.GeneLinearMembership, arity: 2},
	model.GeneTriangularMembership: orderedKind{typ: model.GeneTriangularMembership, arity: 3},
	model.GeneEntryCondition:       orderedKind{typ: model.GeneEntryCondition, arity: 2},
}

func KindOf(t model.GeneType) (Kind, error) {
	k, ok := kinds[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGeneType, t)
	}
	return k, nil
}

func mustKind(t model.GeneType) Kind {
	k, err := KindOf(t)
	if err != nil {
		panic(err)
	}
	return k
}

type intKind struct{}

func (intKind) Type() model.GeneType { return model.GeneInt }
func (intKind) Arity() int           { return 1 }

func (intKind) Sample(rng *rand.Rand, lower, upper float64) []float64 {
	lo, hi := math.Ceil(lower), math.Floor(upper)
	return []float64{lo + float64(rng.Int63n(int64(hi-lo)+1))}
}

func (intKind) Valid(value []float64, lower, upper float64) bool {
	if len(value) != 1 {
		return false
	}
	v := value[0]
	return v == math.Trunc(v) && v >= lower && v <= upper
}

func (intKind) Fallback(lower, _ float64) []float64 {
	return []float64{math.Ceil(lower)}
}

func (intKind) Normalize(value []float64) []float64 {
	out := make([]float64, len(value))
	for i, v := range value {
		out[i] = math.Trunc(v)
	}
	return out
}

func (intKind) checkBounds(lower, upper float64) error {
	if math.Ceil(lower) > math.Floor(upper) {
		return fmt.Errorf("int bounds [%g, %g] contain no integer", lower, upper)
	}
	return nil
}

type floatKind struct{}

func (floatKind) Type() model.GeneType { return model.GeneFloat }
func (floatKind) Arity() int           { return 1 }

func (floatKind) Sample(rng *rand.Rand, lower, upper float64) []float64 {
	return []float64{lower + rng.Float64()*(upper-lower)}
}

func (floatKind) Valid(value []float64, lower, upper float64) bool {
	return len(value) == 1 && value[0] >= lower && value[0] <= upper
}

func (floatKind) Fallback(lower, upper float64) []float64 {
	return []float64{lower + (upper-lower)/2}
}

func (floatKind) Normalize(value []float64) []float64 {
	return append([]float64(nil), value...)
}

func (floatKind) checkBounds(lower, upper float64) error {
	if !(lower <= upper) {
		return fmt.Errorf("float bounds [%g, %g] are inverted", lower, upper)
	}
	return nil
}

// orderedKind covers tuple genes whose nodes must be strictly increasing.
type orderedKind struct {
	typ   model.GeneType
	arity int
}

func (k orderedKind) Type() model.GeneType { return k.typ }
func (k orderedKind) Arity() int           { return k.arity }

func (k orderedKind) Sample(rng *rand.Rand, lower, upper float64) []float64 {
	out := make([]float64, k.arity)
	for i := range out {
		out[i] = lower + rng.Float64()*(upper-lower)
	}
	sort.Float64s(out)
	return out
}

func (k orderedKind) Valid(value []float64, lower, upper float64) bool {
	if len(value) != k.arity {
		return false
	}
	for i, v := range value {
		if v < lower || v > upper || math.IsNaN(v) {
			return false
		}
		if i > 0 && !(value[i-1] < v) {
			return false
		}
	}
	return true
}

func (k orderedKind) Fallback(lower, upper float64) []float64 {
	out := make([]float64, k.arity)
	step := (upper - lower) / float64(k.arity-1)
	for i := range out {
		out[i] = lower + float64(i)*step
	}
	out[k.arity-1] = upper
	return out
}

func (k orderedKind) Normalize(value []float64) []float64 {
	return append([]float64(nil), value...)
}

func (k orderedKind) checkBounds(lower, upper float64) error {
	if !(lower < upper) {
		return fmt.Errorf("%s bounds [%g, %g] leave no room for ordered nodes", k.typ, lower, upper)
	}
	return nil
}

// NewGene builds a gene definition with a fresh id. A nil value is sampled
// later by InitializeGene; a non-nil value must already be valid.
func NewGene(ids *IDFactory, name string, typ model.GeneType, lower, upper float64, value []float64) (model.Gene, error) {
	if name == "" {
		return model.Gene{}, errors.New("gene name is required")
	}
	kind, err := KindOf(typ)
	if err != nil {
		return model.Gene{}, err
	}
	if err := kind.checkBounds(lower, upper); err != nil {
		return model.Gene{}, fmt.Errorf("gene %s: %w", name, err)
	}
	gene := model.Gene{ID: ids.Next(), Name: name, Type: typ, Lower: lower, Upper: upper}
	if value != nil {
		if !kind.Valid(value, lower, upper) {
			return model.Gene{}, fmt.Errorf("gene %s: value %v invalid for %s in [%g, %g]", name, value, typ, lower, upper)
		}
		gene.Value = append([]float64(nil), value...)
	}
	return gene, nil
}

// ValidGene reports whether the gene's value honours its bounds and ordering.
func ValidGene(gene model.Gene) bool {
	kind, err := KindOf(gene.Type)
	if err != nil {
		return false
	}
	return kind.Valid(gene.Value, gene.Lower, gene.Upper)
}

// InitializeGene samples a fresh value within bounds. After MaxAttempts
// invalid draws the gene keeps its current value if that is valid, else the
// kind's deterministic fallback.
func InitializeGene(rng *rand.Rand, gene model.Gene) model.Gene {
	rng = ensureRNG(rng)
	kind := mustKind(gene.Type)
	out := CloneGene(gene)
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		candidate := kind.Sample(rng, gene.Lower, gene.Upper)
		if kind.Valid(candidate, gene.Lower, gene.Upper) {
			out.Value = candidate
			return out
		}
	}
	if !kind.Valid(out.Value, gene.Lower, gene.Upper) {
		out.Value = kind.Fallback(gene.Lower, gene.Upper)
	}
	return out
}

// MutationDistribution names how a triggered gene mutation draws its value.
type MutationDistribution string

const (
	DistributionUniform MutationDistribution = "uniform"
	DistributionNormal  MutationDistribution = "normal"
)

// GeneMutator mutates single genes. Scale is the Gaussian standard
// deviation as a fraction of the gene's bound width.
type GeneMutator struct {
	Distributions []MutationDistribution
	Scale         float64
}

func DefaultGeneMutator() GeneMutator {
	return GeneMutator{
		Distributions: []MutationDistribution{DistributionUniform, DistributionNormal},
		Scale:         0.1,
	}
}

// Mutate redraws the gene with one randomly chosen distribution.
func (m GeneMutator) Mutate(rng *rand.Rand, gene model.Gene) model.Gene {
	rng = ensureRNG(rng)
	dists := m.Distributions
	if len(dists) == 0 {
		dists = DefaultGeneMutator().Distributions
	}
	switch dists[rng.Intn(len(dists))] {
	case DistributionNormal:
		return m.perturb(rng, gene)
	default:
		return InitializeGene(rng, gene)
	}
}

func (m GeneMutator) perturb(rng *rand.Rand, gene model.Gene) model.Gene {
	kind := mustKind(gene.Type)
	if !kind.Valid(gene.Value, gene.Lower, gene.Upper) {
		return InitializeGene(rng, gene)
	}
	scale := m.Scale
	if scale <= 0 {
		scale = DefaultGeneMutator().Scale
	}
	sigma := (gene.Upper - gene.Lower) * scale
	out := CloneGene(gene)
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		candidate := make([]float64, len(gene.Value))
		for i, v := range gene.Value {
			candidate[i] = v + rng.NormFloat64()*sigma
		}
		candidate = kind.Normalize(candidate)
		if kind.Valid(candidate, gene.Lower, gene.Upper) {
			out.Value = candidate
			return out
		}
	}
	return InitializeGene(rng, gene)
}

// Compatible reports whether two genes may be crossed.
func Compatible(a, b model.Gene) bool {
	return a.Name == b.Name && a.Type == b.Type
}

func CloneGene(gene model.Gene) model.Gene {
	out := gene
	out.Value = append([]float64(nil), gene.Value...)
	return out
}
