package evo

import (
	"fmt"
	"math/rand"

	"genetrader/internal/genotype"
	"genetrader/internal/model"
)

// Variant breeds one genome representation.
type Variant[T model.Individual] interface {
	Name() string
	// Mate crosses a and b with c and mutates both offspring at rate.
	Mate(rng *rand.Rand, a, b T, c Crossover, rate float64) (T, T, error)
	// Clone deep-copies an individual under a fresh identity.
	Clone(individual T) T
	// Capture snapshots a population for checkpointing under a fresh
	// population id.
	Capture(population []T) model.Population
}

// NetworkVariant breeds classifier networks through their flat parameter
// vectors.
type NetworkVariant struct {
	IDs         *genotype.IDFactory
	Mutator     VectorMutator
	DropoutRate float64
}

func (NetworkVariant) Name() string { return model.VariantNetwork }

func (v NetworkVariant) Mate(rng *rand.Rand, a, b *model.Network, c Crossover, rate float64) (*model.Network, *model.Network, error) {
	fa, fb := genotype.Flatten(a), genotype.Flatten(b)
	if !genotype.SameShape(fa, fb) {
		return nil, nil, fmt.Errorf("%w: networks %d and %d", ErrStructureMismatch, a.ID, b.ID)
	}
	o1, o2, err := c.CrossVector(rng, fa.Values, fb.Values)
	if err != nil {
		return nil, nil, fmt.Errorf("%s crossover of networks %d and %d: %w", c.Name(), a.ID, b.ID, err)
	}
	first, err := v.offspring(rng, o1, fa.Shapes, rate)
	if err != nil {
		return nil, nil, err
	}
	second, err := v.offspring(rng, o2, fa.Shapes, rate)
	if err != nil {
		return nil, nil, err
	}
	return first, second, nil
}

func (v NetworkVariant) offspring(rng *rand.Rand, values []float64, shapes []genotype.LayerShape, rate float64) (*model.Network, error) {
	v.Mutator.Mutate(rng, values, rate)
	Dropout(rng, values, v.DropoutRate)
	layers, err := genotype.Reconstruct(genotype.Flat{Values: values, Shapes: shapes})
	if err != nil {
		return nil, err
	}
	return &model.Network{ID: v.IDs.Next(), Layers: layers, Fitness: model.Degenerate}, nil
}

func (v NetworkVariant) Clone(n *model.Network) *model.Network {
	return genotype.CloneNetwork(v.IDs, n)
}

func (v NetworkVariant) Capture(population []*model.Network) model.Population {
	out := model.Population{ID: v.IDs.Next(), Variant: model.VariantNetwork, Networks: make([]*model.Network, len(population))}
	for i, n := range population {
		out.Networks[i] = genotype.CopyNetwork(n)
	}
	out.NextID = v.IDs.Peek()
	return out
}

// GenomeVariant breeds fuzzy gene sets gene by gene.
type GenomeVariant struct {
	IDs     *genotype.IDFactory
	Mutator genotype.GeneMutator
}

func (GenomeVariant) Name() string { return model.VariantFuzzy }

func (v GenomeVariant) Mate(rng *rand.Rand, a, b *model.Genome, c Crossover, rate float64) (*model.Genome, *model.Genome, error) {
	g1, g2, err := c.CrossGenes(rng, a.Genes, b.Genes)
	if err != nil {
		return nil, nil, fmt.Errorf("%s crossover of genomes %d and %d: %w", c.Name(), a.ID, b.ID, err)
	}
	return v.offspring(rng, g1, rate), v.offspring(rng, g2, rate), nil
}

func (v GenomeVariant) offspring(rng *rand.Rand, genes []model.Gene, rate float64) *model.Genome {
	genome := &model.Genome{ID: v.IDs.Next(), Genes: genes, Fitness: model.Degenerate}
	genotype.MutateGenome(rng, genome, rate, v.Mutator)
	return genome
}

func (v GenomeVariant) Clone(g *model.Genome) *model.Genome {
	return genotype.CloneGenome(v.IDs, g)
}

func (v GenomeVariant) Capture(population []*model.Genome) model.Population {
	out := model.Population{ID: v.IDs.Next(), Variant: model.VariantFuzzy, Genomes: make([]*model.Genome, len(population))}
	for i, g := range population {
		out.Genomes[i] = genotype.CopyGenome(g)
	}
	out.NextID = v.IDs.Peek()
	return out
}
