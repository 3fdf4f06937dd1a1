package genotype

import (
	"fmt"
	"math/rand"

	"genetrader/internal/model"
)

// GeneSpec declares one gene of a genome template.
type GeneSpec struct {
	Name  string
	Type  model.GeneType
	Lower float64
	Upper float64
	Value []float64
}

// NewGenome builds a genome from gene declarations, assigning fresh ids to
// the genome and every gene. Names must be unique.
func NewGenome(ids *IDFactory, specs []GeneSpec) (*model.Genome, error) {
	genome := &model.Genome{ID: ids.Next(), Fitness: model.Degenerate, Genes: make([]model.Gene, 0, len(specs))}
	seen := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		if _, ok := seen[spec.Name]; ok {
			return nil, fmt.Errorf("duplicate gene name %q", spec.Name)
		}
		seen[spec.Name] = struct{}{}
		gene, err := NewGene(ids, spec.Name, spec.Type, spec.Lower, spec.Upper, spec.Value)
		if err != nil {
			return nil, err
		}
		genome.Genes = append(genome.Genes, gene)
	}
	genome.Reindex()
	return genome, nil
}

// InitializeGenome samples every gene of the genome in place.
func InitializeGenome(rng *rand.Rand, genome *model.Genome) {
	rng = ensureRNG(rng)
	for i := range genome.Genes {
		genome.Genes[i] = InitializeGene(rng, genome.Genes[i])
	}
	genome.Reindex()
}

// CloneGenome deep-copies a genome under a fresh identity. Gene ids are
// kept so that clones remain gene-wise comparable.
func CloneGenome(ids *IDFactory, genome *model.Genome) *model.Genome {
	out := CopyGenome(genome)
	out.ID = ids.Next()
	return out
}

// CopyGenome deep-copies a genome keeping its identity.
func CopyGenome(genome *model.Genome) *model.Genome {
	out := &model.Genome{
		ID:      genome.ID,
		Genes:   make([]model.Gene, len(genome.Genes)),
		Fitness: genome.Fitness,
		Cluster: genome.Cluster,
	}
	for i, gene := range genome.Genes {
		out.Genes[i] = CloneGene(gene)
	}
	out.Reindex()
	return out
}

// MutateGenome mutates each gene independently with probability rate.
// It returns the number of genes changed.
func MutateGenome(rng *rand.Rand, genome *model.Genome, rate float64, mutator GeneMutator) int {
	rng = ensureRNG(rng)
	mutated := 0
	for i := range genome.Genes {
		if rng.Float64() >= rate {
			continue
		}
		genome.Genes[i] = mutator.Mutate(rng, genome.Genes[i])
		mutated++
	}
	genome.Reindex()
	return mutated
}

// ValidGenome reports whether every gene honours bounds and ordering.
func ValidGenome(genome *model.Genome) bool {
	for _, gene := range genome.Genes {
		if !ValidGene(gene) {
			return false
		}
	}
	return true
}
