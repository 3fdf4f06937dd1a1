package genotype

import (
	"fmt"
	"math/rand"

	"genetrader/internal/model"
)

// Gene names read by the RSI fuzzy signal and the fuzzy trading scape.
const (
	GeneRSIWindow      = "RSI_window"
	GeneRSIP1          = "RSI_p1"
	GeneRSIP2          = "RSI_p2"
	GeneRSIP3          = "RSI_p3"
	GeneRSIP4          = "RSI_p4"
	GeneRSILow         = "RSI_low_membership"
	GeneRSIMiddle      = "RSI_middle_membership"
	GeneRSIHigh        = "RSI_high_membership"
	GeneEntryCondition = "entry_condition"
	GeneStopLoss       = "stop_loss"
	GeneZRollingWindow = "z_rolling_window"
)

// BaseGenomeSpecs is the RSI strategy template with unset values.
func BaseGenomeSpecs() []GeneSpec {
	return []GeneSpec{
		{Name: GeneRSIWindow, Type: model.GeneInt, Lower: 1, Upper: 300},
		{Name: GeneRSIP1, Type: model.GeneFloat, Lower: -1, Upper: 1},
		{Name: GeneRSIP2, Type: model.GeneFloat, Lower: -1, Upper: 1},
		{Name: GeneRSIP3, Type: model.GeneFloat, Lower: -1, Upper: 1},
		{Name: GeneRSIP4, Type: model.GeneFloat, Lower: -1, Upper: 1},
		{Name: GeneRSILow, Type: model.GeneLinearMembership, Lower: 0, Upper: 100},
		{Name: GeneRSIMiddle, Type: model.GeneTriangularMembership, Lower: 0, Upper: 100},
		{Name: GeneRSIHigh, Type: model.GeneLinearMembership, Lower: 0, Upper: 100},
		{Name: GeneEntryCondition, Type: model.GeneEntryCondition, Lower: 1, Upper: 100},
		{Name: GeneStopLoss, Type: model.GeneFloat, Lower: 0.01, Upper: 0.99},
		{Name: GeneZRollingWindow, Type: model.GeneInt, Lower: 1, Upper: 300},
	}
}

// SeedGenomeSpecs is a known-good RSI parameterization over the base template.
func SeedGenomeSpecs() []GeneSpec {
	values := map[string][]float64{
		GeneRSIWindow:      {30},
		GeneRSIP1:          {1},
		GeneRSIP2:          {1},
		GeneRSIP3:          {1},
		GeneRSIP4:          {1},
		GeneRSILow:         {0, 25},
		GeneRSIMiddle:      {25, 50, 75},
		GeneRSIHigh:        {75, 100},
		GeneEntryCondition: {45, 55},
		GeneStopLoss:       {0.95},
		GeneZRollingWindow: {30},
	}
	specs := BaseGenomeSpecs()
	for i := range specs {
		specs[i].Value = values[specs[i].Name]
	}
	return specs
}

// SeedPopulation returns seedCount clones of the seed genome followed by
// genomes sampled from the base template until total is reached.
func SeedPopulation(ids *IDFactory, rng *rand.Rand, seedCount, total int) ([]*model.Genome, error) {
	if total <= 0 {
		return nil, fmt.Errorf("population size must be > 0")
	}
	if seedCount < 0 || seedCount > total {
		return nil, fmt.Errorf("seed count must be within [0, %d]", total)
	}
	rng = ensureRNG(rng)

	seed, err := NewGenome(ids, SeedGenomeSpecs())
	if err != nil {
		return nil, fmt.Errorf("seed genome: %w", err)
	}
	population := make([]*model.Genome, 0, total)
	for i := 0; i < seedCount; i++ {
		population = append(population, CloneGenome(ids, seed))
	}
	for len(population) < total {
		genome, err := NewGenome(ids, BaseGenomeSpecs())
		if err != nil {
			return nil, fmt.Errorf("base genome: %w", err)
		}
		InitializeGenome(rng, genome)
		population = append(population, genome)
	}
	return population, nil
}
