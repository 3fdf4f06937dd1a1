package evo

import (
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"

	"genetrader/internal/model"
)

// Selector draws n indices from a fitness slice. Implementations never pick
// an invalid entry while at least one valid entry exists.
type Selector interface {
	Name() string
	Select(rng *rand.Rand, fitness []model.Fitness, n int) []int
}

// SelectFrom runs sel over scored and returns the chosen members with the
// average fitness of the valid ones among them.
func SelectFrom[T model.Individual](rng *rand.Rand, sel Selector, scored []Scored[T], n int) ([]Scored[T], float64) {
	if len(scored) == 0 || n <= 0 {
		return nil, 0
	}
	fitness := make([]model.Fitness, len(scored))
	for i, s := range scored {
		fitness[i] = s.Fitness
	}
	picked := sel.Select(rng, fitness, n)
	out := make([]Scored[T], len(picked))
	values := make([]model.Fitness, len(picked))
	for i, idx := range picked {
		out[i] = scored[idx]
		values[i] = scored[idx].Fitness
	}
	return out, AverageFitness(values)
}

// TournamentSelector keeps the fitter of two uniformly drawn candidates.
type TournamentSelector struct{}

func (TournamentSelector) Name() string { return "tournament" }

func (TournamentSelector) Select(rng *rand.Rand, fitness []model.Fitness, n int) []int {
	valid := validIndices(fitness)
	if len(valid) == 0 {
		return uniformIndices(rng, len(fitness), n)
	}
	out := make([]int, n)
	for i := range out {
		a := valid[rng.Intn(len(valid))]
		b := valid[rng.Intn(len(valid))]
		if fitness[b] > fitness[a] {
			a = b
		}
		out[i] = a
	}
	return out
}

// RankSelector weights valid entries by their ascending rank 1..N.
type RankSelector struct{}

func (RankSelector) Name() string { return "rank" }

func (RankSelector) Select(rng *rand.Rand, fitness []model.Fitness, n int) []int {
	valid := validIndices(fitness)
	if len(valid) == 0 {
		return uniformIndices(rng, len(fitness), n)
	}
	sort.SliceStable(valid, func(i, j int) bool { return fitness[valid[i]] < fitness[valid[j]] })
	weights := make([]float64, len(valid))
	for i := range weights {
		weights[i] = float64(i + 1)
	}
	cum := cumulative(weights)
	out := make([]int, n)
	for i := range out {
		out[i] = valid[search(cum, rng.Float64()*cum[len(cum)-1])]
	}
	return out
}

// RouletteSelector draws proportionally to fitness shifted so the lowest
// valid value weighs 1.
type RouletteSelector struct{}

func (RouletteSelector) Name() string { return "roulette" }

func (RouletteSelector) Select(rng *rand.Rand, fitness []model.Fitness, n int) []int {
	valid := validIndices(fitness)
	if len(valid) == 0 {
		return uniformIndices(rng, len(fitness), n)
	}
	cum := cumulative(shiftedWeights(fitness, valid))
	out := make([]int, n)
	for i := range out {
		out[i] = valid[search(cum, rng.Float64()*cum[len(cum)-1])]
	}
	return out
}

// SUSSelector is stochastic universal sampling over the same shifted
// weights as RouletteSelector: one random offset, n evenly spaced pointers.
type SUSSelector struct{}

func (SUSSelector) Name() string { return "sus" }

func (SUSSelector) Select(rng *rand.Rand, fitness []model.Fitness, n int) []int {
	valid := validIndices(fitness)
	if len(valid) == 0 {
		return uniformIndices(rng, len(fitness), n)
	}
	cum := cumulative(shiftedWeights(fitness, valid))
	step := cum[len(cum)-1] / float64(n)
	start := rng.Float64() * step
	out := make([]int, n)
	for i := range out {
		out[i] = valid[search(cum, start+float64(i)*step)]
	}
	return out
}

func validIndices(fitness []model.Fitness) []int {
	out := make([]int, 0, len(fitness))
	for i, f := range fitness {
		if f.Valid() {
			out = append(out, i)
		}
	}
	return out
}

func uniformIndices(rng *rand.Rand, size, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = rng.Intn(size)
	}
	return out
}

func shiftedWeights(fitness []model.Fitness, valid []int) []float64 {
	lowest := fitness[valid[0]]
	for _, idx := range valid[1:] {
		if fitness[idx] < lowest {
			lowest = fitness[idx]
		}
	}
	weights := make([]float64, len(valid))
	for i, idx := range valid {
		weights[i] = float64(fitness[idx]-lowest) + 1
	}
	return weights
}

func cumulative(weights []float64) []float64 {
	return floats.CumSum(make([]float64, len(weights)), weights)
}

// search returns the first bucket whose cumulative weight exceeds x.
func search(cum []float64, x float64) int {
	i := sort.Search(len(cum), func(i int) bool { return cum[i] > x })
	if i >= len(cum) {
		return len(cum) - 1
	}
	return i
}
