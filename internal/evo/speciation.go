package evo

import (
	"math"
	"sort"

	"genetrader/internal/model"
)

const DefaultSpeciesEpsilon = 0.2

// Rank returns the population paired with its scores, best first. Invalid
// scores sort last; ties keep population order.
func Rank[T model.Individual](population []T) []Scored[T] {
	ranked := make([]Scored[T], len(population))
	for i, individual := range population {
		ranked[i] = Scored[T]{Individual: individual, Fitness: individual.Score()}
	}
	sortDescending(ranked)
	return ranked
}

func sortDescending[T model.Individual](scored []Scored[T]) {
	sort.SliceStable(scored, func(i, j int) bool {
		return fitnessLess(scored[j].Fitness, scored[i].Fitness)
	})
}

// fitnessLess orders NaN below every other value.
func fitnessLess(a, b model.Fitness) bool {
	if math.IsNaN(float64(a)) {
		return !math.IsNaN(float64(b))
	}
	if math.IsNaN(float64(b)) {
		return false
	}
	return a < b
}

// Elites splits ranked into the top floor(pct*n) members and the rest.
// ranked must already be sorted best first.
func Elites[T model.Individual](ranked []Scored[T], pct float64) (elites, rest []Scored[T]) {
	k := int(math.Floor(pct * float64(len(ranked))))
	if k < 0 {
		k = 0
	}
	if k > len(ranked) {
		k = len(ranked)
	}
	elites = append([]Scored[T](nil), ranked[:k]...)
	rest = append([]Scored[T](nil), ranked[k:]...)
	return elites, rest
}

// Speciate sorts scored best first and walks it once, starting a new
// cluster whenever the next fitness is more than eps below the previous
// one. Each member's fitness is divided by its cluster size and its species
// id is written to the individual. Invalid members share one trailing
// cluster and keep their fitness. It returns the number of clusters.
func Speciate[T model.Individual](scored []Scored[T], eps float64) int {
	if len(scored) == 0 {
		return 0
	}
	sortDescending(scored)

	clusters := make([]int, len(scored))
	cluster := 0
	for i := range scored {
		switch {
		case i == 0:
		case !scored[i].Fitness.Valid():
			if scored[i-1].Fitness.Valid() {
				cluster++
			}
		case scored[i-1].Fitness-scored[i].Fitness > model.Fitness(eps):
			cluster++
		}
		clusters[i] = cluster
	}

	sizes := make(map[int]int, cluster+1)
	for _, c := range clusters {
		sizes[c]++
	}
	for i := range scored {
		scored[i].Individual.SetSpecies(clusters[i])
		if scored[i].Fitness.Valid() {
			scored[i].Fitness /= model.Fitness(sizes[clusters[i]])
		}
	}
	return cluster + 1
}
