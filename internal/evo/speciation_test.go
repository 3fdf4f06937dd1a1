package evo

import (
	"math"
	"testing"

	"genetrader/internal/model"
)

func TestSpeciateClustersConsecutiveFitnessAndSharesIt(t *testing.T) {
	scored := scoredGenomes(0.45, 1.0, model.Degenerate, 0.9, 0.5)
	clusters := Speciate(scored, DefaultSpeciesEpsilon)
	if clusters != 3 {
		t.Fatalf("expected 3 clusters, got %d", clusters)
	}

	want := []struct {
		shared  model.Fitness
		species int
	}{
		{0.5, 0}, {0.45, 0}, {0.25, 1}, {0.225, 1}, {model.Degenerate, 2},
	}
	for i, w := range want {
		if math.Abs(float64(scored[i].Fitness-w.shared)) > 1e-12 && scored[i].Fitness != w.shared {
			t.Fatalf("member %d: shared fitness want=%v got=%v", i, w.shared, scored[i].Fitness)
		}
		if scored[i].Individual.Species() != w.species {
			t.Fatalf("member %d: species want=%d got=%d", i, w.species, scored[i].Individual.Species())
		}
	}
	if scored[0].Individual.Score() != 1.0 {
		t.Fatal("sharing must not overwrite the individual's raw score")
	}
}

func TestSpeciateEmpty(t *testing.T) {
	if Speciate[*model.Genome](nil, DefaultSpeciesEpsilon) != 0 {
		t.Fatal("empty population has no species")
	}
}

func TestRankOrdersBestFirst(t *testing.T) {
	population := []*model.Genome{
		{ID: 1, Fitness: model.Degenerate},
		{ID: 2, Fitness: 3},
		{ID: 3, Fitness: -1},
		{ID: 4, Fitness: 3},
	}
	ranked := Rank(population)
	wantIDs := []uint64{2, 4, 3, 1}
	for i, id := range wantIDs {
		if ranked[i].Individual.ID != id {
			t.Fatalf("rank %d: want id %d got %d", i, id, ranked[i].Individual.ID)
		}
	}
}
