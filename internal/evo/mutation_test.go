package evo

import (
	"math"
	"math/rand"
	"testing"
)

func TestVectorMutatorRespectsRateAndBound(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	values := []float64{0.1, -0.2, 0.3, 0.4}
	original := append([]float64(nil), values...)
	if n := DefaultVectorMutator().Mutate(rng, values, 0); n != 0 {
		t.Fatalf("rate 0 mutated %d elements", n)
	}
	for i := range values {
		if values[i] != original[i] {
			t.Fatal("rate 0 must leave values untouched")
		}
	}

	big := make([]float64, 2000)
	for i := range big {
		big[i] = 9.9
	}
	mutator := DefaultVectorMutator()
	if n := mutator.Mutate(rng, big, 1); n != len(big) {
		t.Fatalf("rate 1 must mutate every element, got %d", n)
	}
	for i, v := range big {
		if math.Abs(v) > mutator.Bound {
			t.Fatalf("element %d escaped bound: %f", i, v)
		}
	}
}

func TestDropoutZeroesElements(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	values := []float64{1, 2, 3, 4, 5}
	if Dropout(rng, values, 0) != 0 {
		t.Fatal("rate 0 must not drop")
	}
	if n := Dropout(rng, values, 1); n != len(values) {
		t.Fatalf("rate 1 must drop everything, dropped %d", n)
	}
	for _, v := range values {
		if v != 0 {
			t.Fatalf("expected zeroed vector, got %v", values)
		}
	}
}

func TestHypermutationTracksTrailingMean(t *testing.T) {
	h := NewHypermutation()
	rate := 0.5

	rate = h.Next(rate, 1.0)
	if math.Abs(rate-0.45) > 1e-12 {
		t.Fatalf("at the trailing mean the rate must fall: got %f", rate)
	}
	rate = h.Next(rate, 0.5)
	if math.Abs(rate-0.5) > 1e-12 {
		t.Fatalf("below the trailing mean the rate must rise: got %f", rate)
	}

	if got := h.Next(0.98, -10); got != 1.0 {
		t.Fatalf("rate must clamp to ceiling, got %f", got)
	}
	if got := h.Next(0.12, 100); got != 0.1 {
		t.Fatalf("rate must clamp to floor, got %f", got)
	}

	for i := 0; i < 10; i++ {
		h.Next(0.5, float64(i))
	}
	if len(h.history) != h.Window {
		t.Fatalf("history must keep %d entries, has %d", h.Window, len(h.history))
	}
}

func TestHypermutationPrime(t *testing.T) {
	h := NewHypermutation()
	h.Prime([]float64{10, 10, 10, 10})
	if got := h.Next(0.5, 1); math.Abs(got-0.55) > 1e-12 {
		t.Fatalf("primed history must make a weak generation raise the rate, got %f", got)
	}
}

func TestFixedRate(t *testing.T) {
	if (FixedRate{}).Next(0.3, -5) != 0.3 {
		t.Fatal("fixed rate changed")
	}
}
