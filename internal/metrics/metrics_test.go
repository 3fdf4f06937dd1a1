package metrics

import (
	"context"
	"io"
	"math"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"genetrader/internal/model"
)

func TestCollectorTracksGenerations(t *testing.T) {
	c := NewCollector()
	ctx := context.Background()
	for i, d := range []model.GenerationDiagnostics{
		{RunID: "r1", Generation: 0, AverageFitness: 0.5, BestFitness: 2, ValidCount: 9, SpeciesCount: 3, MutationRate: 0.1, Selection: "sus", EvaluationSeconds: 0.2},
		{RunID: "r1", Generation: 1, AverageFitness: 0.7, BestFitness: model.Degenerate, ValidCount: 0, SpeciesCount: 1, MutationRate: 0.15, Selection: "sus"},
		{RunID: "r2", Generation: 0, AverageFitness: 1.5, BestFitness: 3, Selection: "rank"},
	} {
		if err := c.ObserveGeneration(ctx, d); err != nil {
			t.Fatalf("observe %d: %v", i, err)
		}
	}

	if got := testutil.ToFloat64(c.generations.WithLabelValues("r1")); got != 2 {
		t.Fatalf("generations for r1: %f", got)
	}
	if got := testutil.ToFloat64(c.averageFitness.WithLabelValues("r1")); got != 0.7 {
		t.Fatalf("average fitness for r1: %f", got)
	}
	if got := testutil.ToFloat64(c.bestFitness.WithLabelValues("r1")); !math.IsInf(got, -1) {
		t.Fatalf("best fitness for r1: %f", got)
	}
	if got := testutil.ToFloat64(c.mutationRate.WithLabelValues("r1")); got != 0.15 {
		t.Fatalf("mutation rate for r1: %f", got)
	}
	if got := testutil.ToFloat64(c.selections.WithLabelValues("r1", "sus")); got != 2 {
		t.Fatalf("sus selections for r1: %f", got)
	}
	if got := testutil.ToFloat64(c.averageFitness.WithLabelValues("r2")); got != 1.5 {
		t.Fatalf("average fitness for r2: %f", got)
	}
}

func TestCollectorHandlerServesRegistry(t *testing.T) {
	c := NewCollector()
	if err := c.ObserveGeneration(context.Background(), model.GenerationDiagnostics{RunID: "r1", AverageFitness: 1.25}); err != nil {
		t.Fatalf("observe: %v", err)
	}
	server := httptest.NewServer(c.Handler())
	defer server.Close()

	resp, err := server.Client().Get(server.URL)
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), `genetrader_average_fitness{run_id="r1"} 1.25`) {
		t.Fatalf("metrics body missing average fitness:\n%s", body)
	}
}
