package genetrader

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"genetrader/internal/config"
	"genetrader/internal/model"
)

type countingObserver struct {
	generations []int
}

func (o *countingObserver) ObserveGeneration(_ context.Context, d model.GenerationDiagnostics) error {
	o.generations = append(o.generations, d.Generation)
	return errors.New("observer failures are logged, not fatal")
}

func smallConfig(variant string) config.RunConfig {
	cfg := config.Default()
	cfg.Variant = variant
	cfg.Population = 10
	cfg.Generations = 3
	cfg.Workers = 2
	cfg.Seed = 11
	cfg.Network.Window = 5
	cfg.Network.Hidden = []int{4}
	cfg.Fuzzy.SeedCount = 3
	cfg.Data.SyntheticBars = 600
	cfg.Data.WindowLength = 200
	cfg.Data.WindowStep = 50
	return cfg
}

func newClient(t *testing.T, opts Options) *Client {
	t.Helper()
	client, err := New(opts)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if err := client.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func TestClientRunResumeAndInspect(t *testing.T) {
	ctx := context.Background()
	observer := &countingObserver{}
	client := newClient(t, Options{StoreKind: "memory", Observers: []Observer{observer}})

	summary, err := client.Run(ctx, RunRequest{Config: smallConfig("fuzzy"), RunID: "fuzzy-run"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.NextGeneration != 3 || len(summary.History) != 3 || summary.PopulationSize != 10 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if len(observer.generations) != 3 {
		t.Fatalf("observer saw %v", observer.generations)
	}

	checkpoints, err := client.Checkpoints(ctx, "fuzzy-run")
	if err != nil {
		t.Fatalf("checkpoints: %v", err)
	}
	if len(checkpoints) != 1 || checkpoints[0].Generation != 3 || checkpoints[0].Size != 10 || checkpoints[0].Variant != model.VariantFuzzy {
		t.Fatalf("unexpected checkpoints: %+v", checkpoints)
	}

	resumed, err := client.Resume(ctx, ResumeRequest{Config: smallConfig("network"), RunID: "fuzzy-run", Generations: 2})
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Variant != model.VariantFuzzy || resumed.StartGeneration != 3 || resumed.NextGeneration != 5 {
		t.Fatalf("resume should follow the checkpoint: %+v", resumed)
	}

	diagnostics, err := client.Diagnostics(ctx, "fuzzy-run")
	if err != nil {
		t.Fatalf("diagnostics: %v", err)
	}
	if len(diagnostics) != 5 {
		t.Fatalf("expected 5 generations of diagnostics, got %d", len(diagnostics))
	}
	for i, d := range diagnostics {
		if d.Generation != i {
			t.Fatalf("diagnostics out of order: %+v", diagnostics)
		}
	}
	history, err := client.FitnessHistory(ctx, "fuzzy-run")
	if err != nil || len(history) != 5 {
		t.Fatalf("history: %v err=%v", history, err)
	}

	latest, err := client.Show(ctx, ShowRequest{RunID: "fuzzy-run"})
	if err != nil {
		t.Fatalf("show latest: %v", err)
	}
	if latest.Generation != 5 || len(latest.Genomes) != 10 {
		t.Fatalf("unexpected latest checkpoint: gen=%d size=%d", latest.Generation, len(latest.Genomes))
	}
	earlier, err := client.Show(ctx, ShowRequest{RunID: "fuzzy-run", Generation: 3})
	if err != nil || earlier.Generation != 3 {
		t.Fatalf("show generation 3: gen=%d err=%v", earlier.Generation, err)
	}
	if latest.NextID <= earlier.NextID {
		t.Fatalf("identity counter should advance across resume: %d -> %d", earlier.NextID, latest.NextID)
	}

	report, err := client.Evaluate(ctx, EvaluateRequest{Config: smallConfig("fuzzy"), RunID: "fuzzy-run"})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if report.Generation != 5 || report.IndividualID == 0 || report.Bars != 120 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if math.IsNaN(report.StrategyReturn) || math.IsNaN(report.BuyAndHold) {
		t.Fatalf("benchmark returns must be numbers: %+v", report)
	}
}

func TestClientNetworkRunOnSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "runs.db")
	client := newClient(t, Options{StoreKind: "sqlite", StorePath: path})

	cfg := smallConfig("network")
	cfg.Checkpoint.Interval = 1
	cfg.TrimPolicy = "fitness"
	summary, err := client.Run(ctx, RunRequest{Config: cfg})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := uuid.Parse(summary.RunID); err != nil {
		t.Fatalf("generated run id %q is not a uuid: %v", summary.RunID, err)
	}

	checkpoints, err := client.Checkpoints(ctx, "")
	if err != nil {
		t.Fatalf("checkpoints: %v", err)
	}
	if len(checkpoints) != 3 {
		t.Fatalf("expected a checkpoint per generation, got %+v", checkpoints)
	}

	snapshot, err := client.Show(ctx, ShowRequest{RunID: summary.RunID, Generation: 2})
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	target := snapshot.Networks[len(snapshot.Networks)-1].ID
	report, err := client.Evaluate(ctx, EvaluateRequest{Config: cfg, RunID: summary.RunID, Generation: 2, IndividualID: target})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if report.IndividualID != target || report.Variant != model.VariantNetwork {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestClientErrors(t *testing.T) {
	ctx := context.Background()
	client := newClient(t, Options{})

	if _, err := client.Run(ctx, RunRequest{Config: smallConfig("fuzzy"), RunID: "../escape"}); err == nil {
		t.Fatal("expected invalid run id error")
	}
	bad := smallConfig("fuzzy")
	bad.Population = 0
	if _, err := client.Run(ctx, RunRequest{Config: bad}); err == nil || !strings.Contains(err.Error(), "population") {
		t.Fatalf("expected population validation error, got %v", err)
	}
	bad = smallConfig("fuzzy")
	bad.Selection = map[string]float64{"lottery": 1}
	if _, err := client.Run(ctx, RunRequest{Config: bad}); err == nil {
		t.Fatal("expected unknown selector error")
	}
	if _, err := client.Resume(ctx, ResumeRequest{Config: smallConfig("fuzzy"), RunID: "missing"}); err == nil {
		t.Fatal("expected missing checkpoint error")
	}
	if _, err := client.FitnessHistory(ctx, "missing"); err == nil {
		t.Fatal("expected missing history error")
	}
	if _, err := client.Show(ctx, ShowRequest{}); err == nil {
		t.Fatal("expected run id error")
	}
	if _, err := New(Options{StoreKind: "postgres"}); err == nil {
		t.Fatal("expected unsupported store error")
	}
}

func TestPickPrefersValidFitness(t *testing.T) {
	population := []*model.Genome{
		{ID: 1, Fitness: model.Degenerate},
		{ID: 2, Fitness: 0.5},
		{ID: 3, Fitness: model.Fitness(math.NaN())},
		{ID: 4, Fitness: 1.5},
	}
	best, err := pick(population, 0)
	if err != nil || best.ID != 4 {
		t.Fatalf("best: %v err=%v", best, err)
	}
	chosen, err := pick(population, 2)
	if err != nil || chosen.ID != 2 {
		t.Fatalf("chosen: %v err=%v", chosen, err)
	}
	if _, err := pick(population, 99); err == nil {
		t.Fatal("expected missing individual error")
	}
}

func TestSeedingStreamDiffersFromLoopStream(t *testing.T) {
	for _, seed := range []int64{0, 1, 42} {
		seeding, loop := seedingRNG(seed), rand.New(rand.NewSource(seed))
		same := 0
		for i := 0; i < 8; i++ {
			if seeding.Int63() == loop.Int63() {
				same++
			}
		}
		if same == 8 {
			t.Fatalf("seed %d: population and loop streams are identical", seed)
		}
	}
}
