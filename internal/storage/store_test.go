package storage

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"testing"

	"genetrader/internal/genotype"
	"genetrader/internal/model"
)

type backend struct {
	name string
	open func(t *testing.T) Store
}

func backends() []backend {
	return []backend{
		{name: "memory", open: func(t *testing.T) Store { return NewMemoryStore() }},
		{name: "file", open: func(t *testing.T) Store { return NewFileStore(filepath.Join(t.TempDir(), "checkpoints")) }},
		{name: "sqlite", open: func(t *testing.T) Store { return NewSQLiteStore(filepath.Join(t.TempDir(), "genetrader.db")) }},
	}
}

func openStore(t *testing.T, b backend) Store {
	t.Helper()
	store := b.open(t)
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("%s init: %v", b.name, err)
	}
	t.Cleanup(func() {
		_ = CloseIfSupported(store)
	})
	return store
}

func fuzzySnapshot(t *testing.T, runID string, generation int) model.Population {
	t.Helper()
	ids := genotype.NewIDFactory(1)
	genomes, err := genotype.SeedPopulation(ids, rand.New(rand.NewSource(int64(generation)+1)), 2, 4)
	if err != nil {
		t.Fatalf("seed population: %v", err)
	}
	genomes[0].Fitness = model.Degenerate
	genomes[1].Fitness = 0.1 + 0.2
	genomes[2].Fitness = model.Fitness(math.Nextafter(1, 2))
	genomes[3].Fitness = -1.0 / 3
	genomes[3].Cluster = 2
	return model.Population{
		RunID:        runID,
		Variant:      model.VariantFuzzy,
		Generation:   generation,
		MutationRate: 0.35,
		NextID:       ids.Peek(),
		Genomes:      genomes,
	}
}

func networkSnapshot(t *testing.T, runID string, generation int) model.Population {
	t.Helper()
	ids := genotype.NewIDFactory(100)
	network, err := genotype.NewNetwork(ids, rand.New(rand.NewSource(9)), genotype.TradingTopology(4, []int{3}, "tanh"))
	if err != nil {
		t.Fatalf("network: %v", err)
	}
	network.Fitness = 1.2345678901234567
	return model.Population{
		RunID:      runID,
		Variant:    model.VariantNetwork,
		Generation: generation,
		NextID:     ids.Peek(),
		Networks:   []*model.Network{network},
	}
}

func TestStoresRoundTripCheckpoints(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			store := openStore(t, b)
			want := fuzzySnapshot(t, "run-a", 10)
			if err := store.SaveCheckpoint(ctx, want); err != nil {
				t.Fatalf("save: %v", err)
			}

			got, ok, err := store.GetCheckpoint(ctx, "run-a", 10)
			if err != nil || !ok {
				t.Fatalf("get: ok=%t err=%v", ok, err)
			}
			if got.SchemaVersion != CurrentSchemaVersion || got.CodecVersion != CurrentCodecVersion {
				t.Fatalf("versions not stamped: %+v", got.VersionedRecord)
			}
			if got.RunID != want.RunID || got.Generation != 10 || got.NextID != want.NextID || got.MutationRate != 0.35 {
				t.Fatalf("unexpected header: %+v", got)
			}
			if len(got.Genomes) != len(want.Genomes) {
				t.Fatalf("genome count %d, want %d", len(got.Genomes), len(want.Genomes))
			}
			for i, genome := range got.Genomes {
				source := want.Genomes[i]
				if genome.ID != source.ID || genome.Cluster != source.Cluster {
					t.Fatalf("genome %d header mismatch", i)
				}
				if genome.Fitness != source.Fitness && !(math.IsInf(float64(genome.Fitness), -1) && math.IsInf(float64(source.Fitness), -1)) {
					t.Fatalf("genome %d fitness %v, want %v", i, genome.Fitness, source.Fitness)
				}
				for j, gene := range genome.Genes {
					for k, v := range gene.Value {
						if math.Float64bits(v) != math.Float64bits(source.Genes[j].Value[k]) {
							t.Fatalf("gene %s value %d not bit-exact", gene.Name, k)
						}
					}
				}
				if _, ok := genome.Gene(genome.Genes[0].Name); !ok {
					t.Fatalf("decoded genome %d lost its name index", genome.ID)
				}
			}

			if _, ok, err := store.GetCheckpoint(ctx, "run-a", 11); err != nil || ok {
				t.Fatalf("missing generation: ok=%t err=%v", ok, err)
			}
		})
	}
}

func TestStoresListAndLatest(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			store := openStore(t, b)
			for _, p := range []model.Population{
				fuzzySnapshot(t, "run-b", 20),
				fuzzySnapshot(t, "run-b", 10),
				networkSnapshot(t, "run-a", 5),
			} {
				if err := store.SaveCheckpoint(ctx, p); err != nil {
					t.Fatalf("save %s/%d: %v", p.RunID, p.Generation, err)
				}
			}

			all, err := store.ListCheckpoints(ctx, "")
			if err != nil {
				t.Fatalf("list all: %v", err)
			}
			if len(all) != 3 || all[0].RunID != "run-a" || all[1].Generation != 10 || all[2].Generation != 20 {
				t.Fatalf("unexpected listing: %+v", all)
			}
			if all[0].Variant != model.VariantNetwork || all[0].Size != 1 || all[1].Size != 4 || all[1].Bytes <= 0 {
				t.Fatalf("unexpected checkpoint info: %+v", all)
			}

			runB, err := store.ListCheckpoints(ctx, "run-b")
			if err != nil || len(runB) != 2 {
				t.Fatalf("list run-b: %d err=%v", len(runB), err)
			}

			latest, ok, err := store.LatestCheckpoint(ctx, "run-b")
			if err != nil || !ok || latest.Generation != 20 {
				t.Fatalf("latest: gen=%d ok=%t err=%v", latest.Generation, ok, err)
			}
			network, ok, err := store.LatestCheckpoint(ctx, "run-a")
			if err != nil || !ok || len(network.Networks) != 1 || network.Networks[0].Fitness != 1.2345678901234567 {
				t.Fatalf("latest network: ok=%t err=%v", ok, err)
			}
			if _, ok, err := store.LatestCheckpoint(ctx, "run-z"); err != nil || ok {
				t.Fatalf("unknown run: ok=%t err=%v", ok, err)
			}
		})
	}
}

func TestStoresOverwriteSameGeneration(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			store := openStore(t, b)
			first := fuzzySnapshot(t, "run-c", 3)
			second := fuzzySnapshot(t, "run-c", 3)
			second.MutationRate = 0.9
			for _, p := range []model.Population{first, second} {
				if err := store.SaveCheckpoint(ctx, p); err != nil {
					t.Fatalf("save: %v", err)
				}
			}
			infos, err := store.ListCheckpoints(ctx, "run-c")
			if err != nil || len(infos) != 1 {
				t.Fatalf("expected one checkpoint, got %d err=%v", len(infos), err)
			}
			got, _, err := store.GetCheckpoint(ctx, "run-c", 3)
			if err != nil || got.MutationRate != 0.9 {
				t.Fatalf("overwrite lost: rate=%f err=%v", got.MutationRate, err)
			}
		})
	}
}

func TestStoresRejectInvalidRunIDs(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			store := openStore(t, b)
			for _, runID := range []string{"", "..", "a/b", `a\b`} {
				p := fuzzySnapshot(t, "x", 1)
				p.RunID = runID
				if err := store.SaveCheckpoint(ctx, p); !errors.Is(err, ErrInvalidRunID) {
					t.Fatalf("run id %q: expected ErrInvalidRunID, got %v", runID, err)
				}
				if err := store.AppendGenerationDiagnostics(ctx, model.GenerationDiagnostics{RunID: runID}); !errors.Is(err, ErrInvalidRunID) {
					t.Fatalf("diagnostics run id %q: expected ErrInvalidRunID, got %v", runID, err)
				}
			}
		})
	}
}

func TestStoresDiagnosticsAndFitnessHistory(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			store := openStore(t, b)
			if _, ok, err := store.GetFitnessHistory(ctx, "run-d"); err != nil || ok {
				t.Fatalf("empty history: ok=%t err=%v", ok, err)
			}
			for _, d := range []model.GenerationDiagnostics{
				{RunID: "run-d", Generation: 1, AverageFitness: 0.5, BestFitness: 1.5, Selection: "sus"},
				{RunID: "run-d", Generation: 0, AverageFitness: 0.25, BestFitness: model.Degenerate},
				{RunID: "run-d", Generation: 1, AverageFitness: 0.75, BestFitness: 2, Selection: "rank"},
				{RunID: "run-e", Generation: 0, AverageFitness: 9},
			} {
				if err := store.AppendGenerationDiagnostics(ctx, d); err != nil {
					t.Fatalf("append: %v", err)
				}
			}

			diagnostics, ok, err := store.GetGenerationDiagnostics(ctx, "run-d")
			if err != nil || !ok || len(diagnostics) != 2 {
				t.Fatalf("diagnostics: %d ok=%t err=%v", len(diagnostics), ok, err)
			}
			if diagnostics[1].Selection != "rank" || !math.IsInf(float64(diagnostics[0].BestFitness), -1) {
				t.Fatalf("unexpected diagnostics: %+v", diagnostics)
			}
			history, ok, err := store.GetFitnessHistory(ctx, "run-d")
			if err != nil || !ok || len(history) != 2 || history[0] != 0.25 || history[1] != 0.75 {
				t.Fatalf("history: %v ok=%t err=%v", history, ok, err)
			}
		})
	}
}

func TestStoresRequireInit(t *testing.T) {
	ctx := context.Background()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			store := b.open(t)
			if err := store.SaveCheckpoint(ctx, fuzzySnapshot(t, "run", 1)); err == nil {
				t.Fatal("expected error before init")
			}
		})
	}
}

func TestNewStore(t *testing.T) {
	for _, kind := range []string{"", "memory", "file", "sqlite"} {
		if _, err := NewStore(kind, t.TempDir()); err != nil {
			t.Fatalf("kind %q: %v", kind, err)
		}
	}
	if _, err := NewStore("postgres", ""); err == nil {
		t.Fatal("expected unsupported backend error")
	}
	if err := NewSQLiteStore("").Init(context.Background()); err == nil {
		t.Fatal("expected sqlite path error")
	}
}
