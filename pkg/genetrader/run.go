package genetrader

import (
	"context"
	"fmt"
	"math/rand"

	"genetrader/internal/config"
	"genetrader/internal/evo"
	"genetrader/internal/genotype"
	"genetrader/internal/model"
	"genetrader/internal/scape"
	"genetrader/internal/storage"
)

// runPlan is everything a run or resume shares once the population is known.
type runPlan struct {
	runID           string
	cfg             config.RunConfig
	windows         *scape.WindowSampler
	scorer          scape.Scorer
	ids             *genotype.IDFactory
	startGeneration int
	mutationRate    float64
	mutation        evo.MutationController
}

type variantParts[T model.Individual] struct {
	variant evo.Variant[T]
	scape   scape.Scape[T]
}

func networkParts(plan runPlan) variantParts[*model.Network] {
	return variantParts[*model.Network]{
		variant: evo.NetworkVariant{
			IDs:         plan.ids,
			Mutator:     evo.DefaultVectorMutator(),
			DropoutRate: plan.cfg.DropoutRate,
		},
		scape: scape.NetworkScape{Window: plan.cfg.Network.Window, Scorer: plan.scorer},
	}
}

func fuzzyParts(plan runPlan) variantParts[*model.Genome] {
	return variantParts[*model.Genome]{
		variant: evo.GenomeVariant{IDs: plan.ids, Mutator: genotype.DefaultGeneMutator()},
		scape:   scape.FuzzyScape{Scorer: plan.scorer},
	}
}

func runVariant[T model.Individual](ctx context.Context, c *Client, plan runPlan, parts variantParts[T], initial []T) (RunSummary, error) {
	cfg := plan.cfg
	selection, err := evo.SelectorMenu(cfg.Selection)
	if err != nil {
		return RunSummary{}, fmt.Errorf("selection menu: %w", err)
	}
	crossover, err := evo.CrossoverMenu(cfg.Crossover)
	if err != nil {
		return RunSummary{}, fmt.Errorf("crossover menu: %w", err)
	}

	observers := append([]evo.Observer{diagnosticsRecorder{store: c.store}}, c.observers...)
	monitor, err := evo.NewPopulationMonitor(evo.MonitorConfig[T]{
		Variant:            parts.variant,
		Scape:              parts.scape,
		Windows:            plan.windows,
		Selection:          selection,
		Crossover:          crossover,
		Mutation:           plan.mutation,
		RunID:              plan.runID,
		TargetSize:         cfg.Population,
		Generations:        cfg.Generations,
		StartGeneration:    plan.startGeneration,
		Workers:            cfg.Workers,
		Seed:               cfg.Seed,
		MutationRate:       plan.mutationRate,
		ElitePercentage:    cfg.ElitePercentage,
		TrimPercentage:     cfg.TrimPercentage,
		TrimPolicy:         cfg.TrimPolicy,
		SpeciesEpsilon:     cfg.SpeciesEpsilon,
		Checkpointer:       c.store,
		CheckpointInterval: cfg.Checkpoint.Interval,
		Observers:          observers,
		Logger:             c.log,
	})
	if err != nil {
		return RunSummary{}, err
	}

	result, err := monitor.Run(ctx, initial)
	if err != nil {
		return RunSummary{}, err
	}

	best := model.Degenerate
	for _, d := range result.Diagnostics {
		if d.BestFitness.Valid() && (!best.Valid() || d.BestFitness > best) {
			best = d.BestFitness
		}
	}
	c.log.Info().Str("run_id", plan.runID).Int("next_generation", result.NextGeneration).
		Float64("best_fitness", float64(best)).Float64("mutation_rate", result.MutationRate).Msg("run finished")

	return RunSummary{
		RunID:            plan.runID,
		Variant:          cfg.Variant,
		StartGeneration:  plan.startGeneration,
		NextGeneration:   result.NextGeneration,
		History:          result.History,
		FinalBestFitness: best,
		MutationRate:     result.MutationRate,
		PopulationSize:   len(result.Final),
	}, nil
}

// diagnosticsRecorder stores each generation's diagnostics beside the
// run's checkpoints.
type diagnosticsRecorder struct {
	store storage.Store
}

func (r diagnosticsRecorder) ObserveGeneration(ctx context.Context, d model.GenerationDiagnostics) error {
	return r.store.AppendGenerationDiagnostics(ctx, d)
}

// seedingRNG draws the initial population. It is offset from the seed the
// generational loop uses so the two never share a stream.
func seedingRNG(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed + 1))
}

func mutationController(cfg config.RunConfig, history []float64) evo.MutationController {
	if !cfg.Hypermutation {
		return nil
	}
	h := evo.NewHypermutation()
	h.Prime(history)
	return h
}

func newScorer(cfg config.ScorerConfig) (scape.Scorer, error) {
	return scape.NewScorer(cfg.Name, scape.ScorerParams{
		RiskFree:    cfg.RiskFree,
		TradeWeight: cfg.TradeWeight,
		MinTrades:   cfg.MinTrades,
		MaxTrades:   cfg.MaxTrades,
	})
}

type dataset struct {
	train   scape.Series
	test    scape.Series
	windows *scape.WindowSampler
}

// loadData reads the configured price series, splits it by position and
// cuts rolling training windows from the leading part.
func loadData(cfg config.DataConfig) (dataset, error) {
	var (
		series scape.Series
		err    error
	)
	if cfg.Path != "" {
		series, err = scape.LoadSeriesCSV(cfg.Path)
		if err != nil {
			return dataset{}, err
		}
	} else {
		series = scape.SyntheticSeries(cfg.SyntheticBars)
	}
	fraction := cfg.TrainFraction
	if fraction <= 0 {
		fraction = 0.8
	}
	train, test, err := series.Split(fraction)
	if err != nil {
		return dataset{}, err
	}
	if train.Len() < 2 {
		return dataset{}, fmt.Errorf("training split of %s has %d bars", series.Name, train.Len())
	}
	windows, err := scape.NewWindowSampler(train.Windows(cfg.WindowLength, cfg.WindowStep))
	if err != nil {
		return dataset{}, err
	}
	return dataset{train: train, test: test, windows: windows}, nil
}
