package evo

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"

	"genetrader/internal/model"
	"genetrader/internal/scape"
)

const (
	DefaultElitePercentage    = 0.1
	DefaultCheckpointInterval = 10
)

// Checkpointer persists population snapshots.
type Checkpointer interface {
	SaveCheckpoint(ctx context.Context, population model.Population) error
}

// Observer receives the diagnostics of every evaluated generation.
type Observer interface {
	ObserveGeneration(ctx context.Context, diagnostics model.GenerationDiagnostics) error
}

type MonitorConfig[T model.Individual] struct {
	Variant   Variant[T]
	Scape     scape.Scape[T]
	Windows   *scape.WindowSampler
	Selection Menu[Selector]
	Crossover Menu[Crossover]
	// Mutation adapts the rate between generations; nil keeps it fixed.
	Mutation MutationController

	RunID           string
	TargetSize      int
	Generations     int
	StartGeneration int
	Workers         int
	Seed            int64

	MutationRate    float64
	ElitePercentage float64
	TrimPercentage  float64
	TrimPolicy      string
	SpeciesEpsilon  float64

	Checkpointer       Checkpointer
	CheckpointInterval int
	Observers          []Observer
	Logger             *zerolog.Logger
}

type RunResult[T model.Individual] struct {
	Final        []T
	Diagnostics  []model.GenerationDiagnostics
	History      []float64
	MutationRate float64
	// NextGeneration is the generation number the final population would
	// be evaluated as.
	NextGeneration int
}

// PopulationMonitor drives the generational loop for one variant.
type PopulationMonitor[T model.Individual] struct {
	cfg MonitorConfig[T]
	rng *rand.Rand
	log *zerolog.Logger
}

func NewPopulationMonitor[T model.Individual](cfg MonitorConfig[T]) (*PopulationMonitor[T], error) {
	if cfg.Variant == nil {
		return nil, fmt.Errorf("variant is required")
	}
	if cfg.Scape == nil {
		return nil, fmt.Errorf("scape is required")
	}
	if cfg.Windows == nil || cfg.Windows.Len() == 0 {
		return nil, fmt.Errorf("at least one training window is required")
	}
	if err := cfg.Selection.Validate(); err != nil {
		return nil, fmt.Errorf("selection menu: %w", err)
	}
	if err := cfg.Crossover.Validate(); err != nil {
		return nil, fmt.Errorf("crossover menu: %w", err)
	}
	if cfg.TargetSize <= 0 {
		return nil, fmt.Errorf("target size must be > 0")
	}
	if cfg.Generations <= 0 {
		return nil, fmt.Errorf("generations must be > 0")
	}
	if cfg.StartGeneration < 0 {
		return nil, fmt.Errorf("start generation must be >= 0")
	}
	if cfg.MutationRate < 0 || cfg.MutationRate > 1 {
		return nil, fmt.Errorf("mutation rate must be in [0, 1]")
	}
	if cfg.ElitePercentage < 0 || cfg.ElitePercentage >= 1 {
		return nil, fmt.Errorf("elite percentage must be in [0, 1)")
	}
	if cfg.TrimPercentage < 0 || cfg.TrimPercentage >= 1 {
		return nil, fmt.Errorf("trim percentage must be in [0, 1)")
	}
	if cfg.TrimPolicy != "" && cfg.TrimPolicy != TrimTail && cfg.TrimPolicy != TrimFitness {
		return nil, fmt.Errorf("unknown trim policy %q", cfg.TrimPolicy)
	}
	if cfg.SpeciesEpsilon < 0 {
		return nil, fmt.Errorf("species epsilon must be >= 0")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Mutation == nil {
		cfg.Mutation = FixedRate{}
	}
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = DefaultCheckpointInterval
	}
	return &PopulationMonitor[T]{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
		log: loggerOrNop(cfg.Logger),
	}, nil
}

// Run evolves initial for the configured number of generations. It stops
// between generations when ctx is cancelled and returns ctx's error.
func (m *PopulationMonitor[T]) Run(ctx context.Context, initial []T) (RunResult[T], error) {
	if len(initial) == 0 {
		return RunResult[T]{}, fmt.Errorf("initial population is empty")
	}
	population := append([]T(nil), initial...)
	rate := m.cfg.MutationRate
	result := RunResult[T]{
		Diagnostics: make([]model.GenerationDiagnostics, 0, m.cfg.Generations),
		History:     make([]float64, 0, m.cfg.Generations),
	}

	last := m.cfg.StartGeneration + m.cfg.Generations
	for gen := m.cfg.StartGeneration; gen < last; gen++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		next, diag, err := m.generation(ctx, population, gen, rate)
		if err != nil {
			return result, fmt.Errorf("generation %d: %w", gen, err)
		}
		population = next
		rate = diag.nextRate
		result.Diagnostics = append(result.Diagnostics, diag.GenerationDiagnostics)
		result.History = append(result.History, diag.AverageFitness)

		m.log.Info().
			Str("run_id", m.cfg.RunID).
			Int("generation", gen).
			Float64("avg_fitness", diag.AverageFitness).
			Float64("best_fitness", float64(diag.BestFitness)).
			Float64("mutation_rate", diag.MutationRate).
			Str("selection", diag.Selection).
			Int("species", diag.SpeciesCount).
			Msg("generation complete")
		for _, obs := range m.cfg.Observers {
			if err := obs.ObserveGeneration(ctx, diag.GenerationDiagnostics); err != nil {
				m.log.Warn().Err(err).Int("generation", gen).Msg("generation observer failed")
			}
		}

		if (gen+1)%m.cfg.CheckpointInterval == 0 || gen+1 == last {
			m.checkpoint(ctx, population, gen+1, rate)
		}
	}

	result.Final = population
	result.MutationRate = rate
	result.NextGeneration = last
	return result, nil
}

type generationOutcome struct {
	model.GenerationDiagnostics
	nextRate float64
}

func (m *PopulationMonitor[T]) generation(ctx context.Context, population []T, gen int, rate float64) ([]T, generationOutcome, error) {
	window := m.cfg.Windows.Sample(m.rng)

	started := time.Now()
	fitness, err := EvaluatePopulation(ctx, m.cfg.Scape, population, window, m.cfg.Workers, m.log)
	if err != nil {
		return nil, generationOutcome{}, err
	}
	elapsed := time.Since(started)

	avg := AverageFitness(fitness)
	nextRate := m.cfg.Mutation.Next(rate, avg)

	ranked := Rank(population)
	elites, rest := Elites(ranked, m.cfg.ElitePercentage)
	species := Speciate(rest, m.cfg.SpeciesEpsilon)
	for _, e := range elites {
		e.Individual.SetSpecies(-1)
	}

	selector := m.cfg.Selection.Choose(m.rng)
	candidates := rest
	if len(candidates) == 0 {
		candidates = elites
	}
	selected, selectedAvg := SelectFrom(m.rng, selector, candidates, (m.cfg.TargetSize+1)/2)

	pool := make([]T, 0, len(elites)+len(selected))
	seen := make(map[uint64]struct{}, cap(pool))
	for _, s := range append(elites, selected...) {
		individual := s.Individual
		if _, dup := seen[individual.Identity()]; dup {
			individual = m.cfg.Variant.Clone(individual)
		}
		seen[individual.Identity()] = struct{}{}
		pool = append(pool, individual)
	}

	offspring, err := m.breed(pool, nextRate)
	if err != nil {
		return nil, generationOutcome{}, err
	}
	next, err := Trim(m.cfg.TrimPolicy, pool, offspring, m.cfg.TargetSize, m.cfg.TrimPercentage)
	if err != nil {
		return nil, generationOutcome{}, err
	}

	return next, generationOutcome{
		GenerationDiagnostics: model.GenerationDiagnostics{
			RunID:             m.cfg.RunID,
			Generation:        gen,
			AverageFitness:    avg,
			BestFitness:       BestFitness(fitness),
			ValidCount:        len(validValues(fitness)),
			SpeciesCount:      species,
			MutationRate:      nextRate,
			Selection:         selector.Name(),
			SelectedAvg:       selectedAvg,
			PopulationSize:    len(population),
			EvaluationSeconds: elapsed.Seconds(),
		},
		nextRate: nextRate,
	}, nil
}

// breed pairs the first half of pool with the second half, two offspring
// per pair. Extra pairs drawn at random from pool top up the result when
// pool plus offspring would fall short of the target size.
func (m *PopulationMonitor[T]) breed(pool []T, rate float64) ([]T, error) {
	half := len(pool) / 2
	offspring := make([]T, 0, m.cfg.TargetSize)
	mate := func(a, b T) error {
		c := m.cfg.Crossover.Choose(m.rng)
		o1, o2, err := m.cfg.Variant.Mate(m.rng, a, b, c, rate)
		if err != nil {
			return err
		}
		offspring = append(offspring, o1, o2)
		return nil
	}
	for i := 0; i < half; i++ {
		if err := mate(pool[i], pool[half+i]); err != nil {
			return nil, err
		}
	}
	for len(pool)+len(offspring) < m.cfg.TargetSize {
		if err := mate(pool[m.rng.Intn(len(pool))], pool[m.rng.Intn(len(pool))]); err != nil {
			return nil, err
		}
	}
	return offspring, nil
}

func (m *PopulationMonitor[T]) checkpoint(ctx context.Context, population []T, generation int, rate float64) {
	if m.cfg.Checkpointer == nil {
		return
	}
	snapshot := m.cfg.Variant.Capture(population)
	snapshot.RunID = m.cfg.RunID
	snapshot.Generation = generation
	snapshot.MutationRate = rate
	if err := m.cfg.Checkpointer.SaveCheckpoint(ctx, snapshot); err != nil {
		m.log.Warn().Err(err).Str("run_id", m.cfg.RunID).Int("generation", generation).Msg("checkpoint write failed")
		return
	}
	m.log.Debug().Str("run_id", m.cfg.RunID).Int("generation", generation).Int("size", len(population)).Msg("checkpoint saved")
}
