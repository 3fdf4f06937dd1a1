package genetrader

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"genetrader/internal/config"
	"genetrader/internal/evo"
	"genetrader/internal/genotype"
	"genetrader/internal/model"
	"genetrader/internal/scape"
	"genetrader/internal/storage"
)

// Observer receives the diagnostics of every completed generation.
type Observer = evo.Observer

type Options struct {
	StoreKind string
	// StorePath is the sqlite database file or the checkpoint directory.
	StorePath string
	Logger    *zerolog.Logger
	// Observers receive every generation's diagnostics after the store.
	Observers []Observer
}

type Client struct {
	store     storage.Store
	log       *zerolog.Logger
	observers []evo.Observer
}

type RunRequest struct {
	Config config.RunConfig
	// RunID names the checkpoint namespace; a random UUID when empty.
	RunID string
}

type ResumeRequest struct {
	Config config.RunConfig
	RunID  string
	// Generation selects the checkpoint; zero resumes from the latest.
	Generation int
	// Generations to run after the checkpoint; Config.Generations when zero.
	Generations int
}

type RunSummary struct {
	RunID            string
	Variant          string
	StartGeneration  int
	NextGeneration   int
	History          []float64
	FinalBestFitness model.Fitness
	MutationRate     float64
	PopulationSize   int
}

type ShowRequest struct {
	RunID      string
	Generation int
}

type EvaluateRequest struct {
	Config     config.RunConfig
	RunID      string
	Generation int
	// IndividualID picks one individual; zero picks the best stored fitness.
	IndividualID uint64
}

// EvaluateReport benchmarks one checkpointed individual on the test split.
type EvaluateReport struct {
	RunID          string
	Generation     int
	IndividualID   uint64
	Variant        string
	Bars           int
	Fitness        model.Fitness
	StrategyReturn float64
	BuyAndHold     float64
	Trades         int
	Sortino        model.Fitness
	MaxDrawdown    float64
}

func New(opts Options) (*Client, error) {
	store, err := storage.NewStore(opts.StoreKind, opts.StorePath)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &Client{store: store, log: log, observers: opts.Observers}, nil
}

func (c *Client) Init(ctx context.Context) error {
	return c.store.Init(ctx)
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

// Run seeds a fresh population and evolves it for cfg.Generations.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	cfg := req.Config
	if err := cfg.Validate(); err != nil {
		return RunSummary{}, err
	}
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	if err := storage.ValidateRunID(runID); err != nil {
		return RunSummary{}, err
	}

	data, err := loadData(cfg.Data)
	if err != nil {
		return RunSummary{}, err
	}
	scorer, err := newScorer(cfg.Scorer)
	if err != nil {
		return RunSummary{}, err
	}
	rng := seedingRNG(cfg.Seed)
	ids := genotype.NewIDFactory(1)
	plan := runPlan{
		runID:        runID,
		cfg:          cfg,
		windows:      data.windows,
		scorer:       scorer,
		ids:          ids,
		mutationRate: cfg.MutationRate,
		mutation:     mutationController(cfg, nil),
	}

	c.log.Info().Str("run_id", runID).Str("variant", cfg.Variant).Int("population", cfg.Population).
		Int("generations", cfg.Generations).Int("windows", data.windows.Len()).Msg("run started")

	switch cfg.Variant {
	case model.VariantNetwork:
		topology := genotype.TradingTopology(cfg.Network.Window, cfg.Network.Hidden, cfg.Network.Activation)
		initial := make([]*model.Network, cfg.Population)
		for i := range initial {
			network, err := genotype.NewNetwork(ids, rng, topology)
			if err != nil {
				return RunSummary{}, fmt.Errorf("seed network: %w", err)
			}
			initial[i] = network
		}
		return runVariant(ctx, c, plan, networkParts(plan), initial)
	case model.VariantFuzzy:
		initial, err := genotype.SeedPopulation(ids, rng, cfg.Fuzzy.SeedCount, cfg.Population)
		if err != nil {
			return RunSummary{}, err
		}
		return runVariant(ctx, c, plan, fuzzyParts(plan), initial)
	default:
		return RunSummary{}, fmt.Errorf("unsupported variant: %s", cfg.Variant)
	}
}

// Resume continues a run from a stored checkpoint, carrying its generation
// number, mutation rate, identity counter and fitness history forward.
func (c *Client) Resume(ctx context.Context, req ResumeRequest) (RunSummary, error) {
	snapshot, err := c.loadCheckpoint(ctx, req.RunID, req.Generation)
	if err != nil {
		return RunSummary{}, err
	}
	cfg := req.Config
	cfg.Variant = snapshot.Variant
	if req.Generations > 0 {
		cfg.Generations = req.Generations
	}
	if snapshot.Size() > 0 {
		cfg.Population = snapshot.Size()
	}
	if cfg.Variant == model.VariantFuzzy && cfg.Fuzzy.SeedCount > cfg.Population {
		cfg.Fuzzy.SeedCount = cfg.Population
	}
	if cfg.Variant == model.VariantNetwork && len(snapshot.Networks) > 0 && len(snapshot.Networks[0].Layers) > 0 {
		cfg.Network.Window = snapshot.Networks[0].Layers[0].Inputs()
	}
	if err := cfg.Validate(); err != nil {
		return RunSummary{}, err
	}
	// A resumed run draws a different stream from the original.
	cfg.Seed += int64(snapshot.Generation)

	data, err := loadData(cfg.Data)
	if err != nil {
		return RunSummary{}, err
	}
	scorer, err := newScorer(cfg.Scorer)
	if err != nil {
		return RunSummary{}, err
	}
	history, err := c.historyBefore(ctx, req.RunID, snapshot.Generation)
	if err != nil {
		return RunSummary{}, err
	}
	plan := runPlan{
		runID:           req.RunID,
		cfg:             cfg,
		windows:         data.windows,
		scorer:          scorer,
		ids:             genotype.NewIDFactory(snapshot.NextID),
		startGeneration: snapshot.Generation,
		mutationRate:    snapshot.MutationRate,
		mutation:        mutationController(cfg, history),
	}

	c.log.Info().Str("run_id", req.RunID).Int("generation", snapshot.Generation).Str("variant", snapshot.Variant).
		Int("population", snapshot.Size()).Float64("mutation_rate", snapshot.MutationRate).Msg("run resumed")

	switch snapshot.Variant {
	case model.VariantNetwork:
		return runVariant(ctx, c, plan, networkParts(plan), snapshot.Networks)
	case model.VariantFuzzy:
		return runVariant(ctx, c, plan, fuzzyParts(plan), snapshot.Genomes)
	default:
		return RunSummary{}, fmt.Errorf("unsupported checkpoint variant: %s", snapshot.Variant)
	}
}

// Checkpoints lists stored checkpoints; an empty run id lists every run.
func (c *Client) Checkpoints(ctx context.Context, runID string) ([]model.CheckpointInfo, error) {
	return c.store.ListCheckpoints(ctx, runID)
}

func (c *Client) Show(ctx context.Context, req ShowRequest) (model.Population, error) {
	return c.loadCheckpoint(ctx, req.RunID, req.Generation)
}

func (c *Client) FitnessHistory(ctx context.Context, runID string) ([]float64, error) {
	if runID == "" {
		return nil, errors.New("run id is required")
	}
	history, ok, err := c.store.GetFitnessHistory(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	return history, nil
}

func (c *Client) Diagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, error) {
	if runID == "" {
		return nil, errors.New("run id is required")
	}
	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("diagnostics not found for run id: %s", runID)
	}
	return diagnostics, nil
}

// Evaluate replays one checkpointed individual over the held-out test split
// and compares it with buy-and-hold.
func (c *Client) Evaluate(ctx context.Context, req EvaluateRequest) (EvaluateReport, error) {
	snapshot, err := c.loadCheckpoint(ctx, req.RunID, req.Generation)
	if err != nil {
		return EvaluateReport{}, err
	}
	data, err := loadData(req.Config.Data)
	if err != nil {
		return EvaluateReport{}, err
	}
	scorer, err := newScorer(req.Config.Scorer)
	if err != nil {
		return EvaluateReport{}, err
	}

	var (
		id      uint64
		fitness model.Fitness
		trace   scape.Trace
	)
	switch snapshot.Variant {
	case model.VariantNetwork:
		network, err := pick(snapshot.Networks, req.IndividualID)
		if err != nil {
			return EvaluateReport{}, err
		}
		window := 0
		if len(network.Layers) > 0 {
			window = network.Layers[0].Inputs()
		}
		id = network.ID
		fitness, trace, err = scape.NetworkScape{Window: window, Scorer: scorer}.Evaluate(ctx, network, data.test)
		if err != nil {
			return EvaluateReport{}, fmt.Errorf("evaluate network %d: %w", id, err)
		}
	case model.VariantFuzzy:
		genome, err := pick(snapshot.Genomes, req.IndividualID)
		if err != nil {
			return EvaluateReport{}, err
		}
		id = genome.ID
		fitness, trace, err = scape.FuzzyScape{Scorer: scorer}.Evaluate(ctx, genome, data.test)
		if err != nil {
			return EvaluateReport{}, fmt.Errorf("evaluate genome %d: %w", id, err)
		}
	default:
		return EvaluateReport{}, fmt.Errorf("unsupported checkpoint variant: %s", snapshot.Variant)
	}

	report := EvaluateReport{
		RunID:        snapshot.RunID,
		Generation:   snapshot.Generation,
		IndividualID: id,
		Variant:      snapshot.Variant,
		Fitness:      fitness,
	}
	report.Bars, _ = trace["bars"].(int)
	report.Trades, _ = trace["trades"].(int)
	report.StrategyReturn, _ = trace["strategy_return"].(float64)
	report.BuyAndHold, _ = trace["buy_and_hold"].(float64)
	if sortino, ok := trace["sortino"].(float64); ok {
		report.Sortino = model.Fitness(sortino)
	}
	report.MaxDrawdown, _ = trace["max_drawdown"].(float64)
	return report, nil
}

func (c *Client) loadCheckpoint(ctx context.Context, runID string, generation int) (model.Population, error) {
	if runID == "" {
		return model.Population{}, errors.New("run id is required")
	}
	var (
		snapshot model.Population
		ok       bool
		err      error
	)
	if generation > 0 {
		snapshot, ok, err = c.store.GetCheckpoint(ctx, runID, generation)
	} else {
		snapshot, ok, err = c.store.LatestCheckpoint(ctx, runID)
	}
	if err != nil {
		return model.Population{}, err
	}
	if !ok {
		if generation > 0 {
			return model.Population{}, fmt.Errorf("checkpoint not found: %s generation %d", runID, generation)
		}
		return model.Population{}, fmt.Errorf("no checkpoints for run id: %s", runID)
	}
	return snapshot, nil
}

// historyBefore returns the stored average fitness of generations evaluated
// before the checkpoint generation.
func (c *Client) historyBefore(ctx context.Context, runID string, generation int) ([]float64, error) {
	diagnostics, ok, err := c.store.GetGenerationDiagnostics(ctx, runID)
	if err != nil || !ok {
		return nil, err
	}
	var history []float64
	for _, d := range diagnostics {
		if d.Generation < generation {
			history = append(history, d.AverageFitness)
		}
	}
	return history, nil
}

func pick[T model.Individual](population []T, id uint64) (T, error) {
	var zero T
	if len(population) == 0 {
		return zero, errors.New("checkpoint holds no individuals")
	}
	if id != 0 {
		for _, individual := range population {
			if individual.Identity() == id {
				return individual, nil
			}
		}
		return zero, fmt.Errorf("individual %d not found in checkpoint", id)
	}
	best := population[0]
	for _, individual := range population[1:] {
		if betterScore(individual.Score(), best.Score()) {
			best = individual
		}
	}
	return best, nil
}

func betterScore(a, b model.Fitness) bool {
	if a.Valid() != b.Valid() {
		return a.Valid()
	}
	return a > b
}
