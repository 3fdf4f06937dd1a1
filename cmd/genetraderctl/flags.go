package main

import (
	"context"
	"flag"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"genetrader/internal/config"
	api "genetrader/pkg/genetrader"
)

type commonFlags struct {
	configPath *string
	store      *string
	storePath  *string
	logLevel   *string
	logJSON    *bool
}

func bindCommon(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath: fs.String("config", "", "YAML run configuration"),
		store:      fs.String("store", "", "checkpoint store: memory|file|sqlite (config default memory)"),
		storePath:  fs.String("store-path", "", "sqlite database file or checkpoint directory"),
		logLevel:   fs.String("log-level", "", "log level: trace|debug|info|warn|error"),
		logJSON:    fs.Bool("log-json", false, "write logs as JSON lines"),
	}
}

// load reads the config file and environment, then applies the common flags
// that were set explicitly.
func (c commonFlags) load(fs *flag.FlagSet) (config.RunConfig, error) {
	cfg, err := config.Load(*c.configPath)
	if err != nil {
		return config.RunConfig{}, err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "store":
			cfg.Checkpoint.Store = *c.store
		case "store-path":
			cfg.Checkpoint.Path = *c.storePath
		case "log-level":
			cfg.Logging.Level = *c.logLevel
		case "log-json":
			cfg.Logging.JSON = *c.logJSON
		}
	})
	return cfg, nil
}

func (c commonFlags) config(fs *flag.FlagSet, overrides *runOverrides) (config.RunConfig, error) {
	cfg, err := c.load(fs)
	if err != nil {
		return config.RunConfig{}, err
	}
	if err := overrides.apply(fs, &cfg); err != nil {
		return config.RunConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.RunConfig{}, err
	}
	return cfg, nil
}

// client opens the configured store for read-only commands.
func (c commonFlags) client(ctx context.Context, fs *flag.FlagSet) (*api.Client, error) {
	cfg, err := c.load(fs)
	if err != nil {
		return nil, err
	}
	return openClient(ctx, cfg.Checkpoint.Store, cfg.Checkpoint.Path, nil, nil)
}

type runOverrides struct {
	variant        *string
	population     *int
	generations    *int
	seed           *int64
	workers        *int
	data           *string
	window         *int
	hidden         *string
	activation     *string
	seedCount      *int
	mutationRate   *float64
	dropoutRate    *float64
	elitePct       *float64
	trimPct        *float64
	trimPolicy     *string
	speciesEpsilon *float64
	hypermutation  *bool
	interval       *int
	selection      *string
	crossover      *string
	scorer         *string
	windowLength   *int
	windowStep     *int
	trainFraction  *float64
}

func bindRunOverrides(fs *flag.FlagSet) *runOverrides {
	return &runOverrides{
		variant:        fs.String("variant", "", "genome variant: network|fuzzy"),
		population:     fs.Int("pop", 0, "population size"),
		generations:    fs.Int("gens", 0, "generations to run"),
		seed:           fs.Int64("seed", 0, "random seed"),
		workers:        fs.Int("workers", 0, "evaluation workers"),
		data:           fs.String("data", "", "price CSV (synthetic series when empty)"),
		window:         fs.Int("window", 0, "network input window in bars"),
		hidden:         fs.String("hidden", "", "hidden layer widths, comma separated"),
		activation:     fs.String("activation", "", "hidden layer activation"),
		seedCount:      fs.Int("seed-count", 0, "seed genome clones in a fuzzy population"),
		mutationRate:   fs.Float64("mutation-rate", 0, "initial mutation rate"),
		dropoutRate:    fs.Float64("dropout", 0, "network weight dropout rate"),
		elitePct:       fs.Float64("elite", 0, "elite percentage"),
		trimPct:        fs.Float64("trim", 0, "trim percentage"),
		trimPolicy:     fs.String("trim-policy", "", "trim policy: tail|fitness"),
		speciesEpsilon: fs.Float64("species-eps", 0, "speciation fitness gap"),
		hypermutation:  fs.Bool("hypermutation", true, "adapt the mutation rate from fitness history"),
		interval:       fs.Int("checkpoint-interval", 0, "generations between checkpoints"),
		selection:      fs.String("selection", "", "selection menu, e.g. sus=2,tournament"),
		crossover:      fs.String("crossover", "", "crossover menu, e.g. uniform,sbx=0.5"),
		scorer:         fs.String("scorer", "", "fitness scorer name"),
		windowLength:   fs.Int("window-length", 0, "training window length in bars"),
		windowStep:     fs.Int("window-step", 0, "training window step in bars"),
		trainFraction:  fs.Float64("train-fraction", 0, "leading fraction of bars used for training"),
	}
}

// apply copies explicitly set flags over cfg.
func (o *runOverrides) apply(fs *flag.FlagSet, cfg *config.RunConfig) error {
	var err error
	fs.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}
		switch f.Name {
		case "variant":
			cfg.Variant = *o.variant
		case "pop":
			cfg.Population = *o.population
		case "gens":
			cfg.Generations = *o.generations
		case "seed":
			cfg.Seed = *o.seed
		case "workers":
			cfg.Workers = *o.workers
		case "data":
			cfg.Data.Path = *o.data
		case "window":
			cfg.Network.Window = *o.window
		case "hidden":
			cfg.Network.Hidden, err = config.ParseHidden(*o.hidden)
		case "activation":
			cfg.Network.Activation = *o.activation
		case "seed-count":
			cfg.Fuzzy.SeedCount = *o.seedCount
		case "mutation-rate":
			cfg.MutationRate = *o.mutationRate
		case "dropout":
			cfg.DropoutRate = *o.dropoutRate
		case "elite":
			cfg.ElitePercentage = *o.elitePct
		case "trim":
			cfg.TrimPercentage = *o.trimPct
		case "trim-policy":
			cfg.TrimPolicy = *o.trimPolicy
		case "species-eps":
			cfg.SpeciesEpsilon = *o.speciesEpsilon
		case "hypermutation":
			cfg.Hypermutation = *o.hypermutation
		case "checkpoint-interval":
			cfg.Checkpoint.Interval = *o.interval
		case "selection":
			cfg.Selection, err = config.ParseMenu(*o.selection)
		case "crossover":
			cfg.Crossover, err = config.ParseMenu(*o.crossover)
		case "scorer":
			cfg.Scorer.Name = *o.scorer
		case "window-length":
			cfg.Data.WindowLength = *o.windowLength
		case "window-step":
			cfg.Data.WindowStep = *o.windowStep
		case "train-fraction":
			cfg.Data.TrainFraction = *o.trainFraction
		}
	})
	return err
}

func newLogger(level string, jsonOut bool, w io.Writer) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(level))
		if err != nil {
			return zerolog.Logger{}, err
		}
		lvl = parsed
	}
	if !jsonOut {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05"}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}
