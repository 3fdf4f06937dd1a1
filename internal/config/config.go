// Package config loads run configuration for the trading-signal GA.
//
// Sources are layered: Default(), then a YAML file, then GENETRADER_*
// environment variables, then command-line flags applied by the caller.
// Validate runs last.
//
// Environment overrides:
//
//	GENETRADER_VARIANT=fuzzy            # network|fuzzy
//	GENETRADER_POPULATION=100
//	GENETRADER_GENERATIONS=50
//	GENETRADER_WORKERS=8
//	GENETRADER_SEED=1
//	GENETRADER_STORE=sqlite             # memory|file|sqlite
//	GENETRADER_CHECKPOINT_PATH=./checkpoints.db
//	GENETRADER_DATA=./prices.csv
//	GENETRADER_HYPERMUTATION=true
//
// Example YAML:
//
//	variant: network
//	population: 100
//	generations: 50
//	network:
//	  window: 20
//	  hidden: [100, 50]
//	  activation: tanh
//	selection: {sus: 1, tournament: 1, rank: 1, roulette: 1}
//	crossover: {uniform: 1, single_point: 1, two_point: 1, linear: 1, sbx: 1}
//	checkpoint:
//	  interval: 10
//	  store: sqlite
//	  path: ./checkpoints.db
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const EnvPrefix = "GENETRADER_"

type RunConfig struct {
	Variant         string  `yaml:"variant"`
	Population      int     `yaml:"population"`
	Generations     int     `yaml:"generations"`
	Seed            int64   `yaml:"seed"`
	Workers         int     `yaml:"workers"`
	MutationRate    float64 `yaml:"mutation_rate"`
	DropoutRate     float64 `yaml:"dropout_rate"`
	ElitePercentage float64 `yaml:"elite_percentage"`
	TrimPercentage  float64 `yaml:"trim_percentage"`
	TrimPolicy      string  `yaml:"trim_policy"`
	SpeciesEpsilon  float64 `yaml:"species_epsilon"`
	Hypermutation   bool    `yaml:"hypermutation"`

	Selection map[string]float64 `yaml:"selection"`
	Crossover map[string]float64 `yaml:"crossover"`

	Network    NetworkConfig    `yaml:"network"`
	Fuzzy      FuzzyConfig      `yaml:"fuzzy"`
	Data       DataConfig       `yaml:"data"`
	Scorer     ScorerConfig     `yaml:"scorer"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type NetworkConfig struct {
	Window     int    `yaml:"window"`
	Hidden     []int  `yaml:"hidden"`
	Activation string `yaml:"activation"`
}

type FuzzyConfig struct {
	SeedCount int `yaml:"seed_count"`
}

// DataConfig points at the price CSV. An empty path uses a synthetic series.
type DataConfig struct {
	Path          string  `yaml:"path"`
	SyntheticBars int     `yaml:"synthetic_bars"`
	TrainFraction float64 `yaml:"train_fraction"`
	WindowLength  int     `yaml:"window_length"`
	WindowStep    int     `yaml:"window_step"`
}

type ScorerConfig struct {
	Name        string  `yaml:"name"`
	RiskFree    float64 `yaml:"risk_free"`
	TradeWeight float64 `yaml:"trade_weight"`
	MinTrades   int     `yaml:"min_trades"`
	MaxTrades   int     `yaml:"max_trades"`
}

type CheckpointConfig struct {
	Interval int    `yaml:"interval"`
	Store    string `yaml:"store"`
	Path     string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

func Default() RunConfig {
	return RunConfig{
		Variant:         "network",
		Population:      100,
		Generations:     50,
		Seed:            1,
		Workers:         runtime.NumCPU(),
		MutationRate:    0.1,
		DropoutRate:     0.05,
		ElitePercentage: 0.1,
		TrimPercentage:  0.17,
		TrimPolicy:      "tail",
		SpeciesEpsilon:  0.2,
		Hypermutation:   true,
		Selection:       map[string]float64{"sus": 1, "tournament": 1, "rank": 1, "roulette": 1},
		Crossover:       map[string]float64{"uniform": 1, "single_point": 1, "two_point": 1, "linear": 1, "sbx": 1},
		Network: NetworkConfig{
			Window:     20,
			Hidden:     []int{100, 50},
			Activation: "tanh",
		},
		Fuzzy: FuzzyConfig{SeedCount: 25},
		Data: DataConfig{
			SyntheticBars: 2000,
			TrainFraction: 0.8,
			WindowLength:  500,
			WindowStep:    1,
		},
		Scorer: ScorerConfig{
			Name:        "sortino",
			RiskFree:    2.5,
			TradeWeight: 0.01,
		},
		Checkpoint: CheckpointConfig{
			Interval: 10,
			Store:    "memory",
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path skips the file. The result is not validated; callers apply
// flag overrides first and then call Validate.
func Load(path string) (RunConfig, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return RunConfig{}, fmt.Errorf("read config %s: %w", path, err)
		}
		// yaml.v3 merges into existing maps, so menus start empty and a
		// file menu replaces the default one wholesale.
		selection, crossover := c.Selection, c.Crossover
		c.Selection, c.Crossover = nil, nil
		if err := yaml.Unmarshal(b, &c); err != nil {
			return RunConfig{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		if c.Selection == nil {
			c.Selection = selection
		}
		if c.Crossover == nil {
			c.Crossover = crossover
		}
	}
	c.ApplyEnv()
	return c, nil
}

func (c *RunConfig) ApplyEnv() {
	c.Variant = pickStr(os.Getenv(EnvPrefix+"VARIANT"), c.Variant)
	c.Population = pickInt(os.Getenv(EnvPrefix+"POPULATION"), c.Population)
	c.Generations = pickInt(os.Getenv(EnvPrefix+"GENERATIONS"), c.Generations)
	c.Workers = pickInt(os.Getenv(EnvPrefix+"WORKERS"), c.Workers)
	c.Seed = int64(pickInt(os.Getenv(EnvPrefix+"SEED"), int(c.Seed)))
	c.Hypermutation = pickBool(os.Getenv(EnvPrefix+"HYPERMUTATION"), c.Hypermutation)
	c.Checkpoint.Store = pickStr(os.Getenv(EnvPrefix+"STORE"), c.Checkpoint.Store)
	c.Checkpoint.Path = pickStr(os.Getenv(EnvPrefix+"CHECKPOINT_PATH"), c.Checkpoint.Path)
	c.Data.Path = pickStr(os.Getenv(EnvPrefix+"DATA"), c.Data.Path)
	c.Logging.Level = pickStr(os.Getenv(EnvPrefix+"LOG_LEVEL"), c.Logging.Level)
}

func (c *RunConfig) Validate() error {
	switch c.Variant {
	case "network", "fuzzy":
	default:
		return fmt.Errorf("variant must be network or fuzzy: %q", c.Variant)
	}
	if c.Population <= 0 {
		return errors.New("population must be > 0")
	}
	if c.Generations <= 0 {
		return errors.New("generations must be > 0")
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if err := unitInterval("mutation_rate", c.MutationRate, true); err != nil {
		return err
	}
	if err := unitInterval("dropout_rate", c.DropoutRate, true); err != nil {
		return err
	}
	if err := unitInterval("elite_percentage", c.ElitePercentage, false); err != nil {
		return err
	}
	if err := unitInterval("trim_percentage", c.TrimPercentage, false); err != nil {
		return err
	}
	switch c.TrimPolicy {
	case "":
		c.TrimPolicy = "tail"
	case "tail", "fitness":
	default:
		return fmt.Errorf("trim_policy must be tail or fitness: %q", c.TrimPolicy)
	}
	if c.SpeciesEpsilon < 0 {
		return errors.New("species_epsilon must be >= 0")
	}
	if err := menuWeights("selection", c.Selection); err != nil {
		return err
	}
	if err := menuWeights("crossover", c.Crossover); err != nil {
		return err
	}

	if c.Variant == "network" {
		if c.Network.Window <= 0 {
			return errors.New("network.window must be > 0")
		}
		for i, width := range c.Network.Hidden {
			if width <= 0 {
				return fmt.Errorf("network.hidden[%d] must be > 0", i)
			}
		}
		if c.Network.Activation == "" {
			c.Network.Activation = "tanh"
		}
	}
	if c.Fuzzy.SeedCount < 0 || (c.Variant == "fuzzy" && c.Fuzzy.SeedCount > c.Population) {
		return fmt.Errorf("fuzzy.seed_count must be within [0, %d]", c.Population)
	}

	if c.Data.TrainFraction <= 0 || c.Data.TrainFraction >= 1 {
		return errors.New("data.train_fraction must be within (0, 1)")
	}
	if c.Data.WindowLength <= 0 {
		return errors.New("data.window_length must be > 0")
	}
	if c.Data.WindowStep <= 0 {
		c.Data.WindowStep = 1
	}
	if c.Data.Path == "" && c.Data.SyntheticBars <= 0 {
		return errors.New("data.synthetic_bars must be > 0 without data.path")
	}
	if c.Scorer.MinTrades < 0 || c.Scorer.MaxTrades < 0 {
		return errors.New("scorer trade bounds must be >= 0")
	}
	if c.Scorer.MaxTrades > 0 && c.Scorer.MinTrades > c.Scorer.MaxTrades {
		return errors.New("scorer.min_trades must be <= scorer.max_trades")
	}

	if c.Checkpoint.Interval <= 0 {
		return errors.New("checkpoint.interval must be > 0")
	}
	switch c.Checkpoint.Store {
	case "", "memory":
		c.Checkpoint.Store = "memory"
	case "file", "sqlite":
		if c.Checkpoint.Path == "" {
			return fmt.Errorf("checkpoint.path is required for the %s store", c.Checkpoint.Store)
		}
	default:
		return fmt.Errorf("checkpoint.store must be memory, file or sqlite: %q", c.Checkpoint.Store)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "":
		c.Logging.Level = "info"
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level is invalid: %q", c.Logging.Level)
	}
	return nil
}

// ParseHidden reads a comma-separated list of hidden layer widths.
func ParseHidden(s string) ([]int, error) {
	var widths []int
	for _, part := range splitCSV(s) {
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("hidden layer width %q: %w", part, err)
		}
		widths = append(widths, v)
	}
	return widths, nil
}

// ParseMenu reads "name=weight,name=weight". A bare name weighs 1.
func ParseMenu(s string) (map[string]float64, error) {
	menu := make(map[string]float64)
	for _, part := range splitCSV(s) {
		name, weight, found := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		if !found {
			menu[name] = 1
			continue
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(weight), 64)
		if err != nil {
			return nil, fmt.Errorf("menu weight for %s: %w", name, err)
		}
		menu[name] = w
	}
	return menu, nil
}

func unitInterval(name string, v float64, closed bool) error {
	if v < 0 || v > 1 || (!closed && v == 1) {
		if closed {
			return fmt.Errorf("%s must be within [0, 1]", name)
		}
		return fmt.Errorf("%s must be within [0, 1)", name)
	}
	return nil
}

func menuWeights(name string, menu map[string]float64) error {
	if len(menu) == 0 {
		return fmt.Errorf("%s menu must not be empty", name)
	}
	total := 0.0
	for op, w := range menu {
		if w < 0 {
			return fmt.Errorf("%s weight for %s must be >= 0", name, op)
		}
		total += w
	}
	if total <= 0 {
		return fmt.Errorf("%s menu needs a positive weight", name)
	}
	return nil
}

func pickStr(env, cur string) string {
	if strings.TrimSpace(env) != "" {
		return strings.TrimSpace(env)
	}
	return cur
}

func pickInt(env string, cur int) int {
	if strings.TrimSpace(env) == "" {
		return cur
	}
	if v, err := strconv.Atoi(strings.TrimSpace(env)); err == nil {
		return v
	}
	return cur
}

func pickBool(env string, cur bool) bool {
	if strings.TrimSpace(env) == "" {
		return cur
	}
	s := strings.ToLower(strings.TrimSpace(env))
	return s == "1" || s == "true" || s == "yes" || s == "on"
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
