package scape

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"genetrader/internal/model"
)

// DefaultRiskFreeRate is the hurdle, in percent, subtracted from strategy
// returns before dividing by downside deviation.
const DefaultRiskFreeRate = 2.5

var ErrScorerNotFound = errors.New("scorer not found")

// Scorer maps a simulated ledger to a fitness. Scores that cannot be
// computed are model.Degenerate, never an error.
type Scorer interface {
	Name() string
	Score(ledger Ledger) model.Fitness
}

// StrategyReturn is the compounded return of per-bar ratios, in percent.
func StrategyReturn(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	return (floats.Prod(returns) - 1) * 100
}

// DownsideDeviation is the sample standard deviation of the losing bars.
// It is NaN when fewer than two bars lost.
func DownsideDeviation(returns []float64) float64 {
	losses := make([]float64, 0, len(returns))
	for _, r := range returns {
		if r < Neutral {
			losses = append(losses, r)
		}
	}
	if len(losses) < 2 {
		return math.NaN()
	}
	return stat.StdDev(losses, nil)
}

// MaxDrawdown is the largest peak-to-trough fall of the compounded equity
// curve as a fraction of the peak.
func MaxDrawdown(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}
	equity := floats.CumProd(make([]float64, len(returns)), returns)
	peak, worst := equity[0], 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			worst = math.Max(worst, (peak-v)/peak)
		}
	}
	return worst
}

// Sortino returns the Sortino ratio of per-bar returns, or
// model.Degenerate when downside deviation is zero or undefined.
func Sortino(returns []float64, riskFree float64) model.Fitness {
	deviation := DownsideDeviation(returns)
	if deviation == 0 || math.IsNaN(deviation) {
		return model.Degenerate
	}
	ratio := (StrategyReturn(returns) - riskFree) / deviation
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return model.Degenerate
	}
	return model.Fitness(ratio)
}

// SortinoScorer scores by the Sortino ratio alone.
type SortinoScorer struct {
	RiskFree float64
}

func (SortinoScorer) Name() string { return "sortino" }

func (s SortinoScorer) Score(ledger Ledger) model.Fitness {
	return Sortino(ledger.Returns, s.RiskFree)
}

// DrawdownScorer scales the Sortino ratio by drawdown: positive ratios by
// (1 - drawdown) and negative ratios by drawdown.
type DrawdownScorer struct {
	RiskFree float64
}

func (DrawdownScorer) Name() string { return "sortino_drawdown" }

func (s DrawdownScorer) Score(ledger Ledger) model.Fitness {
	sortino := Sortino(ledger.Returns, s.RiskFree)
	if !sortino.Valid() {
		return model.Degenerate
	}
	dd := MaxDrawdown(ledger.Returns)
	if sortino >= 0 {
		return sortino * model.Fitness(1-dd)
	}
	return sortino * model.Fitness(dd)
}

// TradeScorer rewards activity: Weight*sortino + trades.
type TradeScorer struct {
	RiskFree float64
	Weight   float64
}

func (TradeScorer) Name() string { return "sortino_trades" }

func (s TradeScorer) Score(ledger Ledger) model.Fitness {
	sortino := Sortino(ledger.Returns, s.RiskFree)
	if !sortino.Valid() {
		return model.Degenerate
	}
	return model.Fitness(s.Weight)*sortino + model.Fitness(ledger.Trades)
}

// TradeLimit degenerates any ledger whose trade count falls outside
// [Min, Max] and otherwise defers to Inner. Max <= 0 disables the cap.
type TradeLimit struct {
	Inner Scorer
	Min   int
	Max   int
}

func (t TradeLimit) Name() string { return t.Inner.Name() + "+trade_limit" }

func (t TradeLimit) Score(ledger Ledger) model.Fitness {
	if ledger.Trades < t.Min || (t.Max > 0 && ledger.Trades > t.Max) {
		return model.Degenerate
	}
	return t.Inner.Score(ledger)
}

// ScorerParams tunes scorers built from the registry.
type ScorerParams struct {
	RiskFree    float64
	TradeWeight float64
	MinTrades   int
	MaxTrades   int
}

func DefaultScorerParams() ScorerParams {
	return ScorerParams{RiskFree: DefaultRiskFreeRate, TradeWeight: 0.01}
}

// ScorerFactory builds a scorer from parameters.
type ScorerFactory func(params ScorerParams) Scorer

var scorerRegistry = struct {
	mu sync.RWMutex
	m  map[string]ScorerFactory
}{
	m: map[string]ScorerFactory{
		"sortino": func(p ScorerParams) Scorer {
			return SortinoScorer{RiskFree: p.RiskFree}
		},
		"sortino_drawdown": func(p ScorerParams) Scorer {
			return DrawdownScorer{RiskFree: p.RiskFree}
		},
		"sortino_trades": func(p ScorerParams) Scorer {
			return TradeScorer{RiskFree: p.RiskFree, Weight: p.TradeWeight}
		},
	},
}

func RegisterScorer(name string, factory ScorerFactory) error {
	if name == "" || factory == nil {
		return errors.New("scorer name and factory are required")
	}
	scorerRegistry.mu.Lock()
	defer scorerRegistry.mu.Unlock()
	if _, ok := scorerRegistry.m[name]; ok {
		return fmt.Errorf("scorer already registered: %s", name)
	}
	scorerRegistry.m[name] = factory
	return nil
}

// NewScorer resolves a scorer by name. Non-zero trade bounds wrap it in a
// TradeLimit.
func NewScorer(name string, params ScorerParams) (Scorer, error) {
	if name == "" {
		name = "sortino"
	}
	scorerRegistry.mu.RLock()
	factory, ok := scorerRegistry.m[name]
	scorerRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScorerNotFound, name)
	}
	scorer := factory(params)
	if params.MinTrades > 0 || params.MaxTrades > 0 {
		scorer = TradeLimit{Inner: scorer, Min: params.MinTrades, Max: params.MaxTrades}
	}
	return scorer, nil
}

func ListScorers() []string {
	scorerRegistry.mu.RLock()
	defer scorerRegistry.mu.RUnlock()
	names := make([]string, 0, len(scorerRegistry.m))
	for name := range scorerRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
