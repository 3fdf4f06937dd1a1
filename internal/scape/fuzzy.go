package scape

import (
	"context"
	"fmt"

	"genetrader/internal/genotype"
	"genetrader/internal/model"
)

// FuzzyScape trades a window with a fuzzy inference score compared against
// the genome's entry condition and a trailing stop.
type FuzzyScape struct {
	Signals SignalSource
	Scorer  Scorer
}

func (FuzzyScape) Name() string { return "fuzzy" }

func (s FuzzyScape) Evaluate(ctx context.Context, genome *model.Genome, window Series) (model.Fitness, Trace, error) {
	if err := ctx.Err(); err != nil {
		return model.Degenerate, nil, err
	}
	signals := s.Signals
	if signals == nil {
		signals = RSISignal{}
	}
	signal, err := signals.Signal(window, genome)
	if err != nil {
		return model.Degenerate, nil, err
	}
	decider, err := NewFuzzyDecider(genome, signal, window.Changes())
	if err != nil {
		return model.Degenerate, nil, err
	}
	ledger := Simulate(window.Changes(), decider)
	return s.Scorer.Score(ledger), ledgerTrace(ledger, window), nil
}

// FuzzyDecider acts on bar i using the signal of bar i-1:
//   - flat, signal >= entry upper node and the prior bar was not an exit: Buy
//   - long, signal < entry lower node or trailing stop below stop loss: Sell
//
// The trailing stop compounds every bar change held since entry.
type FuzzyDecider struct {
	signal   []float64
	changes  []float64
	exitBand float64
	entry    float64
	stopLoss float64
	trailing float64
}

func NewFuzzyDecider(genome *model.Genome, signal, changes []float64) (*FuzzyDecider, error) {
	if len(signal) != len(changes) {
		return nil, fmt.Errorf("signal has %d bars, series has %d", len(signal), len(changes))
	}
	entry, ok := genome.Gene(genotype.GeneEntryCondition)
	if !ok || len(entry.Value) != 2 {
		return nil, fmt.Errorf("genome %d: missing gene %s", genome.ID, genotype.GeneEntryCondition)
	}
	stop, ok := genome.Gene(genotype.GeneStopLoss)
	if !ok || len(stop.Value) != 1 {
		return nil, fmt.Errorf("genome %d: missing gene %s", genome.ID, genotype.GeneStopLoss)
	}
	return &FuzzyDecider{
		signal:   signal,
		changes:  changes,
		exitBand: entry.Value[0],
		entry:    entry.Value[1],
		stopLoss: stop.Value[0],
		trailing: 1,
	}, nil
}

func (d *FuzzyDecider) Decide(bar int, state State) Action {
	if bar == 0 {
		return Hold
	}
	prev := bar - 1
	z := d.signal[prev]
	switch state.Position {
	case Flat:
		if z >= d.entry && state.Previous != Sell {
			d.trailing = 1
			return Buy
		}
	case Long:
		d.trailing *= d.changes[prev]
		if z < d.exitBand || d.trailing < d.stopLoss {
			d.trailing = 1
			return Sell
		}
	}
	return Hold
}
