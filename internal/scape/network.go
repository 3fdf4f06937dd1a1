package scape

import (
	"context"
	"fmt"

	"genetrader/internal/model"
	"genetrader/internal/nn"
)

// NetworkScape trades a window with a Buy/Hold/Sell classifier network fed
// the trailing Window bar returns.
type NetworkScape struct {
	Window int
	Scorer Scorer
}

func (NetworkScape) Name() string { return "network" }

func (s NetworkScape) Evaluate(ctx context.Context, network *model.Network, window Series) (model.Fitness, Trace, error) {
	if err := ctx.Err(); err != nil {
		return model.Degenerate, nil, err
	}
	if s.Window <= 0 {
		return model.Degenerate, nil, fmt.Errorf("network window must be > 0")
	}
	decider, err := NewNetworkDecider(network, window.Changes(), s.Window)
	if err != nil {
		return model.Degenerate, nil, err
	}
	ledger := Simulate(decider.changes, decider)
	if decider.err != nil {
		return model.Degenerate, nil, decider.err
	}
	return s.Scorer.Score(ledger), ledgerTrace(ledger, window), nil
}

// NetworkDecider feeds bar i the returns of bars [i-window, i) centred on
// zero; bars without a full history hold.
type NetworkDecider struct {
	layers  []model.Layer
	changes []float64
	window  int
	err     error
}

func NewNetworkDecider(network *model.Network, changes []float64, window int) (*NetworkDecider, error) {
	if len(network.Layers) == 0 {
		return nil, fmt.Errorf("network %d has no layers", network.ID)
	}
	if in := network.Layers[0].Inputs(); in != window {
		return nil, fmt.Errorf("network %d expects %d inputs, window is %d", network.ID, in, window)
	}
	return &NetworkDecider{layers: network.Layers, changes: changes, window: window}, nil
}

func (d *NetworkDecider) Decide(bar int, _ State) Action {
	if bar < d.window || d.err != nil {
		return Hold
	}
	features := make([]float64, d.window)
	for i, change := range d.changes[bar-d.window : bar] {
		features[i] = change - Neutral
	}
	out, err := nn.Forward(d.layers, features)
	if err != nil {
		d.err = err
		return Hold
	}
	return ActionFromClass(nn.ArgMax(out))
}

func ledgerTrace(ledger Ledger, window Series) Trace {
	return Trace{
		"bars":            len(ledger.Returns),
		"strategy_return": StrategyReturn(ledger.Returns),
		"buy_and_hold":    BuyAndHold(window),
		"max_drawdown":    MaxDrawdown(ledger.Returns),
		"sortino":         float64(Sortino(ledger.Returns, DefaultRiskFreeRate)),
		"trades":          ledger.Trades,
	}
}

// BuyAndHold is the percent return of holding the series from its first
// close to its last.
func BuyAndHold(series Series) float64 {
	if series.Len() < 2 {
		return 0
	}
	return StrategyReturn(series.Changes()[1:])
}
