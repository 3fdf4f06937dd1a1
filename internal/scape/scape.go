package scape

import (
	"context"

	"genetrader/internal/model"
)

// Trace carries evaluation details alongside a fitness score.
type Trace map[string]any

// Scape scores one individual against one price window.
type Scape[T any] interface {
	Name() string
	Evaluate(ctx context.Context, individual T, window Series) (model.Fitness, Trace, error)
}

// Action is a per-bar trading decision.
type Action int

const (
	Buy Action = iota
	Hold
	Sell
)

func (a Action) String() string {
	switch a {
	case Buy:
		return "buy"
	case Hold:
		return "hold"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// ActionFromClass maps a classifier output index to an action.
func ActionFromClass(class int) Action {
	switch class {
	case 0:
		return Buy
	case 2:
		return Sell
	default:
		return Hold
	}
}

type Position int

const (
	Flat Position = iota
	Long
)

func (p Position) String() string {
	if p == Long {
		return "long"
	}
	return "flat"
}
