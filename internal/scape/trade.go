package scape

// State is what a decider sees before choosing the action for a bar.
type State struct {
	Position Position
	// Previous is the action applied on the prior bar; Hold before bar 0.
	Previous Action
}

// Decider chooses the action for a bar. Implementations must only use
// information available before that bar closes.
type Decider interface {
	Decide(bar int, state State) Action
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(bar int, state State) Action

func (f DeciderFunc) Decide(bar int, state State) Action { return f(bar, state) }

// Ledger is the per-bar outcome of a simulated strategy. Positions holds
// the position after each bar's action.
type Ledger struct {
	Returns   []float64
	Positions []Position
	Actions   []Action
	Trades    int
}

// Simulate runs the flat/long state machine over bar change ratios. The
// action chosen for bar i is applied on bar i:
//
//	flat + Buy  -> long, bar return realized, trade counted
//	long + Hold -> bar return realized
//	long + Buy  -> treated as Hold
//	long + Sell -> bar return realized, back to flat
//	flat + Sell -> treated as Hold
//
// Flat bars realize the neutral return.
func Simulate(changes []float64, decider Decider) Ledger {
	ledger := Ledger{
		Returns:   make([]float64, len(changes)),
		Positions: make([]Position, len(changes)),
		Actions:   make([]Action, len(changes)),
	}
	state := State{Position: Flat, Previous: Hold}
	for i, change := range changes {
		action := decider.Decide(i, state)
		switch state.Position {
		case Flat:
			if action == Buy {
				state.Position = Long
				ledger.Trades++
				ledger.Returns[i] = change
			} else {
				action = Hold
				ledger.Returns[i] = Neutral
			}
			ledger.Positions[i] = state.Position
		case Long:
			ledger.Returns[i] = change
			if action == Sell {
				state.Position = Flat
			} else {
				action = Hold
			}
			ledger.Positions[i] = state.Position
		}
		ledger.Actions[i] = action
		state.Previous = action
	}
	return ledger
}

// SimulateActions replays a fixed action list; bars beyond it hold.
func SimulateActions(changes []float64, actions []Action) Ledger {
	return Simulate(changes, DeciderFunc(func(bar int, _ State) Action {
		if bar < len(actions) {
			return actions[bar]
		}
		return Hold
	}))
}
