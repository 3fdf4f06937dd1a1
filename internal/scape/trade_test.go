package scape

import (
	"testing"
)

func TestSimulateAcceptanceScenario(t *testing.T) {
	changes := []float64{1.01, 1.02, 0.99, 1.03, 0.98}
	actions := []Action{Buy, Hold, Sell, Buy, Hold}

	ledger := SimulateActions(changes, actions)

	// bar 0: flat+Buy opens, bar return realized
	// bar 1: long+Hold accrues
	// bar 2: long+Sell realizes the bar and closes
	// bar 3: flat+Buy reopens on the same bar
	// bar 4: long+Hold accrues
	wantReturns := []float64{1.01, 1.02, 0.99, 1.03, 0.98}
	wantPositions := []Position{Long, Long, Flat, Long, Long}
	for i := range wantReturns {
		if ledger.Returns[i] != wantReturns[i] {
			t.Fatalf("bar %d return: want=%v got=%v", i, wantReturns[i], ledger.Returns[i])
		}
		if ledger.Positions[i] != wantPositions[i] {
			t.Fatalf("bar %d position: want=%s got=%s", i, wantPositions[i], ledger.Positions[i])
		}
	}
	if ledger.Trades != 2 {
		t.Fatalf("expected 2 trades, got %d", ledger.Trades)
	}
}

func TestSimulateCoercesInvalidActions(t *testing.T) {
	changes := []float64{1.05, 0.9, 1.1, 1.2, 0.8}
	actions := []Action{Sell, Buy, Buy, Sell, Sell}

	ledger := SimulateActions(changes, actions)

	wantReturns := []float64{1.0, 0.9, 1.1, 1.2, 1.0}
	wantActions := []Action{Hold, Buy, Hold, Sell, Hold}
	for i := range wantReturns {
		if ledger.Returns[i] != wantReturns[i] {
			t.Fatalf("bar %d return: want=%v got=%v", i, wantReturns[i], ledger.Returns[i])
		}
		if ledger.Actions[i] != wantActions[i] {
			t.Fatalf("bar %d action: want=%s got=%s", i, wantActions[i], ledger.Actions[i])
		}
	}
	if ledger.Trades != 1 {
		t.Fatalf("pyramiding must not count trades, got %d", ledger.Trades)
	}
}

func TestSimulatePassesPreviousAction(t *testing.T) {
	var seen []Action
	Simulate([]float64{1, 1, 1}, DeciderFunc(func(bar int, state State) Action {
		seen = append(seen, state.Previous)
		if bar == 0 {
			return Buy
		}
		return Sell
	}))
	want := []Action{Hold, Buy, Sell}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("bar %d previous: want=%s got=%s", i, want[i], seen[i])
		}
	}
}

func TestActionFromClass(t *testing.T) {
	if ActionFromClass(0) != Buy || ActionFromClass(1) != Hold || ActionFromClass(2) != Sell || ActionFromClass(7) != Hold {
		t.Fatal("unexpected class mapping")
	}
}
