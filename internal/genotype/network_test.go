package genotype

import (
	"math"
	"math/rand"
	"testing"

	"genetrader/internal/model"
)

func TestFlattenReconstructRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	ids := NewIDFactory(1)
	topologies := []Topology{
		{Inputs: 2, Hidden: []int{3}, Outputs: 3, HiddenActivation: "sigmoid", OutputActivation: "softmax"},
		TradingTopology(150, []int{100, 50}, "tanh"),
		{Inputs: 4, Outputs: 3, HiddenActivation: "swish", OutputActivation: "softmax"},
	}
	for _, topology := range topologies {
		network, err := NewNetwork(ids, rng, topology)
		if err != nil {
			t.Fatalf("new network: %v", err)
		}
		flat := Flatten(network)
		layers, err := Reconstruct(flat)
		if err != nil {
			t.Fatalf("reconstruct: %v", err)
		}
		assertLayersEqual(t, network.Layers, layers)
	}
}

func assertLayersEqual(t *testing.T, want, got []model.Layer) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("layer count: want=%d got=%d", len(want), len(got))
	}
	for i := range want {
		if want[i].Activation != got[i].Activation {
			t.Fatalf("layer %d activation: want=%s got=%s", i, want[i].Activation, got[i].Activation)
		}
		if len(want[i].Weights) != len(got[i].Weights) || len(want[i].Bias) != len(got[i].Bias) {
			t.Fatalf("layer %d shape mismatch", i)
		}
		for r := range want[i].Weights {
			for c := range want[i].Weights[r] {
				if math.Float64bits(want[i].Weights[r][c]) != math.Float64bits(got[i].Weights[r][c]) {
					t.Fatalf("layer %d weight[%d][%d] differs", i, r, c)
				}
			}
		}
		for c := range want[i].Bias {
			if math.Float64bits(want[i].Bias[c]) != math.Float64bits(got[i].Bias[c]) {
				t.Fatalf("layer %d bias[%d] differs", i, c)
			}
		}
	}
}

func TestFlattenLayout(t *testing.T) {
	network := &model.Network{Layers: []model.Layer{{
		Weights:    [][]float64{{1, 2}, {3, 4}},
		Bias:       []float64{5, 6},
		Activation: "identity",
	}}}
	flat := Flatten(network)
	want := []float64{1, 2, 3, 4, 5, 6}
	for i, v := range want {
		if flat.Values[i] != v {
			t.Fatalf("flat layout: want=%v got=%v", want, flat.Values)
		}
	}
	if flat.Shapes[0] != (LayerShape{Rows: 2, Cols: 2, Activation: "identity"}) {
		t.Fatalf("unexpected shape: %+v", flat.Shapes[0])
	}
}

func TestReconstructRejectsBadShapes(t *testing.T) {
	if _, err := Reconstruct(Flat{Values: []float64{1, 2}, Shapes: []LayerShape{{Rows: 1, Cols: 1, Activation: "identity"}, {Rows: 2, Cols: 1}}}); err == nil {
		t.Fatal("expected width mismatch error")
	}
	if _, err := Reconstruct(Flat{Values: []float64{1}, Shapes: []LayerShape{{Rows: 1, Cols: 1}}}); err == nil {
		t.Fatal("expected length mismatch error")
	}
}

func TestCloneNetworkIsDeep(t *testing.T) {
	ids := NewIDFactory(1)
	network, err := NewNetwork(ids, rand.New(rand.NewSource(1)), Topology{Inputs: 2, Outputs: 3, HiddenActivation: "tanh", OutputActivation: "softmax"})
	if err != nil {
		t.Fatalf("new network: %v", err)
	}
	clone := CloneNetwork(ids, network)
	if clone.ID == network.ID {
		t.Fatal("clone must receive a fresh identity")
	}
	clone.Layers[0].Weights[0][0] = 42
	clone.Layers[0].Bias[0] = 42
	if network.Layers[0].Weights[0][0] == 42 || network.Layers[0].Bias[0] == 42 {
		t.Fatal("clone shares storage with its source")
	}
}

func TestTopologyValidation(t *testing.T) {
	ids := NewIDFactory(1)
	bad := []Topology{
		{Inputs: 0, Outputs: 3, HiddenActivation: "tanh", OutputActivation: "softmax"},
		{Inputs: 2, Outputs: 3, Hidden: []int{0}, HiddenActivation: "tanh", OutputActivation: "softmax"},
		{Inputs: 2, Outputs: 3, HiddenActivation: "nope", OutputActivation: "softmax"},
	}
	for i, topology := range bad {
		if _, err := NewNetwork(ids, nil, topology); err == nil {
			t.Fatalf("topology %d: expected validation error", i)
		}
	}
}
