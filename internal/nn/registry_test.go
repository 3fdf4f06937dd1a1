package nn

import (
	"errors"
	"math"
	"testing"
)

func TestRegisterAndGetActivation(t *testing.T) {
	resetActivationRegistryForTests()
	t.Cleanup(resetActivationRegistryForTests)

	if err := RegisterActivation("quad", func(x float64) float64 { return x * x }); err != nil {
		t.Fatalf("register activation: %v", err)
	}
	fn, err := GetActivation("quad")
	if err != nil {
		t.Fatalf("get activation: %v", err)
	}
	out := []float64{3, -2}
	fn(out, out)
	if out[0] != 9 || out[1] != 4 {
		t.Fatalf("unexpected activation result: %v", out)
	}
}

func TestRegisterActivationValidation(t *testing.T) {
	resetActivationRegistryForTests()
	t.Cleanup(resetActivationRegistryForTests)

	if err := RegisterActivation("", func(x float64) float64 { return x }); err == nil {
		t.Fatal("expected empty name error")
	}
	if err := RegisterActivation("nil", nil); err == nil {
		t.Fatal("expected nil function error")
	}
	if err := RegisterLayerActivation("nil-layer", nil); err == nil {
		t.Fatal("expected nil layer function error")
	}
}

func TestRegisterActivationDuplicate(t *testing.T) {
	resetActivationRegistryForTests()
	t.Cleanup(resetActivationRegistryForTests)

	if err := RegisterActivation("tanh", math.Tanh); !errors.Is(err, ErrActivationExists) {
		t.Fatalf("expected ErrActivationExists, got: %v", err)
	}
}

func TestGetActivationNotFound(t *testing.T) {
	_, err := GetActivation("missing")
	if !errors.Is(err, ErrActivationNotFound) {
		t.Fatalf("expected ErrActivationNotFound, got: %v", err)
	}
}

func TestListActivationsSorted(t *testing.T) {
	names := ListActivations()
	want := []string{"identity", "relu", "sigmoid", "softmax", "swish", "tanh"}
	if len(names) != len(want) {
		t.Fatalf("unexpected activation list: %+v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("unexpected activation list: %+v", names)
		}
	}
}

func TestBuiltinActivationValues(t *testing.T) {
	tests := []struct {
		act  string
		x    float64
		want float64
	}{
		{act: "identity", x: 2.5, want: 2.5},
		{act: "relu", x: -1, want: 0},
		{act: "relu", x: 3, want: 3},
		{act: "tanh", x: 0, want: 0},
		{act: "sigmoid", x: 0, want: 0.5},
		{act: "swish", x: 0, want: 0},
		{act: "swish", x: 2, want: 2 / (1 + math.Exp(-2))},
	}
	for _, tc := range tests {
		fn, err := GetActivation(tc.act)
		if err != nil {
			t.Fatalf("get %s: %v", tc.act, err)
		}
		out := []float64{tc.x}
		fn(out, out)
		if math.Abs(out[0]-tc.want) > 1e-12 {
			t.Fatalf("%s(%f): got=%f want=%f", tc.act, tc.x, out[0], tc.want)
		}
	}
}

func TestSoftmaxSumsToOneAndIsShiftStable(t *testing.T) {
	src := []float64{1000, 1001, 1002}
	dst := make([]float64, len(src))
	Softmax(dst, src)

	sum := 0.0
	for _, v := range dst {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("softmax overflowed: %v", dst)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Fatalf("softmax sum=%f", sum)
	}
	if !(dst[2] > dst[1] && dst[1] > dst[0]) {
		t.Fatalf("softmax must preserve order: %v", dst)
	}
}
