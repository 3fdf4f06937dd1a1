package nn

import (
	"fmt"

	"genetrader/internal/model"
)

// Forward runs input through the dense layers in order.
func Forward(layers []model.Layer, input []float64) ([]float64, error) {
	values := input
	for li, layer := range layers {
		if len(values) != layer.Inputs() {
			return nil, fmt.Errorf("layer %d: input width %d, want %d", li, len(values), layer.Inputs())
		}
		activate, err := GetActivation(layer.Activation)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", li, err)
		}

		out := make([]float64, layer.Outputs())
		copy(out, layer.Bias)
		for r, x := range values {
			row := layer.Weights[r]
			if len(row) != len(out) {
				return nil, fmt.Errorf("layer %d: row %d width %d, want %d", li, r, len(row), len(out))
			}
			if x == 0 {
				continue
			}
			for c, w := range row {
				out[c] += x * w
			}
		}
		activate(out, out)
		values = out
	}
	return values, nil
}

// ArgMax returns the index of the largest value; ties go to the lowest
// index and an empty slice yields -1.
func ArgMax(values []float64) int {
	best := -1
	for i, v := range values {
		if best < 0 || v > values[best] {
			best = i
		}
	}
	return best
}
