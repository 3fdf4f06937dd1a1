package genotype

import (
	"errors"
	"fmt"
	"math/rand"

	"genetrader/internal/model"
	"genetrader/internal/nn"
)

// Topology describes a dense network: Inputs feed each hidden width in
// order, ending in Outputs units.
type Topology struct {
	Inputs           int
	Hidden           []int
	Outputs          int
	HiddenActivation string
	OutputActivation string
}

// TradingTopology is the Buy/Hold/Sell classifier over a trailing window.
func TradingTopology(window int, hidden []int, hiddenActivation string) Topology {
	return Topology{
		Inputs:           window,
		Hidden:           hidden,
		Outputs:          3,
		HiddenActivation: hiddenActivation,
		OutputActivation: "softmax",
	}
}

func (t Topology) Validate() error {
	if t.Inputs <= 0 {
		return errors.New("network inputs must be > 0")
	}
	if t.Outputs <= 0 {
		return errors.New("network outputs must be > 0")
	}
	for i, width := range t.Hidden {
		if width <= 0 {
			return fmt.Errorf("hidden layer %d width must be > 0", i)
		}
	}
	for _, name := range []string{t.HiddenActivation, t.OutputActivation} {
		if _, err := nn.GetActivation(name); err != nil {
			return err
		}
	}
	return nil
}

// NewNetwork builds a network with weights and biases drawn uniformly from
// [-0.5, 0.5).
func NewNetwork(ids *IDFactory, rng *rand.Rand, topology Topology) (*model.Network, error) {
	if err := topology.Validate(); err != nil {
		return nil, err
	}
	rng = ensureRNG(rng)

	widths := append([]int{topology.Inputs}, topology.Hidden...)
	widths = append(widths, topology.Outputs)
	network := &model.Network{ID: ids.Next(), Fitness: model.Degenerate, Layers: make([]model.Layer, 0, len(widths)-1)}
	for i := 0; i+1 < len(widths); i++ {
		activation := topology.HiddenActivation
		if i+2 == len(widths) {
			activation = topology.OutputActivation
		}
		layer := model.Layer{
			Weights:    make([][]float64, widths[i]),
			Bias:       make([]float64, widths[i+1]),
			Activation: activation,
		}
		for r := range layer.Weights {
			layer.Weights[r] = make([]float64, widths[i+1])
			for c := range layer.Weights[r] {
				layer.Weights[r][c] = rng.Float64() - 0.5
			}
		}
		for c := range layer.Bias {
			layer.Bias[c] = rng.Float64() - 0.5
		}
		network.Layers = append(network.Layers, layer)
	}
	return network, nil
}

// CloneNetwork deep-copies a network under a fresh identity.
func CloneNetwork(ids *IDFactory, network *model.Network) *model.Network {
	out := CopyNetwork(network)
	out.ID = ids.Next()
	return out
}

// CopyNetwork deep-copies a network keeping its identity.
func CopyNetwork(network *model.Network) *model.Network {
	out := &model.Network{
		ID:      network.ID,
		Layers:  make([]model.Layer, len(network.Layers)),
		Fitness: network.Fitness,
		Cluster: network.Cluster,
	}
	for i, layer := range network.Layers {
		out.Layers[i] = cloneLayer(layer)
	}
	return out
}

func cloneLayer(layer model.Layer) model.Layer {
	out := model.Layer{
		Weights:    make([][]float64, len(layer.Weights)),
		Bias:       append([]float64(nil), layer.Bias...),
		Activation: layer.Activation,
	}
	for r, row := range layer.Weights {
		out.Weights[r] = append([]float64(nil), row...)
	}
	return out
}

// LayerShape records what Reconstruct needs to rebuild one layer.
type LayerShape struct {
	Rows       int    `json:"rows"`
	Cols       int    `json:"cols"`
	Activation string `json:"activation"`
}

// Size is the number of parameters the layer contributes to a flat vector.
func (s LayerShape) Size() int {
	return s.Rows*s.Cols + s.Cols
}

// Flat is a network serialized as one parameter vector. Each layer
// contributes its weights row by row followed by its bias.
type Flat struct {
	Values []float64    `json:"values"`
	Shapes []LayerShape `json:"shapes"`
}

func Flatten(network *model.Network) Flat {
	size := 0
	shapes := make([]LayerShape, len(network.Layers))
	for i, layer := range network.Layers {
		shapes[i] = LayerShape{Rows: layer.Inputs(), Cols: layer.Outputs(), Activation: layer.Activation}
		size += shapes[i].Size()
	}
	values := make([]float64, 0, size)
	for _, layer := range network.Layers {
		for _, row := range layer.Weights {
			values = append(values, row...)
		}
		values = append(values, layer.Bias...)
	}
	return Flat{Values: values, Shapes: shapes}
}

// Reconstruct rebuilds layers from a flat vector. It fails when the vector
// length does not match the shapes or consecutive layers disagree on width.
func Reconstruct(flat Flat) ([]model.Layer, error) {
	want := 0
	for i, shape := range flat.Shapes {
		if shape.Rows <= 0 || shape.Cols <= 0 {
			return nil, fmt.Errorf("layer %d has empty shape %dx%d", i, shape.Rows, shape.Cols)
		}
		if i > 0 && flat.Shapes[i-1].Cols != shape.Rows {
			return nil, fmt.Errorf("layer %d expects %d inputs, previous layer emits %d", i, shape.Rows, flat.Shapes[i-1].Cols)
		}
		want += shape.Size()
	}
	if want != len(flat.Values) {
		return nil, fmt.Errorf("flat vector has %d values, shapes need %d", len(flat.Values), want)
	}

	layers := make([]model.Layer, len(flat.Shapes))
	offset := 0
	for i, shape := range flat.Shapes {
		layer := model.Layer{Weights: make([][]float64, shape.Rows), Activation: shape.Activation}
		for r := range layer.Weights {
			layer.Weights[r] = append([]float64(nil), flat.Values[offset:offset+shape.Cols]...)
			offset += shape.Cols
		}
		layer.Bias = append([]float64(nil), flat.Values[offset:offset+shape.Cols]...)
		offset += shape.Cols
		layers[i] = layer
	}
	return layers, nil
}

// SameShape reports whether two flats describe identical architectures.
func SameShape(a, b Flat) bool {
	if len(a.Shapes) != len(b.Shapes) || len(a.Values) != len(b.Values) {
		return false
	}
	for i := range a.Shapes {
		if a.Shapes[i] != b.Shapes[i] {
			return false
		}
	}
	return true
}
