package nn

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var (
	ErrActivationExists   = errors.New("activation already registered")
	ErrActivationNotFound = errors.New("activation not found")
)

// ActivationFunc is an element-wise activation.
type ActivationFunc func(x float64) float64

// LayerActivation transforms a whole layer output. dst and src have equal
// length and may alias.
type LayerActivation func(dst, src []float64)

var activationRegistry = struct {
	mu sync.RWMutex
	m  map[string]LayerActivation
}{
	m: make(map[string]LayerActivation),
}

func init() {
	initializeBuiltInActivations()
}

func initializeBuiltInActivations() {
	MustRegisterActivation("identity", func(x float64) float64 { return x })
	MustRegisterActivation("relu", func(x float64) float64 {
		if x < 0 {
			return 0
		}
		return x
	})
	MustRegisterActivation("tanh", math.Tanh)
	MustRegisterActivation("sigmoid", Sigmoid)
	MustRegisterActivation("swish", func(x float64) float64 {
		return x * Sigmoid(x)
	})
	if err := RegisterLayerActivation("softmax", Softmax); err != nil {
		panic(err)
	}
}

func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// Softmax writes the max-shifted softmax of src into dst.
func Softmax(dst, src []float64) {
	if len(src) == 0 {
		return
	}
	peak := src[0]
	for _, v := range src[1:] {
		if v > peak {
			peak = v
		}
	}
	sum := 0.0
	for i, v := range src {
		dst[i] = math.Exp(v - peak)
		sum += dst[i]
	}
	for i := range dst[:len(src)] {
		dst[i] /= sum
	}
}

func RegisterActivation(name string, fn ActivationFunc) error {
	if fn == nil {
		return errors.New("activation function is required")
	}
	return RegisterLayerActivation(name, func(dst, src []float64) {
		for i, v := range src {
			dst[i] = fn(v)
		}
	})
}

func MustRegisterActivation(name string, fn ActivationFunc) {
	if err := RegisterActivation(name, fn); err != nil {
		panic(err)
	}
}

func RegisterLayerActivation(name string, fn LayerActivation) error {
	if name == "" {
		return errors.New("activation name is required")
	}
	if fn == nil {
		return errors.New("activation function is required")
	}

	activationRegistry.mu.Lock()
	defer activationRegistry.mu.Unlock()

	if _, exists := activationRegistry.m[name]; exists {
		return fmt.Errorf("%w: %s", ErrActivationExists, name)
	}
	activationRegistry.m[name] = fn
	return nil
}

func GetActivation(name string) (LayerActivation, error) {
	activationRegistry.mu.RLock()
	fn, ok := activationRegistry.m[name]
	activationRegistry.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrActivationNotFound, name)
	}
	return fn, nil
}

func ListActivations() []string {
	activationRegistry.mu.RLock()
	defer activationRegistry.mu.RUnlock()

	names := make([]string, 0, len(activationRegistry.m))
	for name := range activationRegistry.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func resetActivationRegistryForTests() {
	activationRegistry.mu.Lock()
	activationRegistry.m = make(map[string]LayerActivation)
	activationRegistry.mu.Unlock()
	initializeBuiltInActivations()
}
