package evo

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
)

var (
	ErrSelectorExists     = errors.New("selector already registered")
	ErrSelectorNotFound   = errors.New("selector not found")
	ErrCrossoverExists    = errors.New("crossover already registered")
	ErrCrossoverNotFound  = errors.New("crossover not found")
	ErrEmptyOperatorMenu  = errors.New("operator menu has no positive weight")
	ErrNegativeMenuWeight = errors.New("operator menu weight must be >= 0")
)

var selectorRegistry = struct {
	mu sync.RWMutex
	m  map[string]Selector
}{m: make(map[string]Selector)}

var crossoverRegistry = struct {
	mu sync.RWMutex
	m  map[string]Crossover
}{m: make(map[string]Crossover)}

func init() {
	initializeBuiltInOperators()
}

func initializeBuiltInOperators() {
	for _, s := range []Selector{TournamentSelector{}, RankSelector{}, RouletteSelector{}, SUSSelector{}} {
		selectorRegistry.m[s.Name()] = s
	}
	for _, c := range []Crossover{UniformCrossover{}, SinglePointCrossover{}, TwoPointCrossover{}, LinearCrossover{}, SBXCrossover{}} {
		crossoverRegistry.m[c.Name()] = c
	}
}

func RegisterSelector(sel Selector) error {
	if sel == nil || sel.Name() == "" {
		return errors.New("selector with a name is required")
	}
	selectorRegistry.mu.Lock()
	defer selectorRegistry.mu.Unlock()
	if _, exists := selectorRegistry.m[sel.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrSelectorExists, sel.Name())
	}
	selectorRegistry.m[sel.Name()] = sel
	return nil
}

func GetSelector(name string) (Selector, error) {
	selectorRegistry.mu.RLock()
	defer selectorRegistry.mu.RUnlock()
	sel, ok := selectorRegistry.m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSelectorNotFound, name)
	}
	return sel, nil
}

func ListSelectors() []string {
	selectorRegistry.mu.RLock()
	defer selectorRegistry.mu.RUnlock()
	return sortedKeys(selectorRegistry.m)
}

func RegisterCrossover(c Crossover) error {
	if c == nil || c.Name() == "" {
		return errors.New("crossover with a name is required")
	}
	crossoverRegistry.mu.Lock()
	defer crossoverRegistry.mu.Unlock()
	if _, exists := crossoverRegistry.m[c.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrCrossoverExists, c.Name())
	}
	crossoverRegistry.m[c.Name()] = c
	return nil
}

func GetCrossover(name string) (Crossover, error) {
	crossoverRegistry.mu.RLock()
	defer crossoverRegistry.mu.RUnlock()
	c, ok := crossoverRegistry.m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCrossoverNotFound, name)
	}
	return c, nil
}

func ListCrossovers() []string {
	crossoverRegistry.mu.RLock()
	defer crossoverRegistry.mu.RUnlock()
	return sortedKeys(crossoverRegistry.m)
}

func resetOperatorRegistriesForTests() {
	selectorRegistry.mu.Lock()
	crossoverRegistry.mu.Lock()
	defer selectorRegistry.mu.Unlock()
	defer crossoverRegistry.mu.Unlock()
	selectorRegistry.m = make(map[string]Selector)
	crossoverRegistry.m = make(map[string]Crossover)
	initializeBuiltInOperators()
}

func sortedKeys[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Weighted is one operator menu entry.
type Weighted[E any] struct {
	Item   E
	Weight float64
}

// Menu picks one operator per draw with probability proportional to weight.
type Menu[E any] []Weighted[E]

func (m Menu[E]) Validate() error {
	positive := false
	for i, entry := range m {
		if entry.Weight < 0 {
			return fmt.Errorf("%w: index %d", ErrNegativeMenuWeight, i)
		}
		if entry.Weight > 0 {
			positive = true
		}
	}
	if !positive {
		return ErrEmptyOperatorMenu
	}
	return nil
}

// Choose draws an entry. The menu must have passed Validate.
func (m Menu[E]) Choose(rng *rand.Rand) E {
	total := 0.0
	for _, entry := range m {
		total += entry.Weight
	}
	pick := rng.Float64() * total
	acc := 0.0
	for _, entry := range m {
		if entry.Weight <= 0 {
			continue
		}
		acc += entry.Weight
		if pick < acc {
			return entry.Item
		}
	}
	for i := len(m) - 1; i >= 0; i-- {
		if m[i].Weight > 0 {
			return m[i].Item
		}
	}
	var zero E
	return zero
}

// SelectorMenu resolves registered selector names. Names are taken in
// sorted order so equal configurations build equal menus.
func SelectorMenu(weights map[string]float64) (Menu[Selector], error) {
	menu := make(Menu[Selector], 0, len(weights))
	for _, name := range sortedKeys(weights) {
		sel, err := GetSelector(name)
		if err != nil {
			return nil, err
		}
		menu = append(menu, Weighted[Selector]{Item: sel, Weight: weights[name]})
	}
	if err := menu.Validate(); err != nil {
		return nil, err
	}
	return menu, nil
}

// CrossoverMenu resolves registered crossover names like SelectorMenu.
func CrossoverMenu(weights map[string]float64) (Menu[Crossover], error) {
	menu := make(Menu[Crossover], 0, len(weights))
	for _, name := range sortedKeys(weights) {
		c, err := GetCrossover(name)
		if err != nil {
			return nil, err
		}
		menu = append(menu, Weighted[Crossover]{Item: c, Weight: weights[name]})
	}
	if err := menu.Validate(); err != nil {
		return nil, err
	}
	return menu, nil
}

// EqualWeights gives every name weight 1.
func EqualWeights(names ...string) map[string]float64 {
	out := make(map[string]float64, len(names))
	for _, name := range names {
		out[name] = 1
	}
	return out
}
