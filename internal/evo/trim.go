package evo

import (
	"fmt"
	"math"
	"sort"

	"genetrader/internal/model"
)

const DefaultTrimPercentage = 0.17

const (
	TrimTail    = "tail"
	TrimFitness = "fitness"
)

// Trim cuts survivors followed by offspring down to target. It first drops
// floor(len*pct) members, never going below target, then caps the result
// at target. The tail policy drops from the end by position. The fitness
// policy drops the lowest-scoring survivors first; offspring carry no
// score yet and are only dropped from the end once no survivor is left.
func Trim[T model.Individual](policy string, survivors, offspring []T, target int, pct float64) ([]T, error) {
	total := len(survivors) + len(offspring)
	drop := 0
	if total > target {
		drop = int(math.Floor(float64(total) * pct))
		if drop > total-target {
			drop = total - target
		}
		if drop < 0 {
			drop = 0
		}
	}

	var out []T
	switch policy {
	case "", TrimTail:
		out = make([]T, 0, total)
		out = append(out, survivors...)
		out = append(out, offspring...)
		out = out[:total-drop]
	case TrimFitness:
		keep := append([]T(nil), survivors...)
		sort.SliceStable(keep, func(i, j int) bool { return fitnessLess(keep[j].Score(), keep[i].Score()) })
		fromSurvivors := drop
		if fromSurvivors > len(keep) {
			fromSurvivors = len(keep)
		}
		keep = keep[:len(keep)-fromSurvivors]
		rest := offspring[:len(offspring)-(drop-fromSurvivors)]
		out = append(keep, rest...)
	default:
		return nil, fmt.Errorf("unknown trim policy %q", policy)
	}

	if target >= 0 && len(out) > target {
		out = out[:target]
	}
	return out, nil
}
