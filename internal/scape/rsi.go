package scape

import (
	"fmt"
	"math"

	"genetrader/internal/genotype"
	"genetrader/internal/model"
)

// SignalSource turns a series and a genome into one inference score per
// bar. NaN marks bars without a defined score.
type SignalSource interface {
	Signal(series Series, genome *model.Genome) ([]float64, error)
}

// RSISignal is a Tsukamoto fuzzy inference over the relative strength
// index, smoothed by a rolling mean. Low RSI pushes the score up, high RSI
// pulls it down.
type RSISignal struct{}

func (RSISignal) Signal(series Series, genome *model.Genome) ([]float64, error) {
	var p rsiParams
	if err := p.read(genome); err != nil {
		return nil, err
	}

	rsi := WilderRSI(series.Closes(), p.window)
	scores := make([]float64, len(rsi))
	for i, r := range rsi {
		scores[i] = p.infer(r)
	}
	return RollingMean(scores, p.rolling), nil
}

type rsiParams struct {
	window  int
	rolling int
	p       [4]float64
	low     []float64
	middle  []float64
	high    []float64
}

func (p *rsiParams) read(genome *model.Genome) error {
	scalar := func(name string) (float64, error) {
		gene, ok := genome.Gene(name)
		if !ok || len(gene.Value) != 1 {
			return 0, fmt.Errorf("genome %d: missing scalar gene %s", genome.ID, name)
		}
		return gene.Value[0], nil
	}
	tuple := func(name string, arity int) ([]float64, error) {
		gene, ok := genome.Gene(name)
		if !ok || len(gene.Value) != arity {
			return nil, fmt.Errorf("genome %d: missing %d-node gene %s", genome.ID, arity, name)
		}
		return gene.Value, nil
	}

	window, err := scalar(genotype.GeneRSIWindow)
	if err != nil {
		return err
	}
	rolling, err := scalar(genotype.GeneZRollingWindow)
	if err != nil {
		return err
	}
	p.window, p.rolling = int(window), int(rolling)
	for i, name := range []string{genotype.GeneRSIP1, genotype.GeneRSIP2, genotype.GeneRSIP3, genotype.GeneRSIP4} {
		if p.p[i], err = scalar(name); err != nil {
			return err
		}
	}
	if p.low, err = tuple(genotype.GeneRSILow, 2); err != nil {
		return err
	}
	if p.middle, err = tuple(genotype.GeneRSIMiddle, 3); err != nil {
		return err
	}
	if p.high, err = tuple(genotype.GeneRSIHigh, 2); err != nil {
		return err
	}
	return nil
}

func (p rsiParams) infer(rsi float64) float64 {
	if math.IsNaN(rsi) {
		return math.NaN()
	}
	uLow := LinearMembership(rsi, p.low[0], p.low[1], false)
	uMid := TriangularMembership(rsi, p.middle[0], p.middle[1], p.middle[2])
	uHigh := LinearMembership(rsi, p.high[0], p.high[1], true)

	zLow := p.p[0] * (uLow*25 + 75)
	zMid := p.p[2] * (uMid*25 + 25)
	if rsi < 50 {
		zMid = p.p[1] * (uMid*-25 + 75)
	}
	zHigh := p.p[3] * (uHigh*-25 + 25)

	weight := uLow + uMid + uHigh
	if weight == 0 {
		return math.NaN()
	}
	return (zLow*uLow + zMid*uMid + zHigh*uHigh) / weight
}

// TriangularMembership rises from a to a peak of 1 at b and falls to c.
func TriangularMembership(x, a, b, c float64) float64 {
	switch {
	case x <= a || x >= c:
		return 0
	case x <= b:
		return (x - a) / (b - a)
	default:
		return (c - x) / (c - b)
	}
}

// LinearMembership ramps between a and b, rising when increasing is set
// and falling otherwise.
func LinearMembership(x, a, b float64, increasing bool) float64 {
	var u float64
	switch {
	case x <= a:
		u = 0
	case x >= b:
		u = 1
	default:
		u = (x - a) / (b - a)
	}
	if increasing {
		return u
	}
	return 1 - u
}

// WilderRSI computes the relative strength index with Wilder smoothing.
// The first window-1 values are NaN.
func WilderRSI(closes []float64, window int) []float64 {
	out := make([]float64, len(closes))
	if window < 1 {
		window = 1
	}
	alpha := 1 / float64(window)
	var up, down float64
	for i := range closes {
		var gain, loss float64
		if i > 0 {
			diff := closes[i] - closes[i-1]
			if diff > 0 {
				gain = diff
			} else {
				loss = -diff
			}
		}
		if i == 0 {
			up, down = gain, loss
		} else {
			up = (1-alpha)*up + alpha*gain
			down = (1-alpha)*down + alpha*loss
		}
		switch {
		case i < window-1:
			out[i] = math.NaN()
		case down == 0:
			out[i] = 100
		default:
			out[i] = 100 - 100/(1+up/down)
		}
	}
	return out
}

// RollingMean averages each trailing window; any NaN inside the window, or
// a window not yet full, yields NaN.
func RollingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window < 1 {
		window = 1
	}
	sum, nans := 0.0, 0
	for i, v := range values {
		if math.IsNaN(v) {
			nans++
		} else {
			sum += v
		}
		if i >= window {
			old := values[i-window]
			if math.IsNaN(old) {
				nans--
			} else {
				sum -= old
			}
		}
		if i < window-1 || nans > 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = sum / float64(window)
	}
	return out
}
