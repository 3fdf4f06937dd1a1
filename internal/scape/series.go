package scape

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Neutral is the per-bar return ratio of a bar without exposure.
const Neutral = 1.0

// Bar is one price row. Change is Close over the previous Close.
type Bar struct {
	Date   string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Change float64
}

// Series is a chronologically ordered run of bars.
type Series struct {
	Name string
	Bars []Bar
}

func (s Series) Len() int { return len(s.Bars) }

func (s Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, bar := range s.Bars {
		out[i] = bar.Close
	}
	return out
}

func (s Series) Changes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, bar := range s.Bars {
		out[i] = bar.Change
	}
	return out
}

// Slice returns bars [from, to) as a new series sharing storage.
func (s Series) Slice(from, to int) Series {
	return Series{Name: fmt.Sprintf("%s[%d:%d]", s.Name, from, to), Bars: s.Bars[from:to]}
}

// FromCloses builds a series from close prices, deriving the change ratio.
// The first bar has a neutral change.
func FromCloses(name string, closes []float64) Series {
	bars := make([]Bar, len(closes))
	for i, c := range closes {
		bars[i] = Bar{Open: c, High: c, Low: c, Close: c}
	}
	series := Series{Name: name, Bars: bars}
	deriveChanges(series.Bars)
	return series
}

func deriveChanges(bars []Bar) {
	for i := range bars {
		if i == 0 || bars[i-1].Close == 0 {
			bars[i].Change = Neutral
			continue
		}
		bars[i].Change = bars[i].Close / bars[i-1].Close
	}
}

// Split divides the series by position into a leading training part holding
// trainFraction of the bars and a trailing test part.
func (s Series) Split(trainFraction float64) (Series, Series, error) {
	if trainFraction <= 0 || trainFraction > 1 {
		return Series{}, Series{}, fmt.Errorf("train fraction must be within (0, 1], got %g", trainFraction)
	}
	cut := int(math.Round(float64(len(s.Bars)) * trainFraction))
	train := Series{Name: s.Name + ".train", Bars: s.Bars[:cut]}
	test := Series{Name: s.Name + ".test", Bars: s.Bars[cut:]}
	return train, test, nil
}

// Windows cuts rolling windows of the given length advancing by step bars.
// A series shorter than length yields itself as the only window.
func (s Series) Windows(length, step int) []Series {
	if step <= 0 {
		step = 1
	}
	if length <= 0 || len(s.Bars) <= length {
		return []Series{s}
	}
	out := make([]Series, 0, (len(s.Bars)-length)/step+1)
	for from := 0; from+length <= len(s.Bars); from += step {
		out = append(out, s.Slice(from, from+length))
	}
	return out
}

// WindowSampler hands out one training window per generation.
type WindowSampler struct {
	windows []Series
}

func NewWindowSampler(windows []Series) (*WindowSampler, error) {
	if len(windows) == 0 {
		return nil, fmt.Errorf("at least one training window is required")
	}
	return &WindowSampler{windows: windows}, nil
}

func (w *WindowSampler) Sample(rng *rand.Rand) Series {
	if len(w.windows) == 1 {
		return w.windows[0]
	}
	return w.windows[rng.Intn(len(w.windows))]
}

func (w *WindowSampler) Len() int { return len(w.windows) }

// LoadSeriesCSV reads a price CSV with a header row. Close is required;
// Date, Open, High, Low and Volume are read when present.
func LoadSeriesCSV(path string) (Series, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Series{}, fmt.Errorf("price csv path is required")
	}

	f, err := os.Open(path)
	if err != nil {
		return Series{}, fmt.Errorf("open price csv %s: %w", path, err)
	}
	defer f.Close()

	series, err := ReadSeriesCSV(f)
	if err != nil {
		return Series{}, fmt.Errorf("price csv %s: %w", path, err)
	}
	series.Name = filepath.Base(path)
	return series, nil
}

func ReadSeriesCSV(r io.Reader) (Series, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return Series{}, fmt.Errorf("read header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	closeCol, ok := columns["close"]
	if !ok {
		if closeCol, ok = columns["adj close"]; !ok {
			return Series{}, fmt.Errorf("header has no Close column: %v", header)
		}
	}

	bars := make([]Bar, 0, 1024)
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return Series{}, fmt.Errorf("read row %d: %w", row, err)
		}
		if closeCol >= len(record) || strings.TrimSpace(record[closeCol]) == "" {
			continue
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(record[closeCol]), 64)
		if err != nil {
			return Series{}, fmt.Errorf("parse close on row %d: %w", row, err)
		}
		if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
			return Series{}, fmt.Errorf("invalid close on row %d: %f", row, price)
		}
		bar := Bar{Close: price, Open: price, High: price, Low: price}
		if i, ok := columns["date"]; ok && i < len(record) {
			bar.Date = strings.TrimSpace(record[i])
		}
		optionalFloat(record, columns, "open", &bar.Open)
		optionalFloat(record, columns, "high", &bar.High)
		optionalFloat(record, columns, "low", &bar.Low)
		optionalFloat(record, columns, "volume", &bar.Volume)
		bars = append(bars, bar)
	}

	if len(bars) < 2 {
		return Series{}, fmt.Errorf("requires at least 2 price rows, got %d", len(bars))
	}
	deriveChanges(bars)
	return Series{Bars: bars}, nil
}

func optionalFloat(record []string, columns map[string]int, name string, dst *float64) {
	i, ok := columns[name]
	if !ok || i >= len(record) {
		return
	}
	if v, err := strconv.ParseFloat(strings.TrimSpace(record[i]), 64); err == nil {
		*dst = v
	}
}

// SyntheticSeries is a deterministic trending, cycling price path used when
// no price file is supplied.
func SyntheticSeries(n int) Series {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = syntheticPrice(i)
	}
	return FromCloses("synthetic", closes)
}

func syntheticPrice(step int) float64 {
	t := float64(step)
	base := 100 + 0.02*t
	cycle := 6*math.Sin(t*0.05) + 2.5*math.Sin(t*0.23+0.9)
	regime := 0.0
	switch phase := step % 600; {
	case phase >= 200 && phase < 350:
		regime = 0.08 * float64(phase-200)
	case phase >= 350:
		regime = 12 - 0.048*float64(phase-350)
	}
	price := base + cycle + regime
	if price < 1 {
		return 1
	}
	return price
}
