package evo

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
	"gonum.org/v1/gonum/stat"

	"genetrader/internal/model"
	"genetrader/internal/scape"
)

// Scored pairs an individual with the fitness used for ranking. Fitness may
// differ from the individual's own score after fitness sharing.
type Scored[T model.Individual] struct {
	Individual T
	Fitness    model.Fitness
}

// EvaluatePopulation scores every individual against one window on at most
// workers goroutines and writes each result back with SetScore. The
// returned slice follows population order. Evaluator errors and panics
// degenerate that individual to -Inf; only context cancellation aborts.
func EvaluatePopulation[T model.Individual](ctx context.Context, evaluator scape.Scape[T], population []T, window scape.Series, workers int, logger *zerolog.Logger) ([]model.Fitness, error) {
	if evaluator == nil {
		return nil, fmt.Errorf("evaluator is required")
	}
	if workers <= 0 {
		workers = 1
	}
	log := loggerOrNop(logger)

	results := make([]model.Fitness, len(population))
	p := pool.New().WithMaxGoroutines(workers)
	for i, individual := range population {
		i, individual := i, individual
		p.Go(func() {
			results[i] = evaluateOne(ctx, evaluator, individual, window, log)
		})
	}
	p.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for i, individual := range population {
		individual.SetScore(results[i])
	}
	return results, nil
}

func evaluateOne[T model.Individual](ctx context.Context, evaluator scape.Scape[T], individual T, window scape.Series, log *zerolog.Logger) (fitness model.Fitness) {
	fitness = model.Degenerate
	if ctx.Err() != nil {
		return fitness
	}
	defer func() {
		if r := recover(); r != nil {
			log.Debug().Uint64("individual", individual.Identity()).Interface("panic", r).Msg("evaluation panicked")
			fitness = model.Degenerate
		}
	}()

	score, _, err := evaluator.Evaluate(ctx, individual, window)
	if err != nil {
		if ctx.Err() == nil {
			log.Debug().Err(err).Uint64("individual", individual.Identity()).Msg("evaluation degenerated")
		}
		return model.Degenerate
	}
	if math.IsNaN(float64(score)) {
		return model.Degenerate
	}
	return score
}

// AverageFitness is the mean of the valid values, or 0 when there are none.
func AverageFitness(values []model.Fitness) float64 {
	valid := validValues(values)
	if len(valid) == 0 {
		return 0
	}
	return stat.Mean(valid, nil)
}

// BestFitness returns the highest value, or -Inf for an empty slice.
func BestFitness(values []model.Fitness) model.Fitness {
	best := model.Degenerate
	for _, v := range values {
		if v > best {
			best = v
		}
	}
	return best
}

func validValues(values []model.Fitness) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if v.Valid() {
			out = append(out, float64(v))
		}
	}
	return out
}

func scoresOf[T model.Individual](population []T) []model.Fitness {
	out := make([]model.Fitness, len(population))
	for i, individual := range population {
		out[i] = individual.Score()
	}
	return out
}

func loggerOrNop(logger *zerolog.Logger) *zerolog.Logger {
	if logger == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return logger
}
