package storage

import (
	"context"
	"sort"

	"genetrader/internal/model"
)

// Store persists population checkpoints keyed by run id and generation,
// plus per-generation diagnostics for each run.
type Store interface {
	Init(ctx context.Context) error
	SaveCheckpoint(ctx context.Context, population model.Population) error
	GetCheckpoint(ctx context.Context, runID string, generation int) (model.Population, bool, error)
	LatestCheckpoint(ctx context.Context, runID string) (model.Population, bool, error)
	// ListCheckpoints describes stored checkpoints ordered by run id and
	// generation. An empty run id lists every run.
	ListCheckpoints(ctx context.Context, runID string) ([]model.CheckpointInfo, error)
	AppendGenerationDiagnostics(ctx context.Context, diagnostics model.GenerationDiagnostics) error
	GetGenerationDiagnostics(ctx context.Context, runID string) ([]model.GenerationDiagnostics, bool, error)
	GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error)
}

func sortCheckpointInfos(infos []model.CheckpointInfo) {
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].RunID != infos[j].RunID {
			return infos[i].RunID < infos[j].RunID
		}
		return infos[i].Generation < infos[j].Generation
	})
}

func sortDiagnostics(diagnostics []model.GenerationDiagnostics) {
	sort.SliceStable(diagnostics, func(i, j int) bool {
		return diagnostics[i].Generation < diagnostics[j].Generation
	})
}
