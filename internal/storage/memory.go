package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"genetrader/internal/model"
)

type memoryCheckpoint struct {
	payload []byte
	info    model.CheckpointInfo
}

// MemoryStore keeps encoded checkpoints in process memory. Payloads go
// through the codec so loads never alias saved populations.
type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	checkpoints map[string]map[int]memoryCheckpoint
	diagnostics map[string]map[int]model.GenerationDiagnostics
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}
	s.initialized = true
	s.checkpoints = make(map[string]map[int]memoryCheckpoint)
	s.diagnostics = make(map[string]map[int]model.GenerationDiagnostics)
	return nil
}

func (s *MemoryStore) SaveCheckpoint(_ context.Context, population model.Population) error {
	if err := ValidateRunID(population.RunID); err != nil {
		return err
	}
	payload, err := EncodeCheckpoint(population)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}
	run, ok := s.checkpoints[population.RunID]
	if !ok {
		run = make(map[int]memoryCheckpoint)
		s.checkpoints[population.RunID] = run
	}
	run[population.Generation] = memoryCheckpoint{
		payload: payload,
		info:    checkpointInfo(population, int64(len(payload)), time.Now().Unix()),
	}
	return nil
}

func (s *MemoryStore) GetCheckpoint(_ context.Context, runID string, generation int) (model.Population, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return model.Population{}, false, err
	}
	cp, ok := s.checkpoints[runID][generation]
	if !ok {
		return model.Population{}, false, nil
	}
	population, err := DecodeCheckpoint(cp.payload)
	if err != nil {
		return model.Population{}, false, fmt.Errorf("decode checkpoint %s/%d: %w", runID, generation, err)
	}
	return population, true, nil
}

func (s *MemoryStore) LatestCheckpoint(ctx context.Context, runID string) (model.Population, bool, error) {
	s.mu.RLock()
	latest, found := -1, false
	for generation := range s.checkpoints[runID] {
		if generation > latest {
			latest, found = generation, true
		}
	}
	s.mu.RUnlock()
	if !found {
		return model.Population{}, false, nil
	}
	return s.GetCheckpoint(ctx, runID, latest)
}

func (s *MemoryStore) ListCheckpoints(_ context.Context, runID string) ([]model.CheckpointInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}
	var infos []model.CheckpointInfo
	for id, run := range s.checkpoints {
		if runID != "" && id != runID {
			continue
		}
		for _, cp := range run {
			infos = append(infos, cp.info)
		}
	}
	sortCheckpointInfos(infos)
	return infos, nil
}

func (s *MemoryStore) AppendGenerationDiagnostics(_ context.Context, diagnostics model.GenerationDiagnostics) error {
	if err := ValidateRunID(diagnostics.RunID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}
	run, ok := s.diagnostics[diagnostics.RunID]
	if !ok {
		run = make(map[int]model.GenerationDiagnostics)
		s.diagnostics[diagnostics.RunID] = run
	}
	run[diagnostics.Generation] = diagnostics
	return nil
}

func (s *MemoryStore) GetGenerationDiagnostics(_ context.Context, runID string) ([]model.GenerationDiagnostics, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, false, err
	}
	run, ok := s.diagnostics[runID]
	if !ok {
		return nil, false, nil
	}
	out := make([]model.GenerationDiagnostics, 0, len(run))
	for _, d := range run {
		out = append(out, d)
	}
	sortDiagnostics(out)
	return out, true, nil
}

func (s *MemoryStore) GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error) {
	diagnostics, ok, err := s.GetGenerationDiagnostics(ctx, runID)
	if err != nil || !ok {
		return nil, ok, err
	}
	return historyOf(diagnostics), true, nil
}

func (s *MemoryStore) ready() error {
	if !s.initialized {
		return errors.New("store is not initialized")
	}
	return nil
}
