package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"genetrader/internal/model"
)

const (
	checkpointPrefix = "gen-"
	checkpointSuffix = ".json"
	diagnosticsDir   = "diagnostics"
)

// FileStore lays checkpoints out as <root>/<run id>/gen-NNNNNN.json with
// one diagnostics file per generation beside them.
type FileStore struct {
	root string

	mu          sync.RWMutex
	initialized bool
}

func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

func (s *FileStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.root == "" {
		return errors.New("checkpoint directory is required")
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return err
	}
	s.initialized = true
	return nil
}

func (s *FileStore) SaveCheckpoint(_ context.Context, population model.Population) error {
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
	return writeAtomic(filepath.Join(s.root, population.RunID), checkpointName(population.Generation), payload)
}

func (s *FileStore) GetCheckpoint(_ context.Context, runID string, generation int) (model.Population, bool, error) {
	if err := ValidateRunID(runID); err != nil {
		return model.Population{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return model.Population{}, false, err
	}

	payload, err := os.ReadFile(filepath.Join(s.root, runID, checkpointName(generation)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.Population{}, false, nil
		}
		return model.Population{}, false, err
	}
	population, err := DecodeCheckpoint(payload)
	if err != nil {
		return model.Population{}, false, fmt.Errorf("decode checkpoint %s/%d: %w", runID, generation, err)
	}
	return population, true, nil
}

func (s *FileStore) LatestCheckpoint(ctx context.Context, runID string) (model.Population, bool, error) {
	infos, err := s.ListCheckpoints(ctx, runID)
	if err != nil {
		return model.Population{}, false, err
	}
	if len(infos) == 0 {
		return model.Population{}, false, nil
	}
	return s.GetCheckpoint(ctx, runID, infos[len(infos)-1].Generation)
}

// ListCheckpoints reads every checkpoint header so the listing carries the
// variant and population size.
func (s *FileStore) ListCheckpoints(_ context.Context, runID string) ([]model.CheckpointInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, err
	}

	runs := []string{runID}
	if runID == "" {
		entries, err := os.ReadDir(s.root)
		if err != nil {
			return nil, err
		}
		runs = runs[:0]
		for _, entry := range entries {
			if entry.IsDir() {
				runs = append(runs, entry.Name())
			}
		}
	} else if err := ValidateRunID(runID); err != nil {
		return nil, err
	}

	var infos []model.CheckpointInfo
	for _, run := range runs {
		dir := filepath.Join(s.root, run)
		entries, err := os.ReadDir(dir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, err
		}
		for _, entry := range entries {
			if _, ok := parseCheckpointName(entry.Name()); !ok || entry.IsDir() {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			payload, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			population, err := DecodeCheckpoint(payload)
			if err != nil {
				return nil, fmt.Errorf("decode checkpoint %s: %w", path, err)
			}
			stat, err := entry.Info()
			if err != nil {
				return nil, err
			}
			infos = append(infos, checkpointInfo(population, stat.Size(), stat.ModTime().Unix()))
		}
	}
	sortCheckpointInfos(infos)
	return infos, nil
}

func (s *FileStore) AppendGenerationDiagnostics(_ context.Context, diagnostics model.GenerationDiagnostics) error {
	if err := ValidateRunID(diagnostics.RunID); err != nil {
		return err
	}
	payload, err := EncodeGenerationDiagnostics(diagnostics)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}
	dir := filepath.Join(s.root, diagnostics.RunID, diagnosticsDir)
	return writeAtomic(dir, checkpointName(diagnostics.Generation), payload)
}

func (s *FileStore) GetGenerationDiagnostics(_ context.Context, runID string) ([]model.GenerationDiagnostics, bool, error) {
	if err := ValidateRunID(runID); err != nil {
		return nil, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ready(); err != nil {
		return nil, false, err
	}

	dir := filepath.Join(s.root, runID, diagnosticsDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var out []model.GenerationDiagnostics
	for _, entry := range entries {
		if _, ok := parseCheckpointName(entry.Name()); !ok {
			continue
		}
		payload, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, false, err
		}
		d, err := DecodeGenerationDiagnostics(payload)
		if err != nil {
			return nil, false, fmt.Errorf("decode diagnostics %s/%s: %w", runID, entry.Name(), err)
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, false, nil
	}
	sortDiagnostics(out)
	return out, true, nil
}

func (s *FileStore) GetFitnessHistory(ctx context.Context, runID string) ([]float64, bool, error) {
	diagnostics, ok, err := s.GetGenerationDiagnostics(ctx, runID)
	if err != nil || !ok {
		return nil, ok, err
	}
	return historyOf(diagnostics), true, nil
}

func (s *FileStore) ready() error {
	if !s.initialized {
		return errors.New("store is not initialized")
	}
	return nil
}

func checkpointName(generation int) string {
	return fmt.Sprintf("%s%06d%s", checkpointPrefix, generation, checkpointSuffix)
}

func parseCheckpointName(name string) (int, bool) {
	if !strings.HasPrefix(name, checkpointPrefix) || !strings.HasSuffix(name, checkpointSuffix) {
		return 0, false
	}
	generation, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, checkpointPrefix), checkpointSuffix))
	if err != nil || generation < 0 {
		return 0, false
	}
	return generation, true
}

// writeAtomic replaces dir/name through a temp file so readers never see a
// partial checkpoint.
func writeAtomic(dir, name string, payload []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}
