package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"genetrader/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var (
	ErrVersionMismatch = errors.New("record version mismatch")
	ErrInvalidRunID    = errors.New("invalid run id")
)

// EncodeCheckpoint serializes a population snapshot, stamping the current
// versions on records that carry none.
func EncodeCheckpoint(p model.Population) ([]byte, error) {
	if p.SchemaVersion == 0 && p.CodecVersion == 0 {
		p.VersionedRecord = model.VersionedRecord{SchemaVersion: CurrentSchemaVersion, CodecVersion: CurrentCodecVersion}
	}
	if err := checkVersion(p.VersionedRecord); err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

func DecodeCheckpoint(data []byte) (model.Population, error) {
	var population model.Population
	if err := json.Unmarshal(data, &population); err != nil {
		return model.Population{}, err
	}
	if err := checkVersion(population.VersionedRecord); err != nil {
		return model.Population{}, err
	}
	for _, genome := range population.Genomes {
		genome.Reindex()
	}
	return population, nil
}

func EncodeGenerationDiagnostics(d model.GenerationDiagnostics) ([]byte, error) {
	return json.Marshal(d)
}

func DecodeGenerationDiagnostics(data []byte) (model.GenerationDiagnostics, error) {
	var d model.GenerationDiagnostics
	if err := json.Unmarshal(data, &d); err != nil {
		return model.GenerationDiagnostics{}, err
	}
	return d, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return fmt.Errorf("%w: schema=%d codec=%d", ErrVersionMismatch, v.SchemaVersion, v.CodecVersion)
	}
	return nil
}

// ValidateRunID rejects ids that cannot name a checkpoint namespace on disk.
func ValidateRunID(runID string) error {
	if runID == "" || runID == "." || runID == ".." || strings.ContainsAny(runID, `/\`) || strings.ContainsRune(runID, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidRunID, runID)
	}
	return nil
}

func checkpointInfo(p model.Population, size int64, savedAt int64) model.CheckpointInfo {
	return model.CheckpointInfo{
		RunID:      p.RunID,
		Generation: p.Generation,
		Variant:    p.Variant,
		Size:       p.Size(),
		Bytes:      size,
		SavedAt:    savedAt,
	}
}

// historyOf projects diagnostics onto their average fitness values.
func historyOf(diagnostics []model.GenerationDiagnostics) []float64 {
	out := make([]float64, len(diagnostics))
	for i, d := range diagnostics {
		out[i] = d.AverageFitness
	}
	return out
}
