package usecase

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// ManifestFile is the name of the run manifest in the output directory.
const ManifestFile = "run.json"

// Manifest records what a batch run did and which files it produced.
type Manifest struct {
	RunID         string      `json:"run_id"`
	StartedAt     time.Time   `json:"started_at"`
	FinishedAt    time.Time   `json:"finished_at"`
	Years         []int       `json:"years"`
	Config        interface{} `json:"config,omitempty"`
	MaskedCells   int         `json:"masked_cells"`
	Stats         RunStats    `json:"stats"`
	Baseline      *Baseline   `json:"baseline,omitempty"`
	BaselineError string      `json:"baseline_error,omitempty"`
	Files         []string    `json:"files"`
}

// NewManifest starts a manifest with a fresh run ID.
func NewManifest(years []int, config interface{}) *Manifest {
	return &Manifest{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Years:     append([]int(nil), years...),
		Config:    config,
		Files:     []string{},
	}
}

// Write stores the manifest as indented JSON in dir and returns its path.
func (m *Manifest) Write(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode manifest: %w", err)
	}
	path := filepath.Join(dir, ManifestFile)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil { //nolint:gosec // G306: results are meant to be shared.
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}
	return path, nil
}
