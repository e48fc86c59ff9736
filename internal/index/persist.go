package index

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// snapshot is the persisted form of a Flat index.
type snapshot struct {
	Dimension int
	Metric    string
	Vectors   [][]float32
}

// WriteFile persists the index to path. The file is written to a temp file
// in the same directory and renamed into place so readers never observe a
// partial write.
func (f *Flat) WriteFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp index file: %w", err)
	}
	defer os.Remove(tmp.Name())

	snap := snapshot{
		Dimension: f.dim,
		Metric:    metricL2,
		Vectors:   f.vectors,
	}
	if err := gob.NewEncoder(tmp).Encode(snap); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp index file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("setting index file permissions: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming index file: %w", err)
	}
	return nil
}

// ReadFile loads a persisted index from path.
func ReadFile(path string, logger *zap.Logger) (*Flat, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening index file: %w", err)
	}
	defer file.Close()

	var snap snapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding index file %s: %w", path, err)
	}
	if snap.Metric != metricL2 {
		return nil, fmt.Errorf("index file %s has unsupported metric %q", path, snap.Metric)
	}
	for i, v := range snap.Vectors {
		if len(v) != snap.Dimension {
			return nil, fmt.Errorf("index file %s: vector %d has dimension %d, expected %d",
				path, i, len(v), snap.Dimension)
		}
	}

	f := NewFlat(logger)
	f.dim = snap.Dimension
	f.vectors = snap.Vectors
	return f, nil
}
