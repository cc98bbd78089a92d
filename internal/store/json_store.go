package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/farcloser/auralis/internal/similarity/normalize"
	"github.com/farcloser/auralis/internal/types"
)

// FileLayout names the on-disk files the design specifies for persisted
// state: normaliser fit parameters and the k-NN graph. The graph's file
// is named knn_graph.db in the spec text but holds JSON, matching the
// rest of this package's stdlib-only persistence.
type FileLayout struct {
	NormalizerPath string // e.g. state/normalizer.json
	GraphPath      string // e.g. state/knn_graph.db
}

// DefaultFileLayout returns the layout rooted at dir, using the exact
// file names the design names.
func DefaultFileLayout(dir string) FileLayout {
	return FileLayout{
		NormalizerPath: filepath.Join(dir, "state", "normalizer.json"),
		GraphPath:      filepath.Join(dir, "state", "knn_graph.db"),
	}
}

// graphFile is the on-disk shape of the persisted k-NN adjacency map.
type graphFile struct {
	Edges map[string][]types.SimilarityEdge `json:"edges"`
}

// SaveNormalizer writes normalize.MarshalState's output to layout's
// normaliser path, creating parent directories as needed.
func SaveNormalizer(layout FileLayout, state types.NormalizerState) error {
	data, err := normalize.MarshalState(state)
	if err != nil {
		return err
	}

	return writeFile(layout.NormalizerPath, data)
}

// LoadNormalizer reads and unmarshals the normaliser state previously
// written by SaveNormalizer.
func LoadNormalizer(layout FileLayout) (types.NormalizerState, error) {
	data, err := os.ReadFile(layout.NormalizerPath)
	if err != nil {
		return types.NormalizerState{}, fmt.Errorf("store: read normaliser state: %w", err)
	}

	return normalize.UnmarshalState(data)
}

// SaveGraph writes the given adjacency map to layout's graph path.
func SaveGraph(layout FileLayout, edges map[string][]types.SimilarityEdge) error {
	data, err := json.Marshal(graphFile{Edges: edges})
	if err != nil {
		return fmt.Errorf("store: marshal graph: %w", err)
	}

	return writeFile(layout.GraphPath, data)
}

// LoadGraph reads the adjacency map previously written by SaveGraph.
func LoadGraph(layout FileLayout) (map[string][]types.SimilarityEdge, error) {
	data, err := os.ReadFile(layout.GraphPath)
	if err != nil {
		return nil, fmt.Errorf("store: read graph: %w", err)
	}

	var gf graphFile
	if err := json.Unmarshal(data, &gf); err != nil {
		return nil, fmt.Errorf("store: unmarshal graph: %w", err)
	}

	return gf.Edges, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("store: mkdir: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("store: write %s: %w", path, err)
	}

	return nil
}
