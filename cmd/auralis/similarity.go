//nolint:wrapcheck
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/farcloser/auralis/internal/decoder"
	"github.com/farcloser/auralis/internal/fingerprint"
	"github.com/farcloser/auralis/internal/similarity"
	"github.com/farcloser/auralis/internal/similarity/normalize"
	"github.com/farcloser/auralis/internal/store"
	"github.com/farcloser/auralis/internal/types"
)

func similarityCommand() *cli.Command {
	return &cli.Command{
		Name:  "similarity",
		Usage: "Fingerprint a library directory and query track similarity",
		Commands: []*cli.Command{
			similarityBuildGraphCommand(),
			similarityFindCommand(),
			similarityCompareCommand(),
		},
	}
}

func similarityBuildGraphCommand() *cli.Command {
	return &cli.Command{
		Name:  "build-graph",
		Usage: "Fingerprint every track in a library directory and persist a k-NN graph",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "library-dir", Required: true},
			&cli.StringFlag{Name: "state-dir", Value: "./auralis-state"},
			&cli.IntFlag{Name: "k", Value: 10},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			repo, trackIDs, err := fingerprintLibrary(ctx, cmd.String("library-dir"))
			if err != nil {
				return err
			}

			engine, state, err := newFittedEngine(repo)
			if err != nil {
				return err
			}

			stats, err := engine.BuildGraph(cmd.Int("k"))
			if err != nil {
				return fmt.Errorf("building graph: %w", err)
			}

			layout := store.DefaultFileLayout(cmd.String("state-dir"))

			if err := store.SaveNormalizer(layout, state); err != nil {
				return err
			}

			if err := store.SaveGraph(layout, edgesSnapshot(repo, trackIDs)); err != nil {
				return err
			}

			return json.NewEncoder(os.Stdout).Encode(stats)
		},
	}
}

func similarityFindCommand() *cli.Command {
	return &cli.Command{
		Name:      "find",
		Usage:     "Find the tracks most similar to a given track",
		ArgsUsage: "<track_id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "library-dir", Required: true},
			&cli.IntFlag{Name: "k", Value: 10},
			&cli.BoolFlag{Name: "use-graph"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return errors.New("expected exactly one argument: track_id")
			}

			repo, _, err := fingerprintLibrary(ctx, cmd.String("library-dir"))
			if err != nil {
				return err
			}

			engine, _, err := newFittedEngine(repo)
			if err != nil {
				return err
			}

			results, err := engine.FindSimilar(cmd.Args().First(), cmd.Int("k"), cmd.Bool("use-graph"))
			if err != nil {
				return fmt.Errorf("find_similar: %w", err)
			}

			return json.NewEncoder(os.Stdout).Encode(results)
		},
	}
}

func similarityCompareCommand() *cli.Command {
	return &cli.Command{
		Name:      "compare",
		Usage:     "Compare two tracks and explain their distance contributions",
		ArgsUsage: "<track_a> <track_b>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "library-dir", Required: true},
			&cli.IntFlag{Name: "top", Value: 5},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 2 {
				return errors.New("expected exactly two arguments: track_a track_b")
			}

			repo, _, err := fingerprintLibrary(ctx, cmd.String("library-dir"))
			if err != nil {
				return err
			}

			engine, _, err := newFittedEngine(repo)
			if err != nil {
				return err
			}

			explanation, err := engine.Explain(cmd.Args().Get(0), cmd.Args().Get(1), cmd.Int("top"))
			if err != nil {
				return fmt.Errorf("explain: %w", err)
			}

			return json.NewEncoder(os.Stdout).Encode(explanation)
		},
	}
}

// fingerprintLibrary decodes and fingerprints every audio file directly
// under dir, keyed by file base name (without extension) as track_id.
func fingerprintLibrary(ctx context.Context, dir string) (*store.MemoryStore, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading library dir: %w", err)
	}

	repo := store.NewMemoryStore()
	dec := decoder.NewFFmpegDecoder()

	var trackIDs []string

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		trackID := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))

		info, err := dec.ProbeInfo(ctx, path)
		if err != nil {
			continue
		}

		pcm, sampleRate, channels, err := dec.Decode(ctx, path, 0, info.DurationSec)
		if err != nil {
			continue
		}

		left, right := deinterleaveFloat32(pcm, channels)
		leftF64 := toFloat64(left)

		var rightF64 []float64
		if channels >= 2 {
			rightF64 = toFloat64(right)
		}

		fp, err := fingerprint.Extract(leftF64, rightF64, sampleRate)
		if err != nil {
			continue
		}

		repo.Put(trackID, fp)
		trackIDs = append(trackIDs, trackID)
	}

	return repo, trackIDs, nil
}

// newFittedEngine builds a similarity.Engine over repo and fits its
// normaliser against every fingerprint currently in repo.
func newFittedEngine(repo *store.MemoryStore) (*similarity.Engine, types.NormalizerState, error) {
	engine := similarity.NewEngine(repo)

	all := repo.AllFingerprints()

	fingerprints := make([]types.Fingerprint, 0, len(all))
	for _, fp := range all {
		fingerprints = append(fingerprints, fp)
	}

	state, err := normalize.Fit(fingerprints)
	if err != nil {
		return nil, types.NormalizerState{}, fmt.Errorf("fitting normaliser: %w", err)
	}

	engine.SetNormalizer(state)

	return engine, state, nil
}

// edgesSnapshot reads back every track's adjacency list from repo, for
// persistence via store.SaveGraph.
func edgesSnapshot(repo *store.MemoryStore, trackIDs []string) map[string][]types.SimilarityEdge {
	graph := make(map[string][]types.SimilarityEdge, len(trackIDs))

	for _, trackID := range trackIDs {
		if edges, ok := repo.Edges(trackID); ok {
			graph[trackID] = edges
		}
	}

	return graph
}
