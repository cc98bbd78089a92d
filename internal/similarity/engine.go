// Package similarity implements the similarity engine:
// live k-NN search with a cheap pre-filter, pairwise compare/explain, and
// a rebuildable k-NN graph. It depends only on the normalize and distance
// packages plus a small Repository seam, grounded on a similar
// pattern of small, explicitly-injected collaborators (no package-level
// singletons) as in internal/integration.
package similarity

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/farcloser/auralis/internal/auralerr"
	"github.com/farcloser/auralis/internal/similarity/distance"
	"github.com/farcloser/auralis/internal/similarity/normalize"
	"github.com/farcloser/auralis/internal/types"
)

var (
	// ErrNotFitted is returned when the engine's normaliser has not been
	// fit yet.
	ErrNotFitted = fmt.Errorf("%w: normaliser not fitted", auralerr.ErrNotFitted)

	// ErrNoFingerprint is returned when the source track has no
	// fingerprint on record.
	ErrNoFingerprint = fmt.Errorf("%w: source track has no fingerprint", auralerr.ErrNotFound)

	// ErrGraphAbsent is returned by find_similar(use_graph=true) when no
	// graph has been built yet.
	ErrGraphAbsent = fmt.Errorf("%w: no similarity graph has been built", auralerr.ErrNotFitted)
)

// Repository is the seam the engine reads fingerprints and persists graph
// edges through; internal/store provides the concrete implementation.
type Repository interface {
	Fingerprint(trackID string) (types.Fingerprint, bool)
	AllFingerprints() map[string]types.Fingerprint
	Edges(sourceID string) ([]types.SimilarityEdge, bool)
	ReplaceGraph(edges map[string][]types.SimilarityEdge)
	UpdateEdges(sourceID string, edges []types.SimilarityEdge)
}

// SimilarityResult is one candidate returned by find_similar.
type SimilarityResult struct {
	TrackID         string
	Rank            int
	Distance        float64
	SimilarityScore float64
}

// CompareResult is the output of compare.
type CompareResult struct {
	Distance        float64
	SimilarityScore float64
}

// ExplainResult is the output of explain.
type ExplainResult struct {
	Distance         float64
	TopContributions []distance.Contribution
}

// GraphStats summarises a build_graph or incremental_update call.
type GraphStats struct {
	TracksIndexed int
	EdgesBuilt    int
	K             int
}

// preFilterWindows are the 4-dimensional pre-filter tolerances from
// the design: LUFS ±3 dB, crest ±2 dB, bass% ±8pp, tempo ±15 BPM.
const (
	lufsToleranceDB  = 3.0
	crestToleranceDB = 2.0
	bassPctTolerance = 0.08
	tempoTolerance   = 15.0
)

// Engine is the similarity engine. It is safe for concurrent use; graph
// rebuilds publish atomically via hasGraph/generation so readers never
// observe a partially-rebuilt graph.
type Engine struct {
	repo Repository

	mu       sync.RWMutex
	norm     types.NormalizerState
	fitted   bool
	hasGraph atomic.Bool
}

// NewEngine constructs an engine over the given repository. The
// normaliser must be fit separately via SetNormalizer before any search
// operation succeeds.
func NewEngine(repo Repository) *Engine {
	return &Engine{repo: repo}
}

// SetNormalizer installs a fitted normaliser state, making the engine
// ready for search operations.
func (e *Engine) SetNormalizer(state types.NormalizerState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.norm = state
	e.fitted = true
}

func (e *Engine) normalizerState() (types.NormalizerState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.norm, e.fitted
}

// Compare returns the distance and similarity score between two tracks'
// fingerprints.
func (e *Engine) Compare(trackA, trackB string) (CompareResult, error) {
	norm, ok := e.normalizerState()
	if !ok {
		return CompareResult{}, ErrNotFitted
	}

	fpA, ok := e.repo.Fingerprint(trackA)
	if !ok {
		return CompareResult{}, ErrNoFingerprint
	}

	fpB, ok := e.repo.Fingerprint(trackB)
	if !ok {
		return CompareResult{}, ErrNoFingerprint
	}

	nA := normalize.Normalize(fpA, norm)
	nB := normalize.Normalize(fpB, norm)

	d := distance.Distance(nA, nB)

	return CompareResult{Distance: d, SimilarityScore: distance.SimilarityScore(d)}, nil
}

// Explain attributes the distance between two tracks to individual
// dimensions.
func (e *Engine) Explain(trackA, trackB string, topN int) (ExplainResult, error) {
	norm, ok := e.normalizerState()
	if !ok {
		return ExplainResult{}, ErrNotFitted
	}

	fpA, ok := e.repo.Fingerprint(trackA)
	if !ok {
		return ExplainResult{}, ErrNoFingerprint
	}

	fpB, ok := e.repo.Fingerprint(trackB)
	if !ok {
		return ExplainResult{}, ErrNoFingerprint
	}

	nA := normalize.Normalize(fpA, norm)
	nB := normalize.Normalize(fpB, norm)

	contributions := distance.Explain(nA, nB, topN)
	d := distance.Distance(nA, nB)

	return ExplainResult{Distance: d, TopContributions: contributions}, nil
}

// FindSimilar returns the k nearest neighbours of track. When useGraph is
// true and an edge set exists for the source, the graph's ranked edges
// are returned directly; otherwise (or when the graph yields no edges)
// it computes live with the 4-D pre-filter, falling back to an
// unfiltered exhaustive pass if the pre-filter yields fewer than k
// results (P9).
func (e *Engine) FindSimilar(trackID string, k int, useGraph bool) ([]SimilarityResult, error) {
	norm, ok := e.normalizerState()
	if !ok {
		return nil, ErrNotFitted
	}

	source, ok := e.repo.Fingerprint(trackID)
	if !ok {
		return nil, ErrNoFingerprint
	}

	if useGraph {
		if !e.hasGraph.Load() {
			return nil, ErrGraphAbsent
		}

		edges, ok := e.repo.Edges(trackID)
		if !ok {
			return nil, nil
		}

		return edgesToResults(edges, k), nil
	}

	return e.searchLive(trackID, source, norm, k), nil
}

func (e *Engine) searchLive(
	sourceID string,
	source types.Fingerprint,
	norm types.NormalizerState,
	k int,
) []SimilarityResult {
	all := e.repo.AllFingerprints()

	target := normalize.Normalize(source, norm)

	filtered := preFilterCandidates(sourceID, source, all)

	results := rankCandidates(target, norm, filtered)
	if len(results) >= k {
		return topK(results, k)
	}

	// Pre-filter yielded too few; fall back to the unfiltered exhaustive
	// pass so the engine never hides a true top-k match (P9).
	unfiltered := make(map[string]types.Fingerprint, len(all))

	for id, fp := range all {
		if id != sourceID {
			unfiltered[id] = fp
		}
	}

	results = rankCandidates(target, norm, unfiltered)

	return topK(results, k)
}

func preFilterCandidates(
	sourceID string,
	source types.Fingerprint,
	all map[string]types.Fingerprint,
) map[string]types.Fingerprint {
	out := make(map[string]types.Fingerprint)

	for id, fp := range all {
		if id == sourceID {
			continue
		}

		if absFloat(fp.IntegratedLUFS-source.IntegratedLUFS) > lufsToleranceDB {
			continue
		}

		if absFloat(fp.CrestDB-source.CrestDB) > crestToleranceDB {
			continue
		}

		sourceBass := source.SubBassPct + source.BassPct
		candidateBass := fp.SubBassPct + fp.BassPct

		if absFloat(candidateBass-sourceBass) > bassPctTolerance {
			continue
		}

		if absFloat(fp.TempoBPM-source.TempoBPM) > tempoTolerance {
			continue
		}

		out[id] = fp
	}

	return out
}

func rankCandidates(
	target [types.FingerprintDimensions]float64,
	norm types.NormalizerState,
	candidates map[string]types.Fingerprint,
) []SimilarityResult {
	ids := make([]string, 0, len(candidates))
	vectors := make([][types.FingerprintDimensions]float64, 0, len(candidates))

	for id, fp := range candidates {
		ids = append(ids, id)
		vectors = append(vectors, normalize.Normalize(fp, norm))
	}

	distances := distance.DistanceMany(target, vectors)

	results := make([]SimilarityResult, len(ids))
	for i, id := range ids {
		results[i] = SimilarityResult{
			TrackID:         id,
			Distance:        distances[i],
			SimilarityScore: distance.SimilarityScore(distances[i]),
		}
	}

	return results
}

func topK(results []SimilarityResult, k int) []SimilarityResult {
	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })

	if k < len(results) {
		results = results[:k]
	}

	for i := range results {
		results[i].Rank = i + 1
	}

	return results
}

func edgesToResults(edges []types.SimilarityEdge, k int) []SimilarityResult {
	sort.Slice(edges, func(i, j int) bool { return edges[i].Rank < edges[j].Rank })

	if k < len(edges) {
		edges = edges[:k]
	}

	out := make([]SimilarityResult, len(edges))
	for i, e := range edges {
		out[i] = SimilarityResult{
			TrackID:         e.Neighbour,
			Rank:            e.Rank,
			Distance:        e.Distance,
			SimilarityScore: e.SimilarityScore,
		}
	}

	return out
}

// BuildGraph performs a full k-NN graph rebuild and publishes it
// atomically: the repository swap happens in one call so concurrent
// readers never see a partial graph.
func (e *Engine) BuildGraph(k int) (GraphStats, error) {
	norm, ok := e.normalizerState()
	if !ok {
		return GraphStats{}, ErrNotFitted
	}

	all := e.repo.AllFingerprints()

	graph := make(map[string][]types.SimilarityEdge, len(all))

	edgeCount := 0

	for sourceID, sourceFP := range all {
		edges := buildEdgesFor(sourceID, sourceFP, norm, all, k)
		graph[sourceID] = edges
		edgeCount += len(edges)
	}

	e.repo.ReplaceGraph(graph)
	e.hasGraph.Store(true)

	return GraphStats{TracksIndexed: len(all), EdgesBuilt: edgeCount, K: k}, nil
}

// IncrementalUpdate recomputes edges only for the listed source tracks,
// leaving every other source's edge set untouched.
func (e *Engine) IncrementalUpdate(trackIDs []string, k int) (GraphStats, error) {
	norm, ok := e.normalizerState()
	if !ok {
		return GraphStats{}, ErrNotFitted
	}

	all := e.repo.AllFingerprints()

	edgeCount := 0

	for _, sourceID := range trackIDs {
		sourceFP, ok := all[sourceID]
		if !ok {
			continue
		}

		edges := buildEdgesFor(sourceID, sourceFP, norm, all, k)
		e.repo.UpdateEdges(sourceID, edges)
		edgeCount += len(edges)
	}

	return GraphStats{TracksIndexed: len(trackIDs), EdgesBuilt: edgeCount, K: k}, nil
}

func buildEdgesFor(
	sourceID string,
	sourceFP types.Fingerprint,
	norm types.NormalizerState,
	all map[string]types.Fingerprint,
	k int,
) []types.SimilarityEdge {
	target := normalize.Normalize(sourceFP, norm)

	candidates := make(map[string]types.Fingerprint, len(all))

	for id, fp := range all {
		if id != sourceID {
			candidates[id] = fp
		}
	}

	results := rankCandidates(target, norm, candidates)
	results = topK(results, k)

	edges := make([]types.SimilarityEdge, len(results))
	for i, r := range results {
		edges[i] = types.SimilarityEdge{
			Source:          sourceID,
			Neighbour:       r.TrackID,
			Rank:            r.Rank,
			Distance:        r.Distance,
			SimilarityScore: r.SimilarityScore,
		}
	}

	return edges
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}

	return v
}
