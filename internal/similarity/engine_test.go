package similarity

import (
	"fmt"
	"math"
	"testing"

	"github.com/farcloser/auralis/internal/similarity/normalize"
	"github.com/farcloser/auralis/internal/types"
)

type memRepo struct {
	fps   map[string]types.Fingerprint
	edges map[string][]types.SimilarityEdge
}

func newMemRepo() *memRepo {
	return &memRepo{fps: make(map[string]types.Fingerprint), edges: make(map[string][]types.SimilarityEdge)}
}

func (r *memRepo) Fingerprint(trackID string) (types.Fingerprint, bool) {
	fp, ok := r.fps[trackID]

	return fp, ok
}

func (r *memRepo) AllFingerprints() map[string]types.Fingerprint {
	return r.fps
}

func (r *memRepo) Edges(sourceID string) ([]types.SimilarityEdge, bool) {
	e, ok := r.edges[sourceID]

	return e, ok
}

func (r *memRepo) ReplaceGraph(edges map[string][]types.SimilarityEdge) {
	r.edges = edges
}

func (r *memRepo) UpdateEdges(sourceID string, edges []types.SimilarityEdge) {
	r.edges[sourceID] = edges
}

// clusteredFingerprint produces a fingerprint whose 25-D vector sits near
// a cluster centre (0..9) with small per-track jitter, used to build a
// synthetic repository of known cluster structure.
func clusteredFingerprint(cluster, member int) types.Fingerprint {
	var v [types.FingerprintDimensions]float64

	centre := float64(cluster) * 10

	for d := range v {
		jitter := float64((member*7+d*13)%5) * 0.01
		v[d] = centre + jitter
	}

	return types.FromVector(v)
}

func buildClusteredRepo(clusters, perCluster int) (*memRepo, []string) {
	repo := newMemRepo()

	var ids []string

	for c := 0; c < clusters; c++ {
		for m := 0; m < perCluster; m++ {
			id := fmt.Sprintf("c%d-t%d", c, m)
			repo.fps[id] = clusteredFingerprint(c, m)
			ids = append(ids, id)
		}
	}

	return repo, ids
}

func TestFindSimilarWithoutNormalizerReturnsNotFitted(t *testing.T) {
	repo := newMemRepo()
	repo.fps["a"] = clusteredFingerprint(0, 0)

	engine := NewEngine(repo)

	if _, err := engine.FindSimilar("a", 5, false); err != ErrNotFitted {
		t.Fatalf("got %v, want ErrNotFitted", err)
	}
}

func TestFindSimilarUnknownTrackReturnsNoFingerprint(t *testing.T) {
	repo := newMemRepo()
	engine := NewEngine(repo)
	engine.SetNormalizer(types.NormalizerState{})

	if _, err := engine.FindSimilar("missing", 5, false); err != ErrNoFingerprint {
		t.Fatalf("got %v, want ErrNoFingerprint", err)
	}
}

func TestFindSimilarGraphAbsentWithoutPriorBuild(t *testing.T) {
	repo := newMemRepo()
	repo.fps["a"] = clusteredFingerprint(0, 0)

	engine := NewEngine(repo)
	engine.SetNormalizer(types.NormalizerState{})

	if _, err := engine.FindSimilar("a", 5, true); err != ErrGraphAbsent {
		t.Fatalf("got %v, want ErrGraphAbsent", err)
	}
}

// TestFindSimilarClustersStayWithinCluster is close to the P4/concrete
// scenario 4 from the design: a repository with well-separated clusters
// should return intra-cluster neighbours via both the live path and the
// graph path.
func TestFindSimilarClustersStayWithinCluster(t *testing.T) {
	const clusters = 10

	const perCluster = 20

	repo, _ := buildClusteredRepo(clusters, perCluster)

	var all []types.Fingerprint
	for _, fp := range repo.fps {
		all = append(all, fp)
	}

	state, err := normalize.Fit(all)
	if err != nil {
		t.Fatalf("Fit: %v", err)
	}

	engine := NewEngine(repo)
	engine.SetNormalizer(state)

	source := "c3-t0"

	results, err := engine.FindSimilar(source, 5, false)
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}

	for _, r := range results {
		if r.TrackID[:2] != "c3" {
			t.Errorf("live search returned cross-cluster neighbour %s for source %s", r.TrackID, source)
		}
	}

	if _, err := engine.BuildGraph(5); err != nil {
		t.Fatalf("BuildGraph: %v", err)
	}

	graphResults, err := engine.FindSimilar(source, 5, true)
	if err != nil {
		t.Fatalf("FindSimilar(graph): %v", err)
	}

	for _, r := range graphResults {
		if r.TrackID[:2] != "c3" {
			t.Errorf("graph search returned cross-cluster neighbour %s for source %s", r.TrackID, source)
		}
	}
}

func TestCompareIdenticalFingerprintHasZeroDistance(t *testing.T) {
	repo := newMemRepo()
	repo.fps["a"] = clusteredFingerprint(0, 0)
	repo.fps["b"] = repo.fps["a"]

	engine := NewEngine(repo)
	engine.SetNormalizer(types.NormalizerState{
		Dimensions: func() [types.FingerprintDimensions]types.DimensionStats {
			var d [types.FingerprintDimensions]types.DimensionStats
			for i := range d {
				d[i] = types.DimensionStats{P5: -10, P95: 10}
			}

			return d
		}(),
	})

	result, err := engine.Compare("a", "b")
	if err != nil {
		t.Fatalf("Compare: %v", err)
	}

	if math.Abs(result.Distance) > 1e-9 {
		t.Fatalf("Distance = %v, want 0", result.Distance)
	}

	if result.SimilarityScore != 1 {
		t.Fatalf("SimilarityScore = %v, want 1", result.SimilarityScore)
	}
}
