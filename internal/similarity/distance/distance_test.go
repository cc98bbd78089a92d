package distance

import (
	"math"
	"testing"

	"pgregory.net/rapid"

	"github.com/farcloser/auralis/internal/types"
)

func TestWeightsSumToApproximatelyOne(t *testing.T) {
	var sum float64
	for _, w := range Weights {
		sum += w
	}

	if math.Abs(sum-1.0) > 0.05 {
		t.Fatalf("weight table sums to %v, want ~1.0", sum)
	}
}

func TestDistanceIdenticalVectorsIsZero(t *testing.T) {
	var v [types.FingerprintDimensions]float64
	for i := range v {
		v[i] = 0.5
	}

	if d := Distance(v, v); d != 0 {
		t.Fatalf("Distance(v,v) = %v, want 0", d)
	}
}

// TestDistanceSymmetric is P3: distance is symmetric and non-negative for
// any pair of normalised vectors.
func TestDistanceSymmetric(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		var x, y [types.FingerprintDimensions]float64

		for i := range x {
			x[i] = rapid.Float64Range(0, 1).Draw(rt, "x")
			y[i] = rapid.Float64Range(0, 1).Draw(rt, "y")
		}

		dxy := Distance(x, y)
		dyx := Distance(y, x)

		if math.Abs(dxy-dyx) > 1e-9 {
			rt.Fatalf("Distance(x,y)=%v != Distance(y,x)=%v", dxy, dyx)
		}

		if dxy < 0 {
			rt.Fatalf("Distance(x,y) = %v, want non-negative", dxy)
		}
	})
}

func TestDistanceManyMatchesPairwise(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		var target [types.FingerprintDimensions]float64
		for i := range target {
			target[i] = rapid.Float64Range(0, 1).Draw(rt, "target")
		}

		count := rapid.IntRange(0, 20).Draw(rt, "count")
		candidates := make([][types.FingerprintDimensions]float64, count)

		for c := range candidates {
			for i := range candidates[c] {
				candidates[c][i] = rapid.Float64Range(0, 1).Draw(rt, "cand")
			}
		}

		batch := DistanceMany(target, candidates)

		for i, c := range candidates {
			want := Distance(target, c)
			if math.Abs(batch[i]-want) > 1e-9 {
				rt.Fatalf("DistanceMany[%d] = %v, want %v", i, batch[i], want)
			}
		}
	})
}

func TestSimilarityScoreBounds(t *testing.T) {
	if s := SimilarityScore(0); s != 1 {
		t.Fatalf("SimilarityScore(0) = %v, want 1", s)
	}

	if s := SimilarityScore(1e9); s >= 0.01 {
		t.Fatalf("SimilarityScore(huge) = %v, want near 0", s)
	}
}

func TestExplainTopContributionsSumShareAtMostOne(t *testing.T) {
	var x, y [types.FingerprintDimensions]float64

	for i := range x {
		x[i] = 1
		y[i] = 0
	}

	contributions := Explain(x, y, 5)
	if len(contributions) != 5 {
		t.Fatalf("len(contributions) = %d, want 5", len(contributions))
	}

	for i := 1; i < len(contributions); i++ {
		if contributions[i].Share > contributions[i-1].Share {
			t.Fatalf("contributions not sorted descending by share at index %d", i)
		}
	}

	var shareSum float64
	for _, c := range contributions {
		shareSum += c.Share
	}

	if shareSum > 1+1e-9 {
		t.Fatalf("top contributions' shares sum to %v, want at most 1", shareSum)
	}
}
