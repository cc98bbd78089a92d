// Package distance implements the weighted-Euclidean distance calculator
// over normalised fingerprint vectors. Grounded on the
// teacher's vectorised accumulation style (single pass, no per-element
// allocation) and on gonum.org/v1/gonum/floats for the batch form.
package distance

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/farcloser/auralis/internal/types"
)

// Weights is the fixed per-dimension weight table from the design, in
// the same field order as types.Fingerprint.Vector. The table sums to
// 1.03 (block totals 0.33, 0.23, 0.18, 0.12, 0.09, 0.05, 0.03) and must
// not be altered per-call; it is a design constant, not a
// tunable.
var Weights = [types.FingerprintDimensions]float64{
	0.04, 0.06, 0.05, 0.06, 0.05, 0.04, 0.03, // band percentages
	0.10, 0.08, 0.05, // dynamics
	0.08, 0.04, 0.04, 0.02, // temporal
	0.05, 0.04, 0.03, // spectral
	0.04, 0.03, 0.02, // harmonic
	0.02, 0.02, 0.01, // variation
	0.02, 0.01, // stereo
}

// Distance computes the weighted Euclidean distance between two
// normalised vectors: d(x,y) = sqrt(sum_i w_i * (x_i - y_i)^2).
func Distance(x, y [types.FingerprintDimensions]float64) float64 {
	var sum float64

	for i := range x {
		d := x[i] - y[i]
		sum += Weights[i] * d * d
	}

	return math.Sqrt(sum)
}

// DistanceMany computes the distance from target to every candidate in a
// single vectorised pass, reducing per-candidate overhead to one
// weighted-dot-product-equivalent per candidate rather than a fresh
// sqrt/loop dispatch each time.
func DistanceMany(
	target [types.FingerprintDimensions]float64,
	candidates [][types.FingerprintDimensions]float64,
) []float64 {
	out := make([]float64, len(candidates))

	diff := make([]float64, types.FingerprintDimensions)
	weighted := make([]float64, types.FingerprintDimensions)

	for i, c := range candidates {
		for d := range diff {
			diff[d] = target[d] - c[d]
		}

		floats.MulTo(weighted, diff, diff)
		floats.Mul(weighted, Weights[:])

		out[i] = math.Sqrt(floats.Sum(weighted))
	}

	return out
}

// SimilarityScore converts a distance into a bounded [0,1] similarity
// score, 1 for identical normalised vectors and approaching 0 as distance
// grows.
func SimilarityScore(d float64) float64 {
	return 1 / (1 + d)
}

// Contribution is one dimension's share of a total distance, used by the
// explain operation.
type Contribution struct {
	DimensionIndex int
	SquaredWeighted float64
	Share           float64
}

// Explain attributes distance between two normalised vectors to
// individual dimensions via squared-weighted-difference, returning the
// top_n largest contributions with their share of the total.
func Explain(x, y [types.FingerprintDimensions]float64, topN int) []Contribution {
	contributions := make([]Contribution, types.FingerprintDimensions)

	var total float64

	for i := range x {
		d := x[i] - y[i]
		sq := Weights[i] * d * d
		contributions[i] = Contribution{DimensionIndex: i, SquaredWeighted: sq}
		total += sq
	}

	for i := range contributions {
		if total > 0 {
			contributions[i].Share = contributions[i].SquaredWeighted / total
		}
	}

	sortByShareDescending(contributions)

	if topN > 0 && topN < len(contributions) {
		contributions = contributions[:topN]
	}

	return contributions
}

func sortByShareDescending(c []Contribution) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].Share > c[j-1].Share; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}
