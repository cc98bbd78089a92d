// Package normalize implements the fingerprint normaliser:
// fit per-dimension 5th/95th percentile bands from a corpus of
// fingerprints, then map raw vectors into [0,1]^25 and back. Grounded on
// a similar statistical style in internal/audit/spectral-v2.go (gonum
// stat usage, sample-based percentile banding) but adapted from
// defect-detection thresholds to a reversible normalisation transform.
package normalize

import (
	"encoding/json"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/farcloser/auralis/internal/auralerr"
	"github.com/farcloser/auralis/internal/types"
)

// minFitSamples is the smallest corpus size the percentile fit trusts;
// below this, percentile(5) and percentile(95) estimates are too noisy
// to be a meaningful normalisation band.
const minFitSamples = 10

// ErrTooFewSamples is returned by Fit when given fewer than minFitSamples
// fingerprints.
var ErrTooFewSamples = fmt.Errorf("%w: fewer than %d fingerprints", auralerr.ErrInvalidInput, minFitSamples)

// Fit learns per-dimension 5th/95th percentile bands from a corpus of
// fingerprints.
func Fit(fingerprints []types.Fingerprint) (types.NormalizerState, error) {
	if len(fingerprints) < minFitSamples {
		return types.NormalizerState{}, ErrTooFewSamples
	}

	var state types.NormalizerState

	state.SampleSize = len(fingerprints)

	columns := make([][]float64, types.FingerprintDimensions)
	for d := range columns {
		columns[d] = make([]float64, len(fingerprints))
	}

	for i, fp := range fingerprints {
		v := fp.Vector()
		for d := range v {
			columns[d][i] = v[d]
		}
	}

	for d := range columns {
		sorted := append([]float64(nil), columns[d]...)
		stat.SortWeighted(sorted, nil)

		p5 := stat.Quantile(0.05, stat.Empirical, sorted, nil)
		p95 := stat.Quantile(0.95, stat.Empirical, sorted, nil)

		state.Dimensions[d] = types.DimensionStats{P5: p5, P95: p95}
	}

	return state, nil
}

// Normalize maps a raw 25-D vector into [0,1]^25 using the learnt
// percentile bands. A dimension with zero learnt variance (P5 == P95)
// maps every input to 0.5, never dividing by zero. Values outside the
// learnt band are clipped to [0,1].
func Normalize(fp types.Fingerprint, state types.NormalizerState) [types.FingerprintDimensions]float64 {
	raw := fp.Vector()

	var out [types.FingerprintDimensions]float64

	for d, v := range raw {
		dim := state.Dimensions[d]

		span := dim.P95 - dim.P5
		if span == 0 {
			out[d] = 0.5

			continue
		}

		n := (v - dim.P5) / span
		out[d] = clamp(n, 0, 1)
	}

	return out
}

// Denormalize is the inverse of Normalize, used to recover an approximate
// raw fingerprint from a normalised vector (e.g. for display or
// diagnostics). A dimension fit with zero variance denormalizes back to
// its single learnt value regardless of the normalised input, since the
// forward map discarded that information.
func Denormalize(normalised [types.FingerprintDimensions]float64, state types.NormalizerState) types.Fingerprint {
	var raw [types.FingerprintDimensions]float64

	for d, n := range normalised {
		dim := state.Dimensions[d]

		span := dim.P95 - dim.P5
		if span == 0 {
			raw[d] = dim.P5

			continue
		}

		raw[d] = dim.P5 + n*span
	}

	return types.FromVector(raw)
}

// MarshalState serialises a NormalizerState to a self-describing JSON blob.
func MarshalState(state types.NormalizerState) ([]byte, error) {
	return json.Marshal(state)
}

// UnmarshalState reconstructs a NormalizerState from a blob produced by
// MarshalState.
func UnmarshalState(data []byte) (types.NormalizerState, error) {
	var state types.NormalizerState

	if err := json.Unmarshal(data, &state); err != nil {
		return types.NormalizerState{}, fmt.Errorf("%w: %w", auralerr.ErrDecodeError, err)
	}

	return state, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}
