package fingerprint

import (
	"math"
	"sort"

	"github.com/farcloser/auralis/internal/dsp"
)

type loudnessResult struct {
	integratedLUFS float64
	crestDB        float64
}

// kWeightingFilters returns the BS.1770-4 pre-filter (high shelf) and RLB
// (high pass) biquad sections for the given sample rate. Coefficients and
// derivation grounded directly on a similar
// internal/audit/loudness/loudness.go getKWeightingFilters.
func kWeightingFilters(sampleRate float64) (pre, rlb dsp.Biquad) {
	centerFreq := 1681.974450955533
	gainDB := 3.999843853973347
	q := 0.7071752369554196

	k := math.Tan(math.Pi * centerFreq / sampleRate)
	headGainV := math.Pow(10, gainDB/20)
	vb := math.Pow(headGainV, 0.4996667741545416)

	norm := 1 + k/q + k*k
	pre.B0 = (headGainV + vb*k/q + k*k) / norm
	pre.B1 = 2 * (k*k - headGainV) / norm
	pre.B2 = (headGainV - vb*k/q + k*k) / norm
	pre.A1 = 2 * (k*k - 1) / norm
	pre.A2 = (1 - k/q + k*k) / norm

	centerFreq = 38.13547087602444
	q = 0.5003270373238773

	k = math.Tan(math.Pi * centerFreq / sampleRate)
	norm = 1 + k/q + k*k
	rlb.B0 = 1 / norm
	rlb.B1 = -2 / norm
	rlb.B2 = 1 / norm
	rlb.A1 = 2 * (k*k - 1) / norm
	rlb.A2 = (1 - k/q + k*k) / norm

	return pre, rlb
}

// analyzeLoudness computes BS.1770-style gated integrated loudness and the
// whole-buffer crest factor. Grounded on a similar loudness meter, cut
// down to what the fingerprint needs (no short-term/momentary windows, no
// DR blocks — those are teacher-specific defect metrics with no
// SPEC_FULL.md home).
func analyzeLoudness(left, right []float64, mono bool, sampleRate int) loudnessResult {
	pre, rlb := kWeightingFilters(float64(sampleRate))

	channels := 2
	if mono {
		channels = 1
	}

	preState := make([]dsp.BiquadState, channels)
	rlbState := make([]dsp.BiquadState, channels)

	const blockMs = 400

	blockSize := sampleRate * blockMs / 1000
	if blockSize < 1 {
		blockSize = 1
	}

	var (
		blockSum     float64
		blockSamples int
		powers       []float64

		peak float64
		sumSq float64
	)

	n := len(left)

	for i := 0; i < n; i++ {
		var framePower float64

		samples := [2]float64{left[i], 0}
		if !mono {
			samples[1] = right[i]
		}

		for ch := 0; ch < channels; ch++ {
			s := samples[ch]
			if abs := math.Abs(s); abs > peak {
				peak = abs
			}

			sumSq += s * s

			filtered := preState[ch].Process(pre, s)
			filtered = rlbState[ch].Process(rlb, filtered)
			framePower += filtered * filtered
		}

		blockSum += framePower / float64(channels)
		blockSamples++

		if blockSamples >= blockSize {
			powers = append(powers, blockSum/float64(blockSamples))
			blockSum = 0
			blockSamples = 0
		}
	}

	integrated := gatedIntegratedLoudness(powers)

	rms := math.Sqrt(sumSq / float64(n*channels))

	var crestDB float64

	if rms > 0 && peak > 0 {
		crestDB = 20 * math.Log10(peak/rms)
	}

	return loudnessResult{integratedLUFS: integrated, crestDB: crestDB}
}

// gatedIntegratedLoudness applies the two-stage absolute/relative gate
// from BS.1770, identical in structure to a similar
// calculateIntegratedLoudness.
func gatedIntegratedLoudness(powers []float64) float64 {
	if len(powers) == 0 {
		return -120
	}

	var sum float64

	count := 0

	for _, p := range powers {
		if lufs := powerToLUFS(p); lufs > -70 {
			sum += p
			count++
		}
	}

	if count == 0 {
		return -120
	}

	ungatedMean := sum / float64(count)
	relativeThreshold := powerToLUFS(ungatedMean) - 10

	sum = 0
	count = 0

	for _, p := range powers {
		if lufs := powerToLUFS(p); lufs > relativeThreshold {
			sum += p
			count++
		}
	}

	if count == 0 {
		return -120
	}

	return powerToLUFS(sum / float64(count))
}

func powerToLUFS(p float64) float64 {
	if p <= 0 {
		return -120
	}

	return -0.691 + 10*math.Log10(p)
}

// percentile returns the p-th percentile (0..1) of values, sorting a copy
// so the caller's slice is left in its original order.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	idx := int(p * float64(len(sorted)-1))

	return sorted[idx]
}
