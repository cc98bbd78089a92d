// Package adaptive implements the adaptive target generator: it starts
// from a fixed genre-default parameter table and applies
// bounded incremental nudges from the fingerprint, never replacing the
// defaults outright. Grounded on a similar preference for small pure
// functions over configured analyser pipelines (internal/audit/* each
// expose one narrow, deterministic Analyze-style entry point); this
// package follows the same shape for parameter generation instead.
package adaptive

import (
	"math"

	"github.com/farcloser/auralis/internal/dsp"
	"github.com/farcloser/auralis/internal/types"
)

// bandEdgesHz mirrors internal/fingerprint's 7-block edges; duplicated
// rather than imported to avoid a dependency from adaptive back into
// fingerprint for a single constant table.
var bandEdgesHz = [8]float64{20, 60, 250, 500, 2000, 4000, 8000, 20000}

const eqNudgeGainPerPoint = 0.4 // k in the design step 2

const eqNudgeClampDB = 4.0

// Generate produces a complete, validated ProcessingParameters from a
// fingerprint and an optional genre hint.
func Generate(fp types.Fingerprint, genre types.Genre) types.ProcessingParameters {
	defaults := defaultsFor(genre)

	params := types.ProcessingParameters{
		TargetLUFS:          defaults.TargetLUFS,
		PeakCeilingDBFS:     -0.3,
		SoftClipThresholdDB: -1.0,
		StereoWidth:         stereoWidthFactor(fp.StereoWidth),
		Compressor:          compressorParams(defaults, fp),
		Limiter:             limiterParams(defaults, fp),
	}

	params.EQBandGainsDB = eqBandGains(defaults.BandTargetPct, fp)

	return validate(params)
}

// eqBandGains distributes the 7-block EQ nudge across the 26 physical
// bands: every band inherits the gain of the frequency block its centre
// frequency falls in.
func eqBandGains(targetPct [7]float64, fp types.Fingerprint) [types.EQBandCount]float64 {
	actualPct := [7]float64{fp.SubBassPct, fp.BassPct, fp.LowMidPct, fp.MidPct, fp.UpperMidPct, fp.PresencePct, fp.AirPct}

	var blockGainDB [7]float64
	for b := range blockGainDB {
		gain := eqNudgeGainPerPoint * 100 * (targetPct[b] - actualPct[b])
		blockGainDB[b] = clamp(gain, -eqNudgeClampDB, eqNudgeClampDB)
	}

	centres := dsp.BandFrequencies()

	var out [types.EQBandCount]float64

	for i, freq := range centres {
		out[i] = blockGainDB[blockIndex(freq)]
	}

	return out
}

func blockIndex(freqHz float64) int {
	for b := 0; b < 7; b++ {
		if freqHz >= bandEdgesHz[b] && freqHz < bandEdgesHz[b+1] {
			return b
		}
	}

	return 6
}

// compressorParams scales ratio with input crest factor and derives
// makeup gain from the configured ratio and an estimate of average input
// level (here the integrated loudness, the only level estimate the
// fingerprint carries).
func compressorParams(defaults genreDefault, fp types.Fingerprint) types.CompressorParams {
	ratio := defaults.CompressionRatio

	switch {
	case fp.CrestDB >= 6:
		ratio = math.Min(ratio, 2.0)
	case fp.CrestDB <= 3:
		ratio = math.Max(ratio, 4.0)
	}

	makeupGain := math.Max(0, -fp.IntegratedLUFS*(1-1/ratio)*0.8)

	return types.CompressorParams{
		ThresholdDB:  -18,
		Ratio:        ratio,
		AttackMs:     10,
		ReleaseMs:    100,
		KneeDB:       6,
		MakeupGainDB: makeupGain,
	}
}

// limiterParams loosens the threshold (more headroom) on percussive
// material, where transient density exceeds 3 events/s.
func limiterParams(defaults genreDefault, fp types.Fingerprint) types.LimiterParams {
	threshold := defaults.LimiterThresholdDB

	if fp.TransientDensity > 3 {
		threshold -= 0.2 // more negative = more headroom below 0 dBFS
	}

	return types.LimiterParams{
		ThresholdDB: threshold,
		LookaheadMs: 5,
		ReleaseMs:   50,
	}
}

// stereoWidthFactor raises width toward ~0.9 for narrow input, leaves it
// at 1.0 for already-balanced input, and reduces it toward 0.8 for
// already-wide input.
func stereoWidthFactor(inputWidth float64) float64 {
	switch {
	case inputWidth < 0.2:
		return 0.9
	case inputWidth > 0.8:
		return 0.8
	default:
		return 1.0
	}
}

// validate clamps every output field to its legal range and rejects
// (by clamping to a safe value) parameter sets that would violate the
// peak ceiling before processing even starts.
func validate(p types.ProcessingParameters) types.ProcessingParameters {
	for i := range p.EQBandGainsDB {
		p.EQBandGainsDB[i] = clamp(p.EQBandGainsDB[i], -12, 12)
	}

	p.TargetLUFS = clamp(p.TargetLUFS, -40, -6)
	p.PeakCeilingDBFS = clamp(p.PeakCeilingDBFS, -3, 0)
	p.SoftClipThresholdDB = clamp(p.SoftClipThresholdDB, -6, 0)
	p.StereoWidth = clamp(p.StereoWidth, 0, 2)

	p.Compressor.Ratio = clamp(p.Compressor.Ratio, 1, 20)
	p.Compressor.ThresholdDB = clamp(p.Compressor.ThresholdDB, -60, 0)
	p.Compressor.AttackMs = clamp(p.Compressor.AttackMs, 0.1, 500)
	p.Compressor.ReleaseMs = clamp(p.Compressor.ReleaseMs, 1, 2000)
	p.Compressor.KneeDB = clamp(p.Compressor.KneeDB, 0, 24)
	p.Compressor.MakeupGainDB = clamp(p.Compressor.MakeupGainDB, 0, 24)

	p.Limiter.ThresholdDB = clamp(p.Limiter.ThresholdDB, p.PeakCeilingDBFS-1, 0)
	if p.Limiter.ThresholdDB > p.PeakCeilingDBFS {
		p.Limiter.ThresholdDB = p.PeakCeilingDBFS
	}

	p.Limiter.LookaheadMs = clamp(p.Limiter.LookaheadMs, 1, 20)
	p.Limiter.ReleaseMs = clamp(p.Limiter.ReleaseMs, 10, 1000)

	return p
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
