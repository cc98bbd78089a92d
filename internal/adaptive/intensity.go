package adaptive

import "github.com/farcloser/auralis/internal/types"

// Interpolate applies an intensity in [0,1] as an explicit linear blend
// between the identity (pass-through) parameter set at intensity=0 and
// the fully fingerprint-derived target at intensity=1.
//
// This is a deliberate, documented resolution of an open question: the
// effect of "intensity" is not inferred from ambiguous source behaviour,
// it is defined here as a single, testable linear interpolation applied
// uniformly across every field, including the EQ band array.
func Interpolate(target types.ProcessingParameters, intensity float64) types.ProcessingParameters {
	intensity = clamp(intensity, 0, 1)

	identity := types.Identity()

	out := types.ProcessingParameters{
		TargetLUFS:          lerp(identity.TargetLUFS, target.TargetLUFS, intensity),
		PeakCeilingDBFS:     lerp(identity.PeakCeilingDBFS, target.PeakCeilingDBFS, intensity),
		SoftClipThresholdDB: lerp(identity.SoftClipThresholdDB, target.SoftClipThresholdDB, intensity),
		StereoWidth:         lerp(identity.StereoWidth, target.StereoWidth, intensity),
		Compressor: types.CompressorParams{
			ThresholdDB:  lerp(identity.Compressor.ThresholdDB, target.Compressor.ThresholdDB, intensity),
			Ratio:        lerp(identity.Compressor.Ratio, target.Compressor.Ratio, intensity),
			AttackMs:     lerp(identity.Compressor.AttackMs, target.Compressor.AttackMs, intensity),
			ReleaseMs:    lerp(identity.Compressor.ReleaseMs, target.Compressor.ReleaseMs, intensity),
			KneeDB:       lerp(identity.Compressor.KneeDB, target.Compressor.KneeDB, intensity),
			MakeupGainDB: lerp(identity.Compressor.MakeupGainDB, target.Compressor.MakeupGainDB, intensity),
		},
		Limiter: types.LimiterParams{
			ThresholdDB: lerp(identity.Limiter.ThresholdDB, target.Limiter.ThresholdDB, intensity),
			LookaheadMs: lerp(identity.Limiter.LookaheadMs, target.Limiter.LookaheadMs, intensity),
			ReleaseMs:   lerp(identity.Limiter.ReleaseMs, target.Limiter.ReleaseMs, intensity),
		},
	}

	for i := range out.EQBandGainsDB {
		out.EQBandGainsDB[i] = lerp(identity.EQBandGainsDB[i], target.EQBandGainsDB[i], intensity)
	}

	return out
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
