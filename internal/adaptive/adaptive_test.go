package adaptive

import (
	"math"
	"testing"

	"pgregory.net/rapid"

	"github.com/farcloser/auralis/internal/types"
)

func neutralFingerprint() types.Fingerprint {
	return types.Fingerprint{
		SubBassPct: 0.05, BassPct: 0.16, LowMidPct: 0.16, MidPct: 0.21, UpperMidPct: 0.17, PresencePct: 0.14, AirPct: 0.11,
		IntegratedLUFS: -16, CrestDB: 10, BassMidRatioDB: 0,
		TempoBPM: 120, RhythmStability: 0.5, TransientDensity: 2, SilenceRatio: 0,
		SpectralCentroidHz: 3000, SpectralRolloff85: 8000, SpectralFlatness: 0.3,
		HarmonicRatio: 0.6, PitchStability: 0.6, ChromaEnergy: 0.5,
		DynamicRangeVariationDB: 4, LoudnessVariationStdDB: 2, PeakConsistency: 0.8,
		StereoWidth: 0.4, PhaseCorrelation: 0.9,
	}
}

func TestGenerateUnknownGenreUsesBalancedDefaults(t *testing.T) {
	params := Generate(neutralFingerprint(), types.GenreUnknown)

	if params.TargetLUFS != -16 {
		t.Errorf("TargetLUFS = %v, want -16 for balanced/unknown", params.TargetLUFS)
	}
}

func TestGenerateEQGainsClampedWithinRange(t *testing.T) {
	fp := neutralFingerprint()
	fp.AirPct = 0.9 // wildly off from any genre default

	params := Generate(fp, types.GenreRock)

	for i, g := range params.EQBandGainsDB {
		if g < -12 || g > 12 {
			t.Fatalf("band %d gain = %v, outside ±12dB", i, g)
		}
	}
}

func TestGenerateCompressorRatioRespondsToHighCrest(t *testing.T) {
	fp := neutralFingerprint()
	fp.CrestDB = 8

	params := Generate(fp, types.GenreRock)
	if params.Compressor.Ratio > 2.0001 {
		t.Errorf("Ratio = %v, want <= 2.0 for high-crest material", params.Compressor.Ratio)
	}
}

func TestGenerateCompressorRatioRespondsToLowCrest(t *testing.T) {
	fp := neutralFingerprint()
	fp.CrestDB = 2

	params := Generate(fp, types.GenreRock)
	if params.Compressor.Ratio < 3.9999 {
		t.Errorf("Ratio = %v, want >= 4.0 for low-crest material", params.Compressor.Ratio)
	}
}

func TestGenerateStereoWidthNarrowInputWidened(t *testing.T) {
	fp := neutralFingerprint()
	fp.StereoWidth = 0.05

	params := Generate(fp, types.GenreUnknown)
	if math.Abs(params.StereoWidth-0.9) > 1e-9 {
		t.Errorf("StereoWidth = %v, want 0.9 for narrow input", params.StereoWidth)
	}
}

func TestGenerateNeverExceedsPeakCeiling(t *testing.T) {
	params := Generate(neutralFingerprint(), types.GenreMetal)

	if params.Limiter.ThresholdDB > params.PeakCeilingDBFS {
		t.Fatalf("Limiter.ThresholdDB %v exceeds PeakCeilingDBFS %v", params.Limiter.ThresholdDB, params.PeakCeilingDBFS)
	}
}

func TestInterpolateZeroIsIdentity(t *testing.T) {
	target := Generate(neutralFingerprint(), types.GenreRock)
	got := Interpolate(target, 0)
	identity := types.Identity()

	if got.TargetLUFS != identity.TargetLUFS {
		t.Errorf("intensity=0 TargetLUFS = %v, want identity %v", got.TargetLUFS, identity.TargetLUFS)
	}

	if got.Compressor.Ratio != identity.Compressor.Ratio {
		t.Errorf("intensity=0 Compressor.Ratio = %v, want identity %v", got.Compressor.Ratio, identity.Compressor.Ratio)
	}
}

func TestInterpolateOneIsTarget(t *testing.T) {
	target := Generate(neutralFingerprint(), types.GenreRock)
	got := Interpolate(target, 1)

	if got.TargetLUFS != target.TargetLUFS {
		t.Errorf("intensity=1 TargetLUFS = %v, want target %v", got.TargetLUFS, target.TargetLUFS)
	}
}

// TestInterpolateMonotonic checks that, for arbitrary intensities in
// [0,1], the interpolated TargetLUFS stays between its identity and target
// values — one field's instance of the explicit linear-blend contract.
func TestInterpolateMonotonic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		target := Generate(neutralFingerprint(), types.GenreRock)
		intensity := rapid.Float64Range(0, 1).Draw(rt, "intensity")

		got := Interpolate(target, intensity)
		identity := types.Identity()

		lo := math.Min(identity.TargetLUFS, target.TargetLUFS)
		hi := math.Max(identity.TargetLUFS, target.TargetLUFS)

		if got.TargetLUFS < lo-1e-9 || got.TargetLUFS > hi+1e-9 {
			rt.Fatalf("TargetLUFS %v outside [%v,%v] at intensity %v", got.TargetLUFS, lo, hi, intensity)
		}
	})
}
