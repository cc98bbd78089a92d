// Package fingerprint implements the content analyser's core: extracting
// the 25-dimension Fingerprint/§4.A from a decoded PCM
// buffer. Grounded on a similar internal/audit/loudness (K-weighting
// cascade, gating, crest factor), internal/audit/spectral (windowed FFT,
// centroid/flatness), and internal/audit/stereo (Pearson correlation, M/S
// power ratio) packages, generalised from "detect a defect" to "describe
// the material" and supplemented with tempo/onset detection a similar implementation
// has no equivalent for.
package fingerprint

import (
	"fmt"
	"math"

	"github.com/farcloser/auralis/internal/auralerr"
	"github.com/farcloser/auralis/internal/types"
)

var (
	// ErrTooShort is returned when the input is shorter than 1 second.
	ErrTooShort = fmt.Errorf("%w: audio shorter than 1 second", auralerr.ErrInvalidInput)

	// ErrInvalidSampleRate is returned when the sample rate falls outside
	// the accepted [8000, 192000] Hz range.
	ErrInvalidSampleRate = fmt.Errorf("%w: sample rate outside [8000,192000] Hz", auralerr.ErrInvalidInput)

	// ErrNonFiniteSample is returned when the input contains NaN or ±Inf.
	ErrNonFiniteSample = fmt.Errorf("%w: non-finite sample", auralerr.ErrInvalidInput)
)

// Extract computes the 25-D fingerprint of a stereo (or mono-broadcast)
// buffer. Pass right == nil for a mono source; width will be reported as 0
// and correlation as 1 per the mono-input rule. Extract is pure and
// idempotent: the same input always produces the same output.
func Extract(left, right []float64, sampleRate int) (types.Fingerprint, error) {
	if sampleRate < 8000 || sampleRate > 192000 {
		return types.Fingerprint{}, ErrInvalidSampleRate
	}

	if len(left) < sampleRate {
		return types.Fingerprint{}, ErrTooShort
	}

	mono := right == nil

	if err := checkFinite(left); err != nil {
		return types.Fingerprint{}, err
	}

	if !mono {
		if err := checkFinite(right); err != nil {
			return types.Fingerprint{}, err
		}
	}

	fp := types.Fingerprint{}

	spec := analyzeSpectrum(left, right, mono, sampleRate)
	fp.SubBassPct = spec.bandPct[0]
	fp.BassPct = spec.bandPct[1]
	fp.LowMidPct = spec.bandPct[2]
	fp.MidPct = spec.bandPct[3]
	fp.UpperMidPct = spec.bandPct[4]
	fp.PresencePct = spec.bandPct[5]
	fp.AirPct = spec.bandPct[6]
	fp.SpectralCentroidHz = spec.centroidHz
	fp.SpectralRolloff85 = spec.rolloff85Hz
	fp.SpectralFlatness = spec.flatness

	loud := analyzeLoudness(left, right, mono, sampleRate)
	fp.IntegratedLUFS = loud.integratedLUFS
	fp.CrestDB = loud.crestDB
	fp.BassMidRatioDB = bassMidRatioDB(fp.SubBassPct+fp.BassPct, fp.MidPct)

	onset := analyzeOnsets(left, sampleRate)
	fp.TempoBPM = onset.tempoBPM
	fp.RhythmStability = onset.rhythmStability
	fp.TransientDensity = onset.transientDensity
	fp.SilenceRatio = silenceRatio(left, right, mono)

	harm := analyzeHarmonic(left, sampleRate, spec)
	fp.HarmonicRatio = harm.harmonicRatio
	fp.PitchStability = harm.pitchStability
	fp.ChromaEnergy = harm.chromaEnergy

	variation := analyzeVariation(left, right, mono, sampleRate)
	fp.DynamicRangeVariationDB = variation.drVariationDB
	fp.LoudnessVariationStdDB = variation.loudnessStdDB
	fp.PeakConsistency = variation.peakConsistency

	if mono {
		fp.StereoWidth = 0
		fp.PhaseCorrelation = 1
	} else {
		st := analyzeStereo(left, right)
		fp.StereoWidth = st.width
		fp.PhaseCorrelation = st.correlation
	}

	if !fp.WellFormed() {
		return types.Fingerprint{}, fmt.Errorf("%w: fingerprint failed well-formedness check", auralerr.ErrInvalidInput)
	}

	return fp, nil
}

func checkFinite(samples []float64) error {
	for _, s := range samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return ErrNonFiniteSample
		}
	}

	return nil
}

func bassMidRatioDB(bassPct, midPct float64) float64 {
	const eps = 1e-9
	if midPct < eps {
		midPct = eps
	}

	if bassPct < eps {
		bassPct = eps
	}

	return 20 * math.Log10(bassPct/midPct)
}

func silenceRatio(left, right []float64, mono bool) float64 {
	const silenceFloor = 1e-4 // ~ -80 dBFS

	silent := 0

	for i, l := range left {
		level := math.Abs(l)
		if !mono {
			r := right[i]
			level = math.Max(level, math.Abs(r))
		}

		if level < silenceFloor {
			silent++
		}
	}

	if len(left) == 0 {
		return 0
	}

	return float64(silent) / float64(len(left))
}
