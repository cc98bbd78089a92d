// Package content implements the content analyser: a
// pure classification layer on top of a fingerprint (4.A), bucketing
// brightness, dynamics quality, and transient character for consumption
// by the adaptive target generator (4.G).
package content

import "github.com/farcloser/auralis/internal/types"

// Brightness buckets spectral centroid.
type Brightness string

const (
	BrightnessDark     Brightness = "dark"
	BrightnessBalanced Brightness = "balanced"
	BrightnessBright   Brightness = "bright"
)

// DynamicsQuality buckets crest factor and dynamic-range variation.
type DynamicsQuality string

const (
	DynamicsOverCompressed DynamicsQuality = "over-compressed"
	DynamicsNormal         DynamicsQuality = "normal"
	DynamicsDynamic        DynamicsQuality = "dynamic"
)

// TransientCharacter buckets transient density and rhythm stability.
type TransientCharacter string

const (
	TransientSmooth     TransientCharacter = "smooth"
	TransientMixed      TransientCharacter = "mixed"
	TransientPercussive TransientCharacter = "percussive"
)

// Classification is the three-axis classification of a fingerprint.
type Classification struct {
	Brightness         Brightness
	DynamicsQuality    DynamicsQuality
	TransientCharacter TransientCharacter
}

// Classify is a pure function of the fingerprint and an optional genre
// hint (reserved for future genre-aware bucket tuning; currently the
// bucket boundaries are genre-independent).
func Classify(fp types.Fingerprint, _ types.Genre) Classification {
	return Classification{
		Brightness:         classifyBrightness(fp.SpectralCentroidHz),
		DynamicsQuality:    classifyDynamics(fp.CrestDB, fp.DynamicRangeVariationDB),
		TransientCharacter: classifyTransients(fp.TransientDensity, fp.RhythmStability),
	}
}

func classifyBrightness(centroidHz float64) Brightness {
	switch {
	case centroidHz < 2500:
		return BrightnessDark
	case centroidHz > 5000:
		return BrightnessBright
	default:
		return BrightnessBalanced
	}
}

// classifyDynamics treats low crest factor together with low DR variation
// as over-compression: a flat, loud, crushed signal. High crest with
// meaningful variation reads as dynamic.
func classifyDynamics(crestDB, drVariationDB float64) DynamicsQuality {
	switch {
	case crestDB <= 6 && drVariationDB < 3:
		return DynamicsOverCompressed
	case crestDB >= 10 && drVariationDB >= 3:
		return DynamicsDynamic
	default:
		return DynamicsNormal
	}
}

func classifyTransients(transientDensity, rhythmStability float64) TransientCharacter {
	switch {
	case transientDensity > 3 && rhythmStability > 0.5:
		return TransientPercussive
	case transientDensity < 1:
		return TransientSmooth
	default:
		return TransientMixed
	}
}
