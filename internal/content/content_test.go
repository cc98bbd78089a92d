package content

import (
	"testing"

	"github.com/farcloser/auralis/internal/types"
)

func TestClassifyBrightnessBuckets(t *testing.T) {
	cases := []struct {
		centroid float64
		want     Brightness
	}{
		{1000, BrightnessDark},
		{3500, BrightnessBalanced},
		{7000, BrightnessBright},
	}

	for _, c := range cases {
		fp := types.Fingerprint{SpectralCentroidHz: c.centroid}

		got := Classify(fp, types.GenreUnknown)
		if got.Brightness != c.want {
			t.Errorf("centroid %v: brightness = %v, want %v", c.centroid, got.Brightness, c.want)
		}
	}
}

func TestClassifyDynamicsOverCompressed(t *testing.T) {
	fp := types.Fingerprint{CrestDB: 4, DynamicRangeVariationDB: 1}

	got := Classify(fp, types.GenreUnknown)
	if got.DynamicsQuality != DynamicsOverCompressed {
		t.Errorf("DynamicsQuality = %v, want over-compressed", got.DynamicsQuality)
	}
}

func TestClassifyDynamicsDynamic(t *testing.T) {
	fp := types.Fingerprint{CrestDB: 14, DynamicRangeVariationDB: 6}

	got := Classify(fp, types.GenreUnknown)
	if got.DynamicsQuality != DynamicsDynamic {
		t.Errorf("DynamicsQuality = %v, want dynamic", got.DynamicsQuality)
	}
}

func TestClassifyTransientPercussive(t *testing.T) {
	fp := types.Fingerprint{TransientDensity: 5, RhythmStability: 0.8}

	got := Classify(fp, types.GenreUnknown)
	if got.TransientCharacter != TransientPercussive {
		t.Errorf("TransientCharacter = %v, want percussive", got.TransientCharacter)
	}
}

func TestClassifyTransientSmooth(t *testing.T) {
	fp := types.Fingerprint{TransientDensity: 0.2, RhythmStability: 0.1}

	got := Classify(fp, types.GenreUnknown)
	if got.TransientCharacter != TransientSmooth {
		t.Errorf("TransientCharacter = %v, want smooth", got.TransientCharacter)
	}
}
