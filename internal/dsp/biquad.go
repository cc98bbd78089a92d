// Package dsp implements the stateful audio primitives:
// the 26-band EQ, the feed-forward compressor, the soft clipper, the
// look-ahead brick-wall limiter, and the M/S stereo-width processor. All
// arithmetic and filter state are float64; only the limiter clamps the
// final peak.
package dsp

// Biquad holds the coefficients of one direct-form-II-transposed biquad
// section. The same shape a similar K-weighting filters use.
type Biquad struct {
	B0, B1, B2 float64
	A1, A2     float64
}

// BiquadState holds the two delay elements (z^-1, z^-2) for one channel of
// one biquad section. Zero-initialised at construction and never reset
// mid-track — resetting it between chunks is exactly the bug class P5
// guards against.
type BiquadState struct {
	Z1, Z2 float64
}

// Process runs one sample through the section and updates the state.
func (s *BiquadState) Process(b Biquad, in float64) float64 {
	out := b.B0*in + s.Z1
	s.Z1 = b.B1*in - b.A1*out + s.Z2
	s.Z2 = b.B2*in - b.A2*out

	return out
}
