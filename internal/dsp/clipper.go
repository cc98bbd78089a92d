package dsp

import "math"

// SoftClipper is a stateless tanh waveshaper: y = tanh(x*g)/tanh(g), with
// g = 1/threshold (linear), so an input at the threshold level drives the
// tanh at unity. A 0 dBFS input maps to 0 dBFS; larger inputs approach
// ±1/tanh(g), so the output can exceed 1.0 (the limiter sets the ceiling).
type SoftClipper struct {
	gain     float64
	tanhGain float64
}

// NewSoftClipper builds a clipper for the given threshold in dBFS. A
// tighter (more negative) threshold drives the waveshaper harder.
func NewSoftClipper(thresholdDB float64) *SoftClipper {
	thresholdLinear := math.Pow(10, thresholdDB/20)
	g := 1 / thresholdLinear

	return &SoftClipper{
		gain:     g,
		tanhGain: math.Tanh(g),
	}
}

// ProcessSample applies the waveshaper to one sample.
func (c *SoftClipper) ProcessSample(in float64) float64 {
	return math.Tanh(in*c.gain) / c.tanhGain
}
