package dsp

// StereoWidth is a stateless M/S (mid/side) width processor: encode to
// mid/side, scale the side channel by width, decode back to L/R. width=1.0
// is identity; width<1 narrows, width>1 widens.
type StereoWidth struct {
	width float64
}

// NewStereoWidth builds a processor for the given linear width factor
// (0..2, 1.0 = identity).
func NewStereoWidth(width float64) *StereoWidth {
	return &StereoWidth{width: width}
}

// ProcessSample applies the width adjustment to one stereo frame.
func (s *StereoWidth) ProcessSample(left, right float64) (outL, outR float64) {
	mid := (left + right) / 2
	side := (left - right) / 2 * s.width

	return mid + side, mid - side
}
