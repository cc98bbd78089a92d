package dsp

import "math"

// Limiter is a look-ahead brick-wall design. A ring buffer holds the
// look-ahead window; the envelope detector scans ahead for the required
// attenuation and applies it with an effectively-instantaneous attack
// (limited by the look-ahead horizon) and a configured release. Ring
// buffer and envelope persist across Process calls.
type Limiter struct {
	thresholdLinear float64
	lookaheadSamples int
	releaseCoeff     float64

	ring       []float64
	ringPos    int
	peakInRing []float64 // per-position running max lookup (simple O(n) scan, fine for small lookahead)

	gain float64 // current applied attenuation, persistent
}

// NewLimiter builds a limiter for the given sample rate and parameters.
func NewLimiter(sampleRate, thresholdDB, lookaheadMs, releaseMs float64) *Limiter {
	lookahead := int(math.Round(lookaheadMs / 1000 * sampleRate))
	if lookahead < 1 {
		lookahead = 1
	}

	return &Limiter{
		thresholdLinear:  math.Pow(10, thresholdDB/20),
		lookaheadSamples: lookahead,
		releaseCoeff:     timeConstant(releaseMs, sampleRate),
		ring:             make([]float64, lookahead),
		gain:             1.0,
	}
}

// LookaheadSamples returns the delay this limiter introduces.
func (l *Limiter) LookaheadSamples() int {
	return l.lookaheadSamples
}

// ProcessSample pushes in into the look-ahead ring buffer and returns the
// delayed, limited sample. The output stream is therefore delayed by
// LookaheadSamples() relative to the input stream; the first call's worth
// of output is produced only once the ring has filled (callers drain the
// tail with Flush at end of stream).
func (l *Limiter) ProcessSample(in float64) float64 {
	delayed := l.ring[l.ringPos]
	l.ring[l.ringPos] = in
	l.ringPos = (l.ringPos + 1) % len(l.ring)

	// Required attenuation to bring the loudest sample currently in the
	// ring (including the one just written) under threshold.
	peak := 0.0
	for _, v := range l.ring {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}

	targetGain := 1.0
	if peak > l.thresholdLinear {
		targetGain = l.thresholdLinear / peak
	}

	if targetGain < l.gain {
		l.gain = targetGain // instantaneous attack within the lookahead horizon
	} else {
		l.gain = l.releaseCoeff*l.gain + (1-l.releaseCoeff)*targetGain
	}

	out := delayed * l.gain

	// Guarantee the peak ceiling (P6) even against residual release ramp.
	if math.Abs(out) > l.thresholdLinear {
		if out > 0 {
			out = l.thresholdLinear
		} else {
			out = -l.thresholdLinear
		}
	}

	return out
}

// Flush drains the remaining look-ahead ring, applying the last-known
// gain with continued release. Called once at end of stream.
func (l *Limiter) Flush() []float64 {
	out := make([]float64, len(l.ring))
	for i := range out {
		out[i] = l.ProcessSample(0)
	}

	return out
}
