// Package mastering implements the hybrid processor: a
// single stateful instance that owns a track's DSP chain — stereo-width,
// EQ, compressor, soft clipper, limiter, in that order — for the track's
// entire playback lifetime. Grounded on a similar pattern of
// persistent per-Write filter state in internal/audit/loudness/loudness.go
// (the same biquad-state-never-reset discipline), generalised from a
// measurement pass to a processing pass.
package mastering

import (
	"github.com/farcloser/auralis/internal/dsp"
	"github.com/farcloser/auralis/internal/types"
)

// Processor owns the complete DSP chain for one track. It is created once
// per (track, parameter-set) pair and exclusively owned by its caller —
// the design forbids sharing a processor instance across tracks or
// re-creating it mid-track, the exact bug class that made compressor
// state loss an explicit open question.
type Processor struct {
	params types.ProcessingParameters

	stereoWidth *dsp.StereoWidth
	eq          *dsp.EQ

	compL, compR *dsp.Compressor
	clipL, clipR *dsp.SoftClipper
	limL, limR   *dsp.Limiter

	withheld int // limiter pre-roll samples dropped so far, up to LookaheadSamples()
}

// NewProcessor constructs a processor for a fixed parameter set and
// sample rate. The parameter set never changes for the processor's
// lifetime; a different parameter set requires a different processor
// instance (and hence a different cache key,).
func NewProcessor(params types.ProcessingParameters, sampleRate int) *Processor {
	return &Processor{
		params:      params,
		stereoWidth: dsp.NewStereoWidth(params.StereoWidth),
		eq:          dsp.NewEQ(float64(sampleRate), 2, params.EQBandGainsDB),
		compL: dsp.NewCompressor(
			float64(sampleRate), params.Compressor.ThresholdDB, params.Compressor.Ratio,
			params.Compressor.AttackMs, params.Compressor.ReleaseMs, params.Compressor.KneeDB, params.Compressor.MakeupGainDB,
		),
		compR: dsp.NewCompressor(
			float64(sampleRate), params.Compressor.ThresholdDB, params.Compressor.Ratio,
			params.Compressor.AttackMs, params.Compressor.ReleaseMs, params.Compressor.KneeDB, params.Compressor.MakeupGainDB,
		),
		clipL: dsp.NewSoftClipper(params.SoftClipThresholdDB),
		clipR: dsp.NewSoftClipper(params.SoftClipThresholdDB),
		limL:  dsp.NewLimiter(float64(sampleRate), params.Limiter.ThresholdDB, params.Limiter.LookaheadMs, params.Limiter.ReleaseMs),
		limR:  dsp.NewLimiter(float64(sampleRate), params.Limiter.ThresholdDB, params.Limiter.LookaheadMs, params.Limiter.ReleaseMs),
	}
}

// LookaheadSamples returns the limiter's look-ahead delay in samples,
// the amount by which Process's output trails its input.
func (p *Processor) LookaheadSamples() int {
	return p.limL.LookaheadSamples()
}

// Process pushes one chunk of PCM, given as separate left and right
// channel slices, through the full chain: stereo-width -> EQ -> compressor
// -> soft clipper -> limiter. The first LookaheadSamples() outputs across
// this processor's lifetime are withheld (they reflect the limiter's
// zero-filled pre-roll, not real signal), even when they span several
// calls; after that every call returns one output sample per input
// sample. The withheld tail at end-of-stream is recovered with Flush.
func (p *Processor) Process(left, right []float32) (outLeft, outRight []float32) {
	n := len(left)

	rawL := make([]float64, n)
	rawR := make([]float64, n)

	for i := 0; i < n; i++ {
		l, r := p.stereoWidth.ProcessSample(float64(left[i]), float64(right[i]))

		l = p.eq.ProcessSample(0, l)
		r = p.eq.ProcessSample(1, r)

		levelL := float64abs(l)
		levelR := float64abs(r)

		l = p.compL.ProcessSample(levelL, l)
		r = p.compR.ProcessSample(levelR, r)

		l = p.clipL.ProcessSample(l)
		r = p.clipR.ProcessSample(r)

		l = p.limL.ProcessSample(l)
		r = p.limR.ProcessSample(r)

		rawL[i] = l
		rawR[i] = r
	}

	start := p.LookaheadSamples() - p.withheld
	if start > len(rawL) {
		start = len(rawL)
	}

	p.withheld += start

	return toFloat32(rawL[start:]), toFloat32(rawR[start:])
}

// Flush drains the limiter's look-ahead ring at end-of-stream, returning
// the final LookaheadSamples() of output that Process withheld.
func (p *Processor) Flush() (outLeft, outRight []float32) {
	return toFloat32(p.limL.Flush()), toFloat32(p.limR.Flush())
}

func float64abs(v float64) float64 {
	if v < 0 {
		return -v
	}

	return v
}

func toFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}

	return out
}
