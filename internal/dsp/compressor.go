package dsp

import "math"

// Compressor is a classic feed-forward design with a log-domain envelope
// follower. The envelope state persists across Process calls; a new
// instance per chunk is forbidden — it
// is exactly the bug class internal/mastering's P5 continuity test guards
// against.
type Compressor struct {
	thresholdDB  float64
	ratio        float64
	attackCoeff  float64
	releaseCoeff float64
	kneeDB       float64
	makeupGain   float64 // linear

	envelopeDB float64 // persistent across calls
}

// NewCompressor builds a compressor for the given sample rate from
// ProcessingParameters-shaped fields.
func NewCompressor(sampleRate, thresholdDB, ratio, attackMs, releaseMs, kneeDB, makeupGainDB float64) *Compressor {
	return &Compressor{
		thresholdDB:  thresholdDB,
		ratio:        ratio,
		attackCoeff:  timeConstant(attackMs, sampleRate),
		releaseCoeff: timeConstant(releaseMs, sampleRate),
		kneeDB:       kneeDB,
		makeupGain:   math.Pow(10, makeupGainDB/20),
		envelopeDB:   -120,
	}
}

func timeConstant(ms, sampleRate float64) float64 {
	if ms <= 0 {
		return 0
	}

	return math.Exp(-1.0 / (ms / 1000.0 * sampleRate))
}

// gainReductionDB computes the static gain-reduction curve at a given
// input level, with a soft knee implemented as a quadratic interpolation
// around the threshold.
func (c *Compressor) gainReductionDB(levelDB float64) float64 {
	halfKnee := c.kneeDB / 2
	overshoot := levelDB - c.thresholdDB

	switch {
	case c.kneeDB <= 0 || overshoot < -halfKnee:
		if overshoot <= 0 {
			return 0
		}

		return overshoot/c.ratio - overshoot
	case overshoot > halfKnee:
		return overshoot/c.ratio - overshoot
	default:
		// Quadratic interpolation through the knee region.
		x := overshoot + halfKnee
		slope := (1/c.ratio - 1) / (2 * c.kneeDB)

		return slope * x * x
	}
}

// ProcessSample compresses one sample and returns the output. Mono-summed
// level detection is the caller's responsibility for stereo linking; this
// primitive processes one detector-level stream.
func (c *Compressor) ProcessSample(detectorLevel, in float64) float64 {
	levelDB := linearToDB(math.Abs(detectorLevel))

	var coeff float64
	if levelDB > c.envelopeDB {
		coeff = c.attackCoeff
	} else {
		coeff = c.releaseCoeff
	}

	c.envelopeDB = coeff*c.envelopeDB + (1-coeff)*levelDB

	reductionDB := c.gainReductionDB(c.envelopeDB)
	gain := math.Pow(10, reductionDB/20) * c.makeupGain

	return in * gain
}

func linearToDB(v float64) float64 {
	if v <= 0 {
		return -120
	}

	return 20 * math.Log10(v)
}
