package fingerprint

import "math"

type onsetResult struct {
	tempoBPM         float64
	rhythmStability  float64
	transientDensity float64
}

// analyzeOnsets derives tempo, rhythm stability, and transient density
// from an onset-strength envelope built from short-time energy deltas.
// This is supplemented: a similar implementation has no tempo/onset code anywhere in
// its audit packages, so it is written fresh in the same imperative,
// buffer-at-a-time style a similar spectral/loudness analysers use.
func analyzeOnsets(samples []float64, sampleRate int) onsetResult {
	const frameMs = 10

	frameSize := sampleRate * frameMs / 1000
	if frameSize < 1 {
		frameSize = 1
	}

	frameCount := len(samples) / frameSize
	if frameCount < 2 {
		return onsetResult{}
	}

	energy := make([]float64, frameCount)

	for i := 0; i < frameCount; i++ {
		var sum float64

		start := i * frameSize

		for j := 0; j < frameSize; j++ {
			s := samples[start+j]
			sum += s * s
		}

		energy[i] = math.Sqrt(sum / float64(frameSize))
	}

	onset := make([]float64, frameCount)
	for i := 1; i < frameCount; i++ {
		diff := energy[i] - energy[i-1]
		if diff > 0 {
			onset[i] = diff
		}
	}

	tempo, stability := estimateTempo(onset, frameMs)
	density := transientDensity(onset, frameMs, len(samples), sampleRate)

	return onsetResult{
		tempoBPM:         tempo,
		rhythmStability:  stability,
		transientDensity: density,
	}
}

// estimateTempo autocorrelates the onset-strength envelope over the lag
// range corresponding to 40-220 BPM and picks the dominant peak.
func estimateTempo(onset []float64, frameMs int) (bpm, stability float64) {
	framesPerSecond := 1000.0 / float64(frameMs)

	minLag := int(framesPerSecond * 60 / 220)
	maxLag := int(framesPerSecond * 60 / 40)

	if maxLag >= len(onset) {
		maxLag = len(onset) - 1
	}

	if minLag < 1 || maxLag <= minLag {
		return 120, 0 // not enough data to estimate; fall back to a neutral default
	}

	var lag0 float64
	for _, v := range onset {
		lag0 += v * v
	}

	if lag0 == 0 {
		return 120, 0
	}

	bestLag := minLag
	bestCorr := -1.0

	for lag := minLag; lag <= maxLag; lag++ {
		var corr float64

		for i := 0; i+lag < len(onset); i++ {
			corr += onset[i] * onset[i+lag]
		}

		if corr > bestCorr {
			bestCorr = corr
			bestLag = lag
		}
	}

	bpm = clampFloat(framesPerSecond*60/float64(bestLag), 40, 220)
	stability = clampFloat(bestCorr/lag0, 0, 1)

	return bpm, stability
}

// transientDensity counts onset peaks above a noise-adaptive threshold
// with a 50ms refractory period,
func transientDensity(onset []float64, frameMs, totalSamples, sampleRate int) float64 {
	if len(onset) == 0 {
		return 0
	}

	var mean float64
	for _, v := range onset {
		mean += v
	}

	mean /= float64(len(onset))

	threshold := mean * 1.5

	const refractoryMs = 50

	refractoryFrames := refractoryMs / frameMs
	if refractoryFrames < 1 {
		refractoryFrames = 1
	}

	count := 0
	lastPeak := -refractoryFrames

	for i, v := range onset {
		if v > threshold && i-lastPeak >= refractoryFrames {
			count++
			lastPeak = i
		}
	}

	durationSec := float64(totalSamples) / float64(sampleRate)
	if durationSec == 0 {
		return 0
	}

	return float64(count) / durationSec
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}

	if v > hi {
		return hi
	}

	return v
}
