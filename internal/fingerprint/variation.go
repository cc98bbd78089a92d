package fingerprint

import "math"

type variationResult struct {
	drVariationDB   float64
	loudnessStdDB   float64
	peakConsistency float64
}

// analyzeVariation splits the signal into one-second blocks and measures
// how much loudness and dynamic range drift from block to block: a
// track mastered to a single flat level has near-zero variation here,
// while one with quiet verses and loud choruses does not.
func analyzeVariation(left, right []float64, mono bool, sampleRate int) variationResult {
	blockSize := sampleRate
	if blockSize < 1 {
		blockSize = 1
	}

	n := len(left)

	blockCount := n / blockSize
	if blockCount < 2 {
		return variationResult{peakConsistency: 1}
	}

	loudnessDB := make([]float64, 0, blockCount)
	crestDB := make([]float64, 0, blockCount)
	peakDB := make([]float64, 0, blockCount)

	channels := 1
	if !mono {
		channels = 2
	}

	for b := 0; b < blockCount; b++ {
		start := b * blockSize

		var sumSq, peak float64

		for i := 0; i < blockSize; i++ {
			l := left[start+i]

			if abs := math.Abs(l); abs > peak {
				peak = abs
			}

			sumSq += l * l

			if !mono {
				r := right[start+i]
				if abs := math.Abs(r); abs > peak {
					peak = abs
				}

				sumSq += r * r
			}
		}

		rms := math.Sqrt(sumSq / float64(blockSize*channels))

		loudnessDB = append(loudnessDB, linearToDBFloor(rms))
		peakDB = append(peakDB, linearToDBFloor(peak))

		if rms > 0 && peak > 0 {
			crestDB = append(crestDB, 20*math.Log10(peak/rms))
		} else {
			crestDB = append(crestDB, 0)
		}
	}

	drVariation := percentile(crestDB, 0.95) - percentile(crestDB, 0.05)
	loudnessStd := stddev(loudnessDB)
	peakStd := stddev(peakDB)

	// Rescale peak stddev (dB) into a 0..1 consistency score: 0dB spread
	// is perfectly consistent, 12dB+ spread is treated as fully
	// inconsistent.
	const peakSpreadCeilingDB = 12

	peakConsistency := clampFloat(1-peakStd/peakSpreadCeilingDB, 0, 1)

	return variationResult{
		drVariationDB:   drVariation,
		loudnessStdDB:   loudnessStd,
		peakConsistency: peakConsistency,
	}
}

func linearToDBFloor(v float64) float64 {
	if v <= 0 {
		return -120
	}

	return 20 * math.Log10(v)
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var mean float64
	for _, v := range values {
		mean += v
	}

	mean /= float64(len(values))

	var variance float64

	for _, v := range values {
		d := v - mean
		variance += d * d
	}

	variance /= float64(len(values))

	return math.Sqrt(variance)
}
