package fingerprint

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// bandEdgesHz are the fixed 7-band edges from the design
var bandEdgesHz = [8]float64{20, 60, 250, 500, 2000, 4000, 8000, 20000}

type spectralResult struct {
	bandPct     [7]float64
	centroidHz  float64
	rolloff85Hz float64
	flatness    float64
}

// analyzeSpectrum windows the (mono-mixed) signal with a Hann window,
// averages the magnitude spectrum across windows, and derives the
// frequency-band percentages, spectral centroid, rolloff, and flatness.
// Grounded on a similar internal/audit/spectral/spectral-v2.go
// (gonum FFT, Hann window, banded energy averaging).
func analyzeSpectrum(left, right []float64, mono bool, sampleRate int) spectralResult {
	mixed := mixMono(left, right, mono)

	const fftSize = 8192

	if len(mixed) < fftSize {
		return spectralResult{}
	}

	window := hannWindow(fftSize)
	fft := fourier.NewFFT(fftSize)
	binCount := fftSize/2 + 1

	magnitudeSum := make([]float64, binCount)

	positions := windowPositions(len(mixed), fftSize, 64)
	fftIn := make([]float64, fftSize)

	for _, pos := range positions {
		for i := 0; i < fftSize; i++ {
			fftIn[i] = mixed[pos+i] * window[i]
		}

		coeffs := fft.Coefficients(nil, fftIn)

		for i, c := range coeffs {
			mag := math.Hypot(real(c), imag(c))
			magnitudeSum[i] += mag
		}
	}

	avgMagnitude := make([]float64, binCount)
	for i := range avgMagnitude {
		avgMagnitude[i] = magnitudeSum[i] / float64(len(positions))
	}

	binHz := float64(sampleRate) / float64(fftSize)

	return spectralResult{
		bandPct:     bandPercentages(avgMagnitude, binHz),
		centroidHz:  spectralCentroid(avgMagnitude, binHz),
		rolloff85Hz: spectralRolloff(avgMagnitude, binHz, 0.85),
		flatness:    spectralFlatness(avgMagnitude),
	}
}

func mixMono(left, right []float64, mono bool) []float64 {
	if mono {
		return left
	}

	mixed := make([]float64, len(left))
	for i := range left {
		mixed[i] = (left[i] + right[i]) / 2
	}

	return mixed
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}

	return w
}

func windowPositions(total, fftSize, maxWindows int) []int {
	if total < fftSize {
		return nil
	}

	step := (total - fftSize) / maxWindows
	if step < 1 {
		step = 1
	}

	var positions []int
	for pos := 0; pos+fftSize <= total; pos += step {
		positions = append(positions, pos)

		if len(positions) >= maxWindows {
			break
		}
	}

	if len(positions) == 0 {
		positions = append(positions, 0)
	}

	return positions
}

func bandPercentages(magnitude []float64, binHz float64) [7]float64 {
	var energies [7]float64

	var total float64

	for i, mag := range magnitude {
		freq := float64(i) * binHz
		energy := mag * mag
		total += energy

		for b := 0; b < 7; b++ {
			if freq >= bandEdgesHz[b] && freq < bandEdgesHz[b+1] {
				energies[b] += energy

				break
			}
		}
	}

	var pct [7]float64
	if total > 0 {
		for b := range pct {
			pct[b] = energies[b] / total
		}
	}

	return pct
}

func spectralCentroid(magnitude []float64, binHz float64) float64 {
	var weightedSum, magSum float64

	for i, mag := range magnitude {
		freq := float64(i) * binHz
		weightedSum += freq * mag
		magSum += mag
	}

	if magSum == 0 {
		return 0
	}

	return weightedSum / magSum
}

func spectralRolloff(magnitude []float64, binHz, fraction float64) float64 {
	var total float64
	for _, mag := range magnitude {
		total += mag
	}

	if total == 0 {
		return 0
	}

	threshold := total * fraction

	var cumulative float64

	for i, mag := range magnitude {
		cumulative += mag
		if cumulative >= threshold {
			return float64(i) * binHz
		}
	}

	return float64(len(magnitude)-1) * binHz
}

// spectralFlatness is the Wiener entropy (geometric mean / arithmetic
// mean); 1.0 for white noise, lower for tonal content.
func spectralFlatness(magnitude []float64) float64 {
	var arithmeticSum, logSum float64

	count := 0

	for _, m := range magnitude {
		if m > 0 {
			arithmeticSum += m
			logSum += math.Log(m)
			count++
		}
	}

	if count == 0 || arithmeticSum == 0 {
		return 0
	}

	arithmeticMean := arithmeticSum / float64(count)
	geometricMean := math.Exp(logSum / float64(count))

	return geometricMean / arithmeticMean
}
