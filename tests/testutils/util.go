// Package testutils provides test infrastructure for auralis's
// end-to-end CLI scenarios.
package testutils

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"runtime"

	"github.com/containerd/nerdctl/mod/tigron/test"

	"github.com/farcloser/agar/pkg/agar"
)

// Setup creates a test case configured to run the auralis binary.
func Setup() *test.Case {
	_, thisFile, _, _ := runtime.Caller(0) //nolint:dogsled // runtime.Caller returns 4 values, only file is needed
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
	binaryPath := filepath.Join(projectRoot, "bin", "auralis")

	return agar.Setup(binaryPath)
}

const wavSampleRate = 44100

// SineSweep writes a stereo WAV file sweeping linearly from startHz to
// endHz over durationSec, at the given full-scale amplitude (0..1).
func SineSweep(dir string, startHz, endHz, durationSec, amplitude float64) (string, error) {
	frames := int(durationSec * wavSampleRate)
	left := make([]float64, frames)
	right := make([]float64, frames)

	phase := 0.0

	for i := 0; i < frames; i++ {
		t := float64(i) / wavSampleRate
		freq := startHz + (endHz-startHz)*(t/durationSec)
		phase += 2 * math.Pi * freq / wavSampleRate
		v := amplitude * math.Sin(phase)
		left[i] = v
		right[i] = v
	}

	return writeWAV(dir, "sweep.wav", left, right)
}

// WhiteNoise writes a stereo WAV file of uncorrelated white noise at the
// given full-scale amplitude.
func WhiteNoise(dir string, durationSec, amplitude float64) (string, error) {
	frames := int(durationSec * wavSampleRate)
	left := make([]float64, frames)
	right := make([]float64, frames)

	state := uint64(0x9E3779B97F4A7C15)

	next := func() float64 {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17

		return (float64(state%2000000)/1000000.0 - 1.0) * amplitude
	}

	for i := 0; i < frames; i++ {
		left[i] = next()
		right[i] = next()
	}

	return writeWAV(dir, "noise.wav", left, right)
}

// Silence writes a stereo WAV file of digital silence.
func Silence(dir string, durationSec float64) (string, error) {
	frames := int(durationSec * wavSampleRate)

	return writeWAV(dir, "silence.wav", make([]float64, frames), make([]float64, frames))
}

func writeWAV(dir, name string, left, right []float64) (string, error) {
	path := filepath.Join(dir, name)

	f, err := os.Create(path) //nolint:gosec // test fixture path is caller-controlled
	if err != nil {
		return "", err
	}
	defer f.Close()

	const (
		bitsPerSample = 16
		channels      = 2
	)

	dataLen := len(left) * channels * (bitsPerSample / 8)
	blockAlign := channels * (bitsPerSample / 8)
	byteRate := wavSampleRate * blockAlign

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataLen)) //nolint:gosec // dataLen bounded by test fixture duration
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16)
	binary.LittleEndian.PutUint16(header[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:24], channels)
	binary.LittleEndian.PutUint32(header[24:28], wavSampleRate)
	binary.LittleEndian.PutUint32(header[28:32], uint32(byteRate)) //nolint:gosec // byteRate bounded by fixed sample rate
	binary.LittleEndian.PutUint16(header[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:36], bitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataLen)) //nolint:gosec // dataLen bounded by test fixture duration

	if _, err := f.Write(header); err != nil {
		return "", err
	}

	buf := make([]byte, 4)

	for i := range left {
		binary.LittleEndian.PutUint16(buf[0:2], floatToPCM16(left[i]))
		binary.LittleEndian.PutUint16(buf[2:4], floatToPCM16(right[i]))

		if _, err := f.Write(buf); err != nil {
			return "", err
		}
	}

	return path, nil
}

func floatToPCM16(v float64) uint16 {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}

	return uint16(int16(v * 32767))
}
