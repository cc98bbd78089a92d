package dsp

import (
	"math"
	"testing"
)

func TestEQZeroGainIsNearIdentity(t *testing.T) {
	var gains [EQBandCount]float64 // all zero

	eq := NewEQ(44100, 1, gains)

	for i := 0; i < 2000; i++ {
		in := math.Sin(2 * math.Pi * 440 * float64(i) / 44100)
		out := eq.ProcessSample(0, in)

		if math.Abs(out-in) > 0.05 {
			t.Fatalf("sample %d: zero-gain EQ changed signal too much: in=%v out=%v", i, in, out)
		}
	}
}

func TestSoftClipperBounded(t *testing.T) {
	clipper := NewSoftClipper(-0.3)

	for _, in := range []float64{0, 0.5, 1, 2, 10, -10} {
		out := clipper.ProcessSample(in)
		if math.Abs(out) > 1.0001 {
			t.Fatalf("clipper output exceeded unity: in=%v out=%v", in, out)
		}
	}
}

func TestLimiterEnforcesCeiling(t *testing.T) {
	const thresholdDB = -1.0

	limiter := NewLimiter(44100, thresholdDB, 5, 50)
	thresholdLinear := math.Pow(10, thresholdDB/20)

	for i := 0; i < 10000; i++ {
		in := 2.0 * math.Sin(2*math.Pi*1000*float64(i)/44100) // well over 0dBFS
		out := limiter.ProcessSample(in)

		if math.Abs(out) > thresholdLinear+1e-9 {
			t.Fatalf("sample %d: limiter exceeded ceiling: out=%v threshold=%v", i, out, thresholdLinear)
		}
	}

	for _, out := range limiter.Flush() {
		if math.Abs(out) > thresholdLinear+1e-9 {
			t.Fatalf("flush tail exceeded ceiling: out=%v", out)
		}
	}
}

func TestStereoWidthIdentity(t *testing.T) {
	sw := NewStereoWidth(1.0)

	l, r := sw.ProcessSample(0.3, -0.1)
	if math.Abs(l-0.3) > 1e-9 || math.Abs(r-(-0.1)) > 1e-9 {
		t.Fatalf("identity width changed signal: l=%v r=%v", l, r)
	}
}

func TestStereoWidthMonoCollapse(t *testing.T) {
	sw := NewStereoWidth(0.0)

	l, r := sw.ProcessSample(0.3, -0.1)
	if math.Abs(l-r) > 1e-9 {
		t.Fatalf("zero width did not collapse to mono: l=%v r=%v", l, r)
	}
}

func TestCompressorReducesGainAboveThreshold(t *testing.T) {
	comp := NewCompressor(44100, -12, 4, 5, 50, 6, 0)

	var lastOut float64

	for i := 0; i < 20000; i++ {
		in := 0.9 * math.Sin(2*math.Pi*1000*float64(i)/44100)
		lastOut = comp.ProcessSample(in, in)
	}

	if math.Abs(lastOut) >= 0.9 {
		t.Fatalf("compressor did not reduce gain on loud steady-state signal: out=%v", lastOut)
	}
}

func TestCompressorStatePersistsAcrossCalls(t *testing.T) {
	comp := NewCompressor(44100, -12, 4, 5, 50, 6, 0)

	// Feed a loud signal to drive the envelope down, then verify a second
	// "chunk" (continued calls on the same instance) starts from the
	// settled envelope rather than resetting to silence.
	for i := 0; i < 10000; i++ {
		in := 0.9 * math.Sin(2*math.Pi*1000*float64(i)/44100)
		comp.ProcessSample(in, in)
	}

	envelopeAfterFirstChunk := comp.envelopeDB

	in := 0.9 * math.Sin(2*math.Pi*1000*10000/44100)
	comp.ProcessSample(in, in)

	if comp.envelopeDB == -120 {
		t.Fatalf("compressor envelope reset to initial value across calls: got %v after first chunk %v", comp.envelopeDB, envelopeAfterFirstChunk)
	}
}
