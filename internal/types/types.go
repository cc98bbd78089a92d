// Package types holds the data model shared across every Auralis package:
// the fingerprint vector, normaliser state, processing parameters, chunk
// identity, and the stateful processor snapshot. Nothing in this package
// performs I/O or analysis; it only describes shapes and invariants.
package types

import "math"

// FingerprintDimensions is the fixed length of a Fingerprint vector.
const FingerprintDimensions = 25

// Fingerprint is the 25-dimension content descriptor of a track. Once
// produced it is immutable; callers never mutate a Fingerprint in place.
type Fingerprint struct {
	// Frequency band energy percentages (7), each in [0,1], summing to
	// ~1.0 of total band energy.
	SubBassPct  float64
	BassPct     float64
	LowMidPct   float64
	MidPct      float64
	UpperMidPct float64
	PresencePct float64
	AirPct      float64

	// Dynamics (3).
	IntegratedLUFS float64 // dB, typically -30..-6
	CrestDB        float64 // dB
	BassMidRatioDB float64 // dB

	// Temporal (4).
	TempoBPM         float64 // clamped [40,220]
	RhythmStability  float64 // 0..1
	TransientDensity float64 // events/s
	SilenceRatio     float64 // 0..1

	// Spectral (3).
	SpectralCentroidHz float64
	SpectralRolloff85  float64 // Hz
	SpectralFlatness   float64 // 0..1

	// Harmonic (3).
	HarmonicRatio  float64 // 0..1
	PitchStability float64 // 0..1
	ChromaEnergy   float64 // 0..1

	// Variation (3).
	DynamicRangeVariationDB float64
	LoudnessVariationStdDB  float64
	PeakConsistency         float64 // 0..1

	// Stereo (2). Width is 0 and Correlation is 1 for mono sources, per
	// the mono-input rule in the fingerprint extractor contract.
	StereoWidth      float64 // 0..1
	PhaseCorrelation float64 // -1..1
}

// Vector returns the fingerprint as a fixed-order 25-element array, the
// same order the distance weight table (internal/similarity/distance) and
// the normaliser (internal/similarity/normalize) use.
func (f Fingerprint) Vector() [FingerprintDimensions]float64 {
	return [FingerprintDimensions]float64{
		f.SubBassPct, f.BassPct, f.LowMidPct, f.MidPct, f.UpperMidPct, f.PresencePct, f.AirPct,
		f.IntegratedLUFS, f.CrestDB, f.BassMidRatioDB,
		f.TempoBPM, f.RhythmStability, f.TransientDensity, f.SilenceRatio,
		f.SpectralCentroidHz, f.SpectralRolloff85, f.SpectralFlatness,
		f.HarmonicRatio, f.PitchStability, f.ChromaEnergy,
		f.DynamicRangeVariationDB, f.LoudnessVariationStdDB, f.PeakConsistency,
		f.StereoWidth, f.PhaseCorrelation,
	}
}

// FromVector reconstructs a Fingerprint from a 25-element vector in the
// same field order Vector produces. Used by the normaliser's denormalize
// path and by property tests that generate raw vectors.
func FromVector(v [FingerprintDimensions]float64) Fingerprint {
	return Fingerprint{
		SubBassPct: v[0], BassPct: v[1], LowMidPct: v[2], MidPct: v[3], UpperMidPct: v[4], PresencePct: v[5], AirPct: v[6],
		IntegratedLUFS: v[7], CrestDB: v[8], BassMidRatioDB: v[9],
		TempoBPM: v[10], RhythmStability: v[11], TransientDensity: v[12], SilenceRatio: v[13],
		SpectralCentroidHz: v[14], SpectralRolloff85: v[15], SpectralFlatness: v[16],
		HarmonicRatio: v[17], PitchStability: v[18], ChromaEnergy: v[19],
		DynamicRangeVariationDB: v[20], LoudnessVariationStdDB: v[21], PeakConsistency: v[22],
		StereoWidth: v[23], PhaseCorrelation: v[24],
	}
}

// WellFormed checks P1: the seven frequency percentages sum to 1.0±0.02,
// and every dimension is finite.
func (f Fingerprint) WellFormed() bool {
	sum := f.SubBassPct + f.BassPct + f.LowMidPct + f.MidPct + f.UpperMidPct + f.PresencePct + f.AirPct
	if math.Abs(sum-1.0) > 0.02 {
		return false
	}

	for _, v := range f.Vector() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}

	return true
}

// DimensionStats is the fitted (p5, p95) percentile pair for one
// fingerprint dimension.
type DimensionStats struct {
	P5  float64
	P95 float64
}

// NormalizerState is the persisted per-dimension percentile fit used to
// scale raw fingerprints into [0,1]^25.
type NormalizerState struct {
	Dimensions [FingerprintDimensions]DimensionStats
	SampleSize int
}

// Genre is a coarse hint used to pick a default parameter table in the
// adaptive target generator. It is never inferred by Auralis itself.
type Genre string

const (
	GenreRock       Genre = "rock"
	GenrePop        Genre = "pop"
	GenreProgRock   Genre = "prog_rock"
	GenreMetal      Genre = "metal"
	GenreElectronic Genre = "electronic"
	GenreJazz       Genre = "jazz"
	GenreClassical  Genre = "classical"
	GenreUnknown    Genre = "unknown"
)

// EQBandCount is the number of 1/3-octave EQ bands in the processing chain.
const EQBandCount = 26

// CompressorParams describes a feed-forward compressor's tunables.
type CompressorParams struct {
	ThresholdDB  float64
	Ratio        float64
	AttackMs     float64
	ReleaseMs    float64
	KneeDB       float64
	MakeupGainDB float64
}

// LimiterParams describes the look-ahead brick-wall limiter's tunables.
type LimiterParams struct {
	ThresholdDB float64
	LookaheadMs float64
	ReleaseMs   float64
}

// ProcessingParameters is the complete, validated output of the adaptive
// target generator (4.G): every knob the hybrid processor (4.H) needs.
// Held constant for a track's entire playback; it never adapts mid-track.
type ProcessingParameters struct {
	EQBandGainsDB       [EQBandCount]float64
	TargetLUFS          float64
	PeakCeilingDBFS     float64
	Compressor          CompressorParams
	SoftClipThresholdDB float64
	Limiter             LimiterParams
	StereoWidth         float64 // linear 0..2, 1.0 = identity
}

// Identity returns the pass-through parameter set used as the intensity=0
// endpoint of the interpolation in internal/adaptive.
func Identity() ProcessingParameters {
	return ProcessingParameters{
		TargetLUFS:          -16,
		PeakCeilingDBFS:     -0.3,
		SoftClipThresholdDB: 0,
		StereoWidth:         1.0,
		Compressor: CompressorParams{
			ThresholdDB:  0,
			Ratio:        1.0,
			AttackMs:     10,
			ReleaseMs:    100,
			KneeDB:       0,
			MakeupGainDB: 0,
		},
		Limiter: LimiterParams{
			ThresholdDB: -0.3,
			LookaheadMs: 5,
			ReleaseMs:   50,
		},
	}
}

// BitDepth mirrors teacher-style named PCM bit depths.
type BitDepth uint

const (
	Depth16 BitDepth = 16
	Depth24 BitDepth = 24
	Depth32 BitDepth = 32
)

// PCMFormat describes the shape of a raw interleaved PCM buffer.
type PCMFormat struct {
	SampleRate int
	Channels   int
	BitDepth   BitDepth
}

// ChunkKey is the cache identity for one processed audio chunk. Two keys
// are equal iff every field matches.
type ChunkKey struct {
	TrackID            string
	PresetID           string
	IntensityQuantised int // intensity * 100, rounded, for stable hashing
	ChunkIndex         int
}

// Chunk is one fixed-duration window of processed audio.
type Chunk struct {
	Key    ChunkKey
	PCM    []float32 // interleaved, native sample rate
	Format PCMFormat
	Final  bool // true if this is the last chunk of the track (may be silence-padded)
}

// SimilarityEdge is one entry of the k-NN graph.
type SimilarityEdge struct {
	Source          string
	Neighbour       string
	Rank            int // dense, starts at 1
	Distance        float64
	SimilarityScore float64 // 1/(1+distance)
}
