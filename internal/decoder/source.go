package decoder

import (
	"context"
	"fmt"
	"sync"

	"github.com/farcloser/primordium/fault"

	"github.com/farcloser/auralis/internal/integration/ffprobe"
	"github.com/farcloser/auralis/internal/types"
)

// TrackLocator resolves a track identifier to a decodable file path. The
// concrete mapping (library database, flat directory, ...) lives outside
// this package.
type TrackLocator interface {
	Path(trackID string) (string, error)
}

// FileSource adapts a Decoder plus a TrackLocator into the chunked
// processor's narrow Source seam (internal/chunked), so the chunked
// processor never needs to know about ffmpeg or file paths directly.
type FileSource struct {
	decoder  Decoder
	locator  TrackLocator

	mu        sync.Mutex
	formats   map[string]types.PCMFormat
	durations map[string]float64
}

// NewFileSource constructs a FileSource.
func NewFileSource(decoder Decoder, locator TrackLocator) *FileSource {
	return &FileSource{
		decoder:   decoder,
		locator:   locator,
		formats:   make(map[string]types.PCMFormat),
		durations: make(map[string]float64),
	}
}

// ReadWindow decodes [startSample, startSample+sampleCount) of trackID,
// de-interleaving into separate left/right channels (mono sources are
// duplicated into both).
func (s *FileSource) ReadWindow(ctx context.Context, trackID string, startSample, sampleCount int) ([]float32, []float32, error) {
	format, err := s.Format(ctx, trackID)
	if err != nil {
		return nil, nil, err
	}

	path, err := s.locator.Path(trackID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", fault.ErrMissingRequirements, err)
	}

	offsetSec := float64(startSample) / float64(format.SampleRate)
	durationSec := float64(sampleCount) / float64(format.SampleRate)

	pcm, _, channels, err := s.decoder.Decode(ctx, path, offsetSec, durationSec)
	if err != nil {
		return nil, nil, err
	}

	return deinterleave(pcm, channels, sampleCount)
}

// Format returns (and caches) the probed sample rate/channel count/bit
// depth for trackID.
func (s *FileSource) Format(ctx context.Context, trackID string) (types.PCMFormat, error) {
	s.mu.Lock()
	if format, ok := s.formats[trackID]; ok {
		s.mu.Unlock()

		return format, nil
	}
	s.mu.Unlock()

	path, err := s.locator.Path(trackID)
	if err != nil {
		return types.PCMFormat{}, fmt.Errorf("%w: %w", fault.ErrMissingRequirements, err)
	}

	probe, err := ffprobe.Probe(ctx, path)
	if err != nil {
		return types.PCMFormat{}, err
	}

	sampleRate, channels, durationSec, err := probedFormat(probe)
	if err != nil {
		return types.PCMFormat{}, err
	}

	format := types.PCMFormat{SampleRate: sampleRate, Channels: channels, BitDepth: types.Depth32}

	s.mu.Lock()
	s.formats[trackID] = format
	s.durations[trackID] = durationSec
	s.mu.Unlock()

	return format, nil
}

// TotalSamples returns the track's total per-channel sample count,
// derived from the probed container duration.
func (s *FileSource) TotalSamples(ctx context.Context, trackID string) (int, error) {
	format, err := s.Format(ctx, trackID)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	duration := s.durations[trackID]
	s.mu.Unlock()

	return int(duration*float64(format.SampleRate) + 0.5), nil
}

func deinterleave(pcm []float32, channels, wantSamples int) ([]float32, []float32, error) {
	if channels < 1 {
		return nil, nil, fmt.Errorf("%w: non-positive channel count %d", fault.ErrInvalidJSON, channels)
	}

	left := make([]float32, wantSamples)
	right := make([]float32, wantSamples)

	frames := len(pcm) / channels

	for i := 0; i < wantSamples; i++ {
		if i >= frames {
			break
		}

		left[i] = pcm[i*channels]

		if channels >= 2 {
			right[i] = pcm[i*channels+1]
		} else {
			right[i] = left[i]
		}
	}

	return left, right, nil
}
