// Package codec implements the codec layer: encodes
// processed PCM into WebM/Opus for the unenhanced progressive-download
// path. Opus frame encoding is grounded on github.com/thesyncim/gopus,
// the one Opus binding anywhere in the retrieved example pack; the WebM
// container (init segment + media segments) is hand-written EBML since
// no ecosystem WebM muxer exists in the pack (see DESIGN.md).
package codec

import (
	"fmt"
	"sync"

	"github.com/farcloser/auralis/internal/auralerr"
	"github.com/farcloser/auralis/internal/types"
)

// DefaultBitrateKbps is the fixed VBR target the design names
// ("~128kbps").
const DefaultBitrateKbps = 128

// frameDurationMS is 20ms, matching opusFrameSamples at 48kHz.
const frameDurationMS = 20

// Encoder produces WebM/Opus byte streams for a set of tracks. It is
// stateful per track: the init segment (EBML header, Info, Tracks) is
// emitted exactly once per track, and every subsequent EncodeChunk call
// for that track returns only the Cluster for the new samples, so a
// caller can concatenate the results into one valid WebM stream.
type Encoder struct {
	bitrateKbps int

	mu       sync.Mutex
	perTrack map[string]*trackState
}

type trackState struct {
	mu           sync.Mutex
	enc          *opusEncoder
	format       types.PCMFormat
	initEmitted  bool
	nextChunk    int
	samplesEmitted int64
}

// NewEncoder constructs an Encoder with the given VBR bitrate target.
func NewEncoder(bitrateKbps int) *Encoder {
	if bitrateKbps <= 0 {
		bitrateKbps = DefaultBitrateKbps
	}

	return &Encoder{bitrateKbps: bitrateKbps, perTrack: make(map[string]*trackState)}
}

// EncodeChunk encodes one chunk of interleaved PCM for trackID into a
// WebM byte fragment. format.SampleRate must be 48000 (§4.L forces 48kHz
// upstream of this layer); the first call for a given trackID prepends
// the WebM init segment, every later call returns only the new Cluster.
// chunkIndex must equal the number of chunks already encoded for this
// track — out-of-order calls are a caller error (the chunked processor,
// not this package, owns sequencing and replay).
func (e *Encoder) EncodeChunk(trackID string, chunkIndex int, pcm []float32, format types.PCMFormat) ([]byte, error) {
	if format.SampleRate != webmSampleRate {
		return nil, fmt.Errorf("%w: codec requires %dHz input, got %dHz", auralerr.ErrInvalidInput, webmSampleRate, format.SampleRate)
	}

	if format.Channels < 1 || format.Channels > 2 {
		return nil, fmt.Errorf("%w: codec supports 1 or 2 channels, got %d", auralerr.ErrInvalidInput, format.Channels)
	}

	state, err := e.trackStateFor(trackID, format)
	if err != nil {
		return nil, err
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	if chunkIndex != state.nextChunk {
		return nil, fmt.Errorf("%w: codec chunk %d out of sequence, expected %d", auralerr.ErrInvalidInput, chunkIndex, state.nextChunk)
	}

	packets, err := state.enc.encodeAll(pcm)
	if err != nil {
		return nil, err
	}

	cluster := buildCluster(packets, state.samplesEmitted/int64(format.SampleRate/1000), frameDurationMS)

	framesEncoded := len(packets) * opusFrameSamples
	state.samplesEmitted += int64(framesEncoded)
	state.nextChunk++

	if !state.initEmitted {
		state.initEmitted = true

		return append(buildInitSegment(format.SampleRate, format.Channels), cluster...), nil
	}

	return cluster, nil
}

// Release drops the encoder state held for trackID, allowing its next
// EncodeChunk call to start a fresh stream (init segment re-emitted).
func (e *Encoder) Release(trackID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.perTrack, trackID)
}

func (e *Encoder) trackStateFor(trackID string, format types.PCMFormat) (*trackState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if state, ok := e.perTrack[trackID]; ok {
		return state, nil
	}

	enc, err := newOpusEncoder(format.Channels, e.bitrateKbps)
	if err != nil {
		return nil, err
	}

	state := &trackState{enc: enc, format: format}
	e.perTrack[trackID] = state

	return state, nil
}
