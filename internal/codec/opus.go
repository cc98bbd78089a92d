// Package codec implements the codec layer: transcodes
// processed PCM into WebM/Opus for the unenhanced progressive path.
// Caching by ChunkKey and in-flight deduplication are not done here; they
// live in internal/transcoder, which wraps this encoder. Grounded on github.com/thesyncim/gopus, the one Opus binding anywhere
// in the retrieved pack.
package codec

import (
	"fmt"

	"github.com/thesyncim/gopus"

	"github.com/farcloser/auralis/internal/auralerr"
)

// webmSampleRate is the sample rate the WebM/Opus output is forced to,
// ("48 kHz forced").
const webmSampleRate = 48000

// opusFrameSamples is 20ms at 48kHz, a standard Opus frame size.
const opusFrameSamples = 960

// opusEncoder wraps a gopus.Encoder configured for the fixed VBR/bitrate
// target the design mandates (~128kbps, 48kHz, music-tuned).
type opusEncoder struct {
	enc      *gopus.Encoder
	channels int
}

func newOpusEncoder(channels, bitrateKbps int) (*opusEncoder, error) {
	enc, err := gopus.NewEncoder(webmSampleRate, channels, gopus.ApplicationAudio)
	if err != nil {
		return nil, fmt.Errorf("%w: opus encoder init: %w", auralerr.ErrEncodeError, err)
	}

	enc.SetVBR(true)

	if err := enc.SetBitrate(bitrateKbps * 1000); err != nil {
		return nil, fmt.Errorf("%w: opus bitrate: %w", auralerr.ErrEncodeError, err)
	}

	if err := enc.SetFrameSize(opusFrameSamples); err != nil {
		return nil, fmt.Errorf("%w: opus frame size: %w", auralerr.ErrEncodeError, err)
	}

	return &opusEncoder{enc: enc, channels: channels}, nil
}

// encodeAll splits interleaved PCM into 20ms Opus frames, zero-padding
// the final partial frame, and returns one packet per frame.
func (o *opusEncoder) encodeAll(interleavedPCM []float32) ([][]byte, error) {
	frameLen := opusFrameSamples * o.channels

	var packets [][]byte

	for start := 0; start < len(interleavedPCM); start += frameLen {
		end := start + frameLen

		var frame []float32

		if end <= len(interleavedPCM) {
			frame = interleavedPCM[start:end]
		} else {
			frame = make([]float32, frameLen)
			copy(frame, interleavedPCM[start:])
		}

		packet, err := o.enc.EncodeFloat32(frame)
		if err != nil {
			return nil, fmt.Errorf("%w: opus encode: %w", auralerr.ErrEncodeError, err)
		}

		packets = append(packets, packet)
	}

	return packets, nil
}
