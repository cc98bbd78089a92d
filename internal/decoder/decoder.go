// Package decoder implements the audio-decoder collaborator: an
// external-process adapter shelling out to ffmpeg, grounded directly on
// the internal/integration/ffmpeg and internal/integration/binary
// packages (binary discovery, timeout-bound exec.CommandContext, stderr
// capture, fault sentinel mapping).
package decoder

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"time"

	"github.com/farcloser/primordium/fault"

	auralbinary "github.com/farcloser/auralis/internal/integration/binary"
	"github.com/farcloser/auralis/internal/integration/ffprobe"
)

const (
	ffmpegName = "ffmpeg"
	timeout    = 60 * time.Second
)

// Decoder decodes a window of a track's audio into interleaved PCM.
// Past-EOF reads are tolerated and zero-padded rather than erroring, so
// callers (the chunked processor's final chunk) can always request a
// full-duration window.
type Decoder interface {
	Decode(ctx context.Context, filePath string, offsetSec, durationSec float64) (pcm []float32, sampleRate, channels int, err error)
}

// FFmpegDecoder shells out to ffmpeg to decode a time range of a file to
// raw float32 PCM on stdout.
type FFmpegDecoder struct{}

// NewFFmpegDecoder constructs an FFmpegDecoder.
func NewFFmpegDecoder() *FFmpegDecoder {
	return &FFmpegDecoder{}
}

// Decode extracts [offsetSec, offsetSec+durationSec) from filePath as
// interleaved float32 PCM at the stream's native sample rate and channel
// count. If the requested window runs past end-of-file, the shortfall is
// zero-padded.
func (d *FFmpegDecoder) Decode(ctx context.Context, filePath string, offsetSec, durationSec float64) ([]float32, int, int, error) {
	slog.Debug("decoder.Decode", "file", filePath, "offset", offsetSec, "duration", durationSec)

	probe, err := ffprobe.Probe(ctx, filePath)
	if err != nil {
		return nil, 0, 0, err
	}

	sampleRate, channels, err := streamFormat(probe)
	if err != nil {
		return nil, 0, 0, err
	}

	ffmpegPath, found := auralbinary.Available(ffmpegName)
	if !found {
		return nil, 0, 0, fmt.Errorf("%w: %s", fault.ErrMissingRequirements, ffmpegName)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	//nolint:gosec // filePath is caller-controlled, not web-exposed user input
	cmd := exec.CommandContext(ctx, ffmpegPath,
		"-v", "quiet",
		"-ss", strconv.FormatFloat(offsetSec, 'f', -1, 64),
		"-t", strconv.FormatFloat(durationSec, 'f', -1, 64),
		"-i", filePath,
		"-f", "f32le",
		"-acodec", "pcm_f32le",
		"-",
	)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, 0, 0, fmt.Errorf("%w: after %v", fault.ErrTimeout, timeout)
		}

		return nil, 0, 0, fmt.Errorf("%w: %s: %w", fault.ErrCommandFailure, stderr.String(), err)
	}

	pcm := decodeFloat32LE(stdout.Bytes())

	wantSamples := int(durationSec*float64(sampleRate)+0.5) * channels
	if len(pcm) < wantSamples {
		padded := make([]float32, wantSamples)
		copy(padded, pcm)
		pcm = padded
	}

	return pcm, sampleRate, channels, nil
}

func decodeFloat32LE(raw []byte) []float32 {
	n := len(raw) / 4
	out := make([]float32, n)

	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(raw[i*4 : i*4+4])
		out[i] = math.Float32frombits(bits)
	}

	return out
}

// Info is a track's probed container-level metadata.
type Info struct {
	DurationSec float64
	SampleRate  int
	Channels    int
}

// ProbeInfo probes filePath and returns its duration, sample rate, and
// channel count without decoding any audio.
func (d *FFmpegDecoder) ProbeInfo(ctx context.Context, filePath string) (Info, error) {
	probe, err := ffprobe.Probe(ctx, filePath)
	if err != nil {
		return Info{}, err
	}

	sampleRate, channels, durationSec, err := probedFormat(probe)
	if err != nil {
		return Info{}, err
	}

	return Info{DurationSec: durationSec, SampleRate: sampleRate, Channels: channels}, nil
}

func streamFormat(probe *ffprobe.Result) (sampleRate, channels int, err error) {
	for _, stream := range probe.Streams {
		if stream.CodecType != "audio" {
			continue
		}

		rate, convErr := strconv.Atoi(stream.SampleRate)
		if convErr != nil {
			return 0, 0, fmt.Errorf("%w: unparseable sample rate %q", fault.ErrInvalidJSON, stream.SampleRate)
		}

		return rate, stream.Channels, nil
	}

	return 0, 0, fmt.Errorf("%w: no audio stream found", fault.ErrInvalidJSON)
}

// probedFormat extracts sample rate, channel count, and container
// duration (seconds) from a probe result, shared by FileSource.
func probedFormat(probe *ffprobe.Result) (sampleRate, channels int, durationSec float64, err error) {
	rate, ch, err := streamFormat(probe)
	if err != nil {
		return 0, 0, 0, err
	}

	duration, convErr := strconv.ParseFloat(probe.Format.Duration, 64)
	if convErr != nil {
		return 0, 0, 0, fmt.Errorf("%w: unparseable duration %q", fault.ErrInvalidJSON, probe.Format.Duration)
	}

	return rate, ch, duration, nil
}

