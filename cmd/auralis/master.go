//nolint:wrapcheck
package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/farcloser/auralis/internal/adaptive"
	"github.com/farcloser/auralis/internal/decoder"
	"github.com/farcloser/auralis/internal/fingerprint"
	"github.com/farcloser/auralis/internal/mastering"
	"github.com/farcloser/auralis/internal/types"
)

var errMasterArgs = errors.New("expected exactly one argument: file path")

func masterCommand() *cli.Command {
	return &cli.Command{
		Name:      "master",
		Usage:     "Fingerprint a track, derive adaptive mastering parameters, and process it end to end",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "genre",
				Usage: "Genre hint for the adaptive target generator: rock, pop, prog_rock, metal, electronic, jazz, classical, unknown",
				Value: "unknown",
			},
			&cli.FloatFlag{
				Name:  "intensity",
				Usage: "Processing intensity, 0 (bypass) to 1 (full target)",
				Value: 1.0,
			},
			&cli.StringFlag{
				Name:     "output",
				Aliases:  []string{"o"},
				Usage:    "Output path for interleaved float32 PCM (raw, no container)",
				Required: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return fmt.Errorf("%w: got %d", errMasterArgs, cmd.NArg())
			}

			return runMaster(ctx, cmd.Args().First(), cmd.String("genre"), cmd.Float("intensity"), cmd.String("output"))
		},
	}
}

func runMaster(ctx context.Context, inputPath, genreFlag string, intensity float64, outputPath string) error {
	dec := decoder.NewFFmpegDecoder()

	probeWindow := 3600.0 // seconds; long enough for any realistic track

	pcm, sampleRate, channels, err := dec.Decode(ctx, inputPath, 0, probeWindow)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", inputPath, err)
	}

	left, right := deinterleaveFloat32(pcm, channels)
	leftF64, rightF64 := toFloat64(left), toFloat64(right)

	var rightFP []float64
	if channels >= 2 {
		rightFP = rightF64
	}

	fp, err := fingerprint.Extract(leftF64, rightFP, sampleRate)
	if err != nil {
		return fmt.Errorf("fingerprinting %s: %w", inputPath, err)
	}

	genre := types.Genre(genreFlag)
	target := adaptive.Generate(fp, genre)
	params := adaptive.Interpolate(target, intensity)

	proc := mastering.NewProcessor(params, sampleRate)

	outLeft, outRight := proc.Process(left, right)
	tailLeft, tailRight := proc.Flush()

	outLeft = append(outLeft, tailLeft...)
	outRight = append(outRight, tailRight...)

	return writeInterleavedFloat32(outputPath, outLeft, outRight)
}

func deinterleaveFloat32(pcm []float32, channels int) (left, right []float32) {
	if channels < 1 {
		channels = 1
	}

	frames := len(pcm) / channels
	left = make([]float32, frames)
	right = make([]float32, frames)

	for i := 0; i < frames; i++ {
		left[i] = pcm[i*channels]

		if channels >= 2 {
			right[i] = pcm[i*channels+1]
		} else {
			right[i] = left[i]
		}
	}

	return left, right
}

func toFloat64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}

	return out
}

func writeInterleavedFloat32(path string, left, right []float32) error {
	f, err := os.Create(path) //nolint:gosec // CLI tool writes to a user-specified output path
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, 8)

	for i := range left {
		binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(left[i]))
		binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(right[i]))

		if _, err := f.Write(buf); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}
	}

	return nil
}
