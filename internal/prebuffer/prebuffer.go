// Package prebuffer implements the proactive pre-buffer:
// on track-play, schedule background processing of the first N chunks
// under each alternative preset, breadth-first across presets, on a
// bounded worker pool that cancels cleanly on track change. Grounded on
// golang.org/x/sync/errgroup for cancellation-aware bounded fan-out, from
// the same golang.org/x/sync module whose singleflight internal/cache
// already imports directly.
package prebuffer

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/farcloser/auralis/internal/types"
)

// Producer renders one chunk under one preset; it is the seam to the
// chunked processor (4.I). Errors are swallowed by the pre-buffer per
// the design and never surface to playback.
type Producer interface {
	ProcessChunk(ctx context.Context, key types.ChunkKey, params types.ProcessingParameters) error
}

// PresetRequest is one alternative preset to pre-buffer, alongside its
// resolved parameters. Intensity must match what a real request for this
// preset would send, or the prebuffered entry will land under a different
// cache key than the one playback later looks up.
type PresetRequest struct {
	PresetID  string
	Intensity float64
	Params    types.ProcessingParameters
}

// PreBuffer schedules background chunk production for a track's
// alternative presets.
type PreBuffer struct {
	producer Producer
	workers  int
	chunks   int // N, default 3

	errorCount atomic.Int64
}

// New constructs a pre-buffer with at most workers concurrent goroutines
// producing the first chunks chunks of every alternative preset.
func New(producer Producer, workers, chunks int) *PreBuffer {
	if workers < 1 {
		workers = 1
	}

	if workers > 2 {
		workers = 2 // the design: bounded to at most 2 workers
	}

	if chunks < 1 {
		chunks = 3
	}

	return &PreBuffer{producer: producer, workers: workers, chunks: chunks}
}

// Schedule pre-buffers trackID's alternative presets breadth-first by
// chunk index: chunk 0 of every preset before chunk 1 of any preset. The
// supplied context governs cancellation (e.g. on track change): cancelling
// it stops dispatching new jobs and lets the producer see the cancellation
// for any job already in flight. Errors from individual chunk productions
// are swallowed and counted, never returned or allowed to cancel siblings.
func (p *PreBuffer) Schedule(ctx context.Context, trackID string, presets []PresetRequest) {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.workers)

loop:
	for chunkIdx := 0; chunkIdx < p.chunks; chunkIdx++ {
		for _, preset := range presets {
			if ctx.Err() != nil {
				break loop
			}

			chunkIdx, preset := chunkIdx, preset

			group.Go(func() error {
				if groupCtx.Err() != nil {
					return nil
				}

				key := types.ChunkKey{
					TrackID:            trackID,
					PresetID:           preset.PresetID,
					IntensityQuantised: int(preset.Intensity*100 + 0.5),
					ChunkIndex:         chunkIdx,
				}

				if err := p.producer.ProcessChunk(groupCtx, key, preset.Params); err != nil {
					p.errorCount.Add(1)
				}

				return nil // swallowed: pre-buffer failures never affect playback
			})
		}
	}

	_ = group.Wait()
}

// ErrorCount returns the number of swallowed production errors seen so
// far, for diagnostics.
func (p *PreBuffer) ErrorCount() int64 {
	return p.errorCount.Load()
}
