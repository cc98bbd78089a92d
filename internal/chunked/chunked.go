// Package chunked implements the chunked processor: one
// HybridProcessor per (track, parameter-set) pair, producing chunks in
// index order and replaying from the start on a non-sequential request.
// Grounded on a similar cmd/haustorium/process.go pipeline shape
// (probe -> extract -> analyze -> output, each stage short-circuiting on
// error) generalised into a small per-key supervisor.
package chunked

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/farcloser/auralis/internal/auralerr"
	"github.com/farcloser/auralis/internal/mastering"
	"github.com/farcloser/auralis/internal/types"
)

// Source reads a fixed-size PCM window from a track's decoded audio,
// starting at startSample. Implementations (internal/decoder) own the
// actual file/process I/O; chunked only needs this narrow seam.
type Source interface {
	ReadWindow(ctx context.Context, trackID string, startSample, sampleCount int) (left, right []float32, err error)
	Format(ctx context.Context, trackID string) (types.PCMFormat, error)
	TotalSamples(ctx context.Context, trackID string) (int, error)
}

// ChunkCache is the subset of the multi-tier cache (4.J) the chunked
// processor depends on.
type ChunkCache interface {
	Get(key types.ChunkKey) ([]byte, bool)
	Put(key types.ChunkKey, data []byte)
}

var (
	// ErrFileUnreadable is returned when the source cannot produce the
	// requested window.
	ErrFileUnreadable = fmt.Errorf("%w: source window unreadable", auralerr.ErrInvalidInput)

	// ErrProcessorStateLost is returned when a processor's internal
	// invariant has been violated and it must be reinitialised; this is
	// session-fatal for the affected (track, preset) pair.
	ErrProcessorStateLost = auralerr.ErrProcessorStateLost
)

// trackProcessor is one owned HybridProcessor plus the bookkeeping needed
// to detect and recover from non-sequential chunk requests.
type trackProcessor struct {
	mu         sync.Mutex
	proc       *mastering.Processor
	params     types.ProcessingParameters
	sampleRate int
	nextChunk  int // index the processor is primed to produce next
	lost       bool
}

// Processor is the chunked processor: it owns one trackProcessor per
// (track, parameter-set) key for that track's active lifetime.
type Processor struct {
	source         Source
	cache          ChunkCache
	chunkDuration  float64 // seconds
	mu             sync.Mutex
	byKey          map[string]*trackProcessor
}

// NewProcessor constructs a chunked processor over the given source and
// cache, with a fixed chunk duration in seconds.
func NewProcessor(source Source, cache ChunkCache, chunkDurationSec float64) *Processor {
	return &Processor{
		source:        source,
		cache:         cache,
		chunkDuration: chunkDurationSec,
		byKey:         make(map[string]*trackProcessor),
	}
}

func presetMapKey(key types.ChunkKey) string {
	return fmt.Sprintf("%s|%s|%d", key.TrackID, key.PresetID, key.IntensityQuantised)
}

// ProcessChunk returns the PCM bytes for chunk_index, applying params
// under the given key. Cached output is returned immediately; otherwise
// the chunk is produced, pushed through the shared per-key processor,
// and stored in the cache.
func (p *Processor) ProcessChunk(
	ctx context.Context,
	key types.ChunkKey,
	params types.ProcessingParameters,
) ([]byte, error) {
	if cached, ok := p.cache.Get(key); ok {
		return cached, nil
	}

	tp, err := p.trackProcessorFor(ctx, key, params)
	if err != nil {
		return nil, err
	}

	tp.mu.Lock()
	defer tp.mu.Unlock()

	if tp.lost {
		return nil, ErrProcessorStateLost
	}

	if key.ChunkIndex != tp.nextChunk {
		if err := p.replay(ctx, tp, key); err != nil {
			return nil, err
		}
	}

	pcm, err := p.produceChunk(ctx, tp, key)
	if err != nil {
		tp.lost = true

		return nil, err
	}

	p.cache.Put(key, pcm)

	return pcm, nil
}

// replay rebuilds the processor's configuration and replays every chunk
// from index 0 up to (but not including) the requested index, silently,
// to restore the state a sequential request would have reached. This is
// the documented policy for non-sequential access: slow but correct,
// and a re-request of an already-produced chunk is served from cache
// before ever reaching this path.
func (p *Processor) replay(ctx context.Context, tp *trackProcessor, key types.ChunkKey) error {
	tp.proc = mastering.NewProcessor(tp.params, tp.sampleRate)
	tp.nextChunk = 0

	for idx := 0; idx < key.ChunkIndex; idx++ {
		replayKey := key
		replayKey.ChunkIndex = idx

		pcm, err := p.produceChunk(ctx, tp, replayKey)
		if err != nil {
			return err
		}

		p.cache.Put(replayKey, pcm)
	}

	return nil
}

func (p *Processor) produceChunk(ctx context.Context, tp *trackProcessor, key types.ChunkKey) ([]byte, error) {
	samplesPerChunk := int(p.chunkDuration * float64(tp.sampleRate))
	start := key.ChunkIndex * samplesPerChunk

	left, right, err := p.source.ReadWindow(ctx, key.TrackID, start, samplesPerChunk)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileUnreadable, err)
	}

	outL, outR := tp.proc.Process(left, right)

	total, err := p.source.TotalSamples(ctx, key.TrackID)
	if err == nil && start+samplesPerChunk >= total {
		tailL, tailR := tp.proc.Flush()
		outL = append(outL, tailL...)
		outR = append(outR, tailR...)
	}

	tp.nextChunk = key.ChunkIndex + 1

	return interleavePCM(outL, outR), nil
}

func (p *Processor) trackProcessorFor(
	ctx context.Context,
	key types.ChunkKey,
	params types.ProcessingParameters,
) (*trackProcessor, error) {
	mapKey := presetMapKey(key)

	p.mu.Lock()
	defer p.mu.Unlock()

	if tp, ok := p.byKey[mapKey]; ok {
		return tp, nil
	}

	format, err := p.source.Format(ctx, key.TrackID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileUnreadable, err)
	}

	tp := &trackProcessor{
		proc:       mastering.NewProcessor(params, format.SampleRate),
		params:     params,
		sampleRate: format.SampleRate,
	}

	p.byKey[mapKey] = tp

	return tp, nil
}

// Release drops every owned processor for a track, called when the track
// leaves the active set.
func (p *Processor) Release(trackID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for k := range p.byKey {
		// Keys are "track|preset|intensity"; match the whole track field so
		// that releasing "t1" leaves "t10" alone.
		if len(k) > len(trackID) && k[:len(trackID)] == trackID && k[len(trackID)] == '|' {
			delete(p.byKey, k)
		}
	}
}

func interleavePCM(left, right []float32) []byte {
	out := make([]byte, 0, len(left)*8)

	for i := range left {
		out = appendFloat32LE(out, left[i])
		out = appendFloat32LE(out, right[i])
	}

	return out
}

func appendFloat32LE(buf []byte, v float32) []byte {
	bits := math.Float32bits(v)

	return append(buf, byte(bits), byte(bits>>8), byte(bits>>16), byte(bits>>24))
}
