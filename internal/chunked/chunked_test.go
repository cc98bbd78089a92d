package chunked

import (
	"context"
	"math"
	"testing"

	"github.com/farcloser/auralis/internal/types"
)

type fakeSource struct {
	left, right []float32
	format      types.PCMFormat
}

func (f *fakeSource) ReadWindow(_ context.Context, _ string, start, count int) ([]float32, []float32, error) {
	end := start + count
	if end > len(f.left) {
		end = len(f.left)
	}

	if start > end {
		start = end
	}

	return f.left[start:end], f.right[start:end], nil
}

func (f *fakeSource) Format(_ context.Context, _ string) (types.PCMFormat, error) {
	return f.format, nil
}

func (f *fakeSource) TotalSamples(_ context.Context, _ string) (int, error) {
	return len(f.left), nil
}

type fakeCache struct {
	data map[types.ChunkKey][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[types.ChunkKey][]byte)}
}

func (c *fakeCache) Get(key types.ChunkKey) ([]byte, bool) {
	v, ok := c.data[key]

	return v, ok
}

func (c *fakeCache) Put(key types.ChunkKey, data []byte) {
	c.data[key] = data
}

func sineFloat32(freqHz float64, seconds float64, sampleRate int, amp float64) []float32 {
	n := int(float64(sampleRate) * seconds)
	out := make([]float32, n)

	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freqHz*float64(i)/float64(sampleRate)))
	}

	return out
}

func TestProcessChunkSequentialProductionIsCached(t *testing.T) {
	const sampleRate = 44100

	src := &fakeSource{
		left:   sineFloat32(220, 3, sampleRate, 0.5),
		right:  sineFloat32(220, 3, sampleRate, 0.5),
		format: types.PCMFormat{SampleRate: sampleRate, Channels: 2, BitDepth: types.Depth32},
	}

	cache := newFakeCache()
	proc := NewProcessor(src, cache, 1.0)

	params := types.Identity()

	key0 := types.ChunkKey{TrackID: "t1", PresetID: "default", ChunkIndex: 0}

	out1, err := proc.ProcessChunk(context.Background(), key0, params)
	if err != nil {
		t.Fatalf("ProcessChunk: %v", err)
	}

	if _, ok := cache.Get(key0); !ok {
		t.Fatal("expected chunk 0 to be cached after production")
	}

	out2, err := proc.ProcessChunk(context.Background(), key0, params)
	if err != nil {
		t.Fatalf("ProcessChunk (cached): %v", err)
	}

	if len(out1) != len(out2) {
		t.Fatalf("cached re-request length mismatch: %d vs %d", len(out1), len(out2))
	}
}

func TestProcessChunkNonSequentialTriggersReplay(t *testing.T) {
	const sampleRate = 44100

	src := &fakeSource{
		left:   sineFloat32(330, 3, sampleRate, 0.5),
		right:  sineFloat32(330, 3, sampleRate, 0.5),
		format: types.PCMFormat{SampleRate: sampleRate, Channels: 2, BitDepth: types.Depth32},
	}

	cache := newFakeCache()
	proc := NewProcessor(src, cache, 1.0)

	params := types.Identity()

	key2 := types.ChunkKey{TrackID: "t1", PresetID: "default", ChunkIndex: 2}

	out, err := proc.ProcessChunk(context.Background(), key2, params)
	if err != nil {
		t.Fatalf("ProcessChunk(non-sequential): %v", err)
	}

	if len(out) == 0 {
		t.Fatal("expected non-empty output from replayed non-sequential request")
	}

	// Chunks 0 and 1 must now be cached as a side effect of the replay.
	key0 := types.ChunkKey{TrackID: "t1", PresetID: "default", ChunkIndex: 0}
	key1 := types.ChunkKey{TrackID: "t1", PresetID: "default", ChunkIndex: 1}

	if _, ok := cache.Get(key0); !ok {
		t.Error("expected chunk 0 cached as a side effect of replay")
	}

	if _, ok := cache.Get(key1); !ok {
		t.Error("expected chunk 1 cached as a side effect of replay")
	}
}
